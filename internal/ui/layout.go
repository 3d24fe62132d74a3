package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/brancard/internal/theme"
)

// Layout manages the terminal layout dimensions: a header, an optional
// tray strip, the content area and a status bar.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	TrayHeight      int
	StatusBarHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
// HeaderHeight and StatusBarHeight default to 1, the tray starts hidden.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// WithTray returns a copy of l reserving lines for the notification tray.
func (l Layout) WithTray(lines int) Layout {
	l.TrayHeight = lines
	return l
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height available for the main content area.
func (l Layout) ContentHeight() int {
	h := l.Height - l.HeaderHeight - l.TrayHeight - l.StatusBarHeight
	if h < 0 {
		return 0
	}
	return h
}

// RenderHeader renders the top header bar with a title on the left and the
// connection status on the right.
func (l Layout) RenderHeader(title string, status string) string {
	titleRendered := theme.HeaderStyle.Render(title)
	statusRendered := theme.HeaderStyle.
		Align(lipgloss.Right).
		Render(status)

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		titleRendered,
		l.fill(theme.HeaderStyle, l.Width-lipgloss.Width(titleRendered)-lipgloss.Width(statusRendered)),
		statusRendered,
	)
}

// RenderStatusBar renders the bottom bar with text in the given style.
func (l Layout) RenderStatusBar(text string, style lipgloss.Style) string {
	rendered := style.Render(text)
	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		rendered,
		l.fill(style, l.Width-lipgloss.Width(rendered)),
	)
}

// RenderColumns places left and right side by side, left taking leftWidth
// columns.
func (l Layout) RenderColumns(left, right string, leftWidth int) string {
	leftRendered := lipgloss.NewStyle().
		Width(leftWidth).
		Height(l.ContentHeight()).
		Render(left)
	rightRendered := lipgloss.NewStyle().
		Width(max(l.Width-leftWidth, 0)).
		Height(l.ContentHeight()).
		Render(right)
	return lipgloss.JoinHorizontal(lipgloss.Top, leftRendered, rightRendered)
}

// RenderWithFrame composes a full terminal view by vertically joining the
// header, tray, content area and status bar. An empty tray is skipped.
func (l Layout) RenderWithFrame(header, tray, content, statusBar string) string {
	parts := []string{header}
	if tray != "" {
		parts = append(parts, tray)
	}
	parts = append(parts,
		lipgloss.NewStyle().Height(l.ContentHeight()).Render(content),
		statusBar,
	)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (l Layout) fill(style lipgloss.Style, gap int) string {
	if gap < 0 {
		gap = 0
	}
	return style.Render(
		lipgloss.NewStyle().
			Width(gap).
			Background(style.GetBackground()).
			Render(""),
	)
}
