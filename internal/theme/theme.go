package theme

import "github.com/charmbracelet/lipgloss"

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorNavy   = lipgloss.AdaptiveColor{Dark: "#5B7BD5", Light: "#1D2E5C"}
	ColorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorSubtle = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#CBD5E0"}
	ColorBorder = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for the top bar carrying the title and connection flags.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#F8F9FA")).
	Background(lipgloss.Color("#1D2E5C")).
	Padding(0, 1)

// StatusBarStyle is used for the bottom status bar.
var StatusBarStyle = lipgloss.NewStyle().
	Foreground(ColorWhite).
	Background(ColorSubtle).
	Padding(0, 1)

// ErrorBarStyle replaces StatusBarStyle while an error toast is shown.
var ErrorBarStyle = StatusBarStyle.
	Background(lipgloss.Color("#C53030")).
	Foreground(lipgloss.Color("#F8F9FA"))

// PanelStyle wraps a content area.
var PanelStyle = lipgloss.NewStyle().
	Padding(1, 2).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// ListItemStyle is the base style for items in a list.
var ListItemStyle = lipgloss.NewStyle().
	PaddingLeft(2)

// SelectedItemStyle highlights the currently focused list item.
var SelectedItemStyle = lipgloss.NewStyle().
	PaddingLeft(1).
	Bold(true).
	Foreground(ColorNavy).
	Border(lipgloss.NormalBorder(), false, false, false, true).
	BorderForeground(ColorNavy)

// DimmedStyle renders read notifications.
var DimmedStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// UnreadBadgeStyle marks unread items and counters.
var UnreadBadgeStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorRed)

// HelpStyle is used for keyboard shortcut hints and help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// OwnMessageStyle and PeerMessageStyle render the two sides of a conversation.
var (
	OwnMessageStyle = lipgloss.NewStyle().
			Foreground(ColorNavy).
			Align(lipgloss.Right)
	PeerMessageStyle = lipgloss.NewStyle().
				Foreground(ColorWhite)
)

// ChannelStyle colors a tray entry with the light color of its notification
// channel.
func ChannelStyle(lightColor string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	if lightColor == "" {
		return base.Foreground(ColorNavy)
	}
	return base.Foreground(lipgloss.Color(lightColor))
}

// ConnectionStyle renders a hub connection flag.
func ConnectionStyle(connected bool) lipgloss.Style {
	base := HeaderStyle.Padding(0, 0)
	if connected {
		return base.Foreground(lipgloss.Color("#6BCB77"))
	}
	return base.Foreground(lipgloss.Color("#FF6B6B"))
}
