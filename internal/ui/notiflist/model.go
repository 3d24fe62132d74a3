package notiflist

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/brancard/internal/keys"
	"github.com/nhle/brancard/internal/model"
	"github.com/nhle/brancard/internal/theme"
	"github.com/nhle/brancard/internal/ui"
)

// OpenMsg is dispatched when the user opens a notification.
type OpenMsg struct {
	ID   int64
	Read bool
	Data model.NotificationData
}

// MarkReadMsg asks the root model to mark one notification read.
type MarkReadMsg struct {
	ID int64
}

// MarkAllReadMsg asks the root model to mark every notification read.
type MarkAllReadMsg struct{}

// RefreshMsg asks the root model to reconcile with the backend.
type RefreshMsg struct{}

// Item adapts a notification for bubbles/list.
type Item struct {
	N model.NotificationTarget
}

// FilterValue returns the string used for fuzzy filtering.
func (i Item) FilterValue() string { return i.N.Title() }

// Delegate renders one notification per line.
type Delegate struct {
	now func() time.Time
}

// Height returns the number of lines each item takes.
func (d Delegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d Delegate) Spacing() int { return 0 }

// Update handles per-item messages.
func (d Delegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

// Render draws a single notification line.
func (d Delegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}
	fmt.Fprint(w, renderLine(it.N, index == m.Index(), m.Width(), d.now()))
}

func renderLine(n model.NotificationTarget, selected bool, width int, now time.Time) string {
	marker := theme.UnreadBadgeStyle.Render("●")
	if n.IsRead {
		marker = " "
	}

	when := lipgloss.NewStyle().
		Foreground(theme.ColorGray).
		Render(ui.RelativeTime(n.CreationDate.Time, now))

	p := n.Instance.Payload
	text := p.Title
	if p.Body != "" {
		text += " · " + p.Body
	}
	room := width - lipgloss.Width(when) - 8
	text = ui.Truncate(text, room)
	if n.IsRead {
		text = theme.DimmedStyle.Render(text)
	}

	line := fmt.Sprintf("%s %s  %s", marker, text, when)
	if selected {
		return theme.SelectedItemStyle.Render(line)
	}
	return theme.ListItemStyle.Render(line)
}

// Model is the notification list view.
type Model struct {
	list    list.Model
	keys    *keys.KeyMap
	loading bool
	err     string
	width   int
	height  int
}

// New creates a new notification list model.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New(nil, Delegate{now: time.Now}, width, height)
	l.SetShowTitle(false)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()

	return Model{list: l, keys: k, width: width, height: height}
}

// SetNotifications replaces the listed notifications.
func (m *Model) SetNotifications(items []model.NotificationTarget, loading bool, errMsg string) tea.Cmd {
	m.loading = loading
	m.err = errMsg
	li := make([]list.Item, len(items))
	for i, n := range items {
		li[i] = Item{N: n}
	}
	return m.list.SetItems(li)
}

// Selected returns the highlighted notification.
func (m Model) Selected() (model.NotificationTarget, bool) {
	it, ok := m.list.SelectedItem().(Item)
	if !ok {
		return model.NotificationTarget{}, false
	}
	return it.N, true
}

// Update handles messages for the notification list.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Select):
			n, ok := m.Selected()
			if !ok {
				return m, nil
			}
			open := OpenMsg{
				ID:   n.ID,
				Read: n.IsRead,
				Data: model.NotificationData{
					ID:           n.ID,
					RedirectURL:  n.Instance.Payload.RedirectURL,
					TemplateCode: n.Instance.Payload.TemplateCode,
				},
			}
			return m, func() tea.Msg { return open }
		case key.Matches(msg, m.keys.MarkRead):
			n, ok := m.Selected()
			if !ok || n.IsRead {
				return m, nil
			}
			return m, func() tea.Msg { return MarkReadMsg{ID: n.ID} }
		case key.Matches(msg, m.keys.MarkAllRead):
			return m, func() tea.Msg { return MarkAllReadMsg{} }
		case key.Matches(msg, m.keys.Refresh):
			return m, func() tea.Msg { return RefreshMsg{} }
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the list, or a placeholder when it is empty.
func (m Model) View() string {
	var banner string
	if m.err != "" {
		banner = lipgloss.NewStyle().Foreground(theme.ColorYellow).Render("⚠ " + m.err)
	}

	if len(m.list.Items()) == 0 {
		text := "Aucune notification"
		if m.loading {
			text = "Chargement..."
		}
		empty := lipgloss.Place(m.width, max(m.height-1, 1), lipgloss.Center, lipgloss.Center,
			theme.HelpStyle.Render(text))
		return lipgloss.JoinVertical(lipgloss.Left, banner, empty)
	}

	if banner == "" {
		return m.list.View()
	}
	return lipgloss.JoinVertical(lipgloss.Left, banner, m.list.View())
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-1)
}
