package chatview

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/brancard/internal/chat"
	"github.com/nhle/brancard/internal/keys"
	"github.com/nhle/brancard/internal/model"
	"github.com/nhle/brancard/internal/state"
	"github.com/nhle/brancard/internal/theme"
	"github.com/nhle/brancard/internal/ui"
)

// OpenMsg is dispatched when a conversation is opened.
type OpenMsg struct {
	With int64
}

// CloseMsg is dispatched when the open conversation is left.
type CloseMsg struct {
	With int64
}

// TypingMsg is a change of the local typing state. The view does not
// dispatch it as a message: the parent collects it with TakeTyping right
// after Update so typing changes keep keystroke order.
type TypingMsg struct {
	To     int64
	Typing bool
}

// SendMsg asks the root model to send a message.
type SendMsg struct {
	To   int64
	Text string
}

const partnersWidth = 28

// Model is the chat view: partners on the left, the open conversation and
// its input on the right.
type Model struct {
	keys *keys.KeyMap
	self int64

	partners []chat.Partner
	cursor   int

	openWith     int64
	conversation []model.ChatMessage
	peerTyping   bool

	viewport viewport.Model
	input    textinput.Model
	typing   bool
	events   []TypingMsg

	layout ui.Layout
	now    func() time.Time
}

// New creates a new chat view model.
func New(k *keys.KeyMap, width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "Écrire un message..."
	ti.Prompt = "› "
	ti.CharLimit = 1000

	m := Model{
		keys:     k,
		viewport: viewport.New(0, 0),
		input:    ti,
		now:      time.Now,
	}
	m.SetSize(width, height)
	return m
}

// OpenWith reports the counterparty of the open conversation, 0 if none.
func (m Model) OpenWith() int64 {
	return m.openWith
}

// TakeTyping returns the typing changes produced since the last call.
func (m *Model) TakeTyping() []TypingMsg {
	ev := m.events
	m.events = nil
	return ev
}

// InputFocused reports whether the message input has keyboard focus.
func (m Model) InputFocused() bool {
	return m.input.Focused()
}

// Open focuses the conversation with id.
func (m *Model) Open(id int64) tea.Cmd {
	m.openWith = id
	m.typing = false
	m.input.Reset()
	for i, p := range m.partners {
		if p.ID == id {
			m.cursor = i
		}
	}
	return tea.Batch(m.input.Focus(), func() tea.Msg { return OpenMsg{With: id} })
}

// close leaves the open conversation.
func (m *Model) close() tea.Cmd {
	if m.openWith == 0 {
		return nil
	}
	with := m.openWith
	m.openWith = 0
	m.typing = false
	m.input.Reset()
	m.input.Blur()
	return func() tea.Msg { return CloseMsg{With: with} }
}

// SetState refreshes partners and the open conversation from the store.
func (m *Model) SetState(c state.Chat, self int64) {
	m.self = self
	m.partners = chat.Partners(c, self)
	if m.cursor >= len(m.partners) {
		m.cursor = max(len(m.partners)-1, 0)
	}

	follow := m.viewport.AtBottom()
	m.conversation = nil
	m.peerTyping = false
	if m.openWith != 0 {
		m.conversation = chat.Conversation(c.Messages, self, m.openWith)
		m.peerTyping = c.Typing[m.openWith]
	}
	m.viewport.SetContent(m.renderConversation())
	if follow {
		m.viewport.GotoBottom()
	}
}

// Update handles messages for the chat view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if m.input.Focused() {
		return m.updateInput(km)
	}

	switch {
	case key.Matches(km, m.keys.Down):
		if m.cursor < len(m.partners)-1 {
			m.cursor++
		}
		return m, nil
	case key.Matches(km, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case key.Matches(km, m.keys.Select):
		if m.cursor < len(m.partners) {
			return m, m.Open(m.partners[m.cursor].ID)
		}
		return m, nil
	case key.Matches(km, m.keys.Back):
		return m, m.close()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) updateInput(km tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(km, m.keys.Back):
		return m, m.close()
	case key.Matches(km, m.keys.Send):
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		m.input.Reset()
		if m.typing {
			m.typing = false
			m.events = append(m.events, TypingMsg{To: m.openWith, Typing: false})
		}
		send := SendMsg{To: m.openWith, Text: text}
		return m, func() tea.Msg { return send }
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(km)
	after := m.input.Value()
	if before == after {
		return m, cmd
	}

	typing := strings.TrimSpace(after) != ""
	if !typing && !m.typing {
		return m, cmd
	}
	m.typing = typing
	m.events = append(m.events, TypingMsg{To: m.openWith, Typing: typing})
	return m, cmd
}

// View renders the partner list next to the conversation.
func (m Model) View() string {
	return m.layout.RenderColumns(m.renderPartners(), m.renderRight(), partnersWidth)
}

func (m Model) renderPartners() string {
	if len(m.partners) == 0 {
		return theme.HelpStyle.Render("  Aucune conversation")
	}

	lines := make([]string, 0, len(m.partners))
	for i, p := range m.partners {
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("#%d", p.ID)
		}
		badge := ""
		switch {
		case p.Typing:
			badge = theme.HelpStyle.Render(" …")
		case p.Unread > 0:
			badge = theme.UnreadBadgeStyle.Render(fmt.Sprintf(" (%d)", p.Unread))
		}
		line := ui.Truncate(name, partnersWidth-8) + badge
		if i == m.cursor {
			lines = append(lines, theme.SelectedItemStyle.Render(line))
		} else {
			lines = append(lines, theme.ListItemStyle.Render(line))
		}
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderRight() string {
	if m.openWith == 0 {
		return lipgloss.Place(
			max(m.layout.Width-partnersWidth, 0), m.layout.ContentHeight(),
			lipgloss.Center, lipgloss.Center,
			theme.HelpStyle.Render("Sélectionnez une conversation"),
		)
	}

	status := ""
	if m.peerTyping {
		status = theme.HelpStyle.Render(m.partnerName() + " est en train d'écrire...")
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.viewport.View(), status, m.input.View())
}

func (m Model) renderConversation() string {
	width := max(m.viewport.Width, 10)
	var b strings.Builder
	for _, msg := range m.conversation {
		when := ui.RelativeTime(msg.Timestamp.Time, m.now())
		if msg.SenderID == m.self {
			b.WriteString(theme.OwnMessageStyle.Width(width).Render(msg.Message))
			b.WriteString("\n")
			b.WriteString(theme.HelpStyle.Width(width).Align(lipgloss.Right).Render(when))
		} else {
			b.WriteString(theme.PeerMessageStyle.Width(width).Render(msg.Message))
			b.WriteString("\n")
			b.WriteString(theme.HelpStyle.Render(when))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) partnerName() string {
	for _, p := range m.partners {
		if p.ID == m.openWith && p.Name != "" {
			return p.Name
		}
	}
	return fmt.Sprintf("#%d", m.openWith)
}

// SetSize updates the chat view dimensions.
func (m *Model) SetSize(width, height int) {
	m.layout = ui.Layout{Width: width, Height: height}
	right := max(width-partnersWidth, 10)
	m.viewport.Width = right
	m.viewport.Height = max(height-2, 1)
	m.input.Width = right - 4
}
