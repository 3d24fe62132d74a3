package command

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/brancard/internal/theme"
)

// Commands understood by the root model. They double as input suggestions.
var Commands = []string{
	"refresh",
	"read all",
	"notifications",
	"chat",
	"porter",
	"ticket",
	"routes",
	"route",
	"leave route",
	"end route",
	"logout",
	"quit",
}

// CommandMsg is emitted when the user executes a command.
type CommandMsg struct {
	Name string
	Args []string
}

// CancelMsg is emitted when the palette is dismissed without a command.
type CancelMsg struct{}

// Model is the command palette view.
type Model struct {
	input textinput.Model
	width int
}

// New creates a new command palette model.
func New(width int) Model {
	ti := textinput.New()
	ti.Placeholder = "type a command..."
	ti.Prompt = ": "
	ti.ShowSuggestions = true
	ti.SetSuggestions(Commands)
	ti.Width = width - 6

	return Model{input: ti, width: width}
}

// Parse splits a palette line into a command. Multi-word command names are
// matched before the remainder is treated as arguments.
func Parse(line string) (CommandMsg, bool) {
	line = strings.Join(strings.Fields(line), " ")
	if line == "" {
		return CommandMsg{}, false
	}
	for _, name := range Commands {
		if line == name {
			return CommandMsg{Name: name}, true
		}
		if rest, ok := strings.CutPrefix(line, name+" "); ok {
			return CommandMsg{Name: name, Args: strings.Fields(rest)}, true
		}
	}
	fields := strings.Fields(line)
	return CommandMsg{Name: fields[0], Args: fields[1:]}, true
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "enter":
			cmd, ok := Parse(m.input.Value())
			m.input.Reset()
			if !ok {
				return m, func() tea.Msg { return CancelMsg{} }
			}
			return m, func() tea.Msg { return cmd }
		case "esc":
			m.input.Reset()
			return m, func() tea.Msg { return CancelMsg{} }
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the command palette.
func (m Model) View() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1).
		Render("Command Palette")

	return theme.PanelStyle.
		Width(max(m.width-4, 0)).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, m.input.View()))
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, _ int) {
	m.width = width
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	return m.input.Focus()
}
