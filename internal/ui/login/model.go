package login

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/brancard/internal/theme"
)

// SubmitMsg is dispatched when the user completes the login form.
type SubmitMsg struct {
	Username   string
	Password   string
	RememberMe bool
}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	username   string
	password   string
	rememberMe bool
}

// Model is the sign-in form.
type Model struct {
	form    *huh.Form
	fb      *formBindings
	err     string
	pending bool
	width   int
	height  int
}

// New creates a new login form model.
func New(width, height int) Model {
	return Model{fb: &formBindings{}, width: width, height: height}
}

// Start resets the form, keeping the last username.
func (m *Model) Start() tea.Cmd {
	m.fb.password = ""
	m.pending = false
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Nom d'utilisateur").
				Value(&m.fb.username).
				Validate(required("Nom d'utilisateur")),
			huh.NewInput().
				Title("Mot de passe").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.password).
				Validate(required("Mot de passe")),
			huh.NewConfirm().
				Title("Se souvenir de moi").
				Affirmative("Oui").
				Negative("Non").
				Value(&m.fb.rememberMe),
		),
	).WithWidth(m.formWidth()).WithShowHelp(false)
	return m.form.Init()
}

// SetError shows err under the form and reopens it for another attempt.
func (m *Model) SetError(err string) tea.Cmd {
	m.err = err
	return m.Start()
}

// Pending reports whether a submitted login is in flight.
func (m Model) Pending() bool {
	return m.pending
}

// Update handles messages for the login form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil || m.pending {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.pending = true
		m.err = ""
		submit := SubmitMsg{
			Username:   strings.TrimSpace(m.fb.username),
			Password:   m.fb.password,
			RememberMe: m.fb.rememberMe,
		}
		return m, func() tea.Msg { return submit }
	case huh.StateAborted:
		return m, m.Start()
	}

	return m, cmd
}

// View renders the form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1).
		Render("Connexion")

	body := m.form.View()
	if m.pending {
		body = theme.HelpStyle.Render("Connexion en cours...")
	}

	content := []string{title, body}
	if m.err != "" {
		content = append(content, lipgloss.NewStyle().Foreground(theme.ColorRed).Render(m.err))
	}

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, content...))
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	if m.form != nil {
		m.form = m.form.WithWidth(m.formWidth())
	}
}

func (m Model) formWidth() int {
	return min(max(m.width-4, 20), 60)
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s est requis", field)
		}
		return nil
	}
}
