package dutyview

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/brancard/internal/keys"
	"github.com/nhle/brancard/internal/model"
	"github.com/nhle/brancard/internal/state"
	"github.com/nhle/brancard/internal/theme"
	"github.com/nhle/brancard/internal/ui"
)

// OpenTicketMsg is dispatched when an assigned ticket is opened.
type OpenTicketMsg struct {
	ID int64
}

// LoadRoutesMsg asks the root model to fetch the selectable work routes.
type LoadRoutesMsg struct{}

// SelectRouteMsg is dispatched when the porter picks a work route.
type SelectRouteMsg struct {
	ID int64
}

// RefreshMsg asks the root model to reload the porter profile.
type RefreshMsg struct{}

type mode int

const (
	modeList mode = iota
	modePicker
)

// routeBindings keeps the picked route on the heap so huh's Value pointer
// survives model copies.
type routeBindings struct {
	route int64
}

// Model is the porter screen: profile, work route and assigned tickets.
type Model struct {
	keys   *keys.KeyMap
	duty   state.Duty
	cursor int

	mode mode
	form *huh.Form
	fb   *routeBindings

	width  int
	height int
}

// New creates a new duty view model.
func New(k *keys.KeyMap, width, height int) Model {
	return Model{keys: k, fb: &routeBindings{}, width: width, height: height}
}

// PickerOpen reports whether the work route picker has keyboard focus.
func (m Model) PickerOpen() bool {
	return m.mode == modePicker
}

// SetState refreshes the view from the store. A picker waiting for the
// route list is built once routes arrive.
func (m *Model) SetState(d state.Duty) tea.Cmd {
	m.duty = d
	if n := m.ticketCount(); m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
	if m.mode == modePicker && m.form == nil && len(d.WorkRoutes) > 0 {
		m.form = m.buildPicker()
		return m.form.Init()
	}
	return nil
}

// OpenPicker shows the work route picker and asks for a fresh route list.
func (m *Model) OpenPicker() tea.Cmd {
	m.mode = modePicker
	m.form = nil
	m.fb.route = 0
	if p := m.duty.Porter; p != nil && p.WorkRoute != nil {
		m.fb.route = p.WorkRoute.ID
	}
	load := func() tea.Msg { return LoadRoutesMsg{} }
	if len(m.duty.WorkRoutes) == 0 {
		return load
	}
	m.form = m.buildPicker()
	return tea.Batch(m.form.Init(), load)
}

func (m *Model) closePicker() {
	m.mode = modeList
	m.form = nil
}

func (m Model) buildPicker() *huh.Form {
	opts := make([]huh.Option[int64], 0, len(m.duty.WorkRoutes))
	for _, r := range m.duty.WorkRoutes {
		opts = append(opts, huh.NewOption(fmt.Sprintf("%s (%s)", r.Name, r.Hours()), r.ID))
	}
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int64]().
				Title("Route de travail").
				Options(opts...).
				Value(&m.fb.route),
		),
	).WithWidth(m.formWidth()).WithShowHelp(false)
}

// Update handles messages for the duty view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.mode == modePicker {
		return m.updatePicker(msg)
	}

	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(km, m.keys.Down):
		if m.cursor < m.ticketCount()-1 {
			m.cursor++
		}
	case key.Matches(km, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(km, m.keys.Select):
		if m.cursor < m.ticketCount() {
			open := OpenTicketMsg{ID: m.duty.Porter.Tickets[m.cursor].ID}
			return m, func() tea.Msg { return open }
		}
	case key.Matches(km, m.keys.WorkRoute):
		return m, m.OpenPicker()
	case key.Matches(km, m.keys.Refresh):
		return m, func() tea.Msg { return RefreshMsg{} }
	}
	return m, nil
}

func (m Model) updatePicker(msg tea.Msg) (Model, tea.Cmd) {
	if km, ok := msg.(tea.KeyMsg); ok && key.Matches(km, m.keys.Back) {
		m.closePicker()
		return m, nil
	}
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}
	switch m.form.State {
	case huh.StateCompleted:
		m.closePicker()
		if m.fb.route == 0 {
			return m, nil
		}
		pick := SelectRouteMsg{ID: m.fb.route}
		return m, func() tea.Msg { return pick }
	case huh.StateAborted:
		m.closePicker()
		return m, nil
	}
	return m, cmd
}

func (m Model) ticketCount() int {
	if m.duty.Porter == nil {
		return 0
	}
	return len(m.duty.Porter.Tickets)
}

// View renders the porter profile or the route picker.
func (m Model) View() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite).MarginBottom(1)

	if m.mode == modePicker {
		body := theme.HelpStyle.Render("Chargement des routes...")
		if m.form != nil {
			body = m.form.View()
		}
		return lipgloss.NewStyle().Padding(1, 2).Render(
			lipgloss.JoinVertical(lipgloss.Left, title.Render("Choisir une route"), body),
		)
	}

	p := m.duty.Porter
	if p == nil {
		text := "Aucun profil de brancardier"
		if m.duty.Loading {
			text = "Chargement..."
		}
		if m.duty.Error != "" {
			text = m.duty.Error
		}
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, theme.HelpStyle.Render(text))
	}

	sections := []string{
		title.Render(p.FullName() + " · " + p.Status.Label()),
		m.renderRoute(p.WorkRoute),
	}
	if m.duty.Error != "" {
		sections = append(sections, lipgloss.NewStyle().Foreground(theme.ColorRed).Render(m.duty.Error))
	}
	sections = append(sections, "", m.renderTickets(p.Tickets))

	return lipgloss.NewStyle().Padding(0, 1).Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m Model) renderRoute(r *model.WorkRoute) string {
	if r == nil {
		return theme.HelpStyle.Render("Aucune route de travail · w pour en choisir une")
	}
	line := fmt.Sprintf("Route: %s (%s)", r.Name, r.Hours())
	if len(r.Breaks) > 0 {
		breaks := make([]string, 0, len(r.Breaks))
		for _, b := range r.Breaks {
			breaks = append(breaks, b.Name+" "+b.Hours())
		}
		line += " · pauses: " + strings.Join(breaks, ", ")
	}
	return ui.Truncate(line, m.width-2)
}

func (m Model) renderTickets(tickets []model.PorterTicket) string {
	if len(tickets) == 0 {
		return theme.HelpStyle.Render("Aucun ticket assigné")
	}

	lines := make([]string, 0, len(tickets)+1)
	lines = append(lines, lipgloss.NewStyle().Bold(true).Render("Tickets assignés"))
	for i, t := range tickets {
		line := fmt.Sprintf("#%d  %s  %s → %s",
			t.ID,
			t.Status.Label(),
			model.Describe(t.ServiceFrom, t.BedFrom),
			model.Describe(t.ServiceTo, t.BedTo),
		)
		if t.Type != "" {
			line += "  " + model.TicketTypeLabel(t.Type)
		}
		line = ui.Truncate(line, m.width-4)
		if i == m.cursor {
			lines = append(lines, theme.SelectedItemStyle.Render(line))
		} else {
			lines = append(lines, theme.ListItemStyle.Render(line))
		}
	}
	return strings.Join(lines, "\n")
}

// SetSize updates the view dimensions.
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
