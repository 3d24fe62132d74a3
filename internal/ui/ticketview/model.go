package ticketview

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/brancard/internal/keys"
	"github.com/nhle/brancard/internal/model"
	"github.com/nhle/brancard/internal/state"
	"github.com/nhle/brancard/internal/theme"
)

// ChangeStatusMsg asks the root model to apply a transition to a ticket.
type ChangeStatusMsg struct {
	ID     int64
	Action model.TicketAction
	Req    *model.StatusChangeRequest
}

// CloseMsg is dispatched when the ticket detail is left.
type CloseMsg struct{}

const timeLayout = "02/01 15:04"

type mode int

const (
	modeDetail mode = iota
	modeReason
)

// reasonBindings holds the reason form values on the heap so huh's Value
// pointers stay valid across model copies.
type reasonBindings struct {
	reason string
	custom string
}

// Model is the ticket detail with its history and the porter's actions.
type Model struct {
	keys   *keys.KeyMap
	ticket state.Ticket

	mode   mode
	action model.TicketAction
	form   *huh.Form
	fb     *reasonBindings

	width  int
	height int
}

// New creates a new ticket view model.
func New(k *keys.KeyMap, width, height int) Model {
	return Model{keys: k, fb: &reasonBindings{}, width: width, height: height}
}

// FormOpen reports whether the reason form has keyboard focus.
func (m Model) FormOpen() bool {
	return m.mode == modeReason
}

// SetState refreshes the view from the store. The reason form is dropped
// when its ticket is no longer shown.
func (m *Model) SetState(t state.Ticket) {
	if t.ID != m.ticket.ID {
		m.closeForm()
	}
	m.ticket = t
}

// actions lists the transitions offered for the loaded ticket.
func (m Model) actions() []model.TicketAction {
	if m.ticket.Current == nil {
		return nil
	}
	return model.ActionsFor(m.ticket.Current.Status)
}

// Update handles messages for the ticket view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.mode == modeReason {
		return m.updateForm(msg)
	}

	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(km, m.keys.Back):
		return m, func() tea.Msg { return CloseMsg{} }
	case key.Matches(km, m.keys.Action):
		n, err := strconv.Atoi(km.String())
		actions := m.actions()
		if err != nil || n < 1 || n > len(actions) {
			return m, nil
		}
		return m.choose(actions[n-1])
	}
	return m, nil
}

// choose emits action, asking for a reason first when it needs one.
func (m Model) choose(action model.TicketAction) (Model, tea.Cmd) {
	if !action.NeedsReason() {
		change := ChangeStatusMsg{ID: m.ticket.ID, Action: action}
		return m, func() tea.Msg { return change }
	}
	m.mode = modeReason
	m.action = action
	m.fb.reason = action.Reasons()[0].Code
	m.fb.custom = ""
	m.form = m.buildReasonForm()
	return m, m.form.Init()
}

func (m *Model) closeForm() {
	m.mode = modeDetail
	m.form = nil
}

func (m Model) buildReasonForm() *huh.Form {
	reasons := m.action.Reasons()
	opts := make([]huh.Option[string], 0, len(reasons))
	for _, r := range reasons {
		opts = append(opts, huh.NewOption(r.Label, r.Code))
	}
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Raison").
				Options(opts...).
				Value(&m.fb.reason),
			huh.NewInput().
				Title("Précision").
				Value(&m.fb.custom).
				Validate(customReason(m.fb)),
		),
	).WithWidth(m.formWidth()).WithShowHelp(false)
}

func (m Model) updateForm(msg tea.Msg) (Model, tea.Cmd) {
	if km, ok := msg.(tea.KeyMsg); ok && key.Matches(km, m.keys.Back) {
		m.closeForm()
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}
	switch m.form.State {
	case huh.StateCompleted:
		m.closeForm()
		change := ChangeStatusMsg{ID: m.ticket.ID, Action: m.action, Req: request(m.fb)}
		return m, func() tea.Msg { return change }
	case huh.StateAborted:
		m.closeForm()
		return m, nil
	}
	return m, cmd
}

func isOther(code string) bool {
	return code == model.ReasonRefusedOther || code == model.ReasonAbandonedOther
}

// customReason requires an explanation when the "other" reason is picked.
func customReason(fb *reasonBindings) func(string) error {
	return func(s string) error {
		if isOther(fb.reason) && strings.TrimSpace(s) == "" {
			return errors.New("précisez la raison")
		}
		return nil
	}
}

// request builds the status change body. The explanation is only sent
// with an "other" reason.
func request(fb *reasonBindings) *model.StatusChangeRequest {
	req := &model.StatusChangeRequest{Reason: fb.reason}
	if isOther(fb.reason) {
		req.CustomReason = strings.TrimSpace(fb.custom)
	}
	return req
}

// View renders the ticket detail or the reason form.
func (m Model) View() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite).MarginBottom(1)

	if m.mode == modeReason {
		return lipgloss.NewStyle().Padding(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left,
			title.Render(fmt.Sprintf("%s le ticket #%d", m.action.Label(), m.ticket.ID)),
			m.form.View(),
		))
	}

	t := m.ticket.Current
	if t == nil {
		text := fmt.Sprintf("Chargement du ticket #%d...", m.ticket.ID)
		if m.ticket.Error != "" {
			text = m.ticket.Error
		}
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, theme.HelpStyle.Render(text))
	}

	heading := fmt.Sprintf("Ticket #%d", t.ID)
	if t.Type != "" {
		heading += " · " + model.TicketTypeLabel(t.Type)
	}
	sections := []string{title.Render(heading), m.renderFields(t)}
	if h := m.renderHistory(t.Events); h != "" {
		sections = append(sections, "", h)
	}
	sections = append(sections, "", m.renderActions())
	return lipgloss.NewStyle().Padding(0, 1).Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m Model) renderFields(t *model.Ticket) string {
	label := lipgloss.NewStyle().Foreground(theme.ColorGray).Width(16)
	var rows []string
	add := func(name, value string) {
		if value != "" {
			rows = append(rows, label.Render(name)+value)
		}
	}

	status := t.Status.Label()
	if m.ticket.Loading {
		status += theme.HelpStyle.Render(" (actualisation...)")
	}
	add("Statut", status)
	add("Départ", model.Describe(t.ServiceFrom, t.BedFrom))
	add("Arrivée", model.Describe(t.ServiceTo, t.BedTo))
	if t.IsStat {
		add("Priorité", lipgloss.NewStyle().Foreground(theme.ColorRed).Render("STAT"))
	} else if t.Priority > 0 {
		add("Priorité", strconv.Itoa(t.Priority))
	}
	if t.ScheduledAt != nil {
		add("Prévu", t.ScheduledAt.Local().Format(timeLayout))
	}
	add("Dossier patient", t.PatientFileNumber)
	if t.PorterCount > 1 {
		add("Brancardiers", strconv.Itoa(t.PorterCount))
	}
	if t.IsInConfinement {
		add("Isolement", "Oui")
	}
	if t.ReturnEquipment {
		add("Matériel", "À retourner")
	}
	add("Notes", t.Notes)
	return strings.Join(rows, "\n")
}

func (m Model) renderHistory(events []model.TicketStatusEvent) string {
	if len(events) == 0 {
		return ""
	}
	lines := []string{lipgloss.NewStyle().Bold(true).Render("Historique")}
	for _, ev := range events {
		line := ev.Timestamp.Local().Format(timeLayout) + "  " + ev.To.EventLabel()
		if reason := strings.TrimSpace(ev.CustomReason); reason != "" {
			line += theme.DimmedStyle.Render(" · " + reason)
		}
		lines = append(lines, "  "+line)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderActions() string {
	actions := m.actions()
	if len(actions) == 0 {
		return theme.HelpStyle.Render("Aucune action disponible · esc retour")
	}
	parts := make([]string, 0, len(actions))
	for i, a := range actions {
		parts = append(parts, fmt.Sprintf("%s %s", theme.UnreadBadgeStyle.Render(strconv.Itoa(i+1)), a.Label()))
	}
	return strings.Join(parts, "   ")
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
