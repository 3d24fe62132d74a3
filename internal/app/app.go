package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/nhle/brancard/internal/auth"
	"github.com/nhle/brancard/internal/keys"
	"github.com/nhle/brancard/internal/lifecycle"
	"github.com/nhle/brancard/internal/model"
	"github.com/nhle/brancard/internal/state"
	"github.com/nhle/brancard/internal/theme"
	"github.com/nhle/brancard/internal/ui"
	"github.com/nhle/brancard/internal/ui/chatview"
	"github.com/nhle/brancard/internal/ui/command"
	"github.com/nhle/brancard/internal/ui/dutyview"
	helpview "github.com/nhle/brancard/internal/ui/help"
	"github.com/nhle/brancard/internal/ui/login"
	"github.com/nhle/brancard/internal/ui/notiflist"
	"github.com/nhle/brancard/internal/ui/ticketview"
	"github.com/nhle/brancard/internal/ui/tray"
)

const (
	toastTTL     = 4 * time.Second
	trayTTL      = 8 * time.Second
	maxTrayLines = 3
)

const msgPasswordReset = "Vous devez réinitialiser votre mot de passe avant de vous connecter."

// Client is what the UI needs from the realtime client. HandleAppState,
// SendTyping, CloseChat and CloseTicket are called from the update loop in
// event order and must not block.
type Client interface {
	State() *state.Store
	Start(ctx context.Context) error
	Login(ctx context.Context, username, password string, rememberMe bool) error
	Logout(ctx context.Context, forced bool) error
	HandleAppState(ctx context.Context, s lifecycle.AppState)
	Refresh(ctx context.Context) error
	MarkRead(ctx context.Context, id int64) error
	MarkAllRead(ctx context.Context) error
	OpenNotification(data model.NotificationData)
	OpenChat(id int64)
	CloseChat()
	SendMessage(ctx context.Context, receiver int64, text string) error
	SendTyping(ctx context.Context, receiver int64, isTyping bool)
	OpenTicket(ctx context.Context, id int64) error
	CloseTicket()
	ChangeTicketStatus(ctx context.Context, id int64, action model.TicketAction, req *model.StatusChangeRequest) error
	LoadWorkRoutes(ctx context.Context) error
	SelectWorkRoute(ctx context.Context, id int64) error
	LeaveWorkRoute(ctx context.Context) error
	EndWorkRoute(ctx context.Context) error
}

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewStarting ViewState = iota
	ViewLogin
	ViewNotifications
	ViewChat
	ViewDuty
	ViewTicket
	ViewHelp
	ViewCommand
)

type startedMsg struct {
	err  error
	snap state.Snapshot
}

type stateChangedMsg struct {
	snap state.Snapshot
}

type loginResultMsg struct {
	err error
}

type trayMsg struct {
	entry tray.Entry
}

type trayExpiredMsg struct {
	identifier string
}

type toastExpiredMsg struct {
	toast model.Toast
}

// actionDoneMsg ends a fire-and-forget client call. Failures already reach
// the user through the store.
type actionDoneMsg struct {
	op  string
	err error
}

// Model is the root Bubble Tea model that routes between views and feeds
// the client with user intents and terminal focus changes.
type Model struct {
	ctx    context.Context
	client Client
	tray   *tray.Tray
	log    zerolog.Logger

	currentView  ViewState
	previousView ViewState
	ticketFrom   ViewState
	layout       ui.Layout
	keys         *keys.KeyMap
	ready        bool

	loginView   login.Model
	notifView   notiflist.Model
	chatView    chatview.Model
	dutyView    dutyview.Model
	ticketView  ticketview.Model
	helpView    helpview.Model
	commandView command.Model

	started   bool
	snap      state.Snapshot
	toastID   string
	trayItems []tray.Entry
	err       error
}

// New creates the root model. t may be nil when local notifications are
// not shown in the terminal.
func New(ctx context.Context, c Client, t *tray.Tray, logger zerolog.Logger) Model {
	k := keys.DefaultKeyMap()
	return Model{
		ctx:         ctx,
		client:      c,
		tray:        t,
		log:         logger.With().Str("component", "ui").Logger(),
		currentView: ViewStarting,
		keys:        k,
		loginView:   login.New(80, 24),
		notifView:   notiflist.New(k, 80, 24),
		chatView:    chatview.New(k, 80, 24),
		dutyView:    dutyview.New(k, 80, 24),
		ticketView:  ticketview.New(k, 80, 24),
		helpView:    helpview.New(k, 80, 24),
		commandView: command.New(80),
	}
}

// Err returns the fatal error that ended the program, if any.
func (m Model) Err() error {
	return m.err
}

// Init starts the client and subscribes to state and tray updates.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.start(),
		m.waitForChanges(),
		m.waitForTray(),
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		m.resize()
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case tea.FocusMsg, tea.ResumeMsg:
		m.client.HandleAppState(m.ctx, lifecycle.AppActive)
		return m, nil

	case tea.BlurMsg:
		m.client.HandleAppState(m.ctx, lifecycle.AppBackground)
		return m, nil

	case startedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.started = true
		return m.applySnapshot(msg.snap)

	case stateChangedMsg:
		next, cmd := m.applySnapshot(msg.snap)
		return next, tea.Batch(cmd, next.waitForChanges())

	case toastExpiredMsg:
		s := m.client.State()
		t := msg.toast
		return m, func() tea.Msg {
			s.ClearToast(t)
			return nil
		}

	case trayMsg:
		m.trayItems = append([]tray.Entry{msg.entry}, m.trayItems...)
		if len(m.trayItems) > maxTrayLines {
			m.trayItems = m.trayItems[:maxTrayLines]
		}
		m.resize()
		id := msg.entry.Notification.Identifier
		return m, tea.Batch(
			m.waitForTray(),
			tea.Tick(trayTTL, func(time.Time) tea.Msg { return trayExpiredMsg{identifier: id} }),
		)

	case trayExpiredMsg:
		kept := make([]tray.Entry, 0, len(m.trayItems))
		for _, e := range m.trayItems {
			if e.Notification.Identifier != msg.identifier {
				kept = append(kept, e)
			}
		}
		m.trayItems = kept
		m.resize()
		return m, nil

	case login.SubmitMsg:
		return m, m.login(msg)

	case loginResultMsg:
		switch {
		case msg.err == nil:
			m.currentView = ViewNotifications
			return m, nil
		case errors.Is(msg.err, auth.ErrPasswordResetRequired):
			return m, m.loginView.SetError(msgPasswordReset)
		default:
			return m, m.loginView.SetError("")
		}

	case notiflist.OpenMsg:
		cmds := []tea.Cmd{m.do("open notification", func(ctx context.Context) error {
			m.client.OpenNotification(msg.Data)
			return nil
		})}
		if !msg.Read {
			cmds = append(cmds, m.markRead(msg.ID))
		}
		if id := model.TicketFromRedirect(msg.Data.RedirectURL); id > 0 {
			cmds = append(cmds, m.openTicket(id))
		}
		return m, tea.Batch(cmds...)

	case notiflist.MarkReadMsg:
		return m, m.markRead(msg.ID)

	case notiflist.MarkAllReadMsg:
		return m, m.do("mark all read", m.client.MarkAllRead)

	case notiflist.RefreshMsg:
		return m, m.do("refresh", m.client.Refresh)

	case chatview.OpenMsg:
		return m, m.do("open chat", func(context.Context) error {
			m.client.OpenChat(msg.With)
			return nil
		})

	case chatview.CloseMsg:
		m.client.CloseChat()
		return m, nil

	case chatview.SendMsg:
		return m, m.do("send message", func(ctx context.Context) error {
			return m.client.SendMessage(ctx, msg.To, msg.Text)
		})

	case dutyview.OpenTicketMsg:
		return m, m.openTicket(msg.ID)

	case dutyview.LoadRoutesMsg:
		return m, m.do("load work routes", m.client.LoadWorkRoutes)

	case dutyview.SelectRouteMsg:
		return m, m.do("select work route", func(ctx context.Context) error {
			return m.client.SelectWorkRoute(ctx, msg.ID)
		})

	case dutyview.RefreshMsg:
		return m, m.do("refresh", m.client.Refresh)

	case ticketview.ChangeStatusMsg:
		return m, m.do("change ticket status", func(ctx context.Context) error {
			return m.client.ChangeTicketStatus(ctx, msg.ID, msg.Action, msg.Req)
		})

	case ticketview.CloseMsg:
		return m, m.switchTo(m.ticketFrom)

	case actionDoneMsg:
		if msg.err != nil {
			m.log.Debug().Err(msg.err).Str("op", msg.op).Msg("action failed")
		}
		return m, nil

	case command.CancelMsg:
		m.closePalette()
		return m, nil

	case command.CommandMsg:
		m.closePalette()
		return m, m.executeCommand(msg)

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if key.Matches(msg, m.keys.Suspend) {
			m.client.HandleAppState(m.ctx, lifecycle.AppBackground)
			return m, tea.Suspend
		}
		if !m.capturingInput() {
			if mdl, cmd, ok := m.handleGlobalKey(msg); ok {
				return mdl, cmd
			}
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// capturingInput reports whether keystrokes belong to a text input.
func (m Model) capturingInput() bool {
	switch m.currentView {
	case ViewLogin, ViewCommand, ViewStarting:
		return true
	case ViewChat:
		return m.chatView.InputFocused()
	case ViewDuty:
		return m.dutyView.PickerOpen()
	case ViewTicket:
		return m.ticketView.FormOpen()
	default:
		return false
	}
}

func (m Model) handleGlobalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit, true

	case key.Matches(msg, m.keys.Help):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return m, nil, true
		}
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return m, nil, true

	case key.Matches(msg, m.keys.Command):
		m.previousView = m.currentView
		m.currentView = ViewCommand
		return m, m.commandView.Focus(), true

	case key.Matches(msg, m.keys.Notifications):
		return m, m.switchTo(ViewNotifications), true

	case key.Matches(msg, m.keys.Chat):
		return m, m.switchTo(ViewChat), true

	case key.Matches(msg, m.keys.Duty):
		return m, m.switchTo(ViewDuty), true

	case key.Matches(msg, m.keys.Back):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return m, nil, true
		}
	}
	return m, nil, false
}

func (m *Model) closePalette() {
	if m.currentView == ViewCommand {
		m.currentView = m.previousView
	}
}

// switchTo changes the main view, leaving the open conversation or ticket
// when their view is left.
func (m *Model) switchTo(v ViewState) tea.Cmd {
	if m.currentView == v {
		return nil
	}
	var cmd tea.Cmd
	switch m.currentView {
	case ViewChat:
		if m.chatView.OpenWith() != 0 {
			cmd = m.updateChat(tea.KeyMsg{Type: tea.KeyEsc})
		}
	case ViewTicket:
		m.client.CloseTicket()
	}
	if v == ViewTicket {
		m.ticketFrom = m.currentView
	}
	m.currentView = v
	return cmd
}

// openTicket shows ticket id. Closing it returns to the view it was opened
// from.
func (m *Model) openTicket(id int64) tea.Cmd {
	leave := m.switchTo(ViewTicket)
	if m.ticketFrom != ViewNotifications && m.ticketFrom != ViewChat {
		m.ticketFrom = ViewDuty
	}
	return tea.Batch(leave, m.do("open ticket", func(ctx context.Context) error {
		return m.client.OpenTicket(ctx, id)
	}))
}

// updateChat forwards msg to the chat view and hands its typing changes to
// the client in keystroke order.
func (m *Model) updateChat(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	m.chatView, cmd = m.chatView.Update(msg)
	for _, ev := range m.chatView.TakeTyping() {
		m.client.SendTyping(m.ctx, ev.To, ev.Typing)
	}
	return cmd
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewLogin:
		m.loginView, cmd = m.loginView.Update(msg)
	case ViewNotifications:
		m.notifView, cmd = m.notifView.Update(msg)
	case ViewChat:
		cmd = m.updateChat(msg)
	case ViewDuty:
		m.dutyView, cmd = m.dutyView.Update(msg)
	case ViewTicket:
		m.ticketView, cmd = m.ticketView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	}

	return m, cmd
}

// applySnapshot refreshes every view from the store and, once the client
// has started, follows identity changes: signing out from anywhere returns
// to the login form.
func (m Model) applySnapshot(snap state.Snapshot) (Model, tea.Cmd) {
	m.snap = snap
	var cmds []tea.Cmd

	cmds = append(cmds, m.notifView.SetNotifications(
		snap.Notifications.Items, snap.Notifications.Loading, snap.Notifications.Error,
	))
	var self int64
	if snap.Identity != nil {
		self = snap.Identity.ID
	}
	m.chatView.SetState(snap.Chat, self)
	cmds = append(cmds, m.dutyView.SetState(snap.Duty))
	m.ticketView.SetState(snap.Ticket)

	switch {
	case !m.started:
	case snap.Identity == nil && m.currentView != ViewLogin:
		if m.currentView == ViewChat && m.chatView.OpenWith() != 0 {
			m.updateChat(tea.KeyMsg{Type: tea.KeyEsc})
		}
		m.currentView = ViewLogin
		cmds = append(cmds, m.loginView.Start())
	case snap.Identity != nil && (m.currentView == ViewStarting ||
		m.currentView == ViewLogin && !m.loginView.Pending()):
		m.currentView = ViewNotifications
	}

	if t := snap.Toast; t != nil && t.ID.String() != m.toastID {
		m.toastID = t.ID.String()
		toast := *t
		cmds = append(cmds, tea.Tick(toastTTL, func(time.Time) tea.Msg {
			return toastExpiredMsg{toast: toast}
		}))
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) resize() {
	if !m.ready {
		return
	}
	m.layout = m.layout.WithTray(len(m.trayItems))
	w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
	m.loginView.SetSize(w, h)
	m.notifView.SetSize(w, h)
	m.chatView.SetSize(w, h)
	m.dutyView.SetSize(w, h)
	m.ticketView.SetSize(w, h)
	m.helpView.SetSize(w, h)
	m.commandView.SetSize(w, h)
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Chargement..."
	}

	header := m.layout.RenderHeader(m.headerTitle(), m.connectionStatus())
	return m.layout.RenderWithFrame(header, m.renderTray(), m.renderContent(), m.renderStatusBar())
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewLogin:
		return m.loginView.View()
	case ViewNotifications:
		return m.notifView.View()
	case ViewChat:
		return m.chatView.View()
	case ViewDuty:
		return m.dutyView.View()
	case ViewTicket:
		return m.ticketView.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	default:
		return theme.HelpStyle.Render("Chargement...")
	}
}

func (m Model) headerTitle() string {
	title := "Brancardage"
	if id := m.snap.Identity; id != nil {
		title += " · " + id.Name
	}
	if n := m.snap.Notifications.UnreadCount; n > 0 {
		title += fmt.Sprintf(" [%d non lues]", n)
	}
	return title
}

// connectionStatus shows both hub flags and the current route.
func (m Model) connectionStatus() string {
	c := m.snap.Connections
	status := lipgloss.JoinHorizontal(lipgloss.Top,
		theme.HeaderStyle.Render("notif"),
		theme.ConnectionStyle(c.Notifications).Render("●"),
		theme.HeaderStyle.Render("chat"),
		theme.ConnectionStyle(c.Chat).Render("●"),
	)
	if m.snap.Route != "" && m.snap.Route != "/" {
		status = lipgloss.JoinHorizontal(lipgloss.Top, theme.HeaderStyle.Render(m.snap.Route), status)
	}
	return status
}

func (m Model) renderTray() string {
	if len(m.trayItems) == 0 {
		return ""
	}
	lines := make([]string, 0, len(m.trayItems))
	for _, e := range m.trayItems {
		n := e.Notification
		text := "🔔 " + n.Title
		if n.Body != "" {
			text += " · " + n.Body
		}
		lines = append(lines, theme.ChannelStyle(e.Channel.LightColor).Render(ui.Truncate(text, m.layout.Width-2)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderStatusBar() string {
	if t := m.snap.Toast; t != nil {
		if t.Error != "" {
			return m.layout.RenderStatusBar(t.Error, theme.ErrorBarStyle)
		}
		return m.layout.RenderStatusBar(t.Text(), theme.StatusBarStyle)
	}
	return m.layout.RenderStatusBar(m.keyHints(), theme.StatusBarStyle)
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewLogin:
		return "tab next | enter submit | ctrl+c quit"
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | tab complete | esc back"
	case ViewChat:
		if m.chatView.InputFocused() {
			return "enter send | esc leave conversation"
		}
		return "enter open | n notifications | : command | ? help | q quit"
	case ViewDuty:
		if m.dutyView.PickerOpen() {
			return "enter choose | esc cancel"
		}
		return "enter open ticket | w work route | r refresh | n notifications | : command | q quit"
	case ViewTicket:
		if m.ticketView.FormOpen() {
			return "tab next | enter confirm | esc cancel"
		}
		return "1-9 action | esc back | p porter | : command | q quit"
	default:
		return "enter open | m read | M read all | r refresh | c chat | : command | q quit"
	}
}

// executeCommand handles a command from the command palette.
func (m *Model) executeCommand(cmd command.CommandMsg) tea.Cmd {
	switch cmd.Name {
	case "refresh":
		return m.do("refresh", m.client.Refresh)
	case "read all":
		return m.do("mark all read", m.client.MarkAllRead)
	case "notifications":
		return m.switchTo(ViewNotifications)
	case "chat":
		leave := m.switchTo(ViewChat)
		id, ok := argID(cmd.Args)
		if !ok {
			return leave
		}
		return tea.Batch(leave, m.chatView.Open(id))
	case "porter":
		return m.switchTo(ViewDuty)
	case "ticket":
		id, ok := argID(cmd.Args)
		if !ok {
			return nil
		}
		return m.openTicket(id)
	case "routes":
		leave := m.switchTo(ViewDuty)
		return tea.Batch(leave, m.dutyView.OpenPicker())
	case "route":
		id, ok := argID(cmd.Args)
		if !ok {
			return nil
		}
		return m.do("select work route", func(ctx context.Context) error {
			return m.client.SelectWorkRoute(ctx, id)
		})
	case "leave route":
		return m.do("leave work route", m.client.LeaveWorkRoute)
	case "end route":
		return m.do("end work route", m.client.EndWorkRoute)
	case "logout":
		return m.do("logout", func(ctx context.Context) error {
			return m.client.Logout(ctx, false)
		})
	case "quit":
		return tea.Quit
	default:
		return nil
	}
}

// argID parses the first command argument as a positive id.
func argID(args []string) (int64, bool) {
	if len(args) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// start runs the client start sequence and reports the resulting state.
func (m Model) start() tea.Cmd {
	ctx, c := m.ctx, m.client
	return func() tea.Msg {
		err := c.Start(ctx)
		return startedMsg{err: err, snap: c.State().Snapshot()}
	}
}

func (m Model) login(req login.SubmitMsg) tea.Cmd {
	ctx, c := m.ctx, m.client
	return func() tea.Msg {
		return loginResultMsg{err: c.Login(ctx, req.Username, req.Password, req.RememberMe)}
	}
}

func (m Model) markRead(id int64) tea.Cmd {
	return m.do("mark read", func(ctx context.Context) error {
		return m.client.MarkRead(ctx, id)
	})
}

// do runs fn off the update loop.
func (m Model) do(op string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return actionDoneMsg{op: op, err: fn(ctx)}
	}
}

// waitForChanges blocks until the store signals a mutation.
func (m Model) waitForChanges() tea.Cmd {
	ctx, s := m.ctx, m.client.State()
	return func() tea.Msg {
		select {
		case <-s.Changes():
			return stateChangedMsg{snap: s.Snapshot()}
		case <-ctx.Done():
			return nil
		}
	}
}

// waitForTray blocks until a local notification is raised.
func (m Model) waitForTray() tea.Cmd {
	if m.tray == nil {
		return nil
	}
	ctx, entries := m.ctx, m.tray.Entries()
	return func() tea.Msg {
		select {
		case e := <-entries:
			return trayMsg{entry: e}
		case <-ctx.Done():
			return nil
		}
	}
}
