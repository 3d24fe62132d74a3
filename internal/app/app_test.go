package app

import (
	"context"
	"strconv"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/brancard/internal/auth"
	"github.com/nhle/brancard/internal/lifecycle"
	"github.com/nhle/brancard/internal/model"
	"github.com/nhle/brancard/internal/state"
	"github.com/nhle/brancard/internal/ui/chatview"
	"github.com/nhle/brancard/internal/ui/command"
	"github.com/nhle/brancard/internal/ui/dutyview"
	"github.com/nhle/brancard/internal/ui/login"
	"github.com/nhle/brancard/internal/ui/notiflist"
	"github.com/nhle/brancard/internal/ui/ticketview"
)

type fakeClient struct {
	store *state.Store

	mu            sync.Mutex
	appStates     []lifecycle.AppState
	read          []int64
	taps          []model.NotificationData
	typing        []chatview.TypingMsg
	sent          []chatview.SendMsg
	opened        []int64
	closed        int
	logouts       int
	loginErr      error
	tickets       []int64
	ticketsClosed int
	changes       []ticketview.ChangeStatusMsg
	routeOps      []string
}

func newFakeClient(t *testing.T) *fakeClient {
	s := state.New()
	t.Cleanup(s.Close)
	return &fakeClient{store: s}
}

func (f *fakeClient) State() *state.Store { return f.store }
func (f *fakeClient) Start(context.Context) error { return nil }

func (f *fakeClient) Login(_ context.Context, username, _ string, _ bool) error {
	if f.loginErr != nil {
		return f.loginErr
	}
	f.store.SetIdentity(model.Identity{ID: 3, Name: username})
	return nil
}

func (f *fakeClient) Logout(context.Context, bool) error {
	f.mu.Lock()
	f.logouts++
	f.mu.Unlock()
	f.store.ClearIdentity()
	return nil
}

func (f *fakeClient) HandleAppState(_ context.Context, s lifecycle.AppState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appStates = append(f.appStates, s)
}

func (f *fakeClient) Refresh(context.Context) error { return nil }
func (f *fakeClient) MarkAllRead(context.Context) error { return nil }

func (f *fakeClient) MarkRead(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read = append(f.read, id)
	return nil
}

func (f *fakeClient) OpenNotification(data model.NotificationData) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.taps = append(f.taps, data)
}

func (f *fakeClient) OpenChat(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, id)
}

func (f *fakeClient) CloseChat() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

func (f *fakeClient) SendMessage(_ context.Context, to int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, chatview.SendMsg{To: to, Text: text})
	return nil
}

func (f *fakeClient) SendTyping(_ context.Context, to int64, typing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, chatview.TypingMsg{To: to, Typing: typing})
}

func (f *fakeClient) OpenTicket(_ context.Context, id int64) error {
	f.mu.Lock()
	f.tickets = append(f.tickets, id)
	f.mu.Unlock()
	f.store.OpenTicket(id)
	return nil
}

func (f *fakeClient) CloseTicket() {
	f.mu.Lock()
	f.ticketsClosed++
	f.mu.Unlock()
	f.store.CloseTicket()
}

func (f *fakeClient) ChangeTicketStatus(
	_ context.Context,
	id int64,
	action model.TicketAction,
	req *model.StatusChangeRequest,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, ticketview.ChangeStatusMsg{ID: id, Action: action, Req: req})
	return nil
}

func (f *fakeClient) routeOp(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routeOps = append(f.routeOps, op)
	return nil
}

func (f *fakeClient) LoadWorkRoutes(context.Context) error { return f.routeOp("load") }
func (f *fakeClient) LeaveWorkRoute(context.Context) error { return f.routeOp("leave") }
func (f *fakeClient) EndWorkRoute(context.Context) error { return f.routeOp("end") }

func (f *fakeClient) SelectWorkRoute(_ context.Context, id int64) error {
	return f.routeOp("select " + strconv.FormatInt(id, 10))
}

var _ Client = (*fakeClient)(nil)

func newModel(t *testing.T) (Model, *fakeClient) {
	t.Helper()
	f := newFakeClient(t)
	m := New(context.Background(), f, nil, zerolog.Nop())
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model), f
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

// exec runs cmd and every command batched inside it, returning the
// messages produced. Only use it on commands that do not block.
func exec(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, exec(c)...)
		}
		return out
	}
	if msg == nil {
		return nil
	}
	return []tea.Msg{msg}
}

// drive feeds msg and then every message its commands produce back into
// the model. Only use it for flows that never arm the store watcher.
func drive(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	queue := []tea.Msg{msg}
	for i := 0; len(queue) > 0; i++ {
		require.Less(t, i, 50, "message loop did not settle")
		var cmd tea.Cmd
		m, cmd = update(t, m, queue[0])
		queue = append(queue[1:], exec(cmd)...)
	}
	return m
}

func started(t *testing.T, m Model, f *fakeClient) Model {
	t.Helper()
	m, _ = update(t, m, startedMsg{snap: f.store.Snapshot()})
	return m
}

func TestModel_FocusDrivesLifecycle(t *testing.T) {
	m, f := newModel(t)

	for _, msg := range []tea.Msg{tea.BlurMsg{}, tea.FocusMsg{}, tea.BlurMsg{}, tea.ResumeMsg{}} {
		var cmd tea.Cmd
		m, cmd = update(t, m, msg)
		assert.Nil(t, cmd, "transitions are handed over in the update loop")
	}

	assert.Equal(t, []lifecycle.AppState{
		lifecycle.AppBackground,
		lifecycle.AppActive,
		lifecycle.AppBackground,
		lifecycle.AppActive,
	}, f.appStates)
}

func TestModel_SuspendGoesToBackgroundFirst(t *testing.T) {
	m, f := newModel(t)

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlZ})
	require.NotNil(t, cmd)
	assert.Equal(t, []lifecycle.AppState{lifecycle.AppBackground}, f.appStates)
}

func TestModel_StartWithoutIdentityShowsLogin(t *testing.T) {
	m, f := newModel(t)
	assert.Equal(t, ViewStarting, m.currentView)

	m = started(t, m, f)
	assert.Equal(t, ViewLogin, m.currentView)
}

func TestModel_StartWithIdentityShowsNotifications(t *testing.T) {
	m, f := newModel(t)
	f.store.SetIdentity(model.Identity{ID: 3, Name: "Amine"})

	m = started(t, m, f)
	assert.Equal(t, ViewNotifications, m.currentView)
	assert.Contains(t, m.headerTitle(), "Amine")
}

func TestModel_IgnoresIdentityBeforeStart(t *testing.T) {
	m, f := newModel(t)

	m, _ = update(t, m, stateChangedMsg{snap: f.store.Snapshot()})
	assert.Equal(t, ViewStarting, m.currentView)
}

func TestModel_SignOutReturnsToLogin(t *testing.T) {
	m, f := newModel(t)
	f.store.SetIdentity(model.Identity{ID: 3})
	m = started(t, m, f)
	require.Equal(t, ViewNotifications, m.currentView)

	f.store.ClearIdentity()
	m, _ = update(t, m, stateChangedMsg{snap: f.store.Snapshot()})
	assert.Equal(t, ViewLogin, m.currentView)
}

func TestModel_LoginResult(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		m, f := newModel(t)
		m = started(t, m, f)

		m, cmd := update(t, m, login.SubmitMsg{Username: "amine", Password: "x"})
		msgs := exec(cmd)
		require.Len(t, msgs, 1)

		m, _ = update(t, m, msgs[0])
		assert.Equal(t, ViewNotifications, m.currentView)
	})

	t.Run("password reset", func(t *testing.T) {
		m, f := newModel(t)
		f.loginErr = auth.ErrPasswordResetRequired
		m = started(t, m, f)

		m, _ = update(t, m, loginResultMsg{err: f.loginErr})
		assert.Equal(t, ViewLogin, m.currentView)
		assert.Contains(t, m.loginView.View(), msgPasswordReset)
	})
}

func TestModel_OpenNotificationMarksRead(t *testing.T) {
	m, f := newModel(t)
	f.store.SetIdentity(model.Identity{ID: 3})
	m = started(t, m, f)

	data := model.NotificationData{ID: 5, RedirectURL: "/chat"}
	_, cmd := update(t, m, notiflist.OpenMsg{ID: 5, Data: data})
	exec(cmd)
	assert.Equal(t, []model.NotificationData{data}, f.taps)
	assert.Equal(t, []int64{5}, f.read)
	assert.Empty(t, f.tickets)

	_, cmd = update(t, m, notiflist.OpenMsg{ID: 6, Read: true})
	exec(cmd)
	assert.Equal(t, []int64{5}, f.read, "already read")
}

func TestModel_ChatIntents(t *testing.T) {
	m, f := newModel(t)
	f.store.SetIdentity(model.Identity{ID: 3})
	m = started(t, m, f)

	m = drive(t, m, command.CommandMsg{Name: "chat", Args: []string{"7"}})
	require.True(t, m.chatView.InputFocused())

	for _, r := range "ok" {
		m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	m = drive(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	drive(t, m, tea.KeyMsg{Type: tea.KeyEsc})

	assert.Equal(t, []int64{7}, f.opened)
	assert.Equal(t, []chatview.TypingMsg{
		{To: 7, Typing: true},
		{To: 7, Typing: true},
		{To: 7, Typing: false},
	}, f.typing, "typing changes arrive in keystroke order")
	assert.Equal(t, []chatview.SendMsg{{To: 7, Text: "ok"}}, f.sent)
	assert.Equal(t, 1, f.closed)
}

func TestModel_Commands(t *testing.T) {
	m, f := newModel(t)
	f.store.SetIdentity(model.Identity{ID: 3})
	m = started(t, m, f)

	m = drive(t, m, command.CommandMsg{Name: "chat", Args: []string{"7"}})
	assert.Equal(t, ViewChat, m.currentView)
	assert.Equal(t, int64(7), m.chatView.OpenWith())
	assert.Equal(t, []int64{7}, f.opened)

	m = drive(t, m, command.CommandMsg{Name: "notifications"})
	assert.Equal(t, ViewNotifications, m.currentView)
	assert.Equal(t, 1, f.closed, "leaving chat closes the conversation")

	drive(t, m, command.CommandMsg{Name: "logout"})
	assert.Equal(t, 1, f.logouts)
}

func TestModel_GlobalKeysIgnoredWhileTyping(t *testing.T) {
	m, f := newModel(t)
	f.store.SetIdentity(model.Identity{ID: 3})
	m = started(t, m, f)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	require.Equal(t, ViewChat, m.currentView)

	m, _ = update(t, m, command.CommandMsg{Name: "chat", Args: []string{"7"}})
	require.True(t, m.chatView.InputFocused())

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")})
	assert.Equal(t, ViewChat, m.currentView, "n is text while the input has focus")
}

func TestModel_ToastInStatusBar(t *testing.T) {
	m, f := newModel(t)
	f.store.SetIdentity(model.Identity{ID: 3})
	m = started(t, m, f)

	toast := f.store.ShowError("Échec de la déconnexion.")
	m, cmd := update(t, m, stateChangedMsg{snap: f.store.Snapshot()})
	assert.NotNil(t, cmd)
	assert.Equal(t, toast.ID.String(), m.toastID)
	assert.Contains(t, m.View(), "Échec de la déconnexion.")

	_, cmd = update(t, m, toastExpiredMsg{toast: toast})
	exec(cmd)
	assert.Nil(t, f.store.Snapshot().Toast)
}

func TestModel_OpenNotificationShowsTicket(t *testing.T) {
	m, f := newModel(t)
	f.store.SetIdentity(model.Identity{ID: 3})
	m = started(t, m, f)

	m, cmd := update(t, m, notiflist.OpenMsg{ID: 5, Read: true, Data: model.NotificationData{ID: 5, RedirectURL: "/demande/41"}})
	exec(cmd)
	assert.Equal(t, ViewTicket, m.currentView)
	assert.Equal(t, []int64{41}, f.tickets)

	m = drive(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, ViewNotifications, m.currentView, "back to where the ticket was opened")
	assert.Equal(t, 1, f.ticketsClosed)
	assert.Zero(t, f.store.Snapshot().Ticket.ID)
}

func TestModel_DutyFlow(t *testing.T) {
	m, f := newModel(t)
	f.store.SetIdentity(model.Identity{ID: 3})
	f.store.SetPorter(&model.Porter{ID: 3, Tickets: []model.PorterTicket{{ID: 41, Status: model.TicketWaitingAcceptance}}})
	m = started(t, m, f)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	require.Equal(t, ViewDuty, m.currentView)

	m = drive(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, ViewTicket, m.currentView)
	assert.Equal(t, []int64{41}, f.tickets)

	f.store.SetTicket(model.Ticket{ID: 41, Status: model.TicketWaitingAcceptance})
	m, _ = update(t, m, stateChangedMsg{snap: f.store.Snapshot()})
	m = drive(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("2")})
	assert.Equal(t, []ticketview.ChangeStatusMsg{{ID: 41, Action: model.ActionAccept}}, f.changes)

	m = drive(t, m, ticketview.CloseMsg{})
	assert.Equal(t, ViewDuty, m.currentView)
}

func TestModel_DutyCommands(t *testing.T) {
	tests := []struct {
		name     string
		cmd      command.CommandMsg
		wantView ViewState
		wantOps  []string
	}{
		{"porter", command.CommandMsg{Name: "porter"}, ViewDuty, nil},
		{"pick route", command.CommandMsg{Name: "route", Args: []string{"9"}}, ViewNotifications, []string{"select 9"}},
		{"bad route id", command.CommandMsg{Name: "route", Args: []string{"x"}}, ViewNotifications, nil},
		{"leave route", command.CommandMsg{Name: "leave route"}, ViewNotifications, []string{"leave"}},
		{"end route", command.CommandMsg{Name: "end route"}, ViewNotifications, []string{"end"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, f := newModel(t)
			f.store.SetIdentity(model.Identity{ID: 3})
			m = started(t, m, f)

			m = drive(t, m, tt.cmd)
			assert.Equal(t, tt.wantView, m.currentView)
			assert.Equal(t, tt.wantOps, f.routeOps)
		})
	}
}

func TestModel_RoutesCommandOpensPicker(t *testing.T) {
	m, f := newModel(t)
	f.store.SetIdentity(model.Identity{ID: 3})
	m = started(t, m, f)

	m, cmd := update(t, m, command.CommandMsg{Name: "routes"})
	assert.Equal(t, ViewDuty, m.currentView)
	assert.True(t, m.dutyView.PickerOpen())
	assert.Contains(t, exec(cmd), tea.Msg(dutyview.LoadRoutesMsg{}))
	assert.True(t, m.capturingInput(), "keys go to the picker")

	m = drive(t, m, dutyview.LoadRoutesMsg{})
	assert.Equal(t, []string{"load"}, f.routeOps)
}

func TestModel_TicketCommand(t *testing.T) {
	m, f := newModel(t)
	f.store.SetIdentity(model.Identity{ID: 3})
	m = started(t, m, f)

	m = drive(t, m, command.CommandMsg{Name: "ticket", Args: []string{"41"}})
	assert.Equal(t, ViewTicket, m.currentView)
	assert.Equal(t, []int64{41}, f.tickets)

	m = drive(t, m, command.CommandMsg{Name: "notifications"})
	assert.Equal(t, ViewNotifications, m.currentView)
	assert.Equal(t, 1, f.ticketsClosed, "leaving the view closes the ticket")
}
