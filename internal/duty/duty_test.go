package duty

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/brancard/internal/api"
	"github.com/nhle/brancard/internal/model"
	"github.com/nhle/brancard/internal/state"
)

type change struct {
	id     int64
	action model.TicketAction
	req    *model.StatusChangeRequest
}

type routeCall struct {
	op          string
	route, user int64
}

type fakeBackend struct {
	mu sync.Mutex

	porter    model.Porter
	porterErr error
	tickets   map[int64]model.Ticket
	ticketErr error
	changeErr error
	routes    []model.WorkRoute
	routeErr  error

	porterCalls int
	ticketCalls int
	changes     []change
	routeCalls  []routeCall

	// onTicket, when set, runs before a ticket is returned.
	onTicket func()
}

func (b *fakeBackend) Porter(context.Context, int64) (model.Porter, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.porterCalls++
	return b.porter, b.porterErr
}

func (b *fakeBackend) Ticket(_ context.Context, id int64) (model.Ticket, error) {
	b.mu.Lock()
	b.ticketCalls++
	t, err, hook := b.tickets[id], b.ticketErr, b.onTicket
	b.mu.Unlock()
	if hook != nil {
		hook()
	}
	return t, err
}

func (b *fakeBackend) ChangeTicketStatus(_ context.Context, id int64, action model.TicketAction, req *model.StatusChangeRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.changes = append(b.changes, change{id, action, req})
	return b.changeErr
}

func (b *fakeBackend) WorkRoutes(context.Context, api.PageQuery) (model.Page[model.WorkRoute], error) {
	return model.Page[model.WorkRoute]{Items: b.routes, TotalCount: len(b.routes)}, b.routeErr
}

func (b *fakeBackend) route(op string, id, user int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.routeCalls = append(b.routeCalls, routeCall{op, id, user})
	return b.routeErr
}

func (b *fakeBackend) AssignWorkRoute(_ context.Context, id, user int64) error {
	return b.route("assign", id, user)
}

func (b *fakeBackend) ChangeWorkRoute(_ context.Context, id, user int64) error {
	return b.route("change", id, user)
}

func (b *fakeBackend) LeaveWorkRoute(_ context.Context, id, user int64) error {
	return b.route("leave", id, user)
}

func (b *fakeBackend) EndWorkRoute(_ context.Context, id, user int64) error {
	return b.route("end", id, user)
}

func newService(t *testing.T) (*Service, *fakeBackend, *state.Store) {
	t.Helper()
	store := state.New()
	t.Cleanup(store.Close)
	store.SetIdentity(model.Identity{ID: 3})
	backend := &fakeBackend{
		porter: model.Porter{ID: 3, Status: model.PorterAvailable},
		tickets: map[int64]model.Ticket{
			41: {ID: 41, Status: model.TicketWaitingAcceptance},
		},
	}
	return NewService(backend, store, zerolog.Nop()), backend, store
}

func TestApplyPorter(t *testing.T) {
	store := state.New()
	t.Cleanup(store.Close)

	require.NoError(t, ApplyPorter(store, model.Porter{ID: 3}, nil))
	require.NotNil(t, store.Snapshot().Duty.Porter)

	err := ApplyPorter(store, model.Porter{}, &api.Error{StatusCode: http.StatusBadGateway, Message: "Passerelle"})
	require.Error(t, err)
	snap := store.Snapshot()
	require.NotNil(t, snap.Duty.Porter, "last profile kept")
	assert.Equal(t, "Passerelle", snap.Duty.Error)

	require.NoError(t, ApplyPorter(store, model.Porter{}, &api.Error{StatusCode: http.StatusNotFound}))
	assert.Nil(t, store.Snapshot().Duty.Porter)
}

func TestRefreshPorter(t *testing.T) {
	svc, backend, store := newService(t)

	require.NoError(t, svc.RefreshPorter(context.Background()))
	snap := store.Snapshot()
	require.NotNil(t, snap.Duty.Porter)
	assert.Equal(t, model.PorterAvailable, snap.Duty.Porter.Status)
	assert.Equal(t, 1, backend.porterCalls)

	store.ClearIdentity()
	assert.ErrorIs(t, svc.RefreshPorter(context.Background()), ErrNoIdentity)
}

func TestOpenTicket(t *testing.T) {
	svc, backend, store := newService(t)

	require.NoError(t, svc.OpenTicket(context.Background(), 41))
	snap := store.Snapshot()
	require.NotNil(t, snap.Ticket.Current)
	assert.Equal(t, model.TicketWaitingAcceptance, snap.Ticket.Current.Status)

	backend.ticketErr = &api.Error{StatusCode: http.StatusInternalServerError}
	require.Error(t, svc.OpenTicket(context.Background(), 42))
	snap = store.Snapshot()
	assert.Equal(t, msgTicketFetchFailed, snap.Ticket.Error)
	require.NotNil(t, snap.Toast)
	assert.Equal(t, msgTicketFetchFailed, snap.Toast.Error)

	svc.CloseTicket()
	assert.Zero(t, store.Snapshot().Ticket.ID)
}

func TestOpenTicket_DropsResultAfterSignOut(t *testing.T) {
	svc, backend, store := newService(t)
	backend.onTicket = store.ClearIdentity

	require.NoError(t, svc.OpenTicket(context.Background(), 41))
	assert.Nil(t, store.Snapshot().Ticket.Current)
}

func TestChangeTicketStatus_RefreshesPorterAndTicket(t *testing.T) {
	svc, backend, store := newService(t)
	require.NoError(t, svc.OpenTicket(context.Background(), 41))
	backend.tickets[41] = model.Ticket{ID: 41, Status: model.TicketAccepted}

	require.NoError(t, svc.ChangeTicketStatus(context.Background(), 41, model.ActionAccept, nil))

	snap := store.Snapshot()
	assert.Equal(t, []change{{41, model.ActionAccept, nil}}, backend.changes)
	assert.Equal(t, 1, backend.porterCalls)
	assert.Equal(t, 2, backend.ticketCalls)
	require.NotNil(t, snap.Ticket.Current)
	assert.Equal(t, model.TicketAccepted, snap.Ticket.Current.Status)
	require.NotNil(t, snap.Toast)
	assert.Equal(t, "Ticket accepted successfully", snap.Toast.Message)
}

func TestChangeTicketStatus_Validation(t *testing.T) {
	other := &model.StatusChangeRequest{Reason: model.ReasonRefusedOther, CustomReason: "Ascenseur en panne"}
	tests := []struct {
		name    string
		action  model.TicketAction
		req     *model.StatusChangeRequest
		wantErr error
	}{
		{"accept", model.ActionAccept, nil, nil},
		{"refuse with coded reason", model.ActionRefuse, &model.StatusChangeRequest{Reason: "REFUSED_BREAK"}, nil},
		{"refuse with explained other", model.ActionRefuse, other, nil},
		{"refuse without reason", model.ActionRefuse, nil, ErrReasonRequired},
		{"refuse with blank other", model.ActionRefuse, &model.StatusChangeRequest{Reason: model.ReasonRefusedOther, CustomReason: "  "}, ErrReasonRequired},
		{"refuse with abandonment reason", model.ActionRefuse, &model.StatusChangeRequest{Reason: model.ReasonAbandonedOther, CustomReason: "x"}, ErrReasonRequired},
		{"done before pickup", model.ActionDone, nil, ErrActionNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, backend, _ := newService(t)
			require.NoError(t, svc.OpenTicket(context.Background(), 41))

			err := svc.ChangeTicketStatus(context.Background(), 41, tt.action, tt.req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, backend.changes)
				return
			}
			require.NoError(t, err)
			require.Len(t, backend.changes, 1)
			assert.Equal(t, tt.req, backend.changes[0].req)
		})
	}
}

func TestChangeTicketStatus_UsesPorterTicketStatus(t *testing.T) {
	svc, backend, store := newService(t)
	store.SetPorter(&model.Porter{ID: 3, Tickets: []model.PorterTicket{{ID: 50, Status: model.TicketItemRetrieved}}})

	err := svc.ChangeTicketStatus(context.Background(), 50, model.ActionRetrieve, nil)
	assert.ErrorIs(t, err, ErrActionNotAllowed)

	require.NoError(t, svc.ChangeTicketStatus(context.Background(), 50, model.ActionMoveToDestination, nil))
	require.Len(t, backend.changes, 1)
	assert.Zero(t, backend.ticketCalls, "ticket 50 is not shown")
}

func TestChangeTicketStatus_Failure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"backend message", &api.Error{StatusCode: http.StatusConflict, Message: "Ticket déjà accepté"}, "Ticket déjà accepté"},
		{"fallback", errors.New("timeout"), "Failed to accept ticket"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, backend, store := newService(t)
			backend.changeErr = tt.err

			require.Error(t, svc.ChangeTicketStatus(context.Background(), 41, model.ActionAccept, nil))

			snap := store.Snapshot()
			require.NotNil(t, snap.Toast)
			assert.Equal(t, tt.want, snap.Toast.Error)
			assert.Zero(t, backend.porterCalls)
		})
	}
}

func TestLoadWorkRoutes_KeepsEnabled(t *testing.T) {
	svc, backend, store := newService(t)
	backend.routes = []model.WorkRoute{{ID: 1, Enabled: true}, {ID: 2}, {ID: 3, Enabled: true}}

	require.NoError(t, svc.LoadWorkRoutes(context.Background()))

	var ids []int64
	for _, r := range store.Snapshot().Duty.WorkRoutes {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []int64{1, 3}, ids)
}

func TestWorkRouteOperations(t *testing.T) {
	svc, backend, store := newService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.LeaveWorkRoute(ctx), ErrNoWorkRoute)
	assert.ErrorIs(t, svc.EndWorkRoute(ctx), ErrNoWorkRoute)

	require.NoError(t, svc.SelectWorkRoute(ctx, 8))
	assert.Equal(t, "Route de travail assignée avec succès.", store.Snapshot().Toast.Message)

	backend.porter.WorkRoute = &model.WorkRoute{ID: 8}
	require.NoError(t, svc.RefreshPorter(ctx))

	require.NoError(t, svc.SelectWorkRoute(ctx, 8), "already on route 8")
	require.NoError(t, svc.SelectWorkRoute(ctx, 9))
	require.NoError(t, svc.LeaveWorkRoute(ctx))
	require.NoError(t, svc.EndWorkRoute(ctx))

	assert.Equal(t, []routeCall{
		{"assign", 8, 3},
		{"change", 9, 3},
		{"leave", 8, 3},
		{"end", 8, 3},
	}, backend.routeCalls)
	assert.Equal(t, "Route de travail terminée avec succès.", store.Snapshot().Toast.Message)
}

func TestWorkRouteFailureShowsError(t *testing.T) {
	svc, backend, store := newService(t)
	backend.routeErr = errors.New("timeout")

	require.Error(t, svc.SelectWorkRoute(context.Background(), 8))

	snap := store.Snapshot()
	require.NotNil(t, snap.Toast)
	assert.Equal(t, "Échec de l'assignation de la route de travail.", snap.Toast.Error)
	assert.Zero(t, backend.porterCalls)
}
