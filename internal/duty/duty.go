// Package duty covers the porter's working day: its profile, the tickets
// assigned to it with their status transitions, and its work route.
package duty

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/brancard/internal/api"
	"github.com/nhle/brancard/internal/model"
	"github.com/nhle/brancard/internal/state"
)

// workRoutePageSize bounds the routes offered to the porter.
const workRoutePageSize = 50

const (
	msgTicketFetchFailed = "Failed to fetch ticket"
	msgPorterFetchFailed = "Failed to fetch porter"
)

type routeText struct {
	success, failure string
}

var (
	routeAssign = routeText{"Route de travail assignée avec succès.", "Échec de l'assignation de la route de travail."}
	routeChange = routeText{"Route de travail changée avec succès.", "Échec du changement de la route de travail."}
	routeLeave  = routeText{"Désassignation de la route de travail réussie.", "Échec de la désassignation de la route de travail."}
	routeEnd    = routeText{"Route de travail terminée avec succès.", "Échec de la fin de la route de travail."}
)

var (
	// ErrNoIdentity is returned when no user is signed in.
	ErrNoIdentity = errors.New("no signed-in user")

	// ErrActionNotAllowed is returned for a transition the ticket's status
	// does not offer.
	ErrActionNotAllowed = errors.New("action not allowed in this status")

	// ErrReasonRequired is returned when a refusal or abandonment has no
	// reason, or an "other" reason has no explanation.
	ErrReasonRequired = errors.New("a reason is required")

	// ErrNoWorkRoute is returned when leaving or ending a route while none
	// is assigned.
	ErrNoWorkRoute = errors.New("no work route assigned")
)

// Backend is the subset of the REST API used by the service.
type Backend interface {
	Porter(ctx context.Context, id int64) (model.Porter, error)
	Ticket(ctx context.Context, id int64) (model.Ticket, error)
	ChangeTicketStatus(ctx context.Context, id int64, action model.TicketAction, req *model.StatusChangeRequest) error
	WorkRoutes(ctx context.Context, q api.PageQuery) (model.Page[model.WorkRoute], error)
	AssignWorkRoute(ctx context.Context, id, user int64) error
	ChangeWorkRoute(ctx context.Context, id, user int64) error
	LeaveWorkRoute(ctx context.Context, id, user int64) error
	EndWorkRoute(ctx context.Context, id, user int64) error
}

// Service is the porter use-case layer.
type Service struct {
	backend Backend
	store   *state.Store
	log     zerolog.Logger
}

// NewService creates a Service.
func NewService(backend Backend, store *state.Store, logger zerolog.Logger) *Service {
	return &Service{
		backend: backend,
		store:   store,
		log:     logger.With().Str("component", "duty").Logger(),
	}
}

// ApplyPorter records the outcome of a porter fetch in store. A 404 means
// the user has no porter profile and is not an error. Any other failure
// keeps the last known profile and is returned.
func ApplyPorter(store *state.Store, p model.Porter, err error) error {
	switch {
	case err == nil:
		store.SetPorter(&p)
	case api.StatusCode(err) == http.StatusNotFound:
		store.SetPorter(nil)
	default:
		store.SetDutyError(errorMessage(err, msgPorterFetchFailed))
		return err
	}
	return nil
}

// RefreshPorter reloads the signed-in user's porter profile.
func (s *Service) RefreshPorter(ctx context.Context) error {
	id := s.store.Identity()
	if id == nil {
		return ErrNoIdentity
	}
	s.store.SetDutyLoading(true)
	p, err := s.backend.Porter(ctx, id.ID)
	if !s.sameUser(id) {
		return nil
	}
	if err := ApplyPorter(s.store, p, err); err != nil {
		s.log.Warn().Err(err).Msg("porter refresh failed")
		return fmt.Errorf("refreshing porter: %w", err)
	}
	return nil
}

// OpenTicket shows ticket id and loads its detail.
func (s *Service) OpenTicket(ctx context.Context, id int64) error {
	if s.store.Identity() == nil {
		return ErrNoIdentity
	}
	s.store.OpenTicket(id)
	return s.loadTicket(ctx, id)
}

// CloseTicket stops showing the ticket detail.
func (s *Service) CloseTicket() {
	s.store.CloseTicket()
}

func (s *Service) loadTicket(ctx context.Context, id int64) error {
	user := s.store.Identity()
	if user == nil {
		return ErrNoIdentity
	}
	t, err := s.backend.Ticket(ctx, id)
	if !s.sameUser(user) {
		return nil
	}
	if err != nil {
		msg := errorMessage(err, msgTicketFetchFailed)
		s.store.SetTicketError(id, msg)
		s.store.ShowError(msg)
		return fmt.Errorf("loading ticket: %w", err)
	}
	s.store.SetTicket(t)
	return nil
}

// ChangeTicketStatus applies action to ticket id. Refusals and
// abandonments need req. The porter profile and the shown ticket are
// reloaded once the backend accepts the change.
func (s *Service) ChangeTicketStatus(
	ctx context.Context,
	id int64,
	action model.TicketAction,
	req *model.StatusChangeRequest,
) error {
	user := s.store.Identity()
	if user == nil {
		return ErrNoIdentity
	}
	if err := s.checkAction(id, action, req); err != nil {
		return err
	}
	if !action.NeedsReason() {
		req = nil
	}

	if err := s.backend.ChangeTicketStatus(ctx, id, action, req); err != nil {
		s.log.Warn().Err(err).Int64("ticket_id", id).Str("action", string(action)).Msg("ticket status change failed")
		s.store.ShowError(errorMessage(err, action.FailureMessage()))
		return err
	}
	s.log.Info().Int64("ticket_id", id).Str("action", string(action)).Msg("ticket status changed")
	s.store.ShowToast(action.SuccessMessage())

	s.reload(ctx, user, id)
	return nil
}

// checkAction validates action against the ticket detail when it is
// loaded, and the reason when one is needed.
func (s *Service) checkAction(id int64, action model.TicketAction, req *model.StatusChangeRequest) error {
	snap := s.store.Snapshot()
	status := model.TicketStatus("")
	if t := snap.Ticket.Current; t != nil && t.ID == id {
		status = t.Status
	} else if p := snap.Duty.Porter; p != nil {
		for _, pt := range p.Tickets {
			if pt.ID == id {
				status = pt.Status
			}
		}
	}
	if status != "" && !slices.Contains(model.ActionsFor(status), action) {
		return fmt.Errorf("%s on %s: %w", action, status, ErrActionNotAllowed)
	}

	if !action.NeedsReason() {
		return nil
	}
	if req == nil {
		return ErrReasonRequired
	}
	known := slices.ContainsFunc(action.Reasons(), func(r model.Reason) bool { return r.Code == req.Reason })
	if !known {
		return fmt.Errorf("unknown reason %q: %w", req.Reason, ErrReasonRequired)
	}
	isOther := req.Reason == model.ReasonRefusedOther || req.Reason == model.ReasonAbandonedOther
	if isOther && strings.TrimSpace(req.CustomReason) == "" {
		return ErrReasonRequired
	}
	return nil
}

// reload refreshes the porter and, when it is still shown, ticket id.
// Failures are recorded by each refresh.
func (s *Service) reload(ctx context.Context, user *model.Identity, id int64) {
	var g errgroup.Group
	g.Go(func() error {
		_ = s.RefreshPorter(ctx)
		return nil
	})
	if s.store.Snapshot().Ticket.ID == id {
		g.Go(func() error {
			_ = s.loadTicket(ctx, id)
			return nil
		})
	}
	_ = g.Wait()
}

// LoadWorkRoutes fetches the enabled work routes the porter may pick.
func (s *Service) LoadWorkRoutes(ctx context.Context) error {
	user := s.store.Identity()
	if user == nil {
		return ErrNoIdentity
	}
	page, err := s.backend.WorkRoutes(ctx, api.PageQuery{Size: workRoutePageSize})
	if err != nil {
		return fmt.Errorf("loading work routes: %w", err)
	}
	if !s.sameUser(user) {
		return nil
	}
	routes := make([]model.WorkRoute, 0, len(page.Items))
	for _, r := range page.Items {
		if r.Enabled {
			routes = append(routes, r)
		}
	}
	s.store.SetWorkRoutes(routes)
	return nil
}

// SelectWorkRoute assigns route id to the porter, or moves the porter to it
// when another route is already assigned.
func (s *Service) SelectWorkRoute(ctx context.Context, id int64) error {
	user := s.store.Identity()
	if user == nil {
		return ErrNoIdentity
	}
	if cur := s.currentRoute(); cur != nil {
		if cur.ID == id {
			return nil
		}
		return s.routeOp(ctx, user, routeChange, func() error {
			return s.backend.ChangeWorkRoute(ctx, id, user.ID)
		})
	}
	return s.routeOp(ctx, user, routeAssign, func() error {
		return s.backend.AssignWorkRoute(ctx, id, user.ID)
	})
}

// LeaveWorkRoute unassigns the porter from its route.
func (s *Service) LeaveWorkRoute(ctx context.Context) error {
	user := s.store.Identity()
	if user == nil {
		return ErrNoIdentity
	}
	cur := s.currentRoute()
	if cur == nil {
		return ErrNoWorkRoute
	}
	return s.routeOp(ctx, user, routeLeave, func() error {
		return s.backend.LeaveWorkRoute(ctx, cur.ID, user.ID)
	})
}

// EndWorkRoute ends the porter's shift on its route. Callers sign the user
// out afterwards.
func (s *Service) EndWorkRoute(ctx context.Context) error {
	user := s.store.Identity()
	if user == nil {
		return ErrNoIdentity
	}
	cur := s.currentRoute()
	if cur == nil {
		return ErrNoWorkRoute
	}
	return s.routeOp(ctx, user, routeEnd, func() error {
		return s.backend.EndWorkRoute(ctx, cur.ID, user.ID)
	})
}

func (s *Service) routeOp(ctx context.Context, user *model.Identity, text routeText, op func() error) error {
	if err := op(); err != nil {
		s.log.Warn().Err(err).Msg("work route change failed")
		s.store.ShowError(errorMessage(err, text.failure))
		return err
	}
	s.store.ShowToast(text.success)
	if s.sameUser(user) {
		_ = s.RefreshPorter(ctx)
	}
	return nil
}

func (s *Service) currentRoute() *model.WorkRoute {
	if p := s.store.Snapshot().Duty.Porter; p != nil {
		return p.WorkRoute
	}
	return nil
}

// sameUser reports whether user is still the signed-in user.
func (s *Service) sameUser(user *model.Identity) bool {
	cur := s.store.Identity()
	if cur == nil || cur.ID != user.ID {
		s.log.Debug().Int64("user_id", user.ID).Msg("discarding result for previous user")
		return false
	}
	return true
}

// errorMessage prefers the message sent by the backend.
func errorMessage(err error, fallback string) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
