// Package notify turns realtime hub events into state updates, toasts and
// local notifications, and reconciles notification state with the backend.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/brancard/internal/api"
	"github.com/nhle/brancard/internal/duty"
	"github.com/nhle/brancard/internal/hub"
	"github.com/nhle/brancard/internal/model"
	"github.com/nhle/brancard/internal/payload"
	"github.com/nhle/brancard/internal/state"
)

// Hub event names.
const (
	EventReceiveNotification = "ReceiveNotification"
	EventReceiveMessage      = "ReceiveMessage"
	EventReceiveTypingStatus = "ReceiveTypingStatus"
)

// User-facing messages shown when the backend cannot be reached.
const (
	msgFetchFailed    = "Erreur lors de la récupération des notifications"
	msgMarkReadFailed = "Erreur lors du marquage comme lu"
)

// ErrNoIdentity is returned by operations that require a signed-in user.
var ErrNoIdentity = errors.New("no signed-in user")

// Backend is the subset of the REST API used by the dispatcher.
type Backend interface {
	Notifications(ctx context.Context, q api.NotificationQuery) ([]model.NotificationTarget, error)
	UnreadCount(ctx context.Context) (int, error)
	MarkRead(ctx context.Context, id int64) error
	MarkAllRead(ctx context.Context) error
	Porter(ctx context.Context, id int64) (model.Porter, error)
}

// Cache receives reconciled data for offline use.
type Cache interface {
	UpsertNotifications(ctx context.Context, userID int64, items []model.NotificationTarget) error
	MarkNotificationRead(ctx context.Context, id int64) error
	MarkAllNotificationsRead(ctx context.Context, userID int64) error
	UpsertChatMessages(ctx context.Context, msgs []model.ChatMessage) error
}

// Dispatcher handles inbound notification and chat events.
type Dispatcher struct {
	store    *state.Store
	backend  Backend
	notifier LocalNotifier
	cache    Cache
	expired  func(userID int64)
	log      zerolog.Logger

	setupOnce sync.Once
	wg        sync.WaitGroup
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithCache writes reconciled data through to c.
func WithCache(c Cache) Option {
	return func(d *Dispatcher) { d.cache = c }
}

// WithSessionExpiry calls fn with the affected user when the backend
// rejects the session token during a reconciliation or a read-state update.
func WithSessionExpiry(fn func(userID int64)) Option {
	return func(d *Dispatcher) { d.expired = fn }
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(
	store *state.Store,
	backend Backend,
	notifier LocalNotifier,
	logger zerolog.Logger,
	opts ...Option,
) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		backend:  backend,
		notifier: notifier,
		log:      logger.With().Str("component", "dispatcher").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Setup configures the notification channels. Only the first call has an
// effect.
func (d *Dispatcher) Setup(ctx context.Context) {
	d.setupOnce.Do(func() {
		if err := d.notifier.Configure(ctx, DefaultChannels); err != nil {
			d.log.Warn().Err(err).Msg("configuring notification channels")
		}
	})
}

// Register subscribes the dispatcher to the hub events it handles. ctx
// bounds the reconciliation work started by events.
func (d *Dispatcher) Register(ctx context.Context, notifications, chat *hub.Manager) {
	if notifications != nil {
		notifications.On(EventReceiveNotification, func(args []json.RawMessage) {
			var ev model.NotificationEvent
			if err := decodeFirst(args, &ev); err != nil {
				d.log.Warn().Err(err).Msg("discarding malformed notification event")
				return
			}
			d.HandleNotification(ctx, ev)
		})
	}
	if chat != nil {
		chat.On(EventReceiveMessage, func(args []json.RawMessage) {
			var msg model.ChatMessage
			if err := decodeFirst(args, &msg); err != nil {
				d.log.Warn().Err(err).Msg("discarding malformed chat message")
				return
			}
			d.HandleChatMessage(ctx, msg)
		})
		chat.On(EventReceiveTypingStatus, func(args []json.RawMessage) {
			var sender int64
			var typing bool
			if len(args) < 2 ||
				json.Unmarshal(args[0], &sender) != nil ||
				json.Unmarshal(args[1], &typing) != nil {
				d.log.Debug().Int("args", len(args)).Msg("discarding malformed typing status")
				return
			}
			d.store.SetTyping(sender, typing)
		})
	}
}

// HandleNotification processes a realtime notification. Events addressed to
// another user are ignored. Reconciliation runs in the background; the
// toast and the local notification never wait for it.
func (d *Dispatcher) HandleNotification(ctx context.Context, ev model.NotificationEvent) {
	p := payload.Normalize(ev.PayloadJSON)

	id := d.store.Identity()
	if id == nil || id.ID != ev.ReceiverID {
		d.log.Debug().Int64("receiver_id", ev.ReceiverID).Msg("ignoring notification for another user")
		return
	}

	d.log.Info().Int64("notification_id", ev.ID).Str("title", p.Title).Msg("notification received")

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		_ = d.Resync(ctx)
	}()

	d.store.ShowToast("🔔 " + p.Title)
	d.notifyLocal(ctx, ev.ID, p)
}

// HandleChatMessage appends an inbound chat message and raises a toast when
// it counts as unread.
func (d *Dispatcher) HandleChatMessage(ctx context.Context, msg model.ChatMessage) {
	id := d.store.Identity()
	if id == nil {
		d.log.Debug().Int64("message_id", msg.ID).Msg("ignoring chat message while signed out")
		return
	}

	if d.store.ReceiveChatMessage(msg, id.ID) {
		d.store.ShowToast(fmt.Sprintf("%s sent you a message", msg.SenderName))
	}

	if d.cache != nil {
		if err := d.cache.UpsertChatMessages(ctx, []model.ChatMessage{msg}); err != nil {
			d.log.Warn().Err(err).Msg("caching chat message")
		}
	}
}

// HandleTap navigates to the target of a tapped local notification.
func (d *Dispatcher) HandleTap(data model.NotificationData) {
	switch {
	case data.RedirectURL != "":
		d.store.Navigate(data.RedirectURL)
	case data.Screen != "":
		d.store.Navigate("/" + data.Screen)
	}
}

// Resync fetches the notification list, the unread counter and the porter
// profile of the signed-in user. Each result that arrives is applied; on
// failure the store keeps its last known values and records the error. A
// porter failure is recorded on the porter slice only.
func (d *Dispatcher) Resync(ctx context.Context) error {
	id := d.store.Identity()
	if id == nil {
		return ErrNoIdentity
	}

	d.store.SetNotificationsLoading(true)
	d.store.SetDutyLoading(true)

	var (
		items                         []model.NotificationTarget
		count                         int
		porter                        model.Porter
		itemsErr, countErr, porterErr error
		g                             errgroup.Group
	)
	g.Go(func() error {
		items, itemsErr = d.backend.Notifications(ctx, api.NotificationQuery{})
		return itemsErr
	})
	g.Go(func() error {
		count, countErr = d.backend.UnreadCount(ctx)
		return countErr
	})
	g.Go(func() error {
		porter, porterErr = d.backend.Porter(ctx, id.ID)
		return nil
	})
	err := g.Wait()

	// The user may have signed out or switched while the requests ran.
	if cur := d.store.Identity(); cur == nil || cur.ID != id.ID {
		d.log.Debug().Msg("discarding reconciliation for previous user")
		return nil
	}

	if itemsErr == nil {
		d.store.SetNotifications(items)
		d.cacheNotifications(ctx, id.ID, items)
	}
	if countErr == nil {
		d.store.SetUnreadCount(count)
	}
	if perr := duty.ApplyPorter(d.store, porter, porterErr); perr != nil {
		d.log.Warn().Err(perr).Msg("porter refresh failed")
	}

	if err == nil && api.IsUnauthorized(porterErr) {
		err = porterErr
	}
	if err != nil {
		d.log.Warn().Err(err).Int("status", api.StatusCode(err)).Msg("notification reconciliation failed")
		d.store.SetNotificationsError(errorMessage(err, msgFetchFailed))
		d.checkSession(id, err)
		return err
	}
	return nil
}

// checkSession reports a token rejected for user to the session expiry
// callback.
func (d *Dispatcher) checkSession(user *model.Identity, err error) {
	if d.expired != nil && user != nil && api.IsUnauthorized(err) {
		d.expired(user.ID)
	}
}

// MarkRead marks a notification read locally, then on the backend. A
// backend failure restores the unread state.
func (d *Dispatcher) MarkRead(ctx context.Context, id int64) error {
	if !d.store.MarkRead(id) {
		return nil
	}
	user := d.store.Identity()

	if err := d.backend.MarkRead(ctx, id); err != nil {
		d.log.Warn().Err(err).Int64("notification_id", id).Msg("mark read failed")
		d.store.RevertRead(id)
		d.store.ShowError(errorMessage(err, msgMarkReadFailed))
		d.checkSession(user, err)
		return err
	}

	if d.cache != nil {
		if err := d.cache.MarkNotificationRead(ctx, id); err != nil {
			d.log.Warn().Err(err).Msg("caching read state")
		}
	}
	return nil
}

// MarkAllRead marks every notification read once the backend confirms.
func (d *Dispatcher) MarkAllRead(ctx context.Context) error {
	user := d.store.Identity()
	if err := d.backend.MarkAllRead(ctx); err != nil {
		d.log.Warn().Err(err).Msg("mark all read failed")
		d.store.ShowError(errorMessage(err, msgMarkReadFailed))
		d.checkSession(user, err)
		return err
	}
	d.store.MarkAllRead()

	if id := d.store.Identity(); id != nil && d.cache != nil {
		if err := d.cache.MarkAllNotificationsRead(ctx, id.ID); err != nil {
			d.log.Warn().Err(err).Msg("caching read state")
		}
	}
	return nil
}

// Wait blocks until background reconciliations started by events finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) notifyLocal(ctx context.Context, id int64, p model.CanonicalPayload) {
	if err := d.notifier.Schedule(ctx, NewLocalNotification(id, p)); err != nil {
		d.log.Warn().Err(err).Int64("notification_id", id).Msg("scheduling local notification")
	}
}

func (d *Dispatcher) cacheNotifications(ctx context.Context, userID int64, items []model.NotificationTarget) {
	if d.cache == nil || len(items) == 0 {
		return
	}
	if err := d.cache.UpsertNotifications(ctx, userID, items); err != nil {
		d.log.Warn().Err(err).Msg("caching notifications")
	}
}

func decodeFirst(args []json.RawMessage, v any) error {
	if len(args) == 0 {
		return errors.New("missing argument")
	}
	return json.Unmarshal(args[0], v)
}

// errorMessage prefers the message sent by the backend.
func errorMessage(err error, fallback string) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
