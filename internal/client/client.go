// Package client assembles the realtime client: REST API, hub sessions,
// dispatcher, porter duty, lifecycle coordinator, typing signaler and local
// cache.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/brancard/internal/api"
	"github.com/nhle/brancard/internal/auth"
	"github.com/nhle/brancard/internal/chat"
	"github.com/nhle/brancard/internal/credential"
	"github.com/nhle/brancard/internal/duty"
	"github.com/nhle/brancard/internal/hub"
	"github.com/nhle/brancard/internal/lifecycle"
	"github.com/nhle/brancard/internal/model"
	"github.com/nhle/brancard/internal/notify"
	"github.com/nhle/brancard/internal/state"
	"github.com/nhle/brancard/internal/store"
	"github.com/nhle/brancard/internal/typing"
)

// Hub paths relative to the API base URL.
const (
	NotificationsHubPath = "/hub/notifications"
	ChatHubPath          = "/hub/chat"
)

const msgSessionExpired = "Votre session a expiré, veuillez vous reconnecter."

// Options configures a Client. Only Config and Credentials are required.
type Options struct {
	Config      *model.AppConfig
	Credentials credential.Store

	// Cache defaults to a SQLite database at Config.Storage.CachePath.
	Cache store.Store

	// Notifier defaults to a notify.LogNotifier.
	Notifier notify.LocalNotifier

	// Dialer defaults to a hub.WebSocketDialer.
	Dialer hub.Dialer

	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client owns every component for the lifetime of the process.
type Client struct {
	cfg *model.AppConfig
	log zerolog.Logger

	state      *state.Store
	api        *api.Client
	auth       *auth.Service
	chat       *chat.Service
	duty       *duty.Service
	dispatcher *notify.Dispatcher
	tasks      *lifecycle.Tasks
	lifecycle  *lifecycle.Coordinator
	typing     *typing.Signaler
	cache      store.Store
	closeCache func() error

	notifHub *hub.Manager
	chatHub  *hub.Manager
	dialer   hub.Dialer

	intents *intentQueue

	mu      sync.Mutex
	ctx     context.Context
	started bool
	wg      sync.WaitGroup
}

// New builds a Client. Nothing connects until Start.
func New(opts Options) (*Client, error) {
	if opts.Config == nil {
		return nil, errors.New("client: config is required")
	}
	if opts.Credentials == nil {
		return nil, errors.New("client: credential store is required")
	}
	cfg := opts.Config
	logger := opts.Logger

	c := &Client{
		cfg:    cfg,
		log:    logger.With().Str("component", "client").Logger(),
		state:  state.New(),
		cache:  opts.Cache,
		dialer: opts.Dialer,
		ctx:    context.Background(),
	}

	if c.cache == nil {
		sqlite, err := store.NewSQLiteStore(cfg.Storage.CachePath)
		if err != nil {
			c.state.Close()
			return nil, fmt.Errorf("opening cache: %w", err)
		}
		c.cache = sqlite
		c.closeCache = sqlite.Close
	}
	if c.dialer == nil {
		c.dialer = &hub.WebSocketDialer{
			ServerTimeout: time.Duration(cfg.Hub.ServerTimeoutSec) * time.Second,
			WriteTimeout:  api.DefaultTimeout,
		}
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}

	apiOpts := []api.Option{}
	if opts.HTTPClient != nil {
		apiOpts = append(apiOpts, api.WithHTTPClient(opts.HTTPClient))
	}
	apiOpts = append(apiOpts, api.WithTimeout(cfg.RequestTimeout()))

	creds := opts.Credentials
	c.api = api.NewClient(cfg.API.BaseURL, func() (string, error) {
		return credential.Lookup(creds, credential.KeyJWT)
	}, apiOpts...)
	c.auth = auth.NewService(c.api, creds, c.state, cfg.Platform, logger)

	c.chat = chat.NewService(c.api, c.cache, c.state, logger)
	c.duty = duty.NewService(c.api, c.state, logger)
	c.dispatcher = notify.NewDispatcher(c.state, c.api, notifier, logger,
		notify.WithCache(c.cache),
		notify.WithSessionExpiry(c.expireSession),
	)

	c.notifHub = hub.NewManager(c.connectionFactory(logger), logger)
	c.chatHub = hub.NewManager(c.connectionFactory(logger), logger)
	c.bindConnectionFlags()

	c.typing = typing.NewSignaler(c.chatHub, c.state, logger, typing.WithDebounce(cfg.TypingDebounce()))

	c.tasks = lifecycle.NewTasks(cfg.BackgroundInterval(), logger)
	c.tasks.Define(lifecycle.UnreadSyncTask, lifecycle.UnreadSync(c.state, c.api, c.cache, notifier, logger))
	c.lifecycle = lifecycle.NewCoordinator(c.state, c.dispatcher, c.tasks, lifecycle.Options{
		PollInterval: cfg.PollInterval(),
		Platform:     cfg.Platform,
		Logger:       logger,
	})

	c.intents = newIntentQueue()
	return c, nil
}

func (c *Client) connectionFactory(logger zerolog.Logger) hub.Factory {
	return func(key hub.Key) *hub.Connection {
		return hub.NewConnection(hub.Options{
			URL:         key.Endpoint,
			Token:       c.auth.Token,
			Dialer:      c.dialer,
			RetryDelays: c.cfg.RetryDelays(),
			MaxRetries:  c.cfg.Hub.MaxRetries,
			KeepAlive:   time.Duration(c.cfg.Hub.KeepAliveSec) * time.Second,
			Logger:      logger,
		})
	}
}

// bindConnectionFlags mirrors hub states into the store and reconciles
// after a notifications session resumes.
func (c *Client) bindConnectionFlags() {
	var prev atomic.Int32
	c.notifHub.OnStateChange(func(s hub.State) {
		c.state.SetNotificationsConnected(s == hub.StateConnected)
		if hub.State(prev.Swap(int32(s))) == hub.StateReconnecting && s == hub.StateConnected {
			c.refresh()
		}
	})
	c.notifHub.OnFailure(func(err error) {
		c.log.Warn().Err(err).Msg("notifications hub gave up, relying on poll")
	})

	c.chatHub.OnStateChange(func(s hub.State) {
		c.state.SetChatConnected(s == hub.StateConnected)
	})
	c.chatHub.OnFailure(func(err error) {
		c.log.Warn().Err(err).Msg("chat hub gave up")
	})
}

// State returns the process-wide store.
func (c *Client) State() *state.Store { return c.state }

// Chat returns the chat service.
func (c *Client) Chat() *chat.Service { return c.chat }

// Typing returns the typing signaler.
func (c *Client) Typing() *typing.Signaler { return c.typing }

// Notifications returns the notification dispatcher.
func (c *Client) Notifications() *notify.Dispatcher { return c.dispatcher }

// Duty returns the porter service.
func (c *Client) Duty() *duty.Service { return c.duty }

// Start restores a remembered session, subscribes to hub events and starts
// the poll. ctx bounds every session and background refresh.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.ctx = ctx
	c.mu.Unlock()

	c.dispatcher.Setup(ctx)
	c.dispatcher.Register(ctx, c.notifHub, c.chatHub)

	if _, err := c.auth.Restore(ctx); err != nil {
		if errors.Is(err, auth.ErrSessionExpired) {
			c.state.ShowError(msgSessionExpired)
		} else {
			c.log.Warn().Err(err).Msg("restoring session")
		}
	}
	if err := c.applyIdentity(ctx); err != nil {
		return err
	}

	c.lifecycle.Start(ctx)
	return nil
}

// Login signs in and connects both hubs for the new identity.
func (c *Client) Login(ctx context.Context, username, password string, rememberMe bool) error {
	if _, err := c.auth.Login(ctx, username, password, rememberMe); err != nil {
		return err
	}
	return c.applyIdentity(c.sessionContext())
}

// Logout signs out, tears the hubs down and forgets the cached data.
func (c *Client) Logout(ctx context.Context, forced bool) error {
	prev := c.state.Identity()
	if err := c.auth.Logout(ctx, forced); err != nil {
		return err
	}
	if err := c.applyIdentity(ctx); err != nil {
		return err
	}
	if prev != nil {
		if err := c.cache.Purge(ctx, prev.ID); err != nil {
			c.log.Warn().Err(err).Msg("purging cache")
		}
	}
	return nil
}

// RegisterDevice registers token for push delivery.
func (c *Client) RegisterDevice(ctx context.Context, token string) error {
	return c.auth.RegisterDevice(ctx, token)
}

// HandleAppState queues an application state transition. Transitions are
// applied one at a time in call order.
func (c *Client) HandleAppState(ctx context.Context, s lifecycle.AppState) {
	c.intents.push(func() { c.lifecycle.HandleAppState(ctx, s) })
}

// Refresh reconciles notifications and chat with the backend and waits for
// the result.
func (c *Client) Refresh(ctx context.Context) error {
	id := c.state.Identity()
	if err := c.dispatcher.Resync(ctx); err != nil {
		return err
	}
	if err := c.chat.Load(ctx); err != nil {
		c.checkSession(id, err)
		return err
	}
	return nil
}

// MarkRead marks one notification read.
func (c *Client) MarkRead(ctx context.Context, id int64) error {
	return c.dispatcher.MarkRead(ctx, id)
}

// MarkAllRead marks every notification read.
func (c *Client) MarkAllRead(ctx context.Context) error {
	return c.dispatcher.MarkAllRead(ctx)
}

// OpenNotification navigates to the target of a notification.
func (c *Client) OpenNotification(data model.NotificationData) {
	c.dispatcher.HandleTap(data)
}

// OpenTicket shows ticket id and loads its detail.
func (c *Client) OpenTicket(ctx context.Context, id int64) error {
	return c.withSession(func() error { return c.duty.OpenTicket(ctx, id) })
}

// CloseTicket stops showing the ticket detail.
func (c *Client) CloseTicket() {
	c.duty.CloseTicket()
}

// ChangeTicketStatus applies a porter transition to ticket id.
func (c *Client) ChangeTicketStatus(
	ctx context.Context,
	id int64,
	action model.TicketAction,
	req *model.StatusChangeRequest,
) error {
	return c.withSession(func() error { return c.duty.ChangeTicketStatus(ctx, id, action, req) })
}

// LoadWorkRoutes fetches the work routes the porter may pick.
func (c *Client) LoadWorkRoutes(ctx context.Context) error {
	return c.withSession(func() error { return c.duty.LoadWorkRoutes(ctx) })
}

// SelectWorkRoute assigns or changes the porter's work route.
func (c *Client) SelectWorkRoute(ctx context.Context, id int64) error {
	return c.withSession(func() error { return c.duty.SelectWorkRoute(ctx, id) })
}

// LeaveWorkRoute unassigns the porter from its work route.
func (c *Client) LeaveWorkRoute(ctx context.Context) error {
	return c.withSession(func() error { return c.duty.LeaveWorkRoute(ctx) })
}

// EndWorkRoute ends the porter's shift and signs out.
func (c *Client) EndWorkRoute(ctx context.Context) error {
	if err := c.withSession(func() error { return c.duty.EndWorkRoute(ctx) }); err != nil {
		return err
	}
	return c.Logout(ctx, false)
}

// OpenChat marks the conversation with id as open.
func (c *Client) OpenChat(id int64) {
	c.chat.Open(id)
}

// CloseChat leaves the open conversation. The pending typing indicator is
// cancelled after the typing changes queued before it.
func (c *Client) CloseChat() {
	c.intents.push(c.typing.Cleanup)
	c.chat.Close()
}

// SendMessage sends text to receiver.
func (c *Client) SendMessage(ctx context.Context, receiver int64, text string) error {
	_, err := c.chat.Send(ctx, receiver, text)
	return err
}

// SendTyping queues a local typing change for the chat hub. Changes are
// sent in call order.
func (c *Client) SendTyping(ctx context.Context, receiver int64, isTyping bool) {
	c.intents.push(func() { c.typing.SendTyping(ctx, receiver, isTyping) })
}

// applyIdentity makes the hub sessions match the current identity.
func (c *Client) applyIdentity(ctx context.Context) error {
	id := c.state.Identity()
	if id == nil {
		c.typing.Cleanup()
		c.notifHub.Disconnect()
		c.chatHub.Disconnect()
		c.tasks.Unregister(lifecycle.UnreadSyncTask)
		return nil
	}

	c.hydrate(ctx, id.ID)

	for _, h := range []struct {
		mgr  *hub.Manager
		path string
	}{
		{c.notifHub, NotificationsHubPath},
		{c.chatHub, ChatHubPath},
	} {
		endpoint, err := hub.HubURL(c.cfg.API.BaseURL, h.path)
		if err != nil {
			return fmt.Errorf("building hub url: %w", err)
		}
		key := hub.Key{Endpoint: endpoint, Token: id.Token, UserID: id.ID}
		if err := h.mgr.Connect(ctx, key); err != nil {
			return fmt.Errorf("connecting %s: %w", h.path, err)
		}
	}

	c.refresh()
	return nil
}

// hydrate fills the store from the cache so the UI has data before the
// first reconciliation returns.
func (c *Client) hydrate(ctx context.Context, userID int64) {
	items, err := c.cache.GetNotifications(ctx, userID)
	if err != nil {
		c.log.Warn().Err(err).Msg("reading cached notifications")
	} else if len(items) > 0 {
		c.state.SetNotifications(items)
	}

	msgs, err := c.cache.GetChatMessages(ctx, userID)
	if err != nil {
		c.log.Warn().Err(err).Msg("reading cached chat messages")
	} else if len(msgs) > 0 {
		c.state.SetChatMessages(msgs)
	}
}

// refresh reconciles notifications and chat in the background.
func (c *Client) refresh() {
	ctx := c.sessionContext()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.dispatcher.Resync(ctx); err != nil && !errors.Is(err, notify.ErrNoIdentity) {
			c.log.Debug().Err(err).Msg("initial notification refresh failed")
		}
		id := c.state.Identity()
		if id == nil {
			return
		}
		if err := c.chat.Load(ctx); err != nil {
			c.log.Warn().Err(err).Msg("loading chat")
			c.checkSession(id, err)
		}
	}()
}

// withSession runs op for the signed-in user and expires the session when
// the backend rejected its token.
func (c *Client) withSession(op func() error) error {
	user := c.state.Identity()
	err := op()
	if err != nil {
		c.checkSession(user, err)
	}
	return err
}

// checkSession expires the session of user when err is a rejected token.
func (c *Client) checkSession(user *model.Identity, err error) {
	if user != nil && api.IsUnauthorized(err) {
		c.expireSession(user.ID)
	}
}

// expireSession signs userID out locally after the backend rejected its
// token. Nothing happens when another user is signed in by then.
func (c *Client) expireSession(userID int64) {
	cur := c.state.Identity()
	if cur == nil || cur.ID != userID {
		return
	}
	c.log.Warn().Int64("user_id", userID).Msg("backend rejected the session, signing out")

	c.auth.ClearSession()
	c.state.ShowError(msgSessionExpired)
	ctx := c.sessionContext()
	if err := c.applyIdentity(ctx); err != nil {
		c.log.Warn().Err(err).Msg("tearing down expired session")
	}
	if err := c.cache.Purge(ctx, userID); err != nil {
		c.log.Warn().Err(err).Msg("purging cache")
	}
}

func (c *Client) sessionContext() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

// Wait blocks until queued intents are applied and background refreshes
// finish.
func (c *Client) Wait() {
	c.intents.flush()
	c.wg.Wait()
	c.dispatcher.Wait()
}

// Close stops every component. Cancel the context passed to Start first so
// in-flight requests return promptly.
func (c *Client) Close() error {
	c.intents.close()
	c.lifecycle.Stop()
	c.typing.Cleanup()
	c.notifHub.Disconnect()
	c.chatHub.Disconnect()
	c.Wait()
	c.tasks.Close()
	c.state.Close()

	if c.closeCache != nil {
		return c.closeCache()
	}
	return nil
}
