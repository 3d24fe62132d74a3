// Package lifecycle reacts to the application moving between foreground and
// background, and owns the periodic notification poll and the background
// notification task.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/brancard/internal/model"
	"github.com/nhle/brancard/internal/state"
)

// AppState is the OS-level application state.
type AppState string

const (
	AppActive     AppState = "active"
	AppBackground AppState = "background"
	AppInactive   AppState = "inactive"
)

func (s AppState) away() bool {
	return s == AppBackground || s == AppInactive
}

// DefaultPollInterval is the fallback poll period.
const DefaultPollInterval = 10 * time.Minute

// Resyncer re-fetches notifications and the unread counter.
type Resyncer interface {
	Resync(ctx context.Context) error
}

// Registrar schedules background tasks.
type Registrar interface {
	IsRegistered(name string) bool
	Register(ctx context.Context, name string) error
}

// Options configures a Coordinator.
type Options struct {
	PollInterval time.Duration

	// Platform disables background tasks when set to model.PlatformWeb.
	Platform string

	// TaskName is the background task ensured on the way to background.
	TaskName string

	Logger zerolog.Logger
}

// Coordinator is the single owner of background notification delivery.
type Coordinator struct {
	store  *state.Store
	resync Resyncer
	tasks  Registrar
	opts   Options
	log    zerolog.Logger

	mu       sync.Mutex
	appState AppState
	running  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewCoordinator creates a Coordinator. The application is assumed active.
func NewCoordinator(store *state.Store, resync Resyncer, tasks Registrar, opts Options) *Coordinator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.TaskName == "" {
		opts.TaskName = UnreadSyncTask
	}
	return &Coordinator{
		store:    store,
		resync:   resync,
		tasks:    tasks,
		opts:     opts,
		log:      opts.Logger.With().Str("component", "lifecycle").Logger(),
		appState: AppActive,
	}
}

// AppState returns the last observed application state.
func (c *Coordinator) AppState() AppState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appState
}

// HandleAppState processes a transition. Repeated reports of the current
// state are ignored.
func (c *Coordinator) HandleAppState(ctx context.Context, next AppState) {
	c.mu.Lock()
	prev := c.appState
	if prev == next {
		c.mu.Unlock()
		return
	}
	c.appState = next
	c.mu.Unlock()

	c.log.Debug().Str("from", string(prev)).Str("to", string(next)).Msg("app state changed")

	switch {
	case next == AppActive && prev.away():
		if c.store.Identity() == nil {
			return
		}
		c.log.Info().Msg("app came to foreground, refreshing notifications")
		if err := c.resync.Resync(ctx); err != nil {
			c.log.Warn().Err(err).Msg("foreground refresh failed")
		}
	case next.away():
		c.ensureBackgroundTask(ctx)
	}
}

func (c *Coordinator) ensureBackgroundTask(ctx context.Context) {
	if c.opts.Platform == model.PlatformWeb || c.tasks == nil {
		return
	}
	if c.tasks.IsRegistered(c.opts.TaskName) {
		return
	}
	if err := c.tasks.Register(ctx, c.opts.TaskName); err != nil {
		c.log.Warn().Err(err).Msg("background task unavailable, relying on poll")
	}
}

// Start begins the periodic poll. Calling Start while running is a no-op.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return
	}
	c.running = true
	c.stopCh = make(chan struct{})

	c.wg.Add(1)
	go c.poll(ctx, c.stopCh)
}

// Stop halts the poll and waits for an in-flight refresh to finish.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	close(c.stopCh)
	c.running = false
	c.mu.Unlock()

	c.wg.Wait()
}

// Running reports whether the poll is active.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Coordinator) poll(ctx context.Context, stopCh <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.store.Identity() == nil {
				continue
			}
			if err := c.resync.Resync(ctx); err != nil {
				c.log.Warn().Err(err).Msg("periodic refresh failed")
			}
		}
	}
}
