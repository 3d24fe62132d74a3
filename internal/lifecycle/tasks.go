package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Result is the outcome of one background task run.
type Result int

const (
	ResultNoData Result = iota
	ResultNewData
	ResultFailed
)

func (r Result) String() string {
	switch r {
	case ResultNoData:
		return "no_data"
	case ResultNewData:
		return "new_data"
	case ResultFailed:
		return "failed"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// TaskFunc is the body of a background task.
type TaskFunc func(ctx context.Context) Result

// ErrUndefinedTask is returned when registering a task that was never
// defined.
var ErrUndefinedTask = errors.New("background task not defined")

// DefaultTaskInterval is the minimum interval between background runs.
const DefaultTaskInterval = 15 * time.Minute

// Tasks is the in-process background task registry. A registered task runs
// on its own goroutine every interval until unregistered or the registry is
// closed.
type Tasks struct {
	interval time.Duration
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	defs       map[string]TaskFunc
	registered map[string]context.CancelFunc
}

// NewTasks creates a registry running tasks every interval.
func NewTasks(interval time.Duration, logger zerolog.Logger) *Tasks {
	if interval <= 0 {
		interval = DefaultTaskInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Tasks{
		interval:   interval,
		log:        logger.With().Str("component", "background_tasks").Logger(),
		ctx:        ctx,
		cancel:     cancel,
		defs:       make(map[string]TaskFunc),
		registered: make(map[string]context.CancelFunc),
	}
}

// Define associates name with fn. Defining does not schedule anything.
func (t *Tasks) Define(name string, fn TaskFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.defs[name] = fn
}

// IsRegistered reports whether name is scheduled.
func (t *Tasks) IsRegistered(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.registered[name]
	return ok
}

// Register schedules a defined task. Registering a scheduled task is a
// no-op.
func (t *Tasks) Register(_ context.Context, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ctx.Err() != nil {
		return fmt.Errorf("registering %s: registry closed", name)
	}
	fn, ok := t.defs[name]
	if !ok {
		return fmt.Errorf("registering %s: %w", name, ErrUndefinedTask)
	}
	if _, ok := t.registered[name]; ok {
		return nil
	}

	ctx, cancel := context.WithCancel(t.ctx)
	t.registered[name] = cancel
	t.wg.Add(1)
	go t.run(ctx, name, fn)

	t.log.Info().Str("task", name).Dur("interval", t.interval).Msg("background task registered")
	return nil
}

// Unregister stops a scheduled task.
func (t *Tasks) Unregister(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cancel, ok := t.registered[name]; ok {
		cancel()
		delete(t.registered, name)
	}
}

// Close stops every task and waits for running bodies to return.
func (t *Tasks) Close() {
	t.mu.Lock()
	t.cancel()
	t.registered = make(map[string]context.CancelFunc)
	t.mu.Unlock()

	t.wg.Wait()
}

func (t *Tasks) run(ctx context.Context, name string, fn TaskFunc) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res := fn(ctx)
			t.log.Debug().Str("task", name).Stringer("result", res).Msg("background task ran")
		}
	}
}
