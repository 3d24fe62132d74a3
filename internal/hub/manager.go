package hub

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Key identifies a session. A change of any field means the previous
// session must be torn down before a new one starts.
type Key struct {
	Endpoint string
	Token    string
	UserID   int64
}

// Factory builds the connection for a key.
type Factory func(key Key) *Connection

type session struct {
	key   Key
	conn  *Connection
	epoch uint64
}

// Manager keeps at most one live session. Handlers and state callbacks are
// bound to the session epoch they were registered under; anything fired by
// a superseded session is dropped.
type Manager struct {
	factory Factory
	log     zerolog.Logger

	// mu serializes Connect and Disconnect.
	mu      sync.Mutex
	current atomic.Pointer[session]
	epoch   atomic.Uint64

	hmu      sync.RWMutex
	handlers map[string][]Handler
	onState  []func(State)
	onFail   []func(error)
}

// NewManager creates a Manager that builds connections with factory.
func NewManager(factory Factory, logger zerolog.Logger) *Manager {
	return &Manager{
		factory:  factory,
		log:      logger.With().Str("component", "hub_manager").Logger(),
		handlers: make(map[string][]Handler),
	}
}

// On subscribes h to target for every session started after the call.
func (m *Manager) On(target string, h Handler) {
	m.hmu.Lock()
	defer m.hmu.Unlock()
	m.handlers[target] = append(m.handlers[target], h)
}

// OnStateChange registers fn for state transitions of the live session.
func (m *Manager) OnStateChange(fn func(State)) {
	m.hmu.Lock()
	defer m.hmu.Unlock()
	m.onState = append(m.onState, fn)
}

// OnFailure registers fn for the unrecoverable failure of the live session.
func (m *Manager) OnFailure(fn func(error)) {
	m.hmu.Lock()
	defer m.hmu.Unlock()
	m.onFail = append(m.onFail, fn)
}

// Connect makes key the live session. A live session for the same key is
// kept; any other session is stopped and awaited first.
func (m *Manager) Connect(ctx context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s := m.current.Load(); s != nil {
		if s.key == key && s.conn.State() != StateClosed {
			return nil
		}
		m.epoch.Add(1)
		s.conn.Stop()
	}

	epoch := m.epoch.Add(1)
	conn := m.factory(key)
	m.bind(conn, epoch)
	m.current.Store(&session{key: key, conn: conn, epoch: epoch})

	m.log.Debug().Uint64("epoch", epoch).Int64("user_id", key.UserID).Msg("starting hub session")
	return conn.Start(ctx)
}

// Disconnect stops the live session, if any, and waits for it. Callbacks
// still in flight from it are discarded.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.current.Load()
	if s == nil || s.conn.State() == StateClosed {
		return
	}
	m.epoch.Add(1)
	s.conn.Stop()

	m.hmu.RLock()
	fns := append([]func(State){}, m.onState...)
	m.hmu.RUnlock()
	for _, fn := range fns {
		fn(StateClosed)
	}
}

// Send invokes target on the live session.
func (m *Manager) Send(ctx context.Context, target string, args ...any) error {
	s := m.current.Load()
	if s == nil {
		return ErrNotConnected
	}
	return s.conn.Send(ctx, target, args...)
}

// State returns the state of the live session, Idle when none was started.
func (m *Manager) State() State {
	s := m.current.Load()
	if s == nil {
		return StateIdle
	}
	return s.conn.State()
}

// Connected reports whether the live session is Connected.
func (m *Manager) Connected() bool {
	return m.State() == StateConnected
}

// Key returns the key of the live session.
func (m *Manager) Key() (Key, bool) {
	s := m.current.Load()
	if s == nil {
		return Key{}, false
	}
	return s.key, true
}

func (m *Manager) bind(conn *Connection, epoch uint64) {
	m.hmu.RLock()
	defer m.hmu.RUnlock()

	live := func() bool { return m.epoch.Load() == epoch }

	for target, hs := range m.handlers {
		for _, h := range hs {
			conn.On(target, func(args []json.RawMessage) {
				if !live() {
					m.log.Debug().Str("target", target).Uint64("epoch", epoch).Msg("dropping event from stale session")
					return
				}
				h(args)
			})
		}
	}

	for _, fn := range m.onState {
		conn.OnStateChange(func(s State) {
			if live() {
				fn(s)
			}
		})
	}
	for _, fn := range m.onFail {
		conn.OnFailure(func(err error) {
			if live() {
				fn(err)
			}
		})
	}
}
