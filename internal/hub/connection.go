package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is the lifecycle state of a hub connection.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrNotConnected is returned by Send when the session is not Connected.
	ErrNotConnected = errors.New("hub not connected")

	// ErrRetriesExhausted is the failure reported after the retry policy
	// gives up.
	ErrRetriesExhausted = errors.New("hub retries exhausted")

	// ErrClosed is returned when starting a connection that was stopped.
	ErrClosed = errors.New("hub connection closed")
)

// DefaultRetryDelays is the reconnect schedule. The last delay repeats.
var DefaultRetryDelays = []time.Duration{
	0,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
}

const (
	DefaultMaxRetries = 5
	DefaultKeepAlive  = 15 * time.Second
)

// Handler receives the arguments of an inbound invocation.
type Handler func(args []json.RawMessage)

// Options configures a Connection.
type Options struct {
	URL string

	// Token is called before every dial attempt.
	Token func() (string, error)

	Dialer Dialer

	RetryDelays []time.Duration
	MaxRetries  int

	// KeepAlive is the ping interval. Zero disables pings.
	KeepAlive time.Duration

	Logger zerolog.Logger
}

// Connection is one hub session with automatic reconnect.
type Connection struct {
	opts Options
	log  zerolog.Logger

	mu            sync.Mutex
	state         State
	transport     Transport
	handlers      map[string][]Handler
	stateHandlers []func(State)
	failHandlers  []func(error)
	err           error
	started       bool
	cancel        context.CancelFunc
	done          chan struct{}
}

// NewConnection creates an idle connection. Nothing is dialed until Start.
func NewConnection(opts Options) *Connection {
	if len(opts.RetryDelays) == 0 {
		opts.RetryDelays = DefaultRetryDelays
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Dialer == nil {
		opts.Dialer = &WebSocketDialer{}
	}
	return &Connection{
		opts:     opts,
		log:      opts.Logger.With().Str("component", "hub").Str("hub", redactURL(opts.URL)).Logger(),
		handlers: make(map[string][]Handler),
		done:     make(chan struct{}),
	}
}

// On subscribes h to inbound invocations of target. Handlers run on the
// read loop in arrival order and must not block.
func (c *Connection) On(target string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[target] = append(c.handlers[target], h)
}

// OnStateChange registers fn to be called after every state transition.
func (c *Connection) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateHandlers = append(c.stateHandlers, fn)
}

// OnFailure registers fn to be called once if the connection closes because
// of an unrecoverable error.
func (c *Connection) OnFailure(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failHandlers = append(c.failHandlers, fn)
}

// State returns the current state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the failure that closed the connection, if any.
func (c *Connection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done is closed once the connection reached Closed and its run loop exited.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Start launches the run loop. It returns immediately; progress is observed
// through State, OnStateChange and Done. Cancelling ctx stops the connection.
func (c *Connection) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	c.setState(StateConnecting)
	go c.run(ctx)
	return nil
}

// Stop closes the connection and waits for its run loop to exit. It is safe
// to call more than once and on a connection that was never started.
func (c *Connection) Stop() {
	c.mu.Lock()
	if !c.started {
		c.started = true
		c.mu.Unlock()
		c.setState(StateClosed)
		close(c.done)
		return
	}
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-c.done
}

// Send invokes target on the server without waiting for a result. It fails
// fast with ErrNotConnected unless the session is Connected.
func (c *Connection) Send(ctx context.Context, target string, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	tr := c.transport
	connected := c.state == StateConnected
	c.mu.Unlock()
	if !connected || tr == nil {
		return ErrNotConnected
	}

	if args == nil {
		args = []any{}
	}
	data, err := encodeRecord(invocation{Type: typeInvocation, Target: target, Arguments: args})
	if err != nil {
		return err
	}
	if err := tr.WriteMessage(data); err != nil {
		return fmt.Errorf("sending %s: %w", target, err)
	}
	return nil
}

func (c *Connection) run(ctx context.Context) {
	defer close(c.done)

	retries := 0
	for {
		tr, pending, err := c.connect(ctx)
		if err == nil {
			retries = 0
			c.setTransport(tr)
			c.setState(StateConnected)
			c.log.Info().Msg("hub connected")

			err = c.serve(ctx, tr, pending)
			c.setTransport(nil)

			if ctx.Err() != nil {
				c.finish(nil)
				return
			}
			var closeErr *CloseError
			if errors.As(err, &closeErr) && !closeErr.AllowReconnect {
				c.log.Warn().Err(err).Msg("hub closed by server")
				c.finish(err)
				return
			}
			c.log.Warn().Err(err).Msg("hub connection dropped")
			c.setState(StateReconnecting)
		} else {
			if ctx.Err() != nil {
				c.finish(nil)
				return
			}
			c.log.Warn().Err(err).Int("retry", retries).Msg("hub connect attempt failed")
		}

		if retries >= c.opts.MaxRetries {
			c.finish(fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, retries, err))
			return
		}

		delay := c.retryDelay(retries)
		retries++
		if !sleep(ctx, delay) {
			c.finish(nil)
			return
		}
	}
}

// connect dials and performs the handshake. Records that arrived in the same
// frame as the handshake response are returned for processing.
func (c *Connection) connect(ctx context.Context) (Transport, [][]byte, error) {
	token := ""
	if c.opts.Token != nil {
		t, err := c.opts.Token()
		if err != nil {
			return nil, nil, fmt.Errorf("loading access token: %w", err)
		}
		token = t
	}

	tr, err := c.opts.Dialer.Dial(ctx, c.opts.URL, token)
	if err != nil {
		return nil, nil, err
	}

	stop := context.AfterFunc(ctx, func() { tr.Close() })
	defer stop()

	req, err := encodeRecord(handshake)
	if err != nil {
		tr.Close()
		return nil, nil, err
	}
	if err := tr.WriteMessage(req); err != nil {
		tr.Close()
		return nil, nil, fmt.Errorf("sending handshake: %w", err)
	}

	frame, err := tr.ReadMessage()
	if err != nil {
		tr.Close()
		return nil, nil, fmt.Errorf("reading handshake: %w", err)
	}
	records := splitRecords(frame)
	if len(records) == 0 {
		tr.Close()
		return nil, nil, errors.New("empty handshake response")
	}
	if err := decodeHandshake(records[0]); err != nil {
		tr.Close()
		return nil, nil, err
	}

	return tr, records[1:], nil
}

// serve runs the read loop and keep-alive until the transport fails, the
// server closes the session or ctx is cancelled.
func (c *Connection) serve(ctx context.Context, tr Transport, pending [][]byte) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { tr.Close() })
	defer stop()

	if c.opts.KeepAlive > 0 {
		go c.keepAlive(ctx, cancel, tr)
	}

	for _, rec := range pending {
		if err := c.handleRecord(rec); err != nil {
			return err
		}
	}

	for {
		frame, err := tr.ReadMessage()
		if err != nil {
			return fmt.Errorf("reading hub frame: %w", err)
		}
		for _, rec := range splitRecords(frame) {
			if err := c.handleRecord(rec); err != nil {
				return err
			}
		}
	}
}

func (c *Connection) keepAlive(ctx context.Context, cancel context.CancelFunc, tr Transport) {
	data, err := encodeRecord(ping{Type: typePing})
	if err != nil {
		return
	}
	ticker := time.NewTicker(c.opts.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := tr.WriteMessage(data); err != nil {
				c.log.Debug().Err(err).Msg("keep-alive failed")
				cancel()
				return
			}
		}
	}
}

func (c *Connection) handleRecord(rec []byte) error {
	var msg envelope
	if err := json.Unmarshal(rec, &msg); err != nil {
		c.log.Warn().Err(err).Msg("discarding malformed hub record")
		return nil
	}

	switch msg.Type {
	case typeInvocation:
		c.mu.Lock()
		handlers := append([]Handler(nil), c.handlers[msg.Target]...)
		c.mu.Unlock()
		if len(handlers) == 0 {
			c.log.Debug().Str("target", msg.Target).Msg("no handler for hub invocation")
		}
		for _, h := range handlers {
			h(msg.Arguments)
		}
	case typeClose:
		return &CloseError{Message: msg.Error, AllowReconnect: msg.AllowReconnect}
	case typePing:
	default:
		// Stream items, completions and cancellations are never requested.
	}
	return nil
}

func (c *Connection) setTransport(tr Transport) {
	c.mu.Lock()
	c.transport = tr
	c.mu.Unlock()
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	handlers := append([]func(State){}, c.stateHandlers...)
	c.mu.Unlock()

	for _, fn := range handlers {
		fn(s)
	}
}

// finish moves to Closed and reports err, if any, to failure handlers. It
// only runs once, from the run loop.
func (c *Connection) finish(err error) {
	c.mu.Lock()
	c.err = err
	fail := append([]func(error){}, c.failHandlers...)
	c.mu.Unlock()

	c.setState(StateClosed)
	if err == nil {
		c.log.Info().Msg("hub closed")
		return
	}
	c.log.Error().Err(err).Msg("hub failed")
	for _, fn := range fail {
		fn(err)
	}
}

func (c *Connection) retryDelay(retry int) time.Duration {
	delays := c.opts.RetryDelays
	if retry >= len(delays) {
		return delays[len(delays)-1]
	}
	return delays[retry]
}

// sleep waits for d or until ctx is done. It reports whether the full delay
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func redactURL(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}
