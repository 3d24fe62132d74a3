// Package typing sends debounced typing indicators over the chat hub.
package typing

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/brancard/internal/model"
)

// CommandSendTypingStatus is the hub method invoked with
// (senderID, receiverID, isTyping).
const CommandSendTypingStatus = "SendTypingStatus"

// DefaultDebounce is how long after the last keystroke "typing stopped" is
// sent automatically.
const DefaultDebounce = 2 * time.Second

// Sender is the hub session the signal travels over.
type Sender interface {
	Connected() bool
	Send(ctx context.Context, target string, args ...any) error
}

// IdentitySource returns the signed-in user, or nil.
type IdentitySource interface {
	Identity() *model.Identity
}

// Timer is the part of *time.Timer the signaler needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Option customizes a Signaler.
type Option func(*Signaler)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(s *Signaler) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// WithAfterFunc replaces the timer source.
func WithAfterFunc(fn AfterFunc) Option {
	return func(s *Signaler) { s.afterFunc = fn }
}

// Signaler holds at most one pending auto-stop timer.
type Signaler struct {
	hub      Sender
	identity IdentitySource
	log      zerolog.Logger

	debounce  time.Duration
	afterFunc AfterFunc

	mu      sync.Mutex
	pending Timer
	gen     uint64
}

// NewSignaler creates a Signaler.
func NewSignaler(hub Sender, identity IdentitySource, logger zerolog.Logger, opts ...Option) *Signaler {
	s := &Signaler{
		hub:       hub,
		identity:  identity,
		log:       logger.With().Str("component", "typing").Logger(),
		debounce:  DefaultDebounce,
		afterFunc: realAfterFunc,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendTyping reports whether the user is typing to counterparty. A true
// value is sent immediately and re-arms the auto-stop timer; false cancels
// the timer and is sent immediately. Nothing happens without a connected
// session and a signed-in user.
func (s *Signaler) SendTyping(ctx context.Context, counterparty int64, isTyping bool) {
	if !s.hub.Connected() {
		return
	}
	id := s.identity.Identity()
	if id == nil {
		return
	}

	s.mu.Lock()
	gen := s.cancelLocked()
	if isTyping {
		s.pending = s.afterFunc(s.debounce, func() {
			s.mu.Lock()
			if s.gen != gen {
				s.mu.Unlock()
				return
			}
			s.pending = nil
			s.mu.Unlock()
			s.send(context.WithoutCancel(ctx), id.ID, counterparty, false)
		})
	}
	s.mu.Unlock()

	s.send(ctx, id.ID, counterparty, isTyping)
}

// Cleanup cancels the pending auto-stop without sending anything.
func (s *Signaler) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
}

// Pending reports whether an auto-stop is armed.
func (s *Signaler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// cancelLocked stops the pending timer and invalidates any callback that
// already fired. It returns the new generation.
func (s *Signaler) cancelLocked() uint64 {
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.gen++
	return s.gen
}

func (s *Signaler) send(ctx context.Context, sender, receiver int64, isTyping bool) {
	if err := s.hub.Send(ctx, CommandSendTypingStatus, sender, receiver, isTyping); err != nil {
		s.log.Debug().Err(err).Int64("receiver_id", receiver).Bool("typing", isTyping).Msg("typing status not sent")
	}
}
