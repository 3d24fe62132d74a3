// Package tray is the terminal notification surface. Scheduled local
// notifications are queued for the UI, which shows them in a strip under the
// header and lets the user open them.
package tray

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/brancard/internal/model"
	"github.com/nhle/brancard/internal/notify"
)

// ErrFull is returned when the UI has fallen behind and the queue is full.
var ErrFull = errors.New("notification tray is full")

// DefaultBuffer is the queue length used by New when size is not positive.
const DefaultBuffer = 32

// Entry is a raised notification with its resolved channel.
type Entry struct {
	Notification model.LocalNotification
	Channel      notify.Channel
	RaisedAt     time.Time
}

// Tray implements notify.LocalNotifier for the terminal.
type Tray struct {
	mu       sync.RWMutex
	channels map[string]notify.Channel

	entries chan Entry
	now     func() time.Time
	log     zerolog.Logger
}

// New creates a tray holding up to size pending entries.
func New(size int, logger zerolog.Logger) *Tray {
	if size <= 0 {
		size = DefaultBuffer
	}
	return &Tray{
		channels: make(map[string]notify.Channel),
		entries:  make(chan Entry, size),
		now:      time.Now,
		log:      logger.With().Str("component", "tray").Logger(),
	}
}

// Configure records the channels. Later calls replace earlier ones.
func (t *Tray) Configure(_ context.Context, channels []notify.Channel) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.channels = make(map[string]notify.Channel, len(channels))
	for _, ch := range channels {
		t.channels[ch.ID] = ch
	}
	return nil
}

// Schedule queues n without blocking.
func (t *Tray) Schedule(_ context.Context, n model.LocalNotification) error {
	e := Entry{Notification: n, Channel: t.channel(n.Channel), RaisedAt: t.now()}
	select {
	case t.entries <- e:
		t.log.Debug().Str("channel", n.Channel).Int64("notification_id", n.Data.ID).Msg("notification queued")
		return nil
	default:
		return ErrFull
	}
}

// Entries delivers queued notifications. It has a single consumer.
func (t *Tray) Entries() <-chan Entry {
	return t.entries
}

func (t *Tray) channel(id string) notify.Channel {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if ch, ok := t.channels[id]; ok {
		return ch
	}
	if ch, ok := t.channels[model.ChannelDefault]; ok {
		return ch
	}
	return notify.Channel{ID: id, Name: id}
}
