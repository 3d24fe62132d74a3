// Package chat loads, orders and sends one-to-one chat messages.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/brancard/internal/api"
	"github.com/nhle/brancard/internal/model"
	"github.com/nhle/brancard/internal/state"
)

const msgSendFailed = "Failed to send message"

// memberPageSize bounds the directory fetched with the messages.
const memberPageSize = 200

var (
	// ErrEmptyMessage is returned when sending blank text.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrNoIdentity is returned when no user is signed in.
	ErrNoIdentity = errors.New("no signed-in user")
)

// Conversation returns the messages exchanged between a and b, oldest
// first. Messages with equal timestamps keep id order.
func Conversation(msgs []model.ChatMessage, a, b int64) []model.ChatMessage {
	pair := model.NewPairKey(a, b)
	out := make([]model.ChatMessage, 0)
	for _, m := range msgs {
		if m.Pair() == pair {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := out[i].Timestamp.Time, out[j].Timestamp.Time
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Partner summarizes a conversation from the point of view of self.
type Partner struct {
	ID     int64
	Name   string
	Last   model.ChatMessage
	Unread int
	Typing bool
}

// Partners lists self's conversations, most recent first, followed by the
// directory members self has not talked to yet.
func Partners(c state.Chat, self int64) []Partner {
	byID := make(map[int64]*Partner)
	for _, m := range c.Messages {
		var id int64
		var name string
		switch self {
		case m.SenderID:
			id, name = m.ReceiverID, m.ReceiverName
		case m.ReceiverID:
			id, name = m.SenderID, m.SenderName
		default:
			continue
		}
		p, ok := byID[id]
		if !ok {
			p = &Partner{ID: id}
			byID[id] = p
		}
		if name != "" {
			p.Name = name
		}
		if !m.Timestamp.Before(p.Last.Timestamp.Time) {
			p.Last = m
		}
	}

	for _, m := range c.Members {
		if m.ID == self {
			continue
		}
		p, ok := byID[m.ID]
		if !ok {
			p = &Partner{ID: m.ID}
			byID[m.ID] = p
		}
		if p.Name == "" {
			p.Name = m.DisplayName()
		}
	}

	out := make([]Partner, 0, len(byID))
	for id, p := range byID {
		p.Unread = c.Unread[id]
		p.Typing = c.Typing[id]
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].Last.Timestamp.Time, out[j].Last.Timestamp.Time
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Backend is the subset of the REST API used for chat.
type Backend interface {
	ChatMessages(ctx context.Context) ([]model.ChatMessage, error)
	Members(ctx context.Context, q api.PageQuery) (model.Page[model.Member], error)
	SendChatMessage(ctx context.Context, req model.ChatMessageRequest) (model.ChatMessage, error)
}

// Cache keeps the last loaded messages for offline start.
type Cache interface {
	UpsertChatMessages(ctx context.Context, msgs []model.ChatMessage) error
}

// Service is the chat use-case layer.
type Service struct {
	backend Backend
	cache   Cache
	store   *state.Store
	log     zerolog.Logger
}

// NewService creates a Service. cache may be nil.
func NewService(backend Backend, cache Cache, store *state.Store, logger zerolog.Logger) *Service {
	return &Service{
		backend: backend,
		cache:   cache,
		store:   store,
		log:     logger.With().Str("component", "chat").Logger(),
	}
}

// Load replaces the message list and the member directory with the
// backend's. On failure the current values are kept; a directory failure
// alone does not fail the load. A result that arrives after the signed-in
// user changed is dropped.
func (s *Service) Load(ctx context.Context) error {
	id := s.store.Identity()
	if id == nil {
		return ErrNoIdentity
	}

	var (
		msgs       []model.ChatMessage
		members    model.Page[model.Member]
		membersErr error
		g          errgroup.Group
	)
	g.Go(func() error {
		var err error
		msgs, err = s.backend.ChatMessages(ctx)
		return err
	})
	g.Go(func() error {
		members, membersErr = s.backend.Members(ctx, api.PageQuery{Size: memberPageSize})
		return nil
	})
	err := g.Wait()

	if cur := s.store.Identity(); cur == nil || cur.ID != id.ID {
		s.log.Debug().Int64("user_id", id.ID).Msg("discarding chat load for previous user")
		return nil
	}
	if membersErr != nil {
		s.log.Warn().Err(membersErr).Msg("loading member directory")
	} else {
		s.store.SetMembers(members.Items)
	}
	if err != nil {
		return fmt.Errorf("loading chat: %w", err)
	}
	s.store.SetChatMessages(msgs)

	if s.cache != nil {
		if err := s.cache.UpsertChatMessages(ctx, msgs); err != nil {
			s.log.Warn().Err(err).Msg("caching chat messages")
		}
	}
	return nil
}

// Send posts text to receiver and reloads the conversation list.
func (s *Service) Send(ctx context.Context, receiver int64, text string) (model.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.ChatMessage{}, ErrEmptyMessage
	}
	id := s.store.Identity()
	if id == nil {
		return model.ChatMessage{}, ErrNoIdentity
	}

	msg, err := s.backend.SendChatMessage(ctx, model.ChatMessageRequest{
		SenderID:   id.ID,
		ReceiverID: receiver,
		Message:    text,
	})
	if err != nil {
		var apiErr *api.Error
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			s.store.ShowError(apiErr.Message)
		} else {
			s.store.ShowError(msgSendFailed)
		}
		return model.ChatMessage{}, fmt.Errorf("sending chat message: %w", err)
	}

	if err := s.Load(ctx); err != nil {
		s.log.Warn().Err(err).Msg("reloading chat after send")
		if cur := s.store.Identity(); cur != nil && cur.ID == id.ID {
			s.store.ReceiveChatMessage(msg, id.ID)
		}
	}
	return msg, nil
}

// Open makes counterparty the open conversation and clears its unread
// counter.
func (s *Service) Open(counterparty int64) {
	s.store.OpenConversation(counterparty)
}

// Close clears the open conversation.
func (s *Service) Close() {
	s.store.OpenConversation(0)
}
