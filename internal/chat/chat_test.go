package chat

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/brancard/internal/api"
	"github.com/nhle/brancard/internal/model"
	"github.com/nhle/brancard/internal/state"
)

var base = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func msg(id, from, to int64, minute int, text string) model.ChatMessage {
	return model.ChatMessage{
		ID:         id,
		SenderID:   from,
		ReceiverID: to,
		Message:    text,
		Timestamp:  model.NewTimestamp(base.Add(time.Duration(minute) * time.Minute)),
	}
}

func TestConversation(t *testing.T) {
	msgs := []model.ChatMessage{
		msg(4, 3, 7, 5, "d"),
		msg(1, 7, 3, 1, "a"),
		msg(2, 3, 9, 2, "other pair"),
		msg(6, 7, 3, 5, "tie, higher id"),
		msg(3, 3, 7, 3, "c"),
	}

	got := Conversation(msgs, 3, 7)

	var ids []int64
	for _, m := range got {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []int64{1, 3, 4, 6}, ids)
	assert.Equal(t, got, Conversation(msgs, 7, 3), "pair is unordered")
	assert.Empty(t, Conversation(msgs, 7, 9))
}

func TestPartners(t *testing.T) {
	c := state.Chat{
		Messages: []model.ChatMessage{
			msg(1, 7, 3, 1, "a"),
			msg(2, 3, 9, 4, "b"),
			msg(3, 3, 7, 2, "c"),
			msg(4, 8, 9, 9, "not mine"),
		},
		Unread: map[int64]int{7: 2},
		Typing: map[int64]bool{9: true},
	}
	c.Messages[0].SenderName = "Sara"

	got := Partners(c, 3)

	require.Len(t, got, 2)
	assert.Equal(t, int64(9), got[0].ID)
	assert.True(t, got[0].Typing)
	assert.Equal(t, int64(7), got[1].ID)
	assert.Equal(t, "Sara", got[1].Name)
	assert.Equal(t, 2, got[1].Unread)
	assert.Equal(t, int64(3), got[1].Last.ID)
}

type fakeBackend struct {
	msgs       []model.ChatMessage
	members    []model.Member
	membersErr error
	loadErr    error
	sendErr    error
	sent       []model.ChatMessageRequest
}

func (b *fakeBackend) ChatMessages(context.Context) ([]model.ChatMessage, error) {
	return b.msgs, b.loadErr
}

func (b *fakeBackend) Members(context.Context, api.PageQuery) (model.Page[model.Member], error) {
	return model.Page[model.Member]{Items: b.members, TotalCount: len(b.members)}, b.membersErr
}

func (b *fakeBackend) SendChatMessage(_ context.Context, req model.ChatMessageRequest) (model.ChatMessage, error) {
	if b.sendErr != nil {
		return model.ChatMessage{}, b.sendErr
	}
	b.sent = append(b.sent, req)
	m := model.ChatMessage{ID: int64(100 + len(b.sent)), SenderID: req.SenderID, ReceiverID: req.ReceiverID, Message: req.Message}
	b.msgs = append(b.msgs, m)
	return m, nil
}

type recordingCache struct {
	upserts [][]model.ChatMessage
}

func (c *recordingCache) UpsertChatMessages(_ context.Context, msgs []model.ChatMessage) error {
	c.upserts = append(c.upserts, msgs)
	return nil
}

func newService(t *testing.T, signedIn bool) (*Service, *fakeBackend, *recordingCache, *state.Store) {
	t.Helper()
	store := state.New()
	t.Cleanup(store.Close)
	if signedIn {
		store.SetIdentity(model.Identity{ID: 3})
	}
	backend := &fakeBackend{msgs: []model.ChatMessage{msg(1, 7, 3, 1, "salut")}}
	cache := &recordingCache{}
	return NewService(backend, cache, store, zerolog.Nop()), backend, cache, store
}

func TestLoad(t *testing.T) {
	svc, backend, cache, store := newService(t, true)

	require.NoError(t, svc.Load(context.Background()))
	assert.Len(t, store.Snapshot().Chat.Messages, 1)
	assert.Len(t, cache.upserts, 1)

	backend.loadErr = errors.New("offline")
	require.Error(t, svc.Load(context.Background()))
	assert.Len(t, store.Snapshot().Chat.Messages, 1, "last known messages kept")
}

func TestLoad_MemberDirectory(t *testing.T) {
	svc, backend, _, store := newService(t, true)
	backend.members = []model.Member{
		{ID: 3, FirstName: "Moi"},
		{ID: 7, FirstName: "Sara", LastName: "Roy"},
		{ID: 12, Name: "Dispatch"},
	}

	require.NoError(t, svc.Load(context.Background()))

	snap := store.Snapshot()
	assert.Len(t, snap.Chat.Members, 3)

	got := Partners(snap.Chat, 3)
	require.Len(t, got, 2, "self is not a partner")
	assert.Equal(t, int64(7), got[0].ID, "conversations come first")
	assert.Equal(t, "Sara Roy", got[0].Name)
	assert.Equal(t, int64(1), got[0].Last.ID)
	assert.Equal(t, int64(12), got[1].ID)
	assert.Equal(t, "Dispatch", got[1].Name)
	assert.Zero(t, got[1].Last.ID)
}

func TestLoad_MemberFailureKeepsMessages(t *testing.T) {
	svc, backend, _, store := newService(t, true)
	store.SetMembers([]model.Member{{ID: 7}})
	backend.membersErr = &api.Error{StatusCode: http.StatusForbidden}

	require.NoError(t, svc.Load(context.Background()))

	snap := store.Snapshot()
	assert.Len(t, snap.Chat.Messages, 1)
	assert.Len(t, snap.Chat.Members, 1, "last known directory kept")
}

// gatedBackend blocks ChatMessages until release is closed.
type gatedBackend struct {
	*fakeBackend
	entered chan struct{}
	release chan struct{}
}

func (b *gatedBackend) ChatMessages(ctx context.Context) ([]model.ChatMessage, error) {
	close(b.entered)
	<-b.release
	return b.fakeBackend.ChatMessages(ctx)
}

func TestLoad_RequiresIdentity(t *testing.T) {
	svc, _, cache, store := newService(t, false)

	assert.ErrorIs(t, svc.Load(context.Background()), ErrNoIdentity)
	assert.Empty(t, store.Snapshot().Chat.Messages)
	assert.Empty(t, cache.upserts)
}

func TestLoad_DropsResultAfterIdentityChange(t *testing.T) {
	tests := []struct {
		name   string
		change func(*state.Store)
	}{
		{"signed out", func(s *state.Store) { s.ClearIdentity() }},
		{"other user", func(s *state.Store) {
			s.ClearIdentity()
			s.SetIdentity(model.Identity{ID: 9})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := state.New()
			t.Cleanup(store.Close)
			store.SetIdentity(model.Identity{ID: 3})

			backend := &gatedBackend{
				fakeBackend: &fakeBackend{
					msgs:    []model.ChatMessage{msg(1, 7, 3, 1, "private to user 3")},
					members: []model.Member{{ID: 7}},
				},
				entered:     make(chan struct{}),
				release:     make(chan struct{}),
			}
			cache := &recordingCache{}
			svc := NewService(backend, cache, store, zerolog.Nop())

			done := make(chan error, 1)
			go func() { done <- svc.Load(context.Background()) }()

			<-backend.entered
			tt.change(store)
			close(backend.release)

			require.NoError(t, <-done)
			snap := store.Snapshot()
			assert.Empty(t, snap.Chat.Messages)
			assert.Empty(t, snap.Chat.Members)
			assert.Empty(t, cache.upserts)
		})
	}
}

func TestSend_ReloadsAfterPost(t *testing.T) {
	svc, backend, _, store := newService(t, true)

	sent, err := svc.Send(context.Background(), 7, "  j'arrive  ")
	require.NoError(t, err)

	assert.Equal(t, []model.ChatMessageRequest{{SenderID: 3, ReceiverID: 7, Message: "j'arrive"}}, backend.sent)
	assert.Equal(t, int64(101), sent.ID)
	assert.Len(t, store.Snapshot().Chat.Messages, 2)
}

func TestSend_ReloadFailureAppendsSentMessage(t *testing.T) {
	svc, backend, _, store := newService(t, true)
	backend.loadErr = errors.New("offline")

	_, err := svc.Send(context.Background(), 7, "ok")
	require.NoError(t, err)

	snap := store.Snapshot()
	require.Len(t, snap.Chat.Messages, 1)
	assert.Equal(t, "ok", snap.Chat.Messages[0].Message)
	assert.Empty(t, snap.Chat.Unread, "own message is not unread")
}

func TestSend_Failures(t *testing.T) {
	t.Run("blank", func(t *testing.T) {
		svc, backend, _, _ := newService(t, true)
		_, err := svc.Send(context.Background(), 7, "   ")
		assert.ErrorIs(t, err, ErrEmptyMessage)
		assert.Empty(t, backend.sent)
	})

	t.Run("signed out", func(t *testing.T) {
		svc, _, _, _ := newService(t, false)
		_, err := svc.Send(context.Background(), 7, "hello")
		assert.ErrorIs(t, err, ErrNoIdentity)
	})

	t.Run("backend message", func(t *testing.T) {
		svc, backend, _, store := newService(t, true)
		backend.sendErr = &api.Error{StatusCode: http.StatusBadRequest, Message: "Destinataire inconnu"}

		_, err := svc.Send(context.Background(), 7, "hello")
		require.Error(t, err)
		assert.Equal(t, "Destinataire inconnu", store.Snapshot().Toast.Error)
	})

	t.Run("network", func(t *testing.T) {
		svc, backend, _, store := newService(t, true)
		backend.sendErr = errors.New("timeout")

		_, err := svc.Send(context.Background(), 7, "hello")
		require.Error(t, err)
		assert.Equal(t, msgSendFailed, store.Snapshot().Toast.Error)
	})
}

func TestOpenAndClose(t *testing.T) {
	svc, _, _, store := newService(t, true)
	store.ReceiveChatMessage(msg(5, 7, 3, 1, "a"), 3)
	store.ReceiveChatMessage(msg(6, 7, 3, 2, "b"), 3)
	require.Equal(t, 2, store.Snapshot().Chat.Unread[7])

	svc.Open(7)
	snap := store.Snapshot()
	assert.Equal(t, int64(7), snap.Chat.OpenChatWith)
	assert.Zero(t, snap.Chat.Unread[7])

	svc.Close()
	assert.Zero(t, store.Snapshot().Chat.OpenChatWith)
}
