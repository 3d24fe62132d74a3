package store_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/brancard/internal/model"
	"github.com/nhle/brancard/internal/payload"
	"github.com/nhle/brancard/internal/store"
	"github.com/nhle/brancard/tests/testutil"
)

var base = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func notification(id, userID int64, minute int, raw string) model.NotificationTarget {
	n := model.NotificationTarget{
		ID:           id,
		InstanceID:   id * 10,
		UserID:       userID,
		PushStatus:   "Sent",
		InAppVisible: true,
		CreationDate: model.NewTimestamp(base.Add(time.Duration(minute) * time.Minute)),
	}
	n.Instance.RawPayload = json.RawMessage(raw)
	n.Instance.Payload = payload.Normalize(n.Instance.RawPayload)
	return n
}

func TestMigrations(t *testing.T) {
	s := testutil.NewTestStore(t)

	v, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestMigrations_ReopenIsNoOp(t *testing.T) {
	path := t.TempDir() + "/cache.db"

	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.UpsertNotifications(context.Background(), 3, []model.NotificationTarget{
		notification(1, 3, 0, `{"Title":"Ticket créé"}`),
	}))
	require.NoError(t, s.Close())

	s, err = store.NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	items, err := s.GetNotifications(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestNotifications_UpsertAndGet(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertNotifications(ctx, 3, []model.NotificationTarget{
		notification(1, 3, 0, `{"Title":"Ticket créé","RedirectUrl":"/5"}`),
		notification(2, 3, 5, `{"title":"Ticket terminé"}`),
	}))
	require.NoError(t, s.UpsertNotifications(ctx, 4, []model.NotificationTarget{
		notification(9, 4, 1, `{}`),
	}))

	items, err := s.GetNotifications(ctx, 3)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, int64(2), items[0].ID, "newest first")
	assert.Equal(t, "Ticket terminé", items[0].Title())
	assert.Equal(t, "/5", items[1].Instance.Payload.RedirectURL)
	assert.Equal(t, int64(10), items[1].InstanceID)
	assert.True(t, items[1].InAppVisible)
	assert.False(t, items[1].IsRead)
	assert.True(t, base.Equal(items[1].CreationDate.Time))
	assert.JSONEq(t, `{"Title":"Ticket créé","RedirectUrl":"/5"}`, string(items[1].Instance.RawPayload))
}

func TestNotifications_UpsertReplaces(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	n := notification(1, 3, 0, `{"Title":"v1"}`)
	require.NoError(t, s.UpsertNotifications(ctx, 3, []model.NotificationTarget{n}))

	n.Instance.Payload.Title = "v2"
	n.IsRead = true
	require.NoError(t, s.UpsertNotifications(ctx, 3, []model.NotificationTarget{n}))

	items, err := s.GetNotifications(ctx, 3)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "v2", items[0].Title())
	assert.True(t, items[0].IsRead)
}

func TestNotificationExists(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertNotifications(ctx, 3, []model.NotificationTarget{notification(1, 3, 0, `{}`)}))

	ok, err := s.NotificationExists(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.NotificationExists(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMarkRead(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertNotifications(ctx, 3, []model.NotificationTarget{
		notification(1, 3, 0, `{}`),
		notification(2, 3, 1, `{}`),
		notification(3, 4, 2, `{}`),
	}))

	require.NoError(t, s.MarkNotificationRead(ctx, 1))
	assert.ErrorIs(t, s.MarkNotificationRead(ctx, 42), store.ErrNotFound)

	items, err := s.GetNotifications(ctx, 3)
	require.NoError(t, err)
	assert.False(t, items[0].IsRead)
	assert.True(t, items[1].IsRead)
	require.NotNil(t, items[1].ReadAt)

	require.NoError(t, s.MarkAllNotificationsRead(ctx, 3))
	items, err = s.GetNotifications(ctx, 3)
	require.NoError(t, err)
	for _, n := range items {
		assert.True(t, n.IsRead)
	}

	other, err := s.GetNotifications(ctx, 4)
	require.NoError(t, err)
	assert.False(t, other[0].IsRead, "other users untouched")
}

func chatMessage(id, from, to int64, minute int) model.ChatMessage {
	return model.ChatMessage{
		ID:         id,
		SenderID:   from,
		SenderName: "user",
		ReceiverID: to,
		Message:    "msg",
		Timestamp:  model.NewTimestamp(base.Add(time.Duration(minute) * time.Minute)),
	}
}

func TestChatMessages(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertChatMessages(ctx, []model.ChatMessage{
		chatMessage(2, 3, 7, 5),
		chatMessage(1, 7, 3, 1),
		chatMessage(3, 8, 9, 2),
		chatMessage(0, 3, 7, 6),
	}))
	require.NoError(t, s.UpsertChatMessages(ctx, []model.ChatMessage{chatMessage(1, 7, 3, 1)}))

	msgs, err := s.GetChatMessages(ctx, 3)
	require.NoError(t, err)
	require.Len(t, msgs, 2, "unsaved and foreign messages excluded")
	assert.Equal(t, int64(1), msgs[0].ID)
	assert.Equal(t, int64(2), msgs[1].ID)
	assert.True(t, base.Add(time.Minute).Equal(msgs[0].Timestamp.Time))
}

func TestPurge(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertNotifications(ctx, 3, []model.NotificationTarget{notification(1, 3, 0, `{}`)}))
	require.NoError(t, s.UpsertNotifications(ctx, 4, []model.NotificationTarget{notification(2, 4, 0, `{}`)}))
	require.NoError(t, s.UpsertChatMessages(ctx, []model.ChatMessage{chatMessage(1, 7, 3, 1), chatMessage(2, 8, 9, 1)}))

	require.NoError(t, s.Purge(ctx, 3))

	items, err := s.GetNotifications(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, items)
	msgs, err := s.GetChatMessages(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	items, err = s.GetNotifications(ctx, 4)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	msgs, err = s.GetChatMessages(ctx, 9)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

var _ store.Store = (*store.SQLiteStore)(nil)
