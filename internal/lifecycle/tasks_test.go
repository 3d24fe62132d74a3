package lifecycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/brancard/internal/model"
	"github.com/nhle/brancard/internal/notify"
	"github.com/nhle/brancard/internal/state"
)

func TestTasks_RegisterRunsPeriodically(t *testing.T) {
	tasks := NewTasks(time.Millisecond, zerolog.Nop())
	t.Cleanup(tasks.Close)

	var runs atomic.Int32
	tasks.Define(UnreadSyncTask, func(context.Context) Result {
		runs.Add(1)
		return ResultNoData
	})

	assert.False(t, tasks.IsRegistered(UnreadSyncTask))
	require.NoError(t, tasks.Register(context.Background(), UnreadSyncTask))
	require.NoError(t, tasks.Register(context.Background(), UnreadSyncTask))
	assert.True(t, tasks.IsRegistered(UnreadSyncTask))

	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, time.Millisecond)
}

func TestTasks_RegisterUndefined(t *testing.T) {
	tasks := NewTasks(time.Minute, zerolog.Nop())
	t.Cleanup(tasks.Close)

	assert.ErrorIs(t, tasks.Register(context.Background(), "missing"), ErrUndefinedTask)
}

func TestTasks_UnregisterAndClose(t *testing.T) {
	tasks := NewTasks(time.Millisecond, zerolog.Nop())

	var runs atomic.Int32
	tasks.Define("t", func(context.Context) Result { runs.Add(1); return ResultNoData })
	require.NoError(t, tasks.Register(context.Background(), "t"))
	require.Eventually(t, func() bool { return runs.Load() > 0 }, 2*time.Second, time.Millisecond)

	tasks.Unregister("t")
	assert.False(t, tasks.IsRegistered("t"))

	tasks.Close()
	after := runs.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
	assert.Error(t, tasks.Register(context.Background(), "t"))
}

type fakeUnreadSource struct {
	items []model.NotificationTarget
	err   error
}

func (s *fakeUnreadSource) UnreadNotifications(context.Context) ([]model.NotificationTarget, error) {
	return s.items, s.err
}

type memorySeen struct {
	mu   sync.Mutex
	seen map[int64]bool
}

func (m *memorySeen) NotificationExists(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[id], nil
}

func (m *memorySeen) UpsertNotifications(_ context.Context, _ int64, items []model.NotificationTarget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = make(map[int64]bool)
	}
	for _, n := range items {
		m.seen[n.ID] = true
	}
	return nil
}

type countingNotifier struct {
	mu     sync.Mutex
	titles []string
}

func (n *countingNotifier) Configure(context.Context, []notify.Channel) error { return nil }

func (n *countingNotifier) Schedule(_ context.Context, ln model.LocalNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.titles = append(n.titles, ln.Title)
	return nil
}

func target(id int64, title string) model.NotificationTarget {
	n := model.NotificationTarget{ID: id, UserID: 3}
	n.Instance.Payload.Title = title
	return n
}

func TestUnreadSync_NotifiesOnlyUnseen(t *testing.T) {
	store := state.New()
	t.Cleanup(store.Close)
	store.SetIdentity(model.Identity{ID: 3})

	src := &fakeUnreadSource{items: []model.NotificationTarget{target(1, "Ticket créé"), target(2, "Ticket terminé")}}
	seen := &memorySeen{seen: map[int64]bool{1: true}}
	notifier := &countingNotifier{}
	run := UnreadSync(store, src, seen, notifier, zerolog.Nop())

	assert.Equal(t, ResultNewData, run(context.Background()))
	assert.Equal(t, []string{"Ticket terminé"}, notifier.titles)

	// Everything is now cached.
	assert.Equal(t, ResultNoData, run(context.Background()))
	assert.Len(t, notifier.titles, 1)
}

func TestUnreadSync_FailuresAndSignedOut(t *testing.T) {
	store := state.New()
	t.Cleanup(store.Close)

	src := &fakeUnreadSource{err: errors.New("offline")}
	run := UnreadSync(store, src, &memorySeen{}, &countingNotifier{}, zerolog.Nop())

	assert.Equal(t, ResultNoData, run(context.Background()))

	store.SetIdentity(model.Identity{ID: 3})
	assert.Equal(t, ResultFailed, run(context.Background()))

	src.err = nil
	assert.Equal(t, ResultNoData, run(context.Background()))
}

func TestResult_String(t *testing.T) {
	assert.Equal(t, "new_data", ResultNewData.String())
	assert.Equal(t, "result(7)", Result(7).String())
}
