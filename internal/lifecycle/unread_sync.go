package lifecycle

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/nhle/brancard/internal/model"
	"github.com/nhle/brancard/internal/notify"
	"github.com/nhle/brancard/internal/state"
)

// UnreadSyncTask is the name of the background notification task.
const UnreadSyncTask = "background-notification-task"

// UnreadSource fetches the unread notifications of the signed-in user.
type UnreadSource interface {
	UnreadNotifications(ctx context.Context) ([]model.NotificationTarget, error)
}

// SeenCache remembers which notifications were already surfaced.
type SeenCache interface {
	NotificationExists(ctx context.Context, id int64) (bool, error)
	UpsertNotifications(ctx context.Context, userID int64, items []model.NotificationTarget) error
}

// UnreadSync returns the body of the background task: it fetches unread
// notifications, raises a local notification for each one the cache has not
// seen, and records them.
func UnreadSync(
	store *state.Store,
	src UnreadSource,
	cache SeenCache,
	notifier notify.LocalNotifier,
	logger zerolog.Logger,
) TaskFunc {
	log := logger.With().Str("component", "unread_sync").Logger()

	return func(ctx context.Context) Result {
		id := store.Identity()
		if id == nil {
			return ResultNoData
		}

		items, err := src.UnreadNotifications(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("fetching unread notifications")
			return ResultFailed
		}
		if len(items) == 0 {
			return ResultNoData
		}

		fresh := 0
		for _, n := range items {
			seen, err := cache.NotificationExists(ctx, n.ID)
			if err != nil {
				log.Warn().Err(err).Int64("notification_id", n.ID).Msg("checking cache")
				continue
			}
			if seen {
				continue
			}
			fresh++
			if err := notifier.Schedule(ctx, notify.NewLocalNotification(n.ID, n.Instance.Payload)); err != nil {
				log.Warn().Err(err).Int64("notification_id", n.ID).Msg("scheduling local notification")
			}
		}

		if err := cache.UpsertNotifications(ctx, id.ID, items); err != nil {
			log.Warn().Err(err).Msg("caching unread notifications")
		}

		if fresh == 0 {
			return ResultNoData
		}
		log.Info().Int("count", fresh).Msg("new notifications while in background")
		return ResultNewData
	}
}
