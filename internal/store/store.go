package store

import (
	"context"
	"errors"

	"github.com/nhle/brancard/internal/model"
)

// ErrNotFound is returned when a cached record does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the local cache of server data used to start offline and to
// remember which notifications were already surfaced.
type Store interface {
	// === Notifications ===

	UpsertNotifications(ctx context.Context, userID int64, items []model.NotificationTarget) error
	GetNotifications(ctx context.Context, userID int64) ([]model.NotificationTarget, error)
	NotificationExists(ctx context.Context, id int64) (bool, error)
	MarkNotificationRead(ctx context.Context, id int64) error
	MarkAllNotificationsRead(ctx context.Context, userID int64) error

	// === Chat ===

	UpsertChatMessages(ctx context.Context, msgs []model.ChatMessage) error
	GetChatMessages(ctx context.Context, userID int64) ([]model.ChatMessage, error)

	// === Housekeeping ===

	// Purge removes every cached record of userID, used on logout.
	Purge(ctx context.Context, userID int64) error
}
