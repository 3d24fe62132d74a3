package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nhle/brancard/internal/model"
)

// UpsertNotifications inserts or replaces a batch of notifications
// delivered to userID.
func (s *SQLiteStore) UpsertNotifications(
	ctx context.Context,
	userID int64,
	items []model.NotificationTarget,
) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT OR REPLACE INTO notifications (
			id, user_id, instance_id,
			is_read, read_at, push_status, in_app_visible,
			raw_payload, payload,
			created_at, cached_at
		) VALUES (
			?, ?, ?,
			?, ?, ?, ?,
			?, ?,
			?, ?
		)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, n := range items {
		canonical, err := json.Marshal(n.Instance.Payload)
		if err != nil {
			return fmt.Errorf("marshaling payload of notification %d: %w", n.ID, err)
		}

		var readAt any
		if n.ReadAt != nil && !n.ReadAt.IsZero() {
			readAt = n.ReadAt.UTC()
		}

		_, err = stmt.ExecContext(ctx,
			n.ID, userID, n.InstanceID,
			boolToInt(n.IsRead), readAt, n.PushStatus, boolToInt(n.InAppVisible),
			string(n.Instance.RawPayload), string(canonical),
			n.CreationDate.UTC(), now,
		)
		if err != nil {
			return fmt.Errorf("upserting notification %d: %w", n.ID, err)
		}
	}

	return tx.Commit()
}

// GetNotifications returns the cached notifications of userID, newest
// first.
func (s *SQLiteStore) GetNotifications(
	ctx context.Context,
	userID int64,
) ([]model.NotificationTarget, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, user_id, instance_id,
			is_read, read_at, push_status, in_app_visible,
			raw_payload, payload, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	var items []model.NotificationTarget
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}

	return items, rows.Err()
}

// NotificationExists reports whether id is cached.
func (s *SQLiteStore) NotificationExists(ctx context.Context, id int64) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM notifications WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("checking notification %d: %w", id, err)
	}
	return count > 0, nil
}

// MarkNotificationRead marks a single notification as read.
func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = 1, read_at = ? WHERE id = ?",
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("marking notification %d as read: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("marking notification %d as read: %w", id, ErrNotFound)
	}
	return nil
}

// MarkAllNotificationsRead marks every unread notification of userID as
// read.
func (s *SQLiteStore) MarkAllNotificationsRead(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = 1, read_at = ? WHERE user_id = ? AND is_read = 0",
		time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("marking notifications of user %d as read: %w", userID, err)
	}
	return nil
}

// scanNotification scans a notification row from a sqlx.Rows result set.
func scanNotification(rows *sqlx.Rows) (model.NotificationTarget, error) {
	var (
		n         model.NotificationTarget
		isRead    int
		visible   int
		readAt    sql.NullTime
		raw       string
		canonical string
		createdAt time.Time
	)

	err := rows.Scan(
		&n.ID, &n.UserID, &n.InstanceID,
		&isRead, &readAt, &n.PushStatus, &visible,
		&raw, &canonical, &createdAt,
	)
	if err != nil {
		return model.NotificationTarget{}, fmt.Errorf("scanning notification row: %w", err)
	}

	n.IsRead = isRead != 0
	n.InAppVisible = visible != 0
	if readAt.Valid {
		ts := model.NewTimestamp(readAt.Time)
		n.ReadAt = &ts
	}
	n.CreationDate = model.NewTimestamp(createdAt)
	n.Instance.ID = n.InstanceID
	n.Instance.CreationDate = n.CreationDate
	if raw != "" {
		n.Instance.RawPayload = json.RawMessage(raw)
	}

	if err := json.Unmarshal([]byte(canonical), &n.Instance.Payload); err != nil {
		return model.NotificationTarget{}, fmt.Errorf("unmarshaling payload of notification %d: %w", n.ID, err)
	}

	return n, nil
}
