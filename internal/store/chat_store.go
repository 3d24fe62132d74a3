package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nhle/brancard/internal/model"
)

type chatRow struct {
	ID           int64     `db:"id"`
	SenderID     int64     `db:"sender_id"`
	SenderName   string    `db:"sender_name"`
	ReceiverID   int64     `db:"receiver_id"`
	ReceiverName string    `db:"receiver_name"`
	Message      string    `db:"message"`
	SentAt       time.Time `db:"sent_at"`
}

func (r chatRow) message() model.ChatMessage {
	return model.ChatMessage{
		ID:           r.ID,
		SenderID:     r.SenderID,
		SenderName:   r.SenderName,
		ReceiverID:   r.ReceiverID,
		ReceiverName: r.ReceiverName,
		Message:      r.Message,
		Timestamp:    model.NewTimestamp(r.SentAt),
	}
}

// UpsertChatMessages inserts or replaces a batch of chat messages. Messages
// without a server id are skipped.
func (s *SQLiteStore) UpsertChatMessages(ctx context.Context, msgs []model.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT OR REPLACE INTO chat_messages (
			id, sender_id, sender_name, receiver_id, receiver_name, message, sent_at
		) VALUES (
			:id, :sender_id, :sender_name, :receiver_id, :receiver_name, :message, :sent_at
		)`

	stmt, err := tx.PrepareNamedContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		if m.ID == 0 {
			continue
		}
		row := chatRow{
			ID:           m.ID,
			SenderID:     m.SenderID,
			SenderName:   m.SenderName,
			ReceiverID:   m.ReceiverID,
			ReceiverName: m.ReceiverName,
			Message:      m.Message,
			SentAt:       m.Timestamp.UTC(),
		}
		if _, err := stmt.ExecContext(ctx, row); err != nil {
			return fmt.Errorf("upserting chat message %d: %w", m.ID, err)
		}
	}

	return tx.Commit()
}

// GetChatMessages returns every cached message userID sent or received,
// oldest first.
func (s *SQLiteStore) GetChatMessages(ctx context.Context, userID int64) ([]model.ChatMessage, error) {
	var rows []chatRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, sender_id, sender_name, receiver_id, receiver_name, message, sent_at
		FROM chat_messages
		WHERE sender_id = ? OR receiver_id = ?
		ORDER BY sent_at, id`,
		userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying chat messages: %w", err)
	}

	msgs := make([]model.ChatMessage, 0, len(rows))
	for _, r := range rows {
		msgs = append(msgs, r.message())
	}
	return msgs, nil
}
