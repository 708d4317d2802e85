package support

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/joao-fontenele/shopledger/internal/domain"
)

type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create stores msg, filling CreatedAt from the database clock.
func (r *MessageRepository) Create(ctx context.Context, msg *domain.SupportMessage) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO support_messages (id, user_id, message, response, from_admin, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING created_at
	`, msg.ID, msg.UserID, msg.Message, msg.Response, msg.FromAdmin).Scan(&msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("create support message: %w", err)
	}
	return nil
}

// ListForUser returns the user's conversation oldest first.
func (r *MessageRepository) ListForUser(ctx context.Context, userID string) ([]domain.SupportMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, message, response, from_admin, created_at
		FROM support_messages
		WHERE user_id = $1
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list support messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := []domain.SupportMessage{}
	for rows.Next() {
		var (
			m        domain.SupportMessage
			response sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.Message, &response, &m.FromAdmin, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan support message: %w", err)
		}
		if response.Valid {
			m.Response = &response.String
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// DeleteOlderThan removes every message created before cutoff.
func (r *MessageRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM support_messages WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired support messages: %w", err)
	}
	return result.RowsAffected()
}
