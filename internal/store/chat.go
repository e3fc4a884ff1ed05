package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/codebuddy/apiserver/types"
)

// ChatRepository handles persistence for assistant conversations.
type ChatRepository struct {
	db *sql.DB
}

func NewChatRepository(db *sql.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// Append stores one conversation turn for the user.
func (r *ChatRepository) Append(ctx context.Context, userID, role, content string) (types.ChatMessage, error) {
	msg := types.ChatMessage{
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}

	const query = `
		INSERT INTO chat_messages (user_id, role, content, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := r.db.QueryRowContext(ctx, query, msg.UserID, msg.Role, msg.Content, msg.CreatedAt).Scan(&msg.ID); err != nil {
		return types.ChatMessage{}, err
	}
	return msg, nil
}

// History returns the most recent messages in chronological order.
func (r *ChatRepository) History(ctx context.Context, userID string, limit int) ([]types.ChatMessage, error) {
	const query = `
		SELECT id, user_id, role, content, created_at
		FROM (
			SELECT id, user_id, role, content, created_at
			FROM chat_messages
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []types.ChatMessage
	for rows.Next() {
		var msg types.ChatMessage
		if err := rows.Scan(&msg.ID, &msg.UserID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Clear removes the user's whole conversation.
func (r *ChatRepository) Clear(ctx context.Context, userID string) error {
	const query = `DELETE FROM chat_messages WHERE user_id = $1`
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}
