package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/domain"
)

const messagesSchemaLock int64 = 2026101501

// MessageRepository persists chat turns in the messages table.
type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) EnsureSchema(ctx context.Context) error {
	return withSchemaLock(ctx, r.db, messagesSchemaLock, `
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	chat_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	citations JSONB NOT NULL DEFAULT '[]'::jsonb,
	web_sources JSONB NOT NULL DEFAULT '[]'::jsonb,
	blocked BOOLEAN NOT NULL DEFAULT FALSE,
	partial BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_chat_created ON messages(chat_id, created_at DESC);
`)
}

func (r *MessageRepository) AppendMessage(ctx context.Context, message domain.StoredMessage) error {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	citations, err := marshalList(message.Citations)
	if err != nil {
		return fmt.Errorf("marshal citations: %w", err)
	}
	sources, err := marshalList(message.WebSources)
	if err != nil {
		return fmt.Errorf("marshal web sources: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO messages (id, chat_id, role, content, citations, web_sources, blocked, partial, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`, message.ID, message.ChatID, message.Role, message.Content, citations, sources, message.Blocked, message.Partial, message.CreatedAt)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// ListRecentMessages returns up to limit messages in chronological order.
func (r *MessageRepository) ListRecentMessages(ctx context.Context, chatID string, limit int) ([]domain.StoredMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, chat_id, role, content, citations, web_sources, blocked, partial, created_at
FROM messages
WHERE chat_id = $1
ORDER BY created_at DESC
LIMIT $2
`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}
	defer rows.Close()

	out := make([]domain.StoredMessage, 0, limit)
	for rows.Next() {
		var (
			msg                 domain.StoredMessage
			citations, webCites []byte
		)
		if err := rows.Scan(
			&msg.ID,
			&msg.ChatID,
			&msg.Role,
			&msg.Content,
			&citations,
			&webCites,
			&msg.Blocked,
			&msg.Partial,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan recent message: %w", err)
		}
		if err := unmarshalList(citations, &msg.Citations); err != nil {
			return nil, fmt.Errorf("unmarshal citations: %w", err)
		}
		if err := unmarshalList(webCites, &msg.WebSources); err != nil {
			return nil, fmt.Errorf("unmarshal web sources: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent messages: %w", err)
	}

	// Returned in descending order from SQL; reverse to keep chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func marshalList[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}

func unmarshalList[T any](raw []byte, out *[]T) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
