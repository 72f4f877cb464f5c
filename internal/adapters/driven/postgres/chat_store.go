package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ChatStore = (*ChatStore)(nil)

// ChatStore implements driven.ChatStore using PostgreSQL
type ChatStore struct {
	db *DB
}

// NewChatStore creates a new ChatStore
func NewChatStore(db *DB) *ChatStore {
	return &ChatStore{db: db}
}

// CreateThread inserts a new thread
func (s *ChatStore) CreateThread(ctx context.Context, thread *domain.ChatThread) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_threads (id, owner_id, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, thread.ID, thread.OwnerID, thread.Title, thread.CreatedAt, thread.UpdatedAt)
	return err
}

// GetThread retrieves a thread owned by ownerID
func (s *ChatStore) GetThread(ctx context.Context, ownerID, id string) (*domain.ChatThread, error) {
	var thread domain.ChatThread
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, created_at, updated_at
		FROM chat_threads
		WHERE owner_id = $1 AND id = $2
	`, ownerID, id).Scan(&thread.ID, &thread.OwnerID, &thread.Title, &thread.CreatedAt, &thread.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &thread, nil
}

// ListThreads returns an owner's threads, most recently active first
func (s *ChatStore) ListThreads(ctx context.Context, ownerID string, limit int) ([]*domain.ChatThread, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, title, created_at, updated_at
		FROM chat_threads
		WHERE owner_id = $1
		ORDER BY updated_at DESC, id ASC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var threads []*domain.ChatThread
	for rows.Next() {
		var thread domain.ChatThread
		if err := rows.Scan(&thread.ID, &thread.OwnerID, &thread.Title, &thread.CreatedAt, &thread.UpdatedAt); err != nil {
			return nil, err
		}
		threads = append(threads, &thread)
	}
	return threads, rows.Err()
}

// SetTitle sets a thread's title
func (s *ChatStore) SetTitle(ctx context.Context, threadID, title string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE chat_threads SET title = $2 WHERE id = $1`, threadID, title)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AddMessage appends a message and marks its thread active
func (s *ChatStore) AddMessage(ctx context.Context, msg *domain.ChatMessage) error {
	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE chat_threads SET updated_at = GREATEST(updated_at, $2) WHERE id = $1
		`, msg.ThreadID, msg.CreatedAt)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrNotFound
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO chat_messages (id, thread_id, role, content, citations, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, msg.ID, msg.ThreadID, string(msg.Role), msg.Content, nullJSON(msg.Citations), msg.CreatedAt)
		return err
	})
}

// ListMessages returns the newest opts.Limit messages created before
// opts.Before, oldest first.
func (s *ChatStore) ListMessages(ctx context.Context, threadID string, opts domain.MessageListOptions) ([]*domain.ChatMessage, error) {
	var before sql.NullTime
	if opts.Before != nil {
		before = sql.NullTime{Time: *opts.Before, Valid: true}
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, role, content, citations, created_at
		FROM (
			SELECT id, thread_id, role, content, citations, created_at
			FROM chat_messages
			WHERE thread_id = $1 AND ($2::timestamptz IS NULL OR created_at < $2)
			ORDER BY created_at DESC, id DESC
			LIMIT $3
		) page
		ORDER BY created_at ASC, id ASC
	`, threadID, before, opts.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// RecentMessages returns up to limit messages, newest first, skipping excludeID
func (s *ChatStore) RecentMessages(ctx context.Context, threadID, excludeID string, limit int) ([]*domain.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, role, content, citations, created_at
		FROM chat_messages
		WHERE thread_id = $1 AND id <> $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, threadID, excludeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// CountMessages counts a thread's messages with the given role
func (s *ChatStore) CountMessages(ctx context.Context, threadID string, role domain.MessageRole) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chat_messages WHERE thread_id = $1 AND role = $2
	`, threadID, string(role)).Scan(&count)
	return count, err
}

func scanMessages(rows *sql.Rows) ([]*domain.ChatMessage, error) {
	var msgs []*domain.ChatMessage
	for rows.Next() {
		var msg domain.ChatMessage
		var citations []byte
		var createdAt time.Time
		if err := rows.Scan(&msg.ID, &msg.ThreadID, &msg.Role, &msg.Content, &citations, &createdAt); err != nil {
			return nil, err
		}
		msg.CreatedAt = createdAt
		if len(citations) > 0 {
			msg.Citations = json.RawMessage(citations)
		}
		msgs = append(msgs, &msg)
	}
	return msgs, rows.Err()
}
