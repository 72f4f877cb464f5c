package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.IndexStateStore = (*IndexStateStore)(nil)

// IndexStateStore implements driven.IndexStateStore using PostgreSQL
type IndexStateStore struct {
	db *DB
}

// NewIndexStateStore creates a new IndexStateStore
func NewIndexStateStore(db *DB) *IndexStateStore {
	return &IndexStateStore{db: db}
}

// Get retrieves an owner's listing state
func (s *IndexStateStore) Get(ctx context.Context, ownerID string) (*domain.IndexState, error) {
	state := &domain.IndexState{OwnerID: ownerID}
	var lastRunAt sql.NullTime
	var stats []byte

	err := s.db.QueryRowContext(ctx, `
		SELECT cursor, last_file_id, last_run_at, stats
		FROM drive_index_states
		WHERE owner_id = $1
	`, ownerID).Scan(&state.Cursor, &state.LastFileID, &lastRunAt, &stats)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	state.LastRunAt = TimePtr(lastRunAt)
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &state.Stats); err != nil {
			return nil, err
		}
	}
	return state, nil
}

// Save upserts an owner's listing state
func (s *IndexStateStore) Save(ctx context.Context, state *domain.IndexState) error {
	stats, err := json.Marshal(state.Stats)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO drive_index_states (owner_id, cursor, last_file_id, last_run_at, stats)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_id) DO UPDATE SET
			cursor = EXCLUDED.cursor,
			last_file_id = EXCLUDED.last_file_id,
			last_run_at = EXCLUDED.last_run_at,
			stats = EXCLUDED.stats
	`,
		state.OwnerID,
		state.Cursor,
		state.LastFileID,
		NullTime(state.LastRunAt),
		stats,
	)
	return err
}
