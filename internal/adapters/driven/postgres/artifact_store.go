package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ArtifactStore = (*ArtifactStore)(nil)

// ArtifactStore implements driven.ArtifactStore using PostgreSQL
type ArtifactStore struct {
	db *DB
}

// NewArtifactStore creates a new ArtifactStore
func NewArtifactStore(db *DB) *ArtifactStore {
	return &ArtifactStore{db: db}
}

// CommitIngestion upserts the three artifacts of a record and points the
// file ref at the new chunks artifact, all in one transaction.
func (s *ArtifactStore) CommitIngestion(ctx context.Context, record *domain.IngestRecord) error {
	if record.FileRef == nil || record.Chunks == nil {
		return fmt.Errorf("%w: incomplete ingest record", domain.ErrInvalidInput)
	}

	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		for _, a := range record.Artifacts() {
			if a == nil {
				continue
			}
			if a.ID == "" {
				a.ID = domain.GenerateID()
			}
			err := tx.QueryRowContext(ctx, `
				INSERT INTO derived_artifacts (id, owner_id, file_ref_id, type, content_hash, content_text, content_json, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
				ON CONFLICT (file_ref_id, type, content_hash) DO UPDATE SET
					content_text = EXCLUDED.content_text,
					content_json = EXCLUDED.content_json,
					updated_at = EXCLUDED.updated_at
				RETURNING id, created_at, updated_at
			`,
				a.ID,
				a.OwnerID,
				a.FileRefID,
				string(a.Type),
				a.ContentHash,
				NullIfEmpty(a.ContentText),
				nullJSON(a.ContentJSON),
				record.IngestedAt,
			).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
			if err != nil {
				return fmt.Errorf("failed to upsert %s artifact: %w", a.Type, err)
			}
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE drive_file_refs SET
				content_status = 'INGESTED',
				content_last_error = '',
				content_version = $3,
				ingested_at = $4,
				chunks_artifact_id = $5,
				updated_at = $4
			WHERE owner_id = $1 AND id = $2
		`, record.FileRef.OwnerID, record.FileRef.ID, record.ContentVersion, record.IngestedAt, record.Chunks.ID)
		if err != nil {
			return fmt.Errorf("failed to update file ref: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

// ListCurrentChunkArtifacts returns the CHUNKS_JSON artifacts that refs
// currently point at, most recently ingested first.
func (s *ArtifactStore) ListCurrentChunkArtifacts(ctx context.Context, ownerID, fileRefID string, offset, limit int) ([]*domain.Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.owner_id, a.file_ref_id, a.type, a.content_hash, a.content_text, a.content_json, a.created_at, a.updated_at
		FROM derived_artifacts a
		JOIN drive_file_refs r ON r.chunks_artifact_id = a.id
		WHERE a.owner_id = $1
			AND a.type = 'CHUNKS_JSON'
			AND ($2 = '' OR a.file_ref_id = $2)
		ORDER BY r.ingested_at DESC NULLS LAST, a.updated_at DESC, a.id ASC
		LIMIT $3 OFFSET $4
	`, ownerID, fileRefID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []*domain.Artifact
	for rows.Next() {
		var a domain.Artifact
		var text sql.NullString
		var body []byte
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.FileRefID, &a.Type, &a.ContentHash, &text, &body, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.ContentText = text.String
		if len(body) > 0 {
			a.ContentJSON = json.RawMessage(body)
		}
		artifacts = append(artifacts, &a)
	}
	return artifacts, rows.Err()
}

// CountByFileRef counts every stored artifact of a file ref
func (s *ArtifactStore) CountByFileRef(ctx context.Context, fileRefID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM derived_artifacts WHERE file_ref_id = $1
	`, fileRefID).Scan(&count)
	return count, err
}

func nullJSON(data json.RawMessage) any {
	if len(data) == 0 {
		return nil
	}
	return []byte(data)
}
