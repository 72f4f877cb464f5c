package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.EmbeddingStore = (*EmbeddingStore)(nil)

const (
	// embeddingColumnsPerRow is the number of bind parameters per inserted row
	embeddingColumnsPerRow = 10

	// maxRowsPerInsert keeps one statement under PostgreSQL's 65535
	// bind parameter limit
	maxRowsPerInsert = 6000
)

// EmbeddingStore implements driven.EmbeddingStore using pgvector
type EmbeddingStore struct {
	db  *DB
	now func() time.Time
}

// NewEmbeddingStore creates a new EmbeddingStore
func NewEmbeddingStore(db *DB) *EmbeddingStore {
	return &EmbeddingStore{db: db, now: time.Now}
}

// ExistingChunkIndexes returns the chunk indexes already embedded for an
// artifact version.
func (s *EmbeddingStore) ExistingChunkIndexes(ctx context.Context, artifactID, contentHash string) (map[int]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_index
		FROM chunk_embeddings
		WHERE artifact_id = $1 AND content_hash = $2
	`, artifactID, contentHash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	existing := make(map[int]bool)
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return nil, err
		}
		existing[idx] = true
	}
	return existing, rows.Err()
}

// InsertBatch writes rows in one transaction, at most maxRowsPerInsert
// rows per statement. Rows that already exist for the same
// (artifact, chunk, hash) are left untouched.
func (s *EmbeddingStore) InsertBatch(ctx context.Context, rows []*domain.ChunkEmbedding) error {
	if len(rows) == 0 {
		return nil
	}

	now := s.now()
	for _, row := range rows {
		if row.ID == "" {
			row.ID = domain.GenerateID()
		}
		row.CreatedAt = now
		row.UpdatedAt = now
	}

	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		for _, part := range splitRows(rows, maxRowsPerInsert) {
			query, args := insertEmbeddingsQuery(part)
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to insert embeddings: %w", err)
	}
	return nil
}

// insertEmbeddingsQuery builds one multi-row INSERT for rows
func insertEmbeddingsQuery(rows []*domain.ChunkEmbedding) (string, []any) {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO chunk_embeddings
		(id, owner_id, file_ref_id, artifact_id, chunk_index, chunk_text, content_hash, embedding, created_at, updated_at)
		VALUES `)
	args := make([]any, 0, len(rows)*embeddingColumnsPerRow)
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * embeddingColumnsPerRow
		sb.WriteString("(")
		for c := 1; c <= embeddingColumnsPerRow; c++ {
			if c > 1 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", base+c)
		}
		sb.WriteString(")")

		args = append(args,
			row.ID,
			row.OwnerID,
			row.FileRefID,
			row.ArtifactID,
			row.ChunkIndex,
			row.ChunkText,
			row.ContentHash,
			pgvector.NewVector(row.Embedding),
			row.CreatedAt,
			row.UpdatedAt,
		)
	}
	sb.WriteString(" ON CONFLICT (artifact_id, chunk_index, content_hash) DO NOTHING")
	return sb.String(), args
}

// splitRows cuts rows into consecutive slices of at most size
func splitRows[T any](rows []T, size int) [][]T {
	var parts [][]T
	for len(rows) > size {
		parts = append(parts, rows[:size])
		rows = rows[size:]
	}
	if len(rows) > 0 {
		parts = append(parts, rows)
	}
	return parts
}

// Search ranks the owner's current chunks by cosine similarity to query.
// Rows of superseded artifacts are excluded.
func (s *EmbeddingStore) Search(ctx context.Context, ownerID string, query []float32, limit int) ([]*domain.SearchHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT 1 - (e.embedding <=> $2) AS score, e.file_ref_id, r.name, e.chunk_index, e.chunk_text, e.updated_at
		FROM chunk_embeddings e
		JOIN drive_file_refs r ON r.id = e.file_ref_id AND r.chunks_artifact_id = e.artifact_id
		WHERE e.owner_id = $1
		ORDER BY e.embedding <=> $2 ASC, e.updated_at DESC
		LIMIT $3
	`, ownerID, pgvector.NewVector(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []*domain.SearchHit
	for rows.Next() {
		var hit domain.SearchHit
		if err := rows.Scan(&hit.Score, &hit.FileRefID, &hit.DriveFileName, &hit.ChunkIndex, &hit.Snippet, &hit.UpdatedAt); err != nil {
			return nil, err
		}
		hits = append(hits, &hit)
	}
	return hits, rows.Err()
}

// CountByOwner counts all stored rows, including superseded ones
func (s *EmbeddingStore) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chunk_embeddings WHERE owner_id = $1
	`, ownerID).Scan(&count)
	return count, err
}

// DeleteSuperseded removes rows whose artifact is no longer the one their
// file ref points at.
func (s *EmbeddingStore) DeleteSuperseded(ctx context.Context, ownerID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM chunk_embeddings e
		WHERE e.owner_id = $1
			AND NOT EXISTS (
				SELECT 1 FROM drive_file_refs r
				WHERE r.id = e.file_ref_id AND r.chunks_artifact_id = e.artifact_id
			)
	`, ownerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
