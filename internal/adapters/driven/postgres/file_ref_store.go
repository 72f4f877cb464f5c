package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.FileRefStore = (*FileRefStore)(nil)

const fileRefColumns = `id, owner_id, drive_file_id, name, mime_type, modified_time, size_bytes, checksum,
	status, last_error, content_status, content_last_error, content_version, ingested_at,
	chunks_artifact_id, created_at, updated_at`

// FileRefStore implements driven.FileRefStore using PostgreSQL
type FileRefStore struct {
	db  *DB
	now func() time.Time
}

// NewFileRefStore creates a new FileRefStore
func NewFileRefStore(db *DB) *FileRefStore {
	return &FileRefStore{db: db, now: time.Now}
}

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanFileRef(row scanner) (*domain.FileRef, error) {
	var ref domain.FileRef
	var modified, ingestedAt sql.NullTime
	var size sql.NullInt64
	var chunksArtifactID sql.NullString

	err := row.Scan(
		&ref.ID,
		&ref.OwnerID,
		&ref.DriveFileID,
		&ref.Name,
		&ref.MimeType,
		&modified,
		&size,
		&ref.Checksum,
		&ref.Status,
		&ref.LastError,
		&ref.ContentStatus,
		&ref.ContentLastError,
		&ref.ContentVersion,
		&ingestedAt,
		&chunksArtifactID,
		&ref.CreatedAt,
		&ref.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	ref.ModifiedTime = TimePtr(modified)
	ref.SizeBytes = Int64Ptr(size)
	ref.IngestedAt = TimePtr(ingestedAt)
	ref.ChunksArtifactID = chunksArtifactID.String
	return &ref, nil
}

// UpsertListed records a listing batch in one transaction. Existing rows
// are locked and updated through domain.FileRef.ApplyListing.
func (s *FileRefStore) UpsertListed(ctx context.Context, ownerID string, files []*domain.RemoteFile) (int, error) {
	count := 0
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		now := s.now()
		for _, f := range files {
			row := tx.QueryRowContext(ctx, `
				SELECT `+fileRefColumns+`
				FROM drive_file_refs
				WHERE owner_id = $1 AND drive_file_id = $2
				FOR UPDATE
			`, ownerID, f.ID)
			ref, err := scanFileRef(row)
			if errors.Is(err, sql.ErrNoRows) {
				if err := insertFileRef(ctx, tx, domain.NewFileRef(ownerID, f, now)); err != nil {
					return err
				}
				count++
				continue
			}
			if err != nil {
				return err
			}

			if ref.ApplyListing(f, now) {
				count++
			}
			if err := updateListing(ctx, tx, ref); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func insertFileRef(ctx context.Context, tx *sql.Tx, ref *domain.FileRef) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO drive_file_refs (`+fileRefColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`,
		ref.ID,
		ref.OwnerID,
		ref.DriveFileID,
		ref.Name,
		ref.MimeType,
		NullTime(ref.ModifiedTime),
		NullInt64(ref.SizeBytes),
		ref.Checksum,
		string(ref.Status),
		ref.LastError,
		string(ref.ContentStatus),
		ref.ContentLastError,
		ref.ContentVersion,
		NullTime(ref.IngestedAt),
		NullIfEmpty(ref.ChunksArtifactID),
		ref.CreatedAt,
		ref.UpdatedAt,
	)
	return err
}

func updateListing(ctx context.Context, tx *sql.Tx, ref *domain.FileRef) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE drive_file_refs SET
			name = $2,
			mime_type = $3,
			modified_time = $4,
			size_bytes = $5,
			checksum = $6,
			status = $7,
			last_error = $8,
			content_status = $9,
			content_last_error = $10,
			updated_at = $11
		WHERE id = $1
	`,
		ref.ID,
		ref.Name,
		ref.MimeType,
		NullTime(ref.ModifiedTime),
		NullInt64(ref.SizeBytes),
		ref.Checksum,
		string(ref.Status),
		ref.LastError,
		string(ref.ContentStatus),
		ref.ContentLastError,
		ref.UpdatedAt,
	)
	return err
}

// Get retrieves a file ref owned by ownerID
func (s *FileRefStore) Get(ctx context.Context, ownerID, id string) (*domain.FileRef, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+fileRefColumns+`
		FROM drive_file_refs
		WHERE owner_id = $1 AND id = $2
	`, ownerID, id)
	ref, err := scanFileRef(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return ref, err
}

// ListIngestCandidates returns PENDING refs, oldest update first
func (s *FileRefStore) ListIngestCandidates(ctx context.Context, ownerID string, limit int) ([]*domain.FileRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+fileRefColumns+`
		FROM drive_file_refs
		WHERE owner_id = $1 AND status IN ('NEW', 'INDEXED') AND content_status = 'PENDING'
		ORDER BY updated_at ASC, drive_file_id ASC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFileRefs(rows)
}

// CountIngestCandidates counts PENDING refs
func (s *FileRefStore) CountIngestCandidates(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM drive_file_refs
		WHERE owner_id = $1 AND status IN ('NEW', 'INDEXED') AND content_status = 'PENDING'
	`, ownerID).Scan(&count)
	return count, err
}

// MarkContentSkipped records a skipped fetch
func (s *FileRefStore) MarkContentSkipped(ctx context.Context, ownerID, id, reason, contentVersion string) error {
	return s.exec(ctx, `
		UPDATE drive_file_refs SET
			content_status = 'SKIPPED',
			content_last_error = $3,
			content_version = $4,
			updated_at = $5
		WHERE owner_id = $1 AND id = $2
	`, ownerID, id, reason, contentVersion, s.now())
}

// MarkContentError records a failed ingestion
func (s *FileRefStore) MarkContentError(ctx context.Context, ownerID, id, message string) error {
	return s.exec(ctx, `
		UPDATE drive_file_refs SET
			content_status = 'ERROR',
			content_last_error = $3,
			updated_at = $4
		WHERE owner_id = $1 AND id = $2
	`, ownerID, id, message, s.now())
}

// Requeue returns a ref of a supported type to PENDING
func (s *FileRefStore) Requeue(ctx context.Context, ownerID, id string) (*domain.FileRef, error) {
	var ref *domain.FileRef
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT `+fileRefColumns+`
			FROM drive_file_refs
			WHERE owner_id = $1 AND id = $2
			FOR UPDATE
		`, ownerID, id)
		var err error
		ref, err = scanFileRef(row)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		if !ref.CanRequeue() {
			return fmt.Errorf("%w: %s files cannot be requeued", domain.ErrInvalidInput, ref.MimeType)
		}

		ref.ContentStatus = domain.ContentStatusPending
		ref.ContentLastError = ""
		ref.UpdatedAt = s.now()
		_, err = tx.ExecContext(ctx, `
			UPDATE drive_file_refs SET
				content_status = 'PENDING',
				content_last_error = '',
				updated_at = $2
			WHERE id = $1
		`, ref.ID, ref.UpdatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ref, nil
}

// List pages through refs, most recently updated first, with status counts
func (s *FileRefStore) List(ctx context.Context, ownerID string, opts domain.FileListOptions) (*domain.FileListResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+fileRefColumns+`
		FROM drive_file_refs
		WHERE owner_id = $1
		ORDER BY updated_at DESC, id ASC
		LIMIT $2 OFFSET $3
	`, ownerID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	files, err := collectFileRefs(rows)
	if err != nil {
		return nil, err
	}

	result := &domain.FileListResult{
		Files:               files,
		Limit:               opts.Limit,
		Offset:              opts.Offset,
		StatusCounts:        make(map[domain.FileStatus]int),
		ContentStatusCounts: make(map[domain.ContentStatus]int),
	}

	countRows, err := s.db.QueryContext(ctx, `
		SELECT status, content_status, COUNT(*)
		FROM drive_file_refs
		WHERE owner_id = $1
		GROUP BY status, content_status
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer countRows.Close()
	for countRows.Next() {
		var status domain.FileStatus
		var contentStatus domain.ContentStatus
		var n int
		if err := countRows.Scan(&status, &contentStatus, &n); err != nil {
			return nil, err
		}
		result.StatusCounts[status] += n
		result.ContentStatusCounts[contentStatus] += n
		result.Total += n
	}
	return result, countRows.Err()
}

// StatusCounts returns ref counts per indexing status
func (s *FileRefStore) StatusCounts(ctx context.Context, ownerID string) (map[domain.FileStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM drive_file_refs
		WHERE owner_id = $1
		GROUP BY status
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.FileStatus]int)
	for rows.Next() {
		var status domain.FileStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (s *FileRefStore) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func collectFileRefs(rows *sql.Rows) ([]*domain.FileRef, error) {
	var refs []*domain.FileRef
	for rows.Next() {
		ref, err := scanFileRef(rows)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
