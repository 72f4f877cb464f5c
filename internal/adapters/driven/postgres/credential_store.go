package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.CredentialStore = (*CredentialStore)(nil)

// sealedCredentials is the plaintext shape of a drive_credentials.secret blob
type sealedCredentials struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
}

// CredentialStore implements driven.CredentialStore using PostgreSQL.
// Tokens are sealed with SecretEncryptor; only expiry is stored in the clear.
type CredentialStore struct {
	db        *DB
	encryptor *SecretEncryptor
	now       func() time.Time
}

// NewCredentialStore creates a new CredentialStore
func NewCredentialStore(db *DB, encryptor *SecretEncryptor) *CredentialStore {
	return &CredentialStore{db: db, encryptor: encryptor, now: time.Now}
}

// Get retrieves and opens an owner's Drive credentials
func (s *CredentialStore) Get(ctx context.Context, ownerID string) (*domain.DriveCredentials, error) {
	var blob []byte
	var expiry sql.NullTime
	var updatedAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT secret, expiry, updated_at
		FROM drive_credentials
		WHERE owner_id = $1
	`, ownerID).Scan(&blob, &expiry, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var sealed sealedCredentials
	if err := s.encryptor.Decrypt(blob, &sealed); err != nil {
		return nil, fmt.Errorf("failed to open credentials: %w", err)
	}

	return &domain.DriveCredentials{
		OwnerID:      ownerID,
		AccessToken:  sealed.AccessToken,
		RefreshToken: sealed.RefreshToken,
		TokenType:    sealed.TokenType,
		Scopes:       sealed.Scopes,
		Expiry:       TimePtr(expiry),
		UpdatedAt:    updatedAt,
	}, nil
}

// Save replaces an owner's Drive credentials
func (s *CredentialStore) Save(ctx context.Context, creds *domain.DriveCredentials) error {
	blob, err := s.encryptor.Encrypt(sealedCredentials{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    creds.TokenType,
		Scopes:       creds.Scopes,
	})
	if err != nil {
		return fmt.Errorf("failed to seal credentials: %w", err)
	}

	if creds.UpdatedAt.IsZero() {
		creds.UpdatedAt = s.now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO drive_credentials (owner_id, secret, expiry, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner_id) DO UPDATE SET
			secret = EXCLUDED.secret,
			expiry = EXCLUDED.expiry,
			updated_at = EXCLUDED.updated_at
	`, creds.OwnerID, blob, NullTime(creds.Expiry), creds.UpdatedAt)
	return err
}

// ListOwners returns every owner with stored credentials, sorted
func (s *CredentialStore) ListOwners(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT owner_id FROM drive_credentials ORDER BY owner_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, err
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}
