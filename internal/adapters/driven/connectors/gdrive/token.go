package gdrive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driven"
)

// tokenExpiryBuffer refreshes access tokens this long before they expire
const tokenExpiryBuffer = time.Minute

// tokenService resolves a usable access token for an owner, refreshing
// through the OAuth endpoint and persisting the result when the stored
// token is stale.
type tokenService struct {
	creds  driven.CredentialStore
	oauth  *oauth2.Config
	now    func() time.Time
	logger *slog.Logger
}

// token returns a valid token for ownerID. ctx must carry the HTTP client
// used for the refresh request (oauth2.HTTPClient), if any.
func (s *tokenService) token(ctx context.Context, ownerID string) (*oauth2.Token, error) {
	creds, err := s.creds.Get(ctx, ownerID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrDriveNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load drive credentials: %w", err)
	}

	if s.fresh(creds) {
		return &oauth2.Token{AccessToken: creds.AccessToken, TokenType: creds.TokenType}, nil
	}
	if creds.RefreshToken == "" {
		return nil, domain.ErrDriveNotConnected
	}

	refreshed, err := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken}).Token()
	if err != nil {
		return nil, refreshError(err)
	}
	if refreshed.AccessToken == "" || refreshed.Expiry.IsZero() {
		return nil, &domain.ExternalAPIError{Service: "google oauth", Message: "Google token refresh returned no access token."}
	}

	creds.AccessToken = refreshed.AccessToken
	if refreshed.RefreshToken != "" {
		creds.RefreshToken = refreshed.RefreshToken
	}
	if refreshed.TokenType != "" {
		creds.TokenType = refreshed.TokenType
	}
	expiry := refreshed.Expiry.UTC()
	creds.Expiry = &expiry
	creds.UpdatedAt = s.now().UTC()
	if err := s.creds.Save(ctx, creds); err != nil {
		return nil, fmt.Errorf("failed to save refreshed drive credentials: %w", err)
	}

	s.logger.Info("drive access token refreshed", "owner_id", ownerID, "expiry", expiry)
	return &oauth2.Token{AccessToken: creds.AccessToken, TokenType: creds.TokenType}, nil
}

// fresh reports whether the stored access token can be used as is.
// A token without an expiry is assumed valid.
func (s *tokenService) fresh(creds *domain.DriveCredentials) bool {
	if creds.AccessToken == "" {
		return false
	}
	if creds.Expiry == nil {
		return true
	}
	return creds.Expiry.Sub(s.now()) > tokenExpiryBuffer
}

func refreshError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.ErrorCode == "invalid_grant" {
			return fmt.Errorf("%w: refresh token revoked", domain.ErrDriveNotConnected)
		}
		apiErr := &domain.ExternalAPIError{Service: "google oauth", Message: "Failed to refresh Google access token."}
		if retrieveErr.Response != nil {
			apiErr.StatusCode = retrieveErr.Response.StatusCode
		}
		return apiErr
	}
	return &domain.ExternalAPIError{Service: "google oauth", Message: err.Error()}
}
