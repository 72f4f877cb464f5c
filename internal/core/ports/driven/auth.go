package driven

import "github.com/custodia-labs/timeline-core/internal/core/domain"

// AuthAdapter handles bearer token cryptographic operations.
// Sign-in and session storage live outside this service.
type AuthAdapter interface {
	// GenerateToken signs claims into a bearer token
	GenerateToken(claims *domain.TokenClaims) (string, error)

	// ParseToken validates a bearer token and returns its claims
	ParseToken(token string) (*domain.TokenClaims, error)
}
