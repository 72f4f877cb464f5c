package mocks

import (
	"github.com/custodia-labs/timeline-core/internal/core/domain"
)

// MockAuthAdapter is a mock implementation of AuthAdapter for testing.
// Tokens are "token-<ownerID>".
type MockAuthAdapter struct {
	claims map[string]*domain.TokenClaims
}

// NewMockAuthAdapter creates a new MockAuthAdapter
func NewMockAuthAdapter() *MockAuthAdapter {
	return &MockAuthAdapter{
		claims: make(map[string]*domain.TokenClaims),
	}
}

func (m *MockAuthAdapter) GenerateToken(claims *domain.TokenClaims) (string, error) {
	token := "token-" + claims.OwnerID
	m.claims[token] = claims
	return token, nil
}

func (m *MockAuthAdapter) ParseToken(token string) (*domain.TokenClaims, error) {
	claims, ok := m.claims[token]
	if !ok {
		return nil, domain.ErrTokenInvalid
	}
	return claims, nil
}
