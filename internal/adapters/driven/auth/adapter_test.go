package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
)

func validClaims() *domain.TokenClaims {
	now := time.Now()
	return &domain.TokenClaims{
		OwnerID:   "user-123",
		Email:     "ada@example.com",
		Name:      "Ada",
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	}
}

func TestNewAdapter(t *testing.T) {
	adapter := NewAdapter("test-secret")
	if adapter == nil {
		t.Fatal("expected non-nil adapter")
	}
	if string(adapter.jwtSecret) != "test-secret" {
		t.Error("expected jwt secret to be set")
	}
}

func TestGenerateAndParseToken(t *testing.T) {
	adapter := NewAdapter("test-secret")
	claims := validClaims()

	token, err := adapter.GenerateToken(claims)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	parsed, err := adapter.ParseToken(token)
	if err != nil {
		t.Fatalf("failed to parse token: %v", err)
	}
	if parsed.OwnerID != claims.OwnerID {
		t.Errorf("expected owner %s, got %s", claims.OwnerID, parsed.OwnerID)
	}
	if parsed.Email != claims.Email || parsed.Name != claims.Name {
		t.Errorf("unexpected profile claims %+v", parsed)
	}
	if parsed.ExpiresAt != claims.ExpiresAt {
		t.Errorf("expected exp %d, got %d", claims.ExpiresAt, parsed.ExpiresAt)
	}
}

func TestParseToken_SubjectOnly(t *testing.T) {
	adapter := NewAdapter("test-secret")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-from-sub",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	parsed, err := adapter.ParseToken(signed)
	if err != nil {
		t.Fatalf("failed to parse token: %v", err)
	}
	if parsed.OwnerID != "user-from-sub" {
		t.Errorf("expected owner from sub, got %q", parsed.OwnerID)
	}
}

func TestParseToken_Errors(t *testing.T) {
	adapter := NewAdapter("test-secret")

	expired := validClaims()
	expired.IssuedAt = time.Now().Add(-2 * time.Hour).Unix()
	expired.ExpiresAt = time.Now().Add(-time.Hour).Unix()
	expiredToken, _ := adapter.GenerateToken(expired)

	otherSecret, _ := NewAdapter("other-secret").GenerateToken(validClaims())

	noOwner := validClaims()
	noOwner.OwnerID = ""
	noOwnerToken, _ := adapter.GenerateToken(noOwner)

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "user-123"})
	noExpToken, _ := noExp.SignedString([]byte("test-secret"))

	wrongAlg := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"user_id": "user-123",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	wrongAlgToken, _ := wrongAlg.SignedString([]byte("test-secret"))

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"expired", expiredToken, domain.ErrTokenExpired},
		{"wrong secret", otherSecret, domain.ErrTokenInvalid},
		{"missing owner", noOwnerToken, domain.ErrTokenInvalid},
		{"missing exp", noExpToken, domain.ErrTokenInvalid},
		{"wrong algorithm", wrongAlgToken, domain.ErrTokenInvalid},
		{"malformed", "not.a.jwt", domain.ErrTokenInvalid},
		{"empty", "", domain.ErrTokenInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := adapter.ParseToken(tt.token)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestParseToken_Issuer(t *testing.T) {
	issuing := NewAdapterWithIssuer("test-secret", "timeline-web", 0)
	token, err := issuing.GenerateToken(validClaims())
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	if _, err := issuing.ParseToken(token); err != nil {
		t.Errorf("expected matching issuer to pass, got %v", err)
	}

	strict := NewAdapterWithIssuer("test-secret", "someone-else", 0)
	if _, err := strict.ParseToken(token); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid for a foreign issuer, got %v", err)
	}

	// No issuer configured accepts any issuer
	if _, err := NewAdapter("test-secret").ParseToken(token); err != nil {
		t.Errorf("expected issuer to be ignored, got %v", err)
	}
}

func TestParseToken_Leeway(t *testing.T) {
	claims := validClaims()
	claims.ExpiresAt = time.Now().Add(-5 * time.Second).Unix()

	token, _ := NewAdapter("test-secret").GenerateToken(claims)

	if _, err := NewAdapter("test-secret").ParseToken(token); !errors.Is(err, domain.ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired without leeway, got %v", err)
	}
	if _, err := NewAdapterWithIssuer("test-secret", "", time.Minute).ParseToken(token); err != nil {
		t.Errorf("expected leeway to accept a recently expired token, got %v", err)
	}
}
