package domain

// AuthContext identifies the authenticated owner of a request
type AuthContext struct {
	OwnerID string `json:"ownerId"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
}

// TokenClaims represents the bearer token payload
type TokenClaims struct {
	OwnerID   string `json:"user_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// ToAuthContext converts validated claims to a request principal.
func (c *TokenClaims) ToAuthContext() *AuthContext {
	return &AuthContext{
		OwnerID: c.OwnerID,
		Email:   c.Email,
		Name:    c.Name,
	}
}

// RequireOwner returns ErrUnauthorized for an empty owner id.
func RequireOwner(ownerID string) error {
	if ownerID == "" {
		return ErrUnauthorized
	}
	return nil
}
