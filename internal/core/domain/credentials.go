package domain

import "time"

// DriveCredentials are the stored Google OAuth tokens of one owner.
// They are written by the sign-in flow and only read here.
type DriveCredentials struct {
	OwnerID      string     `json:"ownerId"`
	AccessToken  string     `json:"-"` // Never serialize
	RefreshToken string     `json:"-"` // Never serialize
	TokenType    string     `json:"tokenType,omitempty"`
	Expiry       *time.Time `json:"expiry,omitempty"`
	Scopes       []string   `json:"scopes,omitempty"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// IsExpired checks if the access token has expired
func (c *DriveCredentials) IsExpired() bool {
	if c.Expiry == nil {
		return false
	}
	return time.Now().After(*c.Expiry)
}

// NeedsRefresh checks if tokens should be refreshed (within 5 min of expiry)
func (c *DriveCredentials) NeedsRefresh() bool {
	if c.Expiry == nil {
		return false
	}
	return time.Now().Add(5 * time.Minute).After(*c.Expiry)
}
