package session

import (
	"context"
	"strings"
)

// Session is the credential triple of the signed-in principal.
type Session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	PrincipalID  string `json:"principalId,omitempty"`
}

// Valid reports whether the session carries an access token.
func (s Session) Valid() bool {
	return strings.TrimSpace(s.AccessToken) != ""
}

// HasRefreshToken reports whether a refresh can be attempted.
func (s Session) HasRefreshToken() bool {
	return strings.TrimSpace(s.RefreshToken) != ""
}

// Store is the single source of truth for the current credentials. Set and
// Clear replace or remove all three values as one unit; readers never observe
// a partially written or partially cleared session.
type Store interface {
	Get(ctx context.Context) (Session, bool, error)
	Set(ctx context.Context, s Session) error
	Clear(ctx context.Context) error
}
