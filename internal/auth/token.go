package auth

import "time"

// Token is a snapshot of the cached credential and its validity metadata.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Invalidated  bool      `json:"-"`
}

// Seed returns an unauthenticated, already expired token carrying only the
// bootstrap access token. It is the usual seed for a new Manager.
func Seed(accessToken string) Token {
	return Token{
		AccessToken: accessToken,
		ExpiresAt:   time.Unix(0, 0),
	}
}

// IsAuthenticated reports whether the token came from a completed authentication.
func (t Token) IsAuthenticated() bool {
	return t.RefreshToken != ""
}

// IsValid reports whether the access token can be used at the given instant.
func (t Token) IsValid(now time.Time) bool {
	return !t.Invalidated && now.Before(t.ExpiresAt)
}

// BearerAccessToken formats the access token for an Authorization header.
func (t Token) BearerAccessToken() string {
	return bearer(t.AccessToken)
}

// BearerRefreshToken formats the refresh token for an Authorization header.
func (t Token) BearerRefreshToken() string {
	return bearer(t.RefreshToken)
}

func bearer(key string) string {
	return "Bearer " + key
}
