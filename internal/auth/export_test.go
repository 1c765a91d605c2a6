package auth

import "context"

// RefreshWith exposes the refresh step so tests can drive it with a token
// that ValidToken would never refresh.
func (m *Manager) RefreshWith(ctx context.Context, current Token) (Token, error) {
	return m.refresh(ctx, current)
}
