package mocks

import (
	"context"

	"github.com/benmeehan/location-agent/internal/auth"
	"github.com/stretchr/testify/mock"
)

// TokenSource is a mock implementation of client.TokenSource
type TokenSource struct {
	mock.Mock
}

func (m *TokenSource) ValidToken(ctx context.Context) (auth.Token, error) {
	args := m.Called(ctx)
	return args.Get(0).(auth.Token), args.Error(1)
}

func (m *TokenSource) Invalidate() {
	m.Called()
}
