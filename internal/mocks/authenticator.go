package mocks

import (
	"context"

	"github.com/benmeehan/location-agent/internal/auth"
	"github.com/stretchr/testify/mock"
)

// Authenticator is a mock implementation of auth.Authenticator
type Authenticator struct {
	mock.Mock
}

func (m *Authenticator) Authenticate(ctx context.Context, current auth.Token) (auth.Token, error) {
	args := m.Called(ctx, current)
	return args.Get(0).(auth.Token), args.Error(1)
}

func (m *Authenticator) Refresh(ctx context.Context, current auth.Token) (auth.Token, error) {
	args := m.Called(ctx, current)
	return args.Get(0).(auth.Token), args.Error(1)
}
