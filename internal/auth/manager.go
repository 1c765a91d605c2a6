package auth

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Authenticator performs the network side of authentication.
type Authenticator interface {
	// Authenticate exchanges the current (unauthenticated) token for a new one.
	Authenticate(ctx context.Context, current Token) (Token, error)
	// Refresh renews an authenticated token. current.RefreshToken is never empty.
	Refresh(ctx context.Context, current Token) (Token, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithObserver registers a callback invoked with every token obtained from
// the Authenticator.
func WithObserver(fn func(Token)) Option {
	return func(m *Manager) {
		m.observer = fn
	}
}

// Manager owns a single token and hands out valid snapshots of it.
// Concurrent callers share one in-flight authenticate and one in-flight
// refresh call and all observe the same outcome.
type Manager struct {
	authenticator Authenticator
	logger        zerolog.Logger
	now           func() time.Time
	observer      func(Token)

	mu             sync.Mutex
	state          Token
	authenticating bool
	refreshing     bool
	calls          singleflight.Group
}

// NewManager creates a Manager seeded with the given token.
func NewManager(authenticator Authenticator, seed Token, logger zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		authenticator: authenticator,
		logger:        logger,
		now:           time.Now,
		state:         seed,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ValidToken returns a token that is authenticated and not expired,
// authenticating or refreshing first when needed.
func (m *Manager) ValidToken(ctx context.Context) (Token, error) {
	m.mu.Lock()
	var op string
	switch {
	case m.refreshing:
		op = OpRefresh
		m.logger.Debug().Msg("Joining in-flight token refresh")
	case m.authenticating:
		op = OpAuthenticate
		m.logger.Debug().Msg("Joining in-flight authentication")
	case !m.state.IsAuthenticated():
		op = OpAuthenticate
		m.authenticating = true
		m.logger.Info().Msg("Token is not authenticated, authenticating")
	case !m.state.IsValid(m.now()):
		op = OpRefresh
		m.refreshing = true
		m.logger.Info().
			Bool("invalidated", m.state.Invalidated).
			Time("expires_at", m.state.ExpiresAt).
			Msg("Token is no longer valid, refreshing")
	default:
		token := m.state
		m.mu.Unlock()
		return token, nil
	}
	// The marker and the call are published in the same critical section,
	// so a caller that sees the marker always joins this call.
	ch := m.calls.DoChan(op, m.operation(ctx, op, m.state))
	m.mu.Unlock()

	select {
	case res := <-ch:
		if res.Err != nil {
			return Token{}, res.Err
		}
		return res.Val.(Token), nil
	case <-ctx.Done():
		return Token{}, ctx.Err()
	}
}

// Invalidate marks the current token as unusable. The next ValidToken call
// refreshes it.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.state.Invalidated = true
	m.mu.Unlock()
	m.logger.Info().Msg("Token invalidated")
}

// Current returns a snapshot of the token without validating it.
func (m *Manager) Current() Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) operation(ctx context.Context, op string, current Token) func() (interface{}, error) {
	// Waiters may give up, the network call itself runs to completion.
	ctx = context.WithoutCancel(ctx)
	return func() (interface{}, error) {
		var (
			token Token
			err   error
		)
		if op == OpRefresh {
			token, err = m.refresh(ctx, current)
		} else {
			token, err = m.authenticate(ctx, current)
		}
		return m.complete(op, token, err)
	}
}

func (m *Manager) authenticate(ctx context.Context, current Token) (Token, error) {
	token, err := m.authenticator.Authenticate(ctx, current)
	if err != nil {
		return Token{}, &Error{Op: OpAuthenticate, Err: err}
	}
	return token, nil
}

func (m *Manager) refresh(ctx context.Context, current Token) (Token, error) {
	if current.RefreshToken == "" {
		return Token{}, ErrMissingRefreshToken
	}
	token, err := m.authenticator.Refresh(ctx, current)
	if err != nil {
		return Token{}, &Error{Op: OpRefresh, Err: err}
	}
	return token, nil
}

// complete publishes the outcome of op and clears its in-flight marker.
func (m *Manager) complete(op string, token Token, err error) (interface{}, error) {
	m.mu.Lock()
	if op == OpRefresh {
		m.refreshing = false
	} else {
		m.authenticating = false
	}
	m.calls.Forget(op)
	if err == nil {
		token.Invalidated = false
		m.state = token
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Error().Err(err).Str("operation", op).Msg("Token operation failed")
		return nil, err
	}

	m.logger.Info().
		Str("operation", op).
		Time("expires_at", token.ExpiresAt).
		Msg("Token updated")
	if m.observer != nil {
		m.observer(token)
	}
	return token, nil
}
