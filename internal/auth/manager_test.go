package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benmeehan/location-agent/internal/auth"
	"github.com/benmeehan/location-agent/internal/mocks"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func authenticatedToken(access, refresh string) auth.Token {
	return auth.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

// gate blocks a mocked call until released and reports when the first call entered.
type gate struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) wait(mock.Arguments) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
}

// callConcurrently runs ValidToken from n goroutines and releases g once the
// first network call has started.
func callConcurrently(t *testing.T, m *auth.Manager, g *gate, n int) ([]auth.Token, []error) {
	t.Helper()
	tokens := make([]auth.Token, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = m.ValidToken(context.Background())
		}(i)
	}

	select {
	case <-g.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("network call never started")
	}
	// Let the remaining callers pile up behind the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(g.release)
	wg.Wait()
	return tokens, errs
}

func TestManager_ValidToken_CoalescesConcurrentAuthentication(t *testing.T) {
	for _, callers := range []int{2, 25} {
		authenticator := new(mocks.Authenticator)
		g := newGate()
		authenticator.On("Authenticate", mock.Anything, mock.Anything).
			Run(g.wait).
			Return(authenticatedToken("new-access", "new-refresh"), nil)

		m := auth.NewManager(authenticator, auth.Seed("bootstrap"), zerolog.Nop())
		tokens, errs := callConcurrently(t, m, g, callers)

		authenticator.AssertNumberOfCalls(t, "Authenticate", 1)
		authenticator.AssertNotCalled(t, "Refresh", mock.Anything, mock.Anything)
		for i := range tokens {
			require.NoError(t, errs[i])
			assert.Equal(t, "new-access", tokens[i].AccessToken)
			assert.Equal(t, tokens[0], tokens[i])
		}
	}
}

func TestManager_ValidToken_AuthenticatesWithSeed(t *testing.T) {
	authenticator := new(mocks.Authenticator)
	seed := auth.Seed("bootstrap")
	authenticator.On("Authenticate", mock.Anything, seed).
		Return(authenticatedToken("new-access", "new-refresh"), nil).Once()

	m := auth.NewManager(authenticator, seed, zerolog.Nop())

	token, err := m.ValidToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new-refresh", token.RefreshToken)

	// A valid token is served from memory.
	again, err := m.ValidToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, token, again)
	authenticator.AssertExpectations(t)
}

func TestManager_Invalidate_TriggersSingleRefresh(t *testing.T) {
	authenticator := new(mocks.Authenticator)
	current := authenticatedToken("access", "refresh")
	authenticator.On("Refresh", mock.Anything, mock.MatchedBy(func(tok auth.Token) bool {
		return tok.RefreshToken == "refresh" && tok.Invalidated
	})).Return(authenticatedToken("refreshed-access", "refresh"), nil).Once()

	m := auth.NewManager(authenticator, current, zerolog.Nop())
	m.Invalidate()
	assert.True(t, m.Current().Invalidated)

	token, err := m.ValidToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refreshed-access", token.AccessToken)
	assert.False(t, token.Invalidated)
	assert.False(t, m.Current().Invalidated)

	authenticator.AssertExpectations(t)
	authenticator.AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything)
}

func TestManager_ValidToken_RefreshesExpiredToken(t *testing.T) {
	authenticator := new(mocks.Authenticator)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	current := auth.Token{AccessToken: "access", RefreshToken: "refresh", ExpiresAt: now.Add(-time.Second)}
	authenticator.On("Refresh", mock.Anything, current).
		Return(auth.Token{AccessToken: "refreshed", RefreshToken: "refresh", ExpiresAt: now.Add(time.Hour)}, nil).Once()

	m := auth.NewManager(authenticator, current, zerolog.Nop(), auth.WithClock(func() time.Time { return now }))

	token, err := m.ValidToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refreshed", token.AccessToken)
	authenticator.AssertExpectations(t)
}

func TestManager_ValidToken_CallersJoinInFlightRefresh(t *testing.T) {
	authenticator := new(mocks.Authenticator)
	g := newGate()
	authenticator.On("Refresh", mock.Anything, mock.Anything).
		Run(g.wait).
		Return(authenticatedToken("refreshed", "refresh"), nil)

	m := auth.NewManager(authenticator, authenticatedToken("access", "refresh"), zerolog.Nop())
	m.Invalidate()

	tokens, errs := callConcurrently(t, m, g, 10)

	authenticator.AssertNumberOfCalls(t, "Refresh", 1)
	authenticator.AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything)
	for i := range tokens {
		require.NoError(t, errs[i])
		assert.Equal(t, "refreshed", tokens[i].AccessToken)
	}
}

func TestManager_Refresh_MissingRefreshToken(t *testing.T) {
	authenticator := new(mocks.Authenticator)
	m := auth.NewManager(authenticator, auth.Seed("bootstrap"), zerolog.Nop())

	_, err := m.RefreshWith(context.Background(), auth.Seed("bootstrap"))

	assert.ErrorIs(t, err, auth.ErrMissingRefreshToken)
	authenticator.AssertNotCalled(t, "Refresh", mock.Anything, mock.Anything)
}

func TestManager_ValidToken_FailureIsSharedAndCleared(t *testing.T) {
	authenticator := new(mocks.Authenticator)
	g := newGate()
	networkErr := errors.New("connection reset")
	authenticator.On("Authenticate", mock.Anything, mock.Anything).
		Run(g.wait).
		Return(auth.Token{}, networkErr).Once()

	m := auth.NewManager(authenticator, auth.Seed("bootstrap"), zerolog.Nop())
	_, errs := callConcurrently(t, m, g, 5)

	authenticator.AssertNumberOfCalls(t, "Authenticate", 1)
	for _, err := range errs {
		require.Error(t, err)
		assert.ErrorIs(t, err, networkErr)
		var authErr *auth.Error
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, auth.OpAuthenticate, authErr.Op)
		assert.Same(t, errs[0], err, "all waiters observe the same failure")
	}

	// The in-flight marker is gone, the next call starts over.
	authenticator.On("Authenticate", mock.Anything, mock.Anything).
		Return(authenticatedToken("second-try", "refresh"), nil).Once()
	token, err := m.ValidToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second-try", token.AccessToken)
	authenticator.AssertNumberOfCalls(t, "Authenticate", 2)
}

func TestManager_ValidToken_RefreshFailureKeepsTokenInvalid(t *testing.T) {
	authenticator := new(mocks.Authenticator)
	authenticator.On("Refresh", mock.Anything, mock.Anything).
		Return(auth.Token{}, errors.New("bad gateway")).Once()

	m := auth.NewManager(authenticator, authenticatedToken("access", "refresh"), zerolog.Nop())
	m.Invalidate()

	_, err := m.ValidToken(context.Background())
	var authErr *auth.Error
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, auth.OpRefresh, authErr.Op)
	assert.True(t, m.Current().Invalidated)

	authenticator.On("Refresh", mock.Anything, mock.Anything).
		Return(authenticatedToken("refreshed", "refresh"), nil).Once()
	token, err := m.ValidToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refreshed", token.AccessToken)
	authenticator.AssertNumberOfCalls(t, "Refresh", 2)
}

func TestManager_ValidToken_CancelledWaiterDoesNotAbortAuthentication(t *testing.T) {
	authenticator := new(mocks.Authenticator)
	g := newGate()
	authenticator.On("Authenticate", mock.Anything, mock.Anything).
		Run(g.wait).
		Return(authenticatedToken("late-access", "refresh"), nil).Once()

	observed := make(chan auth.Token, 1)
	m := auth.NewManager(authenticator, auth.Seed("bootstrap"), zerolog.Nop(),
		auth.WithObserver(func(tok auth.Token) { observed <- tok }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.ValidToken(ctx)
		done <- err
	}()

	<-g.entered
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(g.release)
	select {
	case tok := <-observed:
		assert.Equal(t, "late-access", tok.AccessToken)
	case <-time.After(2 * time.Second):
		t.Fatal("authentication did not complete after the waiter left")
	}
	assert.Equal(t, "late-access", m.Current().AccessToken)

	token, err := m.ValidToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "late-access", token.AccessToken)
	authenticator.AssertNumberOfCalls(t, "Authenticate", 1)
}
