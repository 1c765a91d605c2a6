package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benmeehan/location-agent/internal/auth"
	"github.com/benmeehan/location-agent/internal/client"
	"github.com/benmeehan/location-agent/internal/mocks"
	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newAPIClient(t *testing.T, handler http.HandlerFunc) *client.APIClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := client.NewAPIClient(server.URL+"/api", 5*time.Second, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestNewAPIClient_RejectsInvalidURL(t *testing.T) {
	_, err := client.NewAPIClient("not a url", time.Second, zerolog.Nop())
	assert.Error(t, err)
}

func TestAuthService_Authenticate(t *testing.T) {
	c := newAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/auth", r.URL.Path)
		assert.Equal(t, "Bearer bootstrap", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]string{
			"accessToken":  "access",
			"refreshToken": "refresh",
			"expiresAt":    "2024-05-01T12:30:00.000Z",
		})
	})

	token, err := client.NewAuthService(c).Authenticate(context.Background(), auth.Seed("bootstrap"))
	require.NoError(t, err)

	assert.Equal(t, "access", token.AccessToken)
	assert.Equal(t, "refresh", token.RefreshToken)
	assert.True(t, token.ExpiresAt.Equal(time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)))
}

func TestAuthService_Authenticate_MissingRefreshToken(t *testing.T) {
	c := newAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"accessToken": "access",
			"expiresAt":   "2024-05-01T12:30:00.000Z",
		})
	})

	_, err := client.NewAuthService(c).Authenticate(context.Background(), auth.Seed("bootstrap"))
	assert.Error(t, err)
}

func TestAuthService_Refresh_KeepsRefreshToken(t *testing.T) {
	c := newAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/refresh", r.URL.Path)
		assert.Equal(t, "Bearer refresh", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]string{
			"accessToken": "new-access",
			"expiresAt":   "2024-05-01T13:00:00Z",
		})
	})

	current := auth.Token{AccessToken: "old-access", RefreshToken: "refresh", Invalidated: true}
	token, err := client.NewAuthService(c).Refresh(context.Background(), current)
	require.NoError(t, err)

	assert.Equal(t, "new-access", token.AccessToken)
	assert.Equal(t, "refresh", token.RefreshToken)
	assert.True(t, token.ExpiresAt.Equal(time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC)))
}

func TestAuthService_Refresh_FallsBackToJWTExpiry(t *testing.T) {
	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("server-secret"))
	require.NoError(t, err)

	c := newAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"accessToken": accessToken})
	})

	token, err := client.NewAuthService(c).Refresh(context.Background(), auth.Token{RefreshToken: "refresh"})
	require.NoError(t, err)
	assert.True(t, token.ExpiresAt.Equal(exp))
}

func TestAuthService_Refresh_NoExpiry(t *testing.T) {
	c := newAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"accessToken": "opaque"})
	})

	_, err := client.NewAuthService(c).Refresh(context.Background(), auth.Token{RefreshToken: "refresh"})
	assert.Error(t, err)
}

func TestAuthService_StatusError(t *testing.T) {
	c := newAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
	})

	_, err := client.NewAuthService(c).Authenticate(context.Background(), auth.Seed("bootstrap"))

	var statusErr *client.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
	assert.Equal(t, "invalid token", statusErr.Body)
	assert.False(t, client.IsForbidden(err))
}

func testSample() location.Sample {
	return location.Sample{
		Latitude:  37.7749,
		Longitude: -122.4194,
		Accuracy:  12.5,
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func deviceInfo(id string) *mocks.DeviceInfo {
	d := new(mocks.DeviceInfo)
	d.On("GetDeviceID").Return(id)
	return d
}

func TestLocationUploader_Send(t *testing.T) {
	c := newAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/location", r.URL.Path)
		assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "device-1", body["device_id"])
		assert.Equal(t, 37.7749, body["latitude"])
		assert.Equal(t, -122.4194, body["longitude"])
		assert.Equal(t, 12.5, body["accuracy"])
		assert.Equal(t, "2024-05-01T12:00:00Z", body["timestamp"])
		writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
	})
	tokens := new(mocks.TokenSource)
	tokens.On("ValidToken", mock.Anything).Return(auth.Token{AccessToken: "access"}, nil)

	uploader := client.NewLocationUploader(c, tokens, deviceInfo("device-1"), zerolog.Nop())

	require.NoError(t, uploader.Send(context.Background(), testSample()))
	tokens.AssertNotCalled(t, "Invalidate")
}

func TestLocationUploader_Send_ForbiddenRetriesOnce(t *testing.T) {
	var calls int32
	c := newAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			assert.Equal(t, "Bearer stale", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusForbidden)
			return
		}
		assert.Equal(t, "Bearer fresh", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
	})
	tokens := new(mocks.TokenSource)
	tokens.On("ValidToken", mock.Anything).Return(auth.Token{AccessToken: "stale"}, nil).Once()
	tokens.On("Invalidate").Return().Once()
	tokens.On("ValidToken", mock.Anything).Return(auth.Token{AccessToken: "fresh"}, nil).Once()

	uploader := client.NewLocationUploader(c, tokens, deviceInfo("device-1"), zerolog.Nop())

	require.NoError(t, uploader.Send(context.Background(), testSample()))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	tokens.AssertExpectations(t)
}

func TestLocationUploader_Send_ForbiddenTwiceFails(t *testing.T) {
	var calls int32
	c := newAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	})
	tokens := new(mocks.TokenSource)
	tokens.On("ValidToken", mock.Anything).Return(auth.Token{AccessToken: "access"}, nil)
	tokens.On("Invalidate").Return()

	uploader := client.NewLocationUploader(c, tokens, deviceInfo("device-1"), zerolog.Nop())
	err := uploader.Send(context.Background(), testSample())

	assert.True(t, client.IsForbidden(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	tokens.AssertNumberOfCalls(t, "Invalidate", 1)
}

func TestLocationUploader_Send_TokenFailure(t *testing.T) {
	c := newAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without a token")
	})
	authErr := &auth.Error{Op: auth.OpRefresh, Err: assert.AnError}
	tokens := new(mocks.TokenSource)
	tokens.On("ValidToken", mock.Anything).Return(auth.Token{}, authErr)

	uploader := client.NewLocationUploader(c, tokens, deviceInfo("device-1"), zerolog.Nop())

	assert.ErrorIs(t, uploader.Send(context.Background(), testSample()), assert.AnError)
}
