package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benmeehan/location-agent/internal/auth"
	"github.com/benmeehan/location-agent/internal/models"
)

// AuthService implements auth.Authenticator against the API.
type AuthService struct {
	client *APIClient
}

// NewAuthService creates an AuthService using client.
func NewAuthService(client *APIClient) *AuthService {
	return &AuthService{client: client}
}

// Authenticate exchanges the bootstrap access token for a full session.
func (s *AuthService) Authenticate(ctx context.Context, current auth.Token) (auth.Token, error) {
	var resp models.AuthResponse
	if err := s.client.post(ctx, endpointAuthenticate, current.BearerAccessToken(), nil, &resp); err != nil {
		return auth.Token{}, err
	}
	if resp.RefreshToken == "" {
		return auth.Token{}, errors.New("authentication response carries no refresh token")
	}

	expiresAt, err := expiry(resp.AccessToken, resp.ExpiresAt.Time)
	if err != nil {
		return auth.Token{}, err
	}
	return auth.Token{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

// Refresh obtains a new access token with the refresh token. The refresh
// token itself is kept.
func (s *AuthService) Refresh(ctx context.Context, current auth.Token) (auth.Token, error) {
	var resp models.RefreshResponse
	if err := s.client.post(ctx, endpointRefresh, current.BearerRefreshToken(), nil, &resp); err != nil {
		return auth.Token{}, err
	}

	expiresAt, err := expiry(resp.AccessToken, resp.ExpiresAt.Time)
	if err != nil {
		return auth.Token{}, err
	}
	return auth.Token{
		AccessToken:  resp.AccessToken,
		RefreshToken: current.RefreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

// expiry prefers the explicit expiry and falls back to the JWT exp claim.
func expiry(accessToken string, explicit time.Time) (time.Time, error) {
	if accessToken == "" {
		return time.Time{}, errors.New("response carries no access token")
	}
	if !explicit.IsZero() {
		return explicit, nil
	}
	expiresAt, err := auth.ExpiryFromJWT(accessToken)
	if err != nil {
		return time.Time{}, fmt.Errorf("response carries no expiry: %w", err)
	}
	return expiresAt, nil
}
