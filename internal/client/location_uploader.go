package client

import (
	"context"

	"github.com/benmeehan/location-agent/internal/auth"
	"github.com/benmeehan/location-agent/internal/models"
	"github.com/benmeehan/location-agent/pkg/identity"
	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/rs/zerolog"
)

// TokenSource hands out bearer tokens. *auth.Manager implements it.
type TokenSource interface {
	ValidToken(ctx context.Context) (auth.Token, error)
	Invalidate()
}

// LocationUploader sends samples to the location endpoint.
type LocationUploader struct {
	client     *APIClient
	tokens     TokenSource
	deviceInfo identity.DeviceInfoInterface
	logger     zerolog.Logger
}

// NewLocationUploader creates a LocationUploader.
func NewLocationUploader(client *APIClient, tokens TokenSource, deviceInfo identity.DeviceInfoInterface, logger zerolog.Logger) *LocationUploader {
	return &LocationUploader{
		client:     client,
		tokens:     tokens,
		deviceInfo: deviceInfo,
		logger:     logger,
	}
}

// Send uploads a single sample. A 403 invalidates the token and the upload
// is retried once with a refreshed one.
func (u *LocationUploader) Send(ctx context.Context, sample location.Sample) error {
	body := locationMessage(u.deviceInfo.GetDeviceID(), sample)

	err := u.send(ctx, body)
	if !IsForbidden(err) {
		return err
	}

	u.logger.Warn().Time("timestamp", sample.Timestamp).Msg("Location upload forbidden, retrying with a new token")
	u.tokens.Invalidate()
	return u.send(ctx, body)
}

func (u *LocationUploader) send(ctx context.Context, body models.Location) error {
	token, err := u.tokens.ValidToken(ctx)
	if err != nil {
		return err
	}
	return u.client.post(ctx, endpointLocation, token.BearerAccessToken(), body, nil)
}

func locationMessage(deviceID string, sample location.Sample) models.Location {
	return models.Location{
		DeviceID:  deviceID,
		Timestamp: sample.Timestamp.UTC(),
		Latitude:  sample.Latitude,
		Longitude: sample.Longitude,
		Accuracy:  sample.Accuracy,
	}
}
