package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/benmeehan/location-agent/internal/models"
	"github.com/benmeehan/location-agent/pkg/identity"
	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/benmeehan/location-agent/pkg/mqtt"
	"github.com/rs/zerolog"
)

// MQTTUploader publishes samples to a broker topic, wrapped with the
// current access token.
type MQTTUploader struct {
	topic      string
	qos        int
	timeout    time.Duration
	mqttClient mqtt.MQTTClient
	tokens     TokenSource
	deviceInfo identity.DeviceInfoInterface
	logger     zerolog.Logger
}

// NewMQTTUploader creates an MQTTUploader.
func NewMQTTUploader(topic string, qos int, timeout time.Duration, mqttClient mqtt.MQTTClient,
	tokens TokenSource, deviceInfo identity.DeviceInfoInterface, logger zerolog.Logger) *MQTTUploader {
	return &MQTTUploader{
		topic:      topic,
		qos:        qos,
		timeout:    timeout,
		mqttClient: mqttClient,
		tokens:     tokens,
		deviceInfo: deviceInfo,
		logger:     logger,
	}
}

// Send publishes a single sample and waits for the broker to acknowledge it.
func (u *MQTTUploader) Send(ctx context.Context, sample location.Sample) error {
	token, err := u.tokens.ValidToken(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(models.WrappedPayload{
		JWT:     token.AccessToken,
		Payload: locationMessage(u.deviceInfo.GetDeviceID(), sample),
	})
	if err != nil {
		return fmt.Errorf("failed to serialize location message: %w", err)
	}

	pubToken := u.mqttClient.Publish(u.topic, byte(u.qos), false, payload)
	if !pubToken.WaitTimeout(u.timeout) {
		return fmt.Errorf("timed out publishing location to %s", u.topic)
	}
	if err := pubToken.Error(); err != nil {
		return fmt.Errorf("failed to publish location to %s: %w", u.topic, err)
	}

	u.logger.Debug().
		Str("topic", u.topic).
		Time("timestamp", sample.Timestamp).
		Msg("Location published")
	return nil
}
