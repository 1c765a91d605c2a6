package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benmeehan/location-agent/internal/auth"
	"github.com/benmeehan/location-agent/internal/buffer"
	"github.com/benmeehan/location-agent/internal/client"
	"github.com/benmeehan/location-agent/internal/service_registry"
	"github.com/benmeehan/location-agent/internal/services"
	"github.com/benmeehan/location-agent/internal/utils"
	"github.com/benmeehan/location-agent/pkg/encryption"
	"github.com/benmeehan/location-agent/pkg/file"
	"github.com/benmeehan/location-agent/pkg/identity"
	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/benmeehan/location-agent/pkg/mqtt"
	"github.com/benmeehan/location-agent/pkg/tokenstore"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const shutdownFlushTimeout = 10 * time.Second

func runAgent(configPath string) error {
	fileClient := file.NewFileService()

	config, err := utils.LoadConfig(configPath, fileClient)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Set up structured logging with JSON output
	level, err := zerolog.ParseLevel(config.Log.Level)
	if err != nil {
		return err
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	deviceInfo := identity.NewDeviceInfo(config.Identity.DeviceFile, fileClient)
	if err := deviceInfo.LoadDeviceInfo(); err != nil {
		return fmt.Errorf("failed to load device information: %w", err)
	}
	deviceID, err := deviceInfo.EnsureDeviceID()
	if err != nil {
		return fmt.Errorf("failed to assign device ID: %w", err)
	}
	logger = logger.With().Str("device_id", deviceID).Logger()

	seed, observer, err := loadSession(config, fileClient, logger)
	if err != nil {
		return err
	}

	apiClient, err := client.NewAPIClient(config.API.BaseURL, config.API.Timeout, logger)
	if err != nil {
		return err
	}
	tokens := auth.NewManager(client.NewAuthService(apiClient), seed, logger, auth.WithObserver(observer))

	uploader, disconnect, err := newUploader(config, apiClient, tokens, deviceInfo, fileClient, logger)
	if err != nil {
		return err
	}
	defer disconnect()

	source, err := newSource(config, logger)
	if err != nil {
		return err
	}

	tracker := services.NewLocationService(
		source,
		buffer.New(uploader, config.Buffer.Limit, logger),
		config.Retry.BaseDelay,
		config.Retry.MaxBackoff,
		logger,
	)

	serviceRegistry := service_registry.NewServiceRegistry(logger)
	serviceRegistry.RegisterService("location", tracker)
	if err := serviceRegistry.StartServices(); err != nil {
		return err
	}
	logger.Info().Msg("All services started successfully")

	// Handle graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	logger.Info().Msg("Shutting down gracefully...")
	stopErr := serviceRegistry.StopServices()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
	defer cancel()
	if err := tracker.FlushLatest(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to upload the latest location before exit")
	}
	return stopErr
}

// loadSession returns the token the manager starts from and the observer
// persisting every new token. Without an AES key nothing is persisted.
func loadSession(config *utils.Config, fileClient file.FileOperations, logger zerolog.Logger) (auth.Token, func(auth.Token), error) {
	if config.Security.AESKeyFile == "" {
		return auth.Seed(config.Security.InitialToken), func(auth.Token) {}, nil
	}

	key, err := fileClient.ReadFileRaw(config.Security.AESKeyFile)
	if err != nil {
		return auth.Token{}, nil, fmt.Errorf("failed to read AES key: %w", err)
	}
	encryptionManager, err := encryption.NewEncryptionManager(key)
	if err != nil {
		return auth.Token{}, nil, fmt.Errorf("failed to create encryption manager: %w", err)
	}
	store := tokenstore.New(config.Security.TokenFile, fileClient, encryptionManager)

	observer := func(token auth.Token) {
		err := store.Save(tokenstore.Record{
			AccessToken:  token.AccessToken,
			RefreshToken: token.RefreshToken,
			ExpiresAt:    token.ExpiresAt,
		})
		if err != nil {
			logger.Error().Err(err).Msg("Failed to persist session")
		}
	}

	record, ok, err := store.Load()
	if err != nil {
		logger.Warn().Err(err).Msg("Discarding unreadable session file")
	}
	if ok && err == nil {
		logger.Info().Time("expires_at", record.ExpiresAt).Msg("Resuming persisted session")
		return auth.Token{
			AccessToken:  record.AccessToken,
			RefreshToken: record.RefreshToken,
			ExpiresAt:    record.ExpiresAt,
		}, observer, nil
	}

	if config.Security.InitialToken == "" {
		return auth.Token{}, nil, fmt.Errorf("no persisted session in %s and no initial token configured", config.Security.TokenFile)
	}
	return auth.Seed(config.Security.InitialToken), observer, nil
}

func newUploader(config *utils.Config, apiClient *client.APIClient, tokens client.TokenSource,
	deviceInfo identity.DeviceInfoInterface, fileClient file.FileOperations, logger zerolog.Logger) (buffer.Uploader, func(), error) {
	if config.Uploader.Transport != utils.TransportMQTT {
		return client.NewLocationUploader(apiClient, tokens, deviceInfo, logger), func() {}, nil
	}

	// Generate a unique MQTT Client ID by appending a UUID
	clientID := config.MQTT.ClientID + "-" + uuid.New().String()
	logger.Info().Str("client_id", clientID).Msg("Using MQTT client ID")

	mqttClient := mqtt.NewMqttService(fileClient, logger)
	if err := mqttClient.Initialize(config.MQTT.Broker, clientID, config.MQTT.CACertificate); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize MQTT connection: %w", err)
	}

	uploader := client.NewMQTTUploader(
		config.Uploader.Topic,
		config.Uploader.QOS,
		config.Uploader.PublishTimeout,
		mqttClient,
		tokens,
		deviceInfo,
		logger,
	)
	return uploader, func() { mqttClient.Disconnect(250) }, nil
}

func newSource(config *utils.Config, logger zerolog.Logger) (location.Source, error) {
	if config.Location.Source == utils.SourceSerial {
		return location.NewSerialSource(config.Location.GPSDevicePort, config.Location.GPSDeviceBaudRate, logger), nil
	}

	provider, err := location.NewGoogleGeolocationProvider(config.Location.MapsAPIKey, config.Location.ModemIndex, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create geolocation provider: %w", err)
	}
	return location.NewPollingSource(provider, config.Location.Interval, logger), nil
}
