package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/benmeehan/location-agent/pkg/file"
	"github.com/go-playground/validator/v10"
)

// Location sources.
const (
	SourceSerial = "serial"
	SourceGoogle = "google"
)

// Upload transports.
const (
	TransportHTTP = "http"
	TransportMQTT = "mqtt"
)

// Config represents the structure of the configuration file.
type Config struct {
	Log struct {
		Level string `yaml:"level" validate:"oneof=trace debug info warn error"` // Minimum log level
	} `yaml:"log"`

	MQTT struct {
		Broker        string `yaml:"broker"`         // MQTT broker address
		ClientID      string `yaml:"client_id"`      // MQTT client ID prefix
		CACertificate string `yaml:"ca_certificate"` // Path to the CA certificate
	} `yaml:"mqtt"`

	Identity struct {
		DeviceFile string `yaml:"device_file" validate:"required"` // Path to the device identity file
	} `yaml:"identity"`

	API struct {
		BaseURL string        `yaml:"base_url" validate:"required,url"` // Root of the location API
		Timeout time.Duration `yaml:"timeout" validate:"gt=0"`          // Timeout for a single request
	} `yaml:"api"`

	Security struct {
		InitialToken string `yaml:"initial_token"` // Bootstrap access token issued for the device
		TokenFile    string `yaml:"token_file"`    // Path to the persisted session
		AESKeyFile   string `yaml:"aes_key_file"`  // Path to the AES key protecting the session file
	} `yaml:"security"`

	Location struct {
		Source            string        `yaml:"source" validate:"oneof=serial google"`                 // serial GPS or Google geolocation
		GPSDevicePort     string        `yaml:"gps_device_port" validate:"required_if=Source serial"` // UNIX port where the GPS sensor is mounted
		GPSDeviceBaudRate int           `yaml:"gps_baud_rate" validate:"gt=0"`                          // The baud rate for the GPS sensor
		MapsAPIKey        string        `yaml:"maps_api_key" validate:"required_if=Source google"`    // Google Maps API key
		ModemIndex        int           `yaml:"modem_index" validate:"gte=0"`                           // mmcli modem used for cell tower scans
		Interval          time.Duration `yaml:"interval" validate:"gt=0"`                               // Polling interval for the geolocation API
	} `yaml:"location"`

	Buffer struct {
		Limit int `yaml:"limit" validate:"gte=0"` // Samples kept before the oldest batch is uploaded
	} `yaml:"buffer"`

	Uploader struct {
		Transport      string        `yaml:"transport" validate:"oneof=http mqtt"` // http or mqtt
		Topic          string        `yaml:"topic"`                                // MQTT topic for location messages
		QOS            int           `yaml:"qos" validate:"min=0,max=2"`           // MQTT QoS level for location messages
		PublishTimeout time.Duration `yaml:"publish_timeout" validate:"gt=0"`      // Max wait for the broker acknowledgement
	} `yaml:"uploader"`

	Retry struct {
		BaseDelay  time.Duration `yaml:"base_delay" validate:"gt=0"`                    // Initial delay after a failed upload
		MaxBackoff time.Duration `yaml:"max_backoff" validate:"gtefield=BaseDelay"` // Maximum delay between retries
	} `yaml:"retry"`
}

// DefaultConfig returns the values used for settings absent from the file.
func DefaultConfig() *Config {
	config := &Config{}
	config.Log.Level = "info"
	config.MQTT.ClientID = "location-agent"
	config.Identity.DeviceFile = "device.json"
	config.API.Timeout = 10 * time.Second
	config.Security.TokenFile = "token.enc"
	config.Location.Source = SourceSerial
	config.Location.GPSDeviceBaudRate = 9600
	config.Location.Interval = 30 * time.Second
	config.Buffer.Limit = 10
	config.Uploader.Transport = TransportHTTP
	config.Uploader.Topic = "location"
	config.Uploader.QOS = 1
	config.Uploader.PublishTimeout = 10 * time.Second
	config.Retry.BaseDelay = time.Second
	config.Retry.MaxBackoff = 5 * time.Minute
	return config
}

// LoadConfig loads the YAML configuration from the specified file on top of
// DefaultConfig and validates the result.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	config := DefaultConfig()
	if err := fileClient.ReadYamlFile(filename, config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", filename, err)
	}
	return config, nil
}

// Validate checks field constraints and the settings that depend on each other.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.Uploader.Transport == TransportMQTT {
		if c.MQTT.Broker == "" {
			return errors.New("mqtt.broker is required for the mqtt transport")
		}
		if c.Uploader.Topic == "" {
			return errors.New("uploader.topic is required for the mqtt transport")
		}
	}
	if c.Security.AESKeyFile == "" && c.Security.InitialToken == "" {
		return errors.New("security.initial_token is required when no session is persisted")
	}
	return nil
}
