package identity

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/benmeehan/location-agent/pkg/file"
	"github.com/google/uuid"
)

// Identity holds the device's unique identifier and other metadata.
type Identity struct {
	ID       string          `json:"device_id,omitempty"`
	Name     string          `json:"device_name,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// DeviceInfoInterface gives access to the device identity.
type DeviceInfoInterface interface {
	LoadDeviceInfo() error
	EnsureDeviceID() (string, error)
	GetDeviceID() string
}

// DeviceInfo keeps the device identity in a JSON file.
type DeviceInfo struct {
	deviceInfoFile string
	fileOps        file.FileOperations

	mu       sync.RWMutex
	identity Identity
}

// NewDeviceInfo creates a DeviceInfo backed by filePath.
func NewDeviceInfo(filePath string, fileOps file.FileOperations) *DeviceInfo {
	return &DeviceInfo{
		deviceInfoFile: filePath,
		fileOps:        fileOps,
	}
}

// LoadDeviceInfo reads the identity file. A missing file leaves an empty identity.
func (d *DeviceInfo) LoadDeviceInfo() error {
	var identity Identity
	if err := d.fileOps.ReadJsonFile(d.deviceInfoFile, &identity); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	d.mu.Lock()
	d.identity = identity
	d.mu.Unlock()
	return nil
}

// EnsureDeviceID returns the device ID, generating and saving a new one on
// first start.
func (d *DeviceInfo) EnsureDeviceID() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.identity.ID != "" {
		return d.identity.ID, nil
	}

	identity := d.identity
	identity.ID = uuid.New().String()
	if err := d.fileOps.WriteJsonFile(d.deviceInfoFile, identity); err != nil {
		return "", err
	}
	d.identity = identity
	return identity.ID, nil
}

// GetDeviceID returns the current device ID.
func (d *DeviceInfo) GetDeviceID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.identity.ID
}
