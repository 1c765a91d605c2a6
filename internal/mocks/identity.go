package mocks

import "github.com/stretchr/testify/mock"

// DeviceInfo is a mock implementation of identity.DeviceInfoInterface
type DeviceInfo struct {
	mock.Mock
}

func (m *DeviceInfo) LoadDeviceInfo() error {
	args := m.Called()
	return args.Error(0)
}

func (m *DeviceInfo) EnsureDeviceID() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func (m *DeviceInfo) GetDeviceID() string {
	args := m.Called()
	return args.String(0)
}
