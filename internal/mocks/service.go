package mocks

import "github.com/stretchr/testify/mock"

// Service is a mock implementation of service_registry.Service
type Service struct {
	mock.Mock
}

func (m *Service) Start() error {
	args := m.Called()
	return args.Error(0)
}

func (m *Service) Stop() error {
	args := m.Called()
	return args.Error(0)
}
