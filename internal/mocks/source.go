package mocks

import (
	"context"

	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/stretchr/testify/mock"
)

// Source is a mock implementation of location.Source
type Source struct {
	mock.Mock
}

func (m *Source) Next(ctx context.Context) (location.Sample, error) {
	args := m.Called(ctx)
	return args.Get(0).(location.Sample), args.Error(1)
}

func (m *Source) Close() error {
	args := m.Called()
	return args.Error(0)
}
