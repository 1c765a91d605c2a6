package mocks

import (
	"context"

	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/stretchr/testify/mock"
)

// SampleBuffer is a mock implementation of services.SampleBuffer
type SampleBuffer struct {
	mock.Mock
}

func (m *SampleBuffer) Add(ctx context.Context, sample location.Sample) error {
	args := m.Called(ctx, sample)
	return args.Error(0)
}

func (m *SampleBuffer) UploadLatest(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
