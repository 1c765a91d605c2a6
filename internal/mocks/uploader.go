package mocks

import (
	"context"

	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/stretchr/testify/mock"
)

// Uploader is a mock implementation of buffer.Uploader
type Uploader struct {
	mock.Mock
}

func (m *Uploader) Send(ctx context.Context, sample location.Sample) error {
	args := m.Called(ctx, sample)
	return args.Error(0)
}

// SentSamples returns the samples passed to Send, in call order.
func (m *Uploader) SentSamples() []location.Sample {
	var samples []location.Sample
	for _, call := range m.Calls {
		if call.Method == "Send" {
			samples = append(samples, call.Arguments.Get(1).(location.Sample))
		}
	}
	return samples
}
