package location

import (
	"context"
	"errors"
)

// ErrSourceClosed is returned by Source.Next once the stream has ended.
var ErrSourceClosed = errors.New("location source closed")

// Source produces a lazy, non-restartable stream of samples.
type Source interface {
	// Next blocks until the next sample is available. It returns
	// ErrSourceClosed after Close, or the sensor error that ended the stream.
	Next(ctx context.Context) (Sample, error)
	Close() error
}

// Provider returns a single location fix on demand.
type Provider interface {
	GetLocation(ctx context.Context) (Sample, error)
}
