package location

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// PollingSource turns a single-shot Provider into a stream by polling it at
// a fixed interval. Failed polls are logged and skipped.
type PollingSource struct {
	provider Provider
	interval time.Duration
	logger   zerolog.Logger

	ticker    *time.Ticker
	closed    chan struct{}
	closeOnce sync.Once
}

// NewPollingSource creates a source polling provider every interval.
func NewPollingSource(provider Provider, interval time.Duration, logger zerolog.Logger) *PollingSource {
	return &PollingSource{
		provider: provider,
		interval: interval,
		logger:   logger,
		ticker:   time.NewTicker(interval),
		closed:   make(chan struct{}),
	}
}

// Next waits for the next tick and returns the provider's fix.
func (p *PollingSource) Next(ctx context.Context) (Sample, error) {
	for {
		select {
		case <-p.closed:
			return Sample{}, ErrSourceClosed
		case <-ctx.Done():
			return Sample{}, ctx.Err()
		case <-p.ticker.C:
		}

		sample, err := p.provider.GetLocation(ctx)
		if err != nil {
			p.logger.Warn().Err(err).Dur("interval", p.interval).Msg("Failed to get location from provider")
			continue
		}
		if sample.Timestamp.IsZero() {
			sample.Timestamp = time.Now()
		}
		return sample, nil
	}
}

// Close stops polling.
func (p *PollingSource) Close() error {
	p.closeOnce.Do(func() {
		p.ticker.Stop()
		close(p.closed)
	})
	return nil
}
