package services

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/benmeehan/location-agent/pkg/location"
	"github.com/rs/zerolog"
)

// SampleBuffer accepts samples and uploads them. *buffer.Buffer implements it.
type SampleBuffer interface {
	Add(ctx context.Context, sample location.Sample) error
	UploadLatest(ctx context.Context) error
}

// LocationService feeds samples from a location source into the buffer.
type LocationService struct {
	// Configuration fields
	baseDelay  time.Duration
	maxBackoff time.Duration

	// Dependencies
	source location.Source
	buffer SampleBuffer
	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) bool
	jitter func(d time.Duration) time.Duration

	// Internal state management
	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocationService creates a new LocationService. After a failed upload the
// service waits baseDelay, doubling on every consecutive failure up to
// maxBackoff, before it consumes the next sample.
func NewLocationService(source location.Source, buffer SampleBuffer, baseDelay, maxBackoff time.Duration,
	logger zerolog.Logger) *LocationService {
	return &LocationService{
		baseDelay:  baseDelay,
		maxBackoff: maxBackoff,
		source:     source,
		buffer:     buffer,
		logger:     logger,
		sleep:      sleepContext,
		jitter:     randomJitter,
	}
}

// Start launches the goroutine consuming the location source.
func (l *LocationService) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		l.logger.Warn().Msg("LocationService is already running")
		return errors.New("location service is already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.running = true

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.run(ctx)
	}()

	l.logger.Info().
		Dur("base_delay", l.baseDelay).
		Dur("max_backoff", l.maxBackoff).
		Msg("LocationService started")
	return nil
}

// Stop ends consumption and closes the source. Uploads already in flight
// run to completion in the background.
func (l *LocationService) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running {
		l.logger.Warn().Msg("LocationService is not running")
		return errors.New("location service is not running")
	}

	l.cancel()
	l.wg.Wait()
	l.running = false

	if err := l.source.Close(); err != nil {
		l.logger.Error().Err(err).Msg("Failed to close location source")
		return err
	}

	l.logger.Info().Msg("LocationService stopped")
	return nil
}

// FlushLatest uploads the most recent buffered sample.
func (l *LocationService) FlushLatest(ctx context.Context) error {
	return l.buffer.UploadLatest(ctx)
}

func (l *LocationService) run(ctx context.Context) {
	failures := 0
	for {
		sample, err := l.source.Next(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				l.logger.Info().Msg("LocationService is stopping")
			case errors.Is(err, location.ErrSourceClosed):
				l.logger.Info().Msg("Location source closed")
			default:
				l.logger.Error().Err(err).Msg("Location source failed")
			}
			return
		}

		if err := l.buffer.Add(ctx, sample); err != nil {
			if ctx.Err() != nil {
				l.logger.Info().Msg("LocationService is stopping")
				return
			}
			failures++
			delay := l.backoff(failures)
			l.logger.Warn().
				Err(err).
				Int("failures", failures).
				Dur("retry_in", delay).
				Msg("Failed to upload buffered locations")
			if !l.sleep(ctx, delay) {
				return
			}
			continue
		}

		if failures > 0 {
			l.logger.Info().Int("failures", failures).Msg("Location upload recovered")
		}
		failures = 0
	}
}

// backoff returns baseDelay * 2^(failures-1), capped at maxBackoff, plus jitter.
func (l *LocationService) backoff(failures int) time.Duration {
	delay := l.baseDelay
	for i := 1; i < failures && delay < l.maxBackoff; i++ {
		delay *= 2
	}
	if delay > l.maxBackoff {
		delay = l.maxBackoff
	}
	return delay + l.jitter(delay)
}

// randomJitter returns up to 10% of d.
func randomJitter(d time.Duration) time.Duration {
	if d < 10 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(d) / 10))
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
