package location

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/rs/zerolog"
	"github.com/tarm/serial"
)

// SerialSource streams fixes from a GPS receiver that writes NMEA sentences
// to a serial port. A sample is emitted for every valid RMC sentence; the
// HDOP of the latest GGA sentence is used as its accuracy.
type SerialSource struct {
	port     string
	baudRate int
	logger   zerolog.Logger
	openPort func(*serial.Config) (io.ReadWriteCloser, error)

	startOnce sync.Once
	closeOnce sync.Once
	samples   chan Sample
	done      chan struct{}

	mu     sync.Mutex
	conn   io.Closer
	endErr error
}

// NewSerialSource creates a source reading the receiver on port at baudRate.
// The port is opened by the first call to Next.
func NewSerialSource(port string, baudRate int, logger zerolog.Logger) *SerialSource {
	return &SerialSource{
		port:     port,
		baudRate: baudRate,
		logger:   logger,
		openPort: func(c *serial.Config) (io.ReadWriteCloser, error) {
			return serial.OpenPort(c)
		},
		samples: make(chan Sample),
		done:    make(chan struct{}),
	}
}

// Next returns the next fix read from the receiver.
func (s *SerialSource) Next(ctx context.Context) (Sample, error) {
	s.startOnce.Do(s.start)

	select {
	case sample, ok := <-s.samples:
		if !ok {
			return Sample{}, s.err()
		}
		return sample, nil
	case <-s.done:
		return Sample{}, ErrSourceClosed
	case <-ctx.Done():
		return Sample{}, ctx.Err()
	}
}

// Close stops the stream and releases the serial port.
func (s *SerialSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.conn != nil {
			err = s.conn.Close()
		}
	})
	return err
}

func (s *SerialSource) start() {
	conn, err := s.openPort(&serial.Config{Name: s.port, Baud: s.baudRate})
	if err != nil {
		s.finish(fmt.Errorf("failed to open GPS port %s: %w", s.port, err))
		return
	}

	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		conn.Close()
		s.finish(ErrSourceClosed)
		return
	default:
		s.conn = conn
	}
	s.mu.Unlock()

	s.logger.Info().Str("port", s.port).Int("baud_rate", s.baudRate).Msg("GPS port opened")
	go s.read(conn)
}

func (s *SerialSource) read(r io.Reader) {
	var hdop float64
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		sample, ok := parseSentence(strings.TrimSpace(scanner.Text()), &hdop)
		if !ok {
			continue
		}
		select {
		case s.samples <- sample:
		case <-s.done:
			s.finish(ErrSourceClosed)
			return
		}
	}

	select {
	case <-s.done:
		s.finish(ErrSourceClosed)
	default:
		if err := scanner.Err(); err != nil {
			s.finish(fmt.Errorf("failed to read GPS port %s: %w", s.port, err))
			return
		}
		s.finish(ErrSourceClosed)
	}
}

// finish records why the stream ended and closes it.
func (s *SerialSource) finish(err error) {
	s.mu.Lock()
	s.endErr = err
	s.mu.Unlock()
	if err != ErrSourceClosed {
		s.logger.Error().Err(err).Msg("GPS stream ended")
	}
	close(s.samples)
}

func (s *SerialSource) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endErr
}

// parseSentence turns an NMEA line into a sample. GGA sentences only update
// hdop; RMC sentences with a valid fix produce a sample.
func parseSentence(line string, hdop *float64) (Sample, bool) {
	if !strings.HasPrefix(line, "$") {
		return Sample{}, false
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		return Sample{}, false
	}

	switch fix := sentence.(type) {
	case nmea.GGA:
		if fix.FixQuality != nmea.Invalid {
			*hdop = fix.HDOP
		}
	case nmea.RMC:
		if fix.Validity != nmea.ValidRMC {
			return Sample{}, false
		}
		return Sample{
			Latitude:  fix.Latitude,
			Longitude: fix.Longitude,
			Accuracy:  *hdop,
			Timestamp: fixTime(fix.Date, fix.Time),
		}, true
	}
	return Sample{}, false
}

func fixTime(d nmea.Date, t nmea.Time) time.Time {
	if !d.Valid || !t.Valid {
		return time.Now()
	}
	year := 2000 + d.YY
	if d.YY >= 80 {
		year = 1900 + d.YY
	}
	return time.Date(year, time.Month(d.MM), d.DD,
		t.Hour, t.Minute, t.Second, t.Millisecond*int(time.Millisecond), time.UTC)
}
