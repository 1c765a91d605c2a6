package buffer

import (
	"context"
	"sort"

	"github.com/benmeehan/location-agent/pkg/location"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const batchKey = "oldest"

// Uploader delivers one location sample to the backend. A nil error is the
// delivery confirmation.
type Uploader interface {
	Send(ctx context.Context, sample location.Sample) error
}

// Buffer holds pending samples in memory and uploads the oldest ones in
// timestamp order once more than limit samples are buffered.
//
// Samples are keyed by timestamp; adding a sample with an existing timestamp
// replaces the buffered one.
type Buffer struct {
	uploader Uploader
	limit    int
	logger   zerolog.Logger

	items cmap.ConcurrentMap[int64, location.Sample]
	batch singleflight.Group
}

// New creates an empty buffer. A limit of zero uploads every sample as soon
// as it is added.
func New(uploader Uploader, limit int, logger zerolog.Logger) *Buffer {
	if limit < 0 {
		limit = 0
	}
	return &Buffer{
		uploader: uploader,
		limit:    limit,
		logger:   logger,
		items:    cmap.NewWithCustomShardingFunction[int64, location.Sample](shardTimestamp),
	}
}

// Add buffers sample and, when the buffer grows past its limit, uploads the
// oldest batch. If a batch is already being uploaded Add waits for it
// instead of starting another one.
func (b *Buffer) Add(ctx context.Context, sample location.Sample) error {
	b.items.Set(key(sample), sample)

	if size := b.items.Count(); size > b.limit {
		b.logger.Debug().Int("size", size).Int("limit", b.limit).Msg("Buffer over limit, uploading oldest samples")
		return b.uploadOldest(ctx)
	}
	return nil
}

// UploadLatest uploads the newest buffered sample and removes it once the
// upload is confirmed. It does nothing when the buffer is empty.
func (b *Buffer) UploadLatest(ctx context.Context) error {
	keys := b.items.Keys()
	if len(keys) == 0 {
		return nil
	}

	latest := keys[0]
	for _, k := range keys[1:] {
		if k > latest {
			latest = k
		}
	}
	sample, ok := b.items.Get(latest)
	if !ok {
		return nil
	}

	if err := b.uploader.Send(ctx, sample); err != nil {
		b.logger.Error().Err(err).Time("timestamp", sample.Timestamp).Msg("Failed to upload latest location")
		return &UploadError{Sample: sample, Err: err}
	}
	b.items.Remove(latest)
	b.logger.Info().Time("timestamp", sample.Timestamp).Msg("Latest location uploaded")
	return nil
}

// Len returns the number of buffered samples.
func (b *Buffer) Len() int {
	return b.items.Count()
}

// Samples returns the buffered samples ordered by timestamp.
func (b *Buffer) Samples() []location.Sample {
	items := b.items.Items()
	keys := make([]int64, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	samples := make([]location.Sample, len(keys))
	for i, k := range keys {
		samples[i] = items[k]
	}
	return samples
}

// uploadOldest joins the in-flight batch or starts a new one. The batch
// itself is not tied to ctx; only this caller's wait is.
func (b *Buffer) uploadOldest(ctx context.Context) error {
	batchCtx := context.WithoutCancel(ctx)
	ch := b.batch.DoChan(batchKey, func() (interface{}, error) {
		return nil, b.flushOldest(batchCtx)
	})

	select {
	case res := <-ch:
		if res.Shared {
			b.logger.Debug().Msg("Joined in-flight upload batch")
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// flushOldest uploads the oldest samples one at a time, removing each as soon
// as it is confirmed. The first failure aborts the rest of the batch.
func (b *Buffer) flushOldest(ctx context.Context) error {
	batch := b.Samples()
	if n := b.batchSize(); len(batch) > n {
		batch = batch[:n]
	}

	for i, sample := range batch {
		if err := b.uploader.Send(ctx, sample); err != nil {
			b.logger.Error().
				Err(err).
				Int("uploaded", i).
				Int("batch_size", len(batch)).
				Time("timestamp", sample.Timestamp).
				Msg("Upload batch aborted")
			return &UploadError{Sample: sample, Err: err}
		}
		b.items.Remove(key(sample))
	}

	b.logger.Info().
		Int("uploaded", len(batch)).
		Int("remaining", b.items.Count()).
		Msg("Upload batch completed")
	return nil
}

func (b *Buffer) batchSize() int {
	if b.limit < 1 {
		return 1
	}
	return b.limit
}

func key(sample location.Sample) int64 {
	return sample.Timestamp.UnixNano()
}

// shardTimestamp spreads nanosecond keys over the map shards (FNV-1a).
func shardTimestamp(k int64) uint32 {
	hash := uint32(2166136261)
	for i := 0; i < 8; i++ {
		hash ^= uint32(byte(k >> (8 * i)))
		hash *= 16777619
	}
	return hash
}
