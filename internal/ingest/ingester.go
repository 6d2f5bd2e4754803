package ingest

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/Schotsl/ClassicFM/internal/buffer"
	"github.com/Schotsl/ClassicFM/internal/telemetry"
	"github.com/sirupsen/logrus"
)

// Options tunes the ingestion loop's retry behavior.
type Options struct {
	// MaxRetries bounds the exponential backoff phase; after that the loop
	// falls back to a fixed idle-and-retry cycle.
	MaxRetries int
	// RetryDelay is the initial backoff delay.
	RetryDelay time.Duration
	// BackoffFactor multiplies the delay after each failed attempt.
	BackoffFactor float64
	// IdleInterval is the fixed retry interval once backoff is exhausted.
	IdleInterval time.Duration
	// ReconnectCooldown is slept after a mid-stream read failure or clean
	// end-of-stream before reconnecting.
	ReconnectCooldown time.Duration
}

// DefaultOptions returns the retry tuning used in production.
func DefaultOptions() Options {
	return Options{
		MaxRetries:        5,
		RetryDelay:        2 * time.Second,
		BackoffFactor:     1.5,
		IdleInterval:      30 * time.Second,
		ReconnectCooldown: 5 * time.Second,
	}
}

// Ingester feeds the ring buffer from the source, reconnecting on every
// failure. It runs until its context is cancelled.
type Ingester struct {
	source   Source
	ring     *buffer.Ring
	opts     Options
	stopped  func() bool
	reporter telemetry.Reporter
	logger   *logrus.Logger
}

// NewIngester creates an ingester. The stopped callback is sampled per chunk;
// while it reports true, received chunks are discarded instead of buffered.
func NewIngester(source Source, ring *buffer.Ring, opts Options, stopped func() bool, reporter telemetry.Reporter, logger *logrus.Logger) *Ingester {
	return &Ingester{
		source:   source,
		ring:     ring,
		opts:     opts,
		stopped:  stopped,
		reporter: reporter,
		logger:   logger,
	}
}

// Run executes the ingestion loop until ctx is cancelled. No failure
// terminates it; connection errors back off exponentially up to MaxRetries
// and then retry at a fixed idle interval.
func (i *Ingester) Run(ctx context.Context) {
	attempt := 0
	delay := i.opts.RetryDelay

	for ctx.Err() == nil {
		reader, err := i.source.Connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			attempt++
			if attempt <= i.opts.MaxRetries {
				i.logger.WithError(err).WithFields(logrus.Fields{
					"attempt": attempt,
					"delay":   delay.String(),
				}).Warn("Stream connect failed, backing off")
				sleep(ctx, delay)
				delay = time.Duration(float64(delay) * i.opts.BackoffFactor)
			} else {
				i.reporter.Error("stream_unreachable", err, telemetry.Fields{
					"attempts": attempt,
				})
				sleep(ctx, i.opts.IdleInterval)
			}
			continue
		}

		attempt = 0
		delay = i.opts.RetryDelay
		i.logger.Info("Connected to stream")

		i.drain(ctx, reader)
		_ = reader.Close()

		sleep(ctx, i.opts.ReconnectCooldown)
	}
}

// drain appends chunks until the stream ends or fails.
func (i *Ingester) drain(ctx context.Context, reader ChunkReader) {
	for ctx.Err() == nil {
		chunk, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				i.logger.Info("Stream ended cleanly, reconnecting")
				return
			}
			if ctx.Err() != nil {
				return
			}
			i.reporter.Error("stream_read_failed", err, nil)
			return
		}

		if i.stopped() {
			// Playback is stopped; keep the connection warm but drop data.
			continue
		}
		i.ring.Append(chunk)
	}
}

// sleep waits for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
