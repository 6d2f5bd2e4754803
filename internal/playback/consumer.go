package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Schotsl/ClassicFM/internal/buffer"
	"github.com/Schotsl/ClassicFM/internal/sink"
	"github.com/Schotsl/ClassicFM/internal/telemetry"
	"github.com/sirupsen/logrus"
)

var (
	// ErrAlreadyStarted is returned when Start is called on a running consumer.
	ErrAlreadyStarted = errors.New("playback already started")
	// ErrInvalidTransition is returned for pause/resume calls in the wrong state.
	ErrInvalidTransition = errors.New("invalid playback state transition")
)

// Options tunes the paced consumer.
type Options struct {
	// BytesPerChunk is how many bytes one pacing tick consumes.
	BytesPerChunk int
	// ChunkDuration is the wall-clock time one chunk represents.
	ChunkDuration time.Duration
	// InitialBufferBytes must be buffered before the first playback tick.
	InitialBufferBytes int
	// BufferBackoff is slept while the buffer holds less than one chunk.
	BufferBackoff time.Duration
	// PauseCheckInterval is slept between state checks while paused.
	PauseCheckInterval time.Duration
	// RestartCooldown is slept before respawning a dead or broken sink.
	RestartCooldown time.Duration
}

// DefaultOptions returns the pacing tuning used in production for the given
// bitrate.
func DefaultOptions(bytesPerSecond int) Options {
	return Options{
		BytesPerChunk:      bytesPerSecond / 2,
		ChunkDuration:      500 * time.Millisecond,
		InitialBufferBytes: bytesPerSecond * 10,
		BufferBackoff:      250 * time.Millisecond,
		PauseCheckInterval: 200 * time.Millisecond,
		RestartCooldown:    3 * time.Second,
	}
}

// Consumer owns the playback state machine and the sink process lifecycle.
// It pulls fixed-duration chunks from the ring buffer at wall-clock cadence.
type Consumer struct {
	ring     *buffer.Ring
	sink     sink.Sink
	opts     Options
	reporter telemetry.Reporter
	logger   *logrus.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// NewConsumer creates a paced consumer over the given buffer and sink.
func NewConsumer(ring *buffer.Ring, s sink.Sink, opts Options, reporter telemetry.Reporter, logger *logrus.Logger) *Consumer {
	return &Consumer{
		ring:     ring,
		sink:     s,
		opts:     opts,
		reporter: reporter,
		logger:   logger,
	}
}

// Start moves to buffering and launches the playback loop. It fails if the
// consumer is not stopped.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateStopped {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.state = StateBuffering
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go func() {
		defer close(done)
		c.run(loopCtx)
	}()
	return nil
}

// Stop cancels the playback loop, kills the sink and lands on stopped. It is
// idempotent.
func (c *Consumer) Stop() {
	c.mu.Lock()
	if c.state == StateStopped {
		c.mu.Unlock()
		return
	}
	c.state = StateStopped
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	c.sink.Stop()
	c.logger.Info("Playback stopped")
}

// Pause suspends playback. Only valid from playing or buffering.
func (c *Consumer) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePlaying && c.state != StateBuffering {
		return fmt.Errorf("%w: cannot pause from %s", ErrInvalidTransition, c.state)
	}
	c.state = StatePaused
	c.logger.Info("Playback paused")
	return nil
}

// Resume returns from paused to buffering, forcing a fill check before any
// audible output.
func (c *Consumer) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePaused {
		return fmt.Errorf("%w: cannot resume from %s", ErrInvalidTransition, c.state)
	}
	c.state = StateBuffering
	c.logger.Info("Playback resumed")
	return nil
}

// State returns the current playback state.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsStopped reports whether playback is stopped. The ingester samples this to
// decide whether to discard incoming chunks.
func (c *Consumer) IsStopped() bool {
	return c.State() == StateStopped
}

// run supervises the sink process: spawn, play until the sink dies or a write
// fails, cool down, respawn. It exits only on ctx cancellation.
func (c *Consumer) run(ctx context.Context) {
	if c.opts.InitialBufferBytes > 0 {
		c.logger.WithField("bytes", c.opts.InitialBufferBytes).Info("Waiting for initial buffer")
		if err := c.ring.WaitForSize(ctx, c.opts.InitialBufferBytes); err != nil {
			return
		}
	}

	starts := 0
	for ctx.Err() == nil {
		if starts == 0 {
			c.reporter.Info("player_starting", nil)
		} else {
			c.reporter.Info("player_restarting", telemetry.Fields{"restarts": starts})
		}

		if err := c.sink.Start(); err != nil {
			c.reporter.Error("player_start_failed", err, nil)
			starts++
			sleep(ctx, c.opts.RestartCooldown)
			continue
		}
		starts++

		c.play(ctx)
		c.sink.Stop()

		if ctx.Err() == nil {
			sleep(ctx, c.opts.RestartCooldown)
		}
	}
}

// play runs pacing ticks until the sink needs a restart or ctx is cancelled.
func (c *Consumer) play(ctx context.Context) {
	anchor := time.Now()

	for ctx.Err() == nil {
		if c.State() == StatePaused {
			sleep(ctx, c.opts.PauseCheckInterval)
			continue
		}

		if !c.sink.Running() {
			c.reporter.Error("player_exited", nil, nil)
			return
		}

		if c.ring.Size() < c.opts.BytesPerChunk {
			c.toBuffering()
			sleep(ctx, c.opts.BufferBackoff)
			continue
		}

		if c.toPlaying() {
			anchor = time.Now()
		}

		chunk := c.ring.Consume(c.opts.BytesPerChunk)
		if err := c.sink.Write(chunk); err != nil {
			// A broken sink cannot be trusted to recover; restart it.
			c.reporter.Error("player_write_failed", err, nil)
			return
		}

		anchor = nextDeadline(anchor, time.Now(), c.opts.ChunkDuration)
		sleepUntil(ctx, anchor)
	}
}

// toBuffering drops from playing to buffering on an under-filled buffer.
func (c *Consumer) toBuffering() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StatePlaying {
		c.state = StateBuffering
		c.logger.Info("Buffer under-run, buffering")
	}
}

// toPlaying promotes buffering to playing. It reports whether the pacing
// anchor must be reset.
func (c *Consumer) toPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateBuffering {
		c.state = StatePlaying
		c.logger.Info("Buffer filled, playing")
		return true
	}
	return false
}

// nextDeadline schedules the next tick one chunk after the anchor, clamped to
// now so slow processing never accumulates drift.
func nextDeadline(anchor, now time.Time, chunkDuration time.Duration) time.Time {
	next := anchor.Add(chunkDuration)
	if next.Before(now) {
		return now
	}
	return next
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func sleepUntil(ctx context.Context, deadline time.Time) {
	d := time.Until(deadline)
	if d <= 0 {
		return
	}
	sleep(ctx, d)
}
