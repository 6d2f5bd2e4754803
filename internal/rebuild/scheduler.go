// Package rebuild performs the daily drain-and-refill maintenance cycle on
// the ring buffer.
package rebuild

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Schotsl/ClassicFM/internal/buffer"
	"github.com/Schotsl/ClassicFM/internal/ingest"
	"github.com/Schotsl/ClassicFM/internal/telemetry"
	"github.com/sirupsen/logrus"
)

// Controller is the slice of the playback consumer the scheduler drives.
type Controller interface {
	Pause() error
	Resume() error
}

// Options tunes the rebuild cycle.
type Options struct {
	// Hour is the local hour-of-day (0-23) of the daily rebuild.
	Hour int
	// ProbeTimeout bounds the pre-rebuild source reachability probe.
	ProbeTimeout time.Duration
	// RefillTimeout bounds the wait for the buffer to refill to target;
	// on expiry the rebuild proceeds with a partial buffer.
	RefillTimeout time.Duration
}

// Scheduler owns the daily rebuild trigger and the exclusive rebuild lock.
// At most one rebuild runs at a time; a trigger while one is in flight is a
// reported no-op.
type Scheduler struct {
	ring     *buffer.Ring
	source   ingest.Source
	consumer Controller
	opts     Options
	reporter telemetry.Reporter
	logger   *logrus.Logger

	running atomic.Bool

	mu     sync.Mutex
	runCtx context.Context
}

// NewScheduler creates a rebuild scheduler.
func NewScheduler(ring *buffer.Ring, source ingest.Source, consumer Controller, opts Options, reporter telemetry.Reporter, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		ring:     ring,
		source:   source,
		consumer: consumer,
		opts:     opts,
		reporter: reporter,
		logger:   logger,
	}
}

// NextTrigger returns the next occurrence of the configured hour: today if
// still ahead, otherwise tomorrow.
func (s *Scheduler) NextTrigger(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.opts.Hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Run executes the scheduling loop until ctx is cancelled: compute the next
// trigger, sleep until it, rebuild, repeat.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	for ctx.Err() == nil {
		next := s.NextTrigger(time.Now())
		s.logger.WithField("at", next.Format(time.RFC3339)).Info("Next buffer rebuild scheduled")

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}

		s.RebuildNow(ctx)
	}
}

// RebuildNow runs a rebuild synchronously. It returns false without doing
// anything when another rebuild is already in flight.
func (s *Scheduler) RebuildNow(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.reporter.Warn("rebuild_already_running", nil)
		return false
	}
	defer s.running.Store(false)

	s.rebuild(ctx)
	return true
}

// Trigger starts a rebuild in the background, for the manual HTTP trigger.
// It returns false when one is already in flight.
func (s *Scheduler) Trigger() bool {
	if !s.running.CompareAndSwap(false, true) {
		s.reporter.Warn("rebuild_already_running", nil)
		return false
	}

	ctx := s.triggerContext()
	go func() {
		defer s.running.Store(false)
		s.rebuild(ctx)
	}()
	return true
}

// Running reports whether a rebuild is in flight.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

func (s *Scheduler) triggerContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx != nil {
		return s.runCtx
	}
	return context.Background()
}

// rebuild executes one pause, drain, refill, resume cycle. The caller holds
// the rebuild lock.
func (s *Scheduler) rebuild(ctx context.Context) {
	s.logger.Info("Starting buffer rebuild")

	// Never clear a healthy buffer when the source is unreachable.
	if err := s.probe(ctx); err != nil {
		s.reporter.Error("rebuild_skipped_source_unreachable", err, nil)
		return
	}

	if err := s.consumer.Pause(); err != nil {
		s.reporter.Warn("rebuild_skipped", telemetry.Fields{"reason": err.Error()})
		return
	}
	defer func() {
		if err := s.consumer.Resume(); err != nil {
			s.logger.WithError(err).Warn("Failed to resume playback after rebuild")
		}
	}()

	s.ring.Clear()

	target := s.ring.Capacity()
	refillCtx, cancel := context.WithTimeout(ctx, s.opts.RefillTimeout)
	defer cancel()

	if err := s.ring.WaitForSize(refillCtx, target); err != nil {
		// Continuity beats completeness: resume with what we have.
		s.reporter.Warn("rebuild_refill_timeout", telemetry.Fields{
			"buffered": s.ring.Size(),
			"target":   target,
		})
	} else {
		s.logger.WithField("bytes", target).Info("Buffer rebuild completed")
	}
}

// probe checks that the source is reachable and producing data by requiring
// one chunk within the probe timeout.
func (s *Scheduler) probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, s.opts.ProbeTimeout)
	defer cancel()

	reader, err := s.source.Connect(probeCtx)
	if err != nil {
		return err
	}
	defer func() {
		_ = reader.Close()
	}()

	_, err = reader.Next()
	return err
}
