// Package health aggregates the state of the pipeline into a status
// classification and raises an alert when a healthy buffer regresses.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/Schotsl/ClassicFM/internal/buffer"
	"github.com/Schotsl/ClassicFM/internal/playback"
	"github.com/Schotsl/ClassicFM/internal/telemetry"
	"github.com/sirupsen/logrus"
)

// Watermarks for the edge detector and status classification.
const (
	armThreshold      = 80.0
	alertThreshold    = 20.0
	degradedThreshold = 30.0
)

// Status classifies the overall pipeline health.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// PlaybackStater exposes the playback state to the monitor.
type PlaybackStater interface {
	State() playback.State
}

// RebuildInfo exposes the rebuild schedule to the monitor.
type RebuildInfo interface {
	NextTrigger(now time.Time) time.Time
}

// Snapshot is one sampled view of the pipeline.
type Snapshot struct {
	Status      Status
	Buffer      buffer.Health
	Playback    playback.State
	NextRebuild time.Time
}

// Monitor is a pure reader over the other components. It never mutates them;
// it only samples, classifies and reports.
type Monitor struct {
	ring     *buffer.Ring
	consumer PlaybackStater
	rebuild  RebuildInfo
	interval time.Duration
	reporter telemetry.Reporter
	logger   *logrus.Logger

	mu    sync.Mutex
	armed bool
}

// NewMonitor creates a health monitor sampling at the given interval.
func NewMonitor(ring *buffer.Ring, consumer PlaybackStater, rebuild RebuildInfo, interval time.Duration, reporter telemetry.Reporter, logger *logrus.Logger) *Monitor {
	return &Monitor{
		ring:     ring,
		consumer: consumer,
		rebuild:  rebuild,
		interval: interval,
		reporter: reporter,
		logger:   logger,
	}
}

// Sample reads the current state of the pipeline without side effects.
func (m *Monitor) Sample() Snapshot {
	h := m.ring.Health()
	return Snapshot{
		Status:      classify(h),
		Buffer:      h,
		Playback:    m.consumer.State(),
		NextRebuild: m.rebuild.NextTrigger(time.Now()),
	}
}

// Run periodically samples the pipeline and applies the threshold edge
// detector until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Health monitor shutting down")
			return
		case <-ticker.C:
			m.observe(m.ring.Health())
		}
	}
}

// observe runs the arm/alert edge detector on one health sample. The alert
// fires only after the buffer has been healthy, so a cold start never pages.
func (m *Monitor) observe(h buffer.Health) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.armed && h.Percentage >= armThreshold {
		m.armed = true
		m.reporter.Info("buffer_reached_healthy", telemetry.Fields{
			"percentage": h.Percentage,
		})
		return
	}

	if m.armed && h.Percentage < alertThreshold {
		m.armed = false
		m.reporter.Error("buffer_dropped_after_healthy", nil, telemetry.Fields{
			"percentage": h.Percentage,
			"minutes":    h.EstimatedMinutes,
		})
	}
}

func classify(h buffer.Health) Status {
	switch {
	case h.IsHealthy:
		return StatusHealthy
	case h.Percentage >= degradedThreshold:
		return StatusDegraded
	default:
		return StatusUnhealthy
	}
}
