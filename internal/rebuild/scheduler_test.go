package rebuild

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Schotsl/ClassicFM/internal/buffer"
	"github.com/Schotsl/ClassicFM/internal/ingest"
	"github.com/Schotsl/ClassicFM/internal/telemetry"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	chunk []byte
	err   error
}

func (f *fakeReader) Next() ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.chunk, nil
}

func (f *fakeReader) Close() error { return nil }

type fakeSource struct {
	connectErr error
	readErr    error
}

func (f *fakeSource) Connect(_ context.Context) (ingest.ChunkReader, error) {
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	return &fakeReader{chunk: []byte("probe"), err: f.readErr}, nil
}

type fakeController struct {
	mu      sync.Mutex
	pauses  int
	resumes int
}

func (f *fakeController) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauses++
	return nil
}

func (f *fakeController) Resume() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumes++
	return nil
}

func (f *fakeController) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pauses, f.resumes
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestScheduler(ring *buffer.Ring, source ingest.Source, ctrl Controller, refill time.Duration) *Scheduler {
	logger := testLogger()
	opts := Options{
		Hour:          4,
		ProbeTimeout:  100 * time.Millisecond,
		RefillTimeout: refill,
	}
	return NewScheduler(ring, source, ctrl, opts, telemetry.NewLogReporter(logger), logger)
}

func TestNextTrigger(t *testing.T) {
	ring := buffer.NewRing(16, 0)
	sched := newTestScheduler(ring, &fakeSource{}, &fakeController{}, time.Second)

	// Before the configured hour the trigger is today.
	now := time.Date(2026, 3, 10, 2, 30, 0, 0, time.UTC)
	next := sched.NextTrigger(now)
	assert.Equal(t, time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC), next)

	// At or past the configured hour it rolls over to tomorrow.
	now = time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC)
	next = sched.NextTrigger(now)
	assert.Equal(t, time.Date(2026, 3, 11, 4, 0, 0, 0, time.UTC), next)

	now = time.Date(2026, 3, 10, 17, 45, 0, 0, time.UTC)
	next = sched.NextTrigger(now)
	assert.Equal(t, time.Date(2026, 3, 11, 4, 0, 0, 0, time.UTC), next)
}

func TestRebuildClearsAndResumes(t *testing.T) {
	ring := buffer.NewRing(1024, 0)
	ring.Append(make([]byte, 500))
	ctrl := &fakeController{}
	sched := newTestScheduler(ring, &fakeSource{}, ctrl, 50*time.Millisecond)

	started := sched.RebuildNow(context.Background())
	require.True(t, started)

	pauses, resumes := ctrl.counts()
	assert.Equal(t, 1, pauses)
	assert.Equal(t, 1, resumes)
	// Refill timed out with nothing ingesting; the old content is gone.
	assert.Equal(t, 0, ring.Size())
	assert.False(t, sched.Running())
}

func TestRebuildSkippedWhenSourceUnreachable(t *testing.T) {
	ring := buffer.NewRing(1024, 0)
	ring.Append(make([]byte, 500))
	ctrl := &fakeController{}
	source := &fakeSource{connectErr: errors.New("unreachable")}
	sched := newTestScheduler(ring, source, ctrl, 50*time.Millisecond)

	started := sched.RebuildNow(context.Background())
	require.True(t, started)

	// The buffer must be left untouched and playback never paused.
	pauses, _ := ctrl.counts()
	assert.Equal(t, 0, pauses)
	assert.Equal(t, 500, ring.Size())
}

func TestRebuildSkippedWhenProbeReadFails(t *testing.T) {
	ring := buffer.NewRing(1024, 0)
	ring.Append(make([]byte, 500))
	ctrl := &fakeController{}
	source := &fakeSource{readErr: ingest.ErrReadTimeout}
	sched := newTestScheduler(ring, source, ctrl, 50*time.Millisecond)

	sched.RebuildNow(context.Background())

	pauses, _ := ctrl.counts()
	assert.Equal(t, 0, pauses)
	assert.Equal(t, 500, ring.Size())
}

func TestConcurrentRebuildsExcluded(t *testing.T) {
	ring := buffer.NewRing(1024, 0)
	ctrl := &fakeController{}
	// Long refill with no ingester keeps the first rebuild in flight.
	sched := newTestScheduler(ring, &fakeSource{}, ctrl, 500*time.Millisecond)

	results := make(chan bool, 3)
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- sched.RebuildNow(context.Background())
		}()
	}
	wg.Wait()
	close(results)

	started := 0
	for ok := range results {
		if ok {
			started++
		}
	}
	assert.Equal(t, 1, started, "exactly one concurrent rebuild may start")

	// After completion the lock is free again.
	assert.True(t, sched.RebuildNow(context.Background()))
}

func TestTriggerRejectsWhileRunning(t *testing.T) {
	ring := buffer.NewRing(1024, 0)
	ctrl := &fakeController{}
	sched := newTestScheduler(ring, &fakeSource{}, ctrl, 300*time.Millisecond)

	require.True(t, sched.Trigger())
	// The background rebuild holds the lock through its refill wait.
	time.Sleep(20 * time.Millisecond)
	assert.False(t, sched.Trigger())

	waitFor(t, func() bool { return !sched.Running() })
	assert.True(t, sched.Trigger())
	waitFor(t, func() bool { return !sched.Running() })
}

func TestRefillCompletesWhenTargetReached(t *testing.T) {
	ring := buffer.NewRing(100, 0)
	ctrl := &fakeController{}
	sched := newTestScheduler(ring, &fakeSource{}, ctrl, 2*time.Second)

	go func() {
		// Simulated ingester refilling the buffer during the rebuild.
		time.Sleep(30 * time.Millisecond)
		ring.Append(make([]byte, 100))
	}()

	start := time.Now()
	require.True(t, sched.RebuildNow(context.Background()))
	assert.Less(t, time.Since(start), time.Second, "rebuild should finish once target is reached")
	assert.Equal(t, 100, ring.Size())

	_, resumes := ctrl.counts()
	assert.Equal(t, 1, resumes)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("Condition not met before deadline")
}
