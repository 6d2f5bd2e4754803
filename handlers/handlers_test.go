package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Schotsl/ClassicFM/internal/buffer"
	"github.com/Schotsl/ClassicFM/internal/health"
	"github.com/Schotsl/ClassicFM/internal/playback"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMonitor struct {
	snap health.Snapshot
}

func (f *fakeMonitor) Sample() health.Snapshot { return f.snap }

type fakeTrigger struct {
	ok bool
}

func (f *fakeTrigger) Trigger() bool { return f.ok }

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func healthySnapshot() health.Snapshot {
	return health.Snapshot{
		Status: health.StatusHealthy,
		Buffer: buffer.Health{
			CurrentSize:      3_600_000,
			TargetSize:       3_600_000,
			Percentage:       100,
			EstimatedMinutes: 60,
			IsHealthy:        true,
		},
		Playback:    playback.StatePlaying,
		NextRebuild: time.Date(2026, 3, 11, 4, 0, 0, 0, time.UTC),
	}
}

func TestStatusHealthy(t *testing.T) {
	handler := NewStatusHandler(&fakeMonitor{snap: healthySnapshot()}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp statusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "playing", resp.Playback)
	assert.InDelta(t, 3.43, resp.Buffer.SizeMB, 0.01)
	assert.Equal(t, float64(100), resp.Buffer.Percentage)
	assert.Equal(t, "2026-03-11T04:00:00Z", resp.NextRebuild)
}

func TestStatusDegradedStill200(t *testing.T) {
	snap := healthySnapshot()
	snap.Status = health.StatusDegraded
	handler := NewStatusHandler(&fakeMonitor{snap: snap}, testLogger())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStatusUnhealthy503(t *testing.T) {
	snap := healthySnapshot()
	snap.Status = health.StatusUnhealthy
	handler := NewStatusHandler(&fakeMonitor{snap: snap}, testLogger())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStatusRejectsPost(t *testing.T) {
	handler := NewStatusHandler(&fakeMonitor{snap: healthySnapshot()}, testLogger())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/health", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRebuildStarted(t *testing.T) {
	handler := NewRebuildHandler(&fakeTrigger{ok: true}, testLogger())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/rebuild", nil))

	require.Equal(t, http.StatusAccepted, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "started", resp["status"])
}

func TestRebuildAlreadyRunning(t *testing.T) {
	handler := NewRebuildHandler(&fakeTrigger{ok: false}, testLogger())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/rebuild", nil))

	require.Equal(t, http.StatusConflict, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "already running", resp["status"])
}

func TestRebuildRejectsGet(t *testing.T) {
	handler := NewRebuildHandler(&fakeTrigger{ok: true}, testLogger())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rebuild", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
