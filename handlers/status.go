// Package handlers provides the HTTP surface of the buffering daemon.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Schotsl/ClassicFM/internal/health"
	"github.com/sirupsen/logrus"
)

// StatusProvider samples the pipeline for the health endpoint.
type StatusProvider interface {
	Sample() health.Snapshot
}

// StatusHandler serves the read-only health endpoint.
type StatusHandler struct {
	monitor StatusProvider
	logger  *logrus.Logger
}

// NewStatusHandler creates a status handler instance.
func NewStatusHandler(monitor StatusProvider, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{
		monitor: monitor,
		logger:  logger,
	}
}

type statusResponse struct {
	Status      string       `json:"status"`
	Buffer      bufferStatus `json:"buffer"`
	Playback    string       `json:"playback"`
	NextRebuild string       `json:"next_rebuild"`
}

type bufferStatus struct {
	SizeMB     float64 `json:"size_mb"`
	TargetMB   float64 `json:"target_mb"`
	Percentage float64 `json:"percentage"`
	Minutes    float64 `json:"minutes"`
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := h.monitor.Sample()

	resp := statusResponse{
		Status: string(snap.Status),
		Buffer: bufferStatus{
			SizeMB:     float64(snap.Buffer.CurrentSize) / 1024 / 1024,
			TargetMB:   float64(snap.Buffer.TargetSize) / 1024 / 1024,
			Percentage: snap.Buffer.Percentage,
			Minutes:    snap.Buffer.EstimatedMinutes,
		},
		Playback:    snap.Playback.String(),
		NextRebuild: snap.NextRebuild.Format(time.RFC3339),
	}

	code := http.StatusOK
	if snap.Status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.WithError(err).Error("Failed to write status response")
	}
}
