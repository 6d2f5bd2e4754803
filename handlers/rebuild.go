package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

// RebuildTrigger starts a rebuild if none is in flight.
type RebuildTrigger interface {
	Trigger() bool
}

// RebuildHandler exposes the manual rebuild trigger.
type RebuildHandler struct {
	scheduler RebuildTrigger
	logger    *logrus.Logger
}

// NewRebuildHandler creates a rebuild handler instance.
func NewRebuildHandler(scheduler RebuildTrigger, logger *logrus.Logger) *RebuildHandler {
	return &RebuildHandler{
		scheduler: scheduler,
		logger:    logger,
	}
}

func (h *RebuildHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if !h.scheduler.Trigger() {
		h.logger.Warn("Manual rebuild rejected, one is already running")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "already running"})
		return
	}

	h.logger.Info("Manual rebuild started")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "started"})
}
