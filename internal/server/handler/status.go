package handler

import (
	"net/http"
	"time"
)

// Capacity reports how many positions count against the tracking limit.
type Capacity interface {
	ActiveCount() int
}

// StatusInfo is the static part of the status response.
type StatusInfo struct {
	Mode       string
	Backend    string
	MaxTracked int
	StartedAt  time.Time
}

// StatusHandler serves the runtime status for dashboards.
type StatusHandler struct {
	info     StatusInfo
	capacity Capacity
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(info StatusInfo, capacity Capacity) *StatusHandler {
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now().UTC()
	}
	return &StatusHandler{info: info, capacity: capacity}
}

// GetStatus responds with the mode, execution backend, capacity usage and
// uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	uptime := int64(time.Since(h.info.StartedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.info.Mode,
		"backend":        h.info.Backend,
		"tracked":        h.capacity.ActiveCount(),
		"max_tracked":    h.info.MaxTracked,
		"started_at":     h.info.StartedAt.Format(time.RFC3339),
		"uptime_seconds": uptime,
	})
}
