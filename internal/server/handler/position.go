package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/pumpbot/internal/domain"
)

// PositionLister is the read side of the position ledger.
type PositionLister interface {
	All() []domain.Position
	AllActive() []domain.Position
	Get(mint string) (domain.Position, bool)
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	positions PositionLister
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler over the ledger.
func NewPositionHandler(positions PositionLister, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logHandler(logger, "positions"),
	}
}

type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
	Count     int               `json:"count"`
}

// ListPositions returns every known position, oldest first. status=tracked
// limits the list to positions counting against capacity; any other status
// value filters on the exact lifecycle status.
// GET /api/positions?status=tracked
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	var positions []domain.Position
	switch status := r.URL.Query().Get("status"); status {
	case "":
		positions = h.positions.All()
	case "tracked":
		positions = h.positions.AllActive()
	case string(domain.PositionStatusActive), string(domain.PositionStatusPartiallySold),
		string(domain.PositionStatusClosing), string(domain.PositionStatusClosed):
		for _, p := range h.positions.All() {
			if string(p.Status) == status {
				positions = append(positions, p)
			}
		}
	default:
		writeError(w, http.StatusBadRequest, "unknown status "+status)
		return
	}

	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions, Count: len(positions)})
}

// GetPosition returns a single position by mint.
// GET /api/positions/{mint}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	mint := r.PathValue("mint")
	p, ok := h.positions.Get(mint)
	if !ok {
		writeError(w, http.StatusNotFound, "position not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}
