package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/pumpbot/internal/domain"
)

// DecisionSource exposes the strategy engine's recent decisions.
type DecisionSource interface {
	RecentDecisions(limit int) []domain.Decision
}

// DecisionHandler serves the recent decision log.
type DecisionHandler struct {
	source DecisionSource
}

// NewDecisionHandler creates a DecisionHandler.
func NewDecisionHandler(source DecisionSource) *DecisionHandler {
	return &DecisionHandler{source: source}
}

type decisionView struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Mint      string    `json:"mint"`
	Name      string    `json:"name,omitempty"`
	Fraction  float64   `json:"fraction"`
	Trigger   string    `json:"trigger"`
	Price     float64   `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

// ListDecisions returns the latest buy and sell decisions, newest first.
// GET /api/decisions?limit=20
func (h *DecisionHandler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	decisions := h.source.RecentDecisions(parseLimit(r, 20, 200))
	out := make([]decisionView, 0, len(decisions))
	for _, d := range decisions {
		out = append(out, decisionView{
			ID:        d.ID,
			Action:    string(d.Action),
			Mint:      d.Mint,
			Name:      d.Name,
			Fraction:  d.Fraction,
			Trigger:   string(d.Trigger),
			Price:     d.Price,
			CreatedAt: d.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"decisions": out})
}
