package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/pumpbot/internal/domain"
)

// TradeHistory lists persisted trades for a mint.
type TradeHistory interface {
	ListByMint(ctx context.Context, mint string, limit int) ([]domain.TradeRecord, error)
}

// StreamReader replays entries from a durable stream.
type StreamReader interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

// TradeHandler serves the trade history endpoints. Either source may be nil,
// in which case the matching endpoint answers 503.
type TradeHandler struct {
	history TradeHistory
	stream  StreamReader
	name    string
	logger  *slog.Logger
}

// NewTradeHandler creates a TradeHandler. streamName is the stream confirmed
// trades are appended to.
func NewTradeHandler(history TradeHistory, stream StreamReader, streamName string, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		history: history,
		stream:  stream,
		name:    streamName,
		logger:  logHandler(logger, "trades"),
	}
}

// ListByMint returns the newest trades for one mint.
// GET /api/trades/{mint}?limit=50
func (h *TradeHandler) ListByMint(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "trade history requires the postgres store")
		return
	}
	mint := r.PathValue("mint")
	trades, err := h.history.ListByMint(r.Context(), mint, parseLimit(r, 50, 500))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list trades failed",
			slog.String("mint", mint),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	if trades == nil {
		trades = []domain.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

type streamEntry struct {
	ID      string          `json:"id"`
	Outcome json.RawMessage `json:"outcome"`
}

// Recent replays confirmed trades from the event stream after the given ID.
// The response carries the last ID so callers can page forward.
// GET /api/trades?after=0&limit=100
func (h *TradeHandler) Recent(w http.ResponseWriter, r *http.Request) {
	if h.stream == nil {
		writeError(w, http.StatusServiceUnavailable, "trade stream requires redis")
		return
	}
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	msgs, err := h.stream.StreamRead(r.Context(), h.name, after, parseLimit(r, 100, 1000))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "stream read failed",
			slog.String("after", after),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read trade stream")
		return
	}

	entries := make([]streamEntry, 0, len(msgs))
	last := after
	for _, m := range msgs {
		if !json.Valid(m.Payload) {
			continue
		}
		entries = append(entries, streamEntry{ID: m.ID, Outcome: m.Payload})
		last = m.ID
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": entries, "last_id": last})
}
