// Package strategy turns feed events into trade decisions. It reads and
// updates the position ledger but never talks to an execution backend.
package strategy

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/pumpbot/internal/config"
	"github.com/alanyoungcy/pumpbot/internal/domain"
)

// Profit ladder rungs, as multiples of the entry price, and the fraction of
// the holding each one sells.
const (
	HalfMultiple     = 1.25
	QuarterMultiple  = 1.5625
	HalfFraction     = 0.5
	QuarterFraction  = 0.25
	recentDecisionsN = 200
)

// Positions is the subset of the ledger the engine works against.
type Positions interface {
	Get(mint string) (domain.Position, bool)
	Upsert(p domain.Position)
	ActiveCount() int
	AllActive() []domain.Position
	Names() []string
	MarkProfitStage(mint string, stage domain.ProfitStage) bool
	UpdateHighWater(mint string, price float64) bool
	AdoptEntryPrice(mint string, price float64) bool
	SetStatus(mint string, status domain.PositionStatus) bool
	ObserveReserves(mint string, r domain.Reserves) bool
}

// Config carries the strategy thresholds. TrailingStop is a fraction.
type Config struct {
	MaxTracked          int
	SimilarityThreshold float64
	TrailingStop        float64
	MaxHold             time.Duration
}

// ConfigFrom converts the trading section of the application config.
func ConfigFrom(t config.TradingConfig) Config {
	return Config{
		MaxTracked:          t.MaxTracked,
		SimilarityThreshold: t.SimilarityThreshold,
		TrailingStop:        t.TrailingStop(),
		MaxHold:             t.MaxHold.Duration,
	}
}

// Engine is the per-position state machine. Callers must serialise OnEvent,
// Expire and Apply; the orchestrator does this by running a single loop.
type Engine struct {
	positions Positions
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	recent []domain.Decision
}

// New creates an Engine over positions.
func New(positions Positions, cfg Config, logger *slog.Logger) *Engine {
	return &Engine{
		positions: positions,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "strategy_engine")),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// OnEvent evaluates a single feed event and returns the resulting decision.
// A None decision carries the reason nothing was done.
func (e *Engine) OnEvent(ctx context.Context, ev domain.TradeEvent) domain.Decision {
	var d domain.Decision
	switch ev.Kind {
	case domain.EventCreate:
		d = e.onCreate(ctx, ev)
	case domain.EventBuy:
		d = e.onBuy(ctx, ev)
	case domain.EventSell:
		d = e.onSell(ctx, ev)
	default:
		d = none(ev.Mint, domain.ReasonNotTracked)
	}
	if !d.IsNone() {
		e.remember(d)
	}
	return d
}

func (e *Engine) onCreate(ctx context.Context, ev domain.TradeEvent) domain.Decision {
	if p, ok := e.positions.Get(ev.Mint); ok && p.Status != domain.PositionStatusClosed {
		return none(ev.Mint, domain.ReasonDuplicate)
	}
	if n := e.positions.ActiveCount(); n >= e.cfg.MaxTracked {
		e.logger.DebugContext(ctx, "capacity reached, ignoring token",
			slog.String("mint", ev.Mint),
			slog.Int("tracked", n),
		)
		return none(ev.Mint, domain.ReasonCapacity)
	}
	if match, ratio := MostSimilar(ev.Name, e.positions.Names()); ratio >= e.cfg.SimilarityThreshold {
		e.logger.InfoContext(ctx, "similar name already traded",
			slog.String("mint", ev.Mint),
			slog.String("name", ev.Name),
			slog.String("match", match),
			slog.Float64("ratio", ratio),
		)
		return none(ev.Mint, domain.ReasonSimilarName)
	}
	price, ok := ev.Price()
	if !ok {
		return none(ev.Mint, domain.ReasonNoPrice)
	}
	return domain.Decision{
		ID:        uuid.NewString(),
		Action:    domain.ActionBuy,
		Mint:      ev.Mint,
		Name:      ev.Name,
		Symbol:    ev.Symbol,
		Fraction:  1,
		Trigger:   domain.TriggerNewToken,
		Price:     price,
		Reserves:  ev.Reserves(),
		CreatedAt: e.now(),
	}
}

func (e *Engine) onBuy(ctx context.Context, ev domain.TradeEvent) domain.Decision {
	p, ok := e.positions.Get(ev.Mint)
	if !ok || !p.Status.Tracked() {
		return none(ev.Mint, domain.ReasonNotTracked)
	}
	e.positions.ObserveReserves(ev.Mint, ev.Reserves())
	if price, ok := ev.Price(); ok && !e.adoptEntry(ctx, p, price) {
		e.positions.UpdateHighWater(ev.Mint, price)
	}
	return none(ev.Mint, domain.ReasonHold)
}

func (e *Engine) onSell(ctx context.Context, ev domain.TradeEvent) domain.Decision {
	p, ok := e.positions.Get(ev.Mint)
	if !ok || !p.Status.Tracked() {
		return none(ev.Mint, domain.ReasonNotTracked)
	}
	e.positions.ObserveReserves(ev.Mint, ev.Reserves())
	// Refresh so the decision carries the reserves just observed.
	p, _ = e.positions.Get(ev.Mint)

	price, ok := ev.Price()
	if !ok {
		return none(ev.Mint, domain.ReasonNoPrice)
	}
	if e.adoptEntry(ctx, p, price) {
		return none(ev.Mint, domain.ReasonHold)
	}

	if price <= p.HighWaterPrice*(1-e.cfg.TrailingStop) {
		e.logger.InfoContext(ctx, "trailing stop hit",
			slog.String("mint", ev.Mint),
			slog.Float64("price", price),
			slog.Float64("high_water", p.HighWaterPrice),
		)
		return e.closeOut(p, price, domain.TriggerTrailingStop)
	}
	if price >= p.EntryPrice*HalfMultiple && !p.Stages.HalfTaken {
		e.positions.MarkProfitStage(ev.Mint, domain.StageHalf)
		return e.sell(p, price, HalfFraction, domain.TriggerProfitHalf)
	}
	if price >= p.EntryPrice*QuarterMultiple && !p.Stages.QuarterTaken {
		e.positions.MarkProfitStage(ev.Mint, domain.StageQuarter)
		return e.sell(p, price, QuarterFraction, domain.TriggerProfitQuarter)
	}

	e.positions.UpdateHighWater(ev.Mint, price)
	return none(ev.Mint, domain.ReasonHold)
}

// adoptEntry takes price as the entry of a position restored without one.
// It reports whether the event was consumed that way.
func (e *Engine) adoptEntry(ctx context.Context, p domain.Position, price float64) bool {
	if p.EntryPrice != 0 || !e.positions.AdoptEntryPrice(p.ID, price) {
		return false
	}
	e.logger.InfoContext(ctx, "entry price adopted",
		slog.String("mint", p.ID),
		slog.Float64("price", price),
	)
	return true
}

// Expire returns a full sell for every tracked position held for at least
// MaxHold, oldest first. Each returned position is moved to closing.
func (e *Engine) Expire(ctx context.Context, now time.Time) []domain.Decision {
	if e.cfg.MaxHold <= 0 {
		return nil
	}
	var out []domain.Decision
	for _, p := range e.positions.AllActive() {
		if now.Sub(p.OpenedAt) < e.cfg.MaxHold {
			continue
		}
		e.logger.InfoContext(ctx, "position expired",
			slog.String("mint", p.ID),
			slog.Duration("held", now.Sub(p.OpenedAt)),
		)
		d := e.closeOut(p, 0, domain.TriggerExpiry)
		e.remember(d)
		out = append(out, d)
	}
	return out
}

// Apply folds an execution outcome back into the ledger.
func (e *Engine) Apply(ctx context.Context, d domain.Decision, o domain.Outcome) {
	switch {
	case d.Action == domain.ActionBuy:
		if !o.Confirmed() {
			return
		}
		opened := o.At
		if opened.IsZero() {
			opened = e.now()
		}
		e.positions.Upsert(domain.Position{
			ID:             d.Mint,
			DisplayName:    d.Name,
			Symbol:         d.Symbol,
			Status:         domain.PositionStatusActive,
			EntryPrice:     d.Price,
			HighWaterPrice: d.Price,
			OpenedAt:       opened,
			Reserves:       d.Reserves,
		})
		e.logger.InfoContext(ctx, "position opened",
			slog.String("mint", d.Mint),
			slog.Float64("entry_price", d.Price),
		)

	case d.FullSell():
		if o.Confirmed() {
			e.positions.SetStatus(d.Mint, domain.PositionStatusClosed)
			e.logger.InfoContext(ctx, "position closed",
				slog.String("mint", d.Mint),
				slog.String("trigger", string(d.Trigger)),
			)
			return
		}
		prior := d.Prior
		if !prior.Tracked() {
			prior = domain.PositionStatusActive
		}
		e.positions.SetStatus(d.Mint, prior)
		e.logger.WarnContext(ctx, "full sell not confirmed, position reopened",
			slog.String("mint", d.Mint),
			slog.String("status", string(o.Status)),
			slog.String("reason", string(o.Reason)),
		)

	case d.Action == domain.ActionSell:
		if !o.Confirmed() {
			return
		}
		if p, ok := e.positions.Get(d.Mint); ok && p.Status == domain.PositionStatusActive {
			e.positions.SetStatus(d.Mint, domain.PositionStatusPartiallySold)
		}
	}
}

// RecentDecisions returns up to limit of the latest non-None decisions,
// newest first.
func (e *Engine) RecentDecisions(limit int) []domain.Decision {
	if limit <= 0 {
		limit = 20
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.recent)
	if limit > n {
		limit = n
	}
	out := make([]domain.Decision, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, e.recent[i])
	}
	return out
}

func (e *Engine) closeOut(p domain.Position, price float64, trigger domain.Trigger) domain.Decision {
	d := e.sell(p, price, 1, trigger)
	d.Prior = p.Status
	e.positions.SetStatus(p.ID, domain.PositionStatusClosing)
	return d
}

func (e *Engine) sell(p domain.Position, price, fraction float64, trigger domain.Trigger) domain.Decision {
	return domain.Decision{
		ID:        uuid.NewString(),
		Action:    domain.ActionSell,
		Mint:      p.ID,
		Name:      p.DisplayName,
		Symbol:    p.Symbol,
		Fraction:  fraction,
		Trigger:   trigger,
		Price:     price,
		Reserves:  p.Reserves,
		CreatedAt: e.now(),
	}
}

func (e *Engine) remember(d domain.Decision) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recent = append(e.recent, d)
	if len(e.recent) > recentDecisionsN {
		e.recent = e.recent[len(e.recent)-recentDecisionsN:]
	}
}

func none(mint string, reason domain.Reason) domain.Decision {
	return domain.Decision{Action: domain.ActionNone, Mint: mint, Reason: reason}
}

// normalise lower-cases and trims a token name for comparison.
func normalise(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
