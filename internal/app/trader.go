package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/pumpbot/internal/cache/redis"
	"github.com/alanyoungcy/pumpbot/internal/domain"
	"github.com/alanyoungcy/pumpbot/internal/executor"
	"github.com/alanyoungcy/pumpbot/internal/notify"
)

// bookkeepingTimeout bounds the persistence and fan-out work after an
// execution. That work runs on a context detached from shutdown.
const bookkeepingTimeout = 10 * time.Second

// Strategy is the decision side of the loop.
type Strategy interface {
	OnEvent(ctx context.Context, ev domain.TradeEvent) domain.Decision
	Expire(ctx context.Context, now time.Time) []domain.Decision
	Apply(ctx context.Context, d domain.Decision, o domain.Outcome)
}

// Book is the part of the ledger the loop persists and counts.
type Book interface {
	Save(ctx context.Context) error
	ActiveCount() int
}

// Subscriptions adds and drops per-mint trade subscriptions on the feed.
type Subscriptions interface {
	Track(ctx context.Context, mint string) error
	Untrack(ctx context.Context, mint string) error
}

// Recorder receives metrics.
type Recorder interface {
	ObserveDecision(d domain.Decision)
	ObserveOutcome(o domain.Outcome, took time.Duration)
	SetTracked(n int)
}

// Publisher fans outcomes out to other processes.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// TradeSink stores confirmed trades. The S3 journal and the postgres trade
// table both implement it.
type TradeSink interface {
	Record(ctx context.Context, rec domain.TradeRecord) error
}

// OutcomeSink receives every outcome in process.
type OutcomeSink interface {
	Broadcast(o domain.Outcome)
}

// Notifier sends human-facing alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// TraderConfig holds the loop timings.
type TraderConfig struct {
	// ExpiryInterval is how often Strategy.Expire runs. Zero disables the
	// expiry tick.
	ExpiryInterval time.Duration
	// DedupCleanup is how often expired dedup entries are swept.
	DedupCleanup time.Duration
	LockTTL      time.Duration
}

// Trader is the orchestrator loop. It processes one event at a time, so at
// most one execution is in flight. Only Strategy, Book and Engine are
// required; every other collaborator is optional.
type Trader struct {
	cfg      TraderConfig
	strategy Strategy
	book     Book
	engine   executor.Engine
	logger   *slog.Logger

	subs     Subscriptions
	dedup    *executor.Dedup
	locks    domain.LockManager
	metrics  Recorder
	bus      Publisher
	sinks    []TradeSink
	outcomes []OutcomeSink
	notifier Notifier
}

// NewTrader creates a Trader. Optional collaborators are attached with the
// With* methods before Run.
func NewTrader(cfg TraderConfig, strategy Strategy, book Book, engine executor.Engine, logger *slog.Logger) *Trader {
	return &Trader{
		cfg:      cfg,
		strategy: strategy,
		book:     book,
		engine:   engine,
		logger:   logger.With(slog.String("component", "trader")),
	}
}

// WithSubscriptions sets the feed subscription manager.
func (t *Trader) WithSubscriptions(s Subscriptions) *Trader { t.subs = s; return t }

// WithDedup sets the buy dedup window.
func (t *Trader) WithDedup(d *executor.Dedup) *Trader { t.dedup = d; return t }

// WithLocks sets the distributed per-mint execution lock.
func (t *Trader) WithLocks(l domain.LockManager) *Trader { t.locks = l; return t }

// WithMetrics sets the metrics recorder.
func (t *Trader) WithMetrics(r Recorder) *Trader { t.metrics = r; return t }

// WithPublisher sets the event bus.
func (t *Trader) WithPublisher(p Publisher) *Trader { t.bus = p; return t }

// WithTradeSink adds a store for confirmed trades.
func (t *Trader) WithTradeSink(s TradeSink) *Trader { t.sinks = append(t.sinks, s); return t }

// WithOutcomeSink adds an in-process outcome listener.
func (t *Trader) WithOutcomeSink(s OutcomeSink) *Trader { t.outcomes = append(t.outcomes, s); return t }

// WithNotifier sets the notifier.
func (t *Trader) WithNotifier(n Notifier) *Trader { t.notifier = n; return t }

// Run consumes events until ctx is cancelled or the channel closes.
func (t *Trader) Run(ctx context.Context, events <-chan domain.TradeEvent) error {
	var expiry <-chan time.Time
	if t.cfg.ExpiryInterval > 0 {
		tk := time.NewTicker(t.cfg.ExpiryInterval)
		defer tk.Stop()
		expiry = tk.C
	}
	var sweep <-chan time.Time
	if t.dedup != nil && t.cfg.DedupCleanup > 0 {
		tk := time.NewTicker(t.cfg.DedupCleanup)
		defer tk.Stop()
		sweep = tk.C
	}

	if t.metrics != nil {
		t.metrics.SetTracked(t.book.ActiveCount())
	}
	t.logger.InfoContext(ctx, "trader started",
		slog.String("backend", t.engine.Name()),
		slog.Int("tracked", t.book.ActiveCount()),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			t.Handle(ctx, t.strategy.OnEvent(ctx, ev))
		case now := <-expiry:
			for _, d := range t.strategy.Expire(ctx, now.UTC()) {
				t.Handle(ctx, d)
			}
		case <-sweep:
			t.dedup.Cleanup()
		}
	}
}

// Handle executes a single decision and folds the outcome back. None
// decisions are only counted.
func (t *Trader) Handle(ctx context.Context, d domain.Decision) domain.Outcome {
	if t.metrics != nil {
		t.metrics.ObserveDecision(d)
	}
	if d.IsNone() {
		t.logger.DebugContext(ctx, "no action",
			slog.String("mint", d.Mint),
			slog.String("reason", string(d.Reason)),
		)
		return domain.Outcome{}
	}

	start := time.Now()
	o := t.execute(ctx, d)
	took := time.Since(start)
	o.Duration = took.Seconds()

	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()
	t.finish(bg, d, o, took)
	return o
}

func (t *Trader) execute(ctx context.Context, d domain.Decision) domain.Outcome {
	backend := t.engine.Name()
	if d.Action == domain.ActionBuy && t.dedup != nil && t.dedup.IsDuplicate(d.Mint) {
		return domain.Skip(d, backend, domain.ReasonDuplicate)
	}

	if t.locks != nil {
		unlock, err := t.locks.Acquire(ctx, redis.ExecutionKey(d.Mint), t.cfg.LockTTL)
		if err != nil {
			if !errors.Is(err, domain.ErrLockHeld) {
				t.logger.WarnContext(ctx, "execution lock unavailable",
					slog.String("mint", d.Mint),
					slog.String("error", err.Error()),
				)
			}
			o := domain.Skip(d, backend, domain.ReasonLockHeld)
			o.Detail = err.Error()
			t.forgetBuy(d)
			return o
		}
		defer unlock()
	}

	var o domain.Outcome
	switch d.Action {
	case domain.ActionBuy:
		o = t.engine.Buy(ctx, d)
	case domain.ActionSell:
		o = t.engine.Sell(ctx, d)
	default:
		o = domain.Fail(d, backend, domain.ReasonInvalidDecision, nil)
	}
	// A skipped buy never reached the chain, so a later create for the same
	// mint may try again.
	if o.Status == domain.OutcomeSkipped {
		t.forgetBuy(d)
	}
	return o
}

func (t *Trader) forgetBuy(d domain.Decision) {
	if d.Action == domain.ActionBuy && t.dedup != nil {
		t.dedup.Forget(d.Mint)
	}
}

func (t *Trader) finish(ctx context.Context, d domain.Decision, o domain.Outcome, took time.Duration) {
	t.logOutcome(ctx, d, o)

	t.strategy.Apply(ctx, d, o)
	if err := t.book.Save(ctx); err != nil {
		t.logger.ErrorContext(ctx, "ledger save failed",
			slog.String("mint", d.Mint),
			slog.String("error", err.Error()),
		)
	}

	if o.Confirmed() && t.subs != nil {
		switch {
		case d.Action == domain.ActionBuy:
			if err := t.subs.Track(ctx, d.Mint); err != nil {
				t.logger.WarnContext(ctx, "track failed, will resubscribe on reconnect",
					slog.String("mint", d.Mint),
					slog.String("error", err.Error()),
				)
			}
		case d.FullSell():
			if err := t.subs.Untrack(ctx, d.Mint); err != nil {
				t.logger.WarnContext(ctx, "untrack failed",
					slog.String("mint", d.Mint),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if t.metrics != nil {
		t.metrics.ObserveOutcome(o, took)
		t.metrics.SetTracked(t.book.ActiveCount())
	}

	t.publish(ctx, o)
	if o.Confirmed() {
		rec := tradeRecord(d, o)
		for _, s := range t.sinks {
			if err := s.Record(ctx, rec); err != nil {
				t.logger.ErrorContext(ctx, "trade record failed",
					slog.String("mint", d.Mint),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	for _, s := range t.outcomes {
		s.Broadcast(o)
	}

	if t.notifier != nil {
		event, title, msg := notify.Format(d, o)
		if err := t.notifier.Notify(ctx, event, title, msg); err != nil {
			t.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	}
}

func (t *Trader) publish(ctx context.Context, o domain.Outcome) {
	if t.bus == nil {
		return
	}
	payload, err := json.Marshal(o)
	if err != nil {
		t.logger.ErrorContext(ctx, "marshal outcome", slog.String("error", err.Error()))
		return
	}
	if err := t.bus.Publish(ctx, redis.OutcomeChannel, payload); err != nil {
		t.logger.WarnContext(ctx, "publish outcome failed", slog.String("error", err.Error()))
	}
	if !o.Confirmed() {
		return
	}
	if err := t.bus.StreamAppend(ctx, redis.TradeStream, payload); err != nil {
		t.logger.WarnContext(ctx, "stream append failed", slog.String("error", err.Error()))
	}
}

func (t *Trader) logOutcome(ctx context.Context, d domain.Decision, o domain.Outcome) {
	attrs := []any{
		slog.String("mint", d.Mint),
		slog.String("action", string(d.Action)),
		slog.String("trigger", string(d.Trigger)),
		slog.Float64("fraction", d.Fraction),
		slog.String("backend", o.Backend),
		slog.Float64("duration_seconds", o.Duration),
	}
	switch o.Status {
	case domain.OutcomeConfirmed:
		t.logger.InfoContext(ctx, "trade confirmed", append(attrs, slog.String("signature", o.Signature))...)
	case domain.OutcomeFailed:
		t.logger.WarnContext(ctx, "trade failed", append(attrs,
			slog.String("reason", string(o.Reason)),
			slog.String("detail", o.Detail),
		)...)
	default:
		t.logger.InfoContext(ctx, "trade skipped", append(attrs, slog.String("reason", string(o.Reason)))...)
	}
}

func tradeRecord(d domain.Decision, o domain.Outcome) domain.TradeRecord {
	return domain.TradeRecord{
		DecisionID:  d.ID,
		Mint:        d.Mint,
		Name:        d.Name,
		Action:      d.Action,
		Trigger:     d.Trigger,
		Fraction:    d.Fraction,
		Price:       d.Price,
		TokenAmount: o.TokenAmount,
		SolAmount:   o.SolAmount,
		Signature:   o.Signature,
		Backend:     o.Backend,
		At:          o.At,
	}
}
