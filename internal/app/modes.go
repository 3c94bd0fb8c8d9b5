package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/pumpbot/internal/cache/redis"
	"github.com/alanyoungcy/pumpbot/internal/domain"
	"github.com/alanyoungcy/pumpbot/internal/executor"
	"github.com/alanyoungcy/pumpbot/internal/feed"
	"github.com/alanyoungcy/pumpbot/internal/ledger"
	"github.com/alanyoungcy/pumpbot/internal/pricing"
	"github.com/alanyoungcy/pumpbot/internal/server"
	"github.com/alanyoungcy/pumpbot/internal/server/handler"
	"github.com/alanyoungcy/pumpbot/internal/server/middleware"
	"github.com/alanyoungcy/pumpbot/internal/server/ws"
	"github.com/alanyoungcy/pumpbot/internal/strategy"
)

// shutdownTimeout bounds the final journal flush and ledger save.
const shutdownTimeout = 10 * time.Second

// TradeMode runs the feed, the trader loop and the optional HTTP server and
// journal until ctx is cancelled. Paper mode uses the same loop with the
// simulated engine.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade loop",
		slog.String("mode", a.cfg.Mode),
		slog.String("backend", deps.Engine.Name()),
	)

	book, err := deps.Ledger(ctx, a.base)
	if err != nil {
		return err
	}
	if deps.Paper != nil {
		seedPaper(deps.Paper, book.AllActive(), a.cfg.Trading.BuyAmountSOL)
	}

	strat := strategy.New(book, strategy.ConfigFrom(a.cfg.Trading), a.base)
	runner := feed.NewRunner(a.cfg.Feed.WsURL, a.cfg.Feed.ReconnectDelay.Duration, book.Mints, a.base)
	runner.SetObserver(deps.Metrics)

	trader := a.newTrader(deps, strat, book, runner)

	var hub *ws.Hub
	if a.cfg.Server.Enabled {
		hub = a.newHub(deps, book)
		if deps.EventBus == nil {
			trader.WithOutcomeSink(hub)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runner.Run(gctx)
	})
	g.Go(func() error {
		return trader.Run(gctx, runner.Events())
	})
	if deps.Journal != nil {
		g.Go(func() error {
			return deps.Journal.Run(gctx)
		})
	}
	if hub != nil {
		g.Go(func() error {
			return hub.Run(gctx)
		})
		srv := a.newServer(deps, book, strat, hub)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	a.announce(ctx, deps, book)
	err = g.Wait()

	// Outcomes recorded while the group wound down still need to land.
	shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if deps.Journal != nil {
		if ferr := deps.Journal.Flush(shutCtx); ferr != nil {
			a.logger.ErrorContext(shutCtx, "journal flush on shutdown failed", slog.String("error", ferr.Error()))
		}
	}
	if serr := book.Save(shutCtx); serr != nil {
		a.logger.ErrorContext(shutCtx, "ledger save on shutdown failed", slog.String("error", serr.Error()))
	}
	return err
}

func (a *App) newTrader(deps *Dependencies, strat *strategy.Engine, book *ledger.Ledger, runner *feed.Runner) *Trader {
	interval := time.Duration(0)
	if a.cfg.Trading.MaxHold.Duration > 0 {
		interval = a.cfg.Trading.ExpiryCheckInterval.Duration
	}
	cleanup := a.cfg.Trading.DedupTTL.Duration / 2
	if cleanup <= 0 || cleanup > time.Minute {
		cleanup = time.Minute
	}

	t := NewTrader(TraderConfig{
		ExpiryInterval: interval,
		DedupCleanup:   cleanup,
		LockTTL:        a.cfg.Execution.LockTTL.Duration,
	}, strat, book, deps.Engine, a.base).
		WithSubscriptions(runner).
		WithDedup(executor.NewDedup(a.cfg.Trading.DedupTTL.Duration)).
		WithMetrics(deps.Metrics).
		WithNotifier(deps.Notifier)

	if deps.LockManager != nil {
		t.WithLocks(deps.LockManager)
	}
	if deps.EventBus != nil {
		t.WithPublisher(deps.EventBus)
	}
	if deps.Journal != nil {
		t.WithTradeSink(deps.Journal)
	}
	if deps.TradeStore != nil {
		t.WithTradeSink(deps.TradeStore)
	}
	return t
}

func (a *App) newHub(deps *Dependencies, book *ledger.Ledger) *ws.Hub {
	var sub ws.Subscriber
	if deps.EventBus != nil {
		sub = deps.EventBus
	}
	return ws.NewHub(sub, redis.OutcomeChannel, book.AllActive, a.base)
}

func (a *App) newServer(deps *Dependencies, book *ledger.Ledger, strat *strategy.Engine, hub *ws.Hub) *server.Server {
	var history handler.TradeHistory
	if deps.TradeStore != nil {
		history = deps.TradeStore
	}
	var stream handler.StreamReader
	var limiter middleware.Limiter
	if deps.EventBus != nil {
		stream = deps.EventBus
	}
	if deps.RateLimiter != nil {
		limiter = deps.RateLimiter
	}

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(deps.Checks, a.base),
		Status: handler.NewStatusHandler(handler.StatusInfo{
			Mode:       a.cfg.Mode,
			Backend:    deps.Engine.Name(),
			MaxTracked: a.cfg.Trading.MaxTracked,
			StartedAt:  a.startedAt,
		}, book),
		Positions: handler.NewPositionHandler(book, a.base),
		Decisions: handler.NewDecisionHandler(strat),
		Trades:    handler.NewTradeHandler(history, stream, redis.TradeStream, a.base),
		Metrics:   deps.Metrics.Handler(),
	}
	return server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}, handlers, hub, limiter, a.base)
}

// announce sends the startup notification.
func (a *App) announce(ctx context.Context, deps *Dependencies, book *ledger.Ledger) {
	if !deps.Notifier.Enabled() {
		return
	}
	names := make([]string, 0, book.ActiveCount())
	for _, p := range book.AllActive() {
		names = append(names, p.DisplayName)
	}
	msg := fmt.Sprintf("Mode: %s\nBackend: %s\nBuy: %.4f SOL\nTracked: %d", a.cfg.Mode, deps.Engine.Name(), a.cfg.Trading.BuyAmountSOL, len(names))
	if len(names) > 0 {
		msg += " (" + strings.Join(names, ", ") + ")"
	}
	if err := deps.Notifier.NotifyAll(ctx, "pumpbot started", msg); err != nil {
		a.logger.WarnContext(ctx, "startup notification failed", slog.String("error", err.Error()))
	}
}

// seedPaper credits the simulated engine with the tokens a restored position
// would hold had it been bought at its entry price.
func seedPaper(paper *executor.PaperEngine, positions []domain.Position, buySOL float64) {
	for _, p := range positions {
		if units := paperUnits(buySOL, p.EntryPrice); units > 0 {
			paper.Seed(p.ID, units)
		}
	}
}

// paperUnits converts a SOL spend at price (SOL per whole token) into token
// base units.
func paperUnits(buySOL, price float64) uint64 {
	if buySOL <= 0 || price <= 0 {
		return 0
	}
	tokens := decimal.NewFromFloat(buySOL).Div(decimal.NewFromFloat(price))
	return pricing.ToUint64(tokens.Mul(decimal.NewFromInt(pricing.TokenBaseUnits)).Floor())
}
