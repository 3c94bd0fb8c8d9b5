package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pumpbot/internal/cache/redis"
	"github.com/alanyoungcy/pumpbot/internal/domain"
	"github.com/alanyoungcy/pumpbot/internal/executor"
	"github.com/alanyoungcy/pumpbot/internal/ledger"
	"github.com/alanyoungcy/pumpbot/internal/strategy"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeEngine struct {
	mu    sync.Mutex
	buys  []domain.Decision
	sells []domain.Decision
	buy   func(d domain.Decision) domain.Outcome
	sell  func(d domain.Decision) domain.Outcome
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Buy(_ context.Context, d domain.Decision) domain.Outcome {
	f.mu.Lock()
	f.buys = append(f.buys, d)
	f.mu.Unlock()
	if f.buy != nil {
		return f.buy(d)
	}
	return domain.Confirm(d, "fake", "sig-"+d.Mint)
}

func (f *fakeEngine) Sell(_ context.Context, d domain.Decision) domain.Outcome {
	f.mu.Lock()
	f.sells = append(f.sells, d)
	f.mu.Unlock()
	if f.sell != nil {
		return f.sell(d)
	}
	return domain.Confirm(d, "fake", "sig-"+d.Mint)
}

type fakeSubs struct {
	tracked   []string
	untracked []string
}

func (f *fakeSubs) Track(_ context.Context, mint string) error {
	f.tracked = append(f.tracked, mint)
	return nil
}

func (f *fakeSubs) Untrack(_ context.Context, mint string) error {
	f.untracked = append(f.untracked, mint)
	return nil
}

type fakeLocks struct {
	held     map[string]bool
	acquired []string
	released int
}

func (f *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if f.held[key] {
		return nil, fmt.Errorf("redis: acquire %s: %w", key, domain.ErrLockHeld)
	}
	f.acquired = append(f.acquired, key)
	return func() { f.released++ }, nil
}

type fakeBus struct {
	published map[string][][]byte
	streamed  map[string][][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{published: map[string][][]byte{}, streamed: map[string][][]byte{}}
}

func (f *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	f.published[channel] = append(f.published[channel], payload)
	return nil
}

func (f *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	f.streamed[stream] = append(f.streamed[stream], payload)
	return nil
}

type fakeSink struct{ records []domain.TradeRecord }

func (f *fakeSink) Record(_ context.Context, rec domain.TradeRecord) error {
	f.records = append(f.records, rec)
	return nil
}

type fakeOutcomes struct{ got []domain.Outcome }

func (f *fakeOutcomes) Broadcast(o domain.Outcome) { f.got = append(f.got, o) }

type fakeNotifier struct{ events []string }

func (f *fakeNotifier) Notify(_ context.Context, event, _, _ string) error {
	f.events = append(f.events, event)
	return nil
}

type memStore struct {
	saves   int
	records []domain.PositionRecord
}

func (m *memStore) Load(context.Context) ([]domain.PositionRecord, error) { return m.records, nil }

func (m *memStore) Save(_ context.Context, records []domain.PositionRecord) error {
	m.saves++
	m.records = records
	return nil
}

type harness struct {
	trader *Trader
	strat  *strategy.Engine
	book   *ledger.Ledger
	store  *memStore
	engine *fakeEngine
	subs   *fakeSubs
	bus    *fakeBus
	sink   *fakeSink
	outs   *fakeOutcomes
	notes  *fakeNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:  &memStore{},
		engine: &fakeEngine{},
		subs:   &fakeSubs{},
		bus:    newFakeBus(),
		sink:   &fakeSink{},
		outs:   &fakeOutcomes{},
		notes:  &fakeNotifier{},
	}
	h.book = ledger.New(h.store, testLogger())
	h.strat = strategy.New(h.book, strategy.Config{MaxTracked: 3, SimilarityThreshold: 0.6, TrailingStop: 0.3}, testLogger())
	h.trader = NewTrader(TraderConfig{LockTTL: time.Minute}, h.strat, h.book, h.engine, testLogger()).
		WithSubscriptions(h.subs).
		WithDedup(executor.NewDedup(time.Minute)).
		WithPublisher(h.bus).
		WithTradeSink(h.sink).
		WithOutcomeSink(h.outs).
		WithNotifier(h.notes)
	return h
}

func createEvent(mint, name string) domain.TradeEvent {
	return domain.TradeEvent{
		Kind:          domain.EventCreate,
		Mint:          mint,
		Name:          name,
		Symbol:        name,
		SolAmount:     1,
		TokenAmount:   1000,
		SolReserves:   31,
		TokenReserves: 1_000_000_000,
	}
}

func holding(mint string, entry float64) domain.Position {
	return domain.Position{
		ID:             mint,
		DisplayName:    mint,
		Status:         domain.PositionStatusActive,
		EntryPrice:     entry,
		HighWaterPrice: entry,
		OpenedAt:       time.Now().Add(-time.Minute),
	}
}

func TestConfirmedBuyOpensAndTracks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	o := h.trader.Handle(ctx, h.strat.OnEvent(ctx, createEvent("m1", "ALPHA")))
	require.Equal(t, domain.OutcomeConfirmed, o.Status)

	p, ok := h.book.Get("m1")
	require.True(t, ok)
	assert.Equal(t, domain.PositionStatusActive, p.Status)
	assert.Equal(t, 0.001, p.EntryPrice)
	assert.Equal(t, []string{"m1"}, h.subs.tracked)
	assert.Equal(t, 1, h.store.saves)

	assert.Len(t, h.bus.published[redis.OutcomeChannel], 1)
	require.Len(t, h.bus.streamed[redis.TradeStream], 1)
	var streamed domain.Outcome
	require.NoError(t, json.Unmarshal(h.bus.streamed[redis.TradeStream][0], &streamed))
	assert.Equal(t, "sig-m1", streamed.Signature)

	require.Len(t, h.sink.records, 1)
	assert.Equal(t, domain.ActionBuy, h.sink.records[0].Action)
	assert.Equal(t, "ALPHA", h.sink.records[0].Name)
	assert.Len(t, h.outs.got, 1)
	assert.Equal(t, []string{"buy_confirmed"}, h.notes.events)
}

func TestNoneDecisionIsNotExecuted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	o := h.trader.Handle(ctx, h.strat.OnEvent(ctx, sellEvent("unknown", 1, 100)))
	assert.Empty(t, o.Status)
	assert.Empty(t, h.engine.buys)
	assert.Empty(t, h.engine.sells)
	assert.Zero(t, h.store.saves)
}

func sellEvent(mint string, sol, tokens float64) domain.TradeEvent {
	return domain.TradeEvent{Kind: domain.EventSell, Mint: mint, SolAmount: sol, TokenAmount: tokens}
}

func TestFailedFullSellReverts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.book.Upsert(holding("m1", 0.01))
	h.engine.sell = func(d domain.Decision) domain.Outcome {
		return domain.Fail(d, "fake", domain.ReasonUnconfirmed, nil)
	}

	d := h.strat.OnEvent(ctx, sellEvent("m1", 0.5, 100))
	require.True(t, d.FullSell())
	p, _ := h.book.Get("m1")
	require.Equal(t, domain.PositionStatusClosing, p.Status)

	o := h.trader.Handle(ctx, d)
	assert.Equal(t, domain.OutcomeFailed, o.Status)

	p, _ = h.book.Get("m1")
	assert.Equal(t, domain.PositionStatusActive, p.Status)
	assert.Empty(t, h.subs.untracked)
	assert.Empty(t, h.sink.records)
	assert.Empty(t, h.bus.streamed[redis.TradeStream])
	assert.Len(t, h.bus.published[redis.OutcomeChannel], 1)
}

func TestConfirmedFullSellClosesAndUntracks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.book.Upsert(holding("m1", 0.01))

	o := h.trader.Handle(ctx, h.strat.OnEvent(ctx, sellEvent("m1", 0.5, 100)))
	require.Equal(t, domain.OutcomeConfirmed, o.Status)

	p, _ := h.book.Get("m1")
	assert.Equal(t, domain.PositionStatusClosed, p.Status)
	assert.Equal(t, []string{"m1"}, h.subs.untracked)
	require.Len(t, h.sink.records, 1)
	assert.Equal(t, domain.TriggerTrailingStop, h.sink.records[0].Trigger)
	assert.Equal(t, []string{"sell_confirmed"}, h.notes.events)
}

func TestPartialSellKeepsSubscription(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.book.Upsert(holding("m1", 0.01))

	// 0.02 per token is twice the entry price.
	o := h.trader.Handle(ctx, h.strat.OnEvent(ctx, sellEvent("m1", 2, 100)))
	require.Equal(t, domain.OutcomeConfirmed, o.Status)

	p, _ := h.book.Get("m1")
	assert.Equal(t, domain.PositionStatusPartiallySold, p.Status)
	assert.True(t, p.Stages.HalfTaken)
	assert.Empty(t, h.subs.untracked)
}

func TestLockHeldSkips(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	locks := &fakeLocks{held: map[string]bool{redis.ExecutionKey("m1"): true}}
	h.trader.WithLocks(locks)

	o := h.trader.Handle(ctx, h.strat.OnEvent(ctx, createEvent("m1", "ALPHA")))
	assert.Equal(t, domain.OutcomeSkipped, o.Status)
	assert.Equal(t, domain.ReasonLockHeld, o.Reason)
	assert.Contains(t, o.Detail, "lock already held")
	assert.Empty(t, h.engine.buys)
	_, ok := h.book.Get("m1")
	assert.False(t, ok)

	// The skip released the dedup entry, so the next attempt goes through.
	locks.held = nil
	o = h.trader.Handle(ctx, h.strat.OnEvent(ctx, createEvent("m1", "ALPHA")))
	assert.Equal(t, domain.OutcomeConfirmed, o.Status)
	assert.Equal(t, []string{redis.ExecutionKey("m1")}, locks.acquired)
	assert.Equal(t, 1, locks.released)
}

func TestDuplicateBuySkipped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.engine.buy = func(d domain.Decision) domain.Outcome {
		return domain.Fail(d, "fake", domain.ReasonUnconfirmed, nil)
	}

	first := h.trader.Handle(ctx, h.strat.OnEvent(ctx, createEvent("m1", "ALPHA")))
	require.Equal(t, domain.OutcomeFailed, first.Status)

	// The failed buy left no position, so the strategy buys again and the
	// dedup window catches it.
	second := h.trader.Handle(ctx, h.strat.OnEvent(ctx, createEvent("m1", "ALPHA")))
	assert.Equal(t, domain.OutcomeSkipped, second.Status)
	assert.Equal(t, domain.ReasonDuplicate, second.Reason)
	assert.Len(t, h.engine.buys, 1)
}

func TestSkippedBuyForgetsDedup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	calls := 0
	h.engine.buy = func(d domain.Decision) domain.Outcome {
		calls++
		if calls == 1 {
			return domain.Skip(d, "fake", domain.ReasonAccountSetup)
		}
		return domain.Confirm(d, "fake", "sig")
	}

	first := h.trader.Handle(ctx, h.strat.OnEvent(ctx, createEvent("m1", "ALPHA")))
	require.Equal(t, domain.OutcomeSkipped, first.Status)
	second := h.trader.Handle(ctx, h.strat.OnEvent(ctx, createEvent("m1", "ALPHA")))
	assert.Equal(t, domain.OutcomeConfirmed, second.Status)
	assert.Len(t, h.engine.buys, 2)
}

func TestRunProcessesEventsUntilClosed(t *testing.T) {
	h := newHarness(t)
	events := make(chan domain.TradeEvent, 2)
	events <- createEvent("m1", "ALPHA")
	events <- sellEvent("m1", 0.0001, 1)
	close(events)

	require.NoError(t, h.trader.Run(context.Background(), events))
	assert.Len(t, h.engine.buys, 1)
	require.Len(t, h.engine.sells, 1)
	p, _ := h.book.Get("m1")
	assert.Equal(t, domain.PositionStatusClosed, p.Status)
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.trader.Run(ctx, make(chan domain.TradeEvent))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPaperUnits(t *testing.T) {
	assert.Equal(t, uint64(500_000_000), paperUnits(0.5, 0.001))
	assert.Equal(t, uint64(333_333_333_333), paperUnits(0.01, 0.00000003))
	assert.Zero(t, paperUnits(0, 0.001))
	assert.Zero(t, paperUnits(0.5, 0))
}
