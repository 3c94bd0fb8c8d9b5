package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pumpbot/internal/domain"
)

type memStore struct {
	records []domain.PositionRecord
	saves   int
	loadErr error
	saveErr error
}

func (m *memStore) Load(ctx context.Context) ([]domain.PositionRecord, error) {
	return m.records, m.loadErr
}

func (m *memStore) Save(ctx context.Context, records []domain.PositionRecord) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.records = records
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func position(mint string, opened time.Time) domain.Position {
	return domain.Position{
		ID:             mint,
		DisplayName:    "Token " + mint,
		Status:         domain.PositionStatusActive,
		EntryPrice:     0.01,
		HighWaterPrice: 0.01,
		OpenedAt:       opened,
	}
}

func TestUpsertGetReturnsCopies(t *testing.T) {
	l := New(nil, testLogger())
	l.Upsert(position("a", time.Now()))

	p, ok := l.Get("a")
	require.True(t, ok)
	p.HighWaterPrice = 99

	again, _ := l.Get("a")
	assert.Equal(t, 0.01, again.HighWaterPrice)

	_, ok = l.Get("missing")
	assert.False(t, ok)
}

func TestRemoveIsIdempotent(t *testing.T) {
	l := New(nil, testLogger())
	l.Upsert(position("a", time.Now()))
	l.Remove("a")
	l.Remove("a")
	l.Remove("never-there")
	_, ok := l.Get("a")
	assert.False(t, ok)
}

func TestActiveCountAndOrdering(t *testing.T) {
	l := New(nil, testLogger())
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	l.Upsert(position("c", base.Add(2*time.Minute)))
	l.Upsert(position("a", base.Add(time.Minute)))
	l.Upsert(position("b", base.Add(time.Minute)))

	closed := position("z", base)
	closed.Status = domain.PositionStatusClosed
	l.Upsert(closed)

	partial := position("p", base.Add(3*time.Minute))
	partial.Status = domain.PositionStatusPartiallySold
	l.Upsert(partial)

	assert.Equal(t, 4, l.ActiveCount())

	var ids []string
	for _, p := range l.AllActive() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"a", "b", "c", "p"}, ids)
	assert.Equal(t, ids, l.Mints())
	assert.Len(t, l.All(), 5)
	assert.Contains(t, l.Names(), "Token z")
}

func TestMarkProfitStageOnce(t *testing.T) {
	l := New(nil, testLogger())
	l.Upsert(position("a", time.Now()))

	assert.True(t, l.MarkProfitStage("a", domain.StageHalf))
	assert.False(t, l.MarkProfitStage("a", domain.StageHalf))
	assert.True(t, l.MarkProfitStage("a", domain.StageQuarter))
	assert.False(t, l.MarkProfitStage("a", domain.StageQuarter))
	assert.False(t, l.MarkProfitStage("missing", domain.StageHalf))

	p, _ := l.Get("a")
	assert.True(t, p.Stages.HalfTaken)
	assert.True(t, p.Stages.QuarterTaken)
}

func TestUpdateHighWaterMonotonic(t *testing.T) {
	l := New(nil, testLogger())
	l.Upsert(position("a", time.Now()))

	assert.True(t, l.UpdateHighWater("a", 0.02))
	assert.False(t, l.UpdateHighWater("a", 0.015))
	p, _ := l.Get("a")
	assert.Equal(t, 0.02, p.HighWaterPrice)

	l.SetStatus("a", domain.PositionStatusClosing)
	assert.False(t, l.UpdateHighWater("a", 0.05))
}

func TestSetStatusClosedStampsTime(t *testing.T) {
	l := New(nil, testLogger())
	l.Upsert(position("a", time.Now()))

	assert.True(t, l.SetStatus("a", domain.PositionStatusClosed))
	assert.False(t, l.SetStatus("a", domain.PositionStatusClosed))
	p, _ := l.Get("a")
	require.NotNil(t, p.ClosedAt)
	assert.Equal(t, 0, l.ActiveCount())
}

func TestObserveReservesIgnoresUnknown(t *testing.T) {
	l := New(nil, testLogger())
	l.Upsert(position("a", time.Now()))

	assert.False(t, l.ObserveReserves("a", domain.Reserves{}))
	assert.True(t, l.ObserveReserves("a", domain.Reserves{Sol: 30, Tokens: 1e9}))
	p, _ := l.Get("a")
	assert.Equal(t, 30.0, p.Reserves.Sol)
}

func TestLoadSaveRoundTrip(t *testing.T) {
	price := 0.0001
	hw := 0.0002
	store := &memStore{records: []domain.PositionRecord{
		{Name: "Alpha", Address: "mintA", Status: "active", Price: &price, BuyTime: "2025-02-01T10:00:00.000000"},
		{Name: "Beta", Address: "mintB", Status: "inactive", Price: &price, BuyTime: "2025-01-01T10:00:00Z"},
		{Name: "Gamma", Address: "mintC", Status: "active", Price: &price, BuyTime: "2025-03-01T10:00:00Z", HighWaterPrice: &hw, HalfTaken: true},
		{Name: "no address"},
	}}
	l := New(store, testLogger())
	require.NoError(t, l.Load(context.Background()))

	a, ok := l.Get("mintA")
	require.True(t, ok)
	assert.Equal(t, domain.PositionStatusActive, a.Status)
	assert.Equal(t, time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC), a.OpenedAt)

	b, _ := l.Get("mintB")
	assert.Equal(t, domain.PositionStatusClosed, b.Status)

	c, _ := l.Get("mintC")
	assert.Equal(t, domain.PositionStatusPartiallySold, c.Status)
	assert.Equal(t, 0.0002, c.HighWaterPrice)
	assert.Equal(t, 2, l.ActiveCount())

	want := append([]domain.PositionRecord(nil), store.records[:3]...)
	require.NoError(t, l.Save(context.Background()))
	assert.Equal(t, want, store.records)

	reloaded := New(store, testLogger())
	require.NoError(t, reloaded.Load(context.Background()))
	assert.Equal(t, l.All(), reloaded.All())
}

func TestSaveKeepsUntouchedRecordsVerbatim(t *testing.T) {
	price := 0.0001
	zero := 0.0
	store := &memStore{records: []domain.PositionRecord{
		{Name: "Late", Address: "mintL", Status: "active", Price: &price, BuyTime: "2025-03-01T10:00:00.500000"},
		{Name: "NoPrice", Address: "mintN", Status: "active", Price: nil, BuyTime: "2025-01-01T10:00:00"},
		{Name: "NoTime", Address: "mintT", Status: "inactive", Price: &price},
		{Name: "Zero", Address: "mintZ", Status: "active", Price: &zero, BuyTime: "2025-02-01 10:00:00"},
	}}
	want := append([]domain.PositionRecord(nil), store.records...)

	l := New(store, testLogger())
	require.NoError(t, l.Load(context.Background()))
	require.NoError(t, l.Save(context.Background()))
	assert.Equal(t, want, store.records)

	require.True(t, l.UpdateHighWater("mintL", 0.0003))
	require.True(t, l.ObserveReserves("mintN", domain.Reserves{Sol: 30, Tokens: 1e9}))
	require.True(t, l.SetStatus("mintZ", domain.PositionStatusClosed))
	l.Upsert(position("mintNew", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, l.Save(context.Background()))

	got := store.records
	require.Len(t, got, 5)
	assert.Equal(t, []string{"mintL", "mintN", "mintT", "mintZ", "mintNew"},
		[]string{got[0].Address, got[1].Address, got[2].Address, got[3].Address, got[4].Address})

	// Changed records keep their original buy_time text.
	assert.Equal(t, "2025-03-01T10:00:00.500000", got[0].BuyTime)
	require.NotNil(t, got[0].HighWaterPrice)
	assert.Equal(t, 0.0003, *got[0].HighWaterPrice)

	assert.Nil(t, got[1].Price)
	assert.Equal(t, "2025-01-01T10:00:00", got[1].BuyTime)
	assert.Equal(t, 30.0, got[1].SolReserves)
	assert.Equal(t, 1e9, got[1].TokenReserves)

	assert.Equal(t, want[2], got[2])

	require.NotNil(t, got[3].Price)
	assert.Zero(t, *got[3].Price)
	assert.Equal(t, "2025-02-01 10:00:00", got[3].BuyTime)
	assert.Equal(t, domain.RecordStatusInactive, got[3].Status)

	assert.Equal(t, "2024-01-01T00:00:00Z", got[4].BuyTime)
}

func TestToRecordWritesZeroPrice(t *testing.T) {
	p := position("a", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	p.EntryPrice = 0
	p.HighWaterPrice = 0
	rec := ToRecord(p)
	require.NotNil(t, rec.Price)
	assert.Zero(t, *rec.Price)
	assert.Nil(t, rec.HighWaterPrice)
	assert.Zero(t, rec.SolReserves)
}

func TestReservesSurviveRestart(t *testing.T) {
	store := &memStore{}
	l := New(store, testLogger())
	l.Upsert(position("a", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.True(t, l.ObserveReserves("a", domain.Reserves{Sol: 42, Tokens: 8e8}))
	require.NoError(t, l.Save(context.Background()))

	restored := New(store, testLogger())
	require.NoError(t, restored.Load(context.Background()))
	p, ok := restored.Get("a")
	require.True(t, ok)
	assert.Equal(t, domain.Reserves{Sol: 42, Tokens: 8e8}, p.Reserves)
}

func TestLoadSaveErrorsWrapped(t *testing.T) {
	boom := errors.New("boom")
	l := New(&memStore{loadErr: boom, saveErr: boom}, testLogger())
	assert.ErrorIs(t, l.Load(context.Background()), boom)
	assert.ErrorIs(t, l.Save(context.Background()), boom)

	nilStore := New(nil, testLogger())
	assert.NoError(t, nilStore.Load(context.Background()))
	assert.NoError(t, nilStore.Save(context.Background()))
}

func TestParseBuyTime(t *testing.T) {
	got, ok := ParseBuyTime("2025-01-02T03:04:05.123456")
	require.True(t, ok)
	assert.Equal(t, 123456000, got.Nanosecond())

	_, ok = ParseBuyTime("yesterday")
	assert.False(t, ok)
	_, ok = ParseBuyTime("")
	assert.False(t, ok)
}
