package ledger

import (
	"strings"
	"time"

	"github.com/alanyoungcy/pumpbot/internal/domain"
)

// buyTimeLayout is written for new records. Parsing also accepts the naive
// isoformat output of earlier deployments.
const buyTimeLayout = "2006-01-02T15:04:05.999999Z07:00"

var buyTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
}

// ParseBuyTime parses a persisted buy_time. Values without a zone are UTC.
func ParseBuyTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range buyTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// FromRecord rebuilds a position from its persisted form.
func FromRecord(rec domain.PositionRecord) domain.Position {
	p := domain.Position{
		ID:          rec.Address,
		DisplayName: rec.Name,
		Symbol:      rec.Symbol,
		Stages: domain.ProfitStages{
			HalfTaken:    rec.HalfTaken,
			QuarterTaken: rec.QuarterTaken,
		},
		Reserves: domain.Reserves{Sol: rec.SolReserves, Tokens: rec.TokenReserves},
	}
	if rec.Price != nil {
		p.EntryPrice = *rec.Price
	}
	p.HighWaterPrice = p.EntryPrice
	if rec.HighWaterPrice != nil && *rec.HighWaterPrice > p.HighWaterPrice {
		p.HighWaterPrice = *rec.HighWaterPrice
	}

	if t, ok := ParseBuyTime(rec.BuyTime); ok {
		p.OpenedAt = t
	} else {
		p.OpenedAt = time.Now().UTC()
	}

	switch {
	case rec.Status == domain.RecordStatusInactive:
		p.Status = domain.PositionStatusClosed
	case p.Stages.Any():
		p.Status = domain.PositionStatusPartiallySold
	default:
		p.Status = domain.PositionStatusActive
	}
	return p
}

// ToRecord converts a position to its persisted form. The price is always
// written, zero included. Other optional fields are only written when they
// carry information beyond the base record.
func ToRecord(p domain.Position) domain.PositionRecord {
	rec := domain.PositionRecord{
		Name:         p.DisplayName,
		Address:      p.ID,
		Status:       domain.RecordStatusActive,
		Symbol:       p.Symbol,
		HalfTaken:    p.Stages.HalfTaken,
		QuarterTaken: p.Stages.QuarterTaken,
	}
	if p.Status == domain.PositionStatusClosed {
		rec.Status = domain.RecordStatusInactive
	}
	price := p.EntryPrice
	rec.Price = &price
	if p.HighWaterPrice > p.EntryPrice {
		hw := p.HighWaterPrice
		rec.HighWaterPrice = &hw
	}
	if !p.OpenedAt.IsZero() {
		rec.BuyTime = p.OpenedAt.UTC().Format(buyTimeLayout)
	}
	if p.Reserves.Known() {
		rec.SolReserves = p.Reserves.Sol
		rec.TokenReserves = p.Reserves.Tokens
	}
	return rec
}

// loadedRecord pairs a record read from the store with the position it
// produced, so an untouched position can be written back verbatim.
type loadedRecord struct {
	rec domain.PositionRecord
	pos domain.Position
}

// record returns the persisted form of p. An unchanged loaded position is
// its original record. A changed one keeps the original buy_time while
// OpenedAt is unchanged, and a null price while no entry price is known.
func (lr *loadedRecord) record(p domain.Position) domain.PositionRecord {
	if lr == nil {
		return ToRecord(p)
	}
	if p == lr.pos {
		return lr.rec
	}
	rec := ToRecord(p)
	if p.OpenedAt.Equal(lr.pos.OpenedAt) {
		rec.BuyTime = lr.rec.BuyTime
	}
	if lr.rec.Price == nil && p.EntryPrice == 0 {
		rec.Price = nil
	}
	return rec
}
