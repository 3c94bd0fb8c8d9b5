// Package ledger owns the set of tracked positions. Every accessor returns
// copies, so callers can only change a position through the Ledger's API.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/pumpbot/internal/domain"
)

// Ledger is an in-memory map of positions keyed by mint with a single
// persistence hook. It is safe for concurrent use.
type Ledger struct {
	mu        sync.RWMutex
	positions map[string]domain.Position
	// order is the insertion ordinal of each mint, seeded from the store's
	// record order on Load. Save writes records in this order.
	order     map[string]int
	next      int
	loaded    map[string]*loadedRecord
	store     domain.PositionStore
	logger    *slog.Logger
}

// New creates an empty Ledger. store may be nil, in which case Load and Save
// are no-ops.
func New(store domain.PositionStore, logger *slog.Logger) *Ledger {
	return &Ledger{
		positions: make(map[string]domain.Position),
		order:     make(map[string]int),
		loaded:    make(map[string]*loadedRecord),
		store:     store,
		logger:    logger.With(slog.String("component", "ledger")),
	}
}

// Upsert inserts or replaces the position with the same ID.
func (l *Ledger) Upsert(p domain.Position) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.order[p.ID]; !ok {
		l.order[p.ID] = l.next
		l.next++
	}
	l.positions[p.ID] = p
}

// Get returns a copy of the position for mint.
func (l *Ledger) Get(mint string) (domain.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[mint]
	return p, ok
}

// Remove deletes the position for mint. Removing an absent mint is a no-op.
func (l *Ledger) Remove(mint string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.positions, mint)
	delete(l.order, mint)
	delete(l.loaded, mint)
}

// ActiveCount returns the number of Active or PartiallySold positions.
func (l *Ledger) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, p := range l.positions {
		if p.Status.Tracked() {
			n++
		}
	}
	return n
}

// AllActive returns Active and PartiallySold positions ordered by OpenedAt
// ascending. Ties are broken by mint so the order is deterministic.
func (l *Ledger) AllActive() []domain.Position {
	return l.filter(func(p domain.Position) bool { return p.Status.Tracked() })
}

// All returns every position, including closed history, ordered by OpenedAt.
func (l *Ledger) All() []domain.Position {
	return l.filter(func(domain.Position) bool { return true })
}

// Names returns the display names of every known position.
func (l *Ledger) Names() []string {
	all := l.All()
	names := make([]string, 0, len(all))
	for _, p := range all {
		if p.DisplayName != "" {
			names = append(names, p.DisplayName)
		}
	}
	return names
}

// Mints returns the IDs of Active and PartiallySold positions.
func (l *Ledger) Mints() []string {
	active := l.AllActive()
	out := make([]string, len(active))
	for i, p := range active {
		out[i] = p.ID
	}
	return out
}

// MarkProfitStage flips the given ladder flag. It returns false if the mint
// is unknown or the stage was already taken.
func (l *Ledger) MarkProfitStage(mint string, stage domain.ProfitStage) bool {
	return l.mutate(mint, func(p *domain.Position) bool {
		switch stage {
		case domain.StageHalf:
			if p.Stages.HalfTaken {
				return false
			}
			p.Stages.HalfTaken = true
		case domain.StageQuarter:
			if p.Stages.QuarterTaken {
				return false
			}
			p.Stages.QuarterTaken = true
		default:
			return false
		}
		return true
	})
}

// UpdateHighWater raises the high-water price of a tracked position. It
// returns true when the stored value changed.
func (l *Ledger) UpdateHighWater(mint string, price float64) bool {
	return l.mutate(mint, func(p *domain.Position) bool {
		if !p.Status.Tracked() || price <= p.HighWaterPrice {
			return false
		}
		p.HighWaterPrice = price
		return true
	})
}

// AdoptEntryPrice sets the entry and high-water price of a tracked position
// that has no entry price yet. It returns false once an entry is known.
func (l *Ledger) AdoptEntryPrice(mint string, price float64) bool {
	if price <= 0 {
		return false
	}
	return l.mutate(mint, func(p *domain.Position) bool {
		if !p.Status.Tracked() || p.EntryPrice != 0 {
			return false
		}
		p.EntryPrice = price
		p.HighWaterPrice = price
		return true
	})
}

// SetStatus changes the status of mint. Moving to closed stamps ClosedAt.
func (l *Ledger) SetStatus(mint string, status domain.PositionStatus) bool {
	return l.mutate(mint, func(p *domain.Position) bool {
		if p.Status == status {
			return false
		}
		p.Status = status
		if status == domain.PositionStatusClosed {
			now := time.Now().UTC()
			p.ClosedAt = &now
		}
		return true
	})
}

// ObserveReserves records the most recent bonding-curve snapshot for mint.
func (l *Ledger) ObserveReserves(mint string, r domain.Reserves) bool {
	if !r.Known() {
		return false
	}
	return l.mutate(mint, func(p *domain.Position) bool {
		p.Reserves = r
		return true
	})
}

// Load replaces the in-memory state with the store's records.
func (l *Ledger) Load(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	records, err := l.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("ledger: load: %w", err)
	}

	positions := make(map[string]domain.Position, len(records))
	order := make(map[string]int, len(records))
	loaded := make(map[string]*loadedRecord, len(records))
	for i, rec := range records {
		if rec.Address == "" {
			continue
		}
		p := FromRecord(rec)
		positions[rec.Address] = p
		order[rec.Address] = i
		loaded[rec.Address] = &loadedRecord{rec: rec, pos: p}
	}

	l.mu.Lock()
	l.positions = positions
	l.order = order
	l.loaded = loaded
	l.next = len(records)
	l.mu.Unlock()

	l.logger.InfoContext(ctx, "positions loaded",
		slog.Int("total", len(positions)),
		slog.Int("active", l.ActiveCount()),
	)
	return nil
}

// Save writes every position to the store in load order, followed by
// positions added since in the order they were added. Positions that have
// not changed since Load are written exactly as they were read.
func (l *Ledger) Save(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	if err := l.store.Save(ctx, l.records()); err != nil {
		return fmt.Errorf("ledger: save: %w", err)
	}
	return nil
}

func (l *Ledger) records() []domain.PositionRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.positions))
	for id := range l.positions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return l.order[ids[i]] < l.order[ids[j]] })

	records := make([]domain.PositionRecord, len(ids))
	for i, id := range ids {
		records[i] = l.loaded[id].record(l.positions[id])
	}
	return records
}

func (l *Ledger) mutate(mint string, fn func(p *domain.Position) bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[mint]
	if !ok {
		return false
	}
	if !fn(&p) {
		return false
	}
	l.positions[mint] = p
	return true
}

func (l *Ledger) filter(keep func(domain.Position) bool) []domain.Position {
	l.mu.RLock()
	out := make([]domain.Position, 0, len(l.positions))
	for _, p := range l.positions {
		if keep(p) {
			out = append(out, p)
		}
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}
