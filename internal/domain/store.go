package domain

import "context"

// PositionStore persists the full position list. Load must never fail on a
// missing or unreadable data source that simply has no data yet.
type PositionStore interface {
	Load(ctx context.Context) ([]PositionRecord, error)
	Save(ctx context.Context, records []PositionRecord) error
}
