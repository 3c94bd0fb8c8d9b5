package domain

import "time"

// PositionStatus tracks where a position is in its lifecycle.
type PositionStatus string

const (
	PositionStatusActive        PositionStatus = "active"
	PositionStatusPartiallySold PositionStatus = "partially_sold"
	PositionStatusClosing       PositionStatus = "closing"
	PositionStatusClosed        PositionStatus = "closed"
)

// Tracked reports whether the position counts against the tracking capacity
// and is eligible for strategy evaluation.
func (s PositionStatus) Tracked() bool {
	return s == PositionStatusActive || s == PositionStatusPartiallySold
}

// ProfitStage identifies one rung of the profit ladder.
type ProfitStage string

const (
	StageHalf    ProfitStage = "half"
	StageQuarter ProfitStage = "quarter"
)

// ProfitStages records which ladder rungs have been taken. Flags only ever
// flip from false to true.
type ProfitStages struct {
	HalfTaken    bool `json:"half_taken"`
	QuarterTaken bool `json:"quarter_taken"`
}

// Any reports whether at least one stage has been taken.
func (p ProfitStages) Any() bool {
	return p.HalfTaken || p.QuarterTaken
}

// Reserves is a bonding-curve reserve snapshot in display units (SOL and
// whole tokens) as reported by the feed.
type Reserves struct {
	Sol    float64 `json:"sol"`
	Tokens float64 `json:"tokens"`
}

// Known reports whether both sides of the snapshot are positive.
func (r Reserves) Known() bool {
	return r.Sol > 0 && r.Tokens > 0
}

// Position is one tracked holding, keyed by mint.
type Position struct {
	ID             string         `json:"id"`
	DisplayName    string         `json:"display_name"`
	Symbol         string         `json:"symbol,omitempty"`
	Status         PositionStatus `json:"status"`
	EntryPrice     float64        `json:"entry_price"`
	HighWaterPrice float64        `json:"high_water_price"`
	OpenedAt       time.Time      `json:"opened_at"`
	ClosedAt       *time.Time     `json:"closed_at,omitempty"`
	Stages         ProfitStages   `json:"profit_stage"`
	Reserves       Reserves       `json:"reserves"`
}

// PositionRecord is the persisted form of a position.
type PositionRecord struct {
	Name           string   `json:"name"`
	Address        string   `json:"address"`
	Status         string   `json:"status"`
	Price          *float64 `json:"price"`
	BuyTime        string   `json:"buy_time,omitempty"`
	Symbol         string   `json:"symbol,omitempty"`
	HighWaterPrice *float64 `json:"high_water_price,omitempty"`
	HalfTaken      bool     `json:"half_taken,omitempty"`
	QuarterTaken   bool     `json:"quarter_taken,omitempty"`
	SolReserves    float64  `json:"sol_reserves,omitempty"`
	TokenReserves  float64  `json:"token_reserves,omitempty"`
}

// Persisted record status values.
const (
	RecordStatusActive   = "active"
	RecordStatusInactive = "inactive"
)
