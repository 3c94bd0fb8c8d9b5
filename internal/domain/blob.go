package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// TradeRecord is one confirmed trade as written to the journal.
type TradeRecord struct {
	DecisionID  string    `json:"decision_id"`
	Mint        string    `json:"mint"`
	Name        string    `json:"name,omitempty"`
	Action      Action    `json:"action"`
	Trigger     Trigger   `json:"trigger,omitempty"`
	Fraction    float64   `json:"fraction,omitempty"`
	Price       float64   `json:"price"`
	TokenAmount uint64    `json:"token_amount,omitempty"`
	SolAmount   uint64    `json:"sol_amount,omitempty"`
	Signature   string    `json:"signature"`
	Backend     string    `json:"backend"`
	At          time.Time `json:"at"`
}
