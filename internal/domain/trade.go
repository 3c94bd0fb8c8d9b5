package domain

import "time"

// EventKind is the type of a feed event.
type EventKind string

const (
	EventCreate EventKind = "create"
	EventBuy    EventKind = "buy"
	EventSell   EventKind = "sell"
)

// TradeEvent is an immutable fact received from the token feed.
type TradeEvent struct {
	Kind          EventKind
	Mint          string
	Name          string
	Symbol        string
	Trader        string
	BondingCurve  string
	TokenAmount   float64
	SolAmount     float64
	InitialBuy    float64
	MarketCapSol  float64
	SolReserves   float64
	TokenReserves float64
	ReceivedAt    time.Time
}

// Price returns SOL per token for the event. The second return value is
// false when the token amount is not positive.
func (e TradeEvent) Price() (float64, bool) {
	tokens := e.TokenAmount
	if tokens <= 0 && e.Kind == EventCreate {
		tokens = e.InitialBuy
	}
	if tokens <= 0 {
		return 0, false
	}
	return e.SolAmount / tokens, true
}

// Reserves returns the bonding-curve snapshot carried by the event.
func (e TradeEvent) Reserves() Reserves {
	return Reserves{Sol: e.SolReserves, Tokens: e.TokenReserves}
}
