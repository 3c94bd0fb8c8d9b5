package domain

import "time"

// Action is what a Decision asks the execution layer to do.
type Action string

const (
	ActionNone Action = "none"
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// Trigger names the rule that produced a Buy or Sell decision.
type Trigger string

const (
	TriggerNewToken      Trigger = "new_token"
	TriggerTrailingStop  Trigger = "trailing_stop"
	TriggerProfitHalf    Trigger = "profit_half"
	TriggerProfitQuarter Trigger = "profit_quarter"
	TriggerExpiry        Trigger = "expiry"
)

// Reason is a machine-readable explanation attached to every non-confirmed
// outcome and to None decisions.
type Reason string

// Reasons for declining to act on an event.
const (
	ReasonCapacity    Reason = "capacity"
	ReasonSimilarName Reason = "similar_name"
	ReasonNotTracked  Reason = "not_tracked"
	ReasonNoPrice     Reason = "no_price"
	ReasonHold        Reason = "hold"
	ReasonDuplicate   Reason = "duplicate"
)

// Reasons for skipped or failed executions.
const (
	ReasonNoBalance       Reason = "no_balance"
	ReasonLockHeld        Reason = "lock_held"
	ReasonAccountSetup    Reason = "account_setup"
	ReasonQuoteUndefined  Reason = "quote_undefined"
	ReasonSubmitError     Reason = "submit_error"
	ReasonUnconfirmed     Reason = "unconfirmed"
	ReasonRejected        Reason = "rejected"
	ReasonBrokerError     Reason = "broker_error"
	ReasonInvalidDecision Reason = "invalid_decision"
)

// Decision is emitted by the strategy engine for a single event or tick.
type Decision struct {
	ID       string
	Action   Action
	Mint     string
	Name     string
	Symbol   string
	Fraction float64
	Trigger  Trigger
	Reason   Reason
	Price    float64
	Reserves Reserves
	// Prior is the status the position had before a full sell moved it to
	// closing. Used to revert when the sell does not confirm.
	Prior     PositionStatus
	CreatedAt time.Time
}

// IsNone reports whether the decision requests no action.
func (d Decision) IsNone() bool {
	return d.Action == ActionNone || d.Action == ""
}

// FullSell reports whether the decision liquidates the whole position.
func (d Decision) FullSell() bool {
	return d.Action == ActionSell && d.Fraction >= 1
}
