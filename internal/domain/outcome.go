package domain

import "time"

// OutcomeStatus is the terminal state of an execution.
type OutcomeStatus string

const (
	OutcomeConfirmed OutcomeStatus = "confirmed"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeSkipped   OutcomeStatus = "skipped"
)

// Outcome is what the execution layer reports back for a Decision.
type Outcome struct {
	DecisionID string        `json:"decision_id"`
	Mint       string        `json:"mint"`
	Action     Action        `json:"action"`
	Fraction   float64       `json:"fraction,omitempty"`
	Status     OutcomeStatus `json:"status"`
	Reason     Reason        `json:"reason,omitempty"`
	Detail     string        `json:"detail,omitempty"`
	Signature  string        `json:"signature,omitempty"`
	Backend    string        `json:"backend"`
	// TokenAmount is in token base units, SolAmount in lamports.
	TokenAmount uint64    `json:"token_amount,omitempty"`
	SolAmount   uint64    `json:"sol_amount,omitempty"`
	Duration    float64   `json:"duration_seconds"`
	At          time.Time `json:"at"`
}

// Confirmed reports whether the execution definitively succeeded.
func (o Outcome) Confirmed() bool {
	return o.Status == OutcomeConfirmed
}

// Confirm builds a confirmed outcome for d.
func Confirm(d Decision, backend, signature string) Outcome {
	return Outcome{
		DecisionID: d.ID,
		Mint:       d.Mint,
		Action:     d.Action,
		Fraction:   d.Fraction,
		Status:     OutcomeConfirmed,
		Signature:  signature,
		Backend:    backend,
		At:         time.Now().UTC(),
	}
}

// Fail builds a failed outcome for d.
func Fail(d Decision, backend string, reason Reason, err error) Outcome {
	o := Outcome{
		DecisionID: d.ID,
		Mint:       d.Mint,
		Action:     d.Action,
		Fraction:   d.Fraction,
		Status:     OutcomeFailed,
		Reason:     reason,
		Backend:    backend,
		At:         time.Now().UTC(),
	}
	if err != nil {
		o.Detail = err.Error()
	}
	return o
}

// Skip builds a skipped outcome for d.
func Skip(d Decision, backend string, reason Reason) Outcome {
	return Outcome{
		DecisionID: d.ID,
		Mint:       d.Mint,
		Action:     d.Action,
		Fraction:   d.Fraction,
		Status:     OutcomeSkipped,
		Reason:     reason,
		Backend:    backend,
		At:         time.Now().UTC(),
	}
}
