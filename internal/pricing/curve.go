// Package pricing implements the constant-product bonding curve used by
// pump.fun tokens. All functions are pure.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pumpbot/internal/domain"
)

// Base-unit scaling for each asset class.
const (
	LamportsPerSOL = 1_000_000_000
	TokenBaseUnits = 1_000_000
)

var (
	lamportsPerSOL = decimal.NewFromInt(LamportsPerSOL)
	tokenBaseUnits = decimal.NewFromInt(TokenBaseUnits)
)

// Reserves holds a bonding-curve snapshot in base units (lamports and token
// base units).
type Reserves struct {
	Sol    decimal.Decimal
	Tokens decimal.Decimal
}

// FromDisplay converts a display-unit snapshot into base units.
func FromDisplay(r domain.Reserves) Reserves {
	return Reserves{
		Sol:    decimal.NewFromFloat(r.Sol).Mul(lamportsPerSOL),
		Tokens: decimal.NewFromFloat(r.Tokens).Mul(tokenBaseUnits),
	}
}

// Valid reports whether both reserves are strictly positive.
func (r Reserves) Valid() bool {
	return r.Sol.IsPositive() && r.Tokens.IsPositive()
}

// Product returns the invariant k = sol × tokens.
func (r Reserves) Product() decimal.Decimal {
	return r.Sol.Mul(r.Tokens)
}

// Quote is the output of a curve computation. Amount is meaningless when
// Defined is false.
type Quote struct {
	Amount  decimal.Decimal
	Defined bool
}

// Undefined is returned for degenerate reserves.
var Undefined = Quote{}

// Uint64 truncates the quote toward zero into an integer ledger amount.
func (q Quote) Uint64() uint64 {
	return ToUint64(q.Amount)
}

// ToUint64 truncates a non-negative decimal into a uint64. Negative values
// map to zero.
func ToUint64(d decimal.Decimal) uint64 {
	if !d.IsPositive() {
		return 0
	}
	return d.Truncate(0).BigInt().Uint64()
}

// SolForTokens returns how many token base units solIn lamports buys
// against r, rounded to the nearest integer.
func SolForTokens(solIn decimal.Decimal, r Reserves) Quote {
	if !r.Valid() || solIn.IsNegative() {
		return Undefined
	}
	newSol := r.Sol.Add(solIn)
	newTokens := r.Product().Div(newSol)
	out := r.Tokens.Sub(newTokens).Round(0)
	return Quote{Amount: clamp(out), Defined: true}
}

// TokensForSol returns how many lamports selling tokensIn base units yields
// against r. The amount is left unrounded.
func TokensForSol(tokensIn decimal.Decimal, r Reserves) Quote {
	if !r.Valid() || tokensIn.IsNegative() {
		return Undefined
	}
	newTokens := r.Tokens.Add(tokensIn)
	newSol := r.Product().Div(newTokens)
	out := r.Sol.Sub(newSol)
	return Quote{Amount: clamp(out), Defined: true}
}

// Direction selects which side of a trade a slippage bound protects.
type Direction int

const (
	// Buy bounds the maximum acceptable input.
	Buy Direction = iota
	// Sell bounds the minimum acceptable output.
	Sell
)

// ApplySlippage widens amount by pct (0.03 for 3%) in the direction that
// protects the trader.
func ApplySlippage(amount decimal.Decimal, dir Direction, pct float64) decimal.Decimal {
	p := decimal.NewFromFloat(pct)
	if dir == Buy {
		return amount.Mul(decimal.NewFromInt(1).Add(p))
	}
	return clamp(amount.Mul(decimal.NewFromInt(1).Sub(p)))
}

// SOLToLamports converts a display SOL amount into lamports.
func SOLToLamports(sol float64) decimal.Decimal {
	return decimal.NewFromFloat(sol).Mul(lamportsPerSOL)
}

// LamportsToSOL converts lamports into display SOL.
func LamportsToSOL(lamports uint64) float64 {
	return decimal.NewFromUint64(lamports).Div(lamportsPerSOL).InexactFloat64()
}

// TokensToDisplay converts token base units into whole tokens.
func TokensToDisplay(units uint64) float64 {
	return decimal.NewFromUint64(units).Div(tokenBaseUnits).InexactFloat64()
}

func clamp(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
