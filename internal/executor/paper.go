package executor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pumpbot/internal/domain"
	"github.com/alanyoungcy/pumpbot/internal/pricing"
)

// PaperEngine simulates fills against the curve without touching the chain.
// Balances live in memory.
type PaperEngine struct {
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	balances map[string]uint64 // mint -> token base units
}

// NewPaperEngine creates an empty PaperEngine.
func NewPaperEngine(opts Options, logger *slog.Logger) *PaperEngine {
	return &PaperEngine{
		opts:     opts,
		logger:   logger.With(slog.String("component", "paper_engine")),
		balances: make(map[string]uint64),
	}
}

// Name implements Engine.
func (e *PaperEngine) Name() string { return BackendPaper }

// Seed sets the simulated balance of mint. Used for positions restored from
// storage.
func (e *PaperEngine) Seed(mint string, units uint64) {
	e.mu.Lock()
	e.balances[mint] = units
	e.mu.Unlock()
}

// Balance returns the simulated balance of mint.
func (e *PaperEngine) Balance(mint string) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balances[mint]
}

// Buy credits the quoted token amount for the configured SOL spend.
func (e *PaperEngine) Buy(ctx context.Context, d domain.Decision) domain.Outcome {
	if !validate(d, domain.ActionBuy) {
		return domain.Fail(d, BackendPaper, domain.ReasonInvalidDecision, nil)
	}
	lamports := pricing.SOLToLamports(e.opts.BuyAmountSOL)
	quote := pricing.SolForTokens(lamports, pricing.FromDisplay(d.Reserves))
	if !quote.Defined {
		return domain.Fail(d, BackendPaper, domain.ReasonQuoteUndefined, domain.ErrUndefinedQuote)
	}
	tokens := quote.Uint64()

	e.mu.Lock()
	e.balances[d.Mint] += tokens
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "paper buy filled",
		slog.String("mint", d.Mint),
		slog.Uint64("tokens", tokens),
	)
	o := domain.Confirm(d, BackendPaper, paperSignature())
	o.TokenAmount = tokens
	o.SolAmount = pricing.ToUint64(lamports)
	return o
}

// Sell debits d.Fraction of the simulated balance. The SOL proceeds are
// quoted when reserves are known and reported as zero otherwise.
func (e *PaperEngine) Sell(ctx context.Context, d domain.Decision) domain.Outcome {
	if !validate(d, domain.ActionSell) {
		return domain.Fail(d, BackendPaper, domain.ReasonInvalidDecision, nil)
	}

	e.mu.Lock()
	balance := e.balances[d.Mint]
	amount := sellAmount(balance, d.Fraction)
	if amount == 0 {
		e.mu.Unlock()
		return domain.Skip(d, BackendPaper, domain.ReasonNoBalance)
	}
	if amount >= balance {
		delete(e.balances, d.Mint)
	} else {
		e.balances[d.Mint] = balance - amount
	}
	e.mu.Unlock()

	var lamports uint64
	if q := pricing.TokensForSol(decimal.NewFromUint64(amount), pricing.FromDisplay(d.Reserves)); q.Defined {
		lamports = q.Uint64()
	}
	e.logger.InfoContext(ctx, "paper sell filled",
		slog.String("mint", d.Mint),
		slog.Uint64("tokens", amount),
		slog.Uint64("lamports", lamports),
	)
	o := domain.Confirm(d, BackendPaper, paperSignature())
	o.TokenAmount = amount
	o.SolAmount = lamports
	return o
}

func paperSignature() string {
	return "paper-" + uuid.NewString()
}
