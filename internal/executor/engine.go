// Package executor turns strategy decisions into trades. Every backend
// reports an Outcome and never touches the position ledger.
package executor

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/alanyoungcy/pumpbot/internal/config"
	"github.com/alanyoungcy/pumpbot/internal/domain"
)

// Backend names reported in outcomes.
const (
	BackendRPC    = "rpc"
	BackendBroker = "broker"
	BackendPaper  = "paper"
)

// Engine executes buy and sell decisions.
type Engine interface {
	Buy(ctx context.Context, d domain.Decision) domain.Outcome
	Sell(ctx context.Context, d domain.Decision) domain.Outcome
	Name() string
}

// ChainClient is the subset of the Solana JSON-RPC API the executor uses.
// *rpc.Client satisfies it.
type ChainClient interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
}

var _ ChainClient = (*rpc.Client)(nil)

// Signer signs transactions for the trading wallet.
type Signer interface {
	PublicKey() solana.PublicKey
	Sign(tx *solana.Transaction) error
}

// Options are the execution parameters shared by every backend.
type Options struct {
	BuyAmountSOL             float64
	Slippage                 float64
	Commitment               rpc.CommitmentType
	AccountSetupAttempts     int
	AccountSetupInitialDelay time.Duration
	ConfirmAttempts          int
	ConfirmInterval          time.Duration
	ComputeUnitLimit         uint32
	ComputeUnitPrice         uint64
}

// OptionsFrom collects the execution parameters from cfg.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		BuyAmountSOL:             cfg.Trading.BuyAmountSOL,
		Slippage:                 cfg.Trading.Slippage(),
		Commitment:               rpc.CommitmentType(cfg.Solana.Commitment),
		AccountSetupAttempts:     cfg.Execution.AccountSetupAttempts,
		AccountSetupInitialDelay: cfg.Execution.AccountSetupInitialDelay.Duration,
		ConfirmAttempts:          cfg.Execution.ConfirmAttempts,
		ConfirmInterval:          cfg.Execution.ConfirmInterval.Duration,
		ComputeUnitLimit:         cfg.Execution.ComputeUnitLimit,
		ComputeUnitPrice:         cfg.Execution.ComputeUnitPrice,
	}
}

func (o Options) commitment() rpc.CommitmentType {
	if o.Commitment == "" {
		return rpc.CommitmentConfirmed
	}
	return o.Commitment
}

// validate rejects decisions no backend can act on.
func validate(d domain.Decision, want domain.Action) bool {
	if d.Action != want || d.Mint == "" {
		return false
	}
	if want == domain.ActionSell && (d.Fraction <= 0 || d.Fraction > 1) {
		return false
	}
	return true
}
