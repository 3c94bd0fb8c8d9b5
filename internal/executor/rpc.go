package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pumpbot/internal/domain"
	"github.com/alanyoungcy/pumpbot/internal/platform/pump"
	"github.com/alanyoungcy/pumpbot/internal/pricing"
)

// RPCEngine builds, signs and submits bonding-curve transactions directly
// against a Solana RPC node.
type RPCEngine struct {
	chain     ChainClient
	signer    Signer
	confirmer *Confirmer
	opts      Options
	logger    *slog.Logger
}

// NewRPCEngine creates an RPCEngine trading from the signer's wallet.
func NewRPCEngine(chain ChainClient, signer Signer, opts Options, logger *slog.Logger) *RPCEngine {
	return &RPCEngine{
		chain:     chain,
		signer:    signer,
		confirmer: NewConfirmer(chain, opts.ConfirmAttempts, opts.ConfirmInterval),
		opts:      opts,
		logger:    logger.With(slog.String("component", "rpc_engine")),
	}
}

// Name implements Engine.
func (e *RPCEngine) Name() string { return BackendRPC }

// Buy spends the configured SOL amount on d.Mint. The token amount comes
// from the constant-product quote against d.Reserves and the SOL cost is
// capped by the slippage tolerance.
func (e *RPCEngine) Buy(ctx context.Context, d domain.Decision) domain.Outcome {
	if !validate(d, domain.ActionBuy) {
		return domain.Fail(d, BackendRPC, domain.ReasonInvalidDecision, nil)
	}
	mint, err := solana.PublicKeyFromBase58(d.Mint)
	if err != nil {
		return domain.Fail(d, BackendRPC, domain.ReasonInvalidDecision, err)
	}

	lamports := pricing.SOLToLamports(e.opts.BuyAmountSOL)
	quote := pricing.SolForTokens(lamports, pricing.FromDisplay(d.Reserves))
	if !quote.Defined {
		return domain.Fail(d, BackendRPC, domain.ReasonQuoteUndefined, domain.ErrUndefinedQuote)
	}
	tokens := quote.Uint64()
	maxCost := pricing.ToUint64(pricing.ApplySlippage(lamports, pricing.Buy, e.opts.Slippage))

	acc, err := pump.DeriveAccounts(mint, e.signer.PublicKey())
	if err != nil {
		return domain.Fail(d, BackendRPC, domain.ReasonInvalidDecision, err)
	}
	if err := e.ensureTokenAccount(ctx, acc); err != nil {
		e.logger.WarnContext(ctx, "token account setup failed",
			slog.String("mint", d.Mint),
			slog.String("error", err.Error()),
		)
		return domain.Fail(d, BackendRPC, domain.ReasonAccountSetup, err)
	}

	instrs := append(e.budget(), pump.NewBuyInstruction(acc, tokens, maxCost))
	o := e.submitAndConfirm(ctx, d, instrs)
	o.TokenAmount = tokens
	o.SolAmount = pricing.ToUint64(lamports)
	return o
}

// Sell liquidates d.Fraction of the wallet's on-chain balance of d.Mint.
// Full sells also close the token account to reclaim its rent.
func (e *RPCEngine) Sell(ctx context.Context, d domain.Decision) domain.Outcome {
	if !validate(d, domain.ActionSell) {
		return domain.Fail(d, BackendRPC, domain.ReasonInvalidDecision, nil)
	}
	mint, err := solana.PublicKeyFromBase58(d.Mint)
	if err != nil {
		return domain.Fail(d, BackendRPC, domain.ReasonInvalidDecision, err)
	}
	acc, err := pump.DeriveAccounts(mint, e.signer.PublicKey())
	if err != nil {
		return domain.Fail(d, BackendRPC, domain.ReasonInvalidDecision, err)
	}

	balance, err := e.tokenBalance(ctx, acc.UserTokenAccount)
	if err != nil || balance == 0 {
		if err != nil {
			e.logger.WarnContext(ctx, "token balance unavailable",
				slog.String("mint", d.Mint),
				slog.String("error", err.Error()),
			)
		}
		return domain.Skip(d, BackendRPC, domain.ReasonNoBalance)
	}

	amount := sellAmount(balance, d.Fraction)
	if amount == 0 {
		return domain.Skip(d, BackendRPC, domain.ReasonNoBalance)
	}
	reserves := pricing.FromDisplay(d.Reserves)
	if !d.Reserves.Known() {
		reserves, err = e.curveReserves(ctx, acc.BondingCurve)
		if err != nil {
			e.logger.WarnContext(ctx, "bonding curve unavailable",
				slog.String("mint", d.Mint),
				slog.String("error", err.Error()),
			)
		}
	}
	quote := pricing.TokensForSol(decimal.NewFromUint64(amount), reserves)
	if !quote.Defined {
		return domain.Fail(d, BackendRPC, domain.ReasonQuoteUndefined, domain.ErrUndefinedQuote)
	}
	minOut := pricing.ToUint64(pricing.ApplySlippage(quote.Amount, pricing.Sell, e.opts.Slippage))

	instrs := append(e.budget(), pump.NewSellInstruction(acc, amount, minOut))
	if d.FullSell() {
		owner := e.signer.PublicKey()
		instrs = append(instrs, token.NewCloseAccountInstruction(
			acc.UserTokenAccount, owner, owner, []solana.PublicKey{},
		).Build())
	}

	o := e.submitAndConfirm(ctx, d, instrs)
	o.TokenAmount = amount
	o.SolAmount = quote.Uint64()
	return o
}

func (e *RPCEngine) submitAndConfirm(ctx context.Context, d domain.Decision, instrs []solana.Instruction) domain.Outcome {
	sig, err := e.submit(ctx, instrs)
	if err != nil {
		return domain.Fail(d, BackendRPC, domain.ReasonSubmitError, err)
	}
	e.logger.InfoContext(ctx, "transaction submitted",
		slog.String("mint", d.Mint),
		slog.String("action", string(d.Action)),
		slog.String("signature", sig.String()),
	)
	if err := e.confirmer.Wait(ctx, sig); err != nil {
		o := domain.Fail(d, BackendRPC, confirmReason(err), err)
		o.Signature = sig.String()
		return o
	}
	return domain.Confirm(d, BackendRPC, sig.String())
}

// submit signs instrs with a fresh blockhash and sends them without
// preflight simulation.
func (e *RPCEngine) submit(ctx context.Context, instrs []solana.Instruction) (solana.Signature, error) {
	bh, err := e.chain.GetLatestBlockhash(ctx, e.opts.commitment())
	if err != nil {
		return solana.Signature{}, fmt.Errorf("executor: latest blockhash: %w", err)
	}
	if bh == nil || bh.Value == nil {
		return solana.Signature{}, errors.New("executor: latest blockhash: empty response")
	}

	tx, err := solana.NewTransaction(instrs, bh.Value.Blockhash, solana.TransactionPayer(e.signer.PublicKey()))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("executor: build transaction: %w", err)
	}
	if err := e.signer.Sign(tx); err != nil {
		return solana.Signature{}, fmt.Errorf("executor: sign transaction: %w", err)
	}

	sig, err := e.chain.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       true,
		PreflightCommitment: e.opts.commitment(),
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("executor: send transaction: %w", err)
	}
	return sig, nil
}

func (e *RPCEngine) budget() []solana.Instruction {
	var out []solana.Instruction
	if e.opts.ComputeUnitLimit > 0 {
		out = append(out, computebudget.NewSetComputeUnitLimitInstruction(e.opts.ComputeUnitLimit).Build())
	}
	if e.opts.ComputeUnitPrice > 0 {
		out = append(out, computebudget.NewSetComputeUnitPriceInstruction(e.opts.ComputeUnitPrice).Build())
	}
	return out
}

// curveReserves reads the virtual reserves from the bonding curve account.
// It serves sells whose decision carries no reserve snapshot, such as a
// position restored from disk that has not seen a trade since.
func (e *RPCEngine) curveReserves(ctx context.Context, curve solana.PublicKey) (pricing.Reserves, error) {
	res, err := e.chain.GetAccountInfo(ctx, curve)
	if err != nil {
		return pricing.Reserves{}, fmt.Errorf("executor: bonding curve: %w", err)
	}
	if res == nil || res.Value == nil || res.Value.Data == nil {
		return pricing.Reserves{}, fmt.Errorf("executor: bonding curve %s: %w", curve, rpc.ErrNotFound)
	}
	c, err := pump.DecodeCurve(res.Value.Data.GetBinary())
	if err != nil {
		return pricing.Reserves{}, fmt.Errorf("executor: bonding curve %s: %w", curve, err)
	}
	return pricing.Reserves{
		Sol:    decimal.NewFromUint64(c.VirtualSolReserves),
		Tokens: decimal.NewFromUint64(c.VirtualTokenReserves),
	}, nil
}

// tokenBalance returns the raw balance of a token account. A missing account
// is an error.
func (e *RPCEngine) tokenBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	return tokenBalance(ctx, e.chain, account, e.opts.commitment())
}

func tokenBalance(ctx context.Context, chain ChainClient, account solana.PublicKey, commitment rpc.CommitmentType) (uint64, error) {
	res, err := chain.GetTokenAccountBalance(ctx, account, commitment)
	if err != nil {
		return 0, fmt.Errorf("executor: token balance: %w", err)
	}
	if res == nil || res.Value == nil {
		return 0, fmt.Errorf("executor: token balance: %w", domain.ErrNoBalance)
	}
	n, err := strconv.ParseUint(res.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("executor: parse token balance %q: %w", res.Value.Amount, err)
	}
	return n, nil
}

// sellAmount truncates balance*fraction. A full sell takes the whole balance.
func sellAmount(balance uint64, fraction float64) uint64 {
	if fraction >= 1 {
		return balance
	}
	return pricing.ToUint64(decimal.NewFromUint64(balance).Mul(decimal.NewFromFloat(fraction)))
}
