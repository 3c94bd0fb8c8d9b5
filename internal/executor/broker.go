package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pumpbot/internal/domain"
	"github.com/alanyoungcy/pumpbot/internal/platform/pumpportal"
)

// TradeAPI submits trades through a hosted trading service.
// *pumpportal.TradeClient satisfies it.
type TradeAPI interface {
	Trade(ctx context.Context, req pumpportal.TradeRequest) (string, error)
}

var _ TradeAPI = (*pumpportal.TradeClient)(nil)

// Throttle bounds how often a key may be used.
type Throttle interface {
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

const brokerThrottleKey = "broker:trade"

// BrokerEngine delegates transaction construction and signing to a hosted
// trade API. When a chain client and wallet are configured it also checks
// balances before selling and waits for the returned signature to confirm.
type BrokerEngine struct {
	api       TradeAPI
	chain     ChainClient
	wallet    solana.PublicKey
	confirmer *Confirmer
	throttle  Throttle
	perSecond int
	opts      Options
	logger    *slog.Logger
}

// NewBrokerEngine creates a BrokerEngine. chain may be nil, in which case an
// accepted request counts as confirmed.
func NewBrokerEngine(api TradeAPI, chain ChainClient, wallet solana.PublicKey, opts Options, logger *slog.Logger) *BrokerEngine {
	e := &BrokerEngine{
		api:    api,
		chain:  chain,
		wallet: wallet,
		opts:   opts,
		logger: logger.With(slog.String("component", "broker_engine")),
	}
	if chain != nil {
		e.confirmer = NewConfirmer(chain, opts.ConfirmAttempts, opts.ConfirmInterval)
	}
	return e
}

// SetThrottle limits trade requests to perSecond. Call before use.
func (e *BrokerEngine) SetThrottle(t Throttle, perSecond int) {
	if perSecond <= 0 {
		return
	}
	e.throttle = t
	e.perSecond = perSecond
}

// Name implements Engine.
func (e *BrokerEngine) Name() string { return BackendBroker }

// Buy asks the broker to spend the configured SOL amount on d.Mint.
func (e *BrokerEngine) Buy(ctx context.Context, d domain.Decision) domain.Outcome {
	if !validate(d, domain.ActionBuy) {
		return domain.Fail(d, BackendBroker, domain.ReasonInvalidDecision, nil)
	}
	return e.trade(ctx, d, pumpportal.TradeRequest{
		Action:          domain.ActionBuy,
		Mint:            d.Mint,
		Amount:          e.opts.BuyAmountSOL,
		SlippagePercent: e.slippagePercent(),
	})
}

// Sell asks the broker to sell d.Fraction of the held balance, expressed as
// a percentage.
func (e *BrokerEngine) Sell(ctx context.Context, d domain.Decision) domain.Outcome {
	if !validate(d, domain.ActionSell) {
		return domain.Fail(d, BackendBroker, domain.ReasonInvalidDecision, nil)
	}
	if e.chain != nil && !e.wallet.IsZero() {
		if skip, ok := e.checkBalance(ctx, d); !ok {
			return skip
		}
	}
	return e.trade(ctx, d, pumpportal.TradeRequest{
		Action:          domain.ActionSell,
		Mint:            d.Mint,
		Amount:          math.Round(d.Fraction * 100),
		SlippagePercent: e.slippagePercent(),
	})
}

func (e *BrokerEngine) trade(ctx context.Context, d domain.Decision, req pumpportal.TradeRequest) domain.Outcome {
	if e.throttle != nil {
		if err := e.throttle.Wait(ctx, brokerThrottleKey, e.perSecond, time.Second); err != nil {
			return domain.Fail(d, BackendBroker, domain.ReasonBrokerError, err)
		}
	}
	raw, err := e.api.Trade(ctx, req)
	if err != nil {
		e.logger.WarnContext(ctx, "broker trade failed",
			slog.String("mint", d.Mint),
			slog.String("action", string(d.Action)),
			slog.String("error", err.Error()),
		)
		return domain.Fail(d, BackendBroker, domain.ReasonBrokerError, err)
	}
	e.logger.InfoContext(ctx, "broker trade accepted",
		slog.String("mint", d.Mint),
		slog.String("action", string(d.Action)),
		slog.String("signature", raw),
	)

	if e.confirmer == nil {
		return domain.Confirm(d, BackendBroker, raw)
	}
	sig, err := solana.SignatureFromBase58(raw)
	if err != nil {
		o := domain.Fail(d, BackendBroker, domain.ReasonBrokerError, fmt.Errorf("executor: broker signature: %w", err))
		o.Signature = raw
		return o
	}
	if err := e.confirmer.Wait(ctx, sig); err != nil {
		o := domain.Fail(d, BackendBroker, confirmReason(err), err)
		o.Signature = raw
		return o
	}
	return domain.Confirm(d, BackendBroker, raw)
}

func (e *BrokerEngine) checkBalance(ctx context.Context, d domain.Decision) (domain.Outcome, bool) {
	mint, err := solana.PublicKeyFromBase58(d.Mint)
	if err != nil {
		return domain.Fail(d, BackendBroker, domain.ReasonInvalidDecision, err), false
	}
	ata, _, err := solana.FindAssociatedTokenAddress(e.wallet, mint)
	if err != nil {
		return domain.Fail(d, BackendBroker, domain.ReasonInvalidDecision, err), false
	}
	balance, err := tokenBalance(ctx, e.chain, ata, e.opts.commitment())
	if err != nil || balance == 0 {
		return domain.Skip(d, BackendBroker, domain.ReasonNoBalance), false
	}
	return domain.Outcome{}, true
}

// slippagePercent converts the slippage fraction to a percent, keeping
// fractional values such as 0.5.
func (e *BrokerEngine) slippagePercent() float64 {
	return decimal.NewFromFloat(e.opts.Slippage).Mul(decimal.NewFromInt(100)).Round(4).InexactFloat64()
}
