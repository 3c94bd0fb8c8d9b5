package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/alanyoungcy/pumpbot/internal/domain"
)

// Confirmer polls signature statuses until a transaction lands.
type Confirmer struct {
	chain    ChainClient
	attempts int
	interval time.Duration
}

// NewConfirmer creates a Confirmer that polls up to attempts times.
func NewConfirmer(chain ChainClient, attempts int, interval time.Duration) *Confirmer {
	if attempts < 1 {
		attempts = 1
	}
	return &Confirmer{chain: chain, attempts: attempts, interval: interval}
}

// Wait returns nil once sig is confirmed or finalized without error. A
// transaction that executed with an error wraps domain.ErrTxFailed; one that
// never becomes visible wraps domain.ErrUnconfirmed.
func (c *Confirmer) Wait(ctx context.Context, sig solana.Signature) error {
	for attempt := 1; attempt <= c.attempts; attempt++ {
		res, err := c.chain.GetSignatureStatuses(ctx, true, sig)
		if err == nil && res != nil && len(res.Value) > 0 && res.Value[0] != nil {
			st := res.Value[0]
			if st.Err != nil {
				return fmt.Errorf("executor: %w: %v", domain.ErrTxFailed, st.Err)
			}
			if st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				st.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}
		if attempt == c.attempts {
			break
		}

		t := time.NewTimer(c.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("executor: %w: %v", domain.ErrUnconfirmed, ctx.Err())
		case <-t.C:
		}
	}
	return fmt.Errorf("executor: %w after %d attempts", domain.ErrUnconfirmed, c.attempts)
}

// confirmReason maps a Wait error to an outcome reason.
func confirmReason(err error) domain.Reason {
	if errors.Is(err, domain.ErrTxFailed) {
		return domain.ReasonRejected
	}
	return domain.ReasonUnconfirmed
}
