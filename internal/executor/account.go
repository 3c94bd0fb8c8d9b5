package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v4"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/alanyoungcy/pumpbot/internal/platform/pump"
)

var errAccountPending = errors.New("executor: token account not yet visible")

// ensureTokenAccount makes sure the wallet's associated token account for the
// mint exists. Every attempt that still finds the account missing sends the
// idempotent create instruction, so a dropped or failed create is retried and
// a duplicate of one that already landed is a no-op on chain.
func (e *RPCEngine) ensureTokenAccount(ctx context.Context, acc pump.Accounts) error {
	attempts := e.opts.AccountSetupAttempts
	if attempts < 1 {
		attempts = 1
	}

	tries := 0
	op := func() error {
		tries++
		exists, err := e.accountExists(ctx, acc.UserTokenAccount)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		sig, err := e.submit(ctx, []solana.Instruction{createTokenAccountIdempotent(acc)})
		if err != nil {
			return fmt.Errorf("executor: create token account: %w", err)
		}
		e.logger.InfoContext(ctx, "token account create sent",
			slog.String("account", acc.UserTokenAccount.String()),
			slog.String("signature", sig.String()),
			slog.Int("attempt", tries),
		)
		return errAccountPending
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.opts.AccountSetupInitialDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return fmt.Errorf("executor: token account %s after %d attempts: %w", acc.UserTokenAccount, tries, err)
	}
	return nil
}

func (e *RPCEngine) accountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	res, err := e.chain.GetAccountInfo(ctx, account)
	if errors.Is(err, rpc.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("executor: account info: %w", err)
	}
	return res != nil && res.Value != nil, nil
}

// createIdempotentTag selects CreateIdempotent in the associated token
// account program. It succeeds when the account already exists.
const createIdempotentTag = 1

func createTokenAccountIdempotent(acc pump.Accounts) solana.Instruction {
	return solana.NewInstruction(
		solana.SPLAssociatedTokenAccountProgramID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(acc.User, true, true),
			solana.NewAccountMeta(acc.UserTokenAccount, true, false),
			solana.NewAccountMeta(acc.User, false, false),
			solana.NewAccountMeta(acc.Mint, false, false),
			solana.NewAccountMeta(solana.SystemProgramID, false, false),
			solana.NewAccountMeta(solana.TokenProgramID, false, false),
		},
		[]byte{createIdempotentTag},
	)
}
