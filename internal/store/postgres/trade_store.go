package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/pumpbot/internal/domain"
)

// TradeStore records confirmed trades in PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `decision_id, mint, name, action, trigger, fraction,
	price, token_amount, sol_amount, signature, backend, executed_at`

// Record inserts one trade. Re-recording the same decision is a no-op.
func (s *TradeStore) Record(ctx context.Context, t domain.TradeRecord) error {
	const query = `
		INSERT INTO trades (
			decision_id, mint, name, action, trigger, fraction,
			price, token_amount, sol_amount, signature, backend, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (decision_id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		t.DecisionID, t.Mint, t.Name, string(t.Action), string(t.Trigger), t.Fraction,
		t.Price, int64(t.TokenAmount), int64(t.SolAmount), t.Signature, t.Backend, t.At,
	)
	if err != nil {
		return fmt.Errorf("postgres: record trade %s: %w", t.DecisionID, err)
	}
	return nil
}

// ListByMint returns the most recent trades for mint, newest first.
func (s *TradeStore) ListByMint(ctx context.Context, mint string, limit int) ([]domain.TradeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeSelectCols+` FROM trades WHERE mint = $1 ORDER BY executed_at DESC LIMIT $2`,
		mint, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades for %s: %w", mint, err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades: %w", err)
	}
	return trades, nil
}

func scanTradeRows(rows pgx.Rows) ([]domain.TradeRecord, error) {
	var trades []domain.TradeRecord
	for rows.Next() {
		var (
			t             domain.TradeRecord
			action, trig  string
			tokens, lamps int64
		)
		if err := rows.Scan(
			&t.DecisionID, &t.Mint, &t.Name, &action, &trig, &t.Fraction,
			&t.Price, &tokens, &lamps, &t.Signature, &t.Backend, &t.At,
		); err != nil {
			return nil, err
		}
		t.Action = domain.Action(action)
		t.Trigger = domain.Trigger(trig)
		t.TokenAmount = uint64(tokens)
		t.SolAmount = uint64(lamps)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
