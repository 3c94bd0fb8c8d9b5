package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/pumpbot/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL. Each Save
// replaces the whole table so it mirrors the ledger exactly.
type PositionStore struct {
	pool *pgxpool.Pool
}

var _ domain.PositionStore = (*PositionStore)(nil)

// NewPositionStore creates a PositionStore backed by pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `address, name, symbol, status, price, buy_time,
	high_water_price, half_taken, quarter_taken, sol_reserves, token_reserves`

func scanPositionRows(rows pgx.Rows) ([]domain.PositionRecord, error) {
	var records []domain.PositionRecord
	for rows.Next() {
		var r domain.PositionRecord
		if err := rows.Scan(
			&r.Address, &r.Name, &r.Symbol, &r.Status, &r.Price, &r.BuyTime,
			&r.HighWaterPrice, &r.HalfTaken, &r.QuarterTaken, &r.SolReserves, &r.TokenReserves,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Load returns every stored record in ledger order.
func (s *PositionStore) Load(ctx context.Context) ([]domain.PositionRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+positionSelectCols+` FROM positions ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load positions: %w", err)
	}
	defer rows.Close()

	records, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions: %w", err)
	}
	return records, nil
}

// Save upserts records and deletes rows for mints no longer present, inside
// a single transaction.
func (s *PositionStore) Save(ctx context.Context, records []domain.PositionRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin save positions: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const upsert = `
		INSERT INTO positions (
			address, seq, name, symbol, status, price, buy_time,
			high_water_price, half_taken, quarter_taken, sol_reserves, token_reserves,
			updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (address) DO UPDATE SET
			seq              = EXCLUDED.seq,
			name             = EXCLUDED.name,
			symbol           = EXCLUDED.symbol,
			status           = EXCLUDED.status,
			price            = EXCLUDED.price,
			buy_time         = EXCLUDED.buy_time,
			high_water_price = EXCLUDED.high_water_price,
			half_taken       = EXCLUDED.half_taken,
			quarter_taken    = EXCLUDED.quarter_taken,
			sol_reserves     = EXCLUDED.sol_reserves,
			token_reserves   = EXCLUDED.token_reserves,
			updated_at       = NOW()`

	batch := &pgx.Batch{}
	addresses := make([]string, 0, len(records))
	for i, r := range records {
		batch.Queue(upsert,
			r.Address, i, r.Name, r.Symbol, r.Status, r.Price, r.BuyTime,
			r.HighWaterPrice, r.HalfTaken, r.QuarterTaken, r.SolReserves, r.TokenReserves,
		)
		addresses = append(addresses, r.Address)
	}
	batch.Queue(`DELETE FROM positions WHERE NOT (address = ANY($1))`, addresses)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: save positions: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit positions: %w", err)
	}
	return nil
}
