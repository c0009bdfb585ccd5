package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/candlefi/candle-markets/internal/domain"
)

// PayoutStore implements domain.PayoutStore using PostgreSQL. The table is
// append-only: rows are written once per confirmed claim and never updated.
type PayoutStore struct {
	pool *pgxpool.Pool
}

// NewPayoutStore creates a new PayoutStore backed by the given connection pool.
func NewPayoutStore(pool *pgxpool.Pool) *PayoutStore {
	return &PayoutStore{pool: pool}
}

var _ domain.PayoutStore = (*PayoutStore)(nil)

// Record appends one payout row.
func (s *PayoutStore) Record(ctx context.Context, p domain.Payout) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO payouts (wallet, market_id, amount, reference)
		 VALUES ($1, $2, $3, $4)`,
		p.Wallet, int64(p.MarketID), int64(p.Amount), p.Reference)
	if err != nil {
		return fmt.Errorf("postgres: record payout %s/%d: %w", p.Wallet, p.MarketID, err)
	}
	return nil
}

// ListByWallet returns a wallet's payouts, newest first.
func (s *PayoutStore) ListByWallet(ctx context.Context, wallet string) ([]domain.Payout, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT wallet, market_id, amount, reference, recorded_at
		 FROM payouts WHERE wallet = $1 ORDER BY recorded_at DESC`,
		wallet)
	if err != nil {
		return nil, fmt.Errorf("postgres: list payouts for %s: %w", wallet, err)
	}
	return collectPayouts(rows)
}

// ListBefore returns payouts recorded before the cutoff, oldest first, for
// archival.
func (s *PayoutStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Payout, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT wallet, market_id, amount, reference, recorded_at
		 FROM payouts WHERE recorded_at < $1
		 ORDER BY recorded_at ASC LIMIT $2`,
		before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list payouts before %s: %w", before, err)
	}
	return collectPayouts(rows)
}

func collectPayouts(rows pgx.Rows) ([]domain.Payout, error) {
	defer rows.Close()
	var payouts []domain.Payout
	for rows.Next() {
		var p domain.Payout
		var marketID, amount int64
		if err := rows.Scan(&p.Wallet, &marketID, &amount, &p.Reference, &p.RecordedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan payout: %w", err)
		}
		p.MarketID = uint64(marketID)
		p.Amount = uint64(amount)
		payouts = append(payouts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: payout rows: %w", err)
	}
	return payouts, nil
}
