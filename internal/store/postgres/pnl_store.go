package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/candlefi/candle-markets/internal/domain"
)

// PnLStore implements domain.PnLStore using PostgreSQL. The running aggregate
// lives in wallet_pnl; the win streak is derived from claimed bets on read.
type PnLStore struct {
	pool *pgxpool.Pool
}

// NewPnLStore creates a new PnLStore backed by the given connection pool.
func NewPnLStore(pool *pgxpool.Pool) *PnLStore {
	return &PnLStore{pool: pool}
}

var _ domain.PnLStore = (*PnLStore)(nil)

// Apply folds one settled bet's delta into the wallet's running aggregate.
func (s *PnLStore) Apply(ctx context.Context, wallet string, delta int64) error {
	win := 0
	if delta > 0 {
		win = 1
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO wallet_pnl (wallet, total_pnl, settled_bets, wins)
		 VALUES ($1, $2, 1, $3)
		 ON CONFLICT (wallet) DO UPDATE SET
			total_pnl    = wallet_pnl.total_pnl + EXCLUDED.total_pnl,
			settled_bets = wallet_pnl.settled_bets + 1,
			wins         = wallet_pnl.wins + EXCLUDED.wins,
			updated_at   = NOW()`,
		wallet, delta, win)
	if err != nil {
		return fmt.Errorf("postgres: apply pnl for %s: %w", wallet, err)
	}
	return nil
}

// Stats returns the wallet's aggregate performance. A wallet with no settled
// bets gets a zero-valued row rather than ErrNotFound; the query surface
// treats "never bet" and "all open" the same way.
func (s *PnLStore) Stats(ctx context.Context, wallet string) (domain.PnLStats, error) {
	stats := domain.PnLStats{Wallet: wallet}

	var wins int64
	err := s.pool.QueryRow(ctx,
		`SELECT total_pnl, settled_bets, wins FROM wallet_pnl WHERE wallet = $1`,
		wallet).Scan(&stats.TotalPnL, &stats.TotalBets, &wins)
	if errors.Is(err, pgx.ErrNoRows) {
		return stats, nil
	}
	if err != nil {
		return domain.PnLStats{}, fmt.Errorf("postgres: pnl stats for %s: %w", wallet, err)
	}
	if stats.TotalBets > 0 {
		stats.WinRate = float64(wins) / float64(stats.TotalBets) * 100
	}

	streak, err := s.streak(ctx, wallet)
	if err != nil {
		return domain.PnLStats{}, err
	}
	stats.Streak = streak
	return stats, nil
}

// streak counts consecutive winning claims, most recent first.
func (s *PnLStore) streak(ctx context.Context, wallet string) (int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT payout > effective_stake
		 FROM bets
		 WHERE wallet = $1 AND claimed
		 ORDER BY created_at DESC
		 LIMIT 100`,
		wallet)
	if err != nil {
		return 0, fmt.Errorf("postgres: pnl streak for %s: %w", wallet, err)
	}
	defer rows.Close()

	var streak int64
	for rows.Next() {
		var won bool
		if err := rows.Scan(&won); err != nil {
			return 0, fmt.Errorf("postgres: scan streak row: %w", err)
		}
		if !won {
			break
		}
		streak++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("postgres: streak rows: %w", err)
	}
	return streak, nil
}
