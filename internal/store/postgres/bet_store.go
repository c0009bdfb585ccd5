package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/candlefi/candle-markets/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a new BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

var _ domain.BetStore = (*BetStore)(nil)

const betCols = `id, wallet, market_id, side, amount, weight,
	effective_stake, payout, claimed, created_at`

// Insert stores a newly confirmed bet. The (wallet, market_id) unique
// constraint mirrors the ledger's one-bet-per-market rule.
func (s *BetStore) Insert(ctx context.Context, b domain.Bet) error {
	const query = `
		INSERT INTO bets (
			wallet, market_id, side, amount, weight,
			effective_stake, payout, claimed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	var payout *int64
	if b.Payout != nil {
		v := int64(*b.Payout)
		payout = &v
	}
	_, err := s.pool.Exec(ctx, query,
		b.Wallet, int64(b.MarketID), string(b.Side),
		int64(b.Amount), int64(b.Weight), int64(b.EffectiveStake),
		payout, b.Claimed,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: insert bet %s/%d: %w", b.Wallet, b.MarketID, err)
	}
	return nil
}

func scanBet(row pgx.Row) (domain.Bet, error) {
	var b domain.Bet
	var marketID, amount, weight, effectiveStake int64
	var side string
	var payout *int64
	err := row.Scan(
		&b.ID, &b.Wallet, &marketID, &side, &amount, &weight,
		&effectiveStake, &payout, &b.Claimed, &b.CreatedAt,
	)
	if err != nil {
		return domain.Bet{}, err
	}
	b.MarketID = uint64(marketID)
	b.Side = domain.Side(side)
	b.Amount = uint64(amount)
	b.Weight = uint64(weight)
	b.EffectiveStake = uint64(effectiveStake)
	if payout != nil {
		v := uint64(*payout)
		b.Payout = &v
	}
	return b, nil
}

// Get retrieves one wallet's bet on one market.
func (s *BetStore) Get(ctx context.Context, wallet string, marketID uint64) (domain.Bet, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+betCols+` FROM bets WHERE wallet = $1 AND market_id = $2`,
		wallet, int64(marketID))
	b, err := scanBet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bet{}, domain.ErrNotFound
		}
		return domain.Bet{}, fmt.Errorf("postgres: get bet %s/%d: %w", wallet, marketID, err)
	}
	return b, nil
}

// ListByWallet returns a wallet's bets, newest first.
func (s *BetStore) ListByWallet(ctx context.Context, wallet string) ([]domain.Bet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+betCols+` FROM bets WHERE wallet = $1 ORDER BY created_at DESC`,
		wallet)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for %s: %w", wallet, err)
	}
	return collectBets(rows)
}

// ListByMarket returns every bet on one market.
func (s *BetStore) ListByMarket(ctx context.Context, marketID uint64) ([]domain.Bet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+betCols+` FROM bets WHERE market_id = $1 ORDER BY created_at ASC`,
		int64(marketID))
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for market %d: %w", marketID, err)
	}
	return collectBets(rows)
}

// MarkClaimed sets claimed and records the payout. The NOT claimed guard makes
// replays visible even when two claim requests race: the loser of the race
// updates zero rows and gets ErrAlreadyClaimed.
func (s *BetStore) MarkClaimed(ctx context.Context, wallet string, marketID uint64, payout uint64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bets SET payout = $3, claimed = TRUE
		 WHERE wallet = $1 AND market_id = $2 AND NOT claimed`,
		wallet, int64(marketID), int64(payout))
	if err != nil {
		return fmt.Errorf("postgres: mark bet %s/%d claimed: %w", wallet, marketID, err)
	}
	if tag.RowsAffected() == 0 {
		var claimed bool
		err := s.pool.QueryRow(ctx,
			`SELECT claimed FROM bets WHERE wallet = $1 AND market_id = $2`,
			wallet, int64(marketID)).Scan(&claimed)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("postgres: mark bet %s/%d claimed: %w", wallet, marketID, err)
		}
		if claimed {
			return domain.ErrAlreadyClaimed
		}
	}
	return nil
}

func collectBets(rows pgx.Rows) ([]domain.Bet, error) {
	defer rows.Close()
	var bets []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: bet rows: %w", err)
	}
	return bets, nil
}
