package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/candlefi/candle-markets/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

var _ domain.MarketStore = (*MarketStore)(nil)

const marketCols = `market_id, asset, start_time, end_time, lock_time,
	open_price, close_price, green_pool, red_pool, virtual_liquidity,
	settled, created_at`

// Insert stores a newly created market row.
func (s *MarketStore) Insert(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			market_id, asset, start_time, end_time, lock_time,
			open_price, close_price, green_pool, red_pool,
			virtual_liquidity, settled
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	var closePrice *int64
	if m.ClosePrice != nil {
		v := int64(*m.ClosePrice)
		closePrice = &v
	}
	_, err := s.pool.Exec(ctx, query,
		int64(m.MarketID), m.Asset, m.StartTime, m.EndTime, m.LockTime,
		int64(m.OpenPrice), closePrice,
		int64(m.GreenPool), int64(m.RedPool),
		int64(m.VirtualLiquidity), m.Settled,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: insert market %d: %w", m.MarketID, err)
	}
	return nil
}

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var marketID, openPrice, greenPool, redPool, vliq int64
	var closePrice *int64
	err := row.Scan(
		&marketID, &m.Asset, &m.StartTime, &m.EndTime, &m.LockTime,
		&openPrice, &closePrice, &greenPool, &redPool, &vliq,
		&m.Settled, &m.CreatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.MarketID = uint64(marketID)
	m.OpenPrice = uint64(openPrice)
	m.GreenPool = uint64(greenPool)
	m.RedPool = uint64(redPool)
	m.VirtualLiquidity = uint64(vliq)
	if closePrice != nil {
		v := uint64(*closePrice)
		m.ClosePrice = &v
	}
	return m, nil
}

// GetByID retrieves a market by its deterministic id.
func (s *MarketStore) GetByID(ctx context.Context, marketID uint64) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE market_id = $1`, int64(marketID))
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %d: %w", marketID, err)
	}
	return m, nil
}

// Latest retrieves the market with the most recent start time.
func (s *MarketStore) Latest(ctx context.Context) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets ORDER BY start_time DESC LIMIT 1`)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: latest market: %w", err)
	}
	return m, nil
}

// ListActive returns unsettled markets, newest first.
func (s *MarketStore) ListActive(ctx context.Context) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketCols+` FROM markets WHERE NOT settled ORDER BY start_time DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active markets: %w", err)
	}
	return collectMarkets(rows)
}

// ListExpiredUnsettled returns markets past end_time that still await
// settlement, oldest first so backlogs drain in order.
func (s *MarketStore) ListExpiredUnsettled(ctx context.Context, now time.Time) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketCols+` FROM markets
		 WHERE NOT settled AND end_time <= $1
		 ORDER BY end_time ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("postgres: list expired unsettled: %w", err)
	}
	return collectMarkets(rows)
}

// ListSettledBefore returns settled, not yet archived markets that ended
// before the cutoff, oldest first, for archival.
func (s *MarketStore) ListSettledBefore(ctx context.Context, before time.Time, limit int) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketCols+` FROM markets
		 WHERE settled AND archived_at IS NULL AND end_time < $1
		 ORDER BY end_time ASC
		 LIMIT $2`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled before %s: %w", before, err)
	}
	return collectMarkets(rows)
}

// MarkArchived stamps the row once its cold copy is uploaded, removing it
// from future archive passes. The row itself stays; the mirror is never the
// only copy of anything, but it is still the query surface.
func (s *MarketStore) MarkArchived(ctx context.Context, marketID uint64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET archived_at = NOW(), updated_at = NOW()
		 WHERE market_id = $1 AND archived_at IS NULL`, int64(marketID))
	if err != nil {
		return fmt.Errorf("postgres: mark market %d archived: %w", marketID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkSettled records the close price and flips settled. The WHERE clause
// keeps it monotonic: a settled row is never rewritten.
func (s *MarketStore) MarkSettled(ctx context.Context, marketID uint64, closePrice uint64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets
		 SET close_price = $2, settled = TRUE, updated_at = NOW()
		 WHERE market_id = $1 AND NOT settled`,
		int64(marketID), int64(closePrice))
	if err != nil {
		return fmt.Errorf("postgres: mark market %d settled: %w", marketID, err)
	}
	if tag.RowsAffected() == 0 {
		var settled bool
		err := s.pool.QueryRow(ctx,
			`SELECT settled FROM markets WHERE market_id = $1`, int64(marketID)).Scan(&settled)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("postgres: mark market %d settled: %w", marketID, err)
		}
		if settled {
			return domain.ErrAlreadySettled
		}
	}
	return nil
}

// UpdatePools overwrites the weighted pool totals with ledger-confirmed values.
func (s *MarketStore) UpdatePools(ctx context.Context, marketID uint64, greenPool, redPool uint64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET green_pool = $2, red_pool = $3, updated_at = NOW()
		 WHERE market_id = $1`,
		int64(marketID), int64(greenPool), int64(redPool))
	if err != nil {
		return fmt.Errorf("postgres: update pools for market %d: %w", marketID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func collectMarkets(rows pgx.Rows) ([]domain.Market, error) {
	defer rows.Close()
	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: market rows: %w", err)
	}
	return markets, nil
}
