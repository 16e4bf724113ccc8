package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quorumlabs/launchpad/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// NextID allocates the next market id from the dedicated sequence.
func (s *MarketStore) NextID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.pool.QueryRow(ctx, "SELECT nextval('markets_id_seq')").Scan(&id); err != nil {
		return 0, fmt.Errorf("postgres: next market id: %w", err)
	}
	return id, nil
}

// Create inserts a new market row.
func (s *MarketStore) Create(ctx context.Context, m *domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, quorum_id, name, symbol, thesis,
			base_price, slope, target_raise, total_supply,
			quorum_allocation, curve_allocation, treasury_allocation,
			tokens_sold, value_raised, reserve, treasury_value,
			fee_bps, graduated, created_at, graduated_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6::numeric, $7::numeric, $8::numeric, $9::numeric,
			$10::numeric, $11::numeric, $12::numeric,
			$13::numeric, $14::numeric, $15::numeric, $16::numeric,
			$17, $18, $19, $20, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		m.ID, m.QuorumID, m.Name, m.Symbol, m.Thesis,
		m.Curve.BasePrice.Dec(), m.Curve.Slope.Dec(), m.Curve.TargetRaise.Dec(), m.TotalSupply.Dec(),
		m.QuorumAllocation.Dec(), m.CurveAllocation.Dec(), m.TreasuryAllocation.Dec(),
		m.TokensSold.Dec(), m.ValueRaised.Dec(), m.Reserve.Dec(), m.TreasuryValue.Dec(),
		int32(m.FeeBps), m.Graduated, m.CreatedAt, m.GraduatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create market %d: %w", m.ID, err)
	}
	return nil
}

// Update rewrites the mutable columns of an existing market.
func (s *MarketStore) Update(ctx context.Context, m *domain.Market) error {
	const query = `
		UPDATE markets SET
			quorum_id      = $2,
			tokens_sold    = $3::numeric,
			value_raised   = $4::numeric,
			reserve        = $5::numeric,
			treasury_value = $6::numeric,
			fee_bps        = $7,
			graduated      = $8,
			graduated_at   = $9,
			updated_at     = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		m.ID, m.QuorumID,
		m.TokensSold.Dec(), m.ValueRaised.Dec(), m.Reserve.Dec(), m.TreasuryValue.Dec(),
		int32(m.FeeBps), m.Graduated, m.GraduatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update market %d: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const marketCols = `id, quorum_id, name, symbol, thesis,
	base_price::text, slope::text, target_raise::text, total_supply::text,
	quorum_allocation::text, curve_allocation::text, treasury_allocation::text,
	tokens_sold::text, value_raised::text, reserve::text, treasury_value::text,
	fee_bps, graduated, created_at, graduated_at`

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (*domain.Market, error) {
	var (
		m      domain.Market
		feeBps int32
		amts   [11]string
	)
	err := row.Scan(
		&m.ID, &m.QuorumID, &m.Name, &m.Symbol, &m.Thesis,
		&amts[0], &amts[1], &amts[2], &amts[3],
		&amts[4], &amts[5], &amts[6],
		&amts[7], &amts[8], &amts[9], &amts[10],
		&feeBps, &m.Graduated, &m.CreatedAt, &m.GraduatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.FeeBps = uint32(feeBps)

	dsts := []struct {
		name string
		dst  **uint256.Int
	}{
		{"base_price", &m.Curve.BasePrice}, {"slope", &m.Curve.Slope},
		{"target_raise", &m.Curve.TargetRaise}, {"total_supply", &m.TotalSupply},
		{"quorum_allocation", &m.QuorumAllocation}, {"curve_allocation", &m.CurveAllocation},
		{"treasury_allocation", &m.TreasuryAllocation},
		{"tokens_sold", &m.TokensSold}, {"value_raised", &m.ValueRaised},
		{"reserve", &m.Reserve}, {"treasury_value", &m.TreasuryValue},
	}
	for i, d := range dsts {
		v, err := amountFromDec(amts[i])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", d.name, err)
		}
		*d.dst = v
	}
	return &m, nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id int64) (*domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get market %d: %w", id, err)
	}
	return m, nil
}

// List returns markets ordered newest first, with pagination and optional
// time filtering.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]*domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE TRUE`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []*domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets in the database.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

var _ domain.MarketStore = (*MarketStore)(nil)
