package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quorumlabs/launchpad/internal/domain"
)

// QuorumStore implements domain.QuorumStore using PostgreSQL. Snapshots are
// append-only: membership changes insert a new row with a higher version.
type QuorumStore struct {
	pool *pgxpool.Pool
}

// NewQuorumStore creates a new QuorumStore backed by the given connection pool.
func NewQuorumStore(pool *pgxpool.Pool) *QuorumStore {
	return &QuorumStore{pool: pool}
}

// NextID allocates the next quorum id from the dedicated sequence.
func (s *QuorumStore) NextID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.pool.QueryRow(ctx, "SELECT nextval('quorums_id_seq')").Scan(&id); err != nil {
		return 0, fmt.Errorf("postgres: next quorum id: %w", err)
	}
	return id, nil
}

// Create inserts a quorum snapshot.
func (s *QuorumStore) Create(ctx context.Context, q *domain.Quorum) error {
	members, err := json.Marshal(q.Members)
	if err != nil {
		return fmt.Errorf("postgres: marshal quorum members: %w", err)
	}

	const query = `
		INSERT INTO quorums (id, market_id, version, members, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.pool.Exec(ctx, query, q.ID, q.MarketID, q.Version, members, q.CreatedAt); err != nil {
		return fmt.Errorf("postgres: create quorum %d: %w", q.ID, err)
	}
	return nil
}

const quorumCols = `id, market_id, version, members, created_at`

func scanQuorum(row pgx.Row) (*domain.Quorum, error) {
	var (
		q       domain.Quorum
		members []byte
	)
	if err := row.Scan(&q.ID, &q.MarketID, &q.Version, &members, &q.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(members, &q.Members); err != nil {
		return nil, fmt.Errorf("unmarshal members: %w", err)
	}
	return &q, nil
}

// GetByID retrieves one snapshot by its primary key.
func (s *QuorumStore) GetByID(ctx context.Context, id int64) (*domain.Quorum, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+quorumCols+` FROM quorums WHERE id = $1`, id)
	q, err := scanQuorum(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get quorum %d: %w", id, err)
	}
	return q, nil
}

// GetCurrent returns the highest-version snapshot for a market.
func (s *QuorumStore) GetCurrent(ctx context.Context, marketID int64) (*domain.Quorum, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+quorumCols+` FROM quorums WHERE market_id = $1 ORDER BY version DESC LIMIT 1`,
		marketID)
	q, err := scanQuorum(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: current quorum for market %d: %w", marketID, err)
	}
	return q, nil
}

var _ domain.QuorumStore = (*QuorumStore)(nil)
