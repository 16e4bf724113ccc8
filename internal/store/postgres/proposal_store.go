package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quorumlabs/launchpad/internal/domain"
)

// ProposalStore implements domain.ProposalStore using PostgreSQL.
type ProposalStore struct {
	pool *pgxpool.Pool
}

// NewProposalStore creates a new ProposalStore backed by the given connection pool.
func NewProposalStore(pool *pgxpool.Pool) *ProposalStore {
	return &ProposalStore{pool: pool}
}

// NextID allocates the next proposal id from the dedicated sequence.
func (s *ProposalStore) NextID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.pool.QueryRow(ctx, "SELECT nextval('proposals_id_seq')").Scan(&id); err != nil {
		return 0, fmt.Errorf("postgres: next proposal id: %w", err)
	}
	return id, nil
}

// Create inserts a new proposal row.
func (s *ProposalStore) Create(ctx context.Context, p *domain.Proposal) error {
	payload, votes, err := marshalProposalJSON(p)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO proposals (
			id, type, target_market_id, quorum_id, proposer,
			payload, votes, state, created_at, voting_ends_at,
			resolved_at, executed_at, created_market_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = s.pool.Exec(ctx, query,
		p.ID, string(p.Type), p.TargetMarketID, p.QuorumID, p.Proposer.Hex(),
		payload, votes, string(p.State), p.CreatedAt, p.VotingEndsAt,
		p.ResolvedAt, p.ExecutedAt, p.CreatedMarketID,
	)
	if err != nil {
		return fmt.Errorf("postgres: create proposal %d: %w", p.ID, err)
	}
	return nil
}

// Update rewrites the mutable columns of an existing proposal.
func (s *ProposalStore) Update(ctx context.Context, p *domain.Proposal) error {
	_, votes, err := marshalProposalJSON(p)
	if err != nil {
		return err
	}

	const query = `
		UPDATE proposals SET
			votes             = $2,
			state             = $3,
			resolved_at       = $4,
			executed_at       = $5,
			created_market_id = $6
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		p.ID, votes, string(p.State), p.ResolvedAt, p.ExecutedAt, p.CreatedMarketID,
	)
	if err != nil {
		return fmt.Errorf("postgres: update proposal %d: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func marshalProposalJSON(p *domain.Proposal) (payload, votes []byte, err error) {
	payload, err = json.Marshal(p.Payload)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: marshal proposal payload: %w", err)
	}
	votes, err = json.Marshal(p.Votes)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: marshal proposal votes: %w", err)
	}
	return payload, votes, nil
}

const proposalCols = `id, type, target_market_id, quorum_id, proposer,
	payload, votes, state, created_at, voting_ends_at,
	resolved_at, executed_at, created_market_id`

func scanProposal(row pgx.Row) (*domain.Proposal, error) {
	var (
		p                domain.Proposal
		typ, state       string
		proposer         string
		payloadB, votesB []byte
	)
	err := row.Scan(
		&p.ID, &typ, &p.TargetMarketID, &p.QuorumID, &proposer,
		&payloadB, &votesB, &state, &p.CreatedAt, &p.VotingEndsAt,
		&p.ResolvedAt, &p.ExecutedAt, &p.CreatedMarketID,
	)
	if err != nil {
		return nil, err
	}
	p.Type = domain.ProposalType(typ)
	p.State = domain.ProposalState(state)
	p.Proposer = common.HexToAddress(proposer)
	if err := json.Unmarshal(payloadB, &p.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	p.Votes = make(map[domain.Agent]bool)
	if err := json.Unmarshal(votesB, &p.Votes); err != nil {
		return nil, fmt.Errorf("unmarshal votes: %w", err)
	}
	return &p, nil
}

// GetByID retrieves a proposal by its primary key.
func (s *ProposalStore) GetByID(ctx context.Context, id int64) (*domain.Proposal, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+proposalCols+` FROM proposals WHERE id = $1`, id)
	p, err := scanProposal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get proposal %d: %w", id, err)
	}
	return p, nil
}

// List returns proposals ordered newest first.
func (s *ProposalStore) List(ctx context.Context, opts domain.ListOpts) ([]*domain.Proposal, error) {
	return s.list(ctx, "", 0, opts)
}

// ListByMarket returns proposals targeting one market, ordered newest first.
func (s *ProposalStore) ListByMarket(ctx context.Context, marketID int64, opts domain.ListOpts) ([]*domain.Proposal, error) {
	return s.list(ctx, " AND target_market_id = $%d", marketID, opts)
}

func (s *ProposalStore) list(ctx context.Context, marketFilter string, marketID int64, opts domain.ListOpts) ([]*domain.Proposal, error) {
	query := `SELECT ` + proposalCols + ` FROM proposals WHERE TRUE`
	args := []any{}
	argIdx := 1

	if marketFilter != "" {
		query += fmt.Sprintf(marketFilter, argIdx)
		args = append(args, marketID)
		argIdx++
	}
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
		return nil, fmt.Errorf("postgres: list proposals: %w", err)
	}
	defer rows.Close()

	var proposals []*domain.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan proposal: %w", err)
		}
		proposals = append(proposals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list proposals rows: %w", err)
	}
	return proposals, nil
}

var _ domain.ProposalStore = (*ProposalStore)(nil)
