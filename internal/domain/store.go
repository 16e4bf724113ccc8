package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists market records keyed by monotonically assigned ids.
type MarketStore interface {
	// NextID allocates the next market id.
	NextID(ctx context.Context) (int64, error)
	Create(ctx context.Context, m *Market) error
	Update(ctx context.Context, m *Market) error
	GetByID(ctx context.Context, id int64) (*Market, error)
	List(ctx context.Context, opts ListOpts) ([]*Market, error)
	Count(ctx context.Context) (int64, error)
}

// QuorumStore persists quorum snapshots.
type QuorumStore interface {
	NextID(ctx context.Context) (int64, error)
	Create(ctx context.Context, q *Quorum) error
	GetByID(ctx context.Context, id int64) (*Quorum, error)
	// GetCurrent returns the highest-version snapshot for a market.
	GetCurrent(ctx context.Context, marketID int64) (*Quorum, error)
}

// ProposalStore persists proposals.
type ProposalStore interface {
	NextID(ctx context.Context) (int64, error)
	Create(ctx context.Context, p *Proposal) error
	Update(ctx context.Context, p *Proposal) error
	GetByID(ctx context.Context, id int64) (*Proposal, error)
	List(ctx context.Context, opts ListOpts) ([]*Proposal, error)
	ListByMarket(ctx context.Context, marketID int64, opts ListOpts) ([]*Proposal, error)
}

// TradeStore persists executed fills.
type TradeStore interface {
	Insert(ctx context.Context, t Trade) error
	ListByMarket(ctx context.Context, marketID int64, opts ListOpts) ([]Trade, error)
	// ListBefore returns trades older than cutoff, for archival.
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]Trade, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
