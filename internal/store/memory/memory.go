// Package memory implements the domain store interfaces with in-process maps.
// It backs the "memory" operating mode and the engine tests; the postgres
// package provides the durable equivalents for the "full" mode.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/quorumlabs/launchpad/internal/domain"
)

// MarketStore is an in-memory domain.MarketStore.
type MarketStore struct {
	mu     sync.RWMutex
	nextID int64
	items  map[int64]*domain.Market
}

// NewMarketStore creates an empty MarketStore.
func NewMarketStore() *MarketStore {
	return &MarketStore{items: make(map[int64]*domain.Market)}
}

func (s *MarketStore) NextID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID, nil
}

func (s *MarketStore) Create(ctx context.Context, m *domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[m.ID]; exists {
		return domain.ErrAlreadyExists
	}
	s.items[m.ID] = m.Clone()
	return nil
}

func (s *MarketStore) Update(ctx context.Context, m *domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[m.ID]; !exists {
		return domain.ErrNotFound
	}
	s.items[m.ID] = m.Clone()
	return nil
}

func (s *MarketStore) GetByID(ctx context.Context, id int64) (*domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return m.Clone(), nil
}

func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]*domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Market, 0, len(s.items))
	for _, m := range s.items {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, opts), nil
}

func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.items)), nil
}

// QuorumStore is an in-memory domain.QuorumStore.
type QuorumStore struct {
	mu     sync.RWMutex
	nextID int64
	items  map[int64]*domain.Quorum
}

// NewQuorumStore creates an empty QuorumStore.
func NewQuorumStore() *QuorumStore {
	return &QuorumStore{items: make(map[int64]*domain.Quorum)}
}

func (s *QuorumStore) NextID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID, nil
}

func (s *QuorumStore) Create(ctx context.Context, q *domain.Quorum) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[q.ID]; exists {
		return domain.ErrAlreadyExists
	}
	cp := *q
	cp.Members = append([]domain.Member(nil), q.Members...)
	s.items[q.ID] = &cp
	return nil
}

func (s *QuorumStore) GetByID(ctx context.Context, id int64) (*domain.Quorum, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *q
	cp.Members = append([]domain.Member(nil), q.Members...)
	return &cp, nil
}

func (s *QuorumStore) GetCurrent(ctx context.Context, marketID int64) (*domain.Quorum, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *domain.Quorum
	for _, q := range s.items {
		if q.MarketID != marketID {
			continue
		}
		if best == nil || q.Version > best.Version {
			best = q
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	cp := *best
	cp.Members = append([]domain.Member(nil), best.Members...)
	return &cp, nil
}

// ProposalStore is an in-memory domain.ProposalStore.
type ProposalStore struct {
	mu     sync.RWMutex
	nextID int64
	items  map[int64]*domain.Proposal
}

// NewProposalStore creates an empty ProposalStore.
func NewProposalStore() *ProposalStore {
	return &ProposalStore{items: make(map[int64]*domain.Proposal)}
}

func (s *ProposalStore) NextID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID, nil
}

func (s *ProposalStore) Create(ctx context.Context, p *domain.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[p.ID]; exists {
		return domain.ErrAlreadyExists
	}
	s.items[p.ID] = p.Clone()
	return nil
}

func (s *ProposalStore) Update(ctx context.Context, p *domain.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[p.ID]; !exists {
		return domain.ErrNotFound
	}
	s.items[p.ID] = p.Clone()
	return nil
}

func (s *ProposalStore) GetByID(ctx context.Context, id int64) (*domain.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (s *ProposalStore) List(ctx context.Context, opts domain.ListOpts) ([]*domain.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Proposal, 0, len(s.items))
	for _, p := range s.items {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, opts), nil
}

func (s *ProposalStore) ListByMarket(ctx context.Context, marketID int64, opts domain.ListOpts) ([]*domain.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Proposal
	for _, p := range s.items {
		if p.TargetMarketID == marketID {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, opts), nil
}

// TradeStore is an in-memory domain.TradeStore.
type TradeStore struct {
	mu    sync.RWMutex
	items []domain.Trade
}

// NewTradeStore creates an empty TradeStore.
func NewTradeStore() *TradeStore {
	return &TradeStore{}
}

func (s *TradeStore) Insert(ctx context.Context, t domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, t)
	return nil
}

func (s *TradeStore) ListByMarket(ctx context.Context, marketID int64, opts domain.ListOpts) ([]domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Trade
	for _, t := range s.items {
		if t.MarketID == marketID {
			out = append(out, t)
		}
	}
	return paginate(out, opts), nil
}

func (s *TradeStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Trade
	for _, t := range s.items {
		if t.CreatedAt.Before(cutoff) {
			out = append(out, t)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *TradeStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.items[:0]
	var removed int64
	for _, t := range s.items {
		if t.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	s.items = kept
	return removed, nil
}

// AuditStore is an in-memory domain.AuditStore.
type AuditStore struct {
	mu     sync.RWMutex
	nextID int64
	items  []domain.AuditEntry
}

// NewAuditStore creates an empty AuditStore.
func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.items = append(s.items, domain.AuditEntry{
		ID:        s.nextID,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]domain.AuditEntry(nil), s.items...)
	return paginate(out, opts), nil
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

// Compile-time interface checks.
var (
	_ domain.MarketStore   = (*MarketStore)(nil)
	_ domain.QuorumStore   = (*QuorumStore)(nil)
	_ domain.ProposalStore = (*ProposalStore)(nil)
	_ domain.TradeStore    = (*TradeStore)(nil)
	_ domain.AuditStore    = (*AuditStore)(nil)
)
