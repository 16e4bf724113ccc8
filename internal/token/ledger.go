// Package token provides the in-process fungible-token ledger used by the
// market factory and trading engine: per-market balances, minting at market
// creation, and atomic multi-transfer application.
package token

import (
	"context"
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"github.com/quorumlabs/launchpad/internal/domain"
)

// Ledger implements domain.TokenLedger with in-memory balances guarded by a
// single mutex, so a batch of transfers is observed all-or-nothing.
type Ledger struct {
	mu       sync.RWMutex
	balances map[int64]map[domain.Agent]*uint256.Int
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[int64]map[domain.Agent]*uint256.Int),
	}
}

func (l *Ledger) market(marketID int64) map[domain.Agent]*uint256.Int {
	m, ok := l.balances[marketID]
	if !ok {
		m = make(map[domain.Agent]*uint256.Int)
		l.balances[marketID] = m
	}
	return m
}

// Mint credits newly created tokens to a holder.
func (l *Ledger) Mint(ctx context.Context, marketID int64, to domain.Agent, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Stage into a fresh word; the stored balance must not change on failure.
	next := new(uint256.Int)
	if cur, ok := l.balances[marketID][to]; ok {
		next.Set(cur)
	}
	if _, overflow := next.AddOverflow(next, amount); overflow {
		return fmt.Errorf("token: mint market %d: %w", marketID, domain.ErrArithmeticOverflow)
	}
	l.market(marketID)[to] = next
	return nil
}

// Apply executes a batch of transfers atomically. Every debit is validated
// against current balances before any balance changes; an insufficient
// balance anywhere aborts the whole batch.
func (l *Ledger) Apply(ctx context.Context, transfers []domain.Transfer) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Validate debits against staged balances so multiple transfers from the
	// same holder within one batch are accounted together.
	staged := make(map[int64]map[domain.Agent]*uint256.Int)
	bal := func(marketID int64, holder domain.Agent) *uint256.Int {
		sm, ok := staged[marketID]
		if !ok {
			sm = make(map[domain.Agent]*uint256.Int)
			staged[marketID] = sm
		}
		b, ok := sm[holder]
		if !ok {
			b = new(uint256.Int)
			if cur, exists := l.market(marketID)[holder]; exists {
				b.Set(cur)
			}
			sm[holder] = b
		}
		return b
	}

	for _, t := range transfers {
		from := bal(t.MarketID, t.From)
		if from.Lt(t.Amount) {
			return fmt.Errorf("token: transfer market %d: %w", t.MarketID, domain.ErrInsufficientTokensHeld)
		}
		from.Sub(from, t.Amount)
		to := bal(t.MarketID, t.To)
		if _, overflow := to.AddOverflow(to, t.Amount); overflow {
			return fmt.Errorf("token: transfer market %d: %w", t.MarketID, domain.ErrArithmeticOverflow)
		}
	}

	// Commit staged balances.
	for marketID, sm := range staged {
		m := l.market(marketID)
		for holder, b := range sm {
			m[holder] = b
		}
	}
	return nil
}

// BalanceOf returns a copy of the holder's balance for one market.
func (l *Ledger) BalanceOf(ctx context.Context, marketID int64, holder domain.Agent) (*uint256.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	m, ok := l.balances[marketID]
	if !ok {
		return new(uint256.Int), nil
	}
	bal, ok := m[holder]
	if !ok {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Set(bal), nil
}

// Compile-time interface check.
var _ domain.TokenLedger = (*Ledger)(nil)
