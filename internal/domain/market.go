package domain

import (
	"time"

	"github.com/holiman/uint256"
)

// CurveParameters are the immutable bonding-curve coefficients of a market.
// All values are fixed-point integers scaled by 1e18.
type CurveParameters struct {
	BasePrice   *uint256.Int `json:"base_price"`
	Slope       *uint256.Int `json:"slope"`
	TargetRaise *uint256.Int `json:"target_raise"`
}

// Clone returns a deep copy of the parameters.
func (p CurveParameters) Clone() CurveParameters {
	return CurveParameters{
		BasePrice:   new(uint256.Int).Set(p.BasePrice),
		Slope:       new(uint256.Int).Set(p.Slope),
		TargetRaise: new(uint256.Int).Set(p.TargetRaise),
	}
}

// Market is the mutable record of one bonding-curve market.
//
// TokensSold decreases only on sells and never drops below zero. ValueRaised
// is gross and monotone non-decreasing until graduation; sells reduce Reserve
// but never ValueRaised, so the graduation trigger is one-way. Graduated is
// set exactly once.
type Market struct {
	ID       int64  `json:"id"`
	QuorumID int64  `json:"quorum_id"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Thesis   string `json:"thesis"`

	Curve       CurveParameters `json:"curve"`
	TotalSupply *uint256.Int    `json:"total_supply"`

	// Ownership split fixed at creation.
	QuorumAllocation   *uint256.Int `json:"quorum_allocation"`
	CurveAllocation    *uint256.Int `json:"curve_allocation"`
	TreasuryAllocation *uint256.Int `json:"treasury_allocation"`

	TokensSold  *uint256.Int `json:"tokens_sold"`
	ValueRaised *uint256.Int `json:"value_raised"`

	// Reserve is the value backing curve sells: net buy proceeds in, sale
	// payouts out. Distinct from ValueRaised, which only grows.
	Reserve *uint256.Int `json:"reserve"`

	// TreasuryValue accumulates trading fees and is spendable through
	// TreasurySpend proposals.
	TreasuryValue *uint256.Int `json:"treasury_value"`

	FeeBps      uint32     `json:"fee_bps"`
	Graduated   bool       `json:"graduated"`
	CreatedAt   time.Time  `json:"created_at"`
	GraduatedAt *time.Time `json:"graduated_at,omitempty"`
}

// Clone returns a deep copy so mutations can be staged and discarded on
// failure without touching the stored record.
func (m *Market) Clone() *Market {
	c := *m
	c.Curve = m.Curve.Clone()
	c.TotalSupply = new(uint256.Int).Set(m.TotalSupply)
	c.QuorumAllocation = new(uint256.Int).Set(m.QuorumAllocation)
	c.CurveAllocation = new(uint256.Int).Set(m.CurveAllocation)
	c.TreasuryAllocation = new(uint256.Int).Set(m.TreasuryAllocation)
	c.TokensSold = new(uint256.Int).Set(m.TokensSold)
	c.ValueRaised = new(uint256.Int).Set(m.ValueRaised)
	c.Reserve = new(uint256.Int).Set(m.Reserve)
	c.TreasuryValue = new(uint256.Int).Set(m.TreasuryValue)
	if m.GraduatedAt != nil {
		t := *m.GraduatedAt
		c.GraduatedAt = &t
	}
	return &c
}

// TradeSide distinguishes buys from sells in trade records.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// Trade is a single executed fill against a market's curve.
type Trade struct {
	ID        string       `json:"id"` // uuid
	MarketID  int64        `json:"market_id"`
	Agent     Agent        `json:"agent"`
	Side      TradeSide    `json:"side"`
	Tokens    *uint256.Int `json:"tokens"`
	Value     *uint256.Int `json:"value"` // gross value in (buy) or net value out (sell)
	Fee       *uint256.Int `json:"fee"`
	CreatedAt time.Time    `json:"created_at"`
}
