package domain

import (
	"time"

	"github.com/holiman/uint256"
)

// ProposalType enumerates the governance action types.
type ProposalType string

const (
	ProposalQuorumFormation ProposalType = "quorum_formation"
	ProposalAddAgent        ProposalType = "add_agent"
	ProposalRemoveAgent     ProposalType = "remove_agent"
	ProposalTreasurySpend   ProposalType = "treasury_spend"
	ProposalAdjustFees      ProposalType = "adjust_fees"
	ProposalForceGraduate   ProposalType = "force_graduate"
)

// Valid reports whether t is a known proposal type.
func (t ProposalType) Valid() bool {
	switch t {
	case ProposalQuorumFormation, ProposalAddAgent, ProposalRemoveAgent,
		ProposalTreasurySpend, ProposalAdjustFees, ProposalForceGraduate:
		return true
	}
	return false
}

// Unanimous reports whether the type requires every eligible agent to approve.
func (t ProposalType) Unanimous() bool {
	switch t {
	case ProposalQuorumFormation, ProposalAdjustFees, ProposalForceGraduate:
		return true
	}
	return false
}

// ProposalState enumerates the proposal lifecycle states.
type ProposalState string

const (
	ProposalPending  ProposalState = "pending"
	ProposalApproved ProposalState = "approved"
	ProposalRejected ProposalState = "rejected"
	ProposalExecuted ProposalState = "executed"
	ProposalExpired  ProposalState = "expired"
)

// ProposalPayload carries the type-specific action data. Only the fields
// relevant to the proposal's type are populated.
type ProposalPayload struct {
	// QuorumFormation.
	Agents  []Agent `json:"agents,omitempty"`
	Weights []int   `json:"weights,omitempty"`
	Name    string  `json:"name,omitempty"`
	Symbol  string  `json:"symbol,omitempty"`
	Thesis  string  `json:"thesis,omitempty"`

	// AddAgent / RemoveAgent.
	Agent  Agent `json:"agent,omitempty"`
	Weight int   `json:"weight,omitempty"` // AddAgent only

	// TreasurySpend.
	Amount    *uint256.Int `json:"amount,omitempty"`
	Recipient Agent        `json:"recipient,omitempty"`

	// AdjustFees.
	FeeBps uint32 `json:"fee_bps,omitempty"`

	// QuorumFormation market parameters.
	Curve       *CurveParameters `json:"curve,omitempty"`
	TotalSupply *uint256.Int     `json:"total_supply,omitempty"`
}

// Proposal is a typed, time-bounded governance action.
type Proposal struct {
	ID             int64           `json:"id"`
	Type           ProposalType    `json:"type"`
	TargetMarketID int64           `json:"target_market_id,omitempty"` // 0 for formations
	QuorumID       int64           `json:"quorum_id,omitempty"`        // governing snapshot; 0 for formations
	Proposer       Agent           `json:"proposer"`
	Payload        ProposalPayload `json:"payload"`
	Votes          map[Agent]bool  `json:"votes"`
	State          ProposalState   `json:"state"`
	CreatedAt      time.Time       `json:"created_at"`
	VotingEndsAt   time.Time       `json:"voting_ends_at"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
	ExecutedAt     *time.Time      `json:"executed_at,omitempty"`

	// CreatedMarketID records the market spawned by an executed formation.
	CreatedMarketID int64 `json:"created_market_id,omitempty"`
}

// Clone returns a deep copy so vote recording can be staged before persisting.
func (p *Proposal) Clone() *Proposal {
	c := *p
	c.Votes = make(map[Agent]bool, len(p.Votes))
	for a, v := range p.Votes {
		c.Votes[a] = v
	}
	c.Payload.Agents = append([]Agent(nil), p.Payload.Agents...)
	c.Payload.Weights = append([]int(nil), p.Payload.Weights...)
	if p.Payload.Amount != nil {
		c.Payload.Amount = new(uint256.Int).Set(p.Payload.Amount)
	}
	if p.Payload.Curve != nil {
		cc := p.Payload.Curve.Clone()
		c.Payload.Curve = &cc
	}
	if p.Payload.TotalSupply != nil {
		c.Payload.TotalSupply = new(uint256.Int).Set(p.Payload.TotalSupply)
	}
	if p.ResolvedAt != nil {
		t := *p.ResolvedAt
		c.ResolvedAt = &t
	}
	if p.ExecutedAt != nil {
		t := *p.ExecutedAt
		c.ExecutedAt = &t
	}
	return &c
}
