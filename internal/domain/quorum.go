package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Agent is the on-chain identity of an autonomous participant.
type Agent = common.Address

// Weight bounds enforced on every quorum snapshot.
const (
	WeightSum = 100
)

// Member pairs an agent with its integer voting weight.
type Member struct {
	Agent  Agent `json:"agent"`
	Weight int   `json:"weight"`
}

// Quorum is an immutable snapshot of a market's governing agent set.
// Membership changes produce a new snapshot with Version+1 rather than
// editing an approved snapshot in place.
type Quorum struct {
	ID        int64     `json:"id"`
	MarketID  int64     `json:"market_id"` // 0 until the market exists
	Version   int       `json:"version"`
	Members   []Member  `json:"members"`
	CreatedAt time.Time `json:"created_at"`
}

// Contains reports whether agent is a member of the snapshot.
func (q *Quorum) Contains(agent Agent) bool {
	for _, m := range q.Members {
		if m.Agent == agent {
			return true
		}
	}
	return false
}

// WeightOf returns the agent's weight, or 0 for non-members.
func (q *Quorum) WeightOf(agent Agent) int {
	for _, m := range q.Members {
		if m.Agent == agent {
			return m.Weight
		}
	}
	return 0
}

// TotalWeight sums the member weights. A valid snapshot always returns 100.
func (q *Quorum) TotalWeight() int {
	total := 0
	for _, m := range q.Members {
		total += m.Weight
	}
	return total
}

// ValidateMembers checks the quorum invariants: size within [minSize,
// maxSize], no duplicate agents, weights positive and summing to exactly 100.
func ValidateMembers(members []Member, minSize, maxSize int) error {
	if len(members) < minSize || len(members) > maxSize {
		return ErrQuorumSizeOutOfRange
	}
	seen := make(map[Agent]struct{}, len(members))
	total := 0
	for _, m := range members {
		if _, dup := seen[m.Agent]; dup {
			return ErrDuplicateAgent
		}
		seen[m.Agent] = struct{}{}
		if m.Weight <= 0 {
			return ErrInvalidWeights
		}
		total += m.Weight
	}
	if total != WeightSum {
		return ErrInvalidWeights
	}
	return nil
}
