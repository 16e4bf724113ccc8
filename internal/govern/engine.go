// Package govern implements the proposal state machine: typed proposals,
// weighted and unanimous approval thresholds, voting and execution windows,
// and the automatic market creation that follows a fully approved quorum
// formation. The engine holds a one-way capability on the market factory.
package govern

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/quorumlabs/launchpad/internal/domain"
)

const bpsDenominator = 10_000

// Config carries the governance tunables, injected rather than compiled in so
// instances and tests can vary them.
type Config struct {
	VotingWindow         time.Duration // default 72h
	ExecutionWindow      time.Duration // default 168h
	ApprovalThresholdBps int           // default 6666 (2/3)
	MinQuorumSize        int
	MaxQuorumSize        int

	// Market parameters a formation proposal receives when its payload does
	// not override them.
	DefaultBasePrice   *uint256.Int
	DefaultSlope       *uint256.Int
	DefaultTargetRaise *uint256.Int
	DefaultTotalSupply *uint256.Int
}

// DefaultConfig returns the standard governance parameters.
func DefaultConfig() Config {
	return Config{
		VotingWindow:         72 * time.Hour,
		ExecutionWindow:      168 * time.Hour,
		ApprovalThresholdBps: 6666,
		MinQuorumSize:        3,
		MaxQuorumSize:        10,
		DefaultBasePrice:     uint256.NewInt(1e14), // 0.0001
		DefaultSlope:         uint256.NewInt(1e10), // 0.00000001
		DefaultTargetRaise:   new(uint256.Int).Mul(uint256.NewInt(10), uint256.NewInt(1e18)),
		DefaultTotalSupply:   new(uint256.Int).Mul(uint256.NewInt(1_000_000_000), uint256.NewInt(1e18)),
	}
}

// Engine runs the proposal lifecycle. Proposal mutations are serialized
// per proposal; the formation side effect (market creation) completes inside
// the approving vote call, before that call returns.
type Engine struct {
	cfg       Config
	proposals domain.ProposalStore
	quorums   domain.QuorumStore
	markets   domain.MarketAdmin
	audit     domain.AuditStore
	bus       domain.SignalBus // optional
	logger    *slog.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex

	now func() time.Time
}

// NewEngine creates an Engine. bus may be nil.
func NewEngine(
	cfg Config,
	proposals domain.ProposalStore,
	quorums domain.QuorumStore,
	markets domain.MarketAdmin,
	audit domain.AuditStore,
	bus domain.SignalBus,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		cfg:       cfg,
		proposals: proposals,
		quorums:   quorums,
		markets:   markets,
		audit:     audit,
		bus:       bus,
		logger:    logger.With(slog.String("component", "govern")),
		locks:     make(map[int64]*sync.Mutex),
		now:       time.Now,
	}
}

func (e *Engine) lock(proposalID int64) func() {
	e.mu.Lock()
	l, ok := e.locks[proposalID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[proposalID] = l
	}
	e.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// ProposeQuorum opens a quorum-formation proposal. The proposer must be one
// of the proposed agents; weights must be positive integers summing to 100.
func (e *Engine) ProposeQuorum(ctx context.Context, proposer domain.Agent, payload domain.ProposalPayload) (*domain.Proposal, error) {
	if len(payload.Agents) != len(payload.Weights) {
		return nil, fmt.Errorf("govern: propose quorum: %w", domain.ErrInvalidWeights)
	}
	members := make([]domain.Member, len(payload.Agents))
	for i, a := range payload.Agents {
		members[i] = domain.Member{Agent: a, Weight: payload.Weights[i]}
	}
	if err := domain.ValidateMembers(members, e.cfg.MinQuorumSize, e.cfg.MaxQuorumSize); err != nil {
		return nil, fmt.Errorf("govern: propose quorum: %w", err)
	}
	found := false
	for _, a := range payload.Agents {
		if a == proposer {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("govern: propose quorum: proposer not in agent set: %w", domain.ErrNotEligibleVoter)
	}

	return e.create(ctx, domain.ProposalQuorumFormation, 0, 0, proposer, payload)
}

// Propose opens a proposal targeting an existing market. The proposer must
// belong to the market's current quorum snapshot.
func (e *Engine) Propose(ctx context.Context, typ domain.ProposalType, targetMarketID int64, proposer domain.Agent, payload domain.ProposalPayload) (*domain.Proposal, error) {
	if !typ.Valid() || typ == domain.ProposalQuorumFormation {
		return nil, fmt.Errorf("govern: propose: unsupported type %q", typ)
	}

	quorum, err := e.quorums.GetCurrent(ctx, targetMarketID)
	if err != nil {
		return nil, fmt.Errorf("govern: propose: quorum for market %d: %w", targetMarketID, err)
	}
	if !quorum.Contains(proposer) {
		return nil, fmt.Errorf("govern: propose: %w", domain.ErrNotEligibleVoter)
	}

	switch typ {
	case domain.ProposalAddAgent:
		if quorum.Contains(payload.Agent) {
			return nil, fmt.Errorf("govern: propose add: %w", domain.ErrDuplicateAgent)
		}
		if len(quorum.Members)+1 > e.cfg.MaxQuorumSize {
			return nil, fmt.Errorf("govern: propose add: %w", domain.ErrQuorumSizeOutOfRange)
		}
		if payload.Weight <= 0 || payload.Weight >= domain.WeightSum {
			return nil, fmt.Errorf("govern: propose add: %w", domain.ErrInvalidWeights)
		}
	case domain.ProposalRemoveAgent:
		if !quorum.Contains(payload.Agent) {
			return nil, fmt.Errorf("govern: propose remove: agent not a member: %w", domain.ErrNotEligibleVoter)
		}
		if len(quorum.Members)-1 < e.cfg.MinQuorumSize {
			return nil, fmt.Errorf("govern: propose remove: %w", domain.ErrQuorumSizeOutOfRange)
		}
	case domain.ProposalTreasurySpend:
		if payload.Amount == nil || payload.Amount.IsZero() {
			return nil, fmt.Errorf("govern: propose spend: amount must be positive")
		}
		if payload.Recipient == (domain.Agent{}) {
			return nil, fmt.Errorf("govern: propose spend: recipient required")
		}
	case domain.ProposalAdjustFees:
		if payload.FeeBps > bpsDenominator {
			return nil, fmt.Errorf("govern: propose fees: fee above 100%%")
		}
	case domain.ProposalForceGraduate:
		// No payload.
	}

	return e.create(ctx, typ, targetMarketID, quorum.ID, proposer, payload)
}

func (e *Engine) create(ctx context.Context, typ domain.ProposalType, marketID, quorumID int64, proposer domain.Agent, payload domain.ProposalPayload) (*domain.Proposal, error) {
	id, err := e.proposals.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("govern: allocate proposal id: %w", err)
	}
	now := e.now().UTC()
	p := &domain.Proposal{
		ID:             id,
		Type:           typ,
		TargetMarketID: marketID,
		QuorumID:       quorumID,
		Proposer:       proposer,
		Payload:        payload,
		Votes:          make(map[domain.Agent]bool),
		State:          domain.ProposalPending,
		CreatedAt:      now,
		VotingEndsAt:   now.Add(e.cfg.VotingWindow),
	}
	if err := e.proposals.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("govern: store proposal: %w", err)
	}

	e.auditLog(ctx, "proposal_created", map[string]any{
		"proposal_id": p.ID,
		"type":        string(p.Type),
		"market_id":   p.TargetMarketID,
	})
	e.publish(ctx, map[string]any{
		"event":       "proposal_created",
		"proposal_id": p.ID,
		"type":        string(p.Type),
	})
	e.logger.InfoContext(ctx, "govern: proposal created",
		slog.Int64("proposal_id", p.ID),
		slog.String("type", string(p.Type)),
	)
	return p.Clone(), nil
}

// Vote records one agent's vote. Thresholds are re-evaluated on every vote so
// unanimous proposals resolve the instant the last required approval lands;
// a fully approved formation creates its market before this call returns.
func (e *Engine) Vote(ctx context.Context, proposalID int64, agent domain.Agent, support bool) (*domain.Proposal, error) {
	unlock := e.lock(proposalID)
	defer unlock()

	p, err := e.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("govern: vote %d: %w", proposalID, err)
	}

	if err := e.resolveIfDue(ctx, p); err != nil {
		return nil, err
	}
	if p.State != domain.ProposalPending {
		return nil, domain.ErrVotingWindowClosed
	}
	if e.now().UTC().After(p.VotingEndsAt) {
		return nil, domain.ErrVotingWindowClosed
	}

	eligible, denominator, err := e.electorate(ctx, p)
	if err != nil {
		return nil, err
	}
	if _, ok := eligible[agent]; !ok {
		return nil, domain.ErrNotEligibleVoter
	}
	if _, voted := p.Votes[agent]; voted {
		return nil, domain.ErrAlreadyVoted
	}

	p.Votes[agent] = support
	if err := e.evaluate(ctx, p, eligible, denominator, false); err != nil {
		return nil, err
	}
	if err := e.proposals.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("govern: vote %d: persist: %w", proposalID, err)
	}

	e.publish(ctx, map[string]any{
		"event":       "vote_cast",
		"proposal_id": p.ID,
		"support":     support,
		"state":       string(p.State),
	})
	return p.Clone(), nil
}

// Execute applies an approved proposal's payload. Idempotent-safe: a second
// call on an executed proposal fails rather than double-applying. Calls
// after the execution window transition the proposal to Expired.
func (e *Engine) Execute(ctx context.Context, proposalID int64) (*domain.Proposal, error) {
	unlock := e.lock(proposalID)
	defer unlock()

	p, err := e.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("govern: execute %d: %w", proposalID, err)
	}
	if err := e.resolveIfDue(ctx, p); err != nil {
		return nil, err
	}

	switch p.State {
	case domain.ProposalExecuted:
		return nil, domain.ErrAlreadyExecuted
	case domain.ProposalExpired:
		return nil, domain.ErrExecutionWindowExpired
	case domain.ProposalApproved:
		// Fall through.
	default:
		return nil, domain.ErrProposalNotApproved
	}

	deadline := p.ResolvedAt.Add(e.cfg.ExecutionWindow)
	if e.now().UTC().After(deadline) {
		p.State = domain.ProposalExpired
		if err := e.proposals.Update(ctx, p); err != nil {
			return nil, fmt.Errorf("govern: execute %d: persist: %w", proposalID, err)
		}
		return nil, domain.ErrExecutionWindowExpired
	}

	if err := e.apply(ctx, p); err != nil {
		return nil, err
	}

	now := e.now().UTC()
	p.State = domain.ProposalExecuted
	p.ExecutedAt = &now
	if err := e.proposals.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("govern: execute %d: persist: %w", proposalID, err)
	}

	e.auditLog(ctx, "proposal_executed", map[string]any{
		"proposal_id": p.ID,
		"type":        string(p.Type),
	})
	e.publish(ctx, map[string]any{
		"event":       "proposal_executed",
		"proposal_id": p.ID,
	})
	return p.Clone(), nil
}

// GetProposal returns a proposal, resolving an overdue pending state first so
// callers observe deadline effects without a separate poke.
func (e *Engine) GetProposal(ctx context.Context, proposalID int64) (*domain.Proposal, error) {
	unlock := e.lock(proposalID)
	defer unlock()

	p, err := e.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("govern: get %d: %w", proposalID, err)
	}
	if err := e.resolveIfDue(ctx, p); err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

// ListProposals returns proposals with pagination.
func (e *Engine) ListProposals(ctx context.Context, opts domain.ListOpts) ([]*domain.Proposal, error) {
	ps, err := e.proposals.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("govern: list: %w", err)
	}
	return ps, nil
}

// GetQuorum returns the current quorum snapshot governing a market.
func (e *Engine) GetQuorum(ctx context.Context, marketID int64) (*domain.Quorum, error) {
	q, err := e.quorums.GetCurrent(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("govern: quorum for market %d: %w", marketID, err)
	}
	return q, nil
}

// electorate returns the eligible voter set with weights and the threshold
// denominator for the proposal. For formations every proposed agent carries
// equal standing; for removals the target is excluded from both.
func (e *Engine) electorate(ctx context.Context, p *domain.Proposal) (map[domain.Agent]int, int, error) {
	if p.Type == domain.ProposalQuorumFormation {
		eligible := make(map[domain.Agent]int, len(p.Payload.Agents))
		for i, a := range p.Payload.Agents {
			eligible[a] = p.Payload.Weights[i]
		}
		return eligible, domain.WeightSum, nil
	}

	quorum, err := e.quorums.GetByID(ctx, p.QuorumID)
	if err != nil {
		return nil, 0, fmt.Errorf("govern: quorum %d: %w", p.QuorumID, err)
	}
	eligible := make(map[domain.Agent]int, len(quorum.Members))
	denominator := 0
	for _, m := range quorum.Members {
		if p.Type == domain.ProposalRemoveAgent && m.Agent == p.Payload.Agent {
			// The target cannot vote on its own removal and its weight is
			// excluded from the denominator.
			continue
		}
		eligible[m.Agent] = m.Weight
		denominator += m.Weight
	}
	return eligible, denominator, nil
}

// evaluate recomputes the proposal's resolution from its votes. With
// atDeadline set, a still-undecided proposal resolves definitively.
func (e *Engine) evaluate(ctx context.Context, p *domain.Proposal, eligible map[domain.Agent]int, denominator int, atDeadline bool) error {
	yesWeight, noWeight, yesCount := 0, 0, 0
	for agent, support := range p.Votes {
		w := eligible[agent]
		if support {
			yesWeight += w
			yesCount++
		} else {
			noWeight += w
		}
	}

	if p.Type.Unanimous() {
		if len(p.Votes) > yesCount {
			return e.resolve(ctx, p, domain.ProposalRejected)
		}
		if yesCount == len(eligible) {
			return e.resolve(ctx, p, domain.ProposalApproved)
		}
		if atDeadline {
			return e.resolve(ctx, p, domain.ProposalRejected)
		}
		return nil
	}

	threshold := e.cfg.ApprovalThresholdBps
	if yesWeight*bpsDenominator >= threshold*denominator {
		return e.resolve(ctx, p, domain.ProposalApproved)
	}
	// Rejected early once the remaining weight cannot reach the threshold.
	remaining := denominator - yesWeight - noWeight
	if (yesWeight+remaining)*bpsDenominator < threshold*denominator {
		return e.resolve(ctx, p, domain.ProposalRejected)
	}
	if atDeadline {
		return e.resolve(ctx, p, domain.ProposalRejected)
	}
	return nil
}

// resolve transitions a pending proposal and fires the formation side effect
// on approval. Market creation must complete before the triggering vote call
// is considered done.
func (e *Engine) resolve(ctx context.Context, p *domain.Proposal, state domain.ProposalState) error {
	now := e.now().UTC()
	p.State = state
	p.ResolvedAt = &now

	if state != domain.ProposalApproved {
		e.logger.InfoContext(ctx, "govern: proposal resolved",
			slog.Int64("proposal_id", p.ID),
			slog.String("state", string(state)),
		)
		return nil
	}

	if p.Type == domain.ProposalQuorumFormation {
		if err := e.executeFormation(ctx, p); err != nil {
			// Creation failed: the approval itself must not stand.
			p.State = domain.ProposalPending
			p.ResolvedAt = nil
			return err
		}
	}
	e.logger.InfoContext(ctx, "govern: proposal approved",
		slog.Int64("proposal_id", p.ID),
		slog.String("type", string(p.Type)),
	)
	return nil
}

// executeFormation creates the quorum snapshot and its market. Formation
// execution is automatic and immediate upon full approval.
func (e *Engine) executeFormation(ctx context.Context, p *domain.Proposal) error {
	quorumID, err := e.quorums.NextID(ctx)
	if err != nil {
		return fmt.Errorf("govern: allocate quorum id: %w", err)
	}
	members := make([]domain.Member, len(p.Payload.Agents))
	for i, a := range p.Payload.Agents {
		members[i] = domain.Member{Agent: a, Weight: p.Payload.Weights[i]}
	}
	quorum := &domain.Quorum{
		ID:        quorumID,
		Version:   1,
		Members:   members,
		CreatedAt: e.now().UTC(),
	}

	params := domain.CurveParameters{
		BasePrice:   e.cfg.DefaultBasePrice,
		Slope:       e.cfg.DefaultSlope,
		TargetRaise: e.cfg.DefaultTargetRaise,
	}
	if p.Payload.Curve != nil {
		params = *p.Payload.Curve
	}
	supply := e.cfg.DefaultTotalSupply
	if p.Payload.TotalSupply != nil {
		supply = p.Payload.TotalSupply
	}

	market, err := e.markets.CreateMarket(ctx, quorum, params, supply, p.Payload.Name, p.Payload.Symbol, p.Payload.Thesis)
	if err != nil {
		return fmt.Errorf("govern: formation %d: %w", p.ID, err)
	}
	quorum.MarketID = market.ID
	if err := e.quorums.Create(ctx, quorum); err != nil {
		return fmt.Errorf("govern: formation %d: store quorum: %w", p.ID, err)
	}

	now := e.now().UTC()
	p.State = domain.ProposalExecuted
	p.ExecutedAt = &now
	p.CreatedMarketID = market.ID

	e.auditLog(ctx, "quorum_formed", map[string]any{
		"proposal_id": p.ID,
		"quorum_id":   quorum.ID,
		"market_id":   market.ID,
	})
	e.publish(ctx, map[string]any{
		"event":       "market_created",
		"proposal_id": p.ID,
		"market_id":   market.ID,
	})
	return nil
}

// apply dispatches an approved non-formation payload.
func (e *Engine) apply(ctx context.Context, p *domain.Proposal) error {
	switch p.Type {
	case domain.ProposalAddAgent:
		return e.applyMembershipChange(ctx, p, true)
	case domain.ProposalRemoveAgent:
		return e.applyMembershipChange(ctx, p, false)
	case domain.ProposalTreasurySpend:
		if err := e.markets.SpendTreasury(ctx, p.TargetMarketID, p.Payload.Amount, p.Payload.Recipient); err != nil {
			return fmt.Errorf("govern: execute %d: %w", p.ID, err)
		}
		return nil
	case domain.ProposalAdjustFees:
		if err := e.markets.SetFee(ctx, p.TargetMarketID, p.Payload.FeeBps); err != nil {
			return fmt.Errorf("govern: execute %d: %w", p.ID, err)
		}
		return nil
	case domain.ProposalForceGraduate:
		if err := e.markets.ForceGraduate(ctx, p.TargetMarketID); err != nil {
			return fmt.Errorf("govern: execute %d: %w", p.ID, err)
		}
		return nil
	default:
		return fmt.Errorf("govern: execute %d: unsupported type %q", p.ID, p.Type)
	}
}

// applyMembershipChange produces the next quorum snapshot with weights
// rebalanced by largest remainder so the sum stays at exactly 100.
func (e *Engine) applyMembershipChange(ctx context.Context, p *domain.Proposal, add bool) error {
	quorum, err := e.quorums.GetCurrent(ctx, p.TargetMarketID)
	if err != nil {
		return fmt.Errorf("govern: execute %d: quorum: %w", p.ID, err)
	}

	var members []domain.Member
	if add {
		if quorum.Contains(p.Payload.Agent) {
			return fmt.Errorf("govern: execute %d: %w", p.ID, domain.ErrDuplicateAgent)
		}
		members = rebalance(quorum.Members, domain.WeightSum-p.Payload.Weight)
		members = append(members, domain.Member{Agent: p.Payload.Agent, Weight: p.Payload.Weight})
	} else {
		kept := make([]domain.Member, 0, len(quorum.Members)-1)
		for _, m := range quorum.Members {
			if m.Agent != p.Payload.Agent {
				kept = append(kept, m)
			}
		}
		if len(kept) == len(quorum.Members) {
			return fmt.Errorf("govern: execute %d: agent not a member: %w", p.ID, domain.ErrNotEligibleVoter)
		}
		members = rebalance(kept, domain.WeightSum)
	}
	if err := domain.ValidateMembers(members, e.cfg.MinQuorumSize, e.cfg.MaxQuorumSize); err != nil {
		return fmt.Errorf("govern: execute %d: %w", p.ID, err)
	}

	id, err := e.quorums.NextID(ctx)
	if err != nil {
		return fmt.Errorf("govern: execute %d: allocate quorum id: %w", p.ID, err)
	}
	next := &domain.Quorum{
		ID:        id,
		MarketID:  quorum.MarketID,
		Version:   quorum.Version + 1,
		Members:   members,
		CreatedAt: e.now().UTC(),
	}
	if err := e.quorums.Create(ctx, next); err != nil {
		return fmt.Errorf("govern: execute %d: store quorum: %w", p.ID, err)
	}

	e.auditLog(ctx, "quorum_rotated", map[string]any{
		"proposal_id": p.ID,
		"market_id":   quorum.MarketID,
		"quorum_id":   next.ID,
		"version":     next.Version,
	})
	return nil
}

// rebalance scales weights proportionally to sum exactly targetSum, assigning
// floor-division remainders to the largest fractional parts first.
func rebalance(members []domain.Member, targetSum int) []domain.Member {
	currentSum := 0
	for _, m := range members {
		currentSum += m.Weight
	}

	out := make([]domain.Member, len(members))
	remainders := make([]int, len(members))
	assigned := 0
	for i, m := range members {
		scaled := m.Weight * targetSum
		out[i] = domain.Member{Agent: m.Agent, Weight: scaled / currentSum}
		remainders[i] = scaled % currentSum
		assigned += out[i].Weight
	}

	for assigned < targetSum {
		best := -1
		for i := range out {
			if best == -1 || remainders[i] > remainders[best] {
				best = i
			}
		}
		out[best].Weight++
		remainders[best] = -1
		assigned++
	}
	return out
}

// resolveIfDue settles a pending proposal whose voting window has elapsed.
func (e *Engine) resolveIfDue(ctx context.Context, p *domain.Proposal) error {
	if p.State != domain.ProposalPending || !e.now().UTC().After(p.VotingEndsAt) {
		return nil
	}
	eligible, denominator, err := e.electorate(ctx, p)
	if err != nil {
		return err
	}
	if err := e.evaluate(ctx, p, eligible, denominator, true); err != nil {
		return err
	}
	if err := e.proposals.Update(ctx, p); err != nil {
		return fmt.Errorf("govern: resolve %d: persist: %w", p.ID, err)
	}
	return nil
}

func (e *Engine) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := e.audit.Log(ctx, event, detail); err != nil {
		e.logger.WarnContext(ctx, "govern: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) publish(ctx context.Context, event map[string]any) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, "proposals", payload); err != nil {
		e.logger.WarnContext(ctx, "govern: publish failed",
			slog.String("error", err.Error()),
		)
	}
}
