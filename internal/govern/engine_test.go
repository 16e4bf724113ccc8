package govern

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/quorumlabs/launchpad/internal/domain"
	"github.com/quorumlabs/launchpad/internal/store/memory"
)

var (
	agentA = domain.Agent{0x0a}
	agentB = domain.Agent{0x0b}
	agentC = domain.Agent{0x0c}
	agentD = domain.Agent{0x0d}
	agentE = domain.Agent{0x0e}
)

type treasurySpend struct {
	marketID  int64
	amount    *uint256.Int
	recipient domain.Agent
}

// stubMarkets records the factory and admin calls the engine dispatches.
type stubMarkets struct {
	nextMarketID int64
	createErr    error
	created      []*domain.Quorum
	fees         map[int64]uint32
	graduated    map[int64]bool
	spends       []treasurySpend
}

func newStubMarkets() *stubMarkets {
	return &stubMarkets{
		fees:      make(map[int64]uint32),
		graduated: make(map[int64]bool),
	}
}

func (s *stubMarkets) CreateMarket(_ context.Context, q *domain.Quorum, _ domain.CurveParameters, _ *uint256.Int, name, symbol, _ string) (*domain.Market, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.nextMarketID++
	s.created = append(s.created, q)
	return &domain.Market{ID: s.nextMarketID, QuorumID: q.ID, Name: name, Symbol: symbol}, nil
}

func (s *stubMarkets) SetFee(_ context.Context, marketID int64, feeBps uint32) error {
	s.fees[marketID] = feeBps
	return nil
}

func (s *stubMarkets) ForceGraduate(_ context.Context, marketID int64) error {
	s.graduated[marketID] = true
	return nil
}

func (s *stubMarkets) SpendTreasury(_ context.Context, marketID int64, amount *uint256.Int, recipient domain.Agent) error {
	s.spends = append(s.spends, treasurySpend{marketID: marketID, amount: amount, recipient: recipient})
	return nil
}

type fixture struct {
	engine  *Engine
	quorums *memory.QuorumStore
	markets *stubMarkets
	clock   *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clock := &start
	markets := newStubMarkets()
	quorums := memory.NewQuorumStore()
	eng := NewEngine(
		DefaultConfig(),
		memory.NewProposalStore(),
		quorums,
		markets,
		memory.NewAuditStore(),
		nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	eng.now = func() time.Time { return *clock }
	return &fixture{engine: eng, quorums: quorums, markets: markets, clock: clock}
}

func (f *fixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func formationPayload(agents []domain.Agent, weights []int) domain.ProposalPayload {
	return domain.ProposalPayload{
		Agents:  agents,
		Weights: weights,
		Name:    "Deep Value Fund",
		Symbol:  "DVF",
		Thesis:  "buy low",
	}
}

// formMarket walks a three-agent formation to execution and returns the
// created market id.
func formMarket(t *testing.T, f *fixture, weights []int) int64 {
	t.Helper()
	ctx := context.Background()
	agents := []domain.Agent{agentA, agentB, agentC, agentD, agentE}[:len(weights)]
	p, err := f.engine.ProposeQuorum(ctx, agentA, formationPayload(agents, weights))
	require.NoError(t, err)
	for _, a := range agents {
		p, err = f.engine.Vote(ctx, p.ID, a, true)
		require.NoError(t, err)
	}
	require.Equal(t, domain.ProposalExecuted, p.State)
	require.NotZero(t, p.CreatedMarketID)
	return p.CreatedMarketID
}

func TestProposeQuorumRejectsBadWeights(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Sums to 95, not 100.
	_, err := f.engine.ProposeQuorum(ctx, agentA,
		formationPayload([]domain.Agent{agentA, agentB, agentC}, []int{40, 35, 20}))
	require.ErrorIs(t, err, domain.ErrInvalidWeights)

	_, err = f.engine.ProposeQuorum(ctx, agentA,
		formationPayload([]domain.Agent{agentA, agentB, agentC}, []int{40, 35, 25}))
	require.NoError(t, err)
}

func TestProposeQuorumSizeBounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.ProposeQuorum(ctx, agentA,
		formationPayload([]domain.Agent{agentA, agentB}, []int{60, 40}))
	require.ErrorIs(t, err, domain.ErrQuorumSizeOutOfRange)
}

func TestProposeQuorumRejectsOutsideProposer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.ProposeQuorum(ctx, agentE,
		formationPayload([]domain.Agent{agentA, agentB, agentC}, []int{40, 35, 25}))
	require.ErrorIs(t, err, domain.ErrNotEligibleVoter)
}

func TestFormationApprovalCreatesMarket(t *testing.T) {
	f := newFixture(t)

	marketID := formMarket(t, f, []int{40, 35, 25})
	require.Len(t, f.markets.created, 1)

	q, err := f.quorums.GetCurrent(context.Background(), marketID)
	require.NoError(t, err)
	require.Equal(t, 1, q.Version)
	require.Equal(t, domain.WeightSum, q.TotalWeight())
}

func TestFormationSingleRejectionResolvesImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.engine.ProposeQuorum(ctx, agentA,
		formationPayload([]domain.Agent{agentA, agentB, agentC}, []int{40, 35, 25}))
	require.NoError(t, err)

	p, err = f.engine.Vote(ctx, p.ID, agentB, false)
	require.NoError(t, err)
	require.Equal(t, domain.ProposalRejected, p.State)

	// Resolution closes voting for everyone else.
	_, err = f.engine.Vote(ctx, p.ID, agentA, true)
	require.ErrorIs(t, err, domain.ErrVotingWindowClosed)
	require.Empty(t, f.markets.created)
}

func TestFormationCreationFailureKeepsProposalPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.markets.createErr = domain.ErrArithmeticOverflow

	p, err := f.engine.ProposeQuorum(ctx, agentA,
		formationPayload([]domain.Agent{agentA, agentB, agentC}, []int{40, 35, 25}))
	require.NoError(t, err)

	_, err = f.engine.Vote(ctx, p.ID, agentA, true)
	require.NoError(t, err)
	_, err = f.engine.Vote(ctx, p.ID, agentB, true)
	require.NoError(t, err)
	_, err = f.engine.Vote(ctx, p.ID, agentC, true)
	require.ErrorIs(t, err, domain.ErrArithmeticOverflow)

	got, err := f.engine.GetProposal(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ProposalPending, got.State)
}

func TestUnanimousForceGraduateNeedsEveryVote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	marketID := formMarket(t, f, []int{30, 25, 20, 15, 10})

	p, err := f.engine.Propose(ctx, domain.ProposalForceGraduate, marketID, agentA, domain.ProposalPayload{})
	require.NoError(t, err)

	// Four of five approvals: 90 of 100 weight, still not enough.
	for _, a := range []domain.Agent{agentA, agentB, agentC, agentD} {
		p, err = f.engine.Vote(ctx, p.ID, a, true)
		require.NoError(t, err)
		require.Equal(t, domain.ProposalPending, p.State)
	}

	p, err = f.engine.Vote(ctx, p.ID, agentE, true)
	require.NoError(t, err)
	require.Equal(t, domain.ProposalApproved, p.State)
}

func TestUnanimousResolvesRejectedAtDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	marketID := formMarket(t, f, []int{40, 35, 25})

	p, err := f.engine.Propose(ctx, domain.ProposalAdjustFees, marketID, agentA, domain.ProposalPayload{FeeBps: 250})
	require.NoError(t, err)
	_, err = f.engine.Vote(ctx, p.ID, agentA, true)
	require.NoError(t, err)

	f.advance(73 * time.Hour)

	got, err := f.engine.GetProposal(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ProposalRejected, got.State)
}

func TestWeightedApprovalAtTwoThirds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	marketID := formMarket(t, f, []int{40, 35, 25})

	payload := domain.ProposalPayload{Amount: uint256.NewInt(500), Recipient: agentE}
	p, err := f.engine.Propose(ctx, domain.ProposalTreasurySpend, marketID, agentA, payload)
	require.NoError(t, err)

	// 40 of 100 is below the 2/3 threshold.
	p, err = f.engine.Vote(ctx, p.ID, agentA, true)
	require.NoError(t, err)
	require.Equal(t, domain.ProposalPending, p.State)

	// 75 of 100 crosses it.
	p, err = f.engine.Vote(ctx, p.ID, agentB, true)
	require.NoError(t, err)
	require.Equal(t, domain.ProposalApproved, p.State)
}

func TestWeightedRejectsEarlyWhenUnreachable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	marketID := formMarket(t, f, []int{40, 35, 25})

	payload := domain.ProposalPayload{Amount: uint256.NewInt(500), Recipient: agentE}
	p, err := f.engine.Propose(ctx, domain.ProposalTreasurySpend, marketID, agentA, payload)
	require.NoError(t, err)

	// 40 weight against leaves at most 60 approving: short of 66.66.
	p, err = f.engine.Vote(ctx, p.ID, agentA, false)
	require.NoError(t, err)
	require.Equal(t, domain.ProposalRejected, p.State)
}

func TestRemoveAgentExcludesTargetFromDenominator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	marketID := formMarket(t, f, []int{40, 30, 20, 10})

	p, err := f.engine.Propose(ctx, domain.ProposalRemoveAgent, marketID, agentB, domain.ProposalPayload{Agent: agentA})
	require.NoError(t, err)

	// Target cannot vote on its own removal.
	_, err = f.engine.Vote(ctx, p.ID, agentA, true)
	require.ErrorIs(t, err, domain.ErrNotEligibleVoter)

	// 30 of the 60 non-target weight is half: below threshold.
	p, err = f.engine.Vote(ctx, p.ID, agentB, true)
	require.NoError(t, err)
	require.Equal(t, domain.ProposalPending, p.State)

	// 50 of 60 crosses 2/3 of the reduced denominator.
	p, err = f.engine.Vote(ctx, p.ID, agentC, true)
	require.NoError(t, err)
	require.Equal(t, domain.ProposalApproved, p.State)

	_, err = f.engine.Execute(ctx, p.ID)
	require.NoError(t, err)

	q, err := f.quorums.GetCurrent(ctx, marketID)
	require.NoError(t, err)
	require.Equal(t, 2, q.Version)
	require.Len(t, q.Members, 3)
	require.False(t, q.Contains(agentA))
	require.Equal(t, domain.WeightSum, q.TotalWeight())
}

func TestAddAgentRebalancesWeights(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	marketID := formMarket(t, f, []int{40, 35, 25})

	p, err := f.engine.Propose(ctx, domain.ProposalAddAgent, marketID, agentA,
		domain.ProposalPayload{Agent: agentD, Weight: 20})
	require.NoError(t, err)

	p, err = f.engine.Vote(ctx, p.ID, agentA, true)
	require.NoError(t, err)
	p, err = f.engine.Vote(ctx, p.ID, agentB, true)
	require.NoError(t, err)
	require.Equal(t, domain.ProposalApproved, p.State)

	_, err = f.engine.Execute(ctx, p.ID)
	require.NoError(t, err)

	q, err := f.quorums.GetCurrent(ctx, marketID)
	require.NoError(t, err)
	require.Equal(t, 2, q.Version)
	require.Len(t, q.Members, 4)
	require.Equal(t, 20, q.WeightOf(agentD))
	require.Equal(t, domain.WeightSum, q.TotalWeight())

	// The original snapshot is untouched.
	q1, err := f.quorums.GetByID(ctx, p.QuorumID)
	require.NoError(t, err)
	require.Len(t, q1.Members, 3)
	require.Equal(t, 40, q1.WeightOf(agentA))
}

func TestVoteAfterWindowCloses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	marketID := formMarket(t, f, []int{40, 35, 25})

	payload := domain.ProposalPayload{Amount: uint256.NewInt(500), Recipient: agentE}
	p, err := f.engine.Propose(ctx, domain.ProposalTreasurySpend, marketID, agentA, payload)
	require.NoError(t, err)

	f.advance(73 * time.Hour)

	_, err = f.engine.Vote(ctx, p.ID, agentA, true)
	require.ErrorIs(t, err, domain.ErrVotingWindowClosed)

	got, err := f.engine.GetProposal(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ProposalRejected, got.State)
}

func TestDoubleVote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	marketID := formMarket(t, f, []int{40, 35, 25})

	payload := domain.ProposalPayload{Amount: uint256.NewInt(500), Recipient: agentE}
	p, err := f.engine.Propose(ctx, domain.ProposalTreasurySpend, marketID, agentA, payload)
	require.NoError(t, err)

	_, err = f.engine.Vote(ctx, p.ID, agentA, true)
	require.NoError(t, err)
	_, err = f.engine.Vote(ctx, p.ID, agentA, false)
	require.ErrorIs(t, err, domain.ErrAlreadyVoted)
}

func TestExecuteLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	marketID := formMarket(t, f, []int{40, 35, 25})

	payload := domain.ProposalPayload{Amount: uint256.NewInt(500), Recipient: agentE}
	p, err := f.engine.Propose(ctx, domain.ProposalTreasurySpend, marketID, agentA, payload)
	require.NoError(t, err)

	// Execute before approval fails.
	_, err = f.engine.Execute(ctx, p.ID)
	require.ErrorIs(t, err, domain.ErrProposalNotApproved)

	_, err = f.engine.Vote(ctx, p.ID, agentA, true)
	require.NoError(t, err)
	p, err = f.engine.Vote(ctx, p.ID, agentB, true)
	require.NoError(t, err)
	require.Equal(t, domain.ProposalApproved, p.State)

	p, err = f.engine.Execute(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ProposalExecuted, p.State)
	require.Len(t, f.markets.spends, 1)
	require.Equal(t, marketID, f.markets.spends[0].marketID)
	require.Equal(t, agentE, f.markets.spends[0].recipient)

	// Re-execution does not double-spend.
	_, err = f.engine.Execute(ctx, p.ID)
	require.ErrorIs(t, err, domain.ErrAlreadyExecuted)
	require.Len(t, f.markets.spends, 1)
}

func TestExecuteAfterWindowExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	marketID := formMarket(t, f, []int{40, 35, 25})

	payload := domain.ProposalPayload{Amount: uint256.NewInt(500), Recipient: agentE}
	p, err := f.engine.Propose(ctx, domain.ProposalTreasurySpend, marketID, agentA, payload)
	require.NoError(t, err)
	_, err = f.engine.Vote(ctx, p.ID, agentA, true)
	require.NoError(t, err)
	_, err = f.engine.Vote(ctx, p.ID, agentB, true)
	require.NoError(t, err)

	f.advance(8 * 24 * time.Hour)

	_, err = f.engine.Execute(ctx, p.ID)
	require.ErrorIs(t, err, domain.ErrExecutionWindowExpired)
	require.Empty(t, f.markets.spends)

	got, err := f.engine.GetProposal(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ProposalExpired, got.State)
}

func TestProposeRemoveBelowMinimumSize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	marketID := formMarket(t, f, []int{40, 35, 25})

	_, err := f.engine.Propose(ctx, domain.ProposalRemoveAgent, marketID, agentA, domain.ProposalPayload{Agent: agentB})
	require.ErrorIs(t, err, domain.ErrQuorumSizeOutOfRange)
}

func TestProposeByNonMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	marketID := formMarket(t, f, []int{40, 35, 25})

	_, err := f.engine.Propose(ctx, domain.ProposalForceGraduate, marketID, agentE, domain.ProposalPayload{})
	require.ErrorIs(t, err, domain.ErrNotEligibleVoter)
}

func TestRebalance(t *testing.T) {
	members := []domain.Member{
		{Agent: agentA, Weight: 40},
		{Agent: agentB, Weight: 35},
		{Agent: agentC, Weight: 25},
	}

	scaled := rebalance(members, 80)
	sum := 0
	for _, m := range scaled {
		require.Positive(t, m.Weight)
		sum += m.Weight
	}
	require.Equal(t, 80, sum)

	// Scaling back to 100 keeps proportions and the exact sum.
	restored := rebalance(scaled, 100)
	sum = 0
	for _, m := range restored {
		sum += m.Weight
	}
	require.Equal(t, 100, sum)
}
