package market

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/quorumlabs/launchpad/internal/curve"
	"github.com/quorumlabs/launchpad/internal/domain"
	"github.com/quorumlabs/launchpad/internal/store/memory"
	"github.com/quorumlabs/launchpad/internal/token"
)

var (
	buyer  = domain.Agent{0x01}
	seller = domain.Agent{0x01}

	memberA = domain.Agent{0x0a}
	memberB = domain.Agent{0x0b}
	memberC = domain.Agent{0x0c}
)

type provisionCall struct {
	marketID int64
	symbol   string
	tokens   *uint256.Int
	value    *uint256.Int
}

type stubProvisioner struct {
	err   error
	calls []provisionCall
}

func (s *stubProvisioner) Provision(_ context.Context, marketID int64, symbol string, tokens, value *uint256.Int) error {
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, provisionCall{
		marketID: marketID,
		symbol:   symbol,
		tokens:   new(uint256.Int).Set(tokens),
		value:    new(uint256.Int).Set(value),
	})
	return nil
}

type fixture struct {
	engine      *Engine
	ledger      *token.Ledger
	trades      *memory.TradeStore
	provisioner *stubProvisioner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ledger := token.NewLedger()
	trades := memory.NewTradeStore()
	provisioner := &stubProvisioner{}
	eng := NewEngine(
		DefaultConfig(),
		memory.NewMarketStore(),
		trades,
		ledger,
		provisioner,
		nil,
		nil,
		nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return &fixture{engine: eng, ledger: ledger, trades: trades, provisioner: provisioner}
}

func testQuorum() *domain.Quorum {
	return &domain.Quorum{
		ID:      1,
		Version: 1,
		Members: []domain.Member{
			{Agent: memberA, Weight: 40},
			{Agent: memberB, Weight: 35},
			{Agent: memberC, Weight: 25},
		},
	}
}

func testParams(targetRaise *uint256.Int) domain.CurveParameters {
	return domain.CurveParameters{
		BasePrice:   uint256.NewInt(1e14),
		Slope:       uint256.NewInt(1e10),
		TargetRaise: targetRaise,
	}
}

// supply returns n whole tokens at 18 decimals.
func supply(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1e18))
}

func (f *fixture) createMarket(t *testing.T, targetRaise *uint256.Int) *domain.Market {
	t.Helper()
	m, err := f.engine.CreateMarket(context.Background(), testQuorum(), testParams(targetRaise), supply(1_000_000), "Deep Value Fund", "DVF", "buy low")
	require.NoError(t, err)
	return m
}

func (f *fixture) balance(t *testing.T, marketID int64, holder domain.Agent) *uint256.Int {
	t.Helper()
	b, err := f.ledger.BalanceOf(context.Background(), marketID, holder)
	require.NoError(t, err)
	return b
}

func TestCreateMarketAllocationSplit(t *testing.T) {
	f := newFixture(t)
	m := f.createMarket(t, supply(10))

	total := supply(1_000_000)
	wantQuorum := new(uint256.Int).Div(new(uint256.Int).Mul(total, uint256.NewInt(3000)), uint256.NewInt(10000))
	wantCurve := new(uint256.Int).Div(new(uint256.Int).Mul(total, uint256.NewInt(6000)), uint256.NewInt(10000))

	require.Equal(t, wantQuorum, m.QuorumAllocation)
	require.Equal(t, wantCurve, m.CurveAllocation)

	sum := new(uint256.Int).Add(m.QuorumAllocation, m.CurveAllocation)
	sum.Add(sum, m.TreasuryAllocation)
	require.Equal(t, total, sum)

	// Member shares are proportional to weight.
	wantA := new(uint256.Int).Div(new(uint256.Int).Mul(wantQuorum, uint256.NewInt(40)), uint256.NewInt(100))
	require.Equal(t, wantA, f.balance(t, m.ID, memberA))
	require.Equal(t, wantCurve, f.balance(t, m.ID, domain.CurveAccount))
}

func TestCreateMarketDustGoesToTreasury(t *testing.T) {
	f := newFixture(t)
	// 10 base units: quorum 3, curve 6, treasury 1. Weighted shares floor to
	// 1+1+0, leaving 1 unit of dust for the treasury.
	m, err := f.engine.CreateMarket(context.Background(), testQuorum(), testParams(supply(10)), uint256.NewInt(10), "Dusty", "DST", "")
	require.NoError(t, err)

	require.Equal(t, uint256.NewInt(1), f.balance(t, m.ID, memberA))
	require.Equal(t, uint256.NewInt(1), f.balance(t, m.ID, memberB))
	require.True(t, f.balance(t, m.ID, memberC).IsZero())
	require.Equal(t, uint256.NewInt(6), f.balance(t, m.ID, domain.CurveAccount))
	require.Equal(t, uint256.NewInt(2), f.balance(t, m.ID, domain.TreasuryAccount))
}

func TestCreateMarketRejectsInvalidQuorum(t *testing.T) {
	f := newFixture(t)
	q := testQuorum()
	q.Members[2].Weight = 20 // sums to 95

	_, err := f.engine.CreateMarket(context.Background(), q, testParams(supply(10)), supply(1_000_000), "Bad", "BAD", "")
	require.ErrorIs(t, err, domain.ErrInvalidWeights)
}

func TestCreateMarketMintFailureCreditsNoOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Saturate the curve account under the id the next creation will take,
	// so the supply mint overflows mid-creation.
	max := new(uint256.Int).SetAllOne()
	require.NoError(t, f.ledger.Mint(ctx, 1, domain.CurveAccount, max))

	_, err := f.engine.CreateMarket(ctx, testQuorum(), testParams(supply(10)), supply(1_000_000), "Deep Value Fund", "DVF", "buy low")
	require.ErrorIs(t, err, domain.ErrArithmeticOverflow)

	require.True(t, f.balance(t, 1, memberA).IsZero())
	require.True(t, f.balance(t, 1, memberB).IsZero())
	require.True(t, f.balance(t, 1, domain.TreasuryAccount).IsZero())
	require.Equal(t, max.String(), f.balance(t, 1, domain.CurveAccount).String())
}

func TestTradeRejectsReservedAccounts(t *testing.T) {
	f := newFixture(t)
	m := f.createMarket(t, supply(10))

	for _, agent := range []domain.Agent{domain.CurveAccount, domain.TreasuryAccount, domain.LiquidityAccount} {
		_, err := f.engine.Buy(context.Background(), m.ID, agent, supply(1), new(uint256.Int))
		require.ErrorIs(t, err, domain.ErrReservedAccount)

		_, err = f.engine.Sell(context.Background(), m.ID, agent, supply(1), new(uint256.Int))
		require.ErrorIs(t, err, domain.ErrReservedAccount)
	}
}

func TestBuyAccounting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.createMarket(t, supply(1000))

	valueIn := uint256.NewInt(1e18)
	trade, err := f.engine.Buy(ctx, m.ID, buyer, valueIn, nil)
	require.NoError(t, err)
	require.False(t, trade.Tokens.IsZero())

	wantFee := uint256.NewInt(1e16) // 1% of 1e18
	require.Equal(t, wantFee, trade.Fee)

	got, err := f.engine.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, valueIn, got.ValueRaised)
	require.Equal(t, new(uint256.Int).Sub(valueIn, wantFee), got.Reserve)
	require.Equal(t, wantFee, got.TreasuryValue)
	require.Equal(t, trade.Tokens, got.TokensSold)
	require.Equal(t, trade.Tokens, f.balance(t, m.ID, buyer))

	// Net value covers the curve cost of the tokens, within the precision floor.
	c := curve.New(got.Curve)
	cost, err := c.Cost(got.TokensSold)
	require.NoError(t, err)
	require.True(t, cost.Lt(got.Reserve) || cost.Eq(got.Reserve))

	fills, err := f.engine.ListTrades(ctx, m.ID, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, fills, 1)
	require.Equal(t, domain.TradeSideBuy, fills[0].Side)
}

func TestBuyBelowMinimum(t *testing.T) {
	f := newFixture(t)
	m := f.createMarket(t, supply(1000))

	_, err := f.engine.Buy(context.Background(), m.ID, buyer, uint256.NewInt(1e14), nil)
	require.ErrorIs(t, err, domain.ErrBelowMinimumPurchase)
}

func TestBuySlippageGuard(t *testing.T) {
	f := newFixture(t)
	m := f.createMarket(t, supply(1000))

	minOut := supply(1_000_000_000) // unreachable
	_, err := f.engine.Buy(context.Background(), m.ID, buyer, uint256.NewInt(1e18), minOut)
	require.ErrorIs(t, err, domain.ErrSlippageExceeded)

	// A failed buy leaves no trace.
	got, err := f.engine.GetMarket(context.Background(), m.ID)
	require.NoError(t, err)
	require.True(t, got.ValueRaised.IsZero())
	require.True(t, f.balance(t, m.ID, buyer).IsZero())
}

func TestGraduationExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.createMarket(t, uint256.NewInt(1e18)) // one buy crosses the target

	trade, err := f.engine.Buy(ctx, m.ID, buyer, uint256.NewInt(1e18), nil)
	require.NoError(t, err)

	got, err := f.engine.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	require.True(t, got.Graduated)
	require.NotNil(t, got.GraduatedAt)

	// One provisioning call carrying the unsold curve inventory and 80% of
	// the reserve.
	require.Len(t, f.provisioner.calls, 1)
	call := f.provisioner.calls[0]
	require.Equal(t, m.ID, call.marketID)
	require.Equal(t, "DVF", call.symbol)
	wantRemaining := new(uint256.Int).Sub(m.CurveAllocation, trade.Tokens)
	require.Equal(t, wantRemaining, call.tokens)

	net := new(uint256.Int).Sub(uint256.NewInt(1e18), trade.Fee)
	wantLiquidity := new(uint256.Int).Div(new(uint256.Int).Mul(net, uint256.NewInt(8000)), uint256.NewInt(10000))
	require.Equal(t, wantLiquidity, call.value)
	require.Equal(t, new(uint256.Int).Sub(net, wantLiquidity), got.Reserve)

	// Unsold inventory moved to the liquidity account.
	require.True(t, f.balance(t, m.ID, domain.CurveAccount).IsZero())
	require.Equal(t, wantRemaining, f.balance(t, m.ID, domain.LiquidityAccount))

	// Trading is closed both ways after graduation.
	_, err = f.engine.Buy(ctx, m.ID, buyer, uint256.NewInt(1e18), nil)
	require.ErrorIs(t, err, domain.ErrMarketGraduated)
	_, err = f.engine.Sell(ctx, m.ID, buyer, trade.Tokens, nil)
	require.ErrorIs(t, err, domain.ErrMarketGraduated)
	require.Len(t, f.provisioner.calls, 1)
}

func TestGraduationProvisionFailureAbortsBuy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.createMarket(t, uint256.NewInt(1e18))
	f.provisioner.err = errors.New("amm unreachable")

	_, err := f.engine.Buy(ctx, m.ID, buyer, uint256.NewInt(1e18), nil)
	require.Error(t, err)

	// Nothing committed: the buyer can retry once provisioning recovers.
	got, err := f.engine.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	require.False(t, got.Graduated)
	require.True(t, got.ValueRaised.IsZero())
	require.True(t, f.balance(t, m.ID, buyer).IsZero())
	require.Equal(t, m.CurveAllocation, f.balance(t, m.ID, domain.CurveAccount))

	f.provisioner.err = nil
	_, err = f.engine.Buy(ctx, m.ID, buyer, uint256.NewInt(1e18), nil)
	require.NoError(t, err)
	require.Len(t, f.provisioner.calls, 1)
}

func TestSellAccounting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.createMarket(t, supply(1000))

	bought, err := f.engine.Buy(ctx, m.ID, seller, uint256.NewInt(1e18), nil)
	require.NoError(t, err)

	sold, err := f.engine.Sell(ctx, m.ID, seller, bought.Tokens, nil)
	require.NoError(t, err)
	require.Equal(t, bought.Tokens, sold.Tokens)
	require.False(t, sold.Value.IsZero())

	got, err := f.engine.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	require.True(t, got.TokensSold.IsZero())
	require.True(t, f.balance(t, m.ID, seller).IsZero())

	// ValueRaised is gross and monotone: selling never lowers it.
	require.Equal(t, uint256.NewInt(1e18), got.ValueRaised)

	// Both legs paid fees into the treasury.
	wantTreasury := new(uint256.Int).Add(bought.Fee, sold.Fee)
	require.Equal(t, wantTreasury, got.TreasuryValue)

	// Reserve dropped by exactly the net payout.
	wantReserve := new(uint256.Int).Sub(uint256.NewInt(1e18), bought.Fee)
	wantReserve.Sub(wantReserve, sold.Value)
	wantReserve.Sub(wantReserve, sold.Fee)
	require.Equal(t, wantReserve, got.Reserve)
}

func TestSellMoreThanHeld(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.createMarket(t, supply(1000))

	bought, err := f.engine.Buy(ctx, m.ID, seller, uint256.NewInt(1e18), nil)
	require.NoError(t, err)

	over := new(uint256.Int).Add(bought.Tokens, uint256.NewInt(1))
	_, err = f.engine.Sell(ctx, m.ID, seller, over, nil)
	require.ErrorIs(t, err, domain.ErrInsufficientTokensHeld)
}

func TestSellSlippageGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.createMarket(t, supply(1000))

	bought, err := f.engine.Buy(ctx, m.ID, seller, uint256.NewInt(1e18), nil)
	require.NoError(t, err)

	minOut := supply(1000) // unreachable
	_, err = f.engine.Sell(ctx, m.ID, seller, bought.Tokens, minOut)
	require.ErrorIs(t, err, domain.ErrSlippageExceeded)
}

func TestForceGraduate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.createMarket(t, supply(1000))

	require.NoError(t, f.engine.ForceGraduate(ctx, m.ID))

	got, err := f.engine.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	require.True(t, got.Graduated)
	require.Len(t, f.provisioner.calls, 1)
	require.Equal(t, m.CurveAllocation, f.provisioner.calls[0].tokens)

	err = f.engine.ForceGraduate(ctx, m.ID)
	require.ErrorIs(t, err, domain.ErrMarketGraduated)
	require.Len(t, f.provisioner.calls, 1)
}

func TestSetFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.createMarket(t, supply(1000))

	require.NoError(t, f.engine.SetFee(ctx, m.ID, 250))

	got, err := f.engine.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, uint32(250), got.FeeBps)
}

func TestSpendTreasury(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.createMarket(t, supply(1000))

	_, err := f.engine.Buy(ctx, m.ID, buyer, uint256.NewInt(1e18), nil)
	require.NoError(t, err)

	// Overdraw fails.
	err = f.engine.SpendTreasury(ctx, m.ID, uint256.NewInt(1e18), memberA)
	require.ErrorIs(t, err, domain.ErrInsufficientTreasury)

	// Fee income (1e16) covers a smaller spend.
	require.NoError(t, f.engine.SpendTreasury(ctx, m.ID, uint256.NewInt(1e15), memberA))

	got, err := f.engine.GetMarket(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, new(uint256.Int).Sub(uint256.NewInt(1e16), uint256.NewInt(1e15)), got.TreasuryValue)
}

func TestQuoteBuyMatchesBuy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.createMarket(t, supply(1000))

	quoted, err := f.engine.QuoteBuy(ctx, m.ID, uint256.NewInt(1e18))
	require.NoError(t, err)

	trade, err := f.engine.Buy(ctx, m.ID, buyer, uint256.NewInt(1e18), quoted)
	require.NoError(t, err)
	require.Equal(t, quoted, trade.Tokens)
}

func TestCurrentPriceFallsBackToCurve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.createMarket(t, supply(1000))

	p, err := f.engine.CurrentPrice(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(1e14), p)

	_, err = f.engine.Buy(ctx, m.ID, buyer, uint256.NewInt(1e18), nil)
	require.NoError(t, err)

	after, err := f.engine.CurrentPrice(ctx, m.ID)
	require.NoError(t, err)
	require.True(t, after.Gt(p))
}
