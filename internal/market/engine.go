// Package market implements market creation and curve trading: the factory
// that turns quorum-approved parameters into live markets, and the buy/sell
// paths that mutate them through the pricing curve. Mutations are serialized
// per market and applied all-or-nothing.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/quorumlabs/launchpad/internal/curve"
	"github.com/quorumlabs/launchpad/internal/domain"
)

const bpsDenominator = 10_000

// Config carries the tunables that the original deployment hardcodes. They
// are injected so independent instances and tests can vary them.
type Config struct {
	FeeBps                uint32
	MinPurchase           *uint256.Int
	QuorumAllocationBps   uint32 // 3000
	CurveAllocationBps    uint32 // 6000
	TreasuryAllocationBps uint32 // 1000
	LiquidityShareBps     uint32 // share of reserve provisioned at graduation
	PrecisionFloor        *uint256.Int
	MinQuorumSize         int
	MaxQuorumSize         int
	LockTTL               time.Duration
}

// DefaultConfig returns the standard launchpad parameters.
func DefaultConfig() Config {
	return Config{
		FeeBps:                100, // 1%
		MinPurchase:           uint256.NewInt(1e15),
		QuorumAllocationBps:   3000,
		CurveAllocationBps:    6000,
		TreasuryAllocationBps: 1000,
		LiquidityShareBps:     8000,
		PrecisionFloor:        new(uint256.Int).Set(curve.DefaultPrecisionFloor),
		MinQuorumSize:         3,
		MaxQuorumSize:         10,
		LockTTL:               10 * time.Second,
	}
}

// Engine owns all market state transitions. It implements domain.MarketAdmin
// for the governance engine and exposes the trading surface for handlers.
type Engine struct {
	cfg       Config
	markets   domain.MarketStore
	trades    domain.TradeStore
	ledger    domain.TokenLedger
	liquidity domain.LiquidityProvisioner
	prices    domain.PriceCache   // optional
	bus       domain.SignalBus    // optional
	lockMgr   domain.LockManager  // optional, for multi-instance deployments
	logger    *slog.Logger

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewEngine creates an Engine. prices, bus, and lockMgr may be nil.
func NewEngine(
	cfg Config,
	markets domain.MarketStore,
	trades domain.TradeStore,
	ledger domain.TokenLedger,
	liquidity domain.LiquidityProvisioner,
	prices domain.PriceCache,
	bus domain.SignalBus,
	lockMgr domain.LockManager,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		cfg:       cfg,
		markets:   markets,
		trades:    trades,
		ledger:    ledger,
		liquidity: liquidity,
		prices:    prices,
		bus:       bus,
		lockMgr:   lockMgr,
		logger:    logger.With(slog.String("component", "market")),
		locks:     make(map[int64]*sync.Mutex),
	}
}

// lock serializes mutations of one market within this process and, when a
// lock manager is wired, across instances. The returned unlock must be called.
func (e *Engine) lock(ctx context.Context, marketID int64) (func(), error) {
	e.mu.Lock()
	l, ok := e.locks[marketID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[marketID] = l
	}
	e.mu.Unlock()

	l.Lock()
	if e.lockMgr == nil {
		return l.Unlock, nil
	}

	unlock, err := e.lockMgr.Acquire(ctx, fmt.Sprintf("market:%d", marketID), e.cfg.LockTTL)
	if err != nil {
		l.Unlock()
		return nil, fmt.Errorf("market: acquire lock %d: %w", marketID, err)
	}
	return func() {
		unlock()
		l.Unlock()
	}, nil
}

// CreateMarket validates the quorum invariants (re-checked here even though
// the proposal already did: this is the sole mutation entry point and must be
// self-sufficient), mints the 30/60/10 split, and stores the new market.
func (e *Engine) CreateMarket(
	ctx context.Context,
	quorum *domain.Quorum,
	params domain.CurveParameters,
	totalSupply *uint256.Int,
	name, symbol, thesis string,
) (*domain.Market, error) {
	if err := domain.ValidateMembers(quorum.Members, e.cfg.MinQuorumSize, e.cfg.MaxQuorumSize); err != nil {
		return nil, fmt.Errorf("market: create: %w", err)
	}
	if params.BasePrice == nil || params.BasePrice.IsZero() {
		return nil, fmt.Errorf("market: create: base price must be positive")
	}
	if params.Slope == nil || params.TargetRaise == nil || params.TargetRaise.IsZero() {
		return nil, fmt.Errorf("market: create: incomplete curve parameters")
	}
	if totalSupply == nil || totalSupply.IsZero() {
		return nil, fmt.Errorf("market: create: total supply must be positive")
	}

	id, err := e.markets.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("market: allocate id: %w", err)
	}

	quorumAlloc, err := bpsShare(totalSupply, e.cfg.QuorumAllocationBps)
	if err != nil {
		return nil, fmt.Errorf("market: create: %w", err)
	}
	curveAlloc, err := bpsShare(totalSupply, e.cfg.CurveAllocationBps)
	if err != nil {
		return nil, fmt.Errorf("market: create: %w", err)
	}
	// Treasury takes the remainder so the three allocations sum exactly to
	// the total supply despite floor division.
	treasuryAlloc := new(uint256.Int).Sub(totalSupply, quorumAlloc)
	treasuryAlloc.Sub(treasuryAlloc, curveAlloc)

	// Quorum members split 30% proportionally to weight; floor-division dust
	// goes to the treasury. The whole supply is minted to the curve account
	// once and then distributed in a single atomic batch, so a failure
	// anywhere leaves no member partially credited.
	allocated := new(uint256.Int)
	transfers := make([]domain.Transfer, 0, len(quorum.Members)+1)
	for _, member := range quorum.Members {
		share := new(uint256.Int).Mul(quorumAlloc, uint256.NewInt(uint64(member.Weight)))
		share.Div(share, uint256.NewInt(domain.WeightSum))
		transfers = append(transfers, domain.Transfer{
			MarketID: id,
			From:     domain.CurveAccount,
			To:       member.Agent,
			Amount:   share,
		})
		allocated.Add(allocated, share)
	}
	dust := new(uint256.Int).Sub(quorumAlloc, allocated)
	treasuryTokens := new(uint256.Int).Add(treasuryAlloc, dust)
	transfers = append(transfers, domain.Transfer{
		MarketID: id,
		From:     domain.CurveAccount,
		To:       domain.TreasuryAccount,
		Amount:   treasuryTokens,
	})

	if err := e.ledger.Mint(ctx, id, domain.CurveAccount, totalSupply); err != nil {
		return nil, fmt.Errorf("market: mint supply: %w", err)
	}
	if err := e.ledger.Apply(ctx, transfers); err != nil {
		return nil, fmt.Errorf("market: distribute supply: %w", err)
	}

	now := time.Now().UTC()
	m := &domain.Market{
		ID:                 id,
		QuorumID:           quorum.ID,
		Name:               name,
		Symbol:             symbol,
		Thesis:             thesis,
		Curve:              params.Clone(),
		TotalSupply:        new(uint256.Int).Set(totalSupply),
		QuorumAllocation:   quorumAlloc,
		CurveAllocation:    curveAlloc,
		TreasuryAllocation: treasuryAlloc,
		TokensSold:         new(uint256.Int),
		ValueRaised:        new(uint256.Int),
		Reserve:            new(uint256.Int),
		TreasuryValue:      new(uint256.Int),
		FeeBps:             e.cfg.FeeBps,
		CreatedAt:          now,
	}
	if err := e.markets.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("market: store create: %w", err)
	}

	e.cachePrice(ctx, m)
	e.publish(ctx, "markets", map[string]any{
		"event":     "market_created",
		"market_id": m.ID,
		"symbol":    m.Symbol,
	})
	e.logger.InfoContext(ctx, "market: created",
		slog.Int64("market_id", m.ID),
		slog.String("symbol", m.Symbol),
		slog.Int64("quorum_id", quorum.ID),
	)
	return m.Clone(), nil
}

// Buy spends valueIn against the curve. The fee comes off the top, the net
// value is inverted into tokens, and crossing the target raise graduates the
// market with a one-shot liquidity hand-off. Either every effect applies or
// none do.
func (e *Engine) Buy(ctx context.Context, marketID int64, buyer domain.Agent, valueIn, minTokensOut *uint256.Int) (domain.Trade, error) {
	if domain.IsReservedAccount(buyer) {
		return domain.Trade{}, fmt.Errorf("market: buy %d: %w", marketID, domain.ErrReservedAccount)
	}
	unlock, err := e.lock(ctx, marketID)
	if err != nil {
		return domain.Trade{}, err
	}
	defer unlock()

	m, err := e.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("market: buy %d: %w", marketID, err)
	}
	if m.Graduated {
		return domain.Trade{}, domain.ErrMarketGraduated
	}
	if valueIn.Lt(e.cfg.MinPurchase) {
		return domain.Trade{}, domain.ErrBelowMinimumPurchase
	}

	fee, err := bpsShare(valueIn, m.FeeBps)
	if err != nil {
		return domain.Trade{}, err
	}
	net := new(uint256.Int).Sub(valueIn, fee)

	tokensOut, err := curve.New(m.Curve).Purchase(m.TokensSold, net, e.cfg.PrecisionFloor)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("market: buy %d: %w", marketID, err)
	}
	if minTokensOut != nil && tokensOut.Lt(minTokensOut) {
		return domain.Trade{}, domain.ErrSlippageExceeded
	}

	curveBalance, err := e.ledger.BalanceOf(ctx, marketID, domain.CurveAccount)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("market: buy %d: %w", marketID, err)
	}
	if tokensOut.Gt(curveBalance) {
		return domain.Trade{}, domain.ErrCurveSupplyExhausted
	}

	// Stage every mutation on a copy; nothing below touches stored state
	// until the liquidity hand-off (if any) has succeeded.
	staged := m.Clone()
	if _, overflow := staged.TokensSold.AddOverflow(staged.TokensSold, tokensOut); overflow {
		return domain.Trade{}, domain.ErrArithmeticOverflow
	}
	if _, overflow := staged.ValueRaised.AddOverflow(staged.ValueRaised, valueIn); overflow {
		return domain.Trade{}, domain.ErrArithmeticOverflow
	}
	if _, overflow := staged.Reserve.AddOverflow(staged.Reserve, net); overflow {
		return domain.Trade{}, domain.ErrArithmeticOverflow
	}
	staged.TreasuryValue.Add(staged.TreasuryValue, fee)

	transfers := []domain.Transfer{{
		MarketID: marketID,
		From:     domain.CurveAccount,
		To:       buyer,
		Amount:   tokensOut,
	}}

	// Graduation: one-way, exactly once, and all-or-nothing with the
	// external hand-off. A provisioning failure fails this buy too.
	if !staged.Graduated && !staged.ValueRaised.Lt(m.Curve.TargetRaise) {
		remaining := new(uint256.Int).Sub(curveBalance, tokensOut)
		liquidityValue, err := bpsShare(staged.Reserve, e.cfg.LiquidityShareBps)
		if err != nil {
			return domain.Trade{}, err
		}
		if err := e.liquidity.Provision(ctx, marketID, m.Symbol, remaining, liquidityValue); err != nil {
			return domain.Trade{}, fmt.Errorf("market: graduation provisioning %d: %w", marketID, err)
		}
		now := time.Now().UTC()
		staged.Graduated = true
		staged.GraduatedAt = &now
		staged.Reserve.Sub(staged.Reserve, liquidityValue)
		if !remaining.IsZero() {
			transfers = append(transfers, domain.Transfer{
				MarketID: marketID,
				From:     domain.CurveAccount,
				To:       domain.LiquidityAccount,
				Amount:   remaining,
			})
		}
	}

	if err := e.ledger.Apply(ctx, transfers); err != nil {
		return domain.Trade{}, fmt.Errorf("market: buy %d: %w", marketID, err)
	}
	if err := e.markets.Update(ctx, staged); err != nil {
		return domain.Trade{}, fmt.Errorf("market: buy %d: persist: %w", marketID, err)
	}

	trade := domain.Trade{
		ID:        uuid.New().String(),
		MarketID:  marketID,
		Agent:     buyer,
		Side:      domain.TradeSideBuy,
		Tokens:    tokensOut,
		Value:     new(uint256.Int).Set(valueIn),
		Fee:       fee,
		CreatedAt: time.Now().UTC(),
	}
	e.recordTrade(ctx, staged, trade)

	if staged.Graduated {
		e.publish(ctx, "markets", map[string]any{
			"event":     "market_graduated",
			"market_id": marketID,
		})
		e.logger.InfoContext(ctx, "market: graduated",
			slog.Int64("market_id", marketID),
			slog.String("value_raised", staged.ValueRaised.Dec()),
		)
	}
	return trade, nil
}

// Sell returns tokensIn to the curve for the closed-form sale value, less the
// fee. ValueRaised is untouched; only the reserve shrinks.
func (e *Engine) Sell(ctx context.Context, marketID int64, seller domain.Agent, tokensIn, minValueOut *uint256.Int) (domain.Trade, error) {
	if domain.IsReservedAccount(seller) {
		return domain.Trade{}, fmt.Errorf("market: sell %d: %w", marketID, domain.ErrReservedAccount)
	}
	unlock, err := e.lock(ctx, marketID)
	if err != nil {
		return domain.Trade{}, err
	}
	defer unlock()

	m, err := e.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("market: sell %d: %w", marketID, err)
	}
	if m.Graduated {
		return domain.Trade{}, domain.ErrMarketGraduated
	}

	held, err := e.ledger.BalanceOf(ctx, marketID, seller)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("market: sell %d: %w", marketID, err)
	}
	if tokensIn.Gt(held) {
		return domain.Trade{}, domain.ErrInsufficientTokensHeld
	}

	valueOut, err := curve.New(m.Curve).Sale(m.TokensSold, tokensIn)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("market: sell %d: %w", marketID, err)
	}
	fee, err := bpsShare(valueOut, m.FeeBps)
	if err != nil {
		return domain.Trade{}, err
	}
	net := new(uint256.Int).Sub(valueOut, fee)
	if minValueOut != nil && net.Lt(minValueOut) {
		return domain.Trade{}, domain.ErrSlippageExceeded
	}
	// The gross value leaves the reserve: the net to the seller, the fee to
	// the treasury.
	if valueOut.Gt(m.Reserve) {
		return domain.Trade{}, domain.ErrInsufficientReserve
	}

	staged := m.Clone()
	staged.TokensSold.Sub(staged.TokensSold, tokensIn)
	staged.Reserve.Sub(staged.Reserve, valueOut)
	staged.TreasuryValue.Add(staged.TreasuryValue, fee)

	err = e.ledger.Apply(ctx, []domain.Transfer{{
		MarketID: marketID,
		From:     seller,
		To:       domain.CurveAccount,
		Amount:   tokensIn,
	}})
	if err != nil {
		return domain.Trade{}, fmt.Errorf("market: sell %d: %w", marketID, err)
	}
	if err := e.markets.Update(ctx, staged); err != nil {
		return domain.Trade{}, fmt.Errorf("market: sell %d: persist: %w", marketID, err)
	}

	trade := domain.Trade{
		ID:        uuid.New().String(),
		MarketID:  marketID,
		Agent:     seller,
		Side:      domain.TradeSideSell,
		Tokens:    new(uint256.Int).Set(tokensIn),
		Value:     net,
		Fee:       fee,
		CreatedAt: time.Now().UTC(),
	}
	e.recordTrade(ctx, staged, trade)
	return trade, nil
}

// SetFee applies an approved AdjustFees proposal.
func (e *Engine) SetFee(ctx context.Context, marketID int64, feeBps uint32) error {
	unlock, err := e.lock(ctx, marketID)
	if err != nil {
		return err
	}
	defer unlock()

	m, err := e.markets.GetByID(ctx, marketID)
	if err != nil {
		return fmt.Errorf("market: set fee %d: %w", marketID, err)
	}
	staged := m.Clone()
	staged.FeeBps = feeBps
	if err := e.markets.Update(ctx, staged); err != nil {
		return fmt.Errorf("market: set fee %d: %w", marketID, err)
	}
	e.logger.InfoContext(ctx, "market: fee adjusted",
		slog.Int64("market_id", marketID),
		slog.Int("fee_bps", int(feeBps)),
	)
	return nil
}

// ForceGraduate graduates a market regardless of value raised. Used by an
// approved unanimous ForceGraduate proposal.
func (e *Engine) ForceGraduate(ctx context.Context, marketID int64) error {
	unlock, err := e.lock(ctx, marketID)
	if err != nil {
		return err
	}
	defer unlock()

	m, err := e.markets.GetByID(ctx, marketID)
	if err != nil {
		return fmt.Errorf("market: force graduate %d: %w", marketID, err)
	}
	if m.Graduated {
		return domain.ErrMarketGraduated
	}

	curveBalance, err := e.ledger.BalanceOf(ctx, marketID, domain.CurveAccount)
	if err != nil {
		return fmt.Errorf("market: force graduate %d: %w", marketID, err)
	}
	liquidityValue, err := bpsShare(m.Reserve, e.cfg.LiquidityShareBps)
	if err != nil {
		return err
	}
	if err := e.liquidity.Provision(ctx, marketID, m.Symbol, curveBalance, liquidityValue); err != nil {
		return fmt.Errorf("market: force graduate %d: provisioning: %w", marketID, err)
	}

	staged := m.Clone()
	now := time.Now().UTC()
	staged.Graduated = true
	staged.GraduatedAt = &now
	staged.Reserve.Sub(staged.Reserve, liquidityValue)

	if !curveBalance.IsZero() {
		err = e.ledger.Apply(ctx, []domain.Transfer{{
			MarketID: marketID,
			From:     domain.CurveAccount,
			To:       domain.LiquidityAccount,
			Amount:   curveBalance,
		}})
		if err != nil {
			return fmt.Errorf("market: force graduate %d: %w", marketID, err)
		}
	}
	if err := e.markets.Update(ctx, staged); err != nil {
		return fmt.Errorf("market: force graduate %d: persist: %w", marketID, err)
	}

	e.publish(ctx, "markets", map[string]any{
		"event":     "market_graduated",
		"market_id": marketID,
		"forced":    true,
	})
	return nil
}

// SpendTreasury applies an approved TreasurySpend proposal against the
// market's accumulated fee treasury.
func (e *Engine) SpendTreasury(ctx context.Context, marketID int64, amount *uint256.Int, recipient domain.Agent) error {
	unlock, err := e.lock(ctx, marketID)
	if err != nil {
		return err
	}
	defer unlock()

	m, err := e.markets.GetByID(ctx, marketID)
	if err != nil {
		return fmt.Errorf("market: treasury spend %d: %w", marketID, err)
	}
	if amount.Gt(m.TreasuryValue) {
		return domain.ErrInsufficientTreasury
	}

	staged := m.Clone()
	staged.TreasuryValue.Sub(staged.TreasuryValue, amount)
	if err := e.markets.Update(ctx, staged); err != nil {
		return fmt.Errorf("market: treasury spend %d: persist: %w", marketID, err)
	}

	e.logger.InfoContext(ctx, "market: treasury spend",
		slog.Int64("market_id", marketID),
		slog.String("amount", amount.Dec()),
		slog.String("recipient", recipient.Hex()),
	)
	return nil
}

// GetMarket returns a snapshot of one market.
func (e *Engine) GetMarket(ctx context.Context, marketID int64) (*domain.Market, error) {
	m, err := e.markets.GetByID(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("market: get %d: %w", marketID, err)
	}
	return m, nil
}

// ListMarkets returns market snapshots with pagination.
func (e *Engine) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]*domain.Market, error) {
	ms, err := e.markets.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market: list: %w", err)
	}
	return ms, nil
}

// CurrentPrice returns the spot price, preferring the cache when wired.
func (e *Engine) CurrentPrice(ctx context.Context, marketID int64) (*uint256.Int, error) {
	if e.prices != nil {
		if p, _, err := e.prices.GetPrice(ctx, marketID); err == nil {
			return p, nil
		}
	}
	m, err := e.markets.GetByID(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("market: price %d: %w", marketID, err)
	}
	p, err := curve.New(m.Curve).Price(m.TokensSold)
	if err != nil {
		return nil, fmt.Errorf("market: price %d: %w", marketID, err)
	}
	if e.prices != nil {
		if cacheErr := e.prices.SetPrice(ctx, marketID, p, time.Now().UTC()); cacheErr != nil {
			e.logger.WarnContext(ctx, "market: price cache set failed",
				slog.Int64("market_id", marketID),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return p, nil
}

// QuoteBuy computes the tokens a value purchase would currently return,
// after fees, without mutating anything.
func (e *Engine) QuoteBuy(ctx context.Context, marketID int64, valueIn *uint256.Int) (*uint256.Int, error) {
	m, err := e.markets.GetByID(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("market: quote buy %d: %w", marketID, err)
	}
	fee, err := bpsShare(valueIn, m.FeeBps)
	if err != nil {
		return nil, err
	}
	net := new(uint256.Int).Sub(valueIn, fee)
	out, err := curve.New(m.Curve).Purchase(m.TokensSold, net, e.cfg.PrecisionFloor)
	if err != nil {
		return nil, fmt.Errorf("market: quote buy %d: %w", marketID, err)
	}
	return out, nil
}

// QuoteSell computes the net value a token sale would currently return.
func (e *Engine) QuoteSell(ctx context.Context, marketID int64, tokensIn *uint256.Int) (*uint256.Int, error) {
	m, err := e.markets.GetByID(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("market: quote sell %d: %w", marketID, err)
	}
	valueOut, err := curve.New(m.Curve).Sale(m.TokensSold, tokensIn)
	if err != nil {
		return nil, fmt.Errorf("market: quote sell %d: %w", marketID, err)
	}
	fee, err := bpsShare(valueOut, m.FeeBps)
	if err != nil {
		return nil, err
	}
	return valueOut.Sub(valueOut, fee), nil
}

// ListTrades returns fills for one market.
func (e *Engine) ListTrades(ctx context.Context, marketID int64, opts domain.ListOpts) ([]domain.Trade, error) {
	ts, err := e.trades.ListByMarket(ctx, marketID, opts)
	if err != nil {
		return nil, fmt.Errorf("market: list trades %d: %w", marketID, err)
	}
	return ts, nil
}

// recordTrade persists the fill and refreshes derived read paths. Failures
// here are logged, not returned: the trade itself already committed.
func (e *Engine) recordTrade(ctx context.Context, m *domain.Market, t domain.Trade) {
	if err := e.trades.Insert(ctx, t); err != nil {
		e.logger.WarnContext(ctx, "market: trade record failed",
			slog.String("trade_id", t.ID),
			slog.String("error", err.Error()),
		)
	}
	e.cachePrice(ctx, m)
	e.publish(ctx, "trades", map[string]any{
		"event":     "trade",
		"trade_id":  t.ID,
		"market_id": t.MarketID,
		"side":      string(t.Side),
		"tokens":    t.Tokens.Dec(),
		"value":     t.Value.Dec(),
	})
}

func (e *Engine) cachePrice(ctx context.Context, m *domain.Market) {
	if e.prices == nil {
		return
	}
	p, err := curve.New(m.Curve).Price(m.TokensSold)
	if err != nil {
		return
	}
	if err := e.prices.SetPrice(ctx, m.ID, p, time.Now().UTC()); err != nil {
		e.logger.WarnContext(ctx, "market: price cache set failed",
			slog.Int64("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) publish(ctx context.Context, channel string, event map[string]any) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, channel, payload); err != nil {
		e.logger.WarnContext(ctx, "market: publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

// bpsShare returns v*bps/10000 with checked arithmetic.
func bpsShare(v *uint256.Int, bps uint32) (*uint256.Int, error) {
	out := new(uint256.Int)
	if _, overflow := out.MulOverflow(v, uint256.NewInt(uint64(bps))); overflow {
		return nil, domain.ErrArithmeticOverflow
	}
	return out.Div(out, uint256.NewInt(bpsDenominator)), nil
}

// Compile-time interface check.
var _ domain.MarketAdmin = (*Engine)(nil)
