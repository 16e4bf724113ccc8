package domain

import (
	"context"

	"github.com/holiman/uint256"
)

// Transfer moves tokens of one market between holders. The zero Agent is the
// market's own curve account; treasury holdings use TreasuryAccount.
type Transfer struct {
	MarketID int64
	From     Agent
	To       Agent
	Amount   *uint256.Int
}

// Well-known ledger accounts. CurveAccount (the zero address) holds each
// market's curve-available balance, TreasuryAccount its protocol treasury
// allocation, and LiquidityAccount receives the graduation hand-off.
var (
	CurveAccount     = Agent{}
	TreasuryAccount  = Agent{0xff}
	LiquidityAccount = Agent{0xfe}
)

// IsReservedAccount reports whether a is one of the well-known ledger
// accounts. Reserved accounts only move tokens through engine internals;
// they are never valid as an external trading agent.
func IsReservedAccount(a Agent) bool {
	return a == CurveAccount || a == TreasuryAccount || a == LiquidityAccount
}

// TokenLedger is the fungible-token collaborator: minting at market creation,
// transfers on trades, balance queries. Apply is atomic; either every transfer
// lands or none do.
type TokenLedger interface {
	Mint(ctx context.Context, marketID int64, to Agent, amount *uint256.Int) error
	Apply(ctx context.Context, transfers []Transfer) error
	BalanceOf(ctx context.Context, marketID int64, holder Agent) (*uint256.Int, error)
}

// LiquidityProvisioner is the external automated-market-maker collaborator,
// invoked exactly once per market at graduation. A failure must abort the
// triggering operation; no market may be marked graduated without a
// successful provision.
type LiquidityProvisioner interface {
	Provision(ctx context.Context, marketID int64, symbol string, tokens, value *uint256.Int) error
}

// MarketCreator is the capability the governance engine holds on the market
// factory. Governance never receives a reference back.
type MarketCreator interface {
	CreateMarket(ctx context.Context, quorum *Quorum, params CurveParameters, totalSupply *uint256.Int, name, symbol, thesis string) (*Market, error)
}

// MarketAdmin extends MarketCreator with the mutations later proposals apply
// to existing markets. Still a one-way capability; the factory holds no
// reference to governance.
type MarketAdmin interface {
	MarketCreator
	SetFee(ctx context.Context, marketID int64, feeBps uint32) error
	ForceGraduate(ctx context.Context, marketID int64) error
	SpendTreasury(ctx context.Context, marketID int64, amount *uint256.Int, recipient Agent) error
}
