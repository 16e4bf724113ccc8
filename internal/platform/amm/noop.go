package amm

import (
	"context"
	"log/slog"

	"github.com/holiman/uint256"

	"github.com/quorumlabs/launchpad/internal/domain"
)

// NoopProvisioner logs graduation hand-offs without calling any external
// venue. Used in memory mode, where no liquidity venue is configured.
type NoopProvisioner struct {
	logger *slog.Logger
}

var _ domain.LiquidityProvisioner = (*NoopProvisioner)(nil)

// NewNoopProvisioner creates a provisioner that accepts every hand-off.
func NewNoopProvisioner(logger *slog.Logger) *NoopProvisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopProvisioner{logger: logger.With("component", "amm-noop")}
}

// Provision records the hand-off and succeeds.
func (n *NoopProvisioner) Provision(ctx context.Context, marketID int64, symbol string, tokens, value *uint256.Int) error {
	n.logger.InfoContext(ctx, "liquidity hand-off (noop)",
		"market_id", marketID,
		"symbol", symbol,
		"tokens", tokens.Dec(),
		"value", value.Dec(),
	)
	return nil
}
