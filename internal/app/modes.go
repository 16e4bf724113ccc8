package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"

	"github.com/quorumlabs/launchpad/internal/config"
	"github.com/quorumlabs/launchpad/internal/govern"
	"github.com/quorumlabs/launchpad/internal/market"
	"github.com/quorumlabs/launchpad/internal/notify"
	"github.com/quorumlabs/launchpad/internal/server"
	"github.com/quorumlabs/launchpad/internal/server/handler"
	"github.com/quorumlabs/launchpad/internal/server/ws"
)

// shutdownTimeout bounds graceful HTTP shutdown on exit.
const shutdownTimeout = 10 * time.Second

// Serve assembles the engines and the HTTP/WebSocket surface from the wired
// dependencies and blocks until the context is cancelled.
func (a *App) Serve(ctx context.Context, deps *Dependencies) error {
	marketCfg, err := marketConfigFrom(a.cfg)
	if err != nil {
		return fmt.Errorf("app: market config: %w", err)
	}
	governCfg, err := governConfigFrom(a.cfg)
	if err != nil {
		return fmt.Errorf("app: governance config: %w", err)
	}

	marketEngine := market.NewEngine(
		marketCfg,
		deps.MarketStore,
		deps.TradeStore,
		deps.Ledger,
		deps.Liquidity,
		deps.PriceCache,
		deps.SignalBus,
		deps.LockManager,
		a.logger,
	)
	governEngine := govern.NewEngine(
		governCfg,
		deps.ProposalStore,
		deps.QuorumStore,
		marketEngine,
		deps.AuditStore,
		deps.SignalBus,
		a.logger,
	)

	g, gctx := errgroup.WithContext(ctx)

	// Archival loop.
	if deps.Archiver != nil {
		retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
		g.Go(func() error {
			deps.Archiver.Run(gctx, a.cfg.Archive.Interval.Duration, retention)
			return nil
		})
	}

	// Operator notifications ride on the signal bus.
	if deps.Notifier != nil && deps.SignalBus != nil {
		watcher := notify.NewWatcher(deps.SignalBus, deps.Notifier, a.logger)
		g.Go(func() error {
			if err := watcher.Run(gctx); err != nil && gctx.Err() == nil {
				a.logger.Error("notify watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// WebSocket hub rides on the signal bus; without a bus there is nothing
	// to fan out.
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			StartedAt: time.Now().UTC(),
		})
		g.Go(func() error {
			if err := hub.Run(gctx); err != nil && gctx.Err() == nil {
				a.logger.Error("ws hub stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "server disabled, running headless")
		<-gctx.Done()
		return g.Wait()
	}

	srv := server.NewServer(
		server.Config{
			Port:            a.cfg.Server.Port,
			CORSOrigins:     a.cfg.Server.CORSOrigins,
			APIKey:          a.cfg.Server.APIKey,
			RateLimit:       a.cfg.Server.RateLimit,
			RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
		},
		server.Handlers{
			Health:     handler.NewHealthHandler(deps.HealthChecks, a.logger),
			Markets:    handler.NewMarketHandler(marketEngine, a.logger),
			Governance: handler.NewGovernanceHandler(governEngine, a.logger),
			Archives:   handler.NewArchiveHandler(deps.BlobReader, a.logger),
		},
		hub,
		deps.RateLimiter,
		a.logger,
	)

	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// marketConfigFrom converts the wire-format market configuration (decimal
// strings) into engine parameters.
func marketConfigFrom(cfg *config.Config) (market.Config, error) {
	out := market.DefaultConfig()
	out.FeeBps = uint32(cfg.Market.FeeBps)
	out.QuorumAllocationBps = uint32(cfg.Market.QuorumAllocationBps)
	out.CurveAllocationBps = uint32(cfg.Market.CurveAllocationBps)
	out.TreasuryAllocationBps = uint32(cfg.Market.TreasuryAllocationBps)
	out.LiquidityShareBps = uint32(cfg.Market.LiquidityShareBps)
	out.MinQuorumSize = cfg.Governance.MinQuorumSize
	out.MaxQuorumSize = cfg.Governance.MaxQuorumSize
	out.LockTTL = cfg.Market.LockTTL.Duration

	var err error
	if out.MinPurchase, err = parseAmount("market.min_purchase", cfg.Market.MinPurchase); err != nil {
		return market.Config{}, err
	}
	if out.PrecisionFloor, err = parseAmount("market.precision_floor", cfg.Market.PrecisionFloor); err != nil {
		return market.Config{}, err
	}
	return out, nil
}

// governConfigFrom converts the wire-format governance configuration into
// engine parameters.
func governConfigFrom(cfg *config.Config) (govern.Config, error) {
	out := govern.Config{
		VotingWindow:         cfg.Governance.VotingWindow.Duration,
		ExecutionWindow:      cfg.Governance.ExecutionWindow.Duration,
		ApprovalThresholdBps: cfg.Governance.ApprovalThresholdBps,
		MinQuorumSize:        cfg.Governance.MinQuorumSize,
		MaxQuorumSize:        cfg.Governance.MaxQuorumSize,
	}

	var err error
	if out.DefaultBasePrice, err = parseAmount("governance.default_base_price", cfg.Governance.DefaultBasePrice); err != nil {
		return govern.Config{}, err
	}
	if out.DefaultSlope, err = parseAmount("governance.default_slope", cfg.Governance.DefaultSlope); err != nil {
		return govern.Config{}, err
	}
	if out.DefaultTargetRaise, err = parseAmount("governance.default_target_raise", cfg.Governance.DefaultTargetRaise); err != nil {
		return govern.Config{}, err
	}
	if out.DefaultTotalSupply, err = parseAmount("governance.default_total_supply", cfg.Governance.DefaultTotalSupply); err != nil {
		return govern.Config{}, err
	}
	return out, nil
}

// parseAmount parses a decimal-string amount from the configuration.
func parseAmount(field, s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return v, nil
}
