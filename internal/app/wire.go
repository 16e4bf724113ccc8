package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/quorumlabs/launchpad/internal/blob/s3"
	"github.com/quorumlabs/launchpad/internal/cache/redis"
	"github.com/quorumlabs/launchpad/internal/config"
	"github.com/quorumlabs/launchpad/internal/crypto"
	"github.com/quorumlabs/launchpad/internal/domain"
	"github.com/quorumlabs/launchpad/internal/notify"
	"github.com/quorumlabs/launchpad/internal/platform/amm"
	"github.com/quorumlabs/launchpad/internal/server/handler"
	"github.com/quorumlabs/launchpad/internal/store/memory"
	"github.com/quorumlabs/launchpad/internal/store/postgres"
	"github.com/quorumlabs/launchpad/internal/token"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	MarketStore   domain.MarketStore
	QuorumStore   domain.QuorumStore
	ProposalStore domain.ProposalStore
	TradeStore    domain.TradeStore
	AuditStore    domain.AuditStore

	// Token accounting (in-process in every mode).
	Ledger domain.TokenLedger

	// Caches and coordination (nil in memory mode).
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage (nil unless archiving is enabled).
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   *s3blob.Archiver

	// Graduation hand-off.
	Liquidity domain.LiquidityProvisioner

	// Operator notifications (nil when no channels are configured).
	Notifier *notify.Notifier

	// Health probes by component name.
	HealthChecks map[string]handler.Pinger
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Ledger:       token.NewLedger(),
		HealthChecks: map[string]handler.Pinger{},
	}

	if strings.ToLower(cfg.Mode) == "memory" {
		// Self-contained mode: everything in-process, no external services.
		deps.MarketStore = memory.NewMarketStore()
		deps.QuorumStore = memory.NewQuorumStore()
		deps.ProposalStore = memory.NewProposalStore()
		deps.TradeStore = memory.NewTradeStore()
		deps.AuditStore = memory.NewAuditStore()
		deps.Liquidity = amm.NewNoopProvisioner(logger)
		return deps, cleanup, nil
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.QuorumStore = postgres.NewQuorumStore(pool)
	deps.ProposalStore = postgres.NewProposalStore(pool)
	deps.TradeStore = postgres.NewTradeStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)
	deps.HealthChecks["postgres"] = pool.Ping

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.HealthChecks["redis"] = redisClient.Ping

	// --- S3 blob storage (only when archiving is on) ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(
			deps.BlobWriter,
			deps.TradeStore,
			deps.ProposalStore,
			deps.AuditStore,
			cfg.Archive.BatchSize,
			logger,
		)
		deps.HealthChecks["s3"] = s3Client.Health
	}

	// --- Liquidity venue ---
	secret, err := crypto.LoadSecret(crypto.SecretConfig{
		RawSecret:           cfg.Liquidity.APISecret,
		EncryptedSecretPath: cfg.Liquidity.EncryptedSecretPath,
		SecretPassword:      cfg.Liquidity.SecretPassword,
	})
	if err != nil {
		// A venue without credentials still accepts unsigned requests in
		// development setups; warn and continue with an empty secret.
		logger.Warn("wire: liquidity secret not configured", slog.String("error", err.Error()))
		secret = ""
	}
	deps.Liquidity = amm.NewClient(
		cfg.Liquidity.BaseURL,
		cfg.Liquidity.APIKey,
		secret,
		cfg.Liquidity.RequestTimeout.Duration,
	)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	return deps, cleanup, nil
}
