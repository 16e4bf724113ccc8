package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies LAUNCHPAD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known LAUNCHPAD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "LAUNCHPAD_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "LAUNCHPAD_DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "LAUNCHPAD_DATABASE_HOST")
	setInt(&cfg.Database.Port, "LAUNCHPAD_DATABASE_PORT")
	setStr(&cfg.Database.Database, "LAUNCHPAD_DATABASE_DATABASE")
	setStr(&cfg.Database.User, "LAUNCHPAD_DATABASE_USER")
	setStr(&cfg.Database.Password, "LAUNCHPAD_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "LAUNCHPAD_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "LAUNCHPAD_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "LAUNCHPAD_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "LAUNCHPAD_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "LAUNCHPAD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LAUNCHPAD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LAUNCHPAD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "LAUNCHPAD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "LAUNCHPAD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "LAUNCHPAD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "LAUNCHPAD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "LAUNCHPAD_S3_REGION")
	setStr(&cfg.S3.Bucket, "LAUNCHPAD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "LAUNCHPAD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "LAUNCHPAD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "LAUNCHPAD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "LAUNCHPAD_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "LAUNCHPAD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "LAUNCHPAD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "LAUNCHPAD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "LAUNCHPAD_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "LAUNCHPAD_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "LAUNCHPAD_SERVER_RATE_LIMIT_WINDOW")

	// ── Governance ──
	setDuration(&cfg.Governance.VotingWindow, "LAUNCHPAD_GOVERNANCE_VOTING_WINDOW")
	setDuration(&cfg.Governance.ExecutionWindow, "LAUNCHPAD_GOVERNANCE_EXECUTION_WINDOW")
	setInt(&cfg.Governance.ApprovalThresholdBps, "LAUNCHPAD_GOVERNANCE_APPROVAL_THRESHOLD_BPS")
	setInt(&cfg.Governance.MinQuorumSize, "LAUNCHPAD_GOVERNANCE_MIN_QUORUM_SIZE")
	setInt(&cfg.Governance.MaxQuorumSize, "LAUNCHPAD_GOVERNANCE_MAX_QUORUM_SIZE")
	setStr(&cfg.Governance.DefaultBasePrice, "LAUNCHPAD_GOVERNANCE_DEFAULT_BASE_PRICE")
	setStr(&cfg.Governance.DefaultSlope, "LAUNCHPAD_GOVERNANCE_DEFAULT_SLOPE")
	setStr(&cfg.Governance.DefaultTargetRaise, "LAUNCHPAD_GOVERNANCE_DEFAULT_TARGET_RAISE")
	setStr(&cfg.Governance.DefaultTotalSupply, "LAUNCHPAD_GOVERNANCE_DEFAULT_TOTAL_SUPPLY")

	// ── Market ──
	setInt(&cfg.Market.FeeBps, "LAUNCHPAD_MARKET_FEE_BPS")
	setStr(&cfg.Market.MinPurchase, "LAUNCHPAD_MARKET_MIN_PURCHASE")
	setInt(&cfg.Market.QuorumAllocationBps, "LAUNCHPAD_MARKET_QUORUM_ALLOCATION_BPS")
	setInt(&cfg.Market.CurveAllocationBps, "LAUNCHPAD_MARKET_CURVE_ALLOCATION_BPS")
	setInt(&cfg.Market.TreasuryAllocationBps, "LAUNCHPAD_MARKET_TREASURY_ALLOCATION_BPS")
	setInt(&cfg.Market.LiquidityShareBps, "LAUNCHPAD_MARKET_LIQUIDITY_SHARE_BPS")
	setStr(&cfg.Market.PrecisionFloor, "LAUNCHPAD_MARKET_PRECISION_FLOOR")
	setDuration(&cfg.Market.LockTTL, "LAUNCHPAD_MARKET_LOCK_TTL")

	// ── Liquidity ──
	setStr(&cfg.Liquidity.BaseURL, "LAUNCHPAD_LIQUIDITY_BASE_URL")
	setStr(&cfg.Liquidity.APIKey, "LAUNCHPAD_LIQUIDITY_API_KEY")
	setStr(&cfg.Liquidity.APISecret, "LAUNCHPAD_LIQUIDITY_API_SECRET")
	setStr(&cfg.Liquidity.EncryptedSecretPath, "LAUNCHPAD_LIQUIDITY_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Liquidity.SecretPassword, "LAUNCHPAD_LIQUIDITY_SECRET_PASSWORD")
	setDuration(&cfg.Liquidity.RequestTimeout, "LAUNCHPAD_LIQUIDITY_REQUEST_TIMEOUT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "LAUNCHPAD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "LAUNCHPAD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "LAUNCHPAD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "LAUNCHPAD_NOTIFY_EVENTS")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "LAUNCHPAD_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "LAUNCHPAD_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "LAUNCHPAD_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.BatchSize, "LAUNCHPAD_ARCHIVE_BATCH_SIZE")

	// ── Top-level ──
	setStr(&cfg.Mode, "LAUNCHPAD_MODE")
	setStr(&cfg.LogLevel, "LAUNCHPAD_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
