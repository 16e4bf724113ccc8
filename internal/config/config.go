// Package config defines the top-level configuration for the launchpad and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by LAUNCHPAD_* environment variables.
type Config struct {
	Database   DatabaseConfig   `toml:"database"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Server     ServerConfig     `toml:"server"`
	Governance GovernanceConfig `toml:"governance"`
	Market     MarketConfig     `toml:"market"`
	Liquidity  LiquidityConfig  `toml:"liquidity"`
	Archive    ArchiveConfig    `toml:"archive"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"` // empty disables authentication

	// Per-client rate limit for trade endpoints; 0 disables limiting.
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// GovernanceConfig holds the proposal state-machine parameters. Amount-like
// values are 18-decimal fixed-point integers given as decimal strings.
type GovernanceConfig struct {
	VotingWindow         duration `toml:"voting_window"`
	ExecutionWindow      duration `toml:"execution_window"`
	ApprovalThresholdBps int      `toml:"approval_threshold_bps"`
	MinQuorumSize        int      `toml:"min_quorum_size"`
	MaxQuorumSize        int      `toml:"max_quorum_size"`
	DefaultBasePrice     string   `toml:"default_base_price"`
	DefaultSlope         string   `toml:"default_slope"`
	DefaultTargetRaise   string   `toml:"default_target_raise"`
	DefaultTotalSupply   string   `toml:"default_total_supply"`
}

// MarketConfig holds the market factory and trading parameters.
type MarketConfig struct {
	FeeBps                int      `toml:"fee_bps"`
	MinPurchase           string   `toml:"min_purchase"`
	QuorumAllocationBps   int      `toml:"quorum_allocation_bps"`
	CurveAllocationBps    int      `toml:"curve_allocation_bps"`
	TreasuryAllocationBps int      `toml:"treasury_allocation_bps"`
	LiquidityShareBps     int      `toml:"liquidity_share_bps"`
	PrecisionFloor        string   `toml:"precision_floor"`
	LockTTL               duration `toml:"lock_ttl"`
}

// LiquidityConfig holds the external AMM hand-off endpoint and credentials.
// The API secret may be supplied inline or as an encrypted file plus password.
type LiquidityConfig struct {
	BaseURL             string   `toml:"base_url"`
	APIKey              string   `toml:"api_key"`
	APISecret           string   `toml:"api_secret"`
	EncryptedSecretPath string   `toml:"encrypted_secret_path"`
	SecretPassword      string   `toml:"secret_password"`
	RequestTimeout      duration `toml:"request_timeout"`
}

// NotifyConfig holds operator notification channels. All channels are
// optional; Events filters which event types are forwarded (empty allows all).
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ArchiveConfig holds the trade/proposal archival parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
	BatchSize     int      `toml:"batch_size"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "72h", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "72h".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "launchpad",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "launchpad-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       60,
			RateLimitWindow: duration{time.Minute},
		},
		Governance: GovernanceConfig{
			VotingWindow:         duration{72 * time.Hour},
			ExecutionWindow:      duration{168 * time.Hour},
			ApprovalThresholdBps: 6666,
			MinQuorumSize:        3,
			MaxQuorumSize:        10,
			DefaultBasePrice:     "100000000000000",          // 0.0001
			DefaultSlope:         "10000000000",              // 0.00000001
			DefaultTargetRaise:   "10000000000000000000",     // 10
			DefaultTotalSupply:   "1000000000000000000000000000", // 1e9 tokens
		},
		Market: MarketConfig{
			FeeBps:                100,
			MinPurchase:           "1000000000000000", // 0.001
			QuorumAllocationBps:   3000,
			CurveAllocationBps:    6000,
			TreasuryAllocationBps: 1000,
			LiquidityShareBps:     8000,
			PrecisionFloor:        "1000000000000000", // 0.001 token
			LockTTL:               duration{10 * time.Second},
		},
		Liquidity: LiquidityConfig{
			BaseURL:        "http://localhost:9100",
			RequestTimeout: duration{15 * time.Second},
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{6 * time.Hour},
			BatchSize:     1000,
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"full":   true,
	"memory": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, memory)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	full := strings.ToLower(c.Mode) == "full"

	// Database — only exercised in full mode.
	if full {
		if strings.TrimSpace(c.Database.DSN) == "" {
			if c.Database.Host == "" {
				errs = append(errs, "database: host must not be empty (or set database.dsn)")
			}
			if c.Database.Port <= 0 || c.Database.Port > 65535 {
				errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
			}
			if c.Database.Database == "" {
				errs = append(errs, "database: database must not be empty")
			}
		}
		if c.Database.PoolMaxConns < 1 {
			errs = append(errs, "database: pool_max_conns must be >= 1")
		}
		if c.Database.PoolMinConns < 0 {
			errs = append(errs, "database: pool_min_conns must be >= 0")
		}
		if c.Database.PoolMinConns > c.Database.PoolMaxConns {
			errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
		}

		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}

		if c.Archive.Enabled {
			if c.S3.Endpoint == "" {
				errs = append(errs, "s3: endpoint must not be empty when archiving is enabled")
			}
			if c.S3.Bucket == "" {
				errs = append(errs, "s3: bucket must not be empty when archiving is enabled")
			}
			if c.Archive.RetentionDays < 1 {
				errs = append(errs, "archive: retention_days must be >= 1")
			}
			if c.Archive.BatchSize < 1 {
				errs = append(errs, "archive: batch_size must be >= 1")
			}
		}
	}

	// Governance
	if c.Governance.VotingWindow.Duration <= 0 {
		errs = append(errs, "governance: voting_window must be positive")
	}
	if c.Governance.ExecutionWindow.Duration <= 0 {
		errs = append(errs, "governance: execution_window must be positive")
	}
	if c.Governance.ApprovalThresholdBps <= 0 || c.Governance.ApprovalThresholdBps > 10000 {
		errs = append(errs, fmt.Sprintf("governance: approval_threshold_bps must be 1-10000, got %d", c.Governance.ApprovalThresholdBps))
	}
	if c.Governance.MinQuorumSize < 1 {
		errs = append(errs, "governance: min_quorum_size must be >= 1")
	}
	if c.Governance.MaxQuorumSize < c.Governance.MinQuorumSize {
		errs = append(errs, "governance: max_quorum_size must be >= min_quorum_size")
	}

	// Market
	if c.Market.FeeBps < 0 || c.Market.FeeBps > 10000 {
		errs = append(errs, fmt.Sprintf("market: fee_bps must be 0-10000, got %d", c.Market.FeeBps))
	}
	allocSum := c.Market.QuorumAllocationBps + c.Market.CurveAllocationBps + c.Market.TreasuryAllocationBps
	if allocSum != 10000 {
		errs = append(errs, fmt.Sprintf("market: allocation bps must sum to 10000, got %d", allocSum))
	}
	if c.Market.LiquidityShareBps < 0 || c.Market.LiquidityShareBps > 10000 {
		errs = append(errs, fmt.Sprintf("market: liquidity_share_bps must be 0-10000, got %d", c.Market.LiquidityShareBps))
	}

	// Liquidity
	if full {
		if c.Liquidity.BaseURL == "" {
			errs = append(errs, "liquidity: base_url must not be empty")
		}
		if c.Liquidity.EncryptedSecretPath != "" && c.Liquidity.SecretPassword == "" {
			errs = append(errs, "liquidity: secret_password is required when encrypted_secret_path is set")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
