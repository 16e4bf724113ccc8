package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadAllocationSplit(t *testing.T) {
	cfg := Defaults()
	cfg.Market.CurveAllocationBps = 5000 // sum 9000

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "allocation bps must sum to 10000")
}

func TestValidateMemoryModeSkipsInfra(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "memory"
	cfg.Database.Host = ""
	cfg.Redis.Addr = ""
	cfg.Liquidity.BaseURL = ""

	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "hybrid"

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown mode")
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Database.Password = "hunter2"
	cfg.Redis.Password = "redispass"
	cfg.S3.SecretKey = "s3secret"
	cfg.Server.APIKey = "apikey"
	cfg.Liquidity.APISecret = "lpsecret"
	cfg.Notify.TelegramToken = "tg-token"

	out := RedactedConfig(&cfg)

	require.Equal(t, "***", out.Database.Password)
	require.Equal(t, "***", out.Redis.Password)
	require.Equal(t, "***", out.S3.SecretKey)
	require.Equal(t, "***", out.Server.APIKey)
	require.Equal(t, "***", out.Liquidity.APISecret)
	require.Equal(t, "***", out.Notify.TelegramToken)

	// Originals untouched.
	require.Equal(t, "hunter2", cfg.Database.Password)

	// Slice copies do not alias the source.
	out.Server.CORSOrigins[0] = "mutated"
	require.NotEqual(t, "mutated", cfg.Server.CORSOrigins[0])
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LAUNCHPAD_MODE", "memory")
	t.Setenv("LAUNCHPAD_MARKET_FEE_BPS", "250")
	t.Setenv("LAUNCHPAD_GOVERNANCE_VOTING_WINDOW", "24h")
	t.Setenv("LAUNCHPAD_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	require.Equal(t, "memory", cfg.Mode)
	require.Equal(t, 250, cfg.Market.FeeBps)
	require.Equal(t, 24*time.Hour, cfg.Governance.VotingWindow.Duration)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}
