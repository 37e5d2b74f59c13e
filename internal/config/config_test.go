package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"DB_DSN", "MIN_ORDER", "MAX_ORDER", "MAX_REPLY_TOKENS", "WRITE_TO_REDIS_FREQ", "REPLY_PROB", "REDIS_ADDR"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	require.Equal(t, "sqlite:chatmimic.db", cfg.DBDSN)
	require.Equal(t, "127.0.0.1:6379", cfg.RedisAddr)
	require.Equal(t, 1, cfg.MinOrder)
	require.Equal(t, 3, cfg.MaxOrder)
	require.Equal(t, 15, cfg.MaxReplyTokens)
	require.Equal(t, 100, cfg.MaxGenRetries)
	require.Equal(t, 10, cfg.WriteToRedisFreq)
	require.Equal(t, 5*time.Second, cfg.ReplyTimeout)
	require.InDelta(t, 0.01, cfg.ReplyProb, 1e-9)
	require.InDelta(t, 0.1, cfg.KnownWordReplyProb, 1e-9)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MIN_ORDER", "2")
	t.Setenv("MAX_ORDER", "4")
	t.Setenv("WRITE_TO_REDIS_FREQ", "25")
	t.Setenv("REPLY_PROB", "0.5")
	t.Setenv("REPLY_TIMEOUT_SEC", "30")
	t.Setenv("DEBUG", "true")

	cfg := Load()
	require.Equal(t, 2, cfg.MinOrder)
	require.Equal(t, 4, cfg.MaxOrder)
	require.Equal(t, 25, cfg.WriteToRedisFreq)
	require.InDelta(t, 0.5, cfg.ReplyProb, 1e-9)
	require.Equal(t, 30*time.Second, cfg.ReplyTimeout)
	require.True(t, cfg.Debug)
}

func TestLoad_RejectsNonsense(t *testing.T) {
	t.Setenv("MIN_ORDER", "0")
	t.Setenv("MAX_ORDER", "-1")
	t.Setenv("WRITE_TO_REDIS_FREQ", "0")
	t.Setenv("REPLY_PROB", "7")
	t.Setenv("MAX_GEN_RETRIES", "many")

	cfg := Load()
	require.Equal(t, 1, cfg.MinOrder)
	require.Equal(t, 1, cfg.MaxOrder)
	require.Equal(t, 10, cfg.WriteToRedisFreq)
	require.InDelta(t, 0.01, cfg.ReplyProb, 1e-9)
	require.Equal(t, 100, cfg.MaxGenRetries)
}
