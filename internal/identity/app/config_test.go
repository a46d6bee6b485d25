package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"IDENTITY_ISSUER", "STORE_DRIVER", "PORT", "SESSION_TTL", "SYNC_ENABLED", "PUBLIC_URL"} {
		t.Setenv(k, "")
	}

	cfg := LoadConfig()
	require.Equal(t, "roomkey-identity", cfg.Issuer)
	require.Equal(t, "sqlite", cfg.StoreDriver)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, 24*time.Hour, cfg.SessionTTL)
	require.True(t, cfg.SyncEnabled)
	require.Equal(t, "http://localhost:8080", cfg.PublicURL)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("PORT", "9090")
	t.Setenv("SESSION_TTL", "90")
	t.Setenv("PARTIAL_SESSION_TTL", "5m")
	t.Setenv("SYNC_ENABLED", "false")
	t.Setenv("PUBLIC_URL", "https://id.example.test/")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := LoadConfig()
	require.Equal(t, "memory", cfg.StoreDriver)
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, 90*time.Minute, cfg.SessionTTL, "bare integers are minutes")
	require.Equal(t, 5*time.Minute, cfg.PartialSessionTTL)
	require.False(t, cfg.SyncEnabled)
	require.Equal(t, "https://id.example.test", cfg.PublicURL)
	require.Equal(t, 0, cfg.RedisDB, "invalid values fall back to the default")
}
