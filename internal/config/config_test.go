package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LATTICE_MASTER_SECRET", "test-secret")

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, ":8448", cfg.Addr)
	require.Equal(t, "localhost", cfg.ServerName)
	require.Equal(t, 100, cfg.FilterTimelineLimit)
	require.Equal(t, 90*time.Second, cfg.SyncTimeout)
	require.False(t, cfg.Proxied)
	require.Equal(t, []string{"*"}, cfg.AllowedOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LATTICE_MASTER_SECRET", "test-secret")
	t.Setenv("LATTICE_ADDR", ":9999")
	t.Setenv("LATTICE_SYNC_TIMEOUT", "5s")
	t.Setenv("LATTICE_PROXIED", "true")

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.Addr)
	require.Equal(t, 5*time.Second, cfg.SyncTimeout)
	require.True(t, cfg.Proxied)
}

func TestLoadRequiresMasterSecret(t *testing.T) {
	t.Setenv("LATTICE_MASTER_SECRET", "")

	_, err := Load(context.Background())
	require.Error(t, err)
}
