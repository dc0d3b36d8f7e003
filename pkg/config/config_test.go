package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, 720*time.Hour, cfg.CartTTL)
	assert.Equal(t, 3*time.Second, cfg.LookupTimeout)
	assert.Equal(t, "EG", cfg.DefaultCurrency)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("LOOKUP_RETRIES", "3")
	t.Setenv("REVALIDATE_INTERVAL", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.StoreBackend)
	assert.Equal(t, 3, cfg.LookupRetries)
	assert.Equal(t, 30*time.Second, cfg.RevalidateInterval)
}
