package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8003, cfg.HTTPPort)
	assert.Equal(t, 30, cfg.CartRetentionDays)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.False(t, cfg.CheckStockLevels)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CART_HTTP_PORT", "9000")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("CHECK_STOCK_LEVELS", "true")
	t.Setenv("CART_RETENTION_DAYS", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.HTTPPort)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.CheckStockLevels)
	assert.Equal(t, 7, cfg.CartRetentionDays)
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("CART_HTTP_PORT", "0")

	_, err := Load()
	assert.ErrorContains(t, err, "invalid HTTP port")
}

func TestLoad_InvalidRetention(t *testing.T) {
	t.Setenv("CART_RETENTION_DAYS", "0")

	_, err := Load()
	assert.ErrorContains(t, err, "retention")
}
