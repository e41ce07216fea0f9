package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret-at-least-16-chars")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.EqualValues(t, 1, cfg.CostBasicAnalysis)
	assert.EqualValues(t, 2, cfg.CostFullAnalysis)
	assert.EqualValues(t, 3, cfg.CostAdGeneration)
	assert.EqualValues(t, 5, cfg.LowCreditThreshold)
	assert.Equal(t, 30*time.Second, cfg.BalanceCacheTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret-at-least-16-chars")
	t.Setenv("PORT", "9090")
	t.Setenv("CREDIT_COST_FULL_ANALYSIS", "4")
	t.Setenv("LOW_CREDIT_THRESHOLD", "10")
	t.Setenv("BALANCE_CACHE_TTL", "1m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.EqualValues(t, 4, cfg.CostFullAnalysis)
	assert.EqualValues(t, 10, cfg.LowCreditThreshold)
	assert.Equal(t, time.Minute, cfg.BalanceCacheTTL)
}

func TestLoadRejectsInvalidCost(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret-at-least-16-chars")
	t.Setenv("CREDIT_COST_BASIC_ANALYSIS", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsShortJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")

	_, err := Load()
	assert.Error(t, err)
}

func TestGetEnvInt64IgnoresGarbage(t *testing.T) {
	t.Setenv("CREDIT_COST_AD_GENERATION", "not-a-number")

	assert.EqualValues(t, 3, getEnvInt64("CREDIT_COST_AD_GENERATION", 3))
}
