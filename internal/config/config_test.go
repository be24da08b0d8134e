package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/classbook/internal/config"
)

func setRequired(t *testing.T) {
	t.Helper()

	t.Setenv("POSTGRES_USER", "app")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "classbook")
}

func Test_New_Defaults(t *testing.T) {
	// arrange
	setRequired(t)

	// act
	cfg, err := config.New()

	// assert
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, "disable", cfg.Postgres.SSLMode)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Engine.CapacityTTL)
	assert.Equal(t, time.Hour, cfg.Engine.StaffTTL)
	assert.Equal(t, int64(999), cfg.Engine.UnlimitedCapacity)
	assert.Equal(t, "0.01", cfg.Engine.Tolerance.String())
	assert.Equal(t, 30, cfg.RateLimit.QuoteLimit)
	assert.Equal(t, time.Minute, cfg.RateLimit.QuoteWindow)
	assert.Equal(t, 2*time.Hour, cfg.Idempotency.TTL)
	assert.Equal(t, "info", cfg.Log.Level)
}

func Test_New_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("ENGINE_CAPACITY_TTL", "5s")
	t.Setenv("ENGINE_TOLERANCE", "0.05")
	t.Setenv("LOG_FORMAT", "JSON")

	cfg, err := config.New()

	require.NoError(t, err)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Engine.CapacityTTL)
	assert.Equal(t, "0.05", cfg.Engine.Tolerance.String())
	assert.Equal(t, "json", cfg.Log.Format)
}

func Test_New_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		key  string
		val  string
	}{
		{name: "port", key: "SERVER_PORT", val: "http"},
		{name: "duration", key: "ENGINE_STAFF_TTL", val: "an hour"},
		{name: "bool", key: "REDIS_ENABLED", val: "maybe"},
		{name: "tolerance", key: "ENGINE_TOLERANCE", val: "-1"},
		{name: "missing user", key: "POSTGRES_USER", val: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tc.key, tc.val)

			_, err := config.New()

			assert.Error(t, err)
		})
	}
}
