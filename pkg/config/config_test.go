package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no .env
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "sqlite", cfg.StoreBackend)
	assert.Equal(t, 30*time.Second, cfg.PollingInterval)
	assert.False(t, cfg.EnableAutoTrading)
	assert.True(t, cfg.RotateAssets)
	assert.Equal(t, 2.0, cfg.DuplicatePriceThreshold)
	assert.Equal(t, 100, cfg.PriceHistoryCap)
	assert.Equal(t, 5*time.Second, cfg.SignalTimeout)
	assert.Equal(t, 2*time.Minute, cfg.ConfirmTimeout)
	assert.Equal(t, 3, cfg.RiskMaxConsecutiveFailures)
	assert.Equal(t, 1000.0, cfg.RiskMaxSlippageBps)
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SIGNAL_TIMEOUT", "3")
	t.Setenv("CONFIRM_TIMEOUT", "90s")
	t.Setenv("ENABLE_AUTO_TRADING", "true")
	t.Setenv("SIGNAL_SOURCE", "process")
	t.Setenv("SIGNAL_PROCESS_CMD", "python3  signal_engine.py")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.SignalTimeout)
	assert.Equal(t, 90*time.Second, cfg.ConfirmTimeout)
	assert.True(t, cfg.EnableAutoTrading)
	assert.Equal(t, []string{"python3", "signal_engine.py"}, cfg.SignalArgv())
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]map[string]string{
		"unknown store":           {"STORE_BACKEND": "mongo"},
		"gateway without url":     {"LEDGER_MODE": "gateway"},
		"process without command": {"SIGNAL_SOURCE": "process"},
		"history below minimum":   {"PRICE_HISTORY_CAP": "10"},
		"sub-second polling":      {"POLLING_INTERVAL_SECONDS": "0"},
		"unknown log level":       {"LOG_LEVEL": "loud"},
		"zero failures threshold": {"RISK_MAX_CONSECUTIVE_FAILURES": "0"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
