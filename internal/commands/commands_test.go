package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel-core/internal/engine"
	"sentinel-core/internal/strategy"
	"sentinel-core/pkg/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := rootCmd.ExecuteContext(ctx)
	return out.String(), err
}

func isolatedEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("DB_PATH", filepath.Join(dir, "data", "sentinel.db"))
	t.Setenv("STRATEGIES_PATH", filepath.Join("..", "..", "config", "strategies.yaml"))
	t.Setenv("ASSETS_PATH", filepath.Join("..", "..", "config", "assets.yaml"))
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("BALANCE_TOKEN", "")
	return dir
}

func TestTokenCommand(t *testing.T) {
	isolatedEnv(t)

	out, err := execute(t, "token", "--operator", "alice", "--ttl", "1h")
	require.NoError(t, err)

	var resp struct {
		Operator string    `json:"operator"`
		Token    string    `json:"token"`
		Expires  time.Time `json:"expiresAt"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "alice", resp.Operator)
	assert.NotEmpty(t, resp.Token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), resp.Expires, time.Minute)
}

func TestKillSwitchLifecycle(t *testing.T) {
	isolatedEnv(t)

	_, err := execute(t, "killswitch", "activate", "maintenance", "window")
	require.NoError(t, err)

	out, err := execute(t, "killswitch", "status")
	require.NoError(t, err)
	var status map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, true, status["active"])
	assert.Equal(t, "maintenance window", status["reason"])

	_, err = execute(t, "killswitch", "reset")
	require.NoError(t, err)

	out, err = execute(t, "killswitch", "status")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, false, status["active"])
}

func TestStatusOnEmptyStore(t *testing.T) {
	isolatedEnv(t)

	out, err := execute(t, "status")
	require.NoError(t, err)

	var report struct {
		Risk struct {
			TradingAllowed bool `json:"tradingAllowed"`
		} `json:"risk"`
		Performance struct {
			TotalTrades int `json:"totalTrades"`
		} `json:"performance"`
		Trades []json.RawMessage `json:"recentTrades"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.Risk.TradingAllowed)
	assert.Zero(t, report.Performance.TotalTrades)
	assert.Empty(t, report.Trades)
}

func TestBacktestCommandWritesReports(t *testing.T) {
	dir := isolatedEnv(t)
	outDir := filepath.Join(dir, "reports")

	out, err := execute(t, "backtest", "--points", "400", "--seed", "7", "--out", outDir, "--strategy", "1")
	require.NoError(t, err)

	var summaries []backtestSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, 1, summaries[0].StrategyID)

	_, err = os.Stat(summaries[0].Report)
	assert.NoError(t, err)
}

func TestInvalidConfigurationFails(t *testing.T) {
	isolatedEnv(t)
	t.Setenv("STORE_BACKEND", "cassandra")

	_, err := execute(t, "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestSimulatedLedgerSeedsSpendTokens(t *testing.T) {
	book, err := engine.LoadAssets(filepath.Join("..", "..", "config", "assets.yaml"))
	require.NoError(t, err)

	c := &config.Config{LedgerMode: "simulated", WalletAddress: "0xabc", SimInitialBalance: 1000}
	client, remediator, err := newLedger(c, book)
	require.NoError(t, err)
	require.NotNil(t, remediator)

	usdc := book.Tokens["USDC"]
	bal, err := client.GetTokenBalance(context.Background(), "0xabc", usdc.Address)
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(1_000_000_000)), "got %s", bal)
}

func TestBalanceTrackingIsOptIn(t *testing.T) {
	book, err := engine.LoadAssets(filepath.Join("..", "..", "config", "assets.yaml"))
	require.NoError(t, err)
	set := strategy.DefaultSet()

	t.Run("unset by default", func(t *testing.T) {
		isolatedEnv(t)
		c, err := config.Load()
		require.NoError(t, err)
		assert.Empty(t, orchestratorConfig(c, set, book).BalanceToken)
	})

	t.Run("explicit token is passed through", func(t *testing.T) {
		isolatedEnv(t)
		t.Setenv("BALANCE_TOKEN", "WETH")
		c, err := config.Load()
		require.NoError(t, err)
		oc := orchestratorConfig(c, set, book)
		assert.Equal(t, "WETH", oc.BalanceToken)
		assert.Equal(t, c.WalletAddress, oc.Owner)
		assert.Equal(t, set.DefaultStrategy, oc.DefaultStrategyID)
	})
}
