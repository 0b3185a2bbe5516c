package strategy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel-core/internal/store"
)

const sampleYAML = `
default_strategy: 2
strategies:
  - id: 2
    name: Volatility Breakout
    type: bollinger
    enabled: true
    parameters:
      period: 20
      std_dev_multiplier: 2
`

func TestLoadConfigAndSync(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	set, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2, set.DefaultStrategy)
	require.Len(t, set.Strategies, 1)
	assert.Equal(t, 20.0, set.Strategies[0].Parameters["period"])

	ctx := context.Background()
	st := store.NewMemory()

	_, found, err := LoadFromStore(ctx, st)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, SyncConfig(ctx, st, set))
	got, found, err := LoadFromStore(ctx, st)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, set, got)
}

func TestLoadConfigRejectsDuplicateIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dup.yaml")
	body := "strategies:\n  - id: 1\n    name: a\n  - id: 1\n    name: b\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestRepositoryStrategiesFileLoads(t *testing.T) {
	set, err := LoadConfig(filepath.Join("..", "..", "config", "strategies.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 1, set.DefaultStrategy)
	assert.Len(t, set.Strategies, 3)
}
