package main

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/wheelhouse/internal/config"
	"github.com/eddiefleurent/wheelhouse/internal/models"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Environment: config.EnvironmentConfig{Mode: "paper"},
		Provider: config.ProviderConfig{
			Kind:    "sim",
			Symbols: []config.SymbolConfig{{Symbol: "XYZ", Spot: 100, IV: 20, StrikeInterval: 5}},
		},
		Schedule: config.ScheduleConfig{SkipMarketCheck: true},
		Storage:  config.StorageConfig{Path: filepath.Join(t.TempDir(), "runs.json")},
	}
	cfg.Normalize()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestBuildProvider(t *testing.T) {
	cfg := testConfig(t)

	p, err := buildProvider(cfg)
	require.NoError(t, err)
	assert.NotNil(t, p)

	cfg.Provider.Kind = "ib"
	_, err = buildProvider(cfg)
	assert.Error(t, err)
}

func TestRightEnabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Roll.Rights = []string{"C"}

	m := &Monitor{config: cfg}
	assert.True(t, m.rightEnabled(models.RightCall))
	assert.False(t, m.rightEnabled(models.RightPut))
}

func TestRunCycleRecordsRun(t *testing.T) {
	cfg := testConfig(t)

	logger := log.New(io.Discard, "", 0)
	m, err := newMonitor(cfg, logger)
	require.NoError(t, err)

	m.runCycle(context.Background())

	run := m.storage.LatestRun()
	require.NotNil(t, run)
	assert.Equal(t, 1, run.Positions(), "one seeded position evaluated")
	assert.NotEmpty(t, run.RunID)
	assert.False(t, run.FinishedAt.IsZero())
	// The simulated position sits inside the threshold, so it reaches a
	// terminal outcome rather than not_eligible.
	assert.Zero(t, run.Counts[models.OutcomeNotEligible])
}

func TestRunCycleSkipsOutsideMarketHours(t *testing.T) {
	cfg := testConfig(t)
	cfg.Schedule.SkipMarketCheck = false
	cfg.Schedule.TradingStart = "00:00"
	cfg.Schedule.TradingEnd = "00:01"

	logger := log.New(io.Discard, "", 0)
	m, err := newMonitor(cfg, logger)
	require.NoError(t, err)

	m.runCycle(context.Background())
	assert.Nil(t, m.storage.LatestRun(), "no run is recorded outside the trading window")
}
