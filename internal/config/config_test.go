package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfoothills/slurmsight/pkg/timebucket"
)

func TestLoad(t *testing.T) {
	t.Run("LoadDefaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// Verify store defaults
		assert.NotEmpty(t, cfg.Store.Path)
		assert.Empty(t, cfg.Store.URL)

		// Verify engine defaults follow the bucketing package.
		def := timebucket.DefaultAutoThresholds()
		assert.Equal(t, def.MaxDays, cfg.Engine.AutoDayMax)
		assert.Equal(t, def.MaxWeeks, cfg.Engine.AutoWeekMax)
		assert.Equal(t, def.MaxMonths, cfg.Engine.AutoMonthMax)
		assert.Equal(t, 10, cfg.Engine.TopN)
		assert.Equal(t, 20, cfg.Engine.HistogramBins)

		// Verify export defaults
		assert.Equal(t, 4, cfg.Export.Concurrency)
		assert.Zero(t, cfg.Export.RateLimit)
		assert.Empty(t, cfg.Export.S3.Bucket)

		// Verify logging defaults
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.False(t, cfg.Logging.JSON)
	})

	t.Run("LoadFile", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "slurmsight.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
store:
  path: /var/lib/slurmsight/jobs.db
capacity:
  path: /etc/slurmsight/capacity.yaml
engine:
  auto_day_max: 45
  top_n: 5
export:
  s3:
    bucket: usage-reports
    prefix: prod
logging:
  level: debug
`), 0644))

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "/var/lib/slurmsight/jobs.db", cfg.Store.Path)
		assert.Equal(t, "/etc/slurmsight/capacity.yaml", cfg.Capacity.Path)
		assert.Equal(t, 45, cfg.Engine.AutoDayMax)
		assert.Equal(t, 5, cfg.Engine.TopN)
		// Untouched keys keep defaults.
		assert.Equal(t, 36, cfg.Engine.AutoMonthMax)
		assert.Equal(t, "usage-reports", cfg.Export.S3.Bucket)
		assert.Equal(t, "prod", cfg.Export.S3.Prefix)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("EnvOverride", func(t *testing.T) {
		t.Setenv("SLURMSIGHT_ENGINE_TOP_N", "7")
		t.Setenv("SLURMSIGHT_LOGGING_LEVEL", "warn")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, 7, cfg.Engine.TopN)
		assert.Equal(t, "warn", cfg.Logging.Level)
	})

	t.Run("MissingExplicitFile", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})
}

func TestEngineTuning(t *testing.T) {
	e := EngineConfig{AutoDayMax: 30, AutoWeekMax: 10, AutoMonthMax: 24, TopN: 8, HistogramBins: 15}
	tu := e.Tuning()

	assert.Equal(t, 30, tu.AutoThresholds.MaxDays)
	assert.Equal(t, 10, tu.AutoThresholds.MaxWeeks)
	assert.Equal(t, 24, tu.AutoThresholds.MaxMonths)
	assert.Equal(t, 8, tu.DefaultTopN)
	assert.Equal(t, 15, tu.HistogramBins)

	// Zero values fall back to defaults rather than zeroing the engine.
	tu = EngineConfig{}.Tuning()
	assert.Equal(t, 60, tu.AutoThresholds.MaxDays)
	assert.Equal(t, 10, tu.DefaultTopN)
}
