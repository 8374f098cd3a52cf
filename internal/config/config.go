// Package config loads the slurmsight configuration: job store
// location, capacity file, engine tuning, and export destinations.
//
// Configuration is resolved from (highest precedence first) environment
// variables with the SLURMSIGHT_ prefix, an optional YAML config file,
// and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/spf13/viper"

	"github.com/openfoothills/slurmsight/pkg/engine"
	"github.com/openfoothills/slurmsight/pkg/timebucket"
)

// AppName is the identity used for config and data directories.
const AppName = "slurmsight"

// Config is the full application configuration.
type Config struct {
	Store    StoreConfig    `mapstructure:"store"`
	Capacity CapacityConfig `mapstructure:"capacity"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Export   ExportConfig   `mapstructure:"export"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// StoreConfig locates the job database.
type StoreConfig struct {
	// Path is a local SQLite file. Defaults to jobs.db under the app
	// data directory.
	Path string `mapstructure:"path"`

	// URL is a libsql/Turso URL; takes precedence over Path when set.
	URL string `mapstructure:"url"`

	// AuthToken authenticates URL-based stores.
	AuthToken string `mapstructure:"auth_token"`
}

// CapacityConfig locates the node capacity file.
type CapacityConfig struct {
	// Path is the cluster capacity YAML. Empty disables normalization.
	Path string `mapstructure:"path"`
}

// EngineConfig tunes the aggregation engine.
type EngineConfig struct {
	// AutoDayMax, AutoWeekMax, and AutoMonthMax are the auto-granularity
	// band edges: ranges up to AutoDayMax days bucket daily, up to
	// AutoWeekMax weeks bucket weekly, up to AutoMonthMax months bucket
	// monthly, and everything longer buckets yearly.
	AutoDayMax   int `mapstructure:"auto_day_max"`
	AutoWeekMax  int `mapstructure:"auto_week_max"`
	AutoMonthMax int `mapstructure:"auto_month_max"`

	// TopN is the default number of groups retained before "Other".
	TopN int `mapstructure:"top_n"`

	// HistogramBins is the default histogram bin count.
	HistogramBins int `mapstructure:"histogram_bins"`
}

// Tuning converts the configuration into engine tuning.
func (e EngineConfig) Tuning() engine.Tuning {
	t := engine.DefaultTuning()
	if e.AutoDayMax > 0 {
		t.AutoThresholds.MaxDays = e.AutoDayMax
	}
	if e.AutoWeekMax > 0 {
		t.AutoThresholds.MaxWeeks = e.AutoWeekMax
	}
	if e.AutoMonthMax > 0 {
		t.AutoThresholds.MaxMonths = e.AutoMonthMax
	}
	if e.TopN > 0 {
		t.DefaultTopN = e.TopN
	}
	if e.HistogramBins > 0 {
		t.HistogramBins = e.HistogramBins
	}
	return t
}

// ExportConfig configures bulk report export.
type ExportConfig struct {
	// Dir is the local destination directory for artifacts.
	Dir string `mapstructure:"dir"`

	// Concurrency is the number of export workers.
	Concurrency int `mapstructure:"concurrency"`

	// RateLimit caps reports generated per second. Zero is unlimited.
	RateLimit float64 `mapstructure:"rate_limit"`

	S3 S3ExportConfig `mapstructure:"s3"`
}

// S3ExportConfig configures the S3 destination. Bucket empty means
// exports go to the local directory.
type S3ExportConfig struct {
	Bucket         string `mapstructure:"bucket"`
	Prefix         string `mapstructure:"prefix"`
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	Profile        string `mapstructure:"profile"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

// LoggingConfig configures CLI logging.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// Load reads configuration from the given file (optional), environment,
// and defaults.
//
// When path is empty, slurmsight.yaml is searched in the current
// directory and the app config directory; a missing file is not an
// error, env and defaults still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(gfconfig.GetAppDataDir(AppName))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := timebucket.DefaultAutoThresholds()

	v.SetDefault("store.path", filepath.Join(gfconfig.GetAppDataDir(AppName), "jobs.db"))

	v.SetDefault("engine.auto_day_max", def.MaxDays)
	v.SetDefault("engine.auto_week_max", def.MaxWeeks)
	v.SetDefault("engine.auto_month_max", def.MaxMonths)
	v.SetDefault("engine.top_n", 10)
	v.SetDefault("engine.histogram_bins", 20)

	v.SetDefault("export.dir", filepath.Join(gfconfig.GetAppDataDir(AppName), "exports"))
	v.SetDefault("export.concurrency", 4)
	v.SetDefault("export.rate_limit", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json", false)
}
