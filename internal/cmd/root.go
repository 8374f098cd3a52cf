// Package cmd implements the slurmsight CLI: loading job accounting
// records, running aggregations, generating period reports, and
// exporting report artifacts.
package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openfoothills/slurmsight/internal/config"
	"github.com/openfoothills/slurmsight/internal/observability"
	"github.com/openfoothills/slurmsight/pkg/accounting"
	"github.com/openfoothills/slurmsight/pkg/capacity"
	"github.com/openfoothills/slurmsight/pkg/engine"
	"github.com/openfoothills/slurmsight/pkg/jobstore"
	"github.com/openfoothills/slurmsight/pkg/series"
)

// AppIdentity describes the installed binary for banners and data
// directory resolution.
type AppIdentity struct {
	BinaryName string
	ConfigName string
}

var appIdentity = &AppIdentity{
	BinaryName: "slurmsight",
	ConfigName: config.AppName,
}

// GetAppIdentity returns the current app identity, or nil when unset.
func GetAppIdentity() *AppIdentity {
	return appIdentity
}

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata injected by the linker.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildDate)
}

var (
	cfgFile  string
	logLevel string
	logJSON  bool

	// cfg is loaded once in the persistent pre-run and shared by all
	// commands.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "slurmsight",
	Short: "Usage analytics for SLURM job accounting",
	Long: `slurmsight aggregates multi-cluster SLURM job accounting data into
chart-ready usage analytics: timelines, top-N breakdowns, distribution
statistics, node utilization, and period-over-period reports.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
		}

		level := cfg.Logging.Level
		if cmd.Flags().Changed("log-level") {
			level = logLevel
		}
		jsonLogs := cfg.Logging.JSON || logJSON
		observability.InitCLILogger(level, jsonLogs)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		observability.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: slurmsight.yaml in . or the app data dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit logs as JSON")
}

// Execute runs the CLI and returns the error of the selected command.
// main converts it to a process exit code via ExitCode.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// exitCodeError carries a foundry exit code alongside the cause.
type exitCodeError struct {
	code int
	msg  string
	err  error
}

func (e *exitCodeError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

func (e *exitCodeError) Unwrap() error {
	return e.err
}

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &exitCodeError{code: code, msg: message, err: err}
}

// ExitCode maps a command error to a process exit code. Nil maps to
// zero; errors without an explicit code map to the generic failure code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ec *exitCodeError
	if errors.As(err, &ec) {
		return ec.code
	}
	return 1
}

// openStore opens the configured job database and applies migrations.
func openStore(ctx context.Context) (*sql.DB, error) {
	db, err := jobstore.Open(ctx, jobstore.Config{
		Path:      cfg.Store.Path,
		URL:       cfg.Store.URL,
		AuthToken: cfg.Store.AuthToken,
	})
	if err != nil {
		return nil, exitError(foundry.ExitExternalServiceUnavailable, "Failed to open job store", err)
	}
	if err := jobstore.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, exitError(foundry.ExitExternalServiceUnavailable, "Failed to migrate job store", err)
	}
	return db, nil
}

// capacityResolver loads the configured capacity file for a cluster.
// Without configuration every lookup misses and utilization stays raw.
func capacityResolver(hostname string) (series.CapacityResolver, error) {
	if cfg.Capacity.Path == "" {
		return capacity.EmptySnapshot(), nil
	}

	capCfg, err := capacity.Load(cfg.Capacity.Path)
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid capacity config", err)
	}

	snap, err := capCfg.Snapshot(hostname)
	if err != nil {
		if errors.Is(err, capacity.ErrUnknownCluster) {
			observability.CLILogger.Warn("No capacity entry for cluster, utilization will not be normalized",
				zap.String("hostname", hostname))
			return capacity.EmptySnapshot(), nil
		}
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid capacity config", err)
	}
	return snap, nil
}

// newEngine builds an engine with configured tuning for one cluster.
func newEngine(hostname string) (*engine.Engine, error) {
	resolver, err := capacityResolver(hostname)
	if err != nil {
		return nil, err
	}
	return engine.New(cfg.Engine.Tuning(), resolver), nil
}

func accountingFilter(partitions, accounts, users []string) accounting.Filter {
	return accounting.Filter{
		Partitions: partitions,
		Accounts:   accounts,
		Users:      users,
	}
}
