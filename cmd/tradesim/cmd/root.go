package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var rootCmd = &cobra.Command{
	Use:   "tradesim",
	Short: "Deterministic backtesting of intraday order lifecycles",
	Long: `tradesim replays externally generated trade signals against historical bars
and records every order, fill, trade and ledger entry with its evidence.

It provides tools for:
  - Running a configured backtest into an immutable run directory
  - Verifying a run's ledger and artifact checksums
  - Querying the SQLite journal of past runs
  - Importing bar data into SQLite
  - Publishing run directories to S3-compatible storage`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogger,
}

var (
	logLevel string
	logDev   bool
	logger   = zap.NewNop()
)

// Execute adds all child commands to the root command and runs it.
func Execute(ctx context.Context) error {
	defer logger.Sync() //nolint:errcheck
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logDev, "log-dev", false, "human readable development logging")
}

func setupLogger(cmd *cobra.Command, args []string) error {
	lvl, err := zapcore.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if logDev {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	l, err := zc.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	logger = l
	return nil
}
