package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradesim/backtest"
	"github.com/rustyeddy/tradesim/config"
	"github.com/rustyeddy/tradesim/feed"
	"github.com/rustyeddy/tradesim/journal"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a backtest from a configuration file",
	Long: `Run loads the configuration, bars and signals, simulates every symbol and
writes the run directory <output.dir>/<run_id>.

A run that fails a precondition or hits an internal error still writes
run_meta.json and run_result.json, and the command exits non-zero.

Example:
  tradesim run -c run.yaml
  tradesim run -c run.yaml --out ./runs --overwrite --publish`,
	RunE: runRun,
}

var (
	runConfigPath string
	runOutDir     string
	runOverwrite  bool
	runPublish    bool
	runQuiet      bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "path to run config (required)")
	runCmd.Flags().StringVarP(&runOutDir, "out", "o", "", "override output.dir")
	runCmd.Flags().BoolVar(&runOverwrite, "overwrite", false, "replace an existing run directory")
	runCmd.Flags().BoolVar(&runPublish, "publish", false, "upload the run directory using the publish section")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "do not print the summary")
	runCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if runOutDir != "" {
		cfg.Output.Dir = runOutDir
	}

	bars, closeBars, err := openBars(cfg.Data.Bars)
	if err != nil {
		return err
	}
	defer closeBars()
	sigs, err := openSignals(cfg.Data.Signals)
	if err != nil {
		return err
	}

	runner, err := backtest.NewRunner(cfg, bars, sigs, logger)
	if err != nil {
		return err
	}
	out, runErr := runner.Run(cmd.Context())

	loc, err := cfg.StorageLocation()
	if err != nil {
		loc = time.UTC
	}
	w, err := journal.NewWriter(cfg.Output.Dir, loc, journal.Options{
		Org:       cfg.Output.Org,
		Chart:     cfg.Output.Chart,
		SQLite:    cfg.Output.SQLite,
		Overwrite: runOverwrite,
	}, logger)
	if err != nil {
		return err
	}
	dir, writeErr := w.Write(out)

	var stdout io.Writer = os.Stdout
	if runQuiet {
		stdout = io.Discard
	}
	backtest.PrintSummary(stdout, out)
	if writeErr == nil {
		fmt.Fprintf(stdout, "Artifacts:     %s\n", dir)
	}

	if err := errors.Join(runErr, writeErr); err != nil {
		return err
	}
	if runPublish {
		keys, err := publishDir(cmd.Context(), cfg.Publish, dir)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Published:     %d objects to s3://%s\n", len(keys), cfg.Publish.Bucket)
	}
	return nil
}

func openBars(src config.Source) (backtest.BarSource, func(), error) {
	switch src.Kind {
	case "csv":
		return feed.NewCSVBars(src.Path), func() {}, nil
	case "sqlite":
		db, err := feed.OpenSQLiteBars(src.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open bars: %w", err)
		}
		return db, func() {
			if err := db.Close(); err != nil {
				logger.Warn("close bars db", zap.Error(err))
			}
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown bar source kind %q", src.Kind)
}

func openSignals(src config.Source) (backtest.SignalSource, error) {
	switch src.Kind {
	case "json":
		return feed.NewJSONSignals(src.Path), nil
	case "csv":
		return feed.NewCSVSignals(src.Path), nil
	}
	return nil, fmt.Errorf("unknown signal source kind %q", src.Kind)
}
