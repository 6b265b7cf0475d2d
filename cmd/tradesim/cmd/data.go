package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradesim/feed"
	"github.com/rustyeddy/tradesim/market"
)

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Manage bar data",
}

var dataImportCmd = &cobra.Command{
	Use:   "import <bars.csv>",
	Short: "Import a bar CSV into a SQLite bar database",
	Long: `Import parses a bar CSV (time,open,high,low,close,volume with explicit
offsets) and stores it in the bars table read by data.bars.kind=sqlite.

Example:
  tradesim data import --db bars.sqlite --symbol SPY data/bars/SPY.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runDataImport,
}

var (
	dataDBPath    string
	dataSymbol    string
	dataTimeframe string
)

func init() {
	rootCmd.AddCommand(dataCmd)
	dataCmd.AddCommand(dataImportCmd)

	dataImportCmd.Flags().StringVarP(&dataDBPath, "db", "d", "./bars.sqlite", "path to SQLite bar DB")
	dataImportCmd.Flags().StringVarP(&dataSymbol, "symbol", "s", "", "symbol the file holds (required)")
	dataImportCmd.Flags().StringVar(&dataTimeframe, "timeframe", "M5", "bar timeframe")
	dataImportCmd.MarkFlagRequired("symbol")
}

func runDataImport(cmd *cobra.Command, args []string) error {
	tf, err := market.ParseTimeframe(dataTimeframe)
	if err != nil {
		return fmt.Errorf("--timeframe: %w", err)
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	bars, err := feed.ReadBars(f, dataSymbol, tf, time.Time{}, time.Time{})
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	if err := market.ValidateSeries(bars); err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	db, err := feed.OpenSQLiteBars(dataDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()
	if err := db.Insert(cmd.Context(), bars); err != nil {
		return fmt.Errorf("insert: %w", err)
	}

	fmt.Printf("✓ Imported %d %s bars into %s\n", len(bars), dataSymbol, dataDBPath)
	return nil
}
