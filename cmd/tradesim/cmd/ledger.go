package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradesim/journal"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Audit run ledgers",
}

var ledgerVerifyCmd = &cobra.Command{
	Use:   "verify <run-dir>",
	Short: "Verify a run directory's checksums and replay its ledger",
	Long: `Verify recomputes every checksum in run_manifest.json, rebuilds the ledger
from trades.csv and requires it to match ledger.csv byte for byte, and checks
that the final ledger cash equals the final equity of the curve.

Example:
  tradesim ledger verify runs/run_20240311_...`,
	Args: cobra.ExactArgs(1),
	RunE: runLedgerVerify,
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerVerifyCmd)
}

func runLedgerVerify(cmd *cobra.Command, args []string) error {
	dir := args[0]
	m, err := journal.VerifyManifest(dir)
	if err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	v, err := journal.VerifyLedger(dir)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}

	fmt.Printf("✓ %s\n", v.RunID)
	fmt.Printf("  Files:        %d checksums match\n", len(m.Files))
	fmt.Printf("  Trades:       %d closed\n", v.Trades)
	fmt.Printf("  Final cash:   %s\n", v.FinalCash)
	fmt.Printf("  Final equity: %s\n", v.FinalEquity)
	return nil
}
