package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradesim/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage run configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  tradesim config init -o run.yaml
  tradesim config validate -f run.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	RunE:  runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "run.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("✓ Created default configuration: %s\n", configInitOutput)
	fmt.Println("\nSet run.start, run.end, run.symbols and the data paths, then run:")
	fmt.Printf("  tradesim run -c %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	runID, err := cfg.RunID()
	if err != nil {
		return fmt.Errorf("derive run id: %w", err)
	}

	fmt.Printf("✓ Configuration valid: %s\n", configValidatePath)
	fmt.Printf("  Run ID:   %s\n", runID)
	fmt.Printf("  Window:   %s -> %s\n", cfg.Run.Start.Format("2006-01-02T15:04Z07:00"), cfg.Run.End.Format("2006-01-02T15:04Z07:00"))
	fmt.Printf("  Symbols:  %v (%s, %s)\n", cfg.Run.Symbols, cfg.Run.Timeframe, cfg.Run.Mode)
	fmt.Printf("  Account:  %.2f %s\n", cfg.Account.InitialCash, cfg.Account.Currency)
	fmt.Printf("  Fills:    tie_break=%s validity=%s\n", cfg.Fills.TieBreak, cfg.Orders.Validity)
	return nil
}
