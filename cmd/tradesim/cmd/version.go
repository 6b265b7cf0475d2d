package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradesim/evidence"
	"github.com/rustyeddy/tradesim/journal"
)

const version = "0.3.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tradesim version %s\n", version)
		fmt.Printf("artifact layout %s, evidence vocabulary %s\n", journal.Layout, evidence.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
