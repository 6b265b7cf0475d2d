package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradesim/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query a run's SQLite journal",
	Long: `Query trade and equity records mirrored into journal.sqlite.

Subcommands:
  trade  - Get details of a specific trade
  day    - List trades closed on a specific day
  equity - Print the equity curve of a run

Examples:
  tradesim journal trade -d runs/<run_id>/journal.sqlite <run-id> <trade-id>
  tradesim journal day -d runs/<run_id>/journal.sqlite 2024-03-11`,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <run-id> <trade-id>",
	Short: "Get details of a specific trade",
	Args:  cobra.ExactArgs(2),
	RunE:  runJournalTrade,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List trades closed on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var journalEquityCmd = &cobra.Command{
	Use:   "equity <run-id>",
	Short: "Print the equity curve of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalEquity,
}

var (
	journalDBPath string
	journalTZ     string
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradeCmd)
	journalCmd.AddCommand(journalDayCmd)
	journalCmd.AddCommand(journalEquityCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./journal.sqlite", "path to SQLite journal DB")
	journalCmd.PersistentFlags().StringVar(&journalTZ, "tz", "America/New_York", "timezone for day bounds and display")
}

func openJournal() (*journal.SQLiteJournal, *time.Location, error) {
	loc, err := time.LoadLocation(journalTZ)
	if err != nil {
		return nil, nil, fmt.Errorf("--tz: %w", err)
	}
	if _, err := os.Stat(journalDBPath); err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	return j, loc, nil
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	j, loc, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	rec, err := j.GetTrade(cmd.Context(), args[0], args[1])
	if err != nil {
		return fmt.Errorf("get trade: %w", err)
	}
	printTrades([]journal.TradeRow{rec}, loc)
	return nil
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	j, loc, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	start, end, err := dayBounds(loc, args[0])
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	recs, err := j.ListTradesClosedBetween(cmd.Context(), start, end)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	printTrades(recs, loc)
	return nil
}

func runJournalEquity(cmd *cobra.Command, args []string) error {
	j, loc, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	pts, err := j.ListEquity(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("query equity: %w", err)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tTIME\tEQUITY\tDRAWDOWN\tDD%")
	for _, p := range pts {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.4f\n", p.Seq, p.Time.In(loc).Format(time.RFC3339), p.Equity, p.Drawdown, p.DrawdownPct)
	}
	return tw.Flush()
}

func printTrades(recs []journal.TradeRow, loc *time.Location) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRADE\tSYMBOL\tSIDE\tQTY\tENTRY\tEXIT\tREASON\tNET P/L\tEVIDENCE")
	for _, r := range recs {
		exit := "-"
		if r.ExitTime.Valid {
			exit = r.ExitTime.Time.In(loc).Format("15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%g\t%s\t%s\t%s\t%s\t%s\n",
			r.TradeID, r.Symbol, r.Side, r.Quantity,
			r.EntryTime.In(loc).Format("2006-01-02 15:04"), exit,
			r.ExitReason, r.NetPnL.StringFixed(2), r.EvidenceStatus)
	}
	tw.Flush()
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1), nil
}
