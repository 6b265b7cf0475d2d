package backtest

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
)

// Summary is the headline statistics of a run.
type Summary struct {
	Trades int // closed trades
	Open   int
	Wins   int
	Losses int

	GrossProfit decimal.Decimal
	GrossLoss   decimal.Decimal // positive magnitude
	NetPnL      decimal.Decimal

	StartEquity decimal.Decimal
	EndEquity   decimal.Decimal

	WinRate        float64 // percent
	ProfitFactor   float64 // 0 when there are no losing trades
	ReturnPct      float64
	MaxDrawdown    decimal.Decimal
	MaxDrawdownPct float64
}

func Summarize(trades []Trade, curve []EquityPoint) Summary {
	s := Summary{
		GrossProfit: decimal.Zero,
		GrossLoss:   decimal.Zero,
		NetPnL:      decimal.Zero,
		MaxDrawdown: decimal.Zero,
	}
	for _, t := range trades {
		if !t.Closed() {
			s.Open++
			continue
		}
		s.Trades++
		s.NetPnL = s.NetPnL.Add(t.NetPnL)
		switch {
		case t.NetPnL.IsPositive():
			s.Wins++
			s.GrossProfit = s.GrossProfit.Add(t.NetPnL)
		case t.NetPnL.IsNegative():
			s.Losses++
			s.GrossLoss = s.GrossLoss.Add(t.NetPnL.Neg())
		}
	}
	if s.Trades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Trades) * 100
	}
	if s.GrossLoss.IsPositive() {
		s.ProfitFactor, _ = s.GrossProfit.Div(s.GrossLoss).Float64()
	}

	if len(curve) > 0 {
		s.StartEquity = curve[0].Equity
		s.EndEquity = FinalEquity(curve)
		if s.StartEquity.IsPositive() {
			s.ReturnPct, _ = s.EndEquity.Sub(s.StartEquity).Div(s.StartEquity).Mul(decimal.NewFromInt(100)).Float64()
		}
	}
	for _, p := range curve {
		if p.Drawdown.GreaterThan(s.MaxDrawdown) {
			s.MaxDrawdown = p.Drawdown
		}
		if p.DrawdownPct > s.MaxDrawdownPct {
			s.MaxDrawdownPct = p.DrawdownPct
		}
	}
	return s
}

// PrintSummary writes a human readable run report.
func PrintSummary(w io.Writer, out *Output) {
	s := out.Summary
	cfg := out.Config

	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")

	fmt.Fprintf(w, "Run ID:        %s\n", out.RunID)
	fmt.Fprintf(w, "Name:          %s\n", cfg.Run.Name)
	fmt.Fprintf(w, "Status:        %s\n", out.Result.Status)
	if out.Result.Reason != "" {
		fmt.Fprintf(w, "Reason:        %s\n", out.Result.Reason)
	}
	if out.Result.ErrorID != "" {
		fmt.Fprintf(w, "Error ID:      %s\n", out.Result.ErrorID)
	}
	fmt.Fprintf(w, "Symbols:       %v\n", cfg.Run.Symbols)
	fmt.Fprintf(w, "Timeframe:     %s\n", cfg.Run.Timeframe)
	fmt.Fprintf(w, "Mode:          %s\n", cfg.Run.Mode)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Period")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start:         %s\n", cfg.Run.Start.Format(time.RFC3339))
	fmt.Fprintf(w, "End:           %s\n", cfg.Run.End.Format(time.RFC3339))

	if out.Result.Status != StatusSuccess {
		fmt.Fprintln(w)
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Orders")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Intents:       %d\n", len(out.Intents))
	fmt.Fprintf(w, "Rejected:      %d\n", len(out.Rejections))
	fmt.Fprintf(w, "Fills:         %d\n", len(out.Fills))

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trade Statistics")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Trades:        %d\n", s.Trades)
	if s.Open > 0 {
		fmt.Fprintf(w, "Open:          %d\n", s.Open)
	}
	fmt.Fprintf(w, "Wins:          %d\n", s.Wins)
	fmt.Fprintf(w, "Losses:        %d\n", s.Losses)
	fmt.Fprintf(w, "Win Rate:      %.2f%%\n", s.WinRate)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Account Performance")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start Equity:  %s\n", s.StartEquity.StringFixed(2))
	fmt.Fprintf(w, "End Equity:    %s\n", s.EndEquity.StringFixed(2))
	fmt.Fprintf(w, "Net P/L:       %s\n", s.NetPnL.StringFixed(2))
	fmt.Fprintf(w, "Return:        %.2f%%\n", s.ReturnPct)
	if s.ProfitFactor > 0 {
		fmt.Fprintf(w, "Profit Factor: %.2f\n", s.ProfitFactor)
	}
	if s.MaxDrawdownPct > 0 {
		fmt.Fprintf(w, "Max Drawdown:  %.2f%%\n", s.MaxDrawdownPct)
	}
	fmt.Fprintln(w)
}
