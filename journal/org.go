package journal

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/rustyeddy/tradesim/backtest"
	"github.com/rustyeddy/tradesim/evidence"
)

// reportView is the flattened run the org template renders. Every field is
// derived from the run output so the report is reproducible.
type reportView struct {
	RunID           string
	Name            string
	Symbols         string
	Timeframe       string
	Mode            string
	Start           string
	End             string
	EvidenceVersion string
	TieBreak        string
	Validity        string
	SlippageBps     float64
	FeeBps          float64
	FeePerFill      float64

	Summary     backtest.Summary
	StartEquity string
	EndEquity   string
	NetPnL      string
	MaxDD       string
	Rejections  int
	Issues      int
	Evidence    map[string]int
	Trades      []string
}

var reportFuncs = template.FuncMap{
	"pct": func(x float64) string { return fmt.Sprintf("%.2f", x) },
}

const reportTemplate = `* BACKTEST: {{.Name}} {{.Symbols}} {{.Timeframe}}
:PROPERTIES:
:RUN_ID:      {{.RunID}}
:TIMEFRAME:   {{.Timeframe}}
:SYMBOLS:     {{.Symbols}}
:MODE:        {{.Mode}}
:START:       {{.Start}}
:END:         {{.End}}
:START_EQ:    {{.StartEquity}}
:END_EQ:      {{.EndEquity}}
:NET_PL:      {{.NetPnL}}
:RETURN_PCT:  {{pct .Summary.ReturnPct}}
:MAX_DD_PCT:  {{pct .Summary.MaxDrawdownPct}}
:TRADES:      {{.Summary.Trades}}
:WINS:        {{.Summary.Wins}}
:LOSSES:      {{.Summary.Losses}}
:WIN_RATE:    {{pct .Summary.WinRate}}
:PROFIT_FAC:  {{if ne .Summary.ProfitFactor 0.0}}{{pct .Summary.ProfitFactor}}{{else}}(no losses){{end}}
:EVIDENCE:    {{.EvidenceVersion}}
:END:

** Simulation Parameters
| Parameter        | Value |
|------------------+-------|
| Tie break        | {{.TieBreak}} |
| Order validity   | {{.Validity}} |
| Slippage (bps)   | {{printf "%.2f" .SlippageBps}} |
| Fee (bps)        | {{printf "%.2f" .FeeBps}} |
| Fee per fill     | {{printf "%.2f" .FeePerFill}} |

** Performance Summary
- Net P/L:          *{{.NetPnL}}*
- Return:           *{{pct .Summary.ReturnPct}}%*
- Max Drawdown:     *{{.MaxDD}} ({{pct .Summary.MaxDrawdownPct}}%)*
- Win Rate:         *{{pct .Summary.WinRate}}%*
- Open at end:      *{{.Summary.Open}}*

** Trade Distribution
| Outcome | Count |
|---------+-------|
| Wins    | {{.Summary.Wins}} |
| Losses  | {{.Summary.Losses}} |
| Total   | {{.Summary.Trades}} |

** Evidence
| Status | Trades |
|--------+--------|
| PASS   | {{index .Evidence "PASS"}} |
| WARN   | {{index .Evidence "WARN"}} |
| FAIL   | {{index .Evidence "FAIL"}} |
- Rejected signals: {{.Rejections}}
- Contract issues:  {{.Issues}}
{{- if .Trades }}

** Trades
{{- range .Trades }}
{{.}}
{{- end }}
{{- end }}
`

var reportTmpl = template.Must(template.New("report").Funcs(reportFuncs).Parse(reportTemplate))

func (w *Writer) writeReport(path string, out *backtest.Output) error {
	data, err := RenderReport(out, w.loc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// RenderReport renders the org-mode run report.
func RenderReport(out *backtest.Output, loc *time.Location) ([]byte, error) {
	cfg := out.Config
	v := reportView{
		RunID:           out.RunID,
		Name:            cfg.Run.Name,
		Symbols:         strings.Join(cfg.Run.Symbols, ","),
		Timeframe:       cfg.Run.Timeframe,
		Mode:            cfg.Run.Mode,
		Start:           cfg.Run.Start.In(loc).Format(time.RFC3339),
		End:             cfg.Run.End.In(loc).Format(time.RFC3339),
		EvidenceVersion: evidence.Version,
		TieBreak:        cfg.Fills.TieBreak,
		Validity:        cfg.Orders.Validity,
		SlippageBps:     cfg.Costs.SlippageBps,
		FeeBps:          cfg.Costs.FeeBps,
		FeePerFill:      cfg.Costs.FeePerFill,
		Summary:         out.Summary,
		StartEquity:     out.Summary.StartEquity.StringFixed(2),
		EndEquity:       out.Summary.EndEquity.StringFixed(2),
		NetPnL:          out.Summary.NetPnL.StringFixed(2),
		MaxDD:           out.Summary.MaxDrawdown.StringFixed(2),
		Rejections:      len(out.Rejections),
		Issues:          len(out.Issues),
		Evidence: map[string]int{
			string(evidence.StatusPass): 0,
			string(evidence.StatusWarn): 0,
			string(evidence.StatusFail): 0,
		},
	}
	for _, t := range out.Trades {
		v.Evidence[string(t.EvidenceStatus)]++
		v.Trades = append(v.Trades, FormatTradeOrg(t, loc))
	}

	var buf bytes.Buffer
	if err := reportTmpl.Execute(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FormatTradeOrg renders a trade as an org heading with its facts in a
// PROPERTIES drawer.
func FormatTradeOrg(t backtest.Trade, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*** %s %s %s (%s)\n", t.Symbol, t.Side, t.Status, shortID(t.ID))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":TRADE_ID:    %s\n", t.ID)
	fmt.Fprintf(&b, ":INTENT_ID:   %s\n", t.IntentID)
	fmt.Fprintf(&b, ":QUANTITY:    %s\n", f(t.Quantity))
	fmt.Fprintf(&b, ":ENTRY_TIME:  %s\n", t.EntryTime.In(loc).Format(time.RFC3339))
	fmt.Fprintf(&b, ":ENTRY_PRICE: %s\n", f(t.EntryPrice))
	if t.Closed() {
		fmt.Fprintf(&b, ":EXIT_TIME:   %s\n", t.ExitTime.In(loc).Format(time.RFC3339))
		fmt.Fprintf(&b, ":EXIT_PRICE:  %s\n", f(t.ExitPrice))
		fmt.Fprintf(&b, ":EXIT_REASON: %s\n", t.ExitReason)
		fmt.Fprintf(&b, ":NET_PL:      %s\n", t.NetPnL.StringFixed(2))
	}
	fmt.Fprintf(&b, ":EVIDENCE:    %s %s\n", t.EvidenceStatus, codes(t.Evidence))
	b.WriteString(":END:")
	return b.String()
}

func shortID(full string) string {
	full = strings.TrimPrefix(full, "trd_")
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
