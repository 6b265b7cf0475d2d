package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/tradesim/calendar"
	"github.com/rustyeddy/tradesim/intent"
	"github.com/rustyeddy/tradesim/market"
	"github.com/rustyeddy/tradesim/pkg/id"
	"github.com/rustyeddy/tradesim/risk"
	"github.com/rustyeddy/tradesim/sim"
)

const (
	ModeStrict  = "strict"
	ModeLenient = "lenient"
)

// RunConfig is the complete, immutable description of one run. It is built
// once (Load or Default) and passed by value to every component.
type RunConfig struct {
	Run     RunSection     `json:"run" yaml:"run" mapstructure:"run"`
	Market  MarketSection  `json:"market" yaml:"market" mapstructure:"market"`
	Orders  OrderSection   `json:"orders" yaml:"orders" mapstructure:"orders"`
	Fills   FillSection    `json:"fills" yaml:"fills" mapstructure:"fills"`
	Costs   CostSection    `json:"costs" yaml:"costs" mapstructure:"costs"`
	Account AccountSection `json:"account" yaml:"account" mapstructure:"account"`
	Sizing  risk.Policy    `json:"sizing" yaml:"sizing" mapstructure:"sizing"`
	Ledger  LedgerSection  `json:"ledger" yaml:"ledger" mapstructure:"ledger"`
	Data    DataSection    `json:"data" yaml:"data" mapstructure:"data"`
	Output  OutputSection  `json:"output" yaml:"output" mapstructure:"output"`
	Publish PublishSection `json:"publish" yaml:"publish" mapstructure:"publish"`
}

type RunSection struct {
	// ID overrides the derived run ID.
	ID        string    `json:"id,omitempty" yaml:"id,omitempty" mapstructure:"id"`
	Name      string    `json:"name" yaml:"name" mapstructure:"name"`
	Start     time.Time `json:"start" yaml:"start" mapstructure:"start"`
	End       time.Time `json:"end" yaml:"end" mapstructure:"end"`
	Symbols   []string  `json:"symbols" yaml:"symbols" mapstructure:"symbols"`
	Timeframe string    `json:"timeframe" yaml:"timeframe" mapstructure:"timeframe"` // M5, 15m, ...
	Mode      string    `json:"mode" yaml:"mode" mapstructure:"mode"`                // strict | lenient
	Workers   int       `json:"workers" yaml:"workers" mapstructure:"workers"`       // 0 = GOMAXPROCS
}

type MarketSection struct {
	Timezone           string            `json:"timezone" yaml:"timezone" mapstructure:"timezone"`
	StorageTimezone    string            `json:"storage_timezone" yaml:"storage_timezone" mapstructure:"storage_timezone"`
	Sessions           []calendar.Window `json:"sessions,omitempty" yaml:"sessions,omitempty" mapstructure:"sessions"`
	RTH                calendar.Window   `json:"rth" yaml:"rth" mapstructure:"rth"`
	Weekdays           []string          `json:"weekdays,omitempty" yaml:"weekdays,omitempty" mapstructure:"weekdays"`
	Holidays           []string          `json:"holidays,omitempty" yaml:"holidays,omitempty" mapstructure:"holidays"`
	AllowExtendedHours bool              `json:"allow_extended_hours" yaml:"allow_extended_hours" mapstructure:"allow_extended_hours"`
}

type OrderSection struct {
	Validity      string `json:"validity" yaml:"validity" mapstructure:"validity"`
	FixedMinutes  int    `json:"fixed_minutes" yaml:"fixed_minutes" mapstructure:"fixed_minutes"`
	OCO           bool   `json:"oco" yaml:"oco" mapstructure:"oco"`
	Netting       bool   `json:"netting" yaml:"netting" mapstructure:"netting"`
	RequireStop   bool   `json:"require_stop" yaml:"require_stop" mapstructure:"require_stop"`
	RequireTarget bool   `json:"require_target" yaml:"require_target" mapstructure:"require_target"`
	// ExitHorizon is session_end or validity_end. Empty follows the validity
	// policy: session_end for session_end orders, validity_end otherwise.
	ExitHorizon string `json:"exit_horizon,omitempty" yaml:"exit_horizon,omitempty" mapstructure:"exit_horizon"`
}

type FillSection struct {
	TieBreak string `json:"tie_break" yaml:"tie_break" mapstructure:"tie_break"`
}

type CostSection struct {
	SlippageBps float64 `json:"slippage_bps" yaml:"slippage_bps" mapstructure:"slippage_bps"`
	FeeBps      float64 `json:"fee_bps" yaml:"fee_bps" mapstructure:"fee_bps"`
	FeePerFill  float64 `json:"fee_per_fill" yaml:"fee_per_fill" mapstructure:"fee_per_fill"`
}

type AccountSection struct {
	InitialCash float64 `json:"initial_cash" yaml:"initial_cash" mapstructure:"initial_cash"`
	Currency    string  `json:"currency" yaml:"currency" mapstructure:"currency"`
}

type LedgerSection struct {
	// StrictSingleOrderAudit enforces non-decreasing ledger time. It only
	// takes effect on single-symbol runs.
	StrictSingleOrderAudit bool `json:"strict_single_order_audit" yaml:"strict_single_order_audit" mapstructure:"strict_single_order_audit"`
}

type Source struct {
	Kind string `json:"kind" yaml:"kind" mapstructure:"kind"`
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

type DataSection struct {
	Bars        Source  `json:"bars" yaml:"bars" mapstructure:"bars"`          // csv (directory) | sqlite (file)
	Signals     Source  `json:"signals" yaml:"signals" mapstructure:"signals"` // json | csv
	MinCoverage float64 `json:"min_coverage" yaml:"min_coverage" mapstructure:"min_coverage"`
}

type OutputSection struct {
	Dir    string `json:"dir" yaml:"dir" mapstructure:"dir"`
	Org    bool   `json:"org" yaml:"org" mapstructure:"org"`
	Chart  bool   `json:"chart" yaml:"chart" mapstructure:"chart"`
	SQLite bool   `json:"sqlite" yaml:"sqlite" mapstructure:"sqlite"`
}

type PublishSection struct {
	Bucket    string `json:"bucket" yaml:"bucket" mapstructure:"bucket"`
	Region    string `json:"region" yaml:"region" mapstructure:"region"`
	Endpoint  string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	Prefix    string `json:"prefix" yaml:"prefix" mapstructure:"prefix"`
	PathStyle bool   `json:"path_style" yaml:"path_style" mapstructure:"path_style"`
}

// Default returns a configuration with sensible defaults for a US equity
// intraday run. Start, End and the data paths still need to be set.
func Default() RunConfig {
	return RunConfig{
		Run: RunSection{
			Name:      "tradesim",
			Timeframe: "M5",
			Mode:      ModeStrict,
		},
		Market: MarketSection{
			Timezone:        "America/New_York",
			StorageTimezone: "UTC",
			RTH:             calendar.Window{Name: "rth", Start: "09:30", End: "16:00"},
		},
		Orders: OrderSection{
			Validity:     string(intent.PolicySessionEnd),
			FixedMinutes: 30,
			OCO:          true,
			Netting:      true,
		},
		Fills:   FillSection{TieBreak: string(sim.TieStopFirst)},
		Account: AccountSection{InitialCash: 100000, Currency: "USD"},
		Sizing:  risk.DefaultPolicy(),
		Data: DataSection{
			Bars:    Source{Kind: "csv", Path: "./data/bars"},
			Signals: Source{Kind: "json", Path: "./data/signals.json"},
		},
		Output: OutputSection{Dir: "./runs"},
		Publish: PublishSection{
			Region: "us-east-1",
			Prefix: "runs",
		},
	}
}

// Validate checks that the configuration is complete and coherent.
func (c RunConfig) Validate() error {
	if c.Run.Start.IsZero() || c.Run.End.IsZero() {
		return fmt.Errorf("run.start and run.end are required")
	}
	for _, t := range []time.Time{c.Run.Start, c.Run.End} {
		if err := market.CheckTimestamp(t); err != nil {
			return fmt.Errorf("run window: %w", err)
		}
	}
	if !c.Run.End.After(c.Run.Start) {
		return fmt.Errorf("run.end must be after run.start")
	}
	if _, err := market.ParseTimeframe(c.Run.Timeframe); err != nil {
		return fmt.Errorf("run.timeframe: %w", err)
	}
	if c.Run.Mode != ModeStrict && c.Run.Mode != ModeLenient {
		return fmt.Errorf("run.mode must be 'strict' or 'lenient'")
	}
	if c.Run.Workers < 0 {
		return fmt.Errorf("run.workers must not be negative")
	}
	if _, err := calendar.New(c.CalendarConfig()); err != nil {
		return fmt.Errorf("market: %w", err)
	}
	if _, err := c.StorageLocation(); err != nil {
		return err
	}
	if _, err := c.IntentParams(); err != nil {
		return err
	}
	if c.Orders.Validity == string(intent.PolicyFixedMinutes) && c.Orders.FixedMinutes <= 0 {
		return fmt.Errorf("orders.fixed_minutes must be positive for the fixed_minutes policy")
	}
	if _, err := c.EngineConfig(""); err != nil {
		return err
	}
	if c.Account.InitialCash <= 0 {
		return fmt.Errorf("account.initial_cash must be positive")
	}
	if c.Account.Currency == "" {
		return fmt.Errorf("account.currency is required")
	}
	switch c.Data.Bars.Kind {
	case "csv", "sqlite":
	default:
		return fmt.Errorf("data.bars.kind must be 'csv' or 'sqlite'")
	}
	switch c.Data.Signals.Kind {
	case "json", "csv":
	default:
		return fmt.Errorf("data.signals.kind must be 'json' or 'csv'")
	}
	if c.Data.Bars.Path == "" || c.Data.Signals.Path == "" {
		return fmt.Errorf("data.bars.path and data.signals.path are required")
	}
	if c.Data.MinCoverage < 0 || c.Data.MinCoverage > 1 {
		return fmt.Errorf("data.min_coverage must be between 0 and 1")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir is required")
	}
	return nil
}

// Strict reports whether contract violations abort the run.
func (c RunConfig) Strict() bool { return c.Run.Mode != ModeLenient }

func (c RunConfig) CalendarConfig() calendar.Config {
	return calendar.Config{
		Timezone: c.Market.Timezone,
		Sessions: c.Market.Sessions,
		RTH:      c.Market.RTH,
		Weekdays: c.Market.Weekdays,
		Holidays: c.Market.Holidays,
	}
}

func (c RunConfig) Timeframe() (time.Duration, error) {
	return market.ParseTimeframe(c.Run.Timeframe)
}

// StorageLocation is the zone persisted timestamps are rendered in.
func (c RunConfig) StorageLocation() (*time.Location, error) {
	name := c.Market.StorageTimezone
	if name == "" {
		name = "UTC"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("market.storage_timezone: %w", err)
	}
	if loc == time.Local {
		return nil, fmt.Errorf("market.storage_timezone: %q is machine-dependent", name)
	}
	return loc, nil
}

func (c RunConfig) InitialCash() decimal.Decimal {
	return decimal.NewFromFloat(c.Account.InitialCash)
}

func (c RunConfig) IntentParams() (intent.Params, error) {
	tf, err := c.Timeframe()
	if err != nil {
		return intent.Params{}, fmt.Errorf("run.timeframe: %w", err)
	}
	pol, err := intent.ParsePolicy(c.Orders.Validity)
	if err != nil {
		return intent.Params{}, fmt.Errorf("orders.validity: %w", err)
	}
	if err := c.Sizing.Validate(); err != nil {
		return intent.Params{}, err
	}
	return intent.Params{
		Policy:        pol,
		FixedMinutes:  c.Orders.FixedMinutes,
		Timeframe:     tf,
		RequireStop:   c.Orders.RequireStop,
		RequireTarget: c.Orders.RequireTarget,
		OCO:           c.Orders.OCO,
		Sizing:        c.Sizing,
		InitialCash:   c.Account.InitialCash,
	}, nil
}

func (c RunConfig) EngineConfig(runID string) (sim.Config, error) {
	tb, err := sim.ParseTieBreak(c.Fills.TieBreak)
	if err != nil {
		return sim.Config{}, fmt.Errorf("fills.tie_break: %w", err)
	}
	hz, err := c.exitHorizon()
	if err != nil {
		return sim.Config{}, fmt.Errorf("orders.exit_horizon: %w", err)
	}
	if c.Costs.SlippageBps < 0 || c.Costs.FeeBps < 0 || c.Costs.FeePerFill < 0 {
		return sim.Config{}, fmt.Errorf("costs must be non-negative")
	}
	return sim.Config{
		RunID:       runID,
		TieBreak:    tb,
		ExitHorizon: hz,
		Costs: sim.Costs{
			SlippageBps: c.Costs.SlippageBps,
			FeeBps:      c.Costs.FeeBps,
			FeePerFill:  decimal.NewFromFloat(c.Costs.FeePerFill),
		},
		Netting: c.Orders.Netting,
		RunEnd:  c.Run.End,
	}, nil
}

func (c RunConfig) exitHorizon() (sim.ExitHorizon, error) {
	if strings.TrimSpace(c.Orders.ExitHorizon) != "" {
		return sim.ParseExitHorizon(c.Orders.ExitHorizon)
	}
	if c.Orders.Validity == "" || strings.EqualFold(strings.TrimSpace(c.Orders.Validity), string(intent.PolicySessionEnd)) {
		return sim.HorizonSessionEnd, nil
	}
	return sim.HorizonValidityEnd, nil
}

// Fingerprint is the canonical YAML rendering of the configuration without
// its explicit run ID or where the artifacts go.
func (c RunConfig) Fingerprint() ([]byte, error) {
	c.Run.ID = ""
	c.Output = OutputSection{}
	c.Publish = PublishSection{}
	return yaml.Marshal(c)
}

// RunID returns the configured run ID, or one derived from the run start and
// the configuration fingerprint.
func (c RunConfig) RunID() (string, error) {
	if c.Run.ID != "" {
		return c.Run.ID, nil
	}
	fp, err := c.Fingerprint()
	if err != nil {
		return "", fmt.Errorf("fingerprint config: %w", err)
	}
	return id.RunID(c.Run.Start, fp)
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension).
func (c RunConfig) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
