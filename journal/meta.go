package journal

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rustyeddy/tradesim/backtest"
	"github.com/rustyeddy/tradesim/config"
	"github.com/rustyeddy/tradesim/evidence"
)

// RunMeta describes a run independently of its outcome. It carries nothing
// that depends on the wall clock or the host, so rerunning the same
// configuration reproduces it exactly.
type RunMeta struct {
	Layout          string           `json:"layout"`
	RunID           string           `json:"run_id"`
	Name            string           `json:"name"`
	EvidenceVersion string           `json:"evidence_version"`
	Start           string           `json:"start"`
	End             string           `json:"end"`
	StorageTimezone string           `json:"storage_timezone"`
	Symbols         []string         `json:"symbols"`
	Timeframe       string           `json:"timeframe"`
	Mode            string           `json:"mode"`
	TieBreak        string           `json:"tie_break"`
	ExitHorizon     string           `json:"exit_horizon"`
	InitialCash     string           `json:"initial_cash"`
	Currency        string           `json:"currency"`
	ConfigSHA256    string           `json:"config_sha256"`
	Config          config.RunConfig `json:"config"`
}

func newRunMeta(out *backtest.Output, loc *time.Location) RunMeta {
	cfg := out.Config
	m := RunMeta{
		Layout:          Layout,
		RunID:           out.RunID,
		Name:            cfg.Run.Name,
		EvidenceVersion: evidence.Version,
		StorageTimezone: loc.String(),
		Symbols:         cfg.Run.Symbols,
		Timeframe:       cfg.Run.Timeframe,
		Mode:            cfg.Run.Mode,
		InitialCash:     cfg.InitialCash().String(),
		Currency:        cfg.Account.Currency,
		Config:          cfg,
	}
	if ec, err := cfg.EngineConfig(out.RunID); err == nil {
		m.TieBreak = string(ec.TieBreak)
		m.ExitHorizon = string(ec.ExitHorizon)
	} else {
		m.TieBreak = cfg.Fills.TieBreak
		m.ExitHorizon = cfg.Orders.ExitHorizon
	}
	if m.Symbols == nil {
		m.Symbols = []string{}
	}
	if !cfg.Run.Start.IsZero() {
		m.Start = cfg.Run.Start.In(loc).Format(time.RFC3339Nano)
	}
	if !cfg.Run.End.IsZero() {
		m.End = cfg.Run.End.In(loc).Format(time.RFC3339Nano)
	}
	if fp, err := cfg.Fingerprint(); err == nil {
		sum := sha256.Sum256(fp)
		m.ConfigSHA256 = hex.EncodeToString(sum[:])
	}
	return m
}

// ReadRunMeta loads run_meta.json from a run directory.
func ReadRunMeta(path string) (RunMeta, error) {
	var m RunMeta
	data, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

// ReadRunResult loads run_result.json from a run directory.
func ReadRunResult(path string) (backtest.RunResult, error) {
	var r backtest.RunResult
	data, err := os.ReadFile(path)
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("parse %s: %w", path, err)
	}
	return r, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
