// Package journal persists a finished run as an immutable directory of
// artifacts in the tradesim/v1 layout.
package journal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/tradesim/backtest"
)

// Layout is the version of the artifact layout.
const Layout = "tradesim/v1"

// Artifact file names.
const (
	FileRunMeta     = "run_meta.json"
	FileOrders      = "orders.csv"
	FileFills       = "fills.csv"
	FileTrades      = "trades.csv"
	FileEquity      = "equity_curve.csv"
	FileLedger      = "ledger.csv"
	FileRejections  = "rejections.csv"
	FileRunResult   = "run_result.json"
	FileManifest    = "run_manifest.json"
	FileReport      = "report.org"
	FileEquityChart = "equity_curve.html"
	FileSQLite      = "journal.sqlite"
)

// ErrRunExists is returned when the run directory already exists and
// overwriting was not requested.
var ErrRunExists = errors.New("journal: run directory already exists")

type Options struct {
	Org       bool
	Chart     bool
	SQLite    bool
	Overwrite bool
}

// Writer renders run outputs below a root directory, one directory per run.
type Writer struct {
	root string
	loc  *time.Location
	opts Options
	log  *zap.Logger
}

// NewWriter returns a writer that renders timestamps in loc.
func NewWriter(root string, loc *time.Location, opts Options, log *zap.Logger) (*Writer, error) {
	if root == "" {
		return nil, errors.New("journal: output root is required")
	}
	if loc == nil || loc == time.Local {
		return nil, errors.New("journal: an explicit storage location is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{root: root, loc: loc, opts: opts, log: log}, nil
}

// Dir is the directory a run is written to.
func (w *Writer) Dir(runID string) string {
	return filepath.Join(w.root, runID)
}

type artifact struct {
	name  string
	write func(path string) error
}

// Write persists out. A successful run gets the full layout. A failed run
// gets only run_meta.json, run_result.json and the manifest, never partial
// simulation output. Files are staged in a temporary directory and moved
// into place once complete.
func (w *Writer) Write(out *backtest.Output) (string, error) {
	if out == nil || out.RunID == "" {
		return "", errors.New("journal: output has no run id")
	}
	dir, err := w.write(out)
	if err != nil {
		return "", &backtest.InternalError{ID: backtest.ErrIDArtifactWrite, RunID: out.RunID, Err: err}
	}
	w.log.Info("artifacts written",
		zap.String("run_id", out.RunID),
		zap.String("dir", dir),
		zap.String("status", string(out.Result.Status)),
	)
	return dir, nil
}

func (w *Writer) write(out *backtest.Output) (string, error) {
	final := w.Dir(out.RunID)
	if _, err := os.Stat(final); err == nil && !w.opts.Overwrite {
		return "", fmt.Errorf("%s: %w", final, ErrRunExists)
	}
	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.MkdirTemp(w.root, "."+out.RunID+"-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmp)

	var names []string
	for _, a := range w.artifacts(out) {
		if err := a.write(filepath.Join(tmp, a.name)); err != nil {
			return "", fmt.Errorf("write %s: %w", a.name, err)
		}
		names = append(names, a.name)
	}
	if err := writeManifest(tmp, out.RunID, names); err != nil {
		return "", fmt.Errorf("write %s: %w", FileManifest, err)
	}

	if w.opts.Overwrite {
		if err := os.RemoveAll(final); err != nil {
			return "", err
		}
	}
	if err := os.Rename(tmp, final); err != nil {
		return "", err
	}
	return final, nil
}

func (w *Writer) artifacts(out *backtest.Output) []artifact {
	as := []artifact{
		{FileRunMeta, func(p string) error { return writeJSON(p, newRunMeta(out, w.loc)) }},
	}
	if out.Result.Status == backtest.StatusSuccess {
		as = append(as,
			artifact{FileOrders, func(p string) error { return w.writeOrders(p, out) }},
			artifact{FileFills, func(p string) error { return w.writeFills(p, out) }},
			artifact{FileTrades, func(p string) error { return w.writeTrades(p, out) }},
			artifact{FileEquity, func(p string) error { return w.writeEquity(p, out) }},
			artifact{FileLedger, func(p string) error { return w.writeLedger(p, out) }},
			artifact{FileRejections, func(p string) error { return w.writeRejections(p, out) }},
		)
		if w.opts.Org {
			as = append(as, artifact{FileReport, func(p string) error { return w.writeReport(p, out) }})
		}
		if w.opts.Chart {
			as = append(as, artifact{FileEquityChart, func(p string) error { return w.writeChart(p, out) }})
		}
		if w.opts.SQLite {
			as = append(as, artifact{FileSQLite, func(p string) error { return writeSQLite(p, out) }})
		}
	}
	return append(as, artifact{FileRunResult, func(p string) error { return writeJSON(p, out.Result) }})
}
