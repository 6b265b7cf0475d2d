package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBars = `time,open,high,low,close,volume
2024-03-11T09:30:00-04:00,99.8,99.9,99.6,99.7,1000
2024-03-11T09:35:00-04:00,99.9,100.5,99.8,100.3,1000
2024-03-11T09:40:00-04:00,100.3,101.2,99.4,100.0,1000
2024-03-11T09:45:00-04:00,100.0,100.1,99.9,100.0,1000
`

const testSignals = `{"signals": [
  {"symbol": "SPY", "side": "long", "timestamp": "2024-03-11T09:32:00-04:00",
   "entry": 100, "stop": 99.5, "target": 101, "strategy": "breakout"}
]}`

func writeFixture(t *testing.T) (cfgPath, runsDir string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bars"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bars", "SPY.csv"), []byte(testBars), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "signals.json"), []byte(testSignals), 0o644))

	runsDir = filepath.Join(dir, "runs")
	cfg := `run:
  name: cli-test
  start: "2024-03-11T09:30:00-04:00"
  end: "2024-03-11T16:00:00-04:00"
  symbols: [SPY]
data:
  bars:
    kind: csv
    path: ` + filepath.Join(dir, "bars") + `
  signals:
    kind: json
    path: ` + filepath.Join(dir, "signals.json") + `
output:
  dir: ` + runsDir + `
  org: true
  sqlite: true
`
	cfgPath = filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return cfgPath, runsDir
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	return rootCmd.ExecuteContext(context.Background())
}

func TestRunAndVerify(t *testing.T) {
	cfgPath, runsDir := writeFixture(t)

	require.NoError(t, execute(t, "config", "validate", "-f", cfgPath))
	require.NoError(t, execute(t, "run", "-c", cfgPath, "-q"))

	entries, err := os.ReadDir(runsDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	runDir := filepath.Join(runsDir, entries[0].Name())
	assert.FileExists(t, filepath.Join(runDir, "report.org"))

	require.NoError(t, execute(t, "ledger", "verify", runDir))
	require.NoError(t, execute(t, "journal", "day", "-d", filepath.Join(runDir, "journal.sqlite"), "2024-03-11"))

	// a second run into the same directory is refused without --overwrite
	assert.Error(t, execute(t, "run", "-c", cfgPath, "-q"))
	assert.NoError(t, execute(t, "run", "-c", cfgPath, "-q", "--overwrite"))
	runOverwrite = false
}

func TestDataImport(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "SPY.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(testBars), 0o644))
	db := filepath.Join(dir, "bars.sqlite")

	require.NoError(t, execute(t, "data", "import", "-d", db, "-s", "SPY", csvPath))
	assert.FileExists(t, db)
}

func TestDayBounds(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// DST starts on 2024-03-10, a 23 hour day
	start, end, err := dayBounds(loc, "2024-03-10")
	require.NoError(t, err)
	assert.Equal(t, 23*time.Hour, end.Sub(start))

	_, _, err = dayBounds(loc, "03/10/2024")
	assert.Error(t, err)
}
