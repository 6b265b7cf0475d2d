package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rustyeddy/tradesim/market"
)

// CSVBars reads one file per symbol, <dir>/<SYMBOL>.csv, with the columns
//
//	time,open,high,low,close,volume
//
// where time is RFC3339 with an explicit offset. A missing file yields an
// empty series; the runner decides whether that is acceptable.
type CSVBars struct {
	Dir string
}

func NewCSVBars(dir string) *CSVBars {
	return &CSVBars{Dir: dir}
}

// Path is the file holding symbol's bars.
func (c *CSVBars) Path(symbol string) string {
	return filepath.Join(c.Dir, symbol+".csv")
}

func (c *CSVBars) Bars(ctx context.Context, symbol string, tf time.Duration, from, to time.Time) ([]market.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(c.Path(symbol))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	bars, err := ReadBars(f, symbol, tf, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Path(symbol), err)
	}
	return bars, nil
}

// ReadBars parses a bar CSV and keeps the bars starting in [from, to). A
// zero bound is open. Parsing is strict: a malformed row fails the whole
// file, nothing is defaulted.
func ReadBars(r io.Reader, symbol string, tf time.Duration, from, to time.Time) ([]market.Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	first, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	idx, err := header(first, "time", "open", "high", "low", "close", "volume")
	if err != nil {
		return nil, err
	}

	var bars []market.Bar
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			return bars, nil
		}
		if err != nil {
			return nil, err
		}
		b, err := parseBarRow(row, idx, symbol, tf)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if inRange(b.Start, from, to) {
			bars = append(bars, b)
		}
	}
}

func parseBarRow(row []string, idx map[string]int, symbol string, tf time.Duration) (market.Bar, error) {
	start, err := market.ParseTimestamp(field(row, idx, "time"))
	if err != nil {
		return market.Bar{}, err
	}
	b := market.Bar{Symbol: symbol, Timeframe: tf, Start: start}
	for _, col := range []struct {
		name string
		dst  *float64
	}{
		{"open", &b.Open},
		{"high", &b.High},
		{"low", &b.Low},
		{"close", &b.Close},
	} {
		if *col.dst, err = market.ParsePrice(field(row, idx, col.name)); err != nil {
			return market.Bar{}, fmt.Errorf("%s: %w", col.name, err)
		}
	}
	if b.Volume, err = market.ParseQuantity(field(row, idx, "volume")); err != nil {
		return market.Bar{}, fmt.Errorf("volume: %w", err)
	}
	return b, nil
}

// WriteBars writes bars in the format ReadBars reads, with times rendered
// in loc.
func WriteBars(w io.Writer, bars []market.Bar, loc *time.Location) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, b := range bars {
		if err := cw.Write([]string{
			b.Start.In(loc).Format(time.RFC3339Nano),
			formatFloat(b.Open),
			formatFloat(b.High),
			formatFloat(b.Low),
			formatFloat(b.Close),
			formatFloat(b.Volume),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
