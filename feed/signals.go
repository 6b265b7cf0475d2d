package feed

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/rustyeddy/tradesim/market"
)

//go:embed schema/signals.schema.json
var signalsSchemaJSON []byte

const signalsSchemaURL = "signals.schema.json"

var signalsSchema = func() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(signalsSchemaURL, bytes.NewReader(signalsSchemaJSON)); err != nil {
		panic(err)
	}
	return compiler.MustCompile(signalsSchemaURL)
}()

type signalDoc struct {
	Signals []signalRecord `json:"signals"`
}

type signalRecord struct {
	Symbol          string            `json:"symbol"`
	Side            string            `json:"side"`
	Timestamp       string            `json:"timestamp"`
	Entry           float64           `json:"entry"`
	Stop            *float64          `json:"stop"`
	Target          *float64          `json:"target"`
	Strategy        string            `json:"strategy"`
	StrategyVersion string            `json:"strategy_version"`
	OCOKey          string            `json:"oco_key"`
	Meta            map[string]string `json:"meta"`
}

// signal converts a record. A timestamp without an offset is an error for
// the whole source. An unknown side is kept as an invalid Side so the
// intent builder rejects the one signal.
func (r signalRecord) signal() (market.Signal, error) {
	ts, err := market.ParseTimestamp(r.Timestamp)
	if err != nil {
		return market.Signal{}, err
	}
	side, _ := market.ParseSide(r.Side)
	return market.Signal{
		Symbol:          r.Symbol,
		Side:            side,
		Timestamp:       ts,
		Entry:           r.Entry,
		Stop:            r.Stop,
		Target:          r.Target,
		Strategy:        r.Strategy,
		StrategyVersion: r.StrategyVersion,
		OCOKey:          r.OCOKey,
		Meta:            r.Meta,
	}, nil
}

// JSONSignals reads a signals document:
//
//	{"signals": [{"symbol": "SPY", "side": "long", "timestamp": "...", "entry": 100, ...}]}
//
// The document is validated against the embedded schema before decoding.
type JSONSignals struct {
	Path string
}

func NewJSONSignals(path string) *JSONSignals {
	return &JSONSignals{Path: path}
}

// Signals returns every signal in the file in file order.
func (j *JSONSignals) Signals(ctx context.Context, _, _ time.Time) ([]market.Signal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(j.Path)
	if err != nil {
		return nil, err
	}
	sigs, err := DecodeSignals(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", j.Path, err)
	}
	return sigs, nil
}

// DecodeSignals validates and decodes a JSON signals document.
func DecodeSignals(data []byte) ([]market.Signal, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse signals: %w", err)
	}
	if err := signalsSchema.Validate(raw); err != nil {
		return nil, fmt.Errorf("invalid signals document: %w", err)
	}
	var doc signalDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode signals: %w", err)
	}
	out := make([]market.Signal, 0, len(doc.Signals))
	for i, r := range doc.Signals {
		s, err := r.signal()
		if err != nil {
			return nil, fmt.Errorf("signal %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CSVSignals reads signals from a CSV file with a header row. The columns
// symbol, side, timestamp and entry are required; stop, target, strategy,
// strategy_version and oco_key are optional.
type CSVSignals struct {
	Path string
}

func NewCSVSignals(path string) *CSVSignals {
	return &CSVSignals{Path: path}
}

func (c *CSVSignals) Signals(ctx context.Context, _, _ time.Time) ([]market.Signal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sigs, err := ReadSignals(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Path, err)
	}
	return sigs, nil
}

// ReadSignals parses signal CSV. Prices go through the fallible market
// parsers: an empty entry or a malformed level fails the file.
func ReadSignals(r io.Reader) ([]market.Signal, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	first, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	idx, err := header(first, "symbol", "side", "timestamp", "entry")
	if err != nil {
		return nil, err
	}

	var out []market.Signal
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		s, err := parseSignalRow(row, idx)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, s)
	}
}

func parseSignalRow(row []string, idx map[string]int) (market.Signal, error) {
	rec := signalRecord{
		Symbol:          field(row, idx, "symbol"),
		Side:            field(row, idx, "side"),
		Timestamp:       field(row, idx, "timestamp"),
		Strategy:        field(row, idx, "strategy"),
		StrategyVersion: field(row, idx, "strategy_version"),
		OCOKey:          field(row, idx, "oco_key"),
	}
	var err error
	if rec.Entry, err = market.ParsePrice(field(row, idx, "entry")); err != nil {
		return market.Signal{}, fmt.Errorf("entry: %w", err)
	}
	if rec.Stop, err = market.ParseOptionalPrice(field(row, idx, "stop")); err != nil {
		return market.Signal{}, fmt.Errorf("stop: %w", err)
	}
	if rec.Target, err = market.ParseOptionalPrice(field(row, idx, "target")); err != nil {
		return market.Signal{}, fmt.Errorf("target: %w", err)
	}
	return rec.signal()
}
