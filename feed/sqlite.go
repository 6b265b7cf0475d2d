package feed

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/tradesim/market"
)

// BarsSchema is the table SQLiteBars reads. Start times are stored in UTC
// so they compare lexically. timeframe_s is the bar length in seconds; zero
// means unknown and the requested timeframe is assumed.
const BarsSchema = `
CREATE TABLE IF NOT EXISTS bars (
	symbol TEXT NOT NULL,
	start DATETIME NOT NULL,
	open REAL NOT NULL,
	high REAL NOT NULL,
	low REAL NOT NULL,
	close REAL NOT NULL,
	volume REAL NOT NULL,
	timeframe_s INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (symbol, start)
);
`

// SQLiteBars serves bar series from a SQLite database.
type SQLiteBars struct {
	db *sql.DB
}

func OpenSQLiteBars(path string) (*SQLiteBars, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(BarsSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteBars{db: db}, nil
}

func (s *SQLiteBars) Close() error {
	return s.db.Close()
}

// Insert stores bars, replacing any bar with the same symbol and start.
func (s *SQLiteBars) Insert(ctx context.Context, bars []market.Bar) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, start, open, high, low, close, volume, timeframe_s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		if err := market.CheckTimestamp(b.Start); err != nil {
			return fmt.Errorf("bar %s: %w", b.Symbol, err)
		}
		if _, err := stmt.ExecContext(ctx, b.Symbol, b.Start.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume,
			int64(b.Timeframe/time.Second)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Bars returns the bars of symbol starting in [from, to), ordered by start.
// Bars keep the timeframe they were stored with so mixed resolutions reach
// the series check instead of being relabelled.
func (s *SQLiteBars) Bars(ctx context.Context, symbol string, tf time.Duration, from, to time.Time) ([]market.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT start, open, high, low, close, volume, timeframe_s
		FROM bars
		WHERE symbol = ? AND start >= ? AND start < ?
		ORDER BY start ASC`, symbol, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.Bar
	for rows.Next() {
		b := market.Bar{Symbol: symbol, Timeframe: tf}
		var secs int64
		if err := rows.Scan(&b.Start, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &secs); err != nil {
			return nil, err
		}
		if secs > 0 {
			b.Timeframe = time.Duration(secs) * time.Second
		}
		b.Start = b.Start.UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}
