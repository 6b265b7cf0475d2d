package journal

// Schema of the SQLite mirror. Money is stored as decimal TEXT so no value
// is rounded through a float; times are stored in UTC so they compare
// lexically.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	status TEXT NOT NULL,
	start_time DATETIME NOT NULL,
	end_time DATETIME NOT NULL,
	symbols TEXT NOT NULL,
	timeframe TEXT NOT NULL,
	initial_cash TEXT NOT NULL,
	final_equity TEXT NOT NULL,
	net_pnl TEXT NOT NULL,
	trades INTEGER NOT NULL,
	wins INTEGER NOT NULL,
	losses INTEGER NOT NULL,
	max_dd_pct REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	run_id TEXT NOT NULL,
	trade_id TEXT NOT NULL,
	intent_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	status TEXT NOT NULL,
	quantity REAL NOT NULL,
	entry_time DATETIME NOT NULL,
	entry_price REAL NOT NULL,
	exit_time DATETIME,
	exit_price REAL,
	exit_reason TEXT NOT NULL,
	net_pnl TEXT NOT NULL,
	evidence_status TEXT NOT NULL,
	PRIMARY KEY (run_id, trade_id)
);

CREATE TABLE IF NOT EXISTS equity (
	run_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	time DATETIME NOT NULL,
	equity TEXT NOT NULL,
	drawdown TEXT NOT NULL,
	drawdown_pct REAL NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_trades_exit_time ON trades(exit_time);
CREATE INDEX IF NOT EXISTS idx_equity_time ON equity(time);
`
