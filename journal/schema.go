package journal

const Schema = `
CREATE TABLE IF NOT EXISTS fills (
	run_id TEXT NOT NULL,
	order_id INTEGER NOT NULL,
	time DATETIME NOT NULL,
	instrument TEXT NOT NULL,
	strategy TEXT NOT NULL,
	side TEXT NOT NULL,
	price REAL NOT NULL,
	quantity INTEGER NOT NULL,
	commission REAL NOT NULL,
	slippage REAL NOT NULL,
	maker INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fills_run ON fills(run_id, time);

CREATE TABLE IF NOT EXISTS risk_events (
	run_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	type TEXT NOT NULL,
	strategy TEXT NOT NULL,
	instrument TEXT NOT NULL,
	message TEXT NOT NULL,
	value REAL NOT NULL,
	limit_value REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_risk_run ON risk_events(run_id, time);

CREATE TABLE IF NOT EXISTS backtest_runs (
	run_id TEXT PRIMARY KEY,
	created DATETIME NOT NULL,
	dataset TEXT NOT NULL,
	strategies TEXT NOT NULL,
	instruments TEXT NOT NULL,
	config BLOB,
	start_time DATETIME NOT NULL,
	end_time DATETIME NOT NULL,
	ticks INTEGER NOT NULL,
	orders INTEGER NOT NULL,
	rejected INTEGER NOT NULL,
	fills INTEGER NOT NULL,
	trades INTEGER NOT NULL,
	wins INTEGER NOT NULL,
	losses INTEGER NOT NULL,
	total_pnl REAL NOT NULL,
	unrealized_pnl REAL NOT NULL,
	commission REAL NOT NULL,
	slippage REAL NOT NULL,
	max_drawdown REAL NOT NULL,
	notes TEXT NOT NULL
);
`
