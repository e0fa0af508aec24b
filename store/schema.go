// store/schema.go
package store

const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	trade_id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	direction TEXT NOT NULL,
	entry_price REAL NOT NULL,
	current_bid REAL NOT NULL,
	current_ask REAL NOT NULL,
	start_time DATETIME NOT NULL,
	end_time DATETIME,
	status TEXT NOT NULL,
	target_price REAL NOT NULL,
	target_kind TEXT NOT NULL,
	target_amount REAL NOT NULL,
	lot_size REAL NOT NULL,
	profit_loss REAL NOT NULL DEFAULT 0,
	margin_used REAL NOT NULL DEFAULT 0,
	swap REAL NOT NULL DEFAULT 0,
	commission REAL NOT NULL DEFAULT 0,
	bias_factor REAL NOT NULL DEFAULT 0,
	closing_price REAL
);

CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);
CREATE INDEX IF NOT EXISTS idx_trades_end_time ON trades(end_time);
`
