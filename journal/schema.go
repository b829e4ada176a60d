package journal

// Times are stored as naive local "YYYY-MM-DD HH:MM:SS[.ffffff]" text so
// they sort lexically; money is stored as decimal text.
const Schema = `
CREATE TABLE IF NOT EXISTS fills (
	id TEXT PRIMARY KEY,
	account TEXT NOT NULL,
	trade_id TEXT NOT NULL DEFAULT '',
	entrust_id TEXT NOT NULL DEFAULT '',
	contract_id TEXT NOT NULL DEFAULT '',
	security TEXT NOT NULL,
	side INTEGER NOT NULL,
	price TEXT NOT NULL,
	volume INTEGER NOT NULL,
	filled INTEGER NOT NULL,
	fees TEXT NOT NULL,
	time TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fills_account_time ON fills(account, time);

CREATE TABLE IF NOT EXISTS assets (
	account TEXT NOT NULL,
	date TEXT NOT NULL,
	assets TEXT NOT NULL,
	PRIMARY KEY (account, date)
);
`
