package store

// created_at is RFC 3339 text in SQLite.
const walletsTableSQLite = `
CREATE TABLE IF NOT EXISTS wallets (
	owner      TEXT PRIMARY KEY,
	public_key TEXT NOT NULL,
	secret_key BLOB NOT NULL,
	created_at TEXT NOT NULL
)`
