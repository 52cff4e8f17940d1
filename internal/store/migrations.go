package store

import "database/sql"

var migrations = []func(tx *sql.Tx) error{
	migrateV1,
	migrateV2,
}

func migrateV1(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS hosts (
			id              TEXT PRIMARY KEY,
			name            TEXT NOT NULL UNIQUE,
			is_maintenance  BOOLEAN NOT NULL DEFAULT 0,
			first_seen_at   DATETIME NOT NULL DEFAULT (datetime('now')),
			last_seen_at    DATETIME NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS samples (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			host_id         TEXT NOT NULL REFERENCES hosts(id) ON DELETE CASCADE,
			recorded_at     DATETIME NOT NULL DEFAULT (datetime('now')),
			cpu_usage       REAL NOT NULL,
			ram_usage       REAL NOT NULL,
			disk_usage      REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_samples_host_time ON samples(host_id, recorded_at)`,
		`CREATE TABLE IF NOT EXISTS sites (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			host_id         TEXT NOT NULL REFERENCES hosts(id) ON DELETE CASCADE,
			url             TEXT NOT NULL,
			status          TEXT NOT NULL,
			last_check_at   DATETIME NOT NULL DEFAULT (datetime('now')),
			UNIQUE(host_id, url)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func migrateV2(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			token       TEXT PRIMARY KEY,
			created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
			expires_at  DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_expiry ON sessions(expires_at)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
