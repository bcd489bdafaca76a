package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema. Timestamps are UTC RFC 3339 text with
// exactly nine fractional digits, so text order is time order.
const schema = `
CREATE TABLE IF NOT EXISTS items (
    id               TEXT PRIMARY KEY,
    item_name        TEXT NOT NULL DEFAULT '',
    item_description TEXT NOT NULL DEFAULT '',
    category         TEXT NOT NULL,
    location_found   TEXT NOT NULL DEFAULT '',
    image_name       TEXT NOT NULL DEFAULT '',
    date_found       TEXT NOT NULL,
    is_claimed       INTEGER NOT NULL DEFAULT 0 CHECK (is_claimed IN (0, 1)),
    claimer          TEXT,
    date_claimed     TEXT,
    CHECK ((is_claimed = 0 AND claimer IS NULL AND date_claimed IS NULL)
        OR (is_claimed = 1 AND claimer IS NOT NULL AND date_claimed IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS idx_items_date_found ON items(date_found);

CREATE TABLE IF NOT EXISTS label_cache (
    image_hash TEXT PRIMARY KEY,
    label      TEXT NOT NULL DEFAULT '',
    confidence REAL NOT NULL DEFAULT 0,
    has_label  INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: Speed up the claimed/unclaimed split of the item list.
	`CREATE INDEX IF NOT EXISTS idx_items_is_claimed ON items(is_claimed)`,

	// Migration 2: Pad timestamps written with trimmed fractional seconds
	// to the fixed-width layout.
	`UPDATE items SET date_found = ` + padTimestamp("date_found") + `
	 WHERE length(date_found) < 30 AND date_found LIKE '%Z'`,
	`UPDATE items SET date_claimed = ` + padTimestamp("date_claimed") + `
	 WHERE date_claimed IS NOT NULL AND length(date_claimed) < 30 AND date_claimed LIKE '%Z'`,
}

// padTimestamp returns an SQL expression rewriting a UTC RFC 3339 column
// value such as 2026-03-01T12:00:00.5Z to 2026-03-01T12:00:00.500000000Z.
func padTimestamp(col string) string {
	return `substr(` + col + `, 1, 19) || '.' || substr(
	    CASE WHEN length(` + col + `) > 20 THEN substr(` + col + `, 21, length(` + col + `) - 21) ELSE '' END
	    || '000000000', 1, 9) || 'Z'`
}

// EnsureSchema creates all tables and indexes if they don't already exist
// and applies pending migrations.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}
