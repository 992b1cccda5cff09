// Package sqlite is the embedded persistence layer for the economic-layer
// engine. One database file, idempotent schema migrations at open, RFC3339
// text timestamps throughout.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the sqlite handle with the engine's persistence operations.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database under dir and applies migrations.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dir, "layerd.db")
	sdb, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite allows one writer; serialize at the pool level.
	sdb.SetMaxOpenConns(1)

	db := &DB{db: sdb}
	if err := db.migrate(); err != nil {
		sdb.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the underlying database.
func (db *DB) Close() error { return db.db.Close() }

func (db *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Migrations returns the schema migration statements.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		// Per-user economic layer state
		`CREATE TABLE IF NOT EXISTS user_layers (
			user_id             TEXT PRIMARY KEY,
			community_id        TEXT NOT NULL DEFAULT '',
			current_mode        TEXT NOT NULL DEFAULT 'TRADITIONAL',
			hard_credits        INTEGER NOT NULL DEFAULT 0,
			soft_credits        INTEGER,
			last_mode_change_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_user_layers_community ON user_layers(community_id)`,

		// Append-only migration history
		`CREATE TABLE IF NOT EXISTS migration_records (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id           TEXT NOT NULL,
			from_mode         TEXT NOT NULL,
			to_mode           TEXT NOT NULL,
			reason            TEXT NOT NULL DEFAULT '',
			credits_converted INTEGER NOT NULL DEFAULT 0,
			migrated_at       TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_migrations_user ON migration_records(user_id, migrated_at)`,

		// Abundance announcements — provider_id NULL means anonymous
		`CREATE TABLE IF NOT EXISTS abundance_announcements (
			id            TEXT PRIMARY KEY,
			community_id  TEXT NOT NULL DEFAULT '',
			provider_id   TEXT,
			what          TEXT NOT NULL,
			quantity      TEXT NOT NULL DEFAULT '',
			location      TEXT NOT NULL DEFAULT '',
			lat           REAL,
			lng           REAL,
			visible_modes TEXT NOT NULL,
			expires_at    TEXT,
			taken_by      TEXT NOT NULL DEFAULT '',
			created_at    TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_abundance_community ON abundance_announcements(community_id, created_at)`,

		// Need expressions — requester_id NULL means anonymous
		`CREATE TABLE IF NOT EXISTS need_expressions (
			id            TEXT PRIMARY KEY,
			community_id  TEXT NOT NULL DEFAULT '',
			requester_id  TEXT,
			what          TEXT NOT NULL,
			why           TEXT NOT NULL DEFAULT '',
			location      TEXT NOT NULL DEFAULT '',
			urgency       TEXT,
			visible_modes TEXT NOT NULL,
			expires_at    TEXT,
			fulfilled_by  TEXT NOT NULL DEFAULT '',
			fulfilled_at  TEXT,
			created_at    TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_needs_community ON need_expressions(community_id, created_at)`,

		// Anonymous celebrations — no author column by construction
		`CREATE TABLE IF NOT EXISTS celebrations (
			id                  TEXT PRIMARY KEY,
			event               TEXT NOT NULL,
			emoji               TEXT NOT NULL,
			community_id        TEXT NOT NULL DEFAULT '',
			approx_participants INTEGER NOT NULL DEFAULT 0,
			created_at          TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_celebrations_community ON celebrations(community_id, created_at)`,

		// Per-community cached mode counts + policy knobs
		`CREATE TABLE IF NOT EXISTS community_layer_configs (
			community_id       TEXT PRIMARY KEY,
			traditional_count  INTEGER NOT NULL DEFAULT 0,
			transitional_count INTEGER NOT NULL DEFAULT 0,
			gift_count         INTEGER NOT NULL DEFAULT 0,
			chameleon_count    INTEGER NOT NULL DEFAULT 0,
			default_layer      TEXT NOT NULL DEFAULT 'TRADITIONAL',
			allow_mixed_mode   INTEGER NOT NULL DEFAULT 1,
			auto_gift_days     INTEGER NOT NULL DEFAULT 0,
			auto_debt_amnesty  INTEGER NOT NULL DEFAULT 0,
			gift_threshold     INTEGER NOT NULL DEFAULT 60,
			updated_at         TEXT NOT NULL
		)`,

		// Bridge events
		`CREATE TABLE IF NOT EXISTS bridge_events (
			id           TEXT PRIMARY KEY,
			type         TEXT NOT NULL,
			title        TEXT NOT NULL,
			description  TEXT NOT NULL,
			force_layer  TEXT,
			starts_at    TEXT NOT NULL,
			ends_at      TEXT NOT NULL,
			recurring    INTEGER NOT NULL DEFAULT 0,
			frequency    TEXT NOT NULL DEFAULT '',
			community_id TEXT NOT NULL DEFAULT '',
			created_at   TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bridge_window ON bridge_events(community_id, starts_at, ends_at)`,
	}
}

// ─── Column Helpers ─────────────────────────────────────────────────────────

// fmtTime encodes at whole-second granularity. The fixed-width RFC3339 form
// keeps string comparison equal to time comparison, which every range query
// and ORDER BY on these columns depends on.
func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func fmtTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := fmtTime(*t)
	return &s
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

// joinList encodes a string slice as a comma-separated column. IDs and mode
// names never contain commas.
func joinList(items []string) string { return strings.Join(items, ",") }

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
