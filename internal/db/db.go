package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"portfolio-optimizer/internal/logger"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// DB wraps a SQLite database connection holding the price cache and run history.
type DB struct {
	sql *sql.DB
}

func defaultPath() string {
	// Prefer working directory so the DB is stable across go run / go build.
	if wd, err := os.Getwd(); err == nil {
		return filepath.Join(wd, "optimizer.db")
	}
	exe, _ := os.Executable()
	return filepath.Join(filepath.Dir(exe), "optimizer.db")
}

// OpenPath opens (or creates) the SQLite database at path and runs migrations.
// An empty path means optimizer.db in the working directory.
func OpenPath(path string) (*DB, error) {
	if path == "" {
		path = defaultPath()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	d := &DB{sql: sqlDB}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	logger.Success("DB", fmt.Sprintf("Opened %s", path))
	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.sql.Close()
}

func (d *DB) migrate() error {
	version := 0
	// Missing table on a fresh database leaves version at 0.
	d.sql.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)

	if version < 1 {
		_, err := d.sql.Exec(`
			CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

			CREATE TABLE IF NOT EXISTS price_cache (
				source   TEXT NOT NULL,
				asset_id TEXT NOT NULL,
				idx      INTEGER NOT NULL,
				price    REAL NOT NULL,
				PRIMARY KEY (source, asset_id, idx)
			);

			CREATE TABLE IF NOT EXISTS price_cache_meta (
				source     TEXT NOT NULL,
				asset_id   TEXT NOT NULL,
				points     INTEGER NOT NULL,
				updated_at TEXT NOT NULL,
				PRIMARY KEY (source, asset_id)
			);

			INSERT OR IGNORE INTO schema_version (version) VALUES (1);
		`)
		if err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
		logger.Info("DB", "Applied migration v1 (price cache)")
	}

	if version < 2 {
		_, err := d.sql.Exec(`
			CREATE TABLE IF NOT EXISTS optimization_runs (
				id                  TEXT PRIMARY KEY,
				created_at          TEXT NOT NULL,
				source              TEXT NOT NULL DEFAULT '',
				assets_json         TEXT NOT NULL DEFAULT '[]',
				weights_json        TEXT NOT NULL DEFAULT '[]',
				expected_return     REAL NOT NULL,
				expected_volatility REAL NOT NULL,
				sharpe              REAL NOT NULL,
				num_samples         INTEGER NOT NULL,
				seed                TEXT NOT NULL,
				workers             INTEGER NOT NULL,
				duration_ms         INTEGER NOT NULL DEFAULT 0
			);
			CREATE INDEX IF NOT EXISTS idx_runs_created ON optimization_runs(created_at);

			INSERT OR IGNORE INTO schema_version (version) VALUES (2);
		`)
		if err != nil {
			return fmt.Errorf("migration v2: %w", err)
		}
		logger.Info("DB", "Applied migration v2 (optimization runs)")
	}

	return nil
}

// SqlDB returns the underlying *sql.DB.
func (d *DB) SqlDB() *sql.DB {
	return d.sql
}
