// Package db owns the embedded SQLite store: connection setup,
// forward-only schema migrations, and the one-shot import of the
// legacy JSON storage tree.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/opencode-ai/core/internal/logging"
)

// FileName is the database file inside the data directory.
const FileName = "opencode.db"

// Connect opens the database under dataDir, applies pragmas and runs
// pending migrations. A failed migration leaves the database untouched
// and is fatal to startup.
func Connect(ctx context.Context, dataDir string) (*sql.DB, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory not set")
	}

	db, err := open(filepath.Join(dataDir, FileName))
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	goose.SetBaseFS(migrationsFS)
	goose.SetTableName("_migrations")
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	// SQLite allows exactly one writer; funnel all connections through
	// it so write transactions queue instead of returning SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	logging.Debug().Str("dir", dataDir).Msg("database ready")
	return db, nil
}

func open(dbPath string) (*sql.DB, error) {
	params := url.Values{}
	params.Add("_pragma", "foreign_keys(on)")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "synchronous(NORMAL)")
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "cache_size(-64000)")

	dsn := fmt.Sprintf("file:%s?%s", dbPath, params.Encode())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}
