package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/noah-isme/sma-substitute-api/pkg/config"
)

// DSN renders the lib/pq connection string for cfg.
func DSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)
}

// NewPostgres opens and pings the record store.
func NewPostgres(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	return db, nil
}

// schema holds the tables behind the record store, the roster and the notice log.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS timetable_assignment_rows (
	position      INTEGER PRIMARY KEY,
	class_id      TEXT NOT NULL,
	subject       TEXT NOT NULL,
	teacher_field TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS timetable_slot_rows (
	position      INTEGER PRIMARY KEY,
	class_id      TEXT NOT NULL,
	subject       TEXT NOT NULL,
	weekday_token TEXT NOT NULL,
	period_token  TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS teacher_roster (
	name       TEXT PRIMARY KEY,
	sort_order INTEGER NOT NULL DEFAULT 0
)`,
	`CREATE TABLE IF NOT EXISTS substitution_notices (
	id               UUID PRIMARY KEY,
	snapshot_version BIGINT NOT NULL,
	selection        JSONB NOT NULL,
	format           TEXT NOT NULL,
	filename         TEXT NOT NULL,
	storage_path     TEXT NOT NULL,
	reference_date   DATE NOT NULL,
	created_by       TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE INDEX IF NOT EXISTS idx_substitution_notices_created_at ON substitution_notices (created_at DESC)`,
}

// EnsureSchema creates missing tables. Existing tables are left untouched.
func EnsureSchema(ctx context.Context, db sqlx.ExecerContext) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
