package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// migrationLockKey serializes concurrent migrators via pg_advisory_xact_lock.
const migrationLockKey = 7_341_002

type migration struct {
	Version    int
	Name       string
	Statements []string
}

// migrations are applied in order and never rewritten once released. Schema
// changes are appended as new versions that only add to existing tables.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create_channels_table",
		Statements: []string{`
		CREATE TABLE IF NOT EXISTS channels (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`},
	},
	{
		Version: 2,
		Name:    "create_alerts_table",
		Statements: []string{`
		CREATE TABLE IF NOT EXISTS alerts (
			id              TEXT PRIMARY KEY,
			channel_id      TEXT NOT NULL REFERENCES channels (id) ON DELETE CASCADE,
			channel_name    TEXT NOT NULL,
			title           TEXT NOT NULL,
			body            TEXT NOT NULL DEFAULT '',
			severity        TEXT NOT NULL DEFAULT 'INFO',
			timestamp_ms    BIGINT NOT NULL,
			is_read         BOOLEAN NOT NULL DEFAULT FALSE,
			acknowledged_at BIGINT
		)`,
			`CREATE INDEX IF NOT EXISTS idx_alerts_channel_id ON alerts (channel_id)`,
		},
	},
	{
		Version: 3,
		Name:    "create_app_user_table",
		Statements: []string{`
		CREATE TABLE IF NOT EXISTS app_user (
			singleton             BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
			id                    TEXT NOT NULL,
			email                 TEXT NOT NULL DEFAULT '',
			display_name          TEXT NOT NULL DEFAULT '',
			signed_in_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			beep_interval_seconds INTEGER NOT NULL DEFAULT 60,
			vibration_enabled     BOOLEAN NOT NULL DEFAULT TRUE
		)`},
	},
	{
		Version: 4,
		Name:    "add_alert_metadata_and_channel_description",
		Statements: []string{
			`ALTER TABLE alerts ADD COLUMN IF NOT EXISTS metadata TEXT`,
			`ALTER TABLE channels ADD COLUMN IF NOT EXISTS description TEXT`,
		},
	},
	{
		Version: 5,
		Name:    "add_unread_index",
		Statements: []string{
			`CREATE INDEX IF NOT EXISTS idx_alerts_unread ON alerts (channel_id) WHERE NOT is_read`,
			`CREATE INDEX IF NOT EXISTS idx_alerts_timestamp ON alerts (timestamp_ms)`,
		},
	},
}

// Migrate applies every migration newer than the recorded schema version.
// Existing rows are preserved.
func (d *DB) Migrate(ctx context.Context) error {
	_, err := d.Pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		if err := d.apply(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) apply(ctx context.Context, m migration) error {
	err := pgx.BeginFunc(ctx, d.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockKey); err != nil {
			return err
		}

		var applied bool
		err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, m.Version).Scan(&applied)
		if err != nil || applied {
			return err
		}

		for _, stmt := range m.Statements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		_, err = tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to apply migration %d_%s: %w", m.Version, m.Name, err)
	}
	return nil
}

// SchemaVersion returns the highest applied migration version.
func (d *DB) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := d.Pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}
