// Package sqlbase holds the SQL plumbing shared by the database-backed stores.
package sqlbase

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// Migration is one schema step. Versions must be unique and positive.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrator applies pending migrations in version order, one transaction each.
type Migrator struct {
	db         *sql.DB
	logger     *slog.Logger
	migrations []Migration
}

func NewMigrator(logger *slog.Logger, db *sql.DB, migrations []Migration) *Migrator {
	sorted := slices.Clone(migrations)
	slices.SortFunc(sorted, func(a, b Migration) int {
		return a.Version - b.Version
	})

	return &Migrator{
		db:         db,
		logger:     logger,
		migrations: sorted,
	}
}

// LatestVersion is the version the schema reaches once every migration ran.
func (m *Migrator) LatestVersion() int {
	if len(m.migrations) == 0 {
		return 0
	}

	return m.migrations[len(m.migrations)-1].Version
}

// Pending lists the migrations above current, in the order they would run.
func (m *Migrator) Pending(current int) []Migration {
	idx := slices.IndexFunc(m.migrations, func(migration Migration) bool {
		return migration.Version > current
	})
	if idx < 0 {
		return nil
	}

	return m.migrations[idx:]
}

// Migrate brings the schema up to LatestVersion.
func (m *Migrator) Migrate(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name VARCHAR(255) NOT NULL DEFAULT '',
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	var current int

	err = m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	pending := m.Pending(current)

	m.logger.InfoContext(ctx, "Checking schema", "version", current, "pending", len(pending))

	for _, migration := range pending {
		err := RunInTx(ctx, m.db, nil, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
				return err
			}

			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)",
				migration.Version, strings.TrimSpace(migration.Name))

			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", migration.Version, migration.Name, err)
		}

		m.logger.InfoContext(ctx, "Applied migration", "version", migration.Version, "name", migration.Name)
	}

	return nil
}
