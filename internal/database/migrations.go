package database

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/apiward/apiward/internal/logger"
)

// Migration is a single versioned schema change.
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// MigrationRunner applies pending migrations inside transactions and
// records them in schema_migrations.
type MigrationRunner struct {
	db  *sqlx.DB
	log *logger.Logger
}

func NewMigrationRunner(db *sqlx.DB, log *logger.Logger) *MigrationRunner {
	return &MigrationRunner{db: db, log: log}
}

// AllMigrations returns every known migration in version order.
func AllMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create scans and findings tables",
			Up: `
				CREATE TABLE IF NOT EXISTS scans (
					scan_id TEXT PRIMARY KEY,
					base_url TEXT NOT NULL,
					base_domain TEXT NOT NULL,
					scan_time TIMESTAMPTZ NOT NULL,
					completion_time TIMESTAMPTZ,
					duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
					endpoints_scanned INTEGER NOT NULL DEFAULT 0,
					total_findings INTEGER NOT NULL DEFAULT 0,
					ai_act_status TEXT NOT NULL DEFAULT 'none',
					uavg_status TEXT NOT NULL DEFAULT 'compliant',
					result JSONB NOT NULL
				);

				CREATE TABLE IF NOT EXISTS findings (
					id TEXT PRIMARY KEY,
					scan_id TEXT NOT NULL REFERENCES scans(scan_id) ON DELETE CASCADE,
					type TEXT NOT NULL,
					severity TEXT NOT NULL,
					method TEXT,
					url TEXT NOT NULL,
					description TEXT,
					evidence TEXT,
					remediation TEXT,
					pii_type TEXT,
					gdpr_category TEXT,
					metadata JSONB,
					created_at TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_findings_scan_id ON findings(scan_id);
				CREATE INDEX IF NOT EXISTS idx_findings_severity ON findings(severity);
				CREATE INDEX IF NOT EXISTS idx_scans_base_domain ON scans(base_domain);
				CREATE INDEX IF NOT EXISTS idx_scans_scan_time ON scans(scan_time);
			`,
			Down: `
				DROP TABLE IF EXISTS findings CASCADE;
				DROP TABLE IF EXISTS scans CASCADE;
			`,
		},
		{
			Version:     2,
			Description: "Add compliance reporting indexes",
			Up: `
				CREATE INDEX IF NOT EXISTS idx_scans_uavg_status ON scans(uavg_status);
				CREATE INDEX IF NOT EXISTS idx_scans_ai_act_status ON scans(ai_act_status);
				CREATE INDEX IF NOT EXISTS idx_findings_severity_created ON findings(severity, created_at DESC);
				CREATE INDEX IF NOT EXISTS idx_findings_metadata_gin ON findings USING GIN (metadata);
			`,
			Down: `
				DROP INDEX IF EXISTS idx_scans_uavg_status;
				DROP INDEX IF EXISTS idx_scans_ai_act_status;
				DROP INDEX IF EXISTS idx_findings_severity_created;
				DROP INDEX IF EXISTS idx_findings_metadata_gin;
			`,
		},
	}
}

func (mr *MigrationRunner) ensureMigrationsTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`
	if _, err := mr.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	return nil
}

func (mr *MigrationRunner) appliedMigrations(ctx context.Context) (map[int]bool, error) {
	applied := make(map[int]bool)

	rows, err := mr.db.QueryContext(ctx, `SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// RunMigrations applies every pending migration in version order.
func (mr *MigrationRunner) RunMigrations(ctx context.Context) error {
	if err := mr.ensureMigrationsTable(ctx); err != nil {
		return err
	}

	applied, err := mr.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	all := AllMigrations()
	sort.Slice(all, func(i, j int) bool { return all[i].Version < all[j].Version })

	pending := 0
	for _, m := range all {
		if !applied[m.Version] {
			pending++
		}
	}
	if pending == 0 {
		mr.log.Debugw("Database schema is up to date",
			"latest_version", all[len(all)-1].Version,
		)
		return nil
	}

	mr.log.Infow("Applying pending migrations", "pending", pending)

	for _, m := range all {
		if applied[m.Version] {
			continue
		}
		if err := mr.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", m.Version, err)
		}
	}

	mr.log.Infow("Migrations applied", "count", pending)
	return nil
}

func (mr *MigrationRunner) applyMigration(ctx context.Context, m Migration) error {
	mr.log.Infow("Applying migration",
		"version", m.Version,
		"description", m.Description,
	)

	tx, err := mr.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.Up); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	record := `INSERT INTO schema_migrations (version, description, applied_at) VALUES ($1, $2, $3)`
	if _, err := tx.ExecContext(ctx, record, m.Version, m.Description, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

// RollbackMigration reverts a single applied migration.
func (mr *MigrationRunner) RollbackMigration(ctx context.Context, version int) error {
	var target *Migration
	for _, m := range AllMigrations() {
		if m.Version == version {
			m := m
			target = &m
			break
		}
	}
	if target == nil {
		return fmt.Errorf("migration version %d not found", version)
	}
	if target.Down == "" {
		return fmt.Errorf("migration version %d has no rollback SQL", version)
	}

	mr.log.Warnw("Rolling back migration", "version", version)

	tx, err := mr.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, target.Down); err != nil {
		return fmt.Errorf("failed to execute rollback SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, version); err != nil {
		return fmt.Errorf("failed to remove migration record: %w", err)
	}

	return tx.Commit()
}
