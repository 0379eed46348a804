// Package database persists finalized scan results to PostgreSQL for the
// audit trail. The full report is stored as JSONB next to relational
// findings rows, so both "show me scan X" and "every critical finding this
// quarter" stay cheap.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/apiward/apiward/internal/config"
	"github.com/apiward/apiward/internal/core"
	"github.com/apiward/apiward/internal/logger"
	"github.com/apiward/apiward/pkg/types"
)

// ErrNotFound is returned when a scan ID has no stored result.
var ErrNotFound = errors.New("scan result not found")

type sqlStore struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewStore connects to the configured database, applies pending migrations,
// and returns the store.
func NewStore(cfg config.DatabaseConfig, log *logger.Logger) (core.ResultStore, error) {
	log = log.WithComponent("database")

	ctx, span := log.StartOperation(context.Background(), "database.new_store",
		"driver", cfg.Driver,
		"dsn", maskDSN(cfg.DSN),
	)

	start := time.Now()
	db, err := sqlx.Connect(cfg.Driver, cfg.DSN)
	if err != nil {
		err = fmt.Errorf("failed to connect to database: %w", err)
		log.FinishOperation(ctx, span, "database.new_store", start, err)
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := NewMigrationRunner(db, log).RunMigrations(ctx); err != nil {
		db.Close()
		err = fmt.Errorf("failed to run migrations: %w", err)
		log.FinishOperation(ctx, span, "database.new_store", start, err)
		return nil, err
	}

	log.FinishOperation(ctx, span, "database.new_store", start, nil,
		"max_connections", cfg.MaxConnections,
	)

	return &sqlStore{db: db, log: log}, nil
}

// maskDSN hides credentials in connection strings before they reach logs.
func maskDSN(dsn string) string {
	if len(dsn) > 10 {
		return dsn[:5] + "***" + dsn[len(dsn)-5:]
	}
	return "***"
}

// SaveResult upserts the scan row and replaces its findings in one
// transaction. Saving the same scan ID twice (a resumed scan saved again)
// overwrites the previous report.
func (s *sqlStore) SaveResult(ctx context.Context, result *types.ScanResult) error {
	start := time.Now()
	ctx, span := s.log.StartOperation(ctx, "database.save_result",
		"scan_id", result.ScanID,
		"findings", len(result.Findings),
	)
	var err error
	defer func() {
		s.log.FinishOperation(ctx, span, "database.save_result", start, err)
	}()

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal scan result: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	scanQuery := `
		INSERT INTO scans (
			scan_id, base_url, base_domain, scan_time, completion_time,
			duration_seconds, endpoints_scanned, total_findings,
			ai_act_status, uavg_status, result
		) VALUES (
			:scan_id, :base_url, :base_domain, :scan_time, :completion_time,
			:duration_seconds, :endpoints_scanned, :total_findings,
			:ai_act_status, :uavg_status, :result
		)
		ON CONFLICT (scan_id) DO UPDATE SET
			completion_time = EXCLUDED.completion_time,
			duration_seconds = EXCLUDED.duration_seconds,
			endpoints_scanned = EXCLUDED.endpoints_scanned,
			total_findings = EXCLUDED.total_findings,
			ai_act_status = EXCLUDED.ai_act_status,
			uavg_status = EXCLUDED.uavg_status,
			result = EXCLUDED.result
	`

	_, err = tx.NamedExecContext(ctx, scanQuery, map[string]interface{}{
		"scan_id":           result.ScanID,
		"base_url":          result.BaseURL,
		"base_domain":       result.BaseDomain,
		"scan_time":         result.ScanTime,
		"completion_time":   result.CompletionTime,
		"duration_seconds":  result.DurationSeconds,
		"endpoints_scanned": result.EndpointsScanned,
		"total_findings":    result.Stats.TotalFindings,
		"ai_act_status":     string(result.AIActStatus),
		"uavg_status":       string(result.NetherlandsUAVGStatus),
		"result":            string(resultJSON),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert scan %s: %w", result.ScanID, err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM findings WHERE scan_id = $1`, result.ScanID); err != nil {
		return fmt.Errorf("failed to clear previous findings: %w", err)
	}

	findingQuery := `
		INSERT INTO findings (
			id, scan_id, type, severity, method, url, description,
			evidence, remediation, pii_type, gdpr_category, metadata, created_at
		) VALUES (
			:id, :scan_id, :type, :severity, :method, :url, :description,
			:evidence, :remediation, :pii_type, :gdpr_category, :metadata, :created_at
		)
	`

	for _, finding := range result.Findings {
		metaJSON, merr := json.Marshal(finding.Metadata)
		if merr != nil {
			err = fmt.Errorf("failed to marshal metadata for finding %s: %w", finding.ID, merr)
			return err
		}

		_, err = tx.NamedExecContext(ctx, findingQuery, map[string]interface{}{
			"id":            finding.ID,
			"scan_id":       finding.ScanID,
			"type":          string(finding.Type),
			"severity":      string(finding.Severity),
			"method":        finding.Method,
			"url":           finding.URL,
			"description":   finding.Description,
			"evidence":      finding.Evidence,
			"remediation":   finding.Remediation,
			"pii_type":      finding.PIIType,
			"gdpr_category": finding.GDPRCategory,
			"metadata":      string(metaJSON),
			"created_at":    finding.Timestamp,
		})
		if err != nil {
			return fmt.Errorf("failed to insert finding %s: %w", finding.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit scan result: %w", err)
	}

	s.log.LogDuration(ctx, "database.save_result", start,
		"scan_id", result.ScanID,
		"findings", len(result.Findings),
	)
	return nil
}

func (s *sqlStore) GetResult(ctx context.Context, scanID string) (*types.ScanResult, error) {
	var resultJSON []byte
	err := s.db.GetContext(ctx, &resultJSON, `SELECT result FROM scans WHERE scan_id = $1`, scanID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var result types.ScanResult
	if err := json.Unmarshal(resultJSON, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored result %s: %w", scanID, err)
	}
	return &result, nil
}

func (s *sqlStore) ListScans(ctx context.Context, limit int) ([]core.ScanSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT scan_id, base_url, scan_time, duration_seconds,
			   endpoints_scanned, total_findings, ai_act_status, uavg_status
		FROM scans
		ORDER BY scan_time DESC
		LIMIT $1
	`

	summaries := []core.ScanSummary{}
	if err := s.db.SelectContext(ctx, &summaries, query, limit); err != nil {
		return nil, err
	}
	return summaries, nil
}

func (s *sqlStore) FindingsBySeverity(ctx context.Context, severity types.Severity) ([]types.Finding, error) {
	query := `
		SELECT id, scan_id, type, severity, method, url, description,
			   evidence, remediation, pii_type, gdpr_category, metadata, created_at
		FROM findings
		WHERE severity = $1
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, string(severity))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	findings := []types.Finding{}
	for rows.Next() {
		var f types.Finding
		var metaJSON []byte

		if err := rows.Scan(
			&f.ID, &f.ScanID, &f.Type, &f.Severity, &f.Method, &f.URL,
			&f.Description, &f.Evidence, &f.Remediation, &f.PIIType,
			&f.GDPRCategory, &metaJSON, &f.Timestamp,
		); err != nil {
			return nil, err
		}

		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &f.Metadata); err != nil {
				s.log.Warnw("Skipping malformed finding metadata",
					"finding_id", f.ID,
					"error", err.Error(),
				)
			}
		}

		findings = append(findings, f)
	}
	return findings, rows.Err()
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
