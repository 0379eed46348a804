package core

import (
	"context"
	"time"

	"github.com/apiward/apiward/pkg/types"
)

// ResultStore persists finalized scan results for the audit trail. The
// scanner itself never requires a store; cmd wires one in when a DSN is
// configured.
type ResultStore interface {
	SaveResult(ctx context.Context, result *types.ScanResult) error
	GetResult(ctx context.Context, scanID string) (*types.ScanResult, error)
	ListScans(ctx context.Context, limit int) ([]ScanSummary, error)
	FindingsBySeverity(ctx context.Context, severity types.Severity) ([]types.Finding, error)
	Close() error
}

// ScanSummary is one row of the scan history listing.
type ScanSummary struct {
	ScanID        string    `json:"scan_id" db:"scan_id"`
	BaseURL       string    `json:"base_url" db:"base_url"`
	ScanTime      time.Time `json:"scan_time" db:"scan_time"`
	Duration      float64   `json:"duration_seconds" db:"duration_seconds"`
	Endpoints     int       `json:"endpoints_scanned" db:"endpoints_scanned"`
	TotalFindings int       `json:"total_findings" db:"total_findings"`
	AIActStatus   string    `json:"ai_act_status" db:"ai_act_status"`
	UAVGStatus    string    `json:"uavg_status" db:"uavg_status"`
}

// Telemetry records scan-level metrics. A no-op implementation stands in
// when telemetry is disabled.
type Telemetry interface {
	RecordScan(duration float64, success bool)
	RecordFinding(severity types.Severity)
	RecordWorkerDelta(delta int64)
	Close() error
}
