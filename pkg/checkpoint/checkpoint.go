// Package checkpoint persists scan progress so interrupted scans resume
// where they stopped instead of re-probing completed endpoints.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/apiward/apiward/pkg/types"
)

const keyPrefix = "scan-checkpoint"

// DefaultScope isolates checkpoints when no caller scope is set.
const DefaultScope = "default"

// State is the serialized progress of one scan: which endpoints exist,
// which finished, and everything found so far. A resumed scan keeps the
// accumulated results and probes only the remainder.
type State struct {
	ScanID          string                 `json:"scan_id"`
	BaseURL         string                 `json:"base_url"`
	SavedAt         time.Time              `json:"saved_at"`
	Endpoints       []string               `json:"endpoints"`
	Completed       []string               `json:"completed"`
	EndpointsData   []types.EndpointRecord `json:"endpoints_data"`
	Findings        []types.Finding        `json:"findings"`
	Vulnerabilities []types.Vulnerability  `json:"vulnerabilities"`
	PIIExposures    []types.PIIExposure    `json:"pii_exposures"`
	AuthIssues      []types.AuthIssue      `json:"auth_issues"`
	AIFindings      []types.Finding        `json:"ai_findings"`
}

// Manager reads and writes scan checkpoints for one caller scope.
type Manager struct {
	store Store
	scope string
	ttl   time.Duration
}

// NewManager wraps a store. An empty scope falls back to DefaultScope so
// keys from different tenants never collide with unscoped ones.
func NewManager(store Store, scope string, ttl time.Duration) *Manager {
	if scope == "" {
		scope = DefaultScope
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{store: store, scope: scope, ttl: ttl}
}

// Key returns the storage key for a scan ID within this manager's scope.
func (m *Manager) Key(scanID string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, m.scope, scanID)
}

// Save writes the state under its scan ID with the configured TTL.
func (m *Manager) Save(ctx context.Context, state *State) error {
	state.SavedAt = time.Now().UTC()

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	return m.store.Set(ctx, m.Key(state.ScanID), data, m.ttl)
}

// Load reads the state for a scan ID. A missing key returns ErrNotFound;
// the caller starts fresh. Corrupt state is an error, not a silent reset.
func (m *Manager) Load(ctx context.Context, scanID string) (*State, error) {
	data, err := m.store.Get(ctx, m.Key(scanID))
	if err != nil {
		return nil, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint %s: %w", scanID, err)
	}
	return &state, nil
}

// Delete removes the checkpoint for a scan ID.
func (m *Manager) Delete(ctx context.Context, scanID string) error {
	return m.store.Delete(ctx, m.Key(scanID))
}

// List returns the scan IDs with stored checkpoints in this scope.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	prefix := fmt.Sprintf("%s:%s:", keyPrefix, m.scope)
	keys, err := m.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(key, prefix))
	}
	return ids, nil
}

// Pending returns the endpoints not yet completed, preserving the order of
// the full list.
func Pending(all, completed []string) []string {
	done := make(map[string]bool, len(completed))
	for _, url := range completed {
		done[url] = true
	}

	pending := make([]string, 0, len(all))
	for _, url := range all {
		if !done[url] {
			pending = append(pending, url)
		}
	}
	return pending
}
