package scanner

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apiward/apiward/internal/config"
	"github.com/apiward/apiward/pkg/detect"
	"github.com/apiward/apiward/pkg/ratecontrol"
	"github.com/apiward/apiward/pkg/types"
)

func testRateController() *ratecontrol.Controller {
	return ratecontrol.New(config.RateLimitConfig{
		RequestsPerSecond: 1000,
		BurstSize:         1000,
		BaseDelay:         time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		MaxRetries:        5,
	})
}

func newTestProber(t *testing.T, client *http.Client, opts types.ScanOptions) *Prober {
	t.Helper()
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	return NewProber(client, testRateController(), NewDetectors(), testLogger(t), opts, "apiward-test/1.0")
}

func countFindings(findings []types.Finding, ft types.FindingType) int {
	n := 0
	for _, f := range findings {
		if f.Type == ft {
			n++
		}
	}
	return n
}

func TestProbeRecordsMethodResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Server", "nginx/1.21")
		fmt.Fprint(w, `{"status":"ok"}`)
	}))
	defer srv.Close()

	prober := newTestProber(t, srv.Client(), types.ScanOptions{})
	res := prober.Probe(context.Background(), srv.URL+"/status")

	assert.Equal(t, methodOrder, res.Record.Methods)
	require.Contains(t, res.Record.Responses, http.MethodGet)
	get := res.Record.Responses[http.MethodGet]
	assert.Equal(t, http.StatusOK, get.StatusCode)
	assert.Equal(t, "application/json", get.ContentType)
	assert.Positive(t, get.ContentLength)

	// The header audit runs once per endpoint, not once per method.
	assert.Equal(t, len(requiredSecurityHeaders), countFindings(res.Findings, types.FindingSecurityHeader))
	assert.Equal(t, 1, countFindings(res.Findings, types.FindingInfoDisclosure))

	assert.False(t, res.Record.AuthRequired)
	assert.Empty(t, res.Vulnerabilities)
	assert.Empty(t, res.PIIExposures)
	assert.Empty(t, res.AIFindings)
}

func TestProbeAllSecurityHeadersPresent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Strict-Transport-Security", "max-age=31536000")
		h.Set("Content-Security-Policy", "default-src 'none'")
		fmt.Fprint(w, `{"status":"ok"}`)
	}))
	defer srv.Close()

	prober := newTestProber(t, srv.Client(), types.ScanOptions{})
	res := prober.Probe(context.Background(), srv.URL+"/status")

	assert.Zero(t, countFindings(res.Findings, types.FindingSecurityHeader))
	assert.Zero(t, countFindings(res.Findings, types.FindingInfoDisclosure))
}

func TestProbeAuthRequired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	prober := newTestProber(t, srv.Client(), types.ScanOptions{})
	res := prober.Probe(context.Background(), srv.URL+"/private")

	assert.True(t, res.Record.AuthRequired)
	// One issue for the whole endpoint, not one per method.
	require.Len(t, res.AuthIssues, 1)
	assert.Equal(t, "authentication_required", res.AuthIssues[0].Type)
	assert.Equal(t, types.SeverityInfo, res.AuthIssues[0].Severity)
	assert.Equal(t, 1, countFindings(res.Findings, types.FindingAuthIssue))
}

func TestProbeForbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	prober := newTestProber(t, srv.Client(), types.ScanOptions{})
	res := prober.Probe(context.Background(), srv.URL+"/internal")

	assert.False(t, res.Record.AuthRequired)
	require.Len(t, res.AuthIssues, 1)
	assert.Equal(t, "access_forbidden", res.AuthIssues[0].Type)
	assert.Equal(t, types.SeverityMedium, res.AuthIssues[0].Severity)
}

func TestProbeDetectsPIIAndDutchData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.RawQuery == "" {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"email":"jan@example.nl","bsn":"111222333","rights":"recht op inzage"}`)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	prober := newTestProber(t, srv.Client(), types.ScanOptions{Region: "Netherlands"})
	res := prober.Probe(context.Background(), srv.URL+"/customers")

	piiTypes := make(map[string]bool)
	for _, e := range res.PIIExposures {
		piiTypes[e.PIIType] = true
	}
	assert.True(t, piiTypes["email"], "email exposure expected")
	assert.True(t, piiTypes["bsn"], "confirmed BSN exposure expected")
	assert.Equal(t, len(res.PIIExposures), countFindings(res.Findings, types.FindingPIIExposure))

	assert.Equal(t, 1, countFindings(res.Findings, types.FindingNLUAVGCritical))
	assert.Equal(t, 1, countFindings(res.Findings, types.FindingNLUAVGRights))

	// Samples leave the prober redacted.
	for _, e := range res.PIIExposures {
		assert.Contains(t, e.Sample, "*")
	}
}

func TestProbeDutchRulesGatedByRegion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.RawQuery == "" {
			fmt.Fprint(w, `{"bsn":"111222333"}`)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	prober := newTestProber(t, srv.Client(), types.ScanOptions{Region: "Global"})
	res := prober.Probe(context.Background(), srv.URL+"/customers")

	// The generic PII table still reports the BSN; the UAVG findings are
	// region-gated.
	assert.Positive(t, countFindings(res.Findings, types.FindingPIIExposure))
	assert.Zero(t, countFindings(res.Findings, types.FindingNLUAVGCritical))
}

func TestProbeConfirmsSQLInjectionIndicator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Query().Get("input"), "'") {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, "Database failure: You have an error in your SQL syntax near ''1'='1'")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	prober := newTestProber(t, srv.Client(), types.ScanOptions{})
	res := prober.Probe(context.Background(), srv.URL+"/search")

	require.Len(t, res.Vulnerabilities, 1)
	vuln := res.Vulnerabilities[0]
	assert.Equal(t, string(detect.VulnSQLInjection), vuln.Type)
	assert.Equal(t, http.MethodGet, vuln.Method)
	assert.Equal(t, types.SeverityCritical, vuln.Severity)
	assert.NotEmpty(t, vuln.Payload)
	assert.NotEmpty(t, vuln.Evidence)

	assert.Equal(t, 1, countFindings(res.Findings, types.FindingVulnerability))
}

func TestProbeSkipsVulnerabilityTestsOn404(t *testing.T) {
	var payloadProbes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "" {
			payloadProbes.Add(1)
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	prober := newTestProber(t, srv.Client(), types.ScanOptions{})
	res := prober.Probe(context.Background(), srv.URL+"/missing")

	assert.Empty(t, res.Vulnerabilities)
	assert.Zero(t, payloadProbes.Load())
}

func TestProbeClassifiesAIPaths(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	prober := newTestProber(t, srv.Client(), types.ScanOptions{})
	res := prober.Probe(context.Background(), srv.URL+"/api/v1/credit-score/1")

	require.Len(t, res.AIFindings, 1)
	f := res.AIFindings[0]
	assert.Equal(t, types.FindingAIActCompliance, f.Type)
	assert.Equal(t, types.SeverityHigh, f.Severity)
	assert.Equal(t, string(detect.AIHighRisk), f.Metadata["classification"])
	assert.NotEmpty(t, f.Remediation)

	// AI Act findings stay out of the main findings list but appear on the
	// endpoint record.
	assert.Zero(t, countFindings(res.Findings, types.FindingAIActCompliance))
	assert.Equal(t, 1, countFindings(res.Record.Findings, types.FindingAIActCompliance))
}

func TestProbeRecordsTimeoutFindings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := &http.Client{Timeout: 30 * time.Millisecond}
	prober := newTestProber(t, client, types.ScanOptions{Timeout: 30 * time.Millisecond})
	res := prober.Probe(context.Background(), srv.URL+"/slow")

	assert.Empty(t, res.Record.Methods)
	assert.Equal(t, len(methodOrder), countFindings(res.Findings, types.FindingPerformance))
	for _, f := range res.Findings {
		assert.Equal(t, types.SeverityMedium, f.Severity)
	}
}

func TestShouldTestVulnerabilities(t *testing.T) {
	prober := &Prober{}

	assert.True(t, prober.shouldTestVulnerabilities(http.MethodGet, http.StatusOK))
	assert.True(t, prober.shouldTestVulnerabilities(http.MethodPost, http.StatusUnauthorized))
	assert.False(t, prober.shouldTestVulnerabilities(http.MethodGet, http.StatusNotFound))
	assert.False(t, prober.shouldTestVulnerabilities(http.MethodGet, http.StatusMethodNotAllowed))
	assert.False(t, prober.shouldTestVulnerabilities(http.MethodDelete, http.StatusOK))
	assert.False(t, prober.shouldTestVulnerabilities(http.MethodOptions, http.StatusOK))
}
