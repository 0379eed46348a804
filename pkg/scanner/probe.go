package scanner

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/apiward/apiward/internal/httpclient"
	"github.com/apiward/apiward/internal/logger"
	"github.com/apiward/apiward/pkg/detect"
	"github.com/apiward/apiward/pkg/ratecontrol"
	"github.com/apiward/apiward/pkg/types"
)

// methodOrder is the fixed probe sequence for every endpoint. Order matters
// for reproducible scans; it never varies between runs.
var methodOrder = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodDelete,
	http.MethodPatch,
	http.MethodOptions,
}

// probeBody is the benign JSON document sent with body-carrying methods.
const probeBody = `{"test":"data","id":1}`

// maxProbeBody caps how much of a response body is read for inspection.
const maxProbeBody = 2 << 20

var requiredSecurityHeaders = []string{
	"X-Frame-Options",
	"X-Content-Type-Options",
	"X-XSS-Protection",
	"Strict-Transport-Security",
	"Content-Security-Policy",
}

var disclosureHeaders = []string{"Server", "X-Powered-By"}

// Detectors bundles the shared stateless rule engines. One bundle is built
// per scanner and shared by every worker.
type Detectors struct {
	PII  *detect.PIIDetector
	Vuln *detect.VulnDetector
	AI   *detect.AIActDetector
	NL   *detect.NLDetector
}

func NewDetectors() *Detectors {
	return &Detectors{
		PII:  detect.NewPIIDetector(),
		Vuln: detect.NewVulnDetector(),
		AI:   detect.NewAIActDetector(),
		NL:   detect.NewNLDetector(),
	}
}

// ProbeResult is everything one worker observed for one endpoint. The
// orchestrator merges it into the scan result under a single mutex; until
// then the owning worker has exclusive access.
type ProbeResult struct {
	Record          types.EndpointRecord
	Findings        []types.Finding
	Vulnerabilities []types.Vulnerability
	PIIExposures    []types.PIIExposure
	AuthIssues      []types.AuthIssue
	AIFindings      []types.Finding
}

func (r *ProbeResult) addFinding(f types.Finding) {
	r.Findings = append(r.Findings, f)
	r.Record.Findings = append(r.Record.Findings, f)
}

// AI Act findings are reported through their own collection, so they stay
// out of the main findings list and its stats.
func (r *ProbeResult) addAIFinding(f types.Finding) {
	r.AIFindings = append(r.AIFindings, f)
	r.Record.Findings = append(r.Record.Findings, f)
}

// Prober drives the per-endpoint probe sequence. Each worker owns one
// Prober with its own HTTP client so transports are never shared.
type Prober struct {
	client    *http.Client
	rate      *ratecontrol.Controller
	detectors *Detectors
	log       *logger.Logger
	opts      types.ScanOptions
	userAgent string
}

func NewProber(client *http.Client, rate *ratecontrol.Controller, detectors *Detectors, log *logger.Logger, opts types.ScanOptions, userAgent string) *Prober {
	return &Prober{
		client:    client,
		rate:      rate,
		detectors: detectors,
		log:       log.WithComponent("probe"),
		opts:      opts,
		userAgent: userAgent,
	}
}

// Probe runs the fixed method sequence against one endpoint and classifies
// its URL path against the AI rule table.
func (p *Prober) Probe(ctx context.Context, endpoint string) *ProbeResult {
	res := &ProbeResult{
		Record: types.EndpointRecord{
			URL:       endpoint,
			Methods:   []string{},
			Responses: map[string]types.MethodResponse{},
			Findings:  []types.Finding{},
		},
	}

	for _, m := range p.detectors.AI.ClassifyPath(endpoint) {
		f := newFinding(types.FindingAIActCompliance, m.Severity, "", endpoint,
			fmt.Sprintf("Endpoint path indicates %s (matched %q)", string(m.Classification), m.Matched))
		f.Evidence = m.Matched
		f.Remediation = m.Obligation
		f.Metadata = map[string]string{"classification": string(m.Classification)}
		res.addAIFinding(f)
	}

	for _, method := range methodOrder {
		if err := p.rate.Wait(ctx); err != nil {
			return res
		}
		p.probeMethod(ctx, method, endpoint, res)
	}

	return res
}

func (p *Prober) probeMethod(ctx context.Context, method, endpoint string, res *ProbeResult) {
	var reqBody io.Reader
	hasBody := methodHasBody(method)
	if hasBody {
		reqBody = strings.NewReader(probeBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		p.log.WithContext(ctx).Warnw("Failed to build probe request",
			"method", method,
			"url", endpoint,
			"error", err.Error(),
		)
		return
	}
	p.setHeaders(req, hasBody)

	start := time.Now()
	resp, err := p.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		p.recordTransportError(ctx, method, endpoint, err, res)
		return
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxProbeBody))
	httpclient.CloseBody(resp)
	if readErr != nil {
		p.log.WithContext(ctx).Debugw("Response body truncated",
			"method", method,
			"url", endpoint,
			"error", readErr.Error(),
		)
	}

	p.rate.Observe(resp.StatusCode)
	p.log.LogHTTPRequest(ctx, method, endpoint, resp.StatusCode, latency)

	contentLength := resp.ContentLength
	if contentLength < 0 {
		contentLength = int64(len(body))
	}

	res.Record.Methods = append(res.Record.Methods, method)
	res.Record.Responses[method] = types.MethodResponse{
		StatusCode:    resp.StatusCode,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: contentLength,
		LatencyMS:     latency.Milliseconds(),
	}

	// Header audit runs once per endpoint, on the first response.
	if len(res.Record.Responses) == 1 {
		p.checkHeaders(method, endpoint, resp.Header, res)
	}

	p.checkAuth(method, endpoint, resp.StatusCode, res)
	p.inspectBody(method, endpoint, string(body), res)

	if p.shouldTestVulnerabilities(method, resp.StatusCode) {
		p.testVulnerabilities(ctx, method, endpoint, res)
	}
}

func (p *Prober) setHeaders(req *http.Request, hasBody bool) {
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/json, text/html, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,nl;q=0.8")
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.opts.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.opts.AuthToken)
	}
}

// recordTransportError converts a transport failure into a finding when the
// failure class warrants one. Other errors are logged and the method is
// skipped without aborting the endpoint.
func (p *Prober) recordTransportError(ctx context.Context, method, endpoint string, err error, res *ProbeResult) {
	var urlErr *url.Error
	switch {
	case errors.As(err, &urlErr) && urlErr.Timeout():
		f := newFinding(types.FindingPerformance, types.SeverityMedium, method, endpoint,
			fmt.Sprintf("Request timed out after %s", p.opts.Timeout))
		f.Remediation = "Investigate slow responses; long-running work should move to asynchronous processing."
		res.addFinding(f)
	case isTLSError(err):
		f := newFinding(types.FindingSSLError, types.SeverityHigh, method, endpoint,
			"TLS negotiation with the endpoint failed")
		f.Evidence = err.Error()
		f.Remediation = "Check the server's TLS configuration and certificate chain."
		res.addFinding(f)
	default:
		p.log.WithContext(ctx).Warnw("Probe request failed",
			"method", method,
			"url", endpoint,
			"error", err.Error(),
		)
	}
}

func (p *Prober) checkHeaders(method, endpoint string, headers http.Header, res *ProbeResult) {
	for _, name := range requiredSecurityHeaders {
		if headers.Get(name) == "" {
			f := newFinding(types.FindingSecurityHeader, types.SeverityMedium, method, endpoint,
				fmt.Sprintf("Missing security header: %s", name))
			f.Remediation = fmt.Sprintf("Set the %s header on API responses.", name)
			res.addFinding(f)
		}
	}

	for _, name := range disclosureHeaders {
		if value := headers.Get(name); value != "" {
			f := newFinding(types.FindingInfoDisclosure, types.SeverityLow, method, endpoint,
				fmt.Sprintf("Header %s discloses server details", name))
			f.Evidence = fmt.Sprintf("%s: %s", name, value)
			f.Remediation = fmt.Sprintf("Remove or genericize the %s header.", name)
			res.addFinding(f)
		}
	}
}

func (p *Prober) checkAuth(method, endpoint string, status int, res *ProbeResult) {
	switch status {
	case http.StatusUnauthorized:
		res.Record.AuthRequired = true
		if hasAuthIssue(res.AuthIssues, status) {
			return
		}
		res.AuthIssues = append(res.AuthIssues, types.AuthIssue{
			Type:        "authentication_required",
			Severity:    types.SeverityInfo,
			Method:      method,
			URL:         endpoint,
			StatusCode:  status,
			Description: "Endpoint requires authentication",
		})
		res.addFinding(newFinding(types.FindingAuthIssue, types.SeverityInfo, method, endpoint,
			"Endpoint requires authentication"))
	case http.StatusForbidden:
		if hasAuthIssue(res.AuthIssues, status) {
			return
		}
		res.AuthIssues = append(res.AuthIssues, types.AuthIssue{
			Type:        "access_forbidden",
			Severity:    types.SeverityMedium,
			Method:      method,
			URL:         endpoint,
			StatusCode:  status,
			Description: "Endpoint returned 403; the resource exists but access is denied",
		})
		f := newFinding(types.FindingAuthIssue, types.SeverityMedium, method, endpoint,
			"Endpoint returned 403; the resource exists but access is denied")
		f.Remediation = "Confirm the endpoint should be reachable from this network position."
		res.addFinding(f)
	}
}

// inspectBody runs the detection engines over one response body. PII and AI
// content rules always run; the Dutch rules only for Netherlands-region
// scans.
func (p *Prober) inspectBody(method, endpoint, body string, res *ProbeResult) {
	if body == "" {
		return
	}

	for _, m := range p.detectors.PII.Detect(body) {
		res.PIIExposures = append(res.PIIExposures, types.PIIExposure{
			PIIType:      m.Type,
			GDPRCategory: m.GDPRCategory,
			Severity:     m.Severity,
			Method:       method,
			URL:          endpoint,
			Matches:      m.Count,
			Sample:       m.Sample,
		})
		f := newFinding(types.FindingPIIExposure, m.Severity, method, endpoint,
			fmt.Sprintf("Response body exposes %s (%d match(es))", m.Type, m.Count))
		f.Evidence = m.Sample
		f.Remediation = "Remove or mask personal data in API responses; apply field-level response filtering."
		f.PIIType = m.Type
		f.GDPRCategory = m.GDPRCategory
		res.addFinding(f)
	}

	if p.opts.Region == "Netherlands" {
		for _, m := range p.detectors.NL.Detect(body) {
			f := newFinding(m.FindingType, m.Severity, method, endpoint, nlDescription(m))
			f.Evidence = m.Sample
			f.PIIType = m.Type
			f.GDPRCategory = m.GDPRCategory
			if m.Type == "bsn" {
				f.Remediation = "BSN processing requires a specific legal basis under the UAVG; remove it from API responses."
			}
			res.addFinding(f)
		}
	}

	for _, m := range p.detectors.AI.InspectContent(body) {
		f := newFinding(types.FindingAITransparency, types.SeverityInfo, method, endpoint,
			fmt.Sprintf("Response contains %s language", m.Indicator))
		f.Evidence = m.Evidence
		res.addAIFinding(f)
	}
}

func (p *Prober) shouldTestVulnerabilities(method string, status int) bool {
	if status == http.StatusNotFound || status == http.StatusMethodNotAllowed {
		return false
	}
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

// testVulnerabilities sends the benign payload table against one method.
// The first confirmed hit per class ends that class; detection is
// indicator-based and never exploits.
func (p *Prober) testVulnerabilities(ctx context.Context, method, endpoint string, res *ProbeResult) {
	hit := map[detect.VulnClass]bool{}

	for _, payload := range p.detectors.Vuln.Payloads() {
		if hit[payload.Class] {
			continue
		}
		if err := p.rate.Wait(ctx); err != nil {
			return
		}

		req, err := p.buildPayloadRequest(ctx, method, endpoint, payload.Value)
		if err != nil {
			continue
		}

		resp, err := p.client.Do(req)
		if err != nil {
			p.log.WithContext(ctx).Debugw("Payload probe failed",
				"method", method,
				"url", endpoint,
				"class", string(payload.Class),
				"error", err.Error(),
			)
			continue
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxProbeBody))
		httpclient.CloseBody(resp)
		p.rate.Observe(resp.StatusCode)

		evidence, found := p.detectors.Vuln.Inspect(payload.Class, string(body))
		if !found {
			continue
		}
		hit[payload.Class] = true

		severity := p.detectors.Vuln.Severity(payload.Class)
		res.Vulnerabilities = append(res.Vulnerabilities, types.Vulnerability{
			Type:        string(payload.Class),
			Severity:    severity,
			Method:      method,
			URL:         endpoint,
			Payload:     payload.Value,
			Evidence:    evidence,
			Description: payload.Description,
		})

		f := newFinding(types.FindingVulnerability, severity, method, endpoint,
			fmt.Sprintf("%s indicator in response to a test payload", string(payload.Class)))
		f.Evidence = evidence
		f.Remediation = detect.Remediation(payload.Class)
		res.addFinding(f)

		p.log.LogFinding(ctx, string(types.FindingVulnerability), string(severity), endpoint,
			fmt.Sprintf("%s indicator triggered", string(payload.Class)))
	}
}

// buildPayloadRequest injects a payload the way a client would supply
// input: as the "input" query parameter for GET, as the "test" JSON body
// field for body-carrying methods.
func (p *Prober) buildPayloadRequest(ctx context.Context, method, endpoint, payload string) (*http.Request, error) {
	if method == http.MethodGet {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to parse endpoint URL: %w", err)
		}
		q := u.Query()
		q.Set("input", payload)
		u.RawQuery = q.Encode()

		req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
		if err != nil {
			return nil, err
		}
		p.setHeaders(req, false)
		return req, nil
	}

	body, err := json.Marshal(map[string]string{"test": payload})
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	p.setHeaders(req, true)
	return req, nil
}

func methodHasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

func hasAuthIssue(issues []types.AuthIssue, status int) bool {
	for _, issue := range issues {
		if issue.StatusCode == status {
			return true
		}
	}
	return false
}

func isTLSError(err error) bool {
	var recordErr tls.RecordHeaderError
	var verifyErr *tls.CertificateVerificationError
	if errors.As(err, &recordErr) || errors.As(err, &verifyErr) {
		return true
	}
	var unknownAuthority x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var invalidCert x509.CertificateInvalidError
	if errors.As(err, &unknownAuthority) || errors.As(err, &hostnameErr) || errors.As(err, &invalidCert) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "tls:") || strings.Contains(msg, "x509:")
}

func nlDescription(m detect.NLMatch) string {
	switch m.Type {
	case "bsn":
		return fmt.Sprintf("Response body contains a checksum-valid Dutch BSN (%d match(es))", m.Count)
	case "data_subject_rights":
		return "Response references GDPR data-subject rights"
	default:
		return fmt.Sprintf("Response body contains Dutch %s data (%d match(es))", m.Type, m.Count)
	}
}

func newFinding(ft types.FindingType, severity types.Severity, method, endpoint, description string) types.Finding {
	return types.Finding{
		ID:          uuid.NewString(),
		Type:        ft,
		Severity:    severity,
		Method:      method,
		URL:         endpoint,
		Description: description,
		Timestamp:   time.Now().UTC(),
	}
}
