package types

import (
	"time"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Rank orders severities for comparisons; higher is worse.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

type FindingType string

const (
	FindingSecurityHeader  FindingType = "security_header"
	FindingInfoDisclosure  FindingType = "information_disclosure"
	FindingAuthIssue       FindingType = "auth_issue"
	FindingPIIExposure     FindingType = "pii_exposure"
	FindingVulnerability   FindingType = "vulnerability"
	FindingAIActCompliance FindingType = "ai_act_compliance"
	FindingAITransparency  FindingType = "ai_transparency"
	FindingNLUAVGCritical  FindingType = "netherlands_uavg_critical"
	FindingNLUAVGPII       FindingType = "netherlands_uavg_pii"
	FindingNLUAVGRights    FindingType = "netherlands_uavg_rights"
	FindingPerformance     FindingType = "performance"
	FindingSSLError        FindingType = "ssl_error"
)

// Finding is a single detection event tied to a method/URL. Findings are
// append-only: once created they are never mutated.
type Finding struct {
	ID           string            `json:"id" db:"id"`
	ScanID       string            `json:"scan_id,omitempty" db:"scan_id"`
	Type         FindingType       `json:"type" db:"type"`
	Severity     Severity          `json:"severity" db:"severity"`
	Method       string            `json:"method,omitempty" db:"method"`
	URL          string            `json:"url" db:"url"`
	Description  string            `json:"description" db:"description"`
	Evidence     string            `json:"evidence,omitempty" db:"evidence"`
	Remediation  string            `json:"remediation,omitempty" db:"remediation"`
	PIIType      string            `json:"pii_type,omitempty" db:"pii_type"`
	GDPRCategory string            `json:"gdpr_category,omitempty" db:"gdpr_category"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Timestamp    time.Time         `json:"timestamp" db:"created_at"`
}

// Vulnerability is the structured record behind a vulnerability Finding.
type Vulnerability struct {
	Type        string   `json:"type"`
	Severity    Severity `json:"severity"`
	Method      string   `json:"method"`
	URL         string   `json:"url"`
	Payload     string   `json:"payload"`
	Evidence    string   `json:"evidence,omitempty"`
	Description string   `json:"description"`
}

// PIIExposure is the structured record behind a pii_exposure Finding. Sample
// holds a redacted excerpt, never the raw matched value.
type PIIExposure struct {
	PIIType      string   `json:"pii_type"`
	GDPRCategory string   `json:"gdpr_category"`
	Severity     Severity `json:"severity"`
	Method       string   `json:"method"`
	URL          string   `json:"url"`
	Matches      int      `json:"matches"`
	Sample       string   `json:"sample,omitempty"`
}

type AuthIssue struct {
	Type        string   `json:"type"`
	Severity    Severity `json:"severity"`
	Method      string   `json:"method"`
	URL         string   `json:"url"`
	StatusCode  int      `json:"status_code"`
	Description string   `json:"description"`
}

// MethodResponse captures per-method response metadata for one endpoint.
type MethodResponse struct {
	StatusCode    int    `json:"status_code"`
	ContentType   string `json:"content_type,omitempty"`
	ContentLength int64  `json:"content_length"`
	LatencyMS     int64  `json:"latency_ms"`
}

// EndpointRecord is one discovered endpoint and everything observed while
// probing it. A worker owns its record exclusively until merge.
type EndpointRecord struct {
	URL          string                    `json:"url"`
	Methods      []string                  `json:"methods"`
	Responses    map[string]MethodResponse `json:"responses"`
	Findings     []Finding                 `json:"findings"`
	AuthRequired bool                      `json:"auth_required"`
}

type SSLInfo struct {
	Enabled         bool      `json:"enabled"`
	Version         string    `json:"version,omitempty"`
	CipherSuite     string    `json:"cipher_suite,omitempty"`
	Subject         string    `json:"subject,omitempty"`
	Issuer          string    `json:"issuer,omitempty"`
	NotAfter        time.Time `json:"not_after"`
	DaysUntilExpiry int       `json:"days_until_expiry,omitempty"`
	SelfSigned      bool      `json:"self_signed,omitempty"`
	HostnameMatch   bool      `json:"hostname_match,omitempty"`
	OCSPStatus      string    `json:"ocsp_status,omitempty"`
	Error           string    `json:"error,omitempty"`
}

type CORSAnalysis struct {
	Checked          bool     `json:"checked"`
	AllowOrigin      string   `json:"allow_origin,omitempty"`
	AllowCredentials bool     `json:"allow_credentials,omitempty"`
	AllowMethods     string   `json:"allow_methods,omitempty"`
	Issues           []string `json:"issues"`
}

type RateLimitInfo struct {
	Checked     bool     `json:"checked"`
	Enabled     bool     `json:"enabled"`
	StatusCodes []int    `json:"status_codes,omitempty"`
	Headers     []string `json:"headers,omitempty"`
}

type Stats struct {
	TotalEndpoints   int `json:"total_endpoints"`
	SuccessfulScans  int `json:"successful_scans"`
	TotalFindings    int `json:"total_findings"`
	CriticalFindings int `json:"critical_findings"`
	HighFindings     int `json:"high_findings"`
	MediumFindings   int `json:"medium_findings"`
	LowFindings      int `json:"low_findings"`
}

// AI Act rollup statuses, least to most severe.
const (
	AIStatusNone       = "no_ai_detected"
	AIStatusDetected   = "ai_system_detected"
	AIStatusHighRisk   = "high_risk_ai_detected"
	AIStatusProhibited = "prohibited_practices_detected"
)

// Netherlands UAVG rollup statuses.
const (
	NLStatusCompliant         = "compliant"
	NLStatusRequiresAttention = "requires_attention"
	NLStatusCriticalViolation = "critical_violation"
)

// RegulatoryNotification records a mandated breach-notification obligation
// derived from confirmed findings.
type RegulatoryNotification struct {
	Authority          string `json:"authority"`
	Regulation         string `json:"regulation"`
	Trigger            string `json:"trigger"`
	NotificationWindow string `json:"notification_window"`
	ExposureCount      int    `json:"exposure_count"`
	AffectedEndpoints  int    `json:"affected_endpoints"`
	Required           bool   `json:"required"`
}

type Recommendation struct {
	Priority int    `json:"priority"`
	Category string `json:"category"`
	Action   string `json:"action"`
	Count    int    `json:"count,omitempty"`
}

// DomainInfo is optional WHOIS/DNS enrichment attached to the report.
type DomainInfo struct {
	Domain      string   `json:"domain"`
	Registrar   string   `json:"registrar,omitempty"`
	Org         string   `json:"org,omitempty"`
	Country     string   `json:"country,omitempty"`
	CreatedDate string   `json:"created_date,omitempty"`
	ExpiresDate string   `json:"expires_date,omitempty"`
	NameServers []string `json:"name_servers,omitempty"`
	Addresses   []string `json:"addresses,omitempty"`
	CNAME       string   `json:"cname,omitempty"`
}

// ScanResult is the full report consumed by the rendering/storage layers.
type ScanResult struct {
	ScanID                  string                   `json:"scan_id"`
	ScanType                string                   `json:"scan_type"`
	ScanTime                time.Time                `json:"scan_time"`
	CompletionTime          time.Time                `json:"completion_time"`
	DurationSeconds         float64                  `json:"duration_seconds"`
	BaseURL                 string                   `json:"base_url"`
	BaseDomain              string                   `json:"base_domain"`
	EndpointsScanned        int                      `json:"endpoints_scanned"`
	EndpointsData           []EndpointRecord         `json:"endpoints_data"`
	Findings                []Finding                `json:"findings"`
	Vulnerabilities         []Vulnerability          `json:"vulnerabilities"`
	PIIExposures            []PIIExposure            `json:"pii_exposures"`
	AuthIssues              []AuthIssue              `json:"auth_issues"`
	SSLInfo                 SSLInfo                  `json:"ssl_info"`
	CORSAnalysis            CORSAnalysis             `json:"cors_analysis"`
	RateLimiting            RateLimitInfo            `json:"rate_limiting"`
	Stats                   Stats                    `json:"stats"`
	AIActFindings           []Finding                `json:"ai_act_findings"`
	AIActStatus             string                   `json:"ai_act_status"`
	NetherlandsUAVGStatus   string                   `json:"netherlands_uavg_status"`
	RegulatoryNotifications []RegulatoryNotification `json:"regulatory_notifications"`
	Recommendations         []Recommendation         `json:"recommendations,omitempty"`
	DomainInfo              *DomainInfo              `json:"domain_info,omitempty"`
}

// NewScanResult returns a result with every collection initialized so the
// JSON encoding always carries arrays, never null.
func NewScanResult(scanID, baseURL, baseDomain string, start time.Time) *ScanResult {
	return &ScanResult{
		ScanID:                  scanID,
		ScanType:                "api",
		ScanTime:                start,
		BaseURL:                 baseURL,
		BaseDomain:              baseDomain,
		EndpointsData:           []EndpointRecord{},
		Findings:                []Finding{},
		Vulnerabilities:         []Vulnerability{},
		PIIExposures:            []PIIExposure{},
		AuthIssues:              []AuthIssue{},
		CORSAnalysis:            CORSAnalysis{Issues: []string{}},
		AIActFindings:           []Finding{},
		AIActStatus:             AIStatusNone,
		NetherlandsUAVGStatus:   NLStatusCompliant,
		RegulatoryNotifications: []RegulatoryNotification{},
	}
}

// ProgressFunc reports scan progress. It is always invoked outside the
// result-merge critical section.
type ProgressFunc func(completed, total int, message string)

// ScanOptions configures one scan run.
type ScanOptions struct {
	MaxEndpoints    int
	Timeout         time.Duration
	Delay           time.Duration
	FollowRedirects bool
	VerifyTLS       bool
	Region          string
	BatchSize       int
	Workers         int
	AuthToken       string
	OpenAPISpec     string
	Endpoints       []string
	ResumeID        string
	CallerScope     string
	Progress        ProgressFunc
}

// DefaultScanOptions mirrors the documented defaults.
func DefaultScanOptions() ScanOptions {
	return ScanOptions{
		MaxEndpoints:    50,
		Timeout:         10 * time.Second,
		Delay:           100 * time.Millisecond,
		FollowRedirects: true,
		VerifyTLS:       true,
		Region:          "Netherlands",
		BatchSize:       5,
		Workers:         3,
	}
}
