package scanner

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/ocsp"

	"github.com/apiward/apiward/internal/httpclient"
	"github.com/apiward/apiward/internal/logger"
	"github.com/apiward/apiward/pkg/types"
)

// OCSP revocation statuses reported in ssl_info. "unknown" covers absent
// responders, unreachable responders, and unparseable responses.
const (
	ocspStatusGood    = "good"
	ocspStatusRevoked = "revoked"
	ocspStatusUnknown = "unknown"
)

const expiryWarningWindow = 30 * 24 * time.Hour

// weakCipherSuites maps negotiated suites to the reason they are flagged.
var weakCipherSuites = map[uint16]string{
	tls.TLS_RSA_WITH_RC4_128_SHA:             "RC4 cipher (weak)",
	tls.TLS_RSA_WITH_3DES_EDE_CBC_SHA:        "3DES cipher (weak)",
	tls.TLS_RSA_WITH_AES_128_CBC_SHA:         "no forward secrecy",
	tls.TLS_RSA_WITH_AES_256_CBC_SHA:         "no forward secrecy",
	tls.TLS_ECDHE_ECDSA_WITH_RC4_128_SHA:     "RC4 cipher (weak)",
	tls.TLS_ECDHE_RSA_WITH_RC4_128_SHA:       "RC4 cipher (weak)",
	tls.TLS_ECDHE_RSA_WITH_3DES_EDE_CBC_SHA:  "3DES cipher (weak)",
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA: "CBC mode (vulnerable to BEAST)",
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA: "CBC mode (vulnerable to BEAST)",
	tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA:   "CBC mode (vulnerable to BEAST)",
	tls.TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA:   "CBC mode (vulnerable to BEAST)",
}

// Checker runs the scan-level checks that execute once per scan, after all
// endpoint probes complete: TLS/certificate inspection, CORS policy
// analysis, and rate-limit presence detection.
type Checker struct {
	client    *http.Client
	log       *logger.Logger
	timeout   time.Duration
	userAgent string
}

func NewChecker(client *http.Client, log *logger.Logger, timeout time.Duration, userAgent string) *Checker {
	return &Checker{
		client:    client,
		log:       log.WithComponent("checks"),
		timeout:   timeout,
		userAgent: userAgent,
	}
}

// CheckTLS inspects the target's TLS configuration and certificate chain.
// The handshake skips verification so expired, self-signed, and mismatched
// certificates can still be analyzed rather than aborting the check.
func (c *Checker) CheckTLS(ctx context.Context, base *url.URL) (types.SSLInfo, []types.Finding) {
	info := types.SSLInfo{}
	findings := []types.Finding{}
	start := time.Now()

	if base.Scheme != "https" {
		c.log.WithContext(ctx).Warnw("Target is not served over TLS",
			"url", base.String(),
			"scheme", base.Scheme,
		)
		findings = append(findings, sslFinding(types.SeverityHigh, base.String(),
			"API is served over plain HTTP; all traffic is unencrypted",
			fmt.Sprintf("Base URL scheme is %q", base.Scheme),
			"Serve the API exclusively over HTTPS and redirect plain HTTP requests.",
		))
		return info, findings
	}

	host := base.Hostname()
	port := base.Port()
	if port == "" {
		port = "443"
	}
	target := net.JoinHostPort(host, port)

	dialer := &net.Dialer{Timeout: c.timeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		c.log.LogError(ctx, err, "checks.tls.dial", "target", target)
		info.Error = err.Error()
		findings = append(findings, sslFinding(types.SeverityHigh, base.String(),
			fmt.Sprintf("Could not establish a TLS connection to %s", target),
			err.Error(),
			"Verify the service is reachable on its TLS port.",
		))
		return info, findings
	}

	// TLS 1.0 floor so servers stuck on legacy protocols still complete a
	// handshake and get reported instead of failing opaquely.
	tlsConn := tls.Client(tcpConn, &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: true,
		MinVersion:         tls.VersionTLS10,
	})
	tlsConn.SetDeadline(time.Now().Add(c.timeout))

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		tcpConn.Close()
		c.log.LogError(ctx, err, "checks.tls.handshake", "target", target)
		info.Error = err.Error()
		findings = append(findings, sslFinding(types.SeverityHigh, base.String(),
			fmt.Sprintf("TLS handshake with %s failed", target),
			err.Error(),
			"Check the server's TLS configuration and certificate chain.",
		))
		return info, findings
	}
	defer tlsConn.Close()

	state := tlsConn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		info.Enabled = true
		info.Error = "server presented no certificates"
		return info, findings
	}

	leaf := state.PeerCertificates[0]
	now := time.Now()

	info.Enabled = true
	info.Version = tls.VersionName(state.Version)
	info.CipherSuite = tls.CipherSuiteName(state.CipherSuite)
	info.Subject = leaf.Subject.String()
	info.Issuer = leaf.Issuer.String()
	info.NotAfter = leaf.NotAfter
	info.DaysUntilExpiry = int(leaf.NotAfter.Sub(now).Hours() / 24)
	info.SelfSigned = len(state.PeerCertificates) == 1 && bytes.Equal(leaf.RawIssuer, leaf.RawSubject)
	info.HostnameMatch = leaf.VerifyHostname(host) == nil
	info.OCSPStatus = c.ocspStatus(ctx, state.PeerCertificates)

	if now.After(leaf.NotAfter) {
		f := sslFinding(types.SeverityCritical, base.String(),
			fmt.Sprintf("TLS certificate expired on %s", leaf.NotAfter.Format("2006-01-02")),
			fmt.Sprintf("Certificate expired %d days ago", int(now.Sub(leaf.NotAfter).Hours()/24)),
			"Replace the expired certificate immediately.",
		)
		f.Metadata = map[string]string{
			"not_after":    leaf.NotAfter.Format(time.RFC3339),
			"days_expired": strconv.Itoa(int(now.Sub(leaf.NotAfter).Hours() / 24)),
		}
		findings = append(findings, f)
	} else if now.Add(expiryWarningWindow).After(leaf.NotAfter) {
		f := sslFinding(types.SeverityMedium, base.String(),
			fmt.Sprintf("TLS certificate expires on %s", leaf.NotAfter.Format("2006-01-02")),
			fmt.Sprintf("Certificate expires in %d days", info.DaysUntilExpiry),
			"Renew the certificate before expiration.",
		)
		f.Metadata = map[string]string{
			"not_after":      leaf.NotAfter.Format(time.RFC3339),
			"days_remaining": strconv.Itoa(info.DaysUntilExpiry),
		}
		findings = append(findings, f)
	}

	if now.Before(leaf.NotBefore) {
		findings = append(findings, sslFinding(types.SeverityCritical, base.String(),
			fmt.Sprintf("TLS certificate is not valid until %s", leaf.NotBefore.Format("2006-01-02")),
			fmt.Sprintf("Certificate becomes valid in %d days", int(leaf.NotBefore.Sub(now).Hours()/24)),
			"Deploy a certificate that is currently valid.",
		))
	}

	if !info.HostnameMatch {
		findings = append(findings, sslFinding(types.SeverityHigh, base.String(),
			fmt.Sprintf("TLS certificate does not match hostname %s", host),
			fmt.Sprintf("Certificate is valid for: %s", strings.Join(leaf.DNSNames, ", ")),
			"Deploy a certificate that includes the API hostname.",
		))
	}

	switch state.Version {
	case tls.VersionTLS10:
		findings = append(findings, sslFinding(types.SeverityHigh, base.String(),
			"Connection negotiated TLS 1.0, which has known weaknesses",
			fmt.Sprintf("Negotiated protocol: %s", info.Version),
			"Migrate the server to TLS 1.2 or TLS 1.3.",
		))
	case tls.VersionTLS11:
		findings = append(findings, sslFinding(types.SeverityMedium, base.String(),
			"Connection negotiated TLS 1.1, which is deprecated",
			fmt.Sprintf("Negotiated protocol: %s", info.Version),
			"Migrate the server to TLS 1.2 or TLS 1.3.",
		))
	}

	if weakness, isWeak := weakCipherSuites[state.CipherSuite]; isWeak {
		findings = append(findings, sslFinding(types.SeverityMedium, base.String(),
			fmt.Sprintf("Connection negotiated a weak cipher suite: %s", weakness),
			fmt.Sprintf("Negotiated cipher: %s (0x%04X)", info.CipherSuite, state.CipherSuite),
			"Configure the server to prefer cipher suites with forward secrecy.",
		))
	}

	if info.OCSPStatus == ocspStatusRevoked {
		findings = append(findings, sslFinding(types.SeverityCritical, base.String(),
			"TLS certificate has been revoked by its issuer",
			fmt.Sprintf("OCSP responder %s reported status revoked", leaf.OCSPServer[0]),
			"Replace the revoked certificate immediately.",
		))
	}

	c.log.WithContext(ctx).Infow("TLS inspection completed",
		"target", target,
		"version", info.Version,
		"cipher_suite", info.CipherSuite,
		"days_until_expiry", info.DaysUntilExpiry,
		"self_signed", info.SelfSigned,
		"hostname_match", info.HostnameMatch,
		"ocsp_status", info.OCSPStatus,
		"findings", len(findings),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return info, findings
}

// ocspStatus asks the leaf certificate's OCSP responder whether the
// certificate has been revoked. Best effort: any failure along the way
// degrades to "unknown" rather than an error.
func (c *Checker) ocspStatus(ctx context.Context, chain []*x509.Certificate) string {
	if len(chain) < 2 {
		return ocspStatusUnknown
	}
	leaf, issuer := chain[0], chain[1]
	if len(leaf.OCSPServer) == 0 {
		return ocspStatusUnknown
	}
	responder := leaf.OCSPServer[0]

	reqBytes, err := ocsp.CreateRequest(leaf, issuer, nil)
	if err != nil {
		c.log.WithContext(ctx).Debugw("Failed to build OCSP request", "error", err.Error())
		return ocspStatusUnknown
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, responder, bytes.NewReader(reqBytes))
	if err != nil {
		return ocspStatusUnknown
	}
	req.Header.Set("Content-Type", "application/ocsp-request")
	req.Header.Set("Accept", "application/ocsp-response")

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.WithContext(ctx).Debugw("OCSP responder unreachable",
			"responder", responder,
			"error", err.Error(),
		)
		return ocspStatusUnknown
	}
	defer httpclient.CloseBody(resp)

	if resp.StatusCode != http.StatusOK {
		return ocspStatusUnknown
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ocspStatusUnknown
	}

	parsed, err := ocsp.ParseResponseForCert(raw, leaf, issuer)
	if err != nil {
		c.log.WithContext(ctx).Debugw("Failed to parse OCSP response",
			"responder", responder,
			"error", err.Error(),
		)
		return ocspStatusUnknown
	}

	switch parsed.Status {
	case ocsp.Good:
		return ocspStatusGood
	case ocsp.Revoked:
		return ocspStatusRevoked
	default:
		return ocspStatusUnknown
	}
}

// CheckCORS probes the target's CORS policy with a foreign origin and the
// null origin. Misconfigurations are recorded on the analysis block; an
// empty issue list means none were observed.
func (c *Checker) CheckCORS(ctx context.Context, baseURL string) types.CORSAnalysis {
	analysis := types.CORSAnalysis{Issues: []string{}}

	const probeOrigin = "https://cors-probe.invalid"

	resp, err := c.corsProbe(ctx, baseURL, probeOrigin)
	if err != nil {
		c.log.WithContext(ctx).Warnw("CORS check failed",
			"url", baseURL,
			"error", err.Error(),
		)
		return analysis
	}

	analysis.Checked = true
	analysis.AllowOrigin = resp.Header.Get("Access-Control-Allow-Origin")
	analysis.AllowCredentials = strings.EqualFold(resp.Header.Get("Access-Control-Allow-Credentials"), "true")
	analysis.AllowMethods = resp.Header.Get("Access-Control-Allow-Methods")
	httpclient.CloseBody(resp)

	if analysis.AllowOrigin == "*" {
		analysis.Issues = append(analysis.Issues, "wildcard origin allows any site to read responses")
		if analysis.AllowCredentials {
			analysis.Issues = append(analysis.Issues, "wildcard origin combined with credentials")
		}
	} else if analysis.AllowOrigin == probeOrigin {
		analysis.Issues = append(analysis.Issues, "arbitrary request origins are reflected")
	}

	nullResp, err := c.corsProbe(ctx, baseURL, "null")
	if err == nil {
		if nullResp.Header.Get("Access-Control-Allow-Origin") == "null" {
			analysis.Issues = append(analysis.Issues, "null origin is allowed")
		}
		httpclient.CloseBody(nullResp)
	}

	c.log.WithContext(ctx).Infow("CORS check completed",
		"url", baseURL,
		"allow_origin", analysis.AllowOrigin,
		"allow_credentials", analysis.AllowCredentials,
		"issues", len(analysis.Issues),
	)

	return analysis
}

func (c *Checker) corsProbe(ctx context.Context, rawURL, origin string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build CORS probe request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Origin", origin)
	return c.client.Do(req)
}

// CheckRateLimit fires a short burst of requests at the target and looks
// for throttling signals: HTTP 429 responses or X-RateLimit-*/Retry-After
// headers. The burst deliberately bypasses the adaptive rate controller.
func (c *Checker) CheckRateLimit(ctx context.Context, baseURL string) types.RateLimitInfo {
	info := types.RateLimitInfo{}
	const burst = 5

	headerSeen := map[string]bool{}

	for i := 0; i < burst; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
		if err != nil {
			c.log.WithContext(ctx).Warnw("Rate-limit check aborted",
				"url", baseURL,
				"error", err.Error(),
			)
			return info
		}
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.client.Do(req)
		if err != nil {
			c.log.WithContext(ctx).Debugw("Rate-limit probe request failed",
				"url", baseURL,
				"attempt", i+1,
				"error", err.Error(),
			)
			continue
		}

		info.Checked = true
		info.StatusCodes = append(info.StatusCodes, resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests {
			info.Enabled = true
		}
		for name := range resp.Header {
			if isRateLimitHeader(name) && !headerSeen[name] {
				headerSeen[name] = true
				info.Headers = append(info.Headers, name)
				info.Enabled = true
			}
		}
		httpclient.CloseBody(resp)
	}

	sort.Strings(info.Headers)

	c.log.WithContext(ctx).Infow("Rate-limit check completed",
		"url", baseURL,
		"enabled", info.Enabled,
		"status_codes", info.StatusCodes,
		"headers", info.Headers,
	)

	return info
}

func isRateLimitHeader(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasPrefix(lower, "x-ratelimit-") || lower == "retry-after"
}

func sslFinding(severity types.Severity, rawURL, description, evidence, remediation string) types.Finding {
	return types.Finding{
		ID:          uuid.NewString(),
		Type:        types.FindingSSLError,
		Severity:    severity,
		URL:         rawURL,
		Description: description,
		Evidence:    evidence,
		Remediation: remediation,
		Timestamp:   time.Now().UTC(),
	}
}
