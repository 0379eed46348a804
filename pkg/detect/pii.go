// Package detect holds the stateless detection rule engines: PII patterns,
// vulnerability payload/indicator pairs, AI-regulation patterns, and
// Netherlands-specific compliance rules. Every engine is a constructed-once
// immutable table, safe for concurrent use from any worker.
package detect

import (
	"regexp"
	"strings"

	"github.com/apiward/apiward/pkg/types"
)

// PIIRule pairs a regex family with its classification.
type PIIRule struct {
	Type         string
	GDPRCategory string
	Severity     types.Severity
	Pattern      *regexp.Regexp
	// Validate, when set, confirms a raw match before it is reported.
	// Used for checksum-gated identifiers.
	Validate func(string) bool
}

// PIIMatch is one confirmed PII family found in a response body.
type PIIMatch struct {
	Type         string
	GDPRCategory string
	Severity     types.Severity
	Count        int
	Sample       string
}

// PIIDetector scans response bodies for personal data.
type PIIDetector struct {
	rules []PIIRule
}

// NewPIIDetector builds the rule table.
func NewPIIDetector() *PIIDetector {
	return &PIIDetector{rules: piiRules()}
}

func piiRules() []PIIRule {
	return []PIIRule{
		{
			Type:         "email",
			GDPRCategory: "contact_data",
			Severity:     types.SeverityMedium,
			Pattern:      regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
		},
		{
			Type:         "phone",
			GDPRCategory: "contact_data",
			Severity:     types.SeverityMedium,
			Pattern:      regexp.MustCompile(`\+?[0-9]{1,3}[\s\-]?\(?[0-9]{2,4}\)?[\s\-]?[0-9]{3}[\s\-]?[0-9]{3,4}`),
		},
		{
			Type:         "ssn",
			GDPRCategory: "national_identifier",
			Severity:     types.SeverityHigh,
			Pattern:      regexp.MustCompile(`\b[0-9]{3}-[0-9]{2}-[0-9]{4}\b`),
		},
		{
			Type:         "credit_card",
			GDPRCategory: "financial_data",
			Severity:     types.SeverityCritical,
			Pattern:      regexp.MustCompile(`\b(?:4[0-9]{3}|5[1-5][0-9]{2}|3[47][0-9]{2}|6011)[\s\-]?[0-9]{4}[\s\-]?[0-9]{4}[\s\-]?[0-9]{1,4}\b`),
		},
		{
			Type:         "ip_address",
			GDPRCategory: "online_identifier",
			Severity:     types.SeverityLow,
			Pattern:      regexp.MustCompile(`\b(?:[0-9]{1,3}\.){3}[0-9]{1,3}\b`),
		},
		{
			Type:         "api_key",
			GDPRCategory: "credentials",
			Severity:     types.SeverityHigh,
			Pattern:      regexp.MustCompile(`(?i)(?:api[_\-]?key|access[_\-]?token|secret[_\-]?key)["'\s:=]+["']?[A-Za-z0-9\-_]{16,}`),
		},
		{
			Type:         "password",
			GDPRCategory: "credentials",
			Severity:     types.SeverityCritical,
			Pattern:      regexp.MustCompile(`(?i)(?:password|passwd|pwd)["'\s:=]+["']?[^\s"',;}{]{4,}`),
		},
		{
			Type:         "bsn",
			GDPRCategory: "national_identifier",
			Severity:     types.SeverityCritical,
			Pattern:      regexp.MustCompile(`\b[0-9]{9}\b`),
			Validate:     ValidateBSN,
		},
		{
			Type:         "postal_code",
			GDPRCategory: "location_data",
			Severity:     types.SeverityLow,
			Pattern:      regexp.MustCompile(`\b[1-9][0-9]{3}\s?[A-Z]{2}\b`),
		},
		{
			Type:         "iban",
			GDPRCategory: "financial_data",
			Severity:     types.SeverityHigh,
			Pattern:      regexp.MustCompile(`\b[A-Z]{2}[0-9]{2}[A-Z0-9]{4}[0-9]{7}[A-Z0-9]{0,19}\b`),
		},
	}
}

// Detect returns one match record per PII family present in body. Samples
// are redacted before they leave this package.
func (d *PIIDetector) Detect(body string) []PIIMatch {
	if body == "" {
		return nil
	}

	var matches []PIIMatch
	for _, rule := range d.rules {
		found := rule.Pattern.FindAllString(body, -1)
		if len(found) == 0 {
			continue
		}

		if rule.Validate != nil {
			confirmed := found[:0]
			for _, candidate := range found {
				if rule.Validate(candidate) {
					confirmed = append(confirmed, candidate)
				}
			}
			found = confirmed
			if len(found) == 0 {
				continue
			}
		}

		matches = append(matches, PIIMatch{
			Type:         rule.Type,
			GDPRCategory: rule.GDPRCategory,
			Severity:     rule.Severity,
			Count:        len(found),
			Sample:       Redact(found[0]),
		})
	}
	return matches
}

// Redact masks the middle of a matched value so reports never carry raw
// personal data.
func Redact(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
