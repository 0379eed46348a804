package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apiward/apiward/pkg/types"
)

func TestPIIDetectorEmail(t *testing.T) {
	d := NewPIIDetector()

	matches := d.Detect("contact: jan@example.nl")

	require.Len(t, matches, 1)
	assert.Equal(t, "email", matches[0].Type)
	assert.Equal(t, "contact_data", matches[0].GDPRCategory)
	assert.Equal(t, types.SeverityMedium, matches[0].Severity)
	assert.Equal(t, 1, matches[0].Count)
	assert.Equal(t, "ja**********nl", matches[0].Sample)
}

func TestPIIDetectorFamilies(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantType string
		severity types.Severity
		category string
	}{
		{
			name:     "us ssn",
			body:     `{"ssn":"123-45-6789"}`,
			wantType: "ssn",
			severity: types.SeverityHigh,
			category: "national_identifier",
		},
		{
			name:     "credit card",
			body:     `{"card":"4111 1111 1111 1111"}`,
			wantType: "credit_card",
			severity: types.SeverityCritical,
			category: "financial_data",
		},
		{
			name:     "ip address",
			body:     `{"client":"203.0.113.7"}`,
			wantType: "ip_address",
			severity: types.SeverityLow,
			category: "online_identifier",
		},
		{
			name:     "api key",
			body:     `{"api_key":"sk_live_abcdef1234567890abcd"}`,
			wantType: "api_key",
			severity: types.SeverityHigh,
			category: "credentials",
		},
		{
			name:     "password",
			body:     `{"password":"hunter2secret"}`,
			wantType: "password",
			severity: types.SeverityCritical,
			category: "credentials",
		},
		{
			name:     "iban",
			body:     `{"iban":"NL91ABNA0417164300"}`,
			wantType: "iban",
			severity: types.SeverityHigh,
			category: "financial_data",
		},
		{
			name:     "dutch postal code",
			body:     `{"postcode":"1012 LG"}`,
			wantType: "postal_code",
			severity: types.SeverityLow,
			category: "location_data",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewPIIDetector()
			m := findPIIMatch(t, d.Detect(tt.body), tt.wantType)
			assert.Equal(t, tt.severity, m.Severity)
			assert.Equal(t, tt.category, m.GDPRCategory)
			assert.GreaterOrEqual(t, m.Count, 1)
			assert.NotEmpty(t, m.Sample)
		})
	}
}

func TestPIIDetectorBSNChecksumGate(t *testing.T) {
	d := NewPIIDetector()

	// A checksum-valid BSN is reported.
	m := findPIIMatch(t, d.Detect(`{"bsn":"111222333"}`), "bsn")
	assert.Equal(t, types.SeverityCritical, m.Severity)
	assert.Equal(t, "11*****33", m.Sample)

	// Nine digits failing the 11-proef are not a BSN.
	for _, match := range d.Detect(`{"ref":"123456789"}`) {
		assert.NotEqual(t, "bsn", match.Type)
	}
}

func TestPIIDetectorCleanBody(t *testing.T) {
	d := NewPIIDetector()

	assert.Empty(t, d.Detect(`{"status":"ok","items":[]}`))
	assert.Empty(t, d.Detect(""))
}

func TestPIIDetectorCountsRepeats(t *testing.T) {
	d := NewPIIDetector()

	body := `["a@example.com","b@example.com","c@example.com"]`
	m := findPIIMatch(t, d.Detect(body), "email")
	assert.Equal(t, 3, m.Count)
	// Only the first hit is sampled, and never verbatim.
	assert.NotContains(t, m.Sample, "a@example.com")
}

func TestRedact(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"111222333", "11*****33"},
		{"jan@example.nl", "ja**********nl"},
		{"abcd", "****"},
		{"ab", "****"},
		{"", "****"},
		{"  padded  ", "pa**ed"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Redact(tt.in), "Redact(%q)", tt.in)
	}
}

func findPIIMatch(t *testing.T, matches []PIIMatch, wantType string) PIIMatch {
	t.Helper()
	for _, m := range matches {
		if m.Type == wantType {
			return m
		}
	}
	require.Failf(t, "match not found", "no %q match in %+v", wantType, matches)
	return PIIMatch{}
}
