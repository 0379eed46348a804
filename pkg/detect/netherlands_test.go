package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apiward/apiward/pkg/types"
)

func TestValidateBSN(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{
			name:  "known valid",
			input: "111222333",
			valid: true,
		},
		{
			name:  "sequential digits fail the 11-proef",
			input: "123456789",
			valid: false,
		},
		{
			name:  "too short",
			input: "11122233",
			valid: false,
		},
		{
			name:  "too long",
			input: "1112223334",
			valid: false,
		},
		{
			name:  "empty",
			input: "",
			valid: false,
		},
		{
			name:  "non-digit characters",
			input: "11122233a",
			valid: false,
		},
		{
			name:  "digits with separator",
			input: "111-22-33",
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidateBSN(tt.input))
			// Validation is pure; a second pass gives the same answer.
			assert.Equal(t, tt.valid, ValidateBSN(tt.input))
		})
	}
}

func TestNLDetectorBSN(t *testing.T) {
	d := NewNLDetector()

	matches := d.Detect(`{"customer":{"bsn":"111222333","name":"J. de Vries"}}`)

	m := findNLMatch(t, matches, "bsn")
	assert.Equal(t, types.SeverityCritical, m.Severity)
	assert.Equal(t, types.FindingNLUAVGCritical, m.FindingType)
	assert.True(t, m.Confirmed)
	assert.Equal(t, 1, m.Count)
	assert.Equal(t, "11*****33", m.Sample)
}

func TestNLDetectorIgnoresInvalidBSN(t *testing.T) {
	d := NewNLDetector()

	// Nine digits that fail the checksum must not be reported as a BSN.
	matches := d.Detect(`{"order_ref":"123456789"}`)

	for _, m := range matches {
		assert.NotEqual(t, "bsn", m.Type)
	}
}

func TestNLDetectorIdentifiers(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantType string
		severity types.Severity
	}{
		{
			name:     "postal code",
			body:     `{"address":"Damrak 1, 1012 LG Amsterdam"}`,
			wantType: "postal_code",
			severity: types.SeverityLow,
		},
		{
			name:     "kvk number",
			body:     `{"company":"Example BV","kvk": 12345678}`,
			wantType: "kvk_number",
			severity: types.SeverityLow,
		},
		{
			name:     "dutch mobile number",
			body:     `{"phone":"+31 6 12345678"}`,
			wantType: "dutch_phone",
			severity: types.SeverityMedium,
		},
		{
			name:     "dutch landline with leading zero",
			body:     `{"phone":"0201234567"}`,
			wantType: "dutch_phone",
			severity: types.SeverityMedium,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewNLDetector()
			m := findNLMatch(t, d.Detect(tt.body), tt.wantType)
			assert.Equal(t, tt.severity, m.Severity)
			assert.Equal(t, types.FindingNLUAVGPII, m.FindingType)
			assert.NotEmpty(t, m.Sample)
		})
	}
}

func TestNLDetectorRightsLanguage(t *testing.T) {
	d := NewNLDetector()

	tests := []struct {
		name string
		body string
	}{
		{"dutch", `U heeft recht op inzage in uw gegevens.`},
		{"english", `Users may exercise their right to erasure at any time.`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := findNLMatch(t, d.Detect(tt.body), "data_subject_rights")
			assert.Equal(t, types.SeverityInfo, m.Severity)
			assert.Equal(t, types.FindingNLUAVGRights, m.FindingType)
			assert.Equal(t, 1, m.Count)
		})
	}
}

func TestNLDetectorCleanBody(t *testing.T) {
	d := NewNLDetector()

	assert.Empty(t, d.Detect(`{"status":"ok"}`))
	assert.Empty(t, d.Detect(""))
}

func findNLMatch(t *testing.T, matches []NLMatch, wantType string) NLMatch {
	t.Helper()
	for _, m := range matches {
		if m.Type == wantType {
			return m
		}
	}
	require.Failf(t, "match not found", "no %q match in %+v", wantType, matches)
	return NLMatch{}
}
