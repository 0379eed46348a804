package cmd

import (
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/apiward/apiward/pkg/types"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactly-10", truncate("exactly-10", 10))
	assert.Equal(t, "a-much-...", truncate("a-much-longer-string", 10))
}

func TestStatusText(t *testing.T) {
	assert.Equal(t, "requires attention", statusText(types.NLStatusRequiresAttention))
	assert.Equal(t, "no ai detected", statusText(types.AIStatusNone))
	assert.Equal(t, "compliant", statusText(types.NLStatusCompliant))
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "12.3s", formatSeconds(12.34))
	assert.Equal(t, "0.5s", formatSeconds(0.52))
	assert.Equal(t, "2m 5s", formatSeconds(125))
}

func TestFormatAge(t *testing.T) {
	assert.Equal(t, "30s", formatAge(30*time.Second))
	assert.Equal(t, "5m", formatAge(5*time.Minute+12*time.Second))
	assert.Equal(t, "3h", formatAge(3*time.Hour+40*time.Minute))
	assert.Equal(t, "2d", formatAge(49*time.Hour))
}

func TestColorSeverityWithoutColor(t *testing.T) {
	old := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = old }()

	assert.Equal(t, "CRITICAL", colorSeverity(types.SeverityCritical))
	assert.Equal(t, "HIGH", colorSeverity(types.SeverityHigh))
	assert.Equal(t, "MEDIUM", colorSeverity(types.SeverityMedium))
	assert.Equal(t, "LOW", colorSeverity(types.SeverityLow))
	assert.Equal(t, "INFO", colorSeverity(types.SeverityInfo))
}

func TestComplianceStatusColorsWithoutColor(t *testing.T) {
	old := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = old }()

	assert.Equal(t, "compliant", colorUAVGStatus(types.NLStatusCompliant))
	assert.Equal(t, "CRITICAL VIOLATION", colorUAVGStatus(types.NLStatusCriticalViolation))
	assert.Equal(t, "PROHIBITED PRACTICES DETECTED", colorAIStatus(types.AIStatusProhibited))
}

func TestScanCommandFlags(t *testing.T) {
	for _, name := range []string{
		"endpoints", "spec", "max-endpoints", "timeout", "delay",
		"workers", "batch-size", "region", "resume", "auth-token",
		"no-verify-tls", "no-follow-redirects", "output", "out",
		"save", "enrich", "quiet",
	} {
		assert.NotNil(t, scanCmd.Flags().Lookup(name), "missing flag %s", name)
	}
}

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["scan"])
	assert.True(t, names["results"])
	assert.True(t, names["checkpoints"])
}
