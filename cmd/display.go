// cmd/display.go - Shared rendering helpers for the command tree.
package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/apiward/apiward/pkg/types"
)

func displayScanReport(result *types.ScanResult) {
	fmt.Println()
	color.New(color.FgCyan, color.Bold).Println("═══ apiward compliance report ═══")
	fmt.Printf("  Scan ID:  %s\n", result.ScanID)
	fmt.Printf("  Target:   %s\n", result.BaseURL)
	fmt.Printf("  Scanned:  %d endpoints in %s\n", result.EndpointsScanned, formatSeconds(result.DurationSeconds))
	fmt.Println()

	fmt.Printf("  GDPR/UAVG: %s\n", colorUAVGStatus(result.NetherlandsUAVGStatus))
	fmt.Printf("  EU AI Act: %s\n", colorAIStatus(result.AIActStatus))
	fmt.Println()

	displayTransport(result)
	displayFindingCounts(result.Stats)
	displayTopFindings(result.Findings, 10)
	displayNotifications(result.RegulatoryNotifications)
	displayRecommendations(result.Recommendations)
	displayDomainInfo(result.DomainInfo)
	fmt.Println()
}

func displayTransport(result *types.ScanResult) {
	ssl := result.SSLInfo
	if ssl.Enabled {
		line := "TLS " + ssl.Version
		if ssl.DaysUntilExpiry > 0 {
			line += fmt.Sprintf(", certificate expires in %d days", ssl.DaysUntilExpiry)
		}
		if ssl.SelfSigned {
			line += ", " + color.YellowString("self-signed")
		}
		if ssl.OCSPStatus != "" {
			line += ", OCSP " + ssl.OCSPStatus
		}
		fmt.Printf("  Transport:  %s\n", line)
	} else {
		fmt.Printf("  Transport:  %s\n", color.RedString("plain HTTP"))
	}

	if result.CORSAnalysis.Checked {
		if len(result.CORSAnalysis.Issues) == 0 {
			fmt.Printf("  CORS:       %s\n", color.GreenString("no issues"))
		} else {
			fmt.Printf("  CORS:       %s\n", color.YellowString("%d issues", len(result.CORSAnalysis.Issues)))
			for _, issue := range result.CORSAnalysis.Issues {
				fmt.Printf("    • %s\n", issue)
			}
		}
	}

	if result.RateLimiting.Checked {
		if result.RateLimiting.Enabled {
			fmt.Printf("  Rate limit: %s\n", color.GreenString("enforced"))
		} else {
			fmt.Printf("  Rate limit: %s\n", color.YellowString("not detected"))
		}
	}
	fmt.Println()
}

func displayFindingCounts(stats types.Stats) {
	if stats.TotalFindings == 0 {
		color.Green("  No findings\n")
		return
	}

	fmt.Printf("  Findings: %d total\n", stats.TotalFindings)
	counts := []struct {
		severity types.Severity
		count    int
	}{
		{types.SeverityCritical, stats.CriticalFindings},
		{types.SeverityHigh, stats.HighFindings},
		{types.SeverityMedium, stats.MediumFindings},
		{types.SeverityLow, stats.LowFindings},
	}
	for _, c := range counts {
		if c.count > 0 {
			fmt.Printf("    %s: %d\n", colorSeverity(c.severity), c.count)
		}
	}
}

func displayTopFindings(findings []types.Finding, limit int) {
	if len(findings) == 0 {
		return
	}

	sorted := make([]types.Finding, len(findings))
	copy(sorted, findings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Severity.Rank() > sorted[j].Severity.Rank()
	})

	if len(sorted) > limit {
		sorted = sorted[:limit]
	}

	fmt.Println()
	for _, f := range sorted {
		fmt.Printf("  %s %s %s\n", colorSeverity(f.Severity), f.Method, f.URL)
		fmt.Printf("    %s\n", truncate(f.Description, 120))
		if f.Evidence != "" {
			fmt.Printf("    Evidence: %s\n", truncate(f.Evidence, 100))
		}
		if f.Remediation != "" {
			fmt.Printf("    Fix: %s\n", truncate(f.Remediation, 120))
		}
	}
	if len(findings) > limit {
		fmt.Printf("  ... and %d more (use --output json for the full report)\n", len(findings)-limit)
	}
}

func displayNotifications(notes []types.RegulatoryNotification) {
	if len(notes) == 0 {
		return
	}

	fmt.Println()
	color.New(color.FgRed, color.Bold).Println("  Regulator notification obligations")
	for _, n := range notes {
		fmt.Printf("    • %s (%s): %s\n", n.Authority, n.Regulation, n.Trigger)
		fmt.Printf("      Window: %s, %d exposures across %d endpoints\n",
			n.NotificationWindow, n.ExposureCount, n.AffectedEndpoints)
	}
}

func displayRecommendations(recs []types.Recommendation) {
	if len(recs) == 0 {
		return
	}

	sorted := make([]types.Recommendation, len(recs))
	copy(sorted, recs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	fmt.Println()
	fmt.Println("  Recommendations")
	for _, r := range sorted {
		line := fmt.Sprintf("    %d. [%s] %s", r.Priority, r.Category, r.Action)
		if r.Count > 0 {
			line += fmt.Sprintf(" (%d affected)", r.Count)
		}
		fmt.Println(line)
	}
}

func displayDomainInfo(info *types.DomainInfo) {
	if info == nil {
		return
	}

	fmt.Println()
	fmt.Printf("  Domain: %s\n", info.Domain)
	if info.Registrar != "" {
		fmt.Printf("    Registrar: %s\n", info.Registrar)
	}
	if info.Org != "" {
		line := info.Org
		if info.Country != "" {
			line += ", " + info.Country
		}
		fmt.Printf("    Owner:     %s\n", line)
	}
	if info.CreatedDate != "" {
		fmt.Printf("    Created:   %s\n", info.CreatedDate)
	}
	if info.ExpiresDate != "" {
		fmt.Printf("    Expires:   %s\n", info.ExpiresDate)
	}
	if len(info.NameServers) > 0 {
		fmt.Printf("    NS:        %s\n", strings.Join(info.NameServers, ", "))
	}
	if len(info.Addresses) > 0 {
		fmt.Printf("    Addresses: %s\n", strings.Join(info.Addresses, ", "))
	}
	if info.CNAME != "" {
		fmt.Printf("    CNAME:     %s\n", info.CNAME)
	}
}

func colorSeverity(severity types.Severity) string {
	switch severity {
	case types.SeverityCritical:
		return color.New(color.FgRed, color.Bold).Sprint("CRITICAL")
	case types.SeverityHigh:
		return color.New(color.FgRed).Sprint("HIGH")
	case types.SeverityMedium:
		return color.New(color.FgYellow).Sprint("MEDIUM")
	case types.SeverityLow:
		return color.New(color.FgCyan).Sprint("LOW")
	case types.SeverityInfo:
		return color.New(color.FgWhite).Sprint("INFO")
	default:
		return string(severity)
	}
}

func colorUAVGStatus(status string) string {
	switch status {
	case types.NLStatusCompliant:
		return color.GreenString(statusText(status))
	case types.NLStatusRequiresAttention:
		return color.YellowString(statusText(status))
	case types.NLStatusCriticalViolation:
		return color.New(color.FgRed, color.Bold).Sprint(strings.ToUpper(statusText(status)))
	default:
		return statusText(status)
	}
}

func colorAIStatus(status string) string {
	switch status {
	case types.AIStatusNone:
		return color.GreenString(statusText(status))
	case types.AIStatusDetected:
		return color.YellowString(statusText(status))
	case types.AIStatusHighRisk, types.AIStatusProhibited:
		return color.New(color.FgRed, color.Bold).Sprint(strings.ToUpper(statusText(status)))
	default:
		return statusText(status)
	}
}

func statusText(status string) string {
	return strings.ReplaceAll(status, "_", " ")
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func formatSeconds(seconds float64) string {
	if seconds < 60 {
		return fmt.Sprintf("%.1fs", seconds)
	}
	d := time.Duration(seconds * float64(time.Second))
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatAge(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}
