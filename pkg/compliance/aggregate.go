// Package compliance rolls per-endpoint findings up into the scan-level
// summary: the AI Act status, the Netherlands UAVG status with any mandated
// notification obligation, and a ranked remediation list.
package compliance

import (
	"fmt"

	"github.com/apiward/apiward/pkg/detect"
	"github.com/apiward/apiward/pkg/types"
)

// aiStatusRank orders the scan-level AI statuses least to most severe.
var aiStatusRank = map[string]int{
	types.AIStatusNone:       0,
	types.AIStatusDetected:   1,
	types.AIStatusHighRisk:   2,
	types.AIStatusProhibited: 3,
}

// Aggregate computes the compliance summary in place. It only reads the
// collections the probe phase filled in, so it is safe to call on restored
// (resumed) results as well as fresh ones.
func Aggregate(result *types.ScanResult) {
	result.AIActStatus = aiStatus(result.AIActFindings)
	result.NetherlandsUAVGStatus, result.RegulatoryNotifications = nlStatus(result)
	result.Recommendations = recommendations(result)
}

// aiStatus picks the most severe classification across all AI findings.
// Transparency hits in response content count as evidence of an AI system
// even without a path classification.
func aiStatus(findings []types.Finding) string {
	status := types.AIStatusNone
	for _, f := range findings {
		var s string
		switch f.Type {
		case types.FindingAITransparency:
			s = types.AIStatusDetected
		default:
			s = detect.StatusFor(detect.AIClassification(f.Metadata["classification"]))
		}
		if aiStatusRank[s] > aiStatusRank[status] {
			status = s
		}
	}
	return status
}

func nlStatus(result *types.ScanResult) (string, []types.RegulatoryNotification) {
	notifications := result.RegulatoryNotifications

	var critical, other int
	for _, f := range result.Findings {
		switch f.Type {
		case types.FindingNLUAVGCritical:
			critical++
		case types.FindingNLUAVGPII, types.FindingNLUAVGRights:
			other++
		}
	}

	if critical == 0 {
		if other > 0 {
			return types.NLStatusRequiresAttention, notifications
		}
		return types.NLStatusCompliant, notifications
	}

	exposures, endpoints := bsnExposure(result)
	notifications = append(notifications, types.RegulatoryNotification{
		Authority:          "Autoriteit Persoonsgegevens",
		Regulation:         "UAVG / GDPR Article 33",
		Trigger:            "Confirmed BSN exposure in API responses",
		NotificationWindow: "72 hours",
		ExposureCount:      exposures,
		AffectedEndpoints:  endpoints,
		Required:           true,
	})
	return types.NLStatusCriticalViolation, notifications
}

// bsnExposure totals confirmed BSN instances and the endpoints leaking
// them. The PII table carries per-body match counts; the finding list is
// the fallback when only restored findings are available.
func bsnExposure(result *types.ScanResult) (count, endpoints int) {
	urls := make(map[string]struct{})

	for _, e := range result.PIIExposures {
		if e.PIIType != "bsn" {
			continue
		}
		count += e.Matches
		urls[e.URL] = struct{}{}
	}
	if count > 0 {
		return count, len(urls)
	}

	for _, f := range result.Findings {
		if f.Type == types.FindingNLUAVGCritical {
			count++
			urls[f.URL] = struct{}{}
		}
	}
	return count, len(urls)
}

// recommendations builds the ranked remediation list. Every entry is driven
// by what the scan actually observed: finding counts for detection
// categories, the analysis blocks for transport and traffic policy.
func recommendations(result *types.ScanResult) []types.Recommendation {
	counts := map[types.FindingType]int{}
	for _, f := range result.Findings {
		counts[f.Type]++
	}

	var recs []types.Recommendation
	add := func(category, action string, count int) {
		recs = append(recs, types.Recommendation{
			Priority: len(recs) + 1,
			Category: category,
			Action:   action,
			Count:    count,
		})
	}

	if n := counts[types.FindingPIIExposure]; n > 0 {
		add("pii_protection",
			fmt.Sprintf("Mask or remove personal data from API responses; %d exposure finding(s) recorded", n), n)
	}
	if n := counts[types.FindingSSLError]; n > 0 || !result.SSLInfo.Enabled {
		add("transport_security",
			"Serve the API exclusively over TLS with a valid, unexpired certificate", n)
	}
	if result.RateLimiting.Checked && !result.RateLimiting.Enabled {
		add("rate_limiting",
			"Enable rate limiting to protect the API against abuse and enumeration", 0)
	}
	if n := len(result.CORSAnalysis.Issues); n > 0 {
		add("cors_policy",
			"Restrict Access-Control-Allow-Origin to an explicit allowlist of trusted origins", n)
	}
	if n := counts[types.FindingVulnerability]; n > 0 {
		add("vulnerability_remediation",
			fmt.Sprintf("Validate and sanitize all request input; %d injection indicator(s) confirmed", n), n)
	}
	if n := counts[types.FindingSecurityHeader]; n > 0 {
		add("security_headers",
			fmt.Sprintf("Add the %d missing security response header(s)", n), n)
	}

	if len(recs) == 0 {
		add("good_practice",
			"No significant issues found; maintain current controls and re-scan after API changes", 0)
	}
	return recs
}
