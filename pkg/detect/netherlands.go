package detect

import (
	"regexp"

	"github.com/apiward/apiward/pkg/types"
)

// Netherlands-specific rules implementing the UAVG (the Dutch GDPR
// implementation act) checks: BSN detection with checksum confirmation,
// Dutch contact/location identifiers, and data-subject-rights language.

// NLMatch is one Dutch-compliance hit in a response body.
type NLMatch struct {
	Type         string
	Severity     types.Severity
	Count        int
	Sample       string
	Confirmed    bool
	FindingType  types.FindingType
	GDPRCategory string
}

// NLDetector scans response bodies against the Netherlands rule table.
type NLDetector struct {
	bsnCandidate *regexp.Regexp
	postalCode   *regexp.Regexp
	kvkNumber    *regexp.Regexp
	dutchPhone   *regexp.Regexp
	rightsTerms  []string
	rightsRe     *regexp.Regexp
}

// NewNLDetector builds the rule table.
func NewNLDetector() *NLDetector {
	rights := []string{
		"recht op inzage",
		"recht op vergetelheid",
		"recht op rectificatie",
		"recht op dataportabiliteit",
		"recht van bezwaar",
		"right to access",
		"right to erasure",
		"right to rectification",
		"data portability",
		"right to object",
	}
	return &NLDetector{
		bsnCandidate: regexp.MustCompile(`\b[0-9]{9}\b`),
		postalCode:   regexp.MustCompile(`\b[1-9][0-9]{3}\s?[A-Z]{2}\b`),
		kvkNumber:    regexp.MustCompile(`(?i)\bkvk\w*["'\s:.#\-]*([0-9]{8})\b`),
		dutchPhone:   regexp.MustCompile(`(?:\+31|0031|\b0)[\s\-]?[1-9](?:[\s\-]?[0-9]){8}\b`),
		rightsTerms:  rights,
		rightsRe:     compileRights(rights),
	}
}

func compileRights(terms []string) *regexp.Regexp {
	pattern := `(?i)(`
	for i, t := range terms {
		if i > 0 {
			pattern += `|`
		}
		pattern += regexp.QuoteMeta(t)
	}
	pattern += `)`
	return regexp.MustCompile(pattern)
}

// ValidateBSN runs the Dutch 11-proef over a candidate BSN. The first eight
// digits weigh 9 down to 2, the ninth weighs -1; a structurally valid BSN
// has a weighted sum divisible by 11. Input must be exactly nine digits.
func ValidateBSN(s string) bool {
	if len(s) != 9 {
		return false
	}
	sum := 0
	for i, r := range s {
		if r < '0' || r > '9' {
			return false
		}
		digit := int(r - '0')
		if i == 8 {
			sum -= digit
		} else {
			sum += digit * (9 - i)
		}
	}
	return sum%11 == 0
}

// Detect returns every Dutch-compliance hit in body. BSN hits are reported
// only when the checksum confirms them.
func (d *NLDetector) Detect(body string) []NLMatch {
	if body == "" {
		return nil
	}

	var matches []NLMatch

	candidates := d.bsnCandidate.FindAllString(body, -1)
	confirmed := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if ValidateBSN(c) {
			confirmed = append(confirmed, c)
		}
	}
	if len(confirmed) > 0 {
		matches = append(matches, NLMatch{
			Type:         "bsn",
			Severity:     types.SeverityCritical,
			Count:        len(confirmed),
			Sample:       Redact(confirmed[0]),
			Confirmed:    true,
			FindingType:  types.FindingNLUAVGCritical,
			GDPRCategory: "national_identifier",
		})
	}

	if found := d.postalCode.FindAllString(body, -1); len(found) > 0 {
		matches = append(matches, NLMatch{
			Type:         "postal_code",
			Severity:     types.SeverityLow,
			Count:        len(found),
			Sample:       Redact(found[0]),
			FindingType:  types.FindingNLUAVGPII,
			GDPRCategory: "location_data",
		})
	}

	if found := d.kvkNumber.FindAllStringSubmatch(body, -1); len(found) > 0 {
		matches = append(matches, NLMatch{
			Type:         "kvk_number",
			Severity:     types.SeverityLow,
			Count:        len(found),
			Sample:       Redact(found[0][1]),
			FindingType:  types.FindingNLUAVGPII,
			GDPRCategory: "business_identifier",
		})
	}

	if found := d.dutchPhone.FindAllString(body, -1); len(found) > 0 {
		matches = append(matches, NLMatch{
			Type:         "dutch_phone",
			Severity:     types.SeverityMedium,
			Count:        len(found),
			Sample:       Redact(found[0]),
			FindingType:  types.FindingNLUAVGPII,
			GDPRCategory: "contact_data",
		})
	}

	if loc := d.rightsRe.FindStringIndex(body); loc != nil {
		matches = append(matches, NLMatch{
			Type:         "data_subject_rights",
			Severity:     types.SeverityInfo,
			Count:        len(d.rightsRe.FindAllString(body, -1)),
			Sample:       evidenceWindow(body, loc[0], loc[1]),
			FindingType:  types.FindingNLUAVGRights,
			GDPRCategory: "rights_language",
		})
	}

	return matches
}
