package detect

import (
	"regexp"
	"strings"

	"github.com/apiward/apiward/pkg/types"
)

// VulnClass identifies a vulnerability test family.
type VulnClass string

const (
	VulnSQLInjection     VulnClass = "sql_injection"
	VulnXSS              VulnClass = "xss"
	VulnPathTraversal    VulnClass = "path_traversal"
	VulnCommandInjection VulnClass = "command_injection"
)

// VulnPayload is one benign test input. Payloads are detection probes only:
// they trigger an error message or a reflection, never a side effect.
type VulnPayload struct {
	Class       VulnClass
	Value       string
	Description string
}

// VulnDetector holds the payload tables and the response-content indicators
// that confirm an issue after a payload was sent.
type VulnDetector struct {
	payloads   []VulnPayload
	indicators map[VulnClass][]*regexp.Regexp
	// keywords gate the indicator regexes: a response without any keyword
	// for a class is never scanned with that class's regexes.
	keywords map[VulnClass][]string
}

// NewVulnDetector builds the payload and indicator tables.
func NewVulnDetector() *VulnDetector {
	return &VulnDetector{
		payloads:   vulnPayloads(),
		indicators: vulnIndicators(),
		keywords:   vulnKeywords(),
	}
}

func vulnPayloads() []VulnPayload {
	var payloads []VulnPayload

	sqli := []struct {
		value string
		desc  string
	}{
		{`' OR '1'='1`, "Classic string-context boolean test"},
		{`1' AND '1'='2`, "Boolean false branch"},
		{`'; --`, "Quote break with comment"},
		{`1 UNION SELECT NULL--`, "Union column probe"},
	}
	for _, p := range sqli {
		payloads = append(payloads, VulnPayload{Class: VulnSQLInjection, Value: p.value, Description: p.desc})
	}

	xss := []struct {
		value string
		desc  string
	}{
		{`<script>alert('apiward')</script>`, "Script tag reflection"},
		{`"><img src=x onerror=alert('apiward')>`, "Attribute breakout"},
		{`javascript:alert('apiward')`, "URI scheme reflection"},
	}
	for _, p := range xss {
		payloads = append(payloads, VulnPayload{Class: VulnXSS, Value: p.value, Description: p.desc})
	}

	traversal := []struct {
		value string
		desc  string
	}{
		{`../../../etc/passwd`, "Relative traversal"},
		{`..%2f..%2f..%2fetc%2fpasswd`, "URL-encoded traversal"},
		{`....//....//....//etc/passwd`, "Filter-evasion traversal"},
	}
	for _, p := range traversal {
		payloads = append(payloads, VulnPayload{Class: VulnPathTraversal, Value: p.value, Description: p.desc})
	}

	cmdi := []struct {
		value string
		desc  string
	}{
		{`; echo apiward1337`, "Semicolon chain echo"},
		{`| echo apiward1337`, "Pipe chain echo"},
		{`$(echo apiward1337)`, "Subshell echo"},
	}
	for _, p := range cmdi {
		payloads = append(payloads, VulnPayload{Class: VulnCommandInjection, Value: p.value, Description: p.desc})
	}

	return payloads
}

func vulnIndicators() map[VulnClass][]*regexp.Regexp {
	return map[VulnClass][]*regexp.Regexp{
		VulnSQLInjection: {
			regexp.MustCompile(`(?i)sql\s+syntax`),
			regexp.MustCompile(`(?i)mysql_fetch`),
			regexp.MustCompile(`(?i)you have an error in your sql`),
			regexp.MustCompile(`ORA-[0-9]{5}`),
			regexp.MustCompile(`(?i)postgresql.*error`),
			regexp.MustCompile(`(?i)sqlite3?\.(operational|integrity)error`),
			regexp.MustCompile(`(?i)unclosed quotation mark`),
			regexp.MustCompile(`(?i)syntax error at or near`),
		},
		VulnXSS: {
			regexp.MustCompile(`<script>alert\('apiward'\)</script>`),
			regexp.MustCompile(`onerror=alert\('apiward'\)`),
			regexp.MustCompile(`javascript:alert\('apiward'\)`),
		},
		VulnPathTraversal: {
			regexp.MustCompile(`root:.*:0:0:`),
			regexp.MustCompile(`(?i)\[boot loader\]`),
			regexp.MustCompile(`/bin/(ba)?sh`),
		},
		VulnCommandInjection: {
			regexp.MustCompile(`apiward1337`),
			regexp.MustCompile(`uid=[0-9]+.*gid=[0-9]+`),
		},
	}
}

func vulnKeywords() map[VulnClass][]string {
	return map[VulnClass][]string{
		VulnSQLInjection:     {"sql", "ora-", "mysql", "postgres", "sqlite", "quotation", "syntax"},
		VulnXSS:              {"alert('apiward')", "alert(\"apiward\")"},
		VulnPathTraversal:    {"root:", "[boot", "/bin/"},
		VulnCommandInjection: {"apiward1337", "uid="},
	}
}

// Payloads returns the full payload table in fixed order.
func (d *VulnDetector) Payloads() []VulnPayload {
	return d.payloads
}

// Inspect scans a response body received after sending a payload of the
// given class. It returns an evidence excerpt around the first indicator
// hit. The keyword pre-check keeps the common clean-response path cheap.
func (d *VulnDetector) Inspect(class VulnClass, body string) (string, bool) {
	if body == "" {
		return "", false
	}

	lower := strings.ToLower(body)
	hasKeyword := false
	for _, kw := range d.keywords[class] {
		if strings.Contains(lower, kw) {
			hasKeyword = true
			break
		}
	}
	if !hasKeyword {
		return "", false
	}

	for _, re := range d.indicators[class] {
		if loc := re.FindStringIndex(body); loc != nil {
			return evidenceWindow(body, loc[0], loc[1]), true
		}
	}
	return "", false
}

// Severity maps a class to its reporting severity.
func (d *VulnDetector) Severity(class VulnClass) types.Severity {
	switch class {
	case VulnSQLInjection, VulnCommandInjection:
		return types.SeverityCritical
	case VulnPathTraversal:
		return types.SeverityHigh
	case VulnXSS:
		return types.SeverityHigh
	default:
		return types.SeverityMedium
	}
}

// Remediation returns the operator-facing fix guidance for a class.
func Remediation(class VulnClass) string {
	switch class {
	case VulnSQLInjection:
		return "Use parameterized queries or prepared statements; never interpolate user input into SQL."
	case VulnXSS:
		return "Encode output for its HTML context and set a restrictive Content-Security-Policy."
	case VulnPathTraversal:
		return "Canonicalize paths and reject any input resolving outside the allowed root."
	case VulnCommandInjection:
		return "Never pass user input to a shell; use exec APIs with argument arrays."
	default:
		return "Validate and sanitize all user-controlled input."
	}
}

// evidenceWindow extracts the indicator hit with surrounding context,
// bounded to 50 characters on each side.
func evidenceWindow(body string, start, end int) string {
	from := start - 50
	if from < 0 {
		from = 0
	}
	to := end + 50
	if to > len(body) {
		to = len(body)
	}
	excerpt := body[from:to]
	if from > 0 {
		excerpt = "..." + excerpt
	}
	if to < len(body) {
		excerpt = excerpt + "..."
	}
	return excerpt
}
