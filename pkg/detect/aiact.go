package detect

import (
	"regexp"

	"github.com/apiward/apiward/pkg/types"
)

// AIClassification is the EU AI Act risk class inferred for an endpoint.
type AIClassification string

const (
	AISystem             AIClassification = "ai_system"
	AIHighRisk           AIClassification = "high_risk_ai"
	AIProhibitedPractice AIClassification = "prohibited_practice"
)

// AIPathRule classifies an endpoint by its URL path.
type AIPathRule struct {
	Classification AIClassification
	Pattern        *regexp.Regexp
	Obligation     string
	Severity       types.Severity
}

// AIPathMatch is one classification hit for an endpoint URL.
type AIPathMatch struct {
	Classification AIClassification
	Obligation     string
	Severity       types.Severity
	Matched        string
}

// AIContentMatch is one transparency-relevant language hit in a response.
type AIContentMatch struct {
	Indicator string
	Evidence  string
}

// AIActDetector classifies endpoints and response content against the AI
// Act rule tables.
type AIActDetector struct {
	pathRules    []AIPathRule
	contentRules []struct {
		indicator string
		pattern   *regexp.Regexp
	}
}

// NewAIActDetector builds the rule tables. Rules are ordered most severe
// first so the strongest classification wins when several patterns match.
func NewAIActDetector() *AIActDetector {
	return &AIActDetector{
		pathRules: []AIPathRule{
			{
				Classification: AIProhibitedPractice,
				Pattern:        regexp.MustCompile(`(?i)/(social[\-_]?scor\w*|emotion[\-_]?recogni\w*|subliminal|predictive[\-_]?polic\w*|facial[\-_]?scrap\w*)`),
				Obligation:     "immediate review: practice may be prohibited under the AI Act",
				Severity:       types.SeverityCritical,
			},
			{
				Classification: AIHighRisk,
				Pattern:        regexp.MustCompile(`(?i)/(credit[\-_]?scor\w*|loan|hiring|recruit\w*|biometric\w*|medical[\-_]?diagnos\w*|criminal|asylum|visa|welfare|exam[\-_]?grad\w*|law[\-_]?enforce\w*)`),
				Obligation:     "human oversight and conformity assessment required for high-risk AI",
				Severity:       types.SeverityHigh,
			},
			{
				Classification: AISystem,
				Pattern:        regexp.MustCompile(`(?i)/(ai|ml|model|predict\w*|inference|recommend\w*|classif\w*|nlp|chat(bot)?|llm|gpt|vision|sentiment)`),
				Obligation:     "transparency obligations apply: users must know they interact with AI",
				Severity:       types.SeverityMedium,
			},
		},
		contentRules: []struct {
			indicator string
			pattern   *regexp.Regexp
		}{
			{"decision_explanation", regexp.MustCompile(`(?i)(decision[\s_\-]?explanation|why[\s_]this[\s_]decision|explanation[\s_\-]?of[\s_\-]?decision)`)},
			{"confidence_score", regexp.MustCompile(`(?i)(confidence[\s_\-]?(score|level)|probability[\s_\-]?score|model[\s_\-]?confidence)`)},
			{"human_review", regexp.MustCompile(`(?i)(human[\s_\-]?(review|oversight|in[\s_\-]?the[\s_\-]?loop))`)},
			{"bias_assessment", regexp.MustCompile(`(?i)(bias[\s_\-]?(assessment|check|score)|fairness[\s_\-]?metric)`)},
			{"automated_decision", regexp.MustCompile(`(?i)(automated[\s_\-]?decision|algorithmic[\s_\-]?decision|auto[\s_\-]?reject)`)},
		},
	}
}

// ClassifyPath returns every AI Act classification matching the endpoint
// URL, strongest first.
func (d *AIActDetector) ClassifyPath(url string) []AIPathMatch {
	var matches []AIPathMatch
	for _, rule := range d.pathRules {
		if m := rule.Pattern.FindString(url); m != "" {
			matches = append(matches, AIPathMatch{
				Classification: rule.Classification,
				Obligation:     rule.Obligation,
				Severity:       rule.Severity,
				Matched:        m,
			})
		}
	}
	return matches
}

// InspectContent flags transparency-relevant decision language in a
// response body.
func (d *AIActDetector) InspectContent(body string) []AIContentMatch {
	if body == "" {
		return nil
	}

	var matches []AIContentMatch
	for _, rule := range d.contentRules {
		if loc := rule.pattern.FindStringIndex(body); loc != nil {
			matches = append(matches, AIContentMatch{
				Indicator: rule.indicator,
				Evidence:  evidenceWindow(body, loc[0], loc[1]),
			})
		}
	}
	return matches
}

// StatusFor maps a classification to the scan-level AI Act status value.
func StatusFor(c AIClassification) string {
	switch c {
	case AIProhibitedPractice:
		return types.AIStatusProhibited
	case AIHighRisk:
		return types.AIStatusHighRisk
	case AISystem:
		return types.AIStatusDetected
	default:
		return types.AIStatusNone
	}
}
