package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apiward/apiward/pkg/types"
)

func TestAIActClassifyPath(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want []AIClassification
	}{
		{
			name: "plain health endpoint",
			url:  "https://api.example.com/health",
			want: nil,
		},
		{
			name: "generic ml endpoint",
			url:  "https://api.example.com/ml/predict",
			want: []AIClassification{AISystem},
		},
		{
			name: "chatbot endpoint",
			url:  "https://api.example.com/v1/chatbot/messages",
			want: []AIClassification{AISystem},
		},
		{
			name: "credit scoring",
			url:  "https://api.example.com/credit-score/applicants",
			want: []AIClassification{AIHighRisk},
		},
		{
			name: "recruitment screening",
			url:  "https://api.example.com/recruitment/screen",
			want: []AIClassification{AIHighRisk},
		},
		{
			name: "social scoring",
			url:  "https://api.example.com/social-scoring/citizens",
			want: []AIClassification{AIProhibitedPractice},
		},
		{
			name: "emotion recognition",
			url:  "https://api.example.com/emotion-recognition/workplace",
			want: []AIClassification{AIProhibitedPractice},
		},
		{
			name: "prohibited and generic on one path",
			url:  "https://api.example.com/ai/social-scoring",
			want: []AIClassification{AIProhibitedPractice, AISystem},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewAIActDetector()
			matches := d.ClassifyPath(tt.url)

			var got []AIClassification
			for _, m := range matches {
				got = append(got, m.Classification)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAIActMatchDetail(t *testing.T) {
	d := NewAIActDetector()

	matches := d.ClassifyPath("https://api.example.com/biometrics/verify")
	require.Len(t, matches, 1)

	m := matches[0]
	assert.Equal(t, AIHighRisk, m.Classification)
	assert.Equal(t, types.SeverityHigh, m.Severity)
	assert.NotEmpty(t, m.Obligation)
	assert.Contains(t, m.Matched, "biometric")
}

func TestAIActInspectContent(t *testing.T) {
	d := NewAIActDetector()

	body := `{"decision":"rejected","confidence_score":0.93,"automated_decision":true}`
	matches := d.InspectContent(body)

	var indicators []string
	for _, m := range matches {
		indicators = append(indicators, m.Indicator)
		assert.NotEmpty(t, m.Evidence)
	}
	assert.Contains(t, indicators, "confidence_score")
	assert.Contains(t, indicators, "automated_decision")
	assert.NotContains(t, indicators, "human_review")
}

func TestAIActInspectContentClean(t *testing.T) {
	d := NewAIActDetector()

	assert.Empty(t, d.InspectContent(`{"items":[],"total":0}`))
	assert.Empty(t, d.InspectContent(""))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, types.AIStatusProhibited, StatusFor(AIProhibitedPractice))
	assert.Equal(t, types.AIStatusHighRisk, StatusFor(AIHighRisk))
	assert.Equal(t, types.AIStatusDetected, StatusFor(AISystem))
	assert.Equal(t, types.AIStatusNone, StatusFor(AIClassification("unknown")))
}
