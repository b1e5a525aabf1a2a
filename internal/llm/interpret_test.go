// internal/llm/interpret_test.go
package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"insight-agent/internal/models"
)

func TestInterpret(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected models.StructuredAnswer
	}{
		{
			name: "clean JSON object",
			raw:  `{"insight": "Revenue is trending up.", "sql": "SELECT 1", "chart_type": "line"}`,
			expected: models.StructuredAnswer{
				Insight:   "Revenue is trending up.",
				SQL:       "SELECT 1",
				ChartType: "line",
			},
		},
		{
			name: "JSON embedded in prose",
			raw: "Here is my answer:\n```json\n" +
				`{"insight": "Orders doubled.", "sql": "SELECT count(*) FROM orders", "chart_type": "bar"}` +
				"\n```\nLet me know if you need more.",
			expected: models.StructuredAnswer{
				Insight:   "Orders doubled.",
				SQL:       "SELECT count(*) FROM orders",
				ChartType: "bar",
			},
		},
		{
			name: "null sql and chart_type",
			raw:  `{"insight": "No query needed.", "sql": null, "chart_type": null}`,
			expected: models.StructuredAnswer{
				Insight: "No query needed.",
			},
		},
		{
			name: "missing optional keys",
			raw:  `{"insight": "Just an observation."}`,
			expected: models.StructuredAnswer{
				Insight: "Just an observation.",
			},
		},
		{
			name: "chart type normalized to lower case",
			raw:  `{"insight": "x", "chart_type": " Line "}`,
			expected: models.StructuredAnswer{
				Insight:   "x",
				ChartType: "line",
			},
		},
		{
			name: "plain refusal falls back to insight-only",
			raw:  "Sorry, I cannot answer.",
			expected: models.StructuredAnswer{
				Insight:  "Sorry, I cannot answer.",
				Fallback: true,
			},
		},
		{
			name: "object without required insight falls back",
			raw:  `{"sql": "SELECT 1"}`,
			expected: models.StructuredAnswer{
				Insight:  `{"sql": "SELECT 1"}`,
				Fallback: true,
			},
		},
		{
			name: "wrongly typed insight falls back",
			raw:  `{"insight": 42}`,
			expected: models.StructuredAnswer{
				Insight:  `{"insight": 42}`,
				Fallback: true,
			},
		},
		{
			name: "braces inside strings do not break extraction",
			raw:  `Note: {"insight": "brace } in text", "sql": "SELECT '{'"}`,
			expected: models.StructuredAnswer{
				Insight: "brace } in text",
				SQL:     "SELECT '{'",
			},
		},
		{
			name: "empty reply falls back",
			raw:  "",
			expected: models.StructuredAnswer{
				Insight:  "",
				Fallback: true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Interpret(tt.raw))
		})
	}
}

func TestExtractJSONObject(t *testing.T) {
	assert.Equal(t, `{"a": 1}`, extractJSONObject(`prefix {"a": 1} suffix`))
	assert.Equal(t, "", extractJSONObject("no object here"))
	assert.Equal(t, "", extractJSONObject("{unbalanced"))
}
