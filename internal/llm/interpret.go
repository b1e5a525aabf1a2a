// internal/llm/interpret.go
package llm

import (
	"encoding/json"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"insight-agent/internal/common/metrics"
	"insight-agent/internal/models"
)

// replySchema is the shape contract for structured model output.
// sql and chart_type may be null or absent; insight must be a string.
const replySchema = `{
	"type": "object",
	"properties": {
		"insight":    {"type": "string"},
		"sql":        {"type": ["string", "null"]},
		"chart_type": {"type": ["string", "null"]}
	},
	"required": ["insight"]
}`

var compiledReplySchema = gojsonschema.NewStringLoader(replySchema)

type structuredReply struct {
	Insight   string  `json:"insight"`
	SQL       *string `json:"sql"`
	ChartType *string `json:"chart_type"`
}

// Interpret parses a raw model reply into a StructuredAnswer. Parsing is
// tolerant: a JSON object embedded in surrounding prose is extracted, and any
// reply that yields no valid object becomes the insight-only fallback.
// Interpret never fails.
func Interpret(raw string) models.StructuredAnswer {
	if answer, ok := tryParse(raw); ok {
		return answer
	}

	if candidate := extractJSONObject(raw); candidate != "" {
		if answer, ok := tryParse(candidate); ok {
			return answer
		}
	}

	metrics.ModelReplyFallbacks.Inc()
	return models.StructuredAnswer{
		Insight:  strings.TrimSpace(raw),
		Fallback: true,
	}
}

func tryParse(s string) (models.StructuredAnswer, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s[0] != '{' {
		return models.StructuredAnswer{}, false
	}

	result, err := gojsonschema.Validate(compiledReplySchema, gojsonschema.NewStringLoader(s))
	if err != nil || !result.Valid() {
		return models.StructuredAnswer{}, false
	}

	var reply structuredReply
	if err := json.Unmarshal([]byte(s), &reply); err != nil {
		return models.StructuredAnswer{}, false
	}

	answer := models.StructuredAnswer{Insight: reply.Insight}
	if reply.SQL != nil {
		answer.SQL = strings.TrimSpace(*reply.SQL)
	}
	if reply.ChartType != nil {
		answer.ChartType = strings.ToLower(strings.TrimSpace(*reply.ChartType))
	}
	return answer, true
}

// extractJSONObject returns the first balanced top-level {...} region of s,
// or "". Braces inside JSON strings are skipped.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
