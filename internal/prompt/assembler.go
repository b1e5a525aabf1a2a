// internal/prompt/assembler.go
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"insight-agent/internal/models"
)

// SystemInstructions is the fixed role prompt. The JSON contract with keys
// insight, sql, chart_type is what the interpreter parses the reply against.
const SystemInstructions = "You are an expert warehouse analyst working with an analytical SQL database. " +
	"Given database metadata context and a business question, produce: " +
	"1) a concise business insight in simple English, 2) one read-only SQL query to answer it, " +
	"3) a suggested chart type. Only generate valid SQL; NEVER drop or modify data. " +
	"Respond with a JSON object with keys: insight, sql, chart_type (one of line, bar, area, scatter, table)."

// Assembler builds a model prompt from retrieved context. Pure and
// deterministic: identical inputs always yield identical prompts.
type Assembler struct {
	maxContextChars int
}

func NewAssembler(maxContextChars int) *Assembler {
	if maxContextChars <= 0 {
		maxContextChars = 12000
	}
	return &Assembler{maxContextChars: maxContextChars}
}

// Assemble bounds total context size by dropping lowest-ranked items first.
// The top item alone is truncated rather than dropped so the prompt never
// loses all grounding to the budget.
func (a *Assembler) Assemble(question string, items []models.ContextItem) models.Prompt {
	kept := make([]models.ContextItem, 0, len(items))
	used := 0
	for i, item := range items {
		if used+len(item.Text) > a.maxContextChars {
			if i == 0 {
				item.Text = truncate(item.Text, a.maxContextChars)
				kept = append(kept, item)
			}
			break
		}
		used += len(item.Text)
		kept = append(kept, item)
	}

	return models.Prompt{
		SystemInstructions: SystemInstructions,
		ContextItems:       kept,
		Question:           question,
	}
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// Render flattens a prompt into the text sent to the model service.
func Render(p models.Prompt) string {
	var parts []string

	parts = append(parts, "METADATA CONTEXT:")
	if len(p.ContextItems) == 0 {
		parts = append(parts, "(no metadata context available)")
	}
	for _, item := range p.ContextItems {
		parts = append(parts, fmt.Sprintf("[%s] %s", item.Source, item.Text))
	}

	parts = append(parts, "", "QUESTION:", p.Question)

	return strings.Join(parts, "\n")
}
