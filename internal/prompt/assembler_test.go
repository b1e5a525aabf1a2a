// internal/prompt/assembler_test.go
package prompt

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight-agent/internal/models"
)

func item(text string, score float64) models.ContextItem {
	return models.ContextItem{Source: models.SourceVector, Text: text, Score: score}
}

func TestAssembler_Deterministic(t *testing.T) {
	a := NewAssembler(1000)
	items := []models.ContextItem{item("first", 0.9), item("second", 0.5)}

	p1 := a.Assemble("total revenue?", items)
	p2 := a.Assemble("total revenue?", items)

	assert.Equal(t, p1, p2)
	assert.Equal(t, SystemInstructions, p1.SystemInstructions)
	assert.Equal(t, "total revenue?", p1.Question)
}

func TestAssembler_DropsLowestRankedFirst(t *testing.T) {
	a := NewAssembler(25)
	items := []models.ContextItem{
		item("ten chars..", 0.9), // 11 chars
		item("ten chars..", 0.7), // fits: 22 total
		item("ten chars..", 0.5), // would exceed 25
	}

	p := a.Assemble("q", items)
	require.Len(t, p.ContextItems, 2)
	assert.Equal(t, 0.9, p.ContextItems[0].Score)
	assert.Equal(t, 0.7, p.ContextItems[1].Score)
}

func TestAssembler_TruncatesOversizedTopItem(t *testing.T) {
	a := NewAssembler(10)
	items := []models.ContextItem{item(strings.Repeat("x", 50), 0.9)}

	p := a.Assemble("q", items)
	require.Len(t, p.ContextItems, 1)
	assert.Len(t, p.ContextItems[0].Text, 10)
}

func TestAssembler_TruncationKeepsValidUTF8(t *testing.T) {
	// 3-byte runes: a 10-byte budget lands mid-rune and must back off.
	a := NewAssembler(10)
	items := []models.ContextItem{item(strings.Repeat("日", 8), 0.9)}

	p := a.Assemble("q", items)
	require.Len(t, p.ContextItems, 1)
	assert.True(t, utf8.ValidString(p.ContextItems[0].Text))
	assert.Len(t, p.ContextItems[0].Text, 9)
}

func TestRender(t *testing.T) {
	a := NewAssembler(1000)
	p := a.Assemble("what sells best?", []models.ContextItem{
		item("Table SALES.ORDERS", 0.9),
		{Source: models.SourceGraph, Text: "Column TOTAL_SALES"},
	})

	text := Render(p)
	assert.Contains(t, text, "METADATA CONTEXT:")
	assert.Contains(t, text, "[vector] Table SALES.ORDERS")
	assert.Contains(t, text, "[graph] Column TOTAL_SALES")
	assert.Contains(t, text, "QUESTION:\nwhat sells best?")
}

func TestRender_NoContext(t *testing.T) {
	a := NewAssembler(1000)
	p := a.Assemble("anything?", nil)

	text := Render(p)
	assert.Contains(t, text, "(no metadata context available)")
}
