// internal/models/answer.go
package models

import (
	"strings"
	"time"
)

// Role controls which fields of a FinalAnswer the caller may display.
// It never changes pipeline behavior.
type Role string

const (
	RoleExecutive Role = "Executive"
	RoleAnalyst   Role = "Analyst"
	RoleAdmin     Role = "Admin"
)

// ParseRole maps a free-form role string onto a known Role, ignoring case
// and defaulting to Executive for anything unknown.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "analyst":
		return RoleAnalyst
	case "admin":
		return RoleAdmin
	default:
		return RoleExecutive
	}
}

// ContextSource identifies which retriever produced a context item.
type ContextSource string

const (
	SourceVector ContextSource = "vector"
	SourceGraph  ContextSource = "graph"
)

// ContextItem is one retrieved fragment of metadata documentation,
// ordered most relevant first. Score is only meaningful for vector hits.
type ContextItem struct {
	Source ContextSource `json:"source"`
	Text   string        `json:"text"`
	Score  float64       `json:"score,omitempty"`
}

// Prompt fully determines a model call. Deterministic given its inputs.
type Prompt struct {
	SystemInstructions string        `json:"systemInstructions"`
	ContextItems       []ContextItem `json:"contextItems"`
	Question           string        `json:"question"`
}

// StructuredAnswer is the canonical parsed model reply. SQL and ChartType
// are empty when the reply could not be parsed (insight-only fallback).
type StructuredAnswer struct {
	Insight   string `json:"insight"`
	SQL       string `json:"sql,omitempty"`
	ChartType string `json:"chartType,omitempty"`

	// Fallback is true when Insight carries the raw model reply because
	// no structured object could be extracted from it.
	Fallback bool `json:"fallback,omitempty"`
}

// ColumnType is the portable type of a result column.
type ColumnType string

const (
	ColumnNumber ColumnType = "number"
	ColumnTime   ColumnType = "time"
	ColumnText   ColumnType = "text"
	ColumnBool   ColumnType = "bool"
)

// Column describes one column of a QueryResult.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// QueryResult is a tabular result with portable value types: numbers as
// float64, times as RFC3339 strings, everything else as string/bool.
type QueryResult struct {
	Columns []Column        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

// Empty reports whether the result carries no rows.
func (r *QueryResult) Empty() bool {
	return r == nil || len(r.Rows) == 0
}

// ColumnIndex returns the position of the named column, or -1.
func (r *QueryResult) ColumnIndex(name string) int {
	for i, c := range r.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// ChartSpec is a renderable chart recommendation derived from a result schema.
type ChartSpec struct {
	ChartType string `json:"chartType"`
	XAxis     string `json:"xAxis,omitempty"`
	YAxis     string `json:"yAxis,omitempty"`
}

// FinalAnswer is the value returned to the caller and what the cache stores.
type FinalAnswer struct {
	Question   string        `json:"question"`
	Insight    string        `json:"insight"`
	SQL        string        `json:"sql,omitempty"`
	ChartType  string        `json:"chartType,omitempty"`
	Context    []ContextItem `json:"context,omitempty"`
	Result     *QueryResult  `json:"result,omitempty"`
	Chart      *ChartSpec    `json:"chart,omitempty"`
	Summary    []string      `json:"summary,omitempty"`
	QueryError string        `json:"queryError,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// Redact returns a copy of the answer with fields the role may not see removed.
// Executives never see generated SQL.
func (a *FinalAnswer) Redact(role Role) *FinalAnswer {
	out := *a
	if role == RoleExecutive {
		out.SQL = ""
	}
	return &out
}
