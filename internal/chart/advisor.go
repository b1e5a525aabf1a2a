// internal/chart/advisor.go
package chart

import (
	"regexp"

	"insight-agent/internal/models"
)

const (
	TypeLine    = "line"
	TypeArea    = "area"
	TypeBar     = "bar"
	TypeScatter = "scatter"
)

// Matches ISO dates and RFC3339 timestamps in text columns.
var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}([T ]\d{2}:\d{2}(:\d{2})?)?`)

// Advisor infers a chart recommendation from a result schema. Pure, no I/O;
// the only failure mode is a nil spec (table-only display).
type Advisor struct {
	categoryCardinality int
}

func NewAdvisor(categoryCardinality int) *Advisor {
	if categoryCardinality <= 0 {
		categoryCardinality = 25
	}
	return &Advisor{categoryCardinality: categoryCardinality}
}

// Advise prefers the model's suggested chart type when the schema supports it,
// otherwise overrides with the best supported pairing; nil when the result is
// empty or no recognizable pairing exists.
func (a *Advisor) Advise(result *models.QueryResult, suggested string) *models.ChartSpec {
	if result.Empty() {
		return nil
	}

	roles := a.inferRoles(result)

	if spec := roles.specFor(suggested); spec != nil {
		return spec
	}

	for _, t := range []string{TypeLine, TypeBar, TypeScatter} {
		if spec := roles.specFor(t); spec != nil {
			return spec
		}
	}
	return nil
}

// columnRoles holds the first viable axis candidate per role; empty = none.
type columnRoles struct {
	timeCol     string
	categoryCol string
	numericCols []string
}

func (r columnRoles) specFor(chartType string) *models.ChartSpec {
	switch chartType {
	case TypeLine, TypeArea:
		if r.timeCol != "" && len(r.numericCols) > 0 {
			return &models.ChartSpec{ChartType: chartType, XAxis: r.timeCol, YAxis: r.numericCols[0]}
		}
	case TypeBar:
		if r.categoryCol != "" && len(r.numericCols) > 0 {
			return &models.ChartSpec{ChartType: chartType, XAxis: r.categoryCol, YAxis: r.numericCols[0]}
		}
	case TypeScatter:
		if len(r.numericCols) >= 2 {
			return &models.ChartSpec{ChartType: chartType, XAxis: r.numericCols[0], YAxis: r.numericCols[1]}
		}
	}
	return nil
}

func (a *Advisor) inferRoles(result *models.QueryResult) columnRoles {
	var roles columnRoles
	for i, col := range result.Columns {
		switch col.Type {
		case models.ColumnNumber:
			roles.numericCols = append(roles.numericCols, col.Name)
		case models.ColumnTime:
			if roles.timeCol == "" {
				roles.timeCol = col.Name
			}
		case models.ColumnText:
			if roles.timeCol == "" && looksLikeDates(result.Rows, i) {
				roles.timeCol = col.Name
			} else if roles.categoryCol == "" && a.lowCardinality(result.Rows, i) {
				roles.categoryCol = col.Name
			}
		}
	}
	return roles
}

// A text column is time-like when every non-null value matches a date pattern.
func looksLikeDates(rows [][]interface{}, col int) bool {
	matched := false
	for _, row := range rows {
		s, ok := row[col].(string)
		if !ok {
			continue
		}
		if !datePattern.MatchString(s) {
			return false
		}
		matched = true
	}
	return matched
}

func (a *Advisor) lowCardinality(rows [][]interface{}, col int) bool {
	seen := make(map[string]bool)
	for _, row := range rows {
		if s, ok := row[col].(string); ok {
			seen[s] = true
			if len(seen) > a.categoryCardinality {
				return false
			}
		}
	}
	return len(seen) > 0
}
