// internal/warehouse/summary.go
package warehouse

import (
	"fmt"

	"insight-agent/internal/models"
)

// Summarize produces short per-column notes for a result: row count, min/max
// for numeric and time columns, approximate distinct counts for the rest.
func Summarize(result *models.QueryResult) []string {
	if result.Empty() {
		return []string{"No rows returned."}
	}

	notes := []string{fmt.Sprintf("Rows: %d", len(result.Rows))}

	for i, col := range result.Columns {
		switch col.Type {
		case models.ColumnNumber:
			min, max, ok := numericRange(result.Rows, i)
			if ok {
				notes = append(notes, fmt.Sprintf("%s: min=%g, max=%g", col.Name, min, max))
			}
		case models.ColumnTime:
			min, max, ok := stringRange(result.Rows, i)
			if ok {
				notes = append(notes, fmt.Sprintf("%s: min=%s, max=%s", col.Name, min, max))
			}
		default:
			notes = append(notes, fmt.Sprintf("%s: distinct=%d", col.Name, distinctCount(result.Rows, i)))
		}
	}
	return notes
}

func numericRange(rows [][]interface{}, col int) (float64, float64, bool) {
	var min, max float64
	found := false
	for _, row := range rows {
		f, ok := row[col].(float64)
		if !ok {
			continue
		}
		if !found || f < min {
			min = f
		}
		if !found || f > max {
			max = f
		}
		found = true
	}
	return min, max, found
}

// Time values normalize to RFC3339, which orders lexicographically.
func stringRange(rows [][]interface{}, col int) (string, string, bool) {
	var min, max string
	found := false
	for _, row := range rows {
		s, ok := row[col].(string)
		if !ok {
			continue
		}
		if !found || s < min {
			min = s
		}
		if !found || s > max {
			max = s
		}
		found = true
	}
	return min, max, found
}

func distinctCount(rows [][]interface{}, col int) int {
	seen := make(map[interface{}]bool)
	for _, row := range rows {
		v := row[col]
		switch v.(type) {
		case nil:
		default:
			seen[v] = true
		}
	}
	return len(seen)
}
