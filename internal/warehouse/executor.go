// internal/warehouse/executor.go
package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"insight-agent/internal/common/config"
	"insight-agent/internal/common/logger"
	"insight-agent/internal/common/metrics"
	"insight-agent/internal/models"
)

var (
	ErrQueryFailed   = errors.New("QUERY_FAILED")
	ErrContextFailed = errors.New("WAREHOUSE_CONTEXT_FAILED")
)

// Executor runs generated SQL against the warehouse connection. Session
// context (role/schema) is applied exactly once before each query. SQL errors
// are never retried: they are not transient.
type Executor struct {
	db     *sql.DB
	cfg    config.WarehouseConfig
	logger logger.Logger
}

func NewExecutor(db *sql.DB, cfg config.WarehouseConfig, log logger.Logger) *Executor {
	return &Executor{
		db:     db,
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"component": "executor"}),
	}
}

// Execute runs sqlText and returns a portable tabular result. An empty sqlText
// is a no-op: (nil, nil), and the connector is never touched.
func (e *Executor) Execute(ctx context.Context, sqlText string) (*models.QueryResult, error) {
	if sqlText == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.QueryTimeout)*time.Millisecond)
	defer cancel()

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	defer conn.Close()

	if err := e.applyContext(ctx, conn); err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		metrics.SQLExecutions.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}
	defer rows.Close()

	result, err := scanResult(rows)
	if err != nil {
		metrics.SQLExecutions.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrQueryFailed, err)
	}

	metrics.SQLExecutions.WithLabelValues("ok").Inc()
	e.logger.Info("query executed", map[string]interface{}{
		"rows":    len(result.Rows),
		"columns": len(result.Columns),
	})
	return result, nil
}

// Session context runs on the same connection as the query, the analog of
// USE ROLE / USE SCHEMA before the generated statement.
func (e *Executor) applyContext(ctx context.Context, conn *sql.Conn) error {
	if e.cfg.Role != "" {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET ROLE %s", quoteIdent(e.cfg.Role))); err != nil {
			return fmt.Errorf("%w: set role: %v", ErrContextFailed, err)
		}
	}
	if e.cfg.Schema != "" {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET search_path TO %s", quoteIdent(e.cfg.Schema))); err != nil {
			return fmt.Errorf("%w: set search_path: %v", ErrContextFailed, err)
		}
	}
	return nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func scanResult(rows *sql.Rows) (*models.QueryResult, error) {
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	result := &models.QueryResult{}
	for _, ct := range colTypes {
		result.Columns = append(result.Columns, models.Column{
			Name: ct.Name(),
			Type: portableType(ct.DatabaseTypeName()),
		})
	}

	values := make([]interface{}, len(colTypes))
	ptrs := make([]interface{}, len(colTypes))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make([]interface{}, len(values))
		for i, v := range values {
			row[i] = normalizeValue(v, result.Columns[i].Type)
		}
		result.Rows = append(result.Rows, row)
	}
	return result, rows.Err()
}

// portableType maps driver type names onto the portable column types the
// chart advisor understands.
func portableType(dbType string) models.ColumnType {
	switch dbType {
	case "INT2", "INT4", "INT8", "FLOAT4", "FLOAT8", "NUMERIC", "DECIMAL", "MONEY",
		"INTEGER", "BIGINT", "SMALLINT", "REAL", "DOUBLE PRECISION", "NUMBER", "FLOAT":
		return models.ColumnNumber
	case "DATE", "TIME", "TIMETZ", "TIMESTAMP", "TIMESTAMPTZ", "DATETIME":
		return models.ColumnTime
	case "BOOL", "BOOLEAN":
		return models.ColumnBool
	default:
		return models.ColumnText
	}
}

// normalizeValue converts driver-native values into portable ones: numbers as
// float64, times as RFC3339 strings, bytes as strings. Nothing opaque leaks.
func normalizeValue(v interface{}, colType models.ColumnType) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case []byte:
		s := string(val)
		if colType == models.ColumnNumber {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f
			}
		}
		return s
	case int64:
		return float64(val)
	case float64:
		return val
	case bool:
		return val
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}
