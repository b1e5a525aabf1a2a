// Package errors provides standardized error handling for the insight pipeline.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Retrieval
	ErrCodeVectorStoreUnreachable ErrorCode = "VECTOR_STORE_UNREACHABLE"
	ErrCodeGraphStoreUnreachable  ErrorCode = "GRAPH_STORE_UNREACHABLE"
	ErrCodeRetrievalDegraded      ErrorCode = "RETRIEVAL_DEGRADED"

	// Generative model
	ErrCodeModelUnavailable ErrorCode = "MODEL_UNAVAILABLE"
	ErrCodeModelRateLimited ErrorCode = "MODEL_RATE_LIMITED"
	ErrCodeModelTimeout     ErrorCode = "MODEL_TIMEOUT"

	// Warehouse
	ErrCodeQueryFailed            ErrorCode = "QUERY_FAILED"
	ErrCodeWarehouseContextFailed ErrorCode = "WAREHOUSE_CONTEXT_FAILED"

	// Cache
	ErrCodeCacheUnavailable ErrorCode = "CACHE_UNAVAILABLE"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// UserVisible reports whether the error may be surfaced to the caller.
// Everything else degrades silently to a reduced but valid answer.
func (e *StandardError) UserVisible() bool {
	switch e.Code {
	case ErrCodeModelUnavailable, ErrCodeModelRateLimited, ErrCodeModelTimeout, ErrCodeQueryFailed:
		return true
	default:
		return false
	}
}

// ==========================
// 2. Error Constructors
// ==========================

// NewVectorStoreUnreachableError creates a retryable vector store error.
func NewVectorStoreUnreachableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeVectorStoreUnreachable,
		Message:   "Vector store query failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewGraphStoreUnreachableError creates a non-retryable graph store error.
func NewGraphStoreUnreachableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeGraphStoreUnreachable,
		Message:   "Graph store lookup failed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRetrievalDegradedError marks a context-free pipeline run. Never surfaced.
func NewRetrievalDegradedError(question string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRetrievalDegraded,
		Message:   "Both vector and graph retrieval returned nothing",
		Details:   fmt.Sprintf("question: %s", question),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewModelUnavailableError creates a user-visible model failure after bounded retries.
func NewModelUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeModelUnavailable,
		Message:   "Generative model service unreachable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewModelRateLimitedError creates a retryable rate-limit error.
func NewModelRateLimitedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeModelRateLimited,
		Message:   "Generative model service rate limited",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewModelTimeoutError creates a retryable model timeout error.
func NewModelTimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeModelTimeout,
		Message:   "Generative model call exceeded timeout",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryFailedError creates a non-retryable SQL execution error.
// SQL errors are not transient; the caller degrades to insight-only display.
func NewQueryFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryFailed,
		Message:   "SQL execution failed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewWarehouseContextFailedError creates a non-retryable session setup error.
func NewWarehouseContextFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeWarehouseContextFailed,
		Message:   "Warehouse session context could not be applied",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCacheUnavailableError creates a silent cache failure. Logged, never surfaced.
func NewCacheUnavailableError(op string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCacheUnavailable,
		Message:   "Answer cache operation failed",
		Details:   fmt.Sprintf("op: %s, error: %s", op, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Retry Policy
// ==========================

// GetRetryCount returns the recommended retry count per error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeModelUnavailable, ErrCodeModelRateLimited:
		return 3

	case ErrCodeModelTimeout, ErrCodeVectorStoreUnreachable:
		return 2

	default:
		return 0 // SQL, graph and cache errors: no retry
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "VECTOR") || strings.Contains(codeStr, "GRAPH") || strings.Contains(codeStr, "RETRIEVAL"):
		return "RETRIEVAL"
	case strings.Contains(codeStr, "MODEL"):
		return "MODEL"
	case strings.Contains(codeStr, "QUERY") || strings.Contains(codeStr, "WAREHOUSE"):
		return "WAREHOUSE"
	case strings.Contains(codeStr, "CACHE"):
		return "CACHE"
	default:
		return "OTHER"
	}
}
