// internal/api/server.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"insight-agent/internal/auth"
	errs "insight-agent/internal/common/errors"
	"insight-agent/internal/common/logger"
	"insight-agent/internal/llm"
	"insight-agent/internal/models"
)

// Answerer is the pipeline surface the HTTP layer needs.
type Answerer interface {
	Answer(ctx context.Context, question string) (*models.FinalAnswer, bool, error)
}

// Refresher reloads the metadata corpus and flushes cached answers.
type Refresher interface {
	Refresh(ctx context.Context) (int, error)
}

// Server exposes the question-answering pipeline over HTTP.
//
// Credentials come from the users file. When the store is empty,
// authentication is disabled and requests may carry a role in the body;
// otherwise the role always comes from the authenticated user.
type Server struct {
	pipeline  Answerer
	refresher Refresher
	users     auth.Users
	logger    logger.Logger
	mux       *http.ServeMux
}

func NewServer(p Answerer, r Refresher, users auth.Users, log logger.Logger) *Server {
	s := &Server{
		pipeline:  p,
		refresher: r,
		users:     users,
		logger:    log.WithFields(map[string]interface{}{"component": "api"}),
		mux:       http.NewServeMux(),
	}

	s.mux.HandleFunc("/api/ask", s.handleAsk)
	s.mux.HandleFunc("/api/refresh", s.handleRefresh)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/metrics", promhttp.Handler())
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type askRequest struct {
	Question string `json:"question"`
	Role     string `json:"role,omitempty"`
}

type askResponse struct {
	*models.FinalAnswer
	Cached    bool   `json:"cached"`
	RequestID string `json:"requestId"`
}

type errorResponse struct {
	Error     string         `json:"error"`
	Code      errs.ErrorCode `json:"code,omitempty"`
	Retryable bool           `json:"retryable,omitempty"`
	RequestID string         `json:"requestId"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requestID := uuid.New().String()
	log := s.logger.WithFields(map[string]interface{}{"requestId": requestID})

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", requestID)
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required", requestID)
		return
	}

	role, ok := s.resolveRole(r, req.Role)
	if !ok {
		w.Header().Set("WWW-Authenticate", `Basic realm="insight-agent"`)
		writeError(w, http.StatusUnauthorized, "authentication required", requestID)
		return
	}

	start := time.Now()
	answer, cached, err := s.pipeline.Answer(r.Context(), req.Question)
	if err != nil {
		status, stdErr := mapPipelineError(err)
		log.WithError(err).Error("question failed", map[string]interface{}{
			"question": req.Question,
			"category": errs.GetErrorCategory(stdErr.Code),
		})
		writeJSON(w, status, errorResponse{
			Error:     stdErr.Message,
			Code:      stdErr.Code,
			Retryable: stdErr.Retryable,
			RequestID: requestID,
		})
		return
	}

	log.Info("question answered", map[string]interface{}{
		"cached":     cached,
		"durationMs": time.Since(start).Milliseconds(),
		"role":       string(role),
	})

	writeJSON(w, http.StatusOK, askResponse{
		FinalAnswer: answer.Redact(role),
		Cached:      cached,
		RequestID:   requestID,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requestID := uuid.New().String()

	role, ok := s.resolveRole(r, "")
	if !ok {
		w.Header().Set("WWW-Authenticate", `Basic realm="insight-agent"`)
		writeError(w, http.StatusUnauthorized, "authentication required", requestID)
		return
	}
	if len(s.users) > 0 && role != models.RoleAdmin {
		writeError(w, http.StatusForbidden, "admin role required", requestID)
		return
	}

	indexed, err := s.refresher.Refresh(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("metadata refresh failed", nil)
		writeError(w, http.StatusInternalServerError, "refresh failed", requestID)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"docsIndexed": indexed,
		"requestId":   requestID,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// resolveRole authenticates the request when a users file is configured.
// Without one, the caller-declared role is trusted (development mode).
func (s *Server) resolveRole(r *http.Request, declared string) (models.Role, bool) {
	if len(s.users) == 0 {
		return models.ParseRole(declared), true
	}

	username, password, ok := r.BasicAuth()
	if !ok {
		return "", false
	}
	verified, role := auth.VerifyUser(username, password, s.users)
	if !verified {
		return "", false
	}
	return role, true
}

// Only user-visible error classes expose their message; anything else
// collapses to a generic response.
func mapPipelineError(err error) (int, *errs.StandardError) {
	var stdErr *errs.StandardError
	switch {
	case errors.Is(err, llm.ErrModelTimeout):
		stdErr = errs.NewModelTimeoutError()
	case errors.Is(err, llm.ErrModelUnavailable):
		stdErr = errs.NewModelUnavailableError(err)
	default:
		stdErr = &errs.StandardError{Code: "INTERNAL", Message: "internal error", Timestamp: time.Now().UTC()}
	}

	if !stdErr.UserVisible() {
		stdErr.Message = "internal error"
		stdErr.Details = ""
	}

	switch stdErr.Code {
	case errs.ErrCodeModelTimeout:
		return http.StatusGatewayTimeout, stdErr
	case errs.ErrCodeModelUnavailable, errs.ErrCodeModelRateLimited:
		return http.StatusServiceUnavailable, stdErr
	default:
		return http.StatusInternalServerError, stdErr
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, requestID string) {
	writeJSON(w, status, errorResponse{Error: msg, RequestID: requestID})
}
