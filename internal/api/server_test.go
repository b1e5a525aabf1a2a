// internal/api/server_test.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight-agent/internal/auth"
	errs "insight-agent/internal/common/errors"
	"insight-agent/internal/common/logger"
	"insight-agent/internal/llm"
	"insight-agent/internal/models"
)

type stubPipeline struct {
	answer *models.FinalAnswer
	cached bool
	err    error
}

func (s *stubPipeline) Answer(context.Context, string) (*models.FinalAnswer, bool, error) {
	return s.answer, s.cached, s.err
}

type stubRefresher struct {
	indexed int
	err     error
	calls   int
}

func (s *stubRefresher) Refresh(context.Context) (int, error) {
	s.calls++
	return s.indexed, s.err
}

func analystAnswer() *models.FinalAnswer {
	return &models.FinalAnswer{
		Question:  "How is revenue trending?",
		Insight:   "Revenue is up 12% month over month.",
		SQL:       "SELECT order_date, SUM(total_sales) FROM revenue_daily GROUP BY 1",
		ChartType: "line",
	}
}

func newTestServer(t *testing.T, p Answerer, r Refresher, users auth.Users) *Server {
	t.Helper()
	return NewServer(p, r, users, logger.NewTestLogger(t))
}

func postJSON(srv *Server, path, body string, setup func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if setup != nil {
		setup(req)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestAsk_ReturnsAnswer(t *testing.T) {
	srv := newTestServer(t, &stubPipeline{answer: analystAnswer()}, &stubRefresher{}, nil)

	rec := postJSON(srv, "/api/ask", `{"question": "How is revenue trending?", "role": "analyst"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp askResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Revenue is up 12% month over month.", resp.Insight)
	assert.NotEmpty(t, resp.SQL)
	assert.NotEmpty(t, resp.RequestID)
	assert.False(t, resp.Cached)
}

func TestAsk_ExecutiveRoleHidesSQL(t *testing.T) {
	srv := newTestServer(t, &stubPipeline{answer: analystAnswer()}, &stubRefresher{}, nil)

	rec := postJSON(srv, "/api/ask", `{"question": "How is revenue trending?", "role": "executive"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp askResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.SQL)
	assert.NotEmpty(t, resp.Insight)
}

func TestAsk_MissingQuestion(t *testing.T) {
	srv := newTestServer(t, &stubPipeline{answer: analystAnswer()}, &stubRefresher{}, nil)

	rec := postJSON(srv, "/api/ask", `{"role": "analyst"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAsk_ModelUnavailableMapsTo503(t *testing.T) {
	srv := newTestServer(t, &stubPipeline{err: llm.ErrModelUnavailable}, &stubRefresher{}, nil)

	rec := postJSON(srv, "/api/ask", `{"question": "anything"}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, errs.ErrCodeModelUnavailable, resp.Code)
	assert.True(t, resp.Retryable)
	assert.NotEmpty(t, resp.Error)
}

func TestAsk_ModelTimeoutMapsTo504(t *testing.T) {
	srv := newTestServer(t, &stubPipeline{err: llm.ErrModelTimeout}, &stubRefresher{}, nil)

	rec := postJSON(srv, "/api/ask", `{"question": "anything"}`, nil)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestAsk_RequiresAuthWhenUsersConfigured(t *testing.T) {
	users := auth.Users{
		"jordan": {Password: "secret", Role: models.RoleAnalyst},
	}
	srv := newTestServer(t, &stubPipeline{answer: analystAnswer()}, &stubRefresher{}, users)

	rec := postJSON(srv, "/api/ask", `{"question": "q"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(srv, "/api/ask", `{"question": "q"}`, func(r *http.Request) {
		r.SetBasicAuth("jordan", "wrong")
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(srv, "/api/ask", `{"question": "q"}`, func(r *http.Request) {
		r.SetBasicAuth("jordan", "secret")
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAsk_AuthenticatedRoleOverridesDeclared(t *testing.T) {
	users := auth.Users{
		"pat": {Password: "secret", Role: models.RoleExecutive},
	}
	srv := newTestServer(t, &stubPipeline{answer: analystAnswer()}, &stubRefresher{}, users)

	// Declaring analyst in the body does not beat the credential's role.
	rec := postJSON(srv, "/api/ask", `{"question": "q", "role": "analyst"}`, func(r *http.Request) {
		r.SetBasicAuth("pat", "secret")
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp askResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.SQL)
}

func TestRefresh_AdminOnly(t *testing.T) {
	users := auth.Users{
		"admin":  {Password: "secret", Role: models.RoleAdmin},
		"jordan": {Password: "secret", Role: models.RoleAnalyst},
	}
	refresher := &stubRefresher{indexed: 42}
	srv := newTestServer(t, &stubPipeline{}, refresher, users)

	rec := postJSON(srv, "/api/refresh", "", func(r *http.Request) {
		r.SetBasicAuth("jordan", "secret")
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 0, refresher.calls)

	rec = postJSON(srv, "/api/refresh", "", func(r *http.Request) {
		r.SetBasicAuth("admin", "secret")
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, refresher.calls)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(42), resp["docsIndexed"])
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &stubPipeline{}, &stubRefresher{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestAsk_GetNotAllowed(t *testing.T) {
	srv := newTestServer(t, &stubPipeline{}, &stubRefresher{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/ask", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
