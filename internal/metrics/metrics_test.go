package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-proc-approvals/internal/repository"
)

func TestCounters(t *testing.T) {
	m := New()

	m.RequestCreated(repository.EntityInvoice, repository.StatusPending)
	m.RequestCreated(repository.EntityInvoice, repository.StatusPending)
	m.ActionProcessed(repository.ActionApprove, "ok")
	m.ActionProcessed(repository.ActionApprove, "ALREADY_PROCESSED")
	m.RemindersSent(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestsCreated.WithLabelValues("invoice", "pending")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actions.WithLabelValues("approve", "ALREADY_PROCESSED")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.reminders))
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New()

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/approvals/action", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "/api/v1/approvals/action", "409")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "procurement_approvals_http_requests_total")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
