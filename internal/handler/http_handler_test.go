package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-proc-approvals/internal/platform/errors"
	"github.com/pesio-ai/be-proc-approvals/internal/platform/logger"
	"github.com/pesio-ai/be-proc-approvals/internal/platform/middleware"
	"github.com/pesio-ai/be-proc-approvals/internal/repository"
	"github.com/pesio-ai/be-proc-approvals/internal/repository/memory"
	"github.com/pesio-ai/be-proc-approvals/internal/service"
)

type testServer struct {
	db      *memory.DB
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db := memory.New()
	requests := memory.NewRequestStore(db)
	entities := memory.NewEntityStore(db)
	users := memory.NewUserStore(db)
	audit := memory.NewAuditStore(db)
	log := logger.Nop()

	h := NewHTTPHandler(
		service.NewWorkflowEvaluator(db, requests, entities, users, audit, log),
		service.NewActionProcessor(db, requests, entities, audit, log),
		service.NewHistoryReader(requests, users, audit, log),
		service.NewApprovalMatrixService(memory.NewMatrixStore(db), log),
		log,
	)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	db.AddUser(repository.User{ID: "buyer-1", FullName: "Bea Buyer", Roles: []string{"buyer"}})
	db.AddUser(repository.User{ID: "admin-1", FullName: "Ada Admin", Roles: []string{"admin"}})
	db.AddUser(repository.User{ID: "mgr-1", FullName: "Max Manager", Roles: []string{"manager"}})

	return &testServer{db: db, handler: middleware.Auth(nil)(mux)}
}

func (s *testServer) do(t *testing.T, method, target, user, roles string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if user != "" {
		req.Header.Set("X-User-ID", user)
		req.Header.Set("X-User-Roles", roles)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestCreateApprovalRequestIsIdempotent(t *testing.T) {
	s := newTestServer(t)
	body := map[string]any{"entity_type": "invoice", "entity_id": "INV-1", "title": "Office chairs"}

	rec := s.do(t, http.MethodPost, "/api/v1/approvals", "buyer-1", "buyer", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decodeBody[service.Result](t, rec)
	assert.True(t, first.Created)
	assert.Equal(t, repository.StatusPending, first.Request.Status)

	rec = s.do(t, http.MethodPost, "/api/v1/approvals", "buyer-1", "buyer", body)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decodeBody[service.Result](t, rec)
	assert.False(t, second.Created)
	assert.Equal(t, first.Request.ID, second.Request.ID)

	rec = s.do(t, http.MethodGet, "/api/v1/approvals?entity_type=invoice&entity_id=INV-1", "buyer-1", "buyer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[struct {
		Total int `json:"total"`
	}](t, rec)
	assert.Equal(t, 1, list.Total)
}

func TestProcessActionOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.db.AddProcurementRequest("PR-7", "submitted")

	rec := s.do(t, http.MethodPost, "/api/v1/approvals", "buyer-1", "buyer",
		map[string]any{"entity_type": "procurement_request", "entity_id": "PR-7"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody[service.Result](t, rec).Request.ID

	rec = s.do(t, http.MethodPost, "/api/v1/approvals/action", "mgr-1", "manager",
		map[string]any{"id": id, "action": "reject"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errors.ErrCodeValidation, decodeBody[errorBody](t, rec).Code)

	rec = s.do(t, http.MethodPost, "/api/v1/approvals/action", "mgr-1", "manager",
		map[string]any{"id": id, "action": "approve", "comments": "ok"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, repository.StatusApproved, decodeBody[repository.ApprovalRequest](t, rec).Status)

	status, _ := s.db.ProcurementRequestStatus("PR-7")
	assert.Equal(t, "approved", status)

	rec = s.do(t, http.MethodPost, "/api/v1/approvals/action", "mgr-1", "manager",
		map[string]any{"id": id, "action": "reject", "comments": "changed my mind"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, errors.ErrCodeAlreadyProcessed, decodeBody[errorBody](t, rec).Code)

	rec = s.do(t, http.MethodGet, "/api/v1/approvals/history?entity_type=procurement_request&entity_id=PR-7", "buyer-1", "buyer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeBody[struct {
		History []service.ApprovalEvent `json:"history"`
	}](t, rec)
	require.Len(t, history.History, 1)
	assert.Equal(t, "Bea Buyer", history.History[0].RequesterName)

	rec = s.do(t, http.MethodGet, "/api/v1/approvals/audit?entity_type=procurement_request&entity_id=PR-7", "buyer-1", "buyer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	audit := decodeBody[struct {
		Entries []repository.ApprovalAuditEntry `json:"entries"`
	}](t, rec)
	require.Len(t, audit.Entries, 2)
	assert.Equal(t, repository.AuditApproved, audit.Entries[1].Action)
}

func TestAssignedApproverIsEnforced(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/approvals/admin-submit", "admin-1", "admin",
		map[string]any{"entity_type": "purchase_order", "entity_id": "PO-1", "assigned_approver": "mgr-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decodeBody[service.Result](t, rec).Request.ID

	rec = s.do(t, http.MethodPost, "/api/v1/approvals/action", "buyer-1", "buyer",
		map[string]any{"id": id, "action": "approve"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/approvals/get?id="+id, "buyer-1", "buyer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, repository.StatusPending, decodeBody[repository.ApprovalRequest](t, rec).Status)
}

func TestRequestErrors(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/approvals", "", "", map[string]any{"entity_type": "invoice", "entity_id": "INV-1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/approvals", "buyer-1", "buyer", map[string]any{"entity_type": "quote", "entity_id": "Q-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/approvals/get?id=missing", "buyer-1", "buyer", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPatch, "/api/v1/approvals", "buyer-1", "buyer", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/approvals/action", bytes.NewBufferString("{not json"))
	req.Header.Set("X-User-ID", "mgr-1")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApprovalMatrixRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/approval-matrix/levels", "admin-1", "admin",
		map[string]any{"level_number": 1, "name": "Team lead", "min_amount": 0, "max_amount": 100000})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	level := decodeBody[repository.ApprovalMatrixLevel](t, rec)

	rec = s.do(t, http.MethodPost, "/api/v1/approval-matrix/entries", "admin-1", "admin",
		map[string]any{"level_id": level.ID, "approver_id": "mgr-1", "sequence_order": 1})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/v1/approval-matrix/resolve?amount=5000", "buyer-1", "buyer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resolved := decodeBody[service.ResolvedLevel](t, rec)
	assert.Equal(t, level.ID, resolved.Level.ID)
	require.Len(t, resolved.Entries, 1)

	rec = s.do(t, http.MethodGet, "/api/v1/approval-matrix/resolve?amount=lots", "buyer-1", "buyer", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/approval-matrix/levels/delete?id="+level.ID, "admin-1", "admin", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/approval-matrix/levels/get?id="+level.ID, "admin-1", "admin", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/approval-matrix/entries?level_id="+level.ID, "admin-1", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"entries":[]}`, rec.Body.String())
}

func TestHTTPStatus(t *testing.T) {
	cases := map[errors.Code]int{
		errors.ErrCodeNotFound:         http.StatusNotFound,
		errors.ErrCodeValidation:       http.StatusBadRequest,
		errors.ErrCodeAlreadyProcessed: http.StatusConflict,
		errors.ErrCodeConflict:         http.StatusConflict,
		errors.ErrCodeCascadeFailed:    http.StatusBadGateway,
		errors.ErrCodeUnauthorized:     http.StatusUnauthorized,
		errors.ErrCodeForbidden:        http.StatusForbidden,
		errors.ErrCodeInternal:         http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatus(code), code)
	}
}
