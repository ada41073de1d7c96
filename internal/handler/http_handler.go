package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pesio-ai/be-proc-approvals/internal/platform/auth"
	"github.com/pesio-ai/be-proc-approvals/internal/platform/errors"
	"github.com/pesio-ai/be-proc-approvals/internal/platform/logger"
	"github.com/pesio-ai/be-proc-approvals/internal/repository"
	"github.com/pesio-ai/be-proc-approvals/internal/service"
)

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	evaluator *service.WorkflowEvaluator
	processor *service.ActionProcessor
	history   *service.HistoryReader
	matrix    *service.ApprovalMatrixService
	log       *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(
	evaluator *service.WorkflowEvaluator,
	processor *service.ActionProcessor,
	history *service.HistoryReader,
	matrix *service.ApprovalMatrixService,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		evaluator: evaluator,
		processor: processor,
		history:   history,
		matrix:    matrix,
		log:       log.Component("http"),
	}
}

// RegisterRoutes mounts every API route on mux.
func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/approvals", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListApprovalRequests(w, r)
		case http.MethodPost:
			h.CreateApprovalRequest(w, r)
		default:
			methodNotAllowed(w)
		}
	})
	mux.HandleFunc("/api/v1/approvals/get", h.GetApprovalRequest)
	mux.HandleFunc("/api/v1/approvals/admin-submit", h.AdminSubmit)
	mux.HandleFunc("/api/v1/approvals/action", h.ProcessAction)
	mux.HandleFunc("/api/v1/approvals/history", h.GetApprovalDetails)
	mux.HandleFunc("/api/v1/approvals/audit", h.GetAuditTrail)

	mux.HandleFunc("/api/v1/approval-matrix/levels", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListLevels(w, r)
		case http.MethodPost:
			h.CreateLevel(w, r)
		default:
			methodNotAllowed(w)
		}
	})
	mux.HandleFunc("/api/v1/approval-matrix/levels/get", h.GetLevel)
	mux.HandleFunc("/api/v1/approval-matrix/levels/update", h.UpdateLevel)
	mux.HandleFunc("/api/v1/approval-matrix/levels/delete", h.DeleteLevel)
	mux.HandleFunc("/api/v1/approval-matrix/entries", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListEntries(w, r)
		case http.MethodPost:
			h.CreateEntry(w, r)
		default:
			methodNotAllowed(w)
		}
	})
	mux.HandleFunc("/api/v1/approval-matrix/entries/delete", h.DeleteEntry)
	mux.HandleFunc("/api/v1/approval-matrix/resolve", h.ResolveLevel)
}

// ── Approval requests ─────────────────────────────────────────────────────────

type createApprovalBody struct {
	EntityType string  `json:"entity_type"`
	EntityID   string  `json:"entity_id"`
	Title      *string `json:"title"`
	Status     string  `json:"status"`
	ApproverID *string `json:"approver_id"`
}

// CreateApprovalRequest handles create approval request HTTP requests
func (h *HTTPHandler) CreateApprovalRequest(w http.ResponseWriter, r *http.Request) {
	var body createApprovalBody
	if !decode(w, r, &body) {
		return
	}

	result, err := h.evaluator.CreateApprovalRequest(r.Context(), principal(r), service.CreateApprovalInput{
		EntityType: repository.EntityType(body.EntityType),
		EntityID:   body.EntityID,
		Title:      body.Title,
		Status:     repository.Status(body.Status),
		ApproverID: body.ApproverID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}

type adminSubmitBody struct {
	EntityType       string  `json:"entity_type"`
	EntityID         string  `json:"entity_id"`
	Title            *string `json:"title"`
	AssignedApprover *string `json:"assigned_approver"`
}

// AdminSubmit handles admin submission HTTP requests
func (h *HTTPHandler) AdminSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var body adminSubmitBody
	if !decode(w, r, &body) {
		return
	}

	result, err := h.evaluator.HandleAdminRequestApproval(r.Context(), principal(r), service.AdminSubmitInput{
		EntityType:       repository.EntityType(body.EntityType),
		EntityID:         body.EntityID,
		Title:            body.Title,
		AssignedApprover: body.AssignedApprover,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}

type actionBody struct {
	ID       string  `json:"id"`
	Action   string  `json:"action"`
	Comments *string `json:"comments"`
}

// ProcessAction handles approve / reject / more_info HTTP requests
func (h *HTTPHandler) ProcessAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var body actionBody
	if !decode(w, r, &body) {
		return
	}

	updated, err := h.processor.ProcessAction(r.Context(), principal(r), body.ID, repository.Action(body.Action), body.Comments)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// ListApprovalRequests handles list approval requests HTTP requests
func (h *HTTPHandler) ListApprovalRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var filter repository.ApprovalFilter
	if v := q.Get("entity_type"); v != "" {
		et := repository.EntityType(v)
		filter.EntityType = &et
	}
	if v := q.Get("status"); v != "" {
		st := repository.Status(v)
		filter.Status = &st
	}
	filter.EntityID = queryPtr(q.Get("entity_id"))
	filter.RequesterID = queryPtr(q.Get("requester_id"))
	filter.ApproverID = queryPtr(q.Get("approver_id"))

	requests, err := h.evaluator.GetApprovalRequests(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"requests": orEmpty(requests),
		"total":    len(requests),
	})
}

// GetApprovalRequest handles get approval request HTTP requests
func (h *HTTPHandler) GetApprovalRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		h.writeError(w, errors.InvalidInput("id", "id is required"))
		return
	}

	req, err := h.evaluator.GetApprovalRequest(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// GetApprovalDetails handles approval history HTTP requests. Lookup failures
// yield an empty history, never an error.
func (h *HTTPHandler) GetApprovalDetails(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	q := r.URL.Query()
	events := h.history.GetApprovalDetails(r.Context(), repository.EntityType(q.Get("entity_type")), q.Get("entity_id"))
	writeJSON(w, http.StatusOK, map[string]any{"history": orEmpty(events)})
}

// GetAuditTrail handles audit log HTTP requests
func (h *HTTPHandler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	q := r.URL.Query()
	entries, err := h.history.GetAuditTrail(r.Context(), repository.EntityType(q.Get("entity_type")), q.Get("entity_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": orEmpty(entries)})
}

// ── Approval matrix ───────────────────────────────────────────────────────────

type levelBody struct {
	ID          string  `json:"id"`
	LevelNumber int     `json:"level_number"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	MinAmount   int64   `json:"min_amount"`
	MaxAmount   *int64  `json:"max_amount"`
}

func (b levelBody) input() service.LevelInput {
	return service.LevelInput{
		LevelNumber: b.LevelNumber,
		Name:        b.Name,
		Description: b.Description,
		MinAmount:   b.MinAmount,
		MaxAmount:   b.MaxAmount,
	}
}

// CreateLevel handles create matrix level HTTP requests
func (h *HTTPHandler) CreateLevel(w http.ResponseWriter, r *http.Request) {
	var body levelBody
	if !decode(w, r, &body) {
		return
	}

	level, err := h.matrix.CreateLevel(r.Context(), body.input())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, level)
}

// ListLevels handles list matrix levels HTTP requests
func (h *HTTPHandler) ListLevels(w http.ResponseWriter, r *http.Request) {
	levels, err := h.matrix.ListLevels(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"levels": orEmpty(levels)})
}

// GetLevel handles get matrix level HTTP requests
func (h *HTTPHandler) GetLevel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	level, err := h.matrix.GetLevel(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, level)
}

// UpdateLevel handles update matrix level HTTP requests
func (h *HTTPHandler) UpdateLevel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}

	var body levelBody
	if !decode(w, r, &body) {
		return
	}
	if body.ID == "" {
		h.writeError(w, errors.InvalidInput("id", "id is required"))
		return
	}

	level, err := h.matrix.UpdateLevel(r.Context(), body.ID, body.input())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, level)
}

// DeleteLevel handles delete matrix level HTTP requests
func (h *HTTPHandler) DeleteLevel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}

	if err := h.matrix.DeleteLevel(r.Context(), r.URL.Query().Get("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type entryBody struct {
	LevelID       string  `json:"level_id"`
	ApproverID    string  `json:"approver_id"`
	Department    *string `json:"department"`
	SequenceOrder int     `json:"sequence_order"`
}

// CreateEntry handles create matrix entry HTTP requests
func (h *HTTPHandler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var body entryBody
	if !decode(w, r, &body) {
		return
	}

	entry, err := h.matrix.CreateEntry(r.Context(), service.EntryInput{
		LevelID:       body.LevelID,
		ApproverID:    body.ApproverID,
		Department:    body.Department,
		SequenceOrder: body.SequenceOrder,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// ListEntries handles list matrix entries HTTP requests
func (h *HTTPHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.matrix.ListEntries(r.Context(), r.URL.Query().Get("level_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": orEmpty(entries)})
}

// DeleteEntry handles delete matrix entry HTTP requests
func (h *HTTPHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}

	if err := h.matrix.DeleteEntry(r.Context(), r.URL.Query().Get("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResolveLevel handles matrix lookup HTTP requests
func (h *HTTPHandler) ResolveLevel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	amount, err := strconv.ParseInt(r.URL.Query().Get("amount"), 10, 64)
	if err != nil {
		h.writeError(w, errors.InvalidInput("amount", "amount must be an integer in minor units"))
		return
	}

	resolved, err := h.matrix.ResolveLevel(r.Context(), amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

// ── helpers ───────────────────────────────────────────────────────────────────

func principal(r *http.Request) auth.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func queryPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Code:    errors.ErrCodeValidation,
			Message: "Invalid request body",
		})
		return false
	}
	return true
}

type errorBody struct {
	Success bool        `json:"success"`
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
	Field   string      `json:"field,omitempty"`
}

// HTTPStatus maps an error code to its HTTP status.
func HTTPStatus(code errors.Code) int {
	switch code {
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeValidation:
		return http.StatusBadRequest
	case errors.ErrCodeAlreadyProcessed, errors.ErrCodeConflict:
		return http.StatusConflict
	case errors.ErrCodeCascadeFailed:
		return http.StatusBadGateway
	case errors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrCodeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	body := errorBody{Code: code, Message: err.Error()}

	var appErr *errors.Error
	if errors.As(err, &appErr) {
		body.Field = appErr.Field
	}
	if code == errors.ErrCodeInternal {
		h.log.Error().Err(err).Msg("Request failed")
		body.Message = "internal error"
	}

	writeJSON(w, HTTPStatus(code), body)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, errorBody{
		Code:    errors.ErrCodeValidation,
		Message: "Method not allowed",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
