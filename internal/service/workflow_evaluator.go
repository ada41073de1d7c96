package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/pesio-ai/be-proc-approvals/internal/platform/auth"
	"github.com/pesio-ai/be-proc-approvals/internal/platform/errors"
	"github.com/pesio-ai/be-proc-approvals/internal/platform/logger"
	"github.com/pesio-ai/be-proc-approvals/internal/repository"
)

// WorkflowEvaluator decides the initial routing of an entity submitted for
// approval and serves approval request reads.
type WorkflowEvaluator struct {
	tx       Transactor
	requests ApprovalStore
	entities EntityStatusUpdater
	identity IdentityResolver
	audit    AuditStore
	log      *logger.Logger
	opts     options
}

// NewWorkflowEvaluator creates a new WorkflowEvaluator.
func NewWorkflowEvaluator(
	tx Transactor,
	requests ApprovalStore,
	entities EntityStatusUpdater,
	identity IdentityResolver,
	audit AuditStore,
	log *logger.Logger,
	opts ...Option,
) *WorkflowEvaluator {
	return &WorkflowEvaluator{
		tx:       tx,
		requests: requests,
		entities: entities,
		identity: identity,
		audit:    audit,
		log:      log.Component("workflow_evaluator"),
		opts:     newOptions(opts),
	}
}

// CreateApprovalInput describes an entity submitted for approval.
type CreateApprovalInput struct {
	EntityType repository.EntityType
	EntityID   string
	Title      *string
	// Status is the caller-requested initial status; empty means pending.
	Status     repository.Status
	ApproverID *string
}

// AdminSubmitInput is the input of HandleAdminRequestApproval.
type AdminSubmitInput struct {
	EntityType       repository.EntityType
	EntityID         string
	Title            *string
	AssignedApprover *string
}

// Result reports the outcome of a submission. Created is false when an
// existing pending request was returned or nothing was stored.
type Result struct {
	Success bool                        `json:"success"`
	Created bool                        `json:"created"`
	Message string                      `json:"message"`
	Request *repository.ApprovalRequest `json:"request,omitempty"`
}

// ── Creation ──────────────────────────────────────────────────────────────────

// CreateApprovalRequest records an approval request for an entity. A pending
// request for the same entity is returned instead of creating a duplicate.
// Admin requesters are auto-approved whatever status was asked for.
func (e *WorkflowEvaluator) CreateApprovalRequest(ctx context.Context, requester auth.Principal, in CreateApprovalInput) (*Result, error) {
	if in.Status == "" {
		in.Status = repository.StatusPending
	}
	if err := validateEntity(in.EntityType, in.EntityID); err != nil {
		return nil, err
	}
	if in.Status != repository.StatusPending && in.Status != repository.StatusApproved {
		return nil, errors.InvalidInput("status", "status must be pending or approved")
	}

	requester, err := e.resolveRoles(ctx, requester)
	if err != nil {
		return nil, err
	}
	if requester.IsAdmin() {
		in.Status = repository.StatusApproved
	}

	return e.create(ctx, requester, in)
}

// HandleAdminRequestApproval is the admin submission path. An admin naming an
// approver gets a pending request routed to that approver; an admin without
// one is auto-approved. Other users get an acknowledgement and no record, as
// their request is created by the regular submission flow.
func (e *WorkflowEvaluator) HandleAdminRequestApproval(ctx context.Context, requester auth.Principal, in AdminSubmitInput) (*Result, error) {
	if err := validateEntity(in.EntityType, in.EntityID); err != nil {
		return nil, err
	}

	requester, err := e.resolveRoles(ctx, requester)
	if err != nil {
		return nil, err
	}

	if !requester.IsAdmin() {
		return &Result{Success: true, Message: "submitted for approval"}, nil
	}

	create := CreateApprovalInput{
		EntityType: in.EntityType,
		EntityID:   in.EntityID,
		Title:      in.Title,
		Status:     repository.StatusApproved,
	}
	if approver := trimmed(in.AssignedApprover); approver != nil {
		create.Status = repository.StatusPending
		create.ApproverID = approver
	}
	return e.create(ctx, requester, create)
}

func (e *WorkflowEvaluator) create(ctx context.Context, requester auth.Principal, in CreateApprovalInput) (*Result, error) {
	existing, err := e.pendingFor(ctx, in.EntityType, in.EntityID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return alreadyPending(existing), nil
	}

	req := &repository.ApprovalRequest{
		EntityType:  in.EntityType,
		EntityID:    in.EntityID,
		Status:      in.Status,
		RequesterID: requester.UserID,
		ApproverID:  trimmed(in.ApproverID),
		Title:       trimmed(in.Title),
	}
	if req.Status == repository.StatusApproved {
		now := e.opts.now()
		req.ApprovalDate = &now
	}

	err = e.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := e.requests.Create(ctx, req); err != nil {
			return err
		}
		if req.EntityType == repository.EntityInventoryCheckout && req.Status == repository.StatusApproved {
			if err := e.entities.SetInventoryApprovalStatus(ctx, req.EntityID, string(repository.StatusApproved)); err != nil {
				return errors.CascadeFailed(string(req.EntityType), req.EntityID, err)
			}
		}
		return nil
	})
	if errors.Is(err, errors.ErrCodeConflict) {
		// Lost a creation race: the other request is now the pending one.
		existing, lookupErr := e.pendingFor(ctx, in.EntityType, in.EntityID)
		if lookupErr == nil && existing != nil {
			return alreadyPending(existing), nil
		}
	}
	if err != nil {
		e.log.Error().Err(err).
			Str("entity_type", string(in.EntityType)).
			Str("entity_id", in.EntityID).
			Msg("Failed to create approval request")
		return nil, err
	}

	action, event, message := repository.AuditCreated, EventApprovalRequested, "submitted for approval"
	recipients := optional(req.ApproverID)
	if req.Status == repository.StatusApproved {
		action, event, message = repository.AuditAutoApproved, EventApprovalAutoApproved, "automatically approved"
		recipients = []string{req.RequesterID}
	}

	statusAfter := req.Status
	appendAudit(ctx, e.audit, e.log, &repository.ApprovalAuditEntry{
		ApprovalID:  req.ID,
		EntityType:  req.EntityType,
		EntityID:    req.EntityID,
		Action:      action,
		PerformedBy: requester.UserID,
		StatusAfter: &statusAfter,
		Metadata:    map[string]any{"admin": requester.IsAdmin()},
	})
	e.opts.notifier.PublishApprovalEvent(ctx, event, req, requester.UserID, recipients)
	e.opts.metrics.RequestCreated(req.EntityType, req.Status)

	e.log.Info().
		Str("approval_id", req.ID).
		Str("entity_type", string(req.EntityType)).
		Str("entity_id", req.EntityID).
		Str("status", string(req.Status)).
		Msg("Approval request created")

	return &Result{Success: true, Created: true, Message: message, Request: req}, nil
}

// pendingFor returns the latest request of an entity when it is still pending.
func (e *WorkflowEvaluator) pendingFor(ctx context.Context, entityType repository.EntityType, entityID string) (*repository.ApprovalRequest, error) {
	latest, err := e.requests.GetLatestForEntity(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	if latest != nil && latest.Status == repository.StatusPending {
		return latest, nil
	}
	return nil, nil
}

// resolveRoles fills in the requester's roles from the identity tables when
// the caller did not supply any.
func (e *WorkflowEvaluator) resolveRoles(ctx context.Context, p auth.Principal) (auth.Principal, error) {
	if p.UserID == "" {
		return p, errors.New(errors.ErrCodeUnauthorized, "requester is required")
	}
	if len(p.Roles) > 0 {
		return p, nil
	}

	user, err := e.identity.GetUser(ctx, p.UserID)
	if err != nil {
		return p, err
	}
	p.Roles = user.Roles
	return p, nil
}

// ── Reads ─────────────────────────────────────────────────────────────────────

// GetApprovalRequests lists requests matching the filter, oldest first.
func (e *WorkflowEvaluator) GetApprovalRequests(ctx context.Context, filter repository.ApprovalFilter) ([]*repository.ApprovalRequest, error) {
	if filter.EntityType != nil && !filter.EntityType.IsValid() {
		return nil, errors.InvalidInput("entity_type", fmt.Sprintf("unknown entity type %q", *filter.EntityType))
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, errors.InvalidInput("status", fmt.Sprintf("unknown status %q", *filter.Status))
	}
	return e.requests.List(ctx, filter)
}

// GetApprovalRequest returns one request.
func (e *WorkflowEvaluator) GetApprovalRequest(ctx context.Context, id string) (*repository.ApprovalRequest, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.InvalidInput("id", "id is required")
	}
	return e.requests.GetByID(ctx, id)
}

// ── Internal helpers ──────────────────────────────────────────────────────────

func validateEntity(entityType repository.EntityType, entityID string) error {
	if !entityType.IsValid() {
		return errors.InvalidInput("entity_type", fmt.Sprintf("unknown entity type %q", entityType))
	}
	if strings.TrimSpace(entityID) == "" {
		return errors.InvalidInput("entity_id", "entity_id is required")
	}
	return nil
}

func alreadyPending(req *repository.ApprovalRequest) *Result {
	return &Result{Success: true, Message: "approval request already pending", Request: req}
}

// trimmed returns nil for nil or blank strings.
func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func optional(s *string) []string {
	if s == nil {
		return nil
	}
	return []string{*s}
}

// appendAudit writes an audit entry and logs a warning on failure (never returns error).
func appendAudit(ctx context.Context, store AuditStore, log *logger.Logger, entry *repository.ApprovalAuditEntry) {
	if err := store.Append(ctx, entry); err != nil {
		log.Warn().Err(err).
			Str("approval_id", entry.ApprovalID).
			Str("action", entry.Action).
			Msg("Failed to write audit log entry")
	}
}
