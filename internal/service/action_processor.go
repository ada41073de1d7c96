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

// procurementStatusFor maps a decision to the status it leaves on a
// procurement request.
var procurementStatusFor = map[repository.Action]string{
	repository.ActionApprove:  "approved",
	repository.ActionReject:   "rejected",
	repository.ActionMoreInfo: "in_review",
}

// ActionProcessor applies reviewer decisions to pending approval requests.
type ActionProcessor struct {
	tx       Transactor
	requests ApprovalStore
	entities EntityStatusUpdater
	audit    AuditStore
	log      *logger.Logger
	opts     options
}

// NewActionProcessor creates a new ActionProcessor.
func NewActionProcessor(
	tx Transactor,
	requests ApprovalStore,
	entities EntityStatusUpdater,
	audit AuditStore,
	log *logger.Logger,
	opts ...Option,
) *ActionProcessor {
	return &ActionProcessor{
		tx:       tx,
		requests: requests,
		entities: entities,
		audit:    audit,
		log:      log.Component("action_processor"),
		opts:     newOptions(opts),
	}
}

// ProcessAction records a decision on a pending request and cascades it to the
// business entity in the same transaction. Reject and more_info require
// comments. A request that already left pending fails with AlreadyProcessed
// and is not modified.
func (p *ActionProcessor) ProcessAction(
	ctx context.Context,
	actor auth.Principal,
	approvalID string,
	action repository.Action,
	comments *string,
) (*repository.ApprovalRequest, error) {
	updated, err := p.processAction(ctx, actor, approvalID, action, comments)
	if err != nil {
		p.opts.metrics.ActionProcessed(action, string(errors.CodeOf(err)))
		return nil, err
	}
	p.opts.metrics.ActionProcessed(action, "ok")
	return updated, nil
}

func (p *ActionProcessor) processAction(
	ctx context.Context,
	actor auth.Principal,
	approvalID string,
	action repository.Action,
	comments *string,
) (*repository.ApprovalRequest, error) {
	target, ok := action.TargetStatus()
	if !ok {
		return nil, errors.InvalidInput("action", fmt.Sprintf("unknown action %q", action))
	}
	comments = trimmed(comments)
	if action.RequiresComments() && comments == nil {
		return nil, errors.InvalidInput("comments", fmt.Sprintf("comments are required to %s", describe(action)))
	}
	if actor.UserID == "" {
		return nil, errors.New(errors.ErrCodeUnauthorized, "actor is required")
	}
	if strings.TrimSpace(approvalID) == "" {
		return nil, errors.InvalidInput("id", "id is required")
	}

	current, err := p.requests.GetByID(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if current.Status != repository.StatusPending {
		return nil, errors.AlreadyProcessed(current.ID, string(current.Status))
	}
	if err := assertCanAct(current, actor); err != nil {
		return nil, err
	}

	var updated *repository.ApprovalRequest
	err = p.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		updated, err = p.requests.Transition(ctx, repository.Transition{
			ID:           approvalID,
			Status:       target,
			Comments:     comments,
			ApprovalDate: p.opts.now(),
		})
		if err != nil {
			return err
		}
		if updated == nil {
			latest, err := p.requests.GetByID(ctx, approvalID)
			if err != nil {
				return err
			}
			return errors.AlreadyProcessed(latest.ID, string(latest.Status))
		}
		return p.cascade(ctx, updated, action)
	})
	if err != nil {
		event := p.log.Warn()
		if errors.Is(err, errors.ErrCodeCascadeFailed) || errors.Is(err, errors.ErrCodeInternal) {
			event = p.log.Error()
		}
		event.Err(err).
			Str("approval_id", approvalID).
			Str("action", string(action)).
			Str("actor", actor.UserID).
			Msg("Failed to process approval action")
		return nil, err
	}

	statusBefore := repository.StatusPending
	statusAfter := updated.Status
	metadata := map[string]any{}
	if comments != nil {
		metadata["comments"] = *comments
	}
	appendAudit(ctx, p.audit, p.log, &repository.ApprovalAuditEntry{
		ApprovalID:   updated.ID,
		EntityType:   updated.EntityType,
		EntityID:     updated.EntityID,
		Action:       string(target),
		PerformedBy:  actor.UserID,
		StatusBefore: &statusBefore,
		StatusAfter:  &statusAfter,
		Metadata:     metadata,
	})
	p.opts.notifier.PublishApprovalEvent(ctx, EventApprovalDecided, updated, actor.UserID, []string{updated.RequesterID})

	p.log.Info().
		Str("approval_id", updated.ID).
		Str("entity_type", string(updated.EntityType)).
		Str("entity_id", updated.EntityID).
		Str("status", string(updated.Status)).
		Str("actor", actor.UserID).
		Msg("Approval action processed")

	for _, hook := range p.opts.hooks {
		hook(ctx, updated, action)
	}

	return updated, nil
}

// cascade pushes the decision onto the business entity. Only procurement
// requests are cascaded here; other entity types own their own approval
// updates.
func (p *ActionProcessor) cascade(ctx context.Context, req *repository.ApprovalRequest, action repository.Action) error {
	if req.EntityType != repository.EntityProcurementRequest {
		return nil
	}
	if err := p.entities.SetProcurementRequestStatus(ctx, req.EntityID, procurementStatusFor[action]); err != nil {
		return errors.CascadeFailed(string(req.EntityType), req.EntityID, err)
	}
	return nil
}

// ── Authorization helper ──────────────────────────────────────────────────────

// assertCanAct checks that the actor is the assigned approver or an admin.
// Unassigned requests can be acted on by anyone.
func assertCanAct(req *repository.ApprovalRequest, actor auth.Principal) error {
	if req.ApproverID == nil || *req.ApproverID == actor.UserID || actor.IsAdmin() {
		return nil
	}
	return errors.New(errors.ErrCodeForbidden,
		"user is not authorized to act on this approval request")
}

func describe(action repository.Action) string {
	if action == repository.ActionMoreInfo {
		return "request more information"
	}
	return string(action)
}
