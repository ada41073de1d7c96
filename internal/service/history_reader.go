package service

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pesio-ai/be-proc-approvals/internal/platform/logger"
	"github.com/pesio-ai/be-proc-approvals/internal/repository"
)

// UnknownUser is shown when a requester's name cannot be resolved.
const UnknownUser = "Unknown user"

// maxNameLookups bounds concurrent identity lookups per history read.
const maxNameLookups = 8

// ApprovalEvent is one row of an entity's approval timeline.
type ApprovalEvent struct {
	repository.ApprovalRequest
	RequesterName string `json:"requester_name"`
}

// HistoryReader reconstructs approval timelines for display.
type HistoryReader struct {
	requests ApprovalStore
	identity IdentityResolver
	audit    AuditStore
	log      *logger.Logger
}

// NewHistoryReader creates a new HistoryReader.
func NewHistoryReader(requests ApprovalStore, identity IdentityResolver, audit AuditStore, log *logger.Logger) *HistoryReader {
	return &HistoryReader{
		requests: requests,
		identity: identity,
		audit:    audit,
		log:      log.Component("history_reader"),
	}
}

// GetApprovalDetails returns every request of an entity, oldest first, with
// requester names resolved. It never fails: a failed primary read yields an
// empty timeline and a failed name lookup yields UnknownUser for that row.
func (h *HistoryReader) GetApprovalDetails(ctx context.Context, entityType repository.EntityType, entityID string) []ApprovalEvent {
	requests, err := h.requests.List(ctx, repository.ApprovalFilter{
		EntityType: &entityType,
		EntityID:   &entityID,
	})
	if err != nil {
		h.log.Warn().Err(err).
			Str("entity_type", string(entityType)).
			Str("entity_id", entityID).
			Msg("Failed to read approval history")
		return []ApprovalEvent{}
	}

	names := h.resolveNames(ctx, requests)

	events := make([]ApprovalEvent, 0, len(requests))
	for _, req := range requests {
		events = append(events, ApprovalEvent{
			ApprovalRequest: *req,
			RequesterName:   names[req.RequesterID],
		})
	}
	return events
}

// resolveNames looks up each distinct requester once.
func (h *HistoryReader) resolveNames(ctx context.Context, requests []*repository.ApprovalRequest) map[string]string {
	names := make(map[string]string)
	var ids []string
	for _, req := range requests {
		if _, seen := names[req.RequesterID]; !seen {
			names[req.RequesterID] = UnknownUser
			ids = append(ids, req.RequesterID)
		}
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(maxNameLookups)

	for _, id := range ids {
		id := id
		g.Go(func() error {
			user, err := h.identity.GetUser(ctx, id)
			if err != nil {
				h.log.Debug().Err(err).Str("user_id", id).Msg("Requester lookup failed")
				return nil
			}
			mu.Lock()
			names[id] = user.DisplayName()
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return names
}

// GetAuditTrail returns the audit log of an entity, oldest first.
func (h *HistoryReader) GetAuditTrail(ctx context.Context, entityType repository.EntityType, entityID string) ([]*repository.ApprovalAuditEntry, error) {
	if err := validateEntity(entityType, entityID); err != nil {
		return nil, err
	}
	return h.audit.ListByEntity(ctx, entityType, entityID)
}
