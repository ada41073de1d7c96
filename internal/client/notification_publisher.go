package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/pesio-ai/be-proc-approvals/internal/platform/logger"
	"github.com/pesio-ai/be-proc-approvals/internal/repository"
)

// publisher is the subset of *nats.Conn used here.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NotificationPublisher publishes approval workflow events to NATS for
// consumption by the notifications service.
//
// Subject convention: <prefix>.<event_type>
// Event types: approval_requested, approval_auto_approved, approval_decided,
// approval_reminder
//
// All publish operations are non-fatal: errors are logged but never propagated
// to the caller, so notification failures never interrupt approval operations.
type NotificationPublisher struct {
	nats   publisher
	prefix string
	log    *logger.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string         `json:"event_type"`
	ActorID      string         `json:"actor_id"`
	Recipients   []string       `json:"recipients"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	ApprovalID   string         `json:"approval_id"`
	Status       string         `json:"status"`
	IsActionable bool           `json:"is_actionable,omitempty"`
	Severity     string         `json:"severity,omitempty"`
	Category     string         `json:"category,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher on conn. A nil conn yields a
// publisher that drops every event.
func NewNotificationPublisher(conn *nats.Conn, prefix string, log *logger.Logger) *NotificationPublisher {
	p := &NotificationPublisher{prefix: prefix, log: log.Component("notifications")}
	if conn != nil {
		p.nats = conn
	}
	return p
}

// PublishApprovalEvent publishes one approval event. Events without
// recipients are dropped.
func (p *NotificationPublisher) PublishApprovalEvent(ctx context.Context, eventType string, req *repository.ApprovalRequest, actorID string, recipients []string) {
	if p.nats == nil || len(recipients) == 0 || ctx.Err() != nil {
		return
	}

	event := &NotificationEvent{
		EventType:    eventType,
		ActorID:      actorID,
		Recipients:   recipients,
		ResourceType: string(req.EntityType),
		ResourceID:   req.EntityID,
		ApprovalID:   req.ID,
		Status:       string(req.Status),
		IsActionable: req.Status == repository.StatusPending,
		Severity:     "info",
		Category:     "procurement_approval",
		OccurredAt:   time.Now().UTC(),
	}
	if req.Title != nil {
		event.Payload = map[string]any{"title": *req.Title}
	}
	if req.Comments != nil {
		if event.Payload == nil {
			event.Payload = map[string]any{}
		}
		event.Payload["comments"] = *req.Comments
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("%s.%s", p.prefix, eventType)
	if err := p.nats.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("approval_id", req.ID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("approval_id", req.ID).
		Int("recipients", len(recipients)).
		Msg("notification: event published")
}
