package service

import (
	"context"
	"time"

	"github.com/pesio-ai/be-proc-approvals/internal/repository"
)

// ApprovalStore persists approval requests. Implemented by
// repository.ApprovalRequestRepository and memory.RequestStore.
type ApprovalStore interface {
	Create(ctx context.Context, req *repository.ApprovalRequest) error
	GetByID(ctx context.Context, id string) (*repository.ApprovalRequest, error)
	GetLatestForEntity(ctx context.Context, entityType repository.EntityType, entityID string) (*repository.ApprovalRequest, error)
	List(ctx context.Context, filter repository.ApprovalFilter) ([]*repository.ApprovalRequest, error)
	// Transition returns nil when the request is missing or no longer pending.
	Transition(ctx context.Context, t repository.Transition) (*repository.ApprovalRequest, error)
}

// MatrixStore persists approval matrix levels and entries.
type MatrixStore interface {
	CreateLevel(ctx context.Context, level *repository.ApprovalMatrixLevel) error
	GetLevel(ctx context.Context, id string) (*repository.ApprovalMatrixLevel, error)
	ListLevels(ctx context.Context) ([]*repository.ApprovalMatrixLevel, error)
	UpdateLevel(ctx context.Context, level *repository.ApprovalMatrixLevel) error
	DeleteLevel(ctx context.Context, id string) error
	CreateEntry(ctx context.Context, entry *repository.ApprovalMatrixEntry) error
	ListEntries(ctx context.Context, levelID string) ([]*repository.ApprovalMatrixEntry, error)
	DeleteEntry(ctx context.Context, id string) error
}

// AuditStore appends to and reads the approval audit log.
type AuditStore interface {
	Append(ctx context.Context, entry *repository.ApprovalAuditEntry) error
	ListByEntity(ctx context.Context, entityType repository.EntityType, entityID string) ([]*repository.ApprovalAuditEntry, error)
}

// EntityStatusUpdater sets status fields on the business records approvals
// refer to.
type EntityStatusUpdater interface {
	SetProcurementRequestStatus(ctx context.Context, id, status string) error
	SetInventoryApprovalStatus(ctx context.Context, id, status string) error
}

// IdentityResolver looks up users and their role names.
type IdentityResolver interface {
	GetUser(ctx context.Context, id string) (*repository.User, error)
}

// Transactor runs fn as one unit of work. Stores called with the context
// passed to fn join it.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Notifier publishes approval events. Implementations never fail the caller.
type Notifier interface {
	PublishApprovalEvent(ctx context.Context, eventType string, req *repository.ApprovalRequest, actorID string, recipients []string)
}

// Metrics records workflow outcomes.
type Metrics interface {
	RequestCreated(entityType repository.EntityType, status repository.Status)
	ActionProcessed(action repository.Action, outcome string)
	RemindersSent(n int)
}

// CompletionHook runs after a decision has been committed.
type CompletionHook func(ctx context.Context, req *repository.ApprovalRequest, action repository.Action)

// Notification event types.
const (
	EventApprovalRequested    = "approval_requested"
	EventApprovalAutoApproved = "approval_auto_approved"
	EventApprovalDecided      = "approval_decided"
	EventApprovalReminder     = "approval_reminder"
)

// ── options ──────────────────────────────────────────────────────────────────

type options struct {
	notifier Notifier
	metrics  Metrics
	now      func() time.Time
	hooks    []CompletionHook
}

// Option configures a service.
type Option func(*options)

// WithNotifier sets the event publisher.
func WithNotifier(n Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithCompletionHook registers a hook run after every committed decision.
func WithCompletionHook(h CompletionHook) Option {
	return func(o *options) { o.hooks = append(o.hooks, h) }
}

func newOptions(opts []Option) options {
	o := options{
		notifier: nopNotifier{},
		metrics:  nopMetrics{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type nopNotifier struct{}

func (nopNotifier) PublishApprovalEvent(context.Context, string, *repository.ApprovalRequest, string, []string) {
}

type nopMetrics struct{}

func (nopMetrics) RequestCreated(repository.EntityType, repository.Status) {}
func (nopMetrics) ActionProcessed(repository.Action, string)               {}
func (nopMetrics) RemindersSent(int)                                        {}
