package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pesio-ai/be-proc-approvals/internal/platform/auth"
	"github.com/pesio-ai/be-proc-approvals/internal/platform/logger"
	"github.com/pesio-ai/be-proc-approvals/internal/repository"
	"github.com/pesio-ai/be-proc-approvals/internal/repository/memory"
)

var fixedNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type publishedEvent struct {
	eventType  string
	approvalID string
	actorID    string
	recipients []string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (n *recordingNotifier) PublishApprovalEvent(_ context.Context, eventType string, req *repository.ApprovalRequest, actorID string, recipients []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, publishedEvent{eventType, req.ID, actorID, recipients})
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.eventType)
	}
	return out
}

type countingMetrics struct {
	mu       sync.Mutex
	created  map[repository.Status]int
	outcomes map[string]int
}

func (m *countingMetrics) RequestCreated(_ repository.EntityType, status repository.Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created[status]++
}

func (m *countingMetrics) ActionProcessed(_ repository.Action, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[outcome]++
}

func (m *countingMetrics) RemindersSent(int) {}

type fixture struct {
	db        *memory.DB
	requests  *memory.RequestStore
	audit     *memory.AuditStore
	notifier  *recordingNotifier
	metrics   *countingMetrics
	evaluator *WorkflowEvaluator
	processor *ActionProcessor
	history   *HistoryReader
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	db := memory.New()
	f := &fixture{
		db:       db,
		requests: memory.NewRequestStore(db),
		audit:    memory.NewAuditStore(db),
		notifier: &recordingNotifier{},
		metrics: &countingMetrics{
			created:  make(map[repository.Status]int),
			outcomes: make(map[string]int),
		},
	}

	opts = append([]Option{
		WithNotifier(f.notifier),
		WithMetrics(f.metrics),
		WithClock(func() time.Time { return fixedNow }),
	}, opts...)

	entities := memory.NewEntityStore(db)
	users := memory.NewUserStore(db)
	log := logger.Nop()

	f.evaluator = NewWorkflowEvaluator(db, f.requests, entities, users, f.audit, log, opts...)
	f.processor = NewActionProcessor(db, f.requests, entities, f.audit, log, opts...)
	f.history = NewHistoryReader(f.requests, users, f.audit, log)

	db.AddUser(repository.User{ID: "buyer-1", FullName: "Bea Buyer", Roles: []string{"Buyer"}})
	db.AddUser(repository.User{ID: "admin-1", FullName: "Ada Admin", Roles: []string{"Admin"}})
	db.AddUser(repository.User{ID: "mgr-1", Email: "mgr@example.com", Roles: []string{"manager"}})
	return f
}

var (
	buyer   = auth.Principal{UserID: "buyer-1", Roles: []string{"buyer"}}
	admin   = auth.Principal{UserID: "admin-1", Roles: []string{"ADMIN"}}
	manager = auth.Principal{UserID: "mgr-1", Roles: []string{"manager"}}
)

func ptr[T any](v T) *T { return &v }

// submit creates a pending procurement request approval for entityID.
func (f *fixture) submit(t *testing.T, entityID string) *repository.ApprovalRequest {
	t.Helper()
	f.db.AddProcurementRequest(entityID, "submitted")
	res, err := f.evaluator.CreateApprovalRequest(context.Background(), buyer, CreateApprovalInput{
		EntityType: repository.EntityProcurementRequest,
		EntityID:   entityID,
	})
	if err != nil {
		t.Fatalf("submit %s: %v", entityID, err)
	}
	return res.Request
}
