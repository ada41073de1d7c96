package worker

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-proc-approvals/internal/platform/logger"
	"github.com/pesio-ai/be-proc-approvals/internal/repository"
	"github.com/pesio-ai/be-proc-approvals/internal/repository/memory"
)

type sentReminder struct {
	approvalID string
	recipients []string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentReminder
}

func (n *recordingNotifier) PublishApprovalEvent(_ context.Context, eventType string, req *repository.ApprovalRequest, _ string, recipients []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if eventType == "approval_reminder" {
		n.sent = append(n.sent, sentReminder{req.ID, recipients})
	}
}

type reminderMetrics struct{ total int }

func (m *reminderMetrics) RequestCreated(repository.EntityType, repository.Status) {}
func (m *reminderMetrics) ActionProcessed(repository.Action, string)               {}
func (m *reminderMetrics) RemindersSent(n int)                                     { m.total += n }

func TestRunOnceRemindsStalePendingRequests(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	db := memory.New(memory.WithClock(func() time.Time { return clock }))
	requests := memory.NewRequestStore(db)
	audit := memory.NewAuditStore(db)

	mgr := "mgr-1"
	stale := &repository.ApprovalRequest{EntityType: repository.EntityInvoice, EntityID: "INV-1", Status: repository.StatusPending, RequesterID: "buyer-1", ApproverID: &mgr}
	unassigned := &repository.ApprovalRequest{EntityType: repository.EntityGRN, EntityID: "GRN-1", Status: repository.StatusPending, RequesterID: "buyer-2"}
	decided := &repository.ApprovalRequest{EntityType: repository.EntityInvoice, EntityID: "INV-2", Status: repository.StatusApproved, RequesterID: "buyer-1"}
	for _, r := range []*repository.ApprovalRequest{stale, unassigned, decided} {
		require.NoError(t, requests.Create(ctx, r))
	}

	clock = clock.Add(72 * time.Hour)
	fresh := &repository.ApprovalRequest{EntityType: repository.EntityInvoice, EntityID: "INV-3", Status: repository.StatusPending, RequesterID: "buyer-1"}
	require.NoError(t, requests.Create(ctx, fresh))

	notifier := &recordingNotifier{}
	metrics := &reminderMetrics{}
	job := NewReminderJob(requests, audit, notifier, metrics, 48*time.Hour, logger.Nop())
	job.now = func() time.Time { return clock }

	sent, err := job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, 2, metrics.total)

	require.Len(t, notifier.sent, 2)
	assert.Equal(t, sentReminder{stale.ID, []string{"mgr-1"}}, notifier.sent[0])
	assert.Equal(t, sentReminder{unassigned.ID, []string{"buyer-2"}}, notifier.sent[1])

	trail, err := audit.ListByEntity(ctx, repository.EntityInvoice, "INV-1")
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, repository.AuditReminded, trail[0].Action)
	assert.Equal(t, SystemActor, trail[0].PerformedBy)
	assert.Equal(t, "mgr-1", trail[0].Metadata["recipient"])
}

type failingLister struct{}

func (failingLister) List(context.Context, repository.ApprovalFilter) ([]*repository.ApprovalRequest, error) {
	return nil, stderrors.New("connection refused")
}

func TestRunOnceListFailure(t *testing.T) {
	db := memory.New()
	job := NewReminderJob(failingLister{}, memory.NewAuditStore(db), nil, nil, time.Hour, logger.Nop())

	sent, err := job.RunOnce(context.Background())
	require.Error(t, err)
	assert.Zero(t, sent)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	db := memory.New()
	job := NewReminderJob(memory.NewRequestStore(db), memory.NewAuditStore(db), nil, nil, time.Hour, logger.Nop())

	require.Error(t, job.Start("every now and then"))

	require.NoError(t, job.Start("@every 1h"))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	job.Stop(ctx)
}
