// Package worker runs background jobs.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pesio-ai/be-proc-approvals/internal/platform/logger"
	"github.com/pesio-ai/be-proc-approvals/internal/repository"
	"github.com/pesio-ai/be-proc-approvals/internal/service"
)

// SystemActor is recorded as the performer of reminder audit entries.
const SystemActor = "system"

// PendingLister lists approval requests.
type PendingLister interface {
	List(ctx context.Context, filter repository.ApprovalFilter) ([]*repository.ApprovalRequest, error)
}

// ReminderJob nudges reviewers about requests that have been pending for
// longer than a threshold.
type ReminderJob struct {
	requests     PendingLister
	audit        service.AuditStore
	notifier     service.Notifier
	metrics      service.Metrics
	pendingAfter time.Duration
	runTimeout   time.Duration
	now          func() time.Time
	log          *logger.Logger

	scheduler *cron.Cron
}

// NewReminderJob creates a reminder job. notifier and metrics may be nil.
func NewReminderJob(
	requests PendingLister,
	audit service.AuditStore,
	notifier service.Notifier,
	metrics service.Metrics,
	pendingAfter time.Duration,
	log *logger.Logger,
) *ReminderJob {
	return &ReminderJob{
		requests:     requests,
		audit:        audit,
		notifier:     notifier,
		metrics:      metrics,
		pendingAfter: pendingAfter,
		runTimeout:   time.Minute,
		now:          time.Now,
		log:          log.Component("reminder"),
	}
}

// RunOnce sends one reminder per request pending since before
// now - pendingAfter and returns how many were sent.
func (j *ReminderJob) RunOnce(ctx context.Context) (int, error) {
	cutoff := j.now().Add(-j.pendingAfter)
	pending := repository.StatusPending

	reqs, err := j.requests.List(ctx, repository.ApprovalFilter{
		Status:        &pending,
		CreatedBefore: &cutoff,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list pending approvals: %w", err)
	}

	sent := 0
	for _, req := range reqs {
		if ctx.Err() != nil {
			break
		}

		recipient := req.RequesterID
		if req.ApproverID != nil && *req.ApproverID != "" {
			recipient = *req.ApproverID
		}

		if j.notifier != nil {
			j.notifier.PublishApprovalEvent(ctx, service.EventApprovalReminder, req, SystemActor, []string{recipient})
		}

		entry := &repository.ApprovalAuditEntry{
			ApprovalID:   req.ID,
			EntityType:   req.EntityType,
			EntityID:     req.EntityID,
			Action:       repository.AuditReminded,
			PerformedBy:  SystemActor,
			StatusBefore: &pending,
			StatusAfter:  &pending,
			Metadata: map[string]any{
				"recipient":     recipient,
				"pending_since": req.CreatedAt.UTC().Format(time.RFC3339),
			},
		}
		if err := j.audit.Append(ctx, entry); err != nil {
			j.log.Warn().Err(err).Str("approval_id", req.ID).Msg("Failed to record reminder in audit log")
		}
		sent++
	}

	if sent > 0 && j.metrics != nil {
		j.metrics.RemindersSent(sent)
	}
	return sent, nil
}

// Start schedules RunOnce on a standard five-field cron expression. Ticks
// that overlap a still-running pass are skipped.
func (j *ReminderJob) Start(schedule string) error {
	clog := cronLogger{log: j.log}
	c := cron.New(
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)

	if _, err := c.AddFunc(schedule, j.tick); err != nil {
		return fmt.Errorf("invalid reminder schedule %q: %w", schedule, err)
	}

	j.scheduler = c
	c.Start()
	j.log.Info().Str("schedule", schedule).Dur("pending_after", j.pendingAfter).Msg("Reminder job scheduled")
	return nil
}

// Stop halts the scheduler and waits for a running pass or ctx.
func (j *ReminderJob) Stop(ctx context.Context) {
	if j.scheduler == nil {
		return
	}
	done := j.scheduler.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		j.log.Warn().Msg("Reminder job did not finish before shutdown deadline")
	}
}

func (j *ReminderJob) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), j.runTimeout)
	defer cancel()

	start := time.Now()
	sent, err := j.RunOnce(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("Reminder pass failed")
		return
	}
	j.log.Info().Int("sent", sent).Dur("duration", time.Since(start)).Msg("Reminder pass complete")
}

// cronLogger adapts the service logger to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
