package repository

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pesio-ai/be-proc-approvals/internal/platform/database"
	"github.com/pesio-ai/be-proc-approvals/internal/platform/errors"
)

const uniqueViolation = "23505"

const approvalRequestColumns = `
	id, entity_type, entity_id, status,
	requester_id, approver_id, title, comments,
	created_at, approval_date, updated_at`

// ApprovalRequestRepository stores approval requests in PostgreSQL.
type ApprovalRequestRepository struct {
	db *database.DB
}

// NewApprovalRequestRepository creates a new ApprovalRequestRepository.
func NewApprovalRequestRepository(db *database.DB) *ApprovalRequestRepository {
	return &ApprovalRequestRepository{db: db}
}

// Create inserts a request. A second pending request for the same entity
// violates approval_requests_one_pending and comes back as a Conflict.
func (r *ApprovalRequestRepository) Create(ctx context.Context, req *ApprovalRequest) error {
	query := `
		INSERT INTO approval_requests
		    (entity_type, entity_id, status,
		     requester_id, approver_id, title, comments,
		     approval_date)
		VALUES ($1, $2, $3,
		        $4, $5, $6, $7,
		        $8)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		req.EntityType,
		req.EntityID,
		req.Status,
		req.RequesterID,
		req.ApproverID,
		req.Title,
		req.Comments,
		req.ApprovalDate,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return errors.Wrap(err, errors.ErrCodeConflict,
				fmt.Sprintf("pending approval already exists for %s %s", req.EntityType, req.EntityID))
		}
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval request")
	}
	return nil
}

// GetByID retrieves a request by primary key.
func (r *ApprovalRequestRepository) GetByID(ctx context.Context, id string) (*ApprovalRequest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.NotFound("approval_request", id)
	}

	query := `SELECT ` + approvalRequestColumns + `
		FROM approval_requests
		WHERE id = $1
	`

	req, err := r.scanRequest(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval_request", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval request")
	}
	return req, nil
}

// GetLatestForEntity returns the most recently created request for an entity.
// Returns nil when the entity has no requests.
func (r *ApprovalRequestRepository) GetLatestForEntity(ctx context.Context, entityType EntityType, entityID string) (*ApprovalRequest, error) {
	query := `SELECT ` + approvalRequestColumns + `
		FROM approval_requests
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	req, err := r.scanRequest(r.db.QueryRow(ctx, query, entityType, entityID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get latest approval request")
	}
	return req, nil
}

// List returns requests matching the filter, oldest first.
func (r *ApprovalRequestRepository) List(ctx context.Context, filter ApprovalFilter) ([]*ApprovalRequest, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.EntityType != nil {
		add("entity_type = $%d", *filter.EntityType)
	}
	if filter.EntityID != nil {
		add("entity_id = $%d", *filter.EntityID)
	}
	if filter.Status != nil {
		add("status = $%d", *filter.Status)
	}
	if filter.RequesterID != nil {
		add("requester_id = $%d", *filter.RequesterID)
	}
	if filter.ApproverID != nil {
		add("approver_id = $%d", *filter.ApproverID)
	}
	if filter.CreatedBefore != nil {
		add("created_at < $%d", *filter.CreatedBefore)
	}

	query := `SELECT ` + approvalRequestColumns + `
		FROM approval_requests`
	if len(conds) > 0 {
		query += "\n\t\tWHERE " + strings.Join(conds, " AND ")
	}
	query += "\n\t\tORDER BY created_at ASC, id ASC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approval requests")
	}
	defer rows.Close()

	var requests []*ApprovalRequest
	for rows.Next() {
		req, err := r.scanRequest(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval request")
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approval requests")
	}
	return requests, nil
}

// Transition moves a pending request to its decided status. The update only
// matches while the row is still pending, so of two concurrent callers exactly
// one gets the row back. Returns nil when nothing was updated.
func (r *ApprovalRequestRepository) Transition(ctx context.Context, t Transition) (*ApprovalRequest, error) {
	if _, err := uuid.Parse(t.ID); err != nil {
		return nil, nil
	}

	query := `
		UPDATE approval_requests
		SET status        = $2,
		    comments      = $3,
		    approval_date = $4,
		    updated_at    = NOW()
		WHERE id = $1
		  AND status = 'pending'
		RETURNING ` + approvalRequestColumns

	req, err := r.scanRequest(r.db.QueryRow(ctx, query, t.ID, t.Status, t.Comments, t.ApprovalDate))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to update approval request")
	}
	return req, nil
}

// ── scan helper ───────────────────────────────────────────────────────────────

type requestScanner interface {
	Scan(dest ...any) error
}

func (r *ApprovalRequestRepository) scanRequest(row requestScanner) (*ApprovalRequest, error) {
	req := &ApprovalRequest{}
	err := row.Scan(
		&req.ID,
		&req.EntityType,
		&req.EntityID,
		&req.Status,
		&req.RequesterID,
		&req.ApproverID,
		&req.Title,
		&req.Comments,
		&req.CreatedAt,
		&req.ApprovalDate,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return req, nil
}
