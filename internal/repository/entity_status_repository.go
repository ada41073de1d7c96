package repository

import (
	"context"

	"github.com/pesio-ai/be-proc-approvals/internal/platform/database"
	"github.com/pesio-ai/be-proc-approvals/internal/platform/errors"
)

// EntityStatusRepository updates status fields on business records owned by
// neighbouring feature areas. Each update is a plain "set status by id".
type EntityStatusRepository struct {
	db *database.DB
}

// NewEntityStatusRepository creates a new EntityStatusRepository.
func NewEntityStatusRepository(db *database.DB) *EntityStatusRepository {
	return &EntityStatusRepository{db: db}
}

// SetProcurementRequestStatus sets procurement_requests.status.
func (r *EntityStatusRepository) SetProcurementRequestStatus(ctx context.Context, id, status string) error {
	query := `
		UPDATE procurement_requests
		SET status     = $2,
		    updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update procurement request status")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("procurement_request", id)
	}
	return nil
}

// SetInventoryApprovalStatus sets inventory_transactions.approval_status.
func (r *EntityStatusRepository) SetInventoryApprovalStatus(ctx context.Context, id, status string) error {
	query := `
		UPDATE inventory_transactions
		SET approval_status = $2,
		    updated_at      = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update inventory transaction approval status")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("inventory_transaction", id)
	}
	return nil
}
