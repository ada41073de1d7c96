package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-proc-approvals/internal/platform/database"
	"github.com/pesio-ai/be-proc-approvals/internal/platform/errors"
)

// ApprovalMatrixRepository handles CRUD for approval_matrix_levels and
// approval_matrix_entries.
type ApprovalMatrixRepository struct {
	db *database.DB
}

// NewApprovalMatrixRepository creates a new ApprovalMatrixRepository.
func NewApprovalMatrixRepository(db *database.DB) *ApprovalMatrixRepository {
	return &ApprovalMatrixRepository{db: db}
}

// ── levels ───────────────────────────────────────────────────────────────────

// CreateLevel inserts a new level.
func (r *ApprovalMatrixRepository) CreateLevel(ctx context.Context, level *ApprovalMatrixLevel) error {
	query := `
		INSERT INTO approval_matrix_levels
		    (level_number, name, description, min_amount, max_amount)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		level.LevelNumber,
		level.Name,
		level.Description,
		level.MinAmount,
		level.MaxAmount,
	).Scan(&level.ID, &level.CreatedAt, &level.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval matrix level")
	}
	return nil
}

// GetLevel retrieves a level by primary key.
func (r *ApprovalMatrixRepository) GetLevel(ctx context.Context, id string) (*ApprovalMatrixLevel, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, errors.NotFound("approval_matrix_level", id)
	}

	query := `
		SELECT id, level_number, name, description,
		       min_amount, max_amount, created_at, updated_at
		FROM approval_matrix_levels
		WHERE id = $1
	`

	level, err := r.scanLevel(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval_matrix_level", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval matrix level")
	}
	return level, nil
}

// ListLevels returns every level ordered by level_number.
func (r *ApprovalMatrixRepository) ListLevels(ctx context.Context) ([]*ApprovalMatrixLevel, error) {
	query := `
		SELECT id, level_number, name, description,
		       min_amount, max_amount, created_at, updated_at
		FROM approval_matrix_levels
		ORDER BY level_number ASC, created_at ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approval matrix levels")
	}
	defer rows.Close()

	var levels []*ApprovalMatrixLevel
	for rows.Next() {
		level, err := r.scanLevel(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval matrix level")
		}
		levels = append(levels, level)
	}
	return levels, rows.Err()
}

// UpdateLevel persists changes to an existing level.
func (r *ApprovalMatrixRepository) UpdateLevel(ctx context.Context, level *ApprovalMatrixLevel) error {
	if _, err := uuid.Parse(level.ID); err != nil {
		return errors.NotFound("approval_matrix_level", level.ID)
	}

	query := `
		UPDATE approval_matrix_levels
		SET level_number = $2,
		    name         = $3,
		    description  = $4,
		    min_amount   = $5,
		    max_amount   = $6,
		    updated_at   = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		level.ID,
		level.LevelNumber,
		level.Name,
		level.Description,
		level.MinAmount,
		level.MaxAmount,
	).Scan(&level.CreatedAt, &level.UpdatedAt)
	if err == pgx.ErrNoRows {
		return errors.NotFound("approval_matrix_level", level.ID)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update approval matrix level")
	}
	return nil
}

// DeleteLevel removes a level together with its entries.
func (r *ApprovalMatrixRepository) DeleteLevel(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.NotFound("approval_matrix_level", id)
	}

	return r.db.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := r.db.Exec(ctx, `DELETE FROM approval_matrix_entries WHERE level_id = $1`, id); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete approval matrix entries")
		}

		tag, err := r.db.Exec(ctx, `DELETE FROM approval_matrix_levels WHERE id = $1`, id)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete approval matrix level")
		}
		if tag.RowsAffected() == 0 {
			return errors.NotFound("approval_matrix_level", id)
		}
		return nil
	})
}

// ── entries ──────────────────────────────────────────────────────────────────

// CreateEntry inserts an entry under an existing level.
func (r *ApprovalMatrixRepository) CreateEntry(ctx context.Context, entry *ApprovalMatrixEntry) error {
	if _, err := uuid.Parse(entry.LevelID); err != nil {
		return errors.NotFound("approval_matrix_level", entry.LevelID)
	}

	query := `
		INSERT INTO approval_matrix_entries
		    (level_id, approver_id, department, sequence_order)
		SELECT l.id, $2, $3, $4
		FROM approval_matrix_levels l
		WHERE l.id = $1
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		entry.LevelID,
		entry.ApproverID,
		entry.Department,
		entry.SequenceOrder,
	).Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt)
	if err == pgx.ErrNoRows {
		return errors.NotFound("approval_matrix_level", entry.LevelID)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval matrix entry")
	}
	return nil
}

// ListEntries returns the entries of one level ordered by sequence_order.
func (r *ApprovalMatrixRepository) ListEntries(ctx context.Context, levelID string) ([]*ApprovalMatrixEntry, error) {
	if _, err := uuid.Parse(levelID); err != nil {
		return nil, nil
	}

	query := `
		SELECT id, level_id, approver_id, department,
		       sequence_order, created_at, updated_at
		FROM approval_matrix_entries
		WHERE level_id = $1
		ORDER BY sequence_order ASC, created_at ASC
	`

	rows, err := r.db.Query(ctx, query, levelID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approval matrix entries")
	}
	defer rows.Close()

	var entries []*ApprovalMatrixEntry
	for rows.Next() {
		entry := &ApprovalMatrixEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.LevelID,
			&entry.ApproverID,
			&entry.Department,
			&entry.SequenceOrder,
			&entry.CreatedAt,
			&entry.UpdatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval matrix entry")
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// DeleteEntry removes a single entry.
func (r *ApprovalMatrixRepository) DeleteEntry(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.NotFound("approval_matrix_entry", id)
	}

	tag, err := r.db.Exec(ctx, `DELETE FROM approval_matrix_entries WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete approval matrix entry")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("approval_matrix_entry", id)
	}
	return nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

type levelScanner interface {
	Scan(dest ...any) error
}

func (r *ApprovalMatrixRepository) scanLevel(row levelScanner) (*ApprovalMatrixLevel, error) {
	level := &ApprovalMatrixLevel{}
	err := row.Scan(
		&level.ID,
		&level.LevelNumber,
		&level.Name,
		&level.Description,
		&level.MinAmount,
		&level.MaxAmount,
		&level.CreatedAt,
		&level.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return level, nil
}
