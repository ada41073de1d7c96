package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/pesio-ai/be-proc-approvals/internal/platform/errors"
	"github.com/pesio-ai/be-proc-approvals/internal/platform/logger"
	"github.com/pesio-ai/be-proc-approvals/internal/repository"
)

// ApprovalMatrixService manages the amount-tiered approver configuration used
// for purchase orders.
type ApprovalMatrixService struct {
	store MatrixStore
	log   *logger.Logger
}

// NewApprovalMatrixService creates a new ApprovalMatrixService.
func NewApprovalMatrixService(store MatrixStore, log *logger.Logger) *ApprovalMatrixService {
	return &ApprovalMatrixService{store: store, log: log.Component("approval_matrix")}
}

// LevelInput carries the editable fields of a level.
type LevelInput struct {
	LevelNumber int
	Name        string
	Description *string
	MinAmount   int64
	MaxAmount   *int64
}

func (in LevelInput) validate() error {
	if in.LevelNumber <= 0 {
		return errors.InvalidInput("level_number", "level_number must be positive")
	}
	if strings.TrimSpace(in.Name) == "" {
		return errors.InvalidInput("name", "name is required")
	}
	if in.MinAmount < 0 {
		return errors.InvalidInput("min_amount", "min_amount must not be negative")
	}
	if in.MaxAmount != nil && *in.MaxAmount <= in.MinAmount {
		return errors.InvalidInput("max_amount", "max_amount must be greater than min_amount")
	}
	return nil
}

// EntryInput carries the fields of a new entry.
type EntryInput struct {
	LevelID       string
	ApproverID    string
	Department    *string
	SequenceOrder int
}

// ResolvedLevel is a level with its approver chain.
type ResolvedLevel struct {
	Level   *repository.ApprovalMatrixLevel   `json:"level"`
	Entries []*repository.ApprovalMatrixEntry `json:"entries"`
}

// ── Levels ────────────────────────────────────────────────────────────────────

// CreateLevel adds a level.
func (s *ApprovalMatrixService) CreateLevel(ctx context.Context, in LevelInput) (*repository.ApprovalMatrixLevel, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	level := &repository.ApprovalMatrixLevel{
		LevelNumber: in.LevelNumber,
		Name:        strings.TrimSpace(in.Name),
		Description: trimmed(in.Description),
		MinAmount:   in.MinAmount,
		MaxAmount:   in.MaxAmount,
	}
	if err := s.store.CreateLevel(ctx, level); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("level_id", level.ID).
		Int("level_number", level.LevelNumber).
		Msg("Approval matrix level created")
	return level, nil
}

// UpdateLevel replaces the editable fields of a level.
func (s *ApprovalMatrixService) UpdateLevel(ctx context.Context, id string, in LevelInput) (*repository.ApprovalMatrixLevel, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.InvalidInput("id", "id is required")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	level := &repository.ApprovalMatrixLevel{
		ID:          id,
		LevelNumber: in.LevelNumber,
		Name:        strings.TrimSpace(in.Name),
		Description: trimmed(in.Description),
		MinAmount:   in.MinAmount,
		MaxAmount:   in.MaxAmount,
	}
	if err := s.store.UpdateLevel(ctx, level); err != nil {
		return nil, err
	}
	return level, nil
}

// DeleteLevel removes a level and every entry under it.
func (s *ApprovalMatrixService) DeleteLevel(ctx context.Context, id string) error {
	if err := s.store.DeleteLevel(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("level_id", id).Msg("Approval matrix level deleted")
	return nil
}

// GetLevel returns one level.
func (s *ApprovalMatrixService) GetLevel(ctx context.Context, id string) (*repository.ApprovalMatrixLevel, error) {
	return s.store.GetLevel(ctx, id)
}

// ListLevels returns all levels ordered by level_number.
func (s *ApprovalMatrixService) ListLevels(ctx context.Context) ([]*repository.ApprovalMatrixLevel, error) {
	return s.store.ListLevels(ctx)
}

// ── Entries ───────────────────────────────────────────────────────────────────

// CreateEntry binds an approver to a level.
func (s *ApprovalMatrixService) CreateEntry(ctx context.Context, in EntryInput) (*repository.ApprovalMatrixEntry, error) {
	if strings.TrimSpace(in.LevelID) == "" {
		return nil, errors.InvalidInput("level_id", "level_id is required")
	}
	if strings.TrimSpace(in.ApproverID) == "" {
		return nil, errors.InvalidInput("approver_id", "approver_id is required")
	}
	if in.SequenceOrder < 1 {
		return nil, errors.InvalidInput("sequence_order", "sequence_order must be at least 1")
	}

	entry := &repository.ApprovalMatrixEntry{
		LevelID:       in.LevelID,
		ApproverID:    strings.TrimSpace(in.ApproverID),
		Department:    trimmed(in.Department),
		SequenceOrder: in.SequenceOrder,
	}
	if err := s.store.CreateEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// ListEntries returns the approver chain of a level.
func (s *ApprovalMatrixService) ListEntries(ctx context.Context, levelID string) ([]*repository.ApprovalMatrixEntry, error) {
	if strings.TrimSpace(levelID) == "" {
		return nil, errors.InvalidInput("level_id", "level_id is required")
	}
	return s.store.ListEntries(ctx, levelID)
}

// DeleteEntry removes one entry.
func (s *ApprovalMatrixService) DeleteEntry(ctx context.Context, id string) error {
	return s.store.DeleteEntry(ctx, id)
}

// ── Lookup ────────────────────────────────────────────────────────────────────

// ResolveLevel returns the first level, by level_number, whose range contains
// amount, together with its entries.
func (s *ApprovalMatrixService) ResolveLevel(ctx context.Context, amount int64) (*ResolvedLevel, error) {
	if amount < 0 {
		return nil, errors.InvalidInput("amount", "amount must not be negative")
	}

	levels, err := s.store.ListLevels(ctx)
	if err != nil {
		return nil, err
	}

	for _, level := range levels {
		if !level.Contains(amount) {
			continue
		}
		entries, err := s.store.ListEntries(ctx, level.ID)
		if err != nil {
			return nil, err
		}
		if entries == nil {
			entries = []*repository.ApprovalMatrixEntry{}
		}
		return &ResolvedLevel{Level: level, Entries: entries}, nil
	}
	return nil, errors.NotFound("approval_matrix_level", fmt.Sprintf("amount %d", amount))
}
