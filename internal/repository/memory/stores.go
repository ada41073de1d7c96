package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-proc-approvals/internal/platform/errors"
	"github.com/pesio-ai/be-proc-approvals/internal/repository"
)

// ── approval requests ────────────────────────────────────────────────────────

// RequestStore is the memory counterpart of repository.ApprovalRequestRepository.
type RequestStore struct{ db *DB }

// NewRequestStore creates a RequestStore on db.
func NewRequestStore(db *DB) *RequestStore { return &RequestStore{db: db} }

// Create inserts a request. A second pending request for the same entity is a
// Conflict.
func (s *RequestStore) Create(ctx context.Context, req *repository.ApprovalRequest) error {
	defer s.db.lock(ctx)()

	if req.Status == repository.StatusPending {
		for _, existing := range s.db.state.requests {
			if existing.Status == repository.StatusPending &&
				existing.EntityType == req.EntityType &&
				existing.EntityID == req.EntityID {
				return errors.New(errors.ErrCodeConflict,
					fmt.Sprintf("pending approval already exists for %s %s", req.EntityType, req.EntityID))
			}
		}
	}

	now := s.db.now()
	req.ID = uuid.NewString()
	req.CreatedAt = now
	req.UpdatedAt = now
	s.db.state.requests = append(s.db.state.requests, *req)
	return nil
}

// GetByID retrieves a request by id.
func (s *RequestStore) GetByID(ctx context.Context, id string) (*repository.ApprovalRequest, error) {
	defer s.db.lock(ctx)()

	if i := s.index(id); i >= 0 {
		req := s.db.state.requests[i]
		return &req, nil
	}
	return nil, errors.NotFound("approval_request", id)
}

// GetLatestForEntity returns the most recently created request for an entity,
// or nil when there is none.
func (s *RequestStore) GetLatestForEntity(ctx context.Context, entityType repository.EntityType, entityID string) (*repository.ApprovalRequest, error) {
	defer s.db.lock(ctx)()

	var latest *repository.ApprovalRequest
	for i := range s.db.state.requests {
		req := s.db.state.requests[i]
		if req.EntityType != entityType || req.EntityID != entityID {
			continue
		}
		// Later inserts win ties on created_at.
		if latest == nil || !req.CreatedAt.Before(latest.CreatedAt) {
			latest = &req
		}
	}
	return latest, nil
}

// List returns requests matching the filter, oldest first.
func (s *RequestStore) List(ctx context.Context, filter repository.ApprovalFilter) ([]*repository.ApprovalRequest, error) {
	defer s.db.lock(ctx)()

	var out []*repository.ApprovalRequest
	for _, req := range s.db.state.requests {
		req := req
		if !matches(req, filter) {
			continue
		}
		out = append(out, &req)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func matches(req repository.ApprovalRequest, f repository.ApprovalFilter) bool {
	switch {
	case f.EntityType != nil && req.EntityType != *f.EntityType:
		return false
	case f.EntityID != nil && req.EntityID != *f.EntityID:
		return false
	case f.Status != nil && req.Status != *f.Status:
		return false
	case f.RequesterID != nil && req.RequesterID != *f.RequesterID:
		return false
	case f.ApproverID != nil && (req.ApproverID == nil || *req.ApproverID != *f.ApproverID):
		return false
	case f.CreatedBefore != nil && !req.CreatedAt.Before(*f.CreatedBefore):
		return false
	}
	return true
}

// Transition moves a pending request to its decided status. Returns nil when
// the request does not exist or is no longer pending.
func (s *RequestStore) Transition(ctx context.Context, t repository.Transition) (*repository.ApprovalRequest, error) {
	defer s.db.lock(ctx)()

	i := s.index(t.ID)
	if i < 0 || s.db.state.requests[i].Status != repository.StatusPending {
		return nil, nil
	}

	req := &s.db.state.requests[i]
	approvalDate := t.ApprovalDate
	req.Status = t.Status
	req.Comments = t.Comments
	req.ApprovalDate = &approvalDate
	req.UpdatedAt = s.db.now()

	out := *req
	return &out, nil
}

func (s *RequestStore) index(id string) int {
	return slices.IndexFunc(s.db.state.requests, func(r repository.ApprovalRequest) bool {
		return r.ID == id
	})
}

// ── approval matrix ──────────────────────────────────────────────────────────

// MatrixStore is the memory counterpart of repository.ApprovalMatrixRepository.
type MatrixStore struct{ db *DB }

// NewMatrixStore creates a MatrixStore on db.
func NewMatrixStore(db *DB) *MatrixStore { return &MatrixStore{db: db} }

// CreateLevel inserts a level.
func (s *MatrixStore) CreateLevel(ctx context.Context, level *repository.ApprovalMatrixLevel) error {
	defer s.db.lock(ctx)()

	now := s.db.now()
	level.ID = uuid.NewString()
	level.CreatedAt = now
	level.UpdatedAt = now
	s.db.state.levels = append(s.db.state.levels, *level)
	return nil
}

// GetLevel retrieves a level by id.
func (s *MatrixStore) GetLevel(ctx context.Context, id string) (*repository.ApprovalMatrixLevel, error) {
	defer s.db.lock(ctx)()

	if i := s.levelIndex(id); i >= 0 {
		level := s.db.state.levels[i]
		return &level, nil
	}
	return nil, errors.NotFound("approval_matrix_level", id)
}

// ListLevels returns every level ordered by level_number.
func (s *MatrixStore) ListLevels(ctx context.Context) ([]*repository.ApprovalMatrixLevel, error) {
	defer s.db.lock(ctx)()

	out := make([]*repository.ApprovalMatrixLevel, 0, len(s.db.state.levels))
	for _, level := range s.db.state.levels {
		level := level
		out = append(out, &level)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LevelNumber < out[j].LevelNumber
	})
	return out, nil
}

// UpdateLevel replaces the mutable fields of a level.
func (s *MatrixStore) UpdateLevel(ctx context.Context, level *repository.ApprovalMatrixLevel) error {
	defer s.db.lock(ctx)()

	i := s.levelIndex(level.ID)
	if i < 0 {
		return errors.NotFound("approval_matrix_level", level.ID)
	}

	stored := &s.db.state.levels[i]
	stored.LevelNumber = level.LevelNumber
	stored.Name = level.Name
	stored.Description = level.Description
	stored.MinAmount = level.MinAmount
	stored.MaxAmount = level.MaxAmount
	stored.UpdatedAt = s.db.now()

	level.CreatedAt = stored.CreatedAt
	level.UpdatedAt = stored.UpdatedAt
	return nil
}

// DeleteLevel removes a level together with its entries.
func (s *MatrixStore) DeleteLevel(ctx context.Context, id string) error {
	defer s.db.lock(ctx)()

	i := s.levelIndex(id)
	if i < 0 {
		return errors.NotFound("approval_matrix_level", id)
	}
	s.db.state.levels = slices.Delete(s.db.state.levels, i, i+1)
	s.db.state.entries = slices.DeleteFunc(s.db.state.entries, func(e repository.ApprovalMatrixEntry) bool {
		return e.LevelID == id
	})
	return nil
}

// CreateEntry inserts an entry under an existing level.
func (s *MatrixStore) CreateEntry(ctx context.Context, entry *repository.ApprovalMatrixEntry) error {
	defer s.db.lock(ctx)()

	if s.levelIndex(entry.LevelID) < 0 {
		return errors.NotFound("approval_matrix_level", entry.LevelID)
	}

	now := s.db.now()
	entry.ID = uuid.NewString()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	s.db.state.entries = append(s.db.state.entries, *entry)
	return nil
}

// ListEntries returns the entries of one level ordered by sequence_order.
func (s *MatrixStore) ListEntries(ctx context.Context, levelID string) ([]*repository.ApprovalMatrixEntry, error) {
	defer s.db.lock(ctx)()

	var out []*repository.ApprovalMatrixEntry
	for _, entry := range s.db.state.entries {
		entry := entry
		if entry.LevelID == levelID {
			out = append(out, &entry)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SequenceOrder < out[j].SequenceOrder
	})
	return out, nil
}

// DeleteEntry removes a single entry.
func (s *MatrixStore) DeleteEntry(ctx context.Context, id string) error {
	defer s.db.lock(ctx)()

	i := slices.IndexFunc(s.db.state.entries, func(e repository.ApprovalMatrixEntry) bool {
		return e.ID == id
	})
	if i < 0 {
		return errors.NotFound("approval_matrix_entry", id)
	}
	s.db.state.entries = slices.Delete(s.db.state.entries, i, i+1)
	return nil
}

func (s *MatrixStore) levelIndex(id string) int {
	return slices.IndexFunc(s.db.state.levels, func(l repository.ApprovalMatrixLevel) bool {
		return l.ID == id
	})
}

// ── audit ────────────────────────────────────────────────────────────────────

// AuditStore is the memory counterpart of repository.ApprovalAuditRepository.
type AuditStore struct{ db *DB }

// NewAuditStore creates an AuditStore on db.
func NewAuditStore(db *DB) *AuditStore { return &AuditStore{db: db} }

// Append records one audit entry.
func (s *AuditStore) Append(ctx context.Context, entry *repository.ApprovalAuditEntry) error {
	defer s.db.lock(ctx)()

	entry.ID = uuid.NewString()
	entry.PerformedAt = s.db.now()
	s.db.state.audit = append(s.db.state.audit, *entry)
	return nil
}

// ListByEntity returns the audit trail of one business entity, oldest first.
func (s *AuditStore) ListByEntity(ctx context.Context, entityType repository.EntityType, entityID string) ([]*repository.ApprovalAuditEntry, error) {
	defer s.db.lock(ctx)()

	var out []*repository.ApprovalAuditEntry
	for _, entry := range s.db.state.audit {
		entry := entry
		if entry.EntityType == entityType && entry.EntityID == entityID {
			out = append(out, &entry)
		}
	}
	return out, nil
}

// ── collaborators ────────────────────────────────────────────────────────────

// EntityStore is the memory counterpart of repository.EntityStatusRepository.
type EntityStore struct{ db *DB }

// NewEntityStore creates an EntityStore on db.
func NewEntityStore(db *DB) *EntityStore { return &EntityStore{db: db} }

// SetProcurementRequestStatus sets the status of a known procurement request.
func (s *EntityStore) SetProcurementRequestStatus(ctx context.Context, id, status string) error {
	defer s.db.lock(ctx)()

	if _, ok := s.db.state.procurement[id]; !ok {
		return errors.NotFound("procurement_request", id)
	}
	s.db.state.procurement[id] = status
	return nil
}

// SetInventoryApprovalStatus sets the approval status of a known inventory
// transaction.
func (s *EntityStore) SetInventoryApprovalStatus(ctx context.Context, id, status string) error {
	defer s.db.lock(ctx)()

	if _, ok := s.db.state.inventory[id]; !ok {
		return errors.NotFound("inventory_transaction", id)
	}
	s.db.state.inventory[id] = status
	return nil
}

// UserStore is the memory counterpart of repository.UserRepository.
type UserStore struct{ db *DB }

// NewUserStore creates a UserStore on db.
func NewUserStore(db *DB) *UserStore { return &UserStore{db: db} }

// GetUser returns a user with lower-cased role names.
func (s *UserStore) GetUser(ctx context.Context, id string) (*repository.User, error) {
	defer s.db.lock(ctx)()

	u, ok := s.db.state.users[id]
	if !ok {
		return nil, errors.NotFound("user", id)
	}
	roles := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, strings.ToLower(r))
	}
	sort.Strings(roles)
	u.Roles = roles
	return &u, nil
}
