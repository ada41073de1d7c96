package repository

import "time"

// ── Approval request ─────────────────────────────────────────────────────────

// EntityType discriminates the business record an approval refers to.
type EntityType string

const (
	EntityProcurementRequest EntityType = "procurement_request"
	EntityInvoice            EntityType = "invoice"
	EntityPurchaseOrder      EntityType = "purchase_order"
	EntityInventoryCheckout  EntityType = "inventory_checkout"
	EntityGRN                EntityType = "grn"
)

// IsValid reports whether t is a known entity type.
func (t EntityType) IsValid() bool {
	switch t {
	case EntityProcurementRequest, EntityInvoice, EntityPurchaseOrder, EntityInventoryCheckout, EntityGRN:
		return true
	}
	return false
}

// Status is the current state of an approval request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusMoreInfo Status = "more_info"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusMoreInfo:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusMoreInfo
}

// Action is a reviewer decision.
type Action string

const (
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionMoreInfo Action = "more_info"
)

// TargetStatus maps a decision to the status it produces. ok is false for
// unknown actions.
func (a Action) TargetStatus() (Status, bool) {
	switch a {
	case ActionApprove:
		return StatusApproved, true
	case ActionReject:
		return StatusRejected, true
	case ActionMoreInfo:
		return StatusMoreInfo, true
	}
	return "", false
}

// RequiresComments reports whether the decision must carry reviewer comments.
func (a Action) RequiresComments() bool {
	return a == ActionReject || a == ActionMoreInfo
}

// ApprovalRequest is one approval routed for a business entity.
type ApprovalRequest struct {
	ID           string     `json:"id"`
	EntityType   EntityType `json:"entity_type"`
	EntityID     string     `json:"entity_id"`
	Status       Status     `json:"status"`
	RequesterID  string     `json:"requester_id"`
	ApproverID   *string    `json:"approver_id,omitempty"`
	Title        *string    `json:"title,omitempty"`
	Comments     *string    `json:"comments,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ApprovalDate *time.Time `json:"approval_date,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ApprovalFilter narrows request listings. Nil fields do not filter.
type ApprovalFilter struct {
	EntityType    *EntityType
	EntityID      *string
	Status        *Status
	RequesterID   *string
	ApproverID    *string
	CreatedBefore *time.Time
}

// Transition is the single permitted mutation of a pending request.
type Transition struct {
	ID           string
	Status       Status
	Comments     *string
	ApprovalDate time.Time
}

// ── Approval matrix ──────────────────────────────────────────────────────────

// ApprovalMatrixLevel is one amount tier. Amounts are minor currency units;
// the range is [MinAmount, MaxAmount) and a nil MaxAmount is unbounded.
type ApprovalMatrixLevel struct {
	ID          string    `json:"id"`
	LevelNumber int       `json:"level_number"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	MinAmount   int64     `json:"min_amount"`
	MaxAmount   *int64    `json:"max_amount,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Contains reports whether amount falls inside the level's range.
func (l *ApprovalMatrixLevel) Contains(amount int64) bool {
	if amount < l.MinAmount {
		return false
	}
	return l.MaxAmount == nil || amount < *l.MaxAmount
}

// ApprovalMatrixEntry binds an approver to a level.
type ApprovalMatrixEntry struct {
	ID            string    `json:"id"`
	LevelID       string    `json:"level_id"`
	ApproverID    string    `json:"approver_id"`
	Department    *string   `json:"department,omitempty"`
	SequenceOrder int       `json:"sequence_order"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ── Audit ────────────────────────────────────────────────────────────────────

// Audit actions.
const (
	AuditCreated      = "created"
	AuditAutoApproved = "auto_approved"
	AuditApproved     = "approved"
	AuditRejected     = "rejected"
	AuditMoreInfo     = "more_info"
	AuditReminded     = "reminded"
)

// ApprovalAuditEntry is one immutable record in the audit log.
type ApprovalAuditEntry struct {
	ID           string         `json:"id"`
	ApprovalID   string         `json:"approval_id"`
	EntityType   EntityType     `json:"entity_type"`
	EntityID     string         `json:"entity_id"`
	Action       string         `json:"action"`
	PerformedBy  string         `json:"performed_by"`
	PerformedAt  time.Time      `json:"performed_at"`
	StatusBefore *Status        `json:"status_before,omitempty"`
	StatusAfter  *Status        `json:"status_after,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ── Identity ─────────────────────────────────────────────────────────────────

// User is the identity collaborator's view of a user.
type User struct {
	ID       string
	FullName string
	Email    string
	Roles    []string
}

// DisplayName prefers the full name and falls back to email, then id.
func (u *User) DisplayName() string {
	switch {
	case u.FullName != "":
		return u.FullName
	case u.Email != "":
		return u.Email
	}
	return u.ID
}
