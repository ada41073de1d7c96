// Package memory is an in-process storage backend with the same semantics as
// the PostgreSQL repositories. A single mutex guards every table; a
// transaction holds that mutex for its whole duration and restores a snapshot
// when it fails.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/pesio-ai/be-proc-approvals/internal/repository"
)

// DB holds every table of the memory backend.
type DB struct {
	mu    sync.Mutex
	now   func() time.Time
	state state
}

type state struct {
	requests    []repository.ApprovalRequest
	levels      []repository.ApprovalMatrixLevel
	entries     []repository.ApprovalMatrixEntry
	audit       []repository.ApprovalAuditEntry
	users       map[string]repository.User
	procurement map[string]string
	inventory   map[string]string
}

func (s state) clone() state {
	return state{
		requests:    slices.Clone(s.requests),
		levels:      slices.Clone(s.levels),
		entries:     slices.Clone(s.entries),
		audit:       slices.Clone(s.audit),
		users:       cloneMap(s.users),
		procurement: cloneMap(s.procurement),
		inventory:   cloneMap(s.inventory),
	}
}

func cloneMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Option configures a DB.
type Option func(*DB)

// WithClock overrides the clock used for created_at and updated_at.
func WithClock(now func() time.Time) Option {
	return func(db *DB) { db.now = now }
}

// New creates an empty DB.
func New(opts ...Option) *DB {
	db := &DB{
		now: time.Now,
		state: state{
			users:       make(map[string]repository.User),
			procurement: make(map[string]string),
			inventory:   make(map[string]string),
		},
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

type txKey struct{ db *DB }

// WithinTransaction runs fn while holding the store lock. Every store method
// called with the context passed to fn joins the transaction. When fn returns
// an error or panics, all tables are restored to their state before fn ran.
func (db *DB) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if db.inTx(ctx) {
		return fn(ctx)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	snapshot := db.state.clone()
	defer func() {
		if p := recover(); p != nil {
			db.state = snapshot
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{db}, true)); err != nil {
		db.state = snapshot
		return err
	}
	return nil
}

func (db *DB) inTx(ctx context.Context) bool {
	return ctx.Value(txKey{db}) != nil
}

// lock acquires the table lock unless ctx already runs inside a transaction.
func (db *DB) lock(ctx context.Context) func() {
	if db.inTx(ctx) {
		return func() {}
	}
	db.mu.Lock()
	return db.mu.Unlock
}

// ── seeding ──────────────────────────────────────────────────────────────────

// AddUser registers a user with the identity tables.
func (db *DB) AddUser(u repository.User) {
	db.mu.Lock()
	defer db.mu.Unlock()
	u.Roles = slices.Clone(u.Roles)
	db.state.users[u.ID] = u
}

// AddProcurementRequest registers a procurement request in the given status.
func (db *DB) AddProcurementRequest(id, status string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.state.procurement[id] = status
}

// AddInventoryTransaction registers an inventory transaction with the given
// approval status.
func (db *DB) AddInventoryTransaction(id, approvalStatus string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.state.inventory[id] = approvalStatus
}

// ProcurementRequestStatus returns the stored status of a procurement request.
func (db *DB) ProcurementRequestStatus(id string) (string, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	s, ok := db.state.procurement[id]
	return s, ok
}

// InventoryApprovalStatus returns the stored approval status of an inventory
// transaction.
func (db *DB) InventoryApprovalStatus(id string) (string, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	s, ok := db.state.inventory[id]
	return s, ok
}
