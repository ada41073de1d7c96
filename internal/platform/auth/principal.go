// Package auth carries caller identity. Operations receive an explicit
// Principal; the context helpers exist only to move it from transport
// middleware into handlers.
package auth

import (
	"context"
	"strings"
)

// AdminRole is the role name that grants auto-approval.
const AdminRole = "admin"

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Roles  []string
}

// IsAdmin reports whether the principal holds the admin role. Role names
// compare case-insensitively.
func (p Principal) IsAdmin() bool {
	return p.HasRole(AdminRole)
}

// HasRole reports whether the principal holds role, ignoring case.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if strings.EqualFold(strings.TrimSpace(r), role) {
			return true
		}
	}
	return false
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.UserID != ""
}
