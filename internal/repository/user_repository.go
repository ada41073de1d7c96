package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-proc-approvals/internal/platform/database"
	"github.com/pesio-ai/be-proc-approvals/internal/platform/errors"
)

// UserRepository resolves users and their role names. Role names come from
// custom_roles joined through user_roles and are returned lower-cased.
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetUser returns a user with roles.
func (r *UserRepository) GetUser(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT u.id,
		       COALESCE(u.full_name, ''),
		       COALESCE(u.email, ''),
		       COALESCE(
		           ARRAY_AGG(LOWER(cr.name) ORDER BY LOWER(cr.name))
		               FILTER (WHERE cr.name IS NOT NULL),
		           '{}'
		       )
		FROM users u
		LEFT JOIN user_roles ur ON ur.user_id = u.id
		LEFT JOIN custom_roles cr ON cr.id = ur.role_id
		WHERE u.id = $1
		GROUP BY u.id, u.full_name, u.email
	`

	u := &User{}
	err := r.db.QueryRow(ctx, query, id).Scan(&u.ID, &u.FullName, &u.Email, &u.Roles)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("user", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get user")
	}
	return u, nil
}
