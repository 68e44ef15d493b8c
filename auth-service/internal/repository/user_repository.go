package repository

import (
	"context"
	"database/sql"

	"github.com/cldrn/dataverse/shared/models"
	"github.com/pkg/errors"
)

// UserRepository reads the credentials and state auth-service needs.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const selectUser = `
	SELECT id, username, email, password_hash, superuser, disabled, disabled_at, created_at, updated_at
	FROM users
`

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.get(ctx, selectUser+`WHERE username = $1`, username, "User @"+username)
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return r.get(ctx, selectUser+`WHERE id = $1`, id, "User")
}

func (r *UserRepository) get(ctx context.Context, query string, arg any, what string) (*models.User, error) {
	var user models.User
	var disabledAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.Superuser, &user.Disabled, &disabledAt, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound("%s not found.", what)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get user")
	}
	if disabledAt.Valid {
		user.DisabledAt = &disabledAt.Time
	}
	return &user, nil
}
