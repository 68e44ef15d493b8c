package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cldrn/dataverse/shared/models"
	"github.com/pkg/errors"
)

func userColumns(alias string) string {
	cols := []string{"id", "username", "email", "first_name", "last_name", "password_hash",
		"superuser", "disabled", "disabled_at", "created_at", "updated_at"}
	if alias == "" {
		return strings.Join(cols, ", ")
	}
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var disabledAt sql.NullTime
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash,
		&u.Superuser, &u.Disabled, &disabledAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if disabledAt.Valid {
		t := disabledAt.Time
		u.DisabledAt = &t
	}
	return &u, nil
}

// UserWriteRepository handles all state-mutating operations for users.
// It operates exclusively against the PostgreSQL write store (source of truth).
type UserWriteRepository struct {
	db *sql.DB
}

func NewUserWriteRepository(db *sql.DB) *UserWriteRepository {
	return &UserWriteRepository{db: db}
}

// Create inserts the user and fills in its id and timestamps.
func (r *UserWriteRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (username, email, first_name, last_name, password_hash, superuser)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := conn(ctx, r.db).QueryRowContext(ctx, query,
		user.Username, user.Email, user.FirstName, user.LastName, user.PasswordHash, user.Superuser,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrConflict("User %s or email %s already exists.", user.Username, user.Email)
		}
		return errors.Wrap(err, "create user")
	}
	return nil
}

// CreateAPIToken binds a token to the user. A zero expiry never expires.
func (r *UserWriteRepository) CreateAPIToken(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	var expires sql.NullTime
	if !expiresAt.IsZero() {
		expires = sql.NullTime{Time: expiresAt, Valid: true}
	}
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO api_tokens (token, user_id, expires_at) VALUES ($1, $2, $3)`,
		token, userID, expires)
	return errors.Wrap(err, "create api token")
}

// GetByRef reads the account without locking.
func (r *UserWriteRepository) GetByRef(ctx context.Context, ref models.UserRef) (*models.User, error) {
	return r.getByRef(ctx, ref, "")
}

// GetByRefForUpdate reads the account and holds an exclusive row lock until
// the surrounding transaction ends.
func (r *UserWriteRepository) GetByRefForUpdate(ctx context.Context, ref models.UserRef) (*models.User, error) {
	return r.getByRef(ctx, ref, " FOR UPDATE")
}

// GetByRefForShare reads the account and holds a share lock, blocking a
// concurrent disable until the surrounding transaction ends.
func (r *UserWriteRepository) GetByRefForShare(ctx context.Context, ref models.UserRef) (*models.User, error) {
	return r.getByRef(ctx, ref, " FOR SHARE")
}

func (r *UserWriteRepository) getByRef(ctx context.Context, ref models.UserRef, lock string) (*models.User, error) {
	where, arg := "username = $1", any(ref.Username)
	if ref.ByID() {
		where, arg = "id = $1", any(ref.ID)
	}
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s%s`, userColumns(""), where, lock)

	user, err := scanUser(conn(ctx, r.db).QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, notFound(err, "User "+ref.String())
	}
	return user, nil
}

// MarkDisabled sets the disabled flag and timestamp.
func (r *UserWriteRepository) MarkDisabled(ctx context.Context, userID int64, at time.Time) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE users SET disabled = TRUE, disabled_at = $2, updated_at = $2 WHERE id = $1`,
		userID, at)
	if err != nil {
		return errors.Wrap(err, "disable user")
	}
	return requireRow(res, fmt.Sprintf("User id:%d", userID))
}

// SetSuperuser updates the superuser flag.
func (r *UserWriteRepository) SetSuperuser(ctx context.Context, userID int64, superuser bool) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE users SET superuser = $2, updated_at = NOW() WHERE id = $1`,
		userID, superuser)
	if err != nil {
		return errors.Wrap(err, "set superuser")
	}
	return requireRow(res, fmt.Sprintf("User id:%d", userID))
}

// DeleteAPITokens removes every token of the user.
func (r *UserWriteRepository) DeleteAPITokens(ctx context.Context, userID int64) (int64, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM api_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return 0, errors.Wrap(err, "delete api tokens")
	}
	return res.RowsAffected()
}

// Delete removes the account row.
func (r *UserWriteRepository) Delete(ctx context.Context, userID int64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return errors.Wrap(err, "delete user")
	}
	return requireRow(res, fmt.Sprintf("User id:%d", userID))
}

// ResolveAPIToken returns the account bound to an unexpired token.
func (r *UserWriteRepository) ResolveAPIToken(ctx context.Context, token string) (*models.User, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM api_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token = $1 AND (t.expires_at IS NULL OR t.expires_at > NOW())
	`, userColumns("u"))

	user, err := scanUser(conn(ctx, r.db).QueryRowContext(ctx, query, token))
	if err != nil {
		return nil, notFound(err, "API token")
	}
	return user, nil
}

// ResolveUserID returns the account a session token was issued for.
func (r *UserWriteRepository) ResolveUserID(ctx context.Context, id int64) (*models.User, error) {
	return r.GetByRef(ctx, models.UserRef{ID: id})
}

func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return models.ErrNotFound("%s not found.", what)
	}
	return nil
}
