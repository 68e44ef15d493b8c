package query

import (
	"context"
	"errors"
	"time"

	"github.com/cldrn/dataverse/shared/cqrs"
	"github.com/cldrn/dataverse/shared/middleware"
	"github.com/cldrn/dataverse/shared/models"
	"github.com/cldrn/dataverse/shared/utils"
)

// UserLookup reads accounts for authentication.
type UserLookup interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// AuthQueryService handles login and token refresh. There's no CommandService
// for auth because these operations don't mutate application state.
type AuthQueryService struct {
	users  UserLookup
	secret []byte
	ttl    time.Duration
}

func NewAuthQueryService(users UserLookup, secret []byte, ttl time.Duration) *AuthQueryService {
	return &AuthQueryService{users: users, secret: secret, ttl: ttl}
}

// Login checks the password and issues a session token. Disabled accounts
// are refused even with the right password.
func (s *AuthQueryService) Login(ctx context.Context, cmd cqrs.LoginCommand) (string, error) {
	user, err := s.users.GetByUsername(ctx, cmd.Username)
	if err != nil {
		return "", invalidCredentials(err)
	}
	if !utils.CheckPassword(cmd.Password, user.PasswordHash) {
		return "", models.ErrUnauthorized("Invalid credentials")
	}
	if user.Disabled {
		return "", models.ErrBadRequest("User %s is disabled.", user.Username)
	}
	return middleware.SignToken(s.secret, user.ID, user.Username, s.ttl)
}

// RefreshToken reissues a valid session token for an account that is still enabled.
func (s *AuthQueryService) RefreshToken(ctx context.Context, cmd cqrs.RefreshTokenCommand) (string, error) {
	claims, err := middleware.ParseToken(s.secret, cmd.Token)
	if err != nil {
		return "", err
	}
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return "", invalidCredentials(err)
	}
	if user.Disabled {
		return "", models.ErrBadRequest("User %s is disabled.", user.Username)
	}
	return middleware.SignToken(s.secret, user.ID, user.Username, s.ttl)
}

func invalidCredentials(err error) error {
	var nf *models.NotFoundError
	if errors.As(err, &nf) {
		return models.ErrUnauthorized("Invalid credentials")
	}
	return err
}
