package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cldrn/dataverse/shared/cqrs"
	"github.com/cldrn/dataverse/shared/events"
	"github.com/cldrn/dataverse/shared/models"
	"github.com/cldrn/dataverse/shared/utils"
	"github.com/cldrn/dataverse/user-service/internal/guard"
	"github.com/cldrn/dataverse/user-service/internal/repository"
)

// UserCommandService writes user state to PostgreSQL, keeps the Redis read
// model up to date and publishes user events once a change has committed.
type UserCommandService struct {
	tx        *repository.TxManager
	writeRepo *repository.UserWriteRepository
	readRepo  *repository.UserReadRepository
	guard     *guard.Guard
	publisher *events.Publisher
	logger    *slog.Logger
}

func NewUserCommandService(
	tx *repository.TxManager,
	writeRepo *repository.UserWriteRepository,
	readRepo *repository.UserReadRepository,
	g *guard.Guard,
	publisher *events.Publisher,
	logger *slog.Logger,
) *UserCommandService {
	return &UserCommandService{
		tx:        tx,
		writeRepo: writeRepo,
		readRepo:  readRepo,
		guard:     g,
		publisher: publisher,
		logger:    logger,
	}
}

// CreateUser registers a builtin user and issues its first API token.
func (s *UserCommandService) CreateUser(ctx context.Context, cmd cqrs.CreateUserCommand) (*models.CreatedUserView, error) {
	passwordHash, err := utils.HashPassword(cmd.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user := &models.User{
		Username:     cmd.Username,
		Email:        cmd.Email,
		FirstName:    cmd.FirstName,
		LastName:     cmd.LastName,
		PasswordHash: passwordHash,
	}
	token := utils.GenerateAPIToken()

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.writeRepo.Create(ctx, user); err != nil {
			return err
		}
		return s.writeRepo.CreateAPIToken(ctx, user.ID, token, time.Time{})
	})
	if err != nil {
		return nil, err
	}

	view := models.NewUserView(user)
	s.readRepo.CacheUserView(ctx, view)
	s.publish(ctx, events.UserEventsStream, events.UserCreated, user.Username, events.UserCreatedEvent{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
	})
	return &models.CreatedUserView{User: view, APIToken: token}, nil
}

// SetSuperuser sets the flag, or toggles it when cmd.Superuser is nil.
func (s *UserCommandService) SetSuperuser(ctx context.Context, cmd cqrs.SetSuperuserCommand) (*models.UserView, error) {
	var user *models.User
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.writeRepo.GetByRefForUpdate(ctx, cmd.User)
		if err != nil {
			return err
		}
		value := !user.Superuser
		if cmd.Superuser != nil {
			value = *cmd.Superuser
		}
		if err := s.writeRepo.SetSuperuser(ctx, user.ID, value); err != nil {
			return err
		}
		user.Superuser = value
		return nil
	})
	if err != nil {
		return nil, err
	}

	view := models.NewUserView(user)
	s.readRepo.CacheUserView(ctx, view)
	s.publish(ctx, events.UserEventsStream, events.UserSuperuserToggled, "", events.UserSuperuserToggledEvent{
		UserID:    user.ID,
		Username:  user.Username,
		Superuser: user.Superuser,
	})
	return view, nil
}

// DisableUser disables the account through the guard. The cascade runs in
// the guard's transaction; after commit the cached view is dropped rather
// than rewritten, so the next read loads the committed row.
func (s *UserCommandService) DisableUser(ctx context.Context, cmd cqrs.DisableUserCommand) (*models.UserView, error) {
	res, err := s.guard.Disable(ctx, cmd.Caller, cmd.User)
	if err != nil {
		return nil, err
	}

	s.readRepo.InvalidateUserView(ctx, res.User.Username)
	view := models.NewUserView(res.User)
	if res.Changed {
		s.publish(ctx, events.UserEventsStream, events.UserDisabled, cmd.Caller.Username, res.Cascade)
	}
	return view, nil
}

// MergeAccounts folds cmd.Source into cmd.Target and returns the surviving account.
func (s *UserCommandService) MergeAccounts(ctx context.Context, cmd cqrs.MergeAccountsCommand) (*models.UserView, error) {
	res, err := s.guard.MergeAccounts(ctx, cmd.Caller, cmd.Target, cmd.Source)
	if err != nil {
		return nil, err
	}

	s.readRepo.InvalidateUserView(ctx, res.Source.Username)
	view := models.NewUserView(res.Target)
	s.readRepo.CacheUserView(ctx, view)
	s.publish(ctx, events.UserEventsStream, events.UserMerged, cmd.Caller.Username, events.UserMergedEvent{
		TargetID:       res.Target.ID,
		TargetUsername: res.Target.Username,
		SourceID:       res.Source.ID,
		SourceUsername: res.Source.Username,
	})
	return view, nil
}

func (s *UserCommandService) publish(ctx context.Context, stream, eventType, actor string, data any) {
	if err := s.publisher.Publish(ctx, stream, eventType, actor, data); err != nil {
		s.logger.Error("failed to publish event", "type", eventType, "error", err)
	}
}
