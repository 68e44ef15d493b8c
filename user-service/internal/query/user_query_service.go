package query

import (
	"context"

	"github.com/cldrn/dataverse/shared/cqrs"
	"github.com/cldrn/dataverse/shared/models"
	"github.com/cldrn/dataverse/user-service/internal/repository"
)

const (
	defaultActionLogLimit = 100
	maxActionLogLimit     = 1000
)

// Enablement answers whether an account is enabled from the write store.
type Enablement interface {
	IsEnabled(ctx context.Context, ref models.UserRef) (bool, error)
}

// UserQueryService serves user views from the Redis cache (with a Postgres
// fallback) and computes traces from a single read snapshot.
type UserQueryService struct {
	tx         *repository.TxManager
	enablement Enablement
	authz      *repository.Authorizer
	writeRepo  *repository.UserWriteRepository
	readRepo   *repository.UserReadRepository
	traces     *repository.TraceRepository
	actionLog  *repository.ActionLogRepository
}

func NewUserQueryService(
	tx *repository.TxManager,
	enablement Enablement,
	authz *repository.Authorizer,
	writeRepo *repository.UserWriteRepository,
	readRepo *repository.UserReadRepository,
	traces *repository.TraceRepository,
	actionLog *repository.ActionLogRepository,
) *UserQueryService {
	return &UserQueryService{
		tx:         tx,
		enablement: enablement,
		authz:      authz,
		writeRepo:  writeRepo,
		readRepo:   readRepo,
		traces:     traces,
		actionLog:  actionLog,
	}
}

// GetUser returns any account's view to a superuser. The enablement state
// comes from PostgreSQL; a cached view that disagrees with it is reloaded.
func (s *UserQueryService) GetUser(ctx context.Context, q cqrs.GetUserQuery) (*models.UserView, error) {
	if err := s.authz.RequireSuperuser(ctx, q.Caller); err != nil {
		return nil, err
	}
	view, err := s.readRepo.GetView(ctx, q.User)
	if err != nil {
		return nil, err
	}
	enabled, err := s.enablement.IsEnabled(ctx, q.User)
	if err != nil {
		return nil, err
	}
	if view.Disabled == enabled {
		return s.readRepo.LoadView(ctx, q.User)
	}
	return view, nil
}

// GetCurrentUser returns the caller's own view.
func (s *UserQueryService) GetCurrentUser(ctx context.Context, caller models.Caller) (*models.UserView, error) {
	return s.readRepo.GetView(ctx, models.UserRef{Username: caller.Username})
}

// GetTraces reads the account and its artifacts in one REPEATABLE READ
// snapshot, so a concurrent disable is seen either entirely or not at all.
func (s *UserQueryService) GetTraces(ctx context.Context, q cqrs.GetTracesQuery) (*models.TraceView, error) {
	if err := s.authz.RequireSuperuser(ctx, q.Caller); err != nil {
		return nil, err
	}

	var view models.TraceView
	err := s.tx.InReadSnapshot(ctx, func(ctx context.Context) error {
		user, err := s.writeRepo.GetByRef(ctx, q.User)
		if err != nil {
			return err
		}
		traces, err := s.traces.ForUser(ctx, user.ID)
		if err != nil {
			return err
		}
		view = models.TraceView{
			User: models.TraceUser{
				Identifier: user.Identifier(),
				Name:       user.DisplayName(),
				Disabled:   user.Disabled,
			},
			Traces: traces,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// ListActionLog returns the most recent action log entries to a superuser.
func (s *UserQueryService) ListActionLog(ctx context.Context, q cqrs.ListActionLogQuery) ([]models.ActionLogEntry, error) {
	if err := s.authz.RequireSuperuser(ctx, q.Caller); err != nil {
		return nil, err
	}
	limit := q.Limit
	switch {
	case limit <= 0:
		limit = defaultActionLogLimit
	case limit > maxActionLogLimit:
		limit = maxActionLogLimit
	}
	return s.actionLog.List(ctx, limit)
}
