package command

import (
	"context"
	"log/slog"

	"github.com/cldrn/dataverse/shared/cqrs"
	"github.com/cldrn/dataverse/shared/events"
	"github.com/cldrn/dataverse/shared/models"
	"github.com/cldrn/dataverse/shared/utils"
	"github.com/cldrn/dataverse/user-service/internal/repository"
)

// CollectionCommandService creates the dataverses and datasets that roles
// are granted on.
type CollectionCommandService struct {
	tx          *repository.TxManager
	authz       *repository.Authorizer
	points      *repository.DefinitionPointRepository
	assignments *repository.AssignmentRepository
	publisher   *events.Publisher
	logger      *slog.Logger
}

func NewCollectionCommandService(
	tx *repository.TxManager,
	authz *repository.Authorizer,
	points *repository.DefinitionPointRepository,
	assignments *repository.AssignmentRepository,
	publisher *events.Publisher,
	logger *slog.Logger,
) *CollectionCommandService {
	return &CollectionCommandService{
		tx:          tx,
		authz:       authz,
		points:      points,
		assignments: assignments,
		publisher:   publisher,
		logger:      logger,
	}
}

// CreateDataverse creates a dataverse and makes its creator admin on it.
// Top-level dataverses need a superuser; nested ones need admin on the parent.
func (s *CollectionCommandService) CreateDataverse(ctx context.Context, cmd cqrs.CreateDataverseCommand) (*models.DefinitionPoint, error) {
	dv := &models.DefinitionPoint{Kind: models.KindDataverse, Alias: cmd.Alias, Name: cmd.Name}
	if cmd.ParentAlias != "" {
		parent, err := s.points.Resolve(ctx, models.DefinitionPointRef{Kind: models.KindDataverse, Alias: cmd.ParentAlias})
		if err != nil {
			return nil, err
		}
		if err := s.authz.CanManagePermissions(ctx, cmd.Caller, parent.ID); err != nil {
			return nil, err
		}
		dv.OwnerID = &parent.ID
	} else if err := s.authz.RequireSuperuser(ctx, cmd.Caller); err != nil {
		return nil, err
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.points.Create(ctx, dv); err != nil {
			return err
		}
		creator := cmd.Caller.UserID
		return s.assignments.Create(ctx, &models.RoleAssignment{
			Assignee:          models.UserIdentifierPrefix + cmd.Caller.Username,
			UserID:            &creator,
			RoleAlias:         models.RoleAdmin,
			DefinitionPointID: dv.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.DataverseCreated, cmd.Caller.Username, events.DataverseCreatedEvent{
		DataverseID: dv.ID,
		Alias:       dv.Alias,
	})
	return dv, nil
}

// CreateDataset creates a dataset with a generated persistent identifier.
func (s *CollectionCommandService) CreateDataset(ctx context.Context, cmd cqrs.CreateDatasetCommand) (*models.DefinitionPoint, error) {
	owner, err := s.points.Resolve(ctx, models.DefinitionPointRef{Kind: models.KindDataverse, Alias: cmd.DataverseAlias})
	if err != nil {
		return nil, err
	}
	if err := s.authz.CanManagePermissions(ctx, cmd.Caller, owner.ID); err != nil {
		return nil, err
	}

	ds := &models.DefinitionPoint{
		Kind:         models.KindDataset,
		PersistentID: utils.GeneratePersistentID(),
		Name:         cmd.Title,
		OwnerID:      &owner.ID,
	}
	if err := s.points.Create(ctx, ds); err != nil {
		return nil, err
	}

	s.publish(ctx, events.DatasetCreated, cmd.Caller.Username, events.DatasetCreatedEvent{
		DatasetID:    ds.ID,
		PersistentID: ds.PersistentID,
		OwnerID:      owner.ID,
	})
	return ds, nil
}

func (s *CollectionCommandService) publish(ctx context.Context, eventType, actor string, data any) {
	if err := s.publisher.Publish(ctx, events.PermissionEventsStream, eventType, actor, data); err != nil {
		s.logger.Error("failed to publish event", "type", eventType, "error", err)
	}
}
