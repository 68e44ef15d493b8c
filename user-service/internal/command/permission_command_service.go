package command

import (
	"context"
	"log/slog"

	"github.com/cldrn/dataverse/shared/cqrs"
	"github.com/cldrn/dataverse/shared/events"
	"github.com/cldrn/dataverse/shared/models"
	"github.com/cldrn/dataverse/user-service/internal/guard"
	"github.com/cldrn/dataverse/user-service/internal/repository"
)

// PermissionCommandService grants roles and manages explicit groups.
// Grants and memberships go through the guard so disabled accounts are refused.
type PermissionCommandService struct {
	guard     *guard.Guard
	authz     *repository.Authorizer
	points    *repository.DefinitionPointRepository
	groups    *repository.GroupRepository
	publisher *events.Publisher
	logger    *slog.Logger
}

func NewPermissionCommandService(
	g *guard.Guard,
	authz *repository.Authorizer,
	points *repository.DefinitionPointRepository,
	groups *repository.GroupRepository,
	publisher *events.Publisher,
	logger *slog.Logger,
) *PermissionCommandService {
	return &PermissionCommandService{
		guard:     g,
		authz:     authz,
		points:    points,
		groups:    groups,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *PermissionCommandService) GrantRole(ctx context.Context, cmd cqrs.GrantRoleCommand) (*models.RoleAssignmentView, error) {
	assignment, err := s.guard.GrantRole(ctx, cmd.Caller, cmd.Assignee, cmd.RoleAlias, cmd.Target)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.RoleAssigned, cmd.Caller.Username, events.RoleAssignedEvent{
		AssignmentID:      assignment.ID,
		Assignee:          assignment.Assignee,
		RoleAlias:         assignment.RoleAlias,
		DefinitionPointID: assignment.DefinitionPointID,
	})
	return models.NewRoleAssignmentView(assignment), nil
}

func (s *PermissionCommandService) CreateGroup(ctx context.Context, cmd cqrs.CreateGroupCommand) (*models.ExplicitGroupView, error) {
	owner, err := s.points.Resolve(ctx, models.DefinitionPointRef{Kind: models.KindDataverse, Alias: cmd.OwnerAlias})
	if err != nil {
		return nil, err
	}
	if err := s.authz.CanManagePermissions(ctx, cmd.Caller, owner.ID); err != nil {
		return nil, err
	}

	group := &models.ExplicitGroup{
		OwnerID:      owner.ID,
		AliasInOwner: cmd.AliasInOwner,
		DisplayName:  cmd.DisplayName,
		Description:  cmd.Description,
	}
	if err := s.groups.Create(ctx, group); err != nil {
		return nil, err
	}
	s.publish(ctx, events.GroupCreated, cmd.Caller.Username, events.GroupCreatedEvent{
		GroupID:    group.ID,
		Identifier: group.Identifier(),
	})
	return groupView(group, []string{}), nil
}

func (s *PermissionCommandService) AddGroupMembers(ctx context.Context, cmd cqrs.AddGroupMembersCommand) (*models.ExplicitGroupView, error) {
	group, added, err := s.guard.AddToGroup(ctx, cmd.Caller, cmd.OwnerAlias, cmd.AliasInOwner, cmd.Members)
	if err != nil {
		return nil, err
	}
	members, err := s.groups.ListMembers(ctx, group.ID)
	if err != nil {
		return nil, err
	}

	identifiers := make([]string, len(added))
	for i, u := range added {
		identifiers[i] = u.Identifier()
	}
	s.publish(ctx, events.GroupMembersAdded, cmd.Caller.Username, events.GroupMembersAddedEvent{
		GroupID:    group.ID,
		Identifier: group.Identifier(),
		Members:    identifiers,
	})
	return groupView(group, members), nil
}

func (s *PermissionCommandService) publish(ctx context.Context, eventType, actor string, data any) {
	if err := s.publisher.Publish(ctx, events.PermissionEventsStream, eventType, actor, data); err != nil {
		s.logger.Error("failed to publish event", "type", eventType, "error", err)
	}
}

func groupView(g *models.ExplicitGroup, members []string) *models.ExplicitGroupView {
	return &models.ExplicitGroupView{
		ID:           g.ID,
		Identifier:   g.Identifier(),
		AliasInOwner: g.AliasInOwner,
		DisplayName:  g.DisplayName,
		Description:  g.Description,
		OwnerID:      g.OwnerID,
		Members:      members,
	}
}
