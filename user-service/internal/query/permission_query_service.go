package query

import (
	"context"

	"github.com/cldrn/dataverse/shared/cqrs"
	"github.com/cldrn/dataverse/shared/models"
	"github.com/cldrn/dataverse/user-service/internal/repository"
)

// PermissionQueryService lists role assignments.
type PermissionQueryService struct {
	authz       *repository.Authorizer
	points      *repository.DefinitionPointRepository
	assignments *repository.AssignmentRepository
}

func NewPermissionQueryService(
	authz *repository.Authorizer,
	points *repository.DefinitionPointRepository,
	assignments *repository.AssignmentRepository,
) *PermissionQueryService {
	return &PermissionQueryService{authz: authz, points: points, assignments: assignments}
}

func (s *PermissionQueryService) ListAssignments(ctx context.Context, q cqrs.ListAssignmentsQuery) ([]*models.RoleAssignmentView, error) {
	dv, err := s.points.Resolve(ctx, models.DefinitionPointRef{Kind: models.KindDataverse, Alias: q.DataverseAlias})
	if err != nil {
		return nil, err
	}
	if err := s.authz.CanManagePermissions(ctx, q.Caller, dv.ID); err != nil {
		return nil, err
	}

	assignments, err := s.assignments.ListForDefinitionPoint(ctx, dv.ID)
	if err != nil {
		return nil, err
	}
	views := make([]*models.RoleAssignmentView, len(assignments))
	for i := range assignments {
		views[i] = models.NewRoleAssignmentView(&assignments[i])
	}
	return views, nil
}
