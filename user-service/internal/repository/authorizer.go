package repository

import (
	"context"

	"github.com/cldrn/dataverse/shared/models"
)

// Authorizer answers permission questions from the write store.
type Authorizer struct {
	assignments *AssignmentRepository
}

func NewAuthorizer(assignments *AssignmentRepository) *Authorizer {
	return &Authorizer{assignments: assignments}
}

// RequireSuperuser fails unless the caller is a superuser.
func (a *Authorizer) RequireSuperuser(_ context.Context, caller models.Caller) error {
	if !caller.Superuser {
		return models.ErrPermissionDenied("Superusers only.")
	}
	return nil
}

// CanManagePermissions allows superusers and holders of the admin role on
// the definition point.
func (a *Authorizer) CanManagePermissions(ctx context.Context, caller models.Caller, definitionPointID int64) error {
	if caller.Superuser {
		return nil
	}
	ok, err := a.assignments.HasRole(ctx, caller.UserID, models.RoleAdmin, definitionPointID)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrPermissionDenied("User @%s is not permitted to manage permissions on this object.", caller.Username)
	}
	return nil
}
