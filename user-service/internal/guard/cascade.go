package guard

import (
	"context"
	"fmt"

	"github.com/cldrn/dataverse/shared/events"
)

// AssignmentRemover deletes every role assignment made to a user.
type AssignmentRemover interface {
	DeleteAllForUser(ctx context.Context, userID int64) (int64, error)
}

// MembershipRemover deletes every explicit group membership of a user.
type MembershipRemover interface {
	DeleteAllMembershipsForUser(ctx context.Context, userID int64) (int64, error)
}

// CascadeHandler revokes the authorization artifacts of a disabled account.
// It runs in the disabling transaction, so a failure rolls the disable back.
type CascadeHandler struct {
	assignments AssignmentRemover
	memberships MembershipRemover
}

func NewCascadeHandler(assignments AssignmentRemover, memberships MembershipRemover) *CascadeHandler {
	return &CascadeHandler{assignments: assignments, memberships: memberships}
}

// Register subscribes the handler to user.disabled.
func (h *CascadeHandler) Register(d *events.Dispatcher) {
	d.Subscribe(events.UserDisabled, h.Handle)
}

// Handle removes assignments and memberships and records the counts on the
// event payload when it is a *events.UserDisabledEvent.
func (h *CascadeHandler) Handle(ctx context.Context, event events.Event) error {
	payload, ok := event.Data.(*events.UserDisabledEvent)
	if !ok {
		var decoded events.UserDisabledEvent
		if err := events.Decode(event, &decoded); err != nil {
			return fmt.Errorf("decode %s payload: %w", event.Type, err)
		}
		payload = &decoded
	}

	roles, err := h.assignments.DeleteAllForUser(ctx, payload.UserID)
	if err != nil {
		return fmt.Errorf("revoke role assignments of %s: %w", payload.Username, err)
	}
	memberships, err := h.memberships.DeleteAllMembershipsForUser(ctx, payload.UserID)
	if err != nil {
		return fmt.Errorf("revoke group memberships of %s: %w", payload.Username, err)
	}

	payload.RoleAssignmentsRemoved = roles
	payload.MembershipsRemoved = memberships
	return nil
}
