// Package guard enforces account enablement rules: the disable transition
// with its cascade, the gates on granting roles and adding group members,
// and the precondition on merging accounts.
package guard

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cldrn/dataverse/shared/events"
	"github.com/cldrn/dataverse/shared/models"
)

// Messages returned to API clients.
const (
	msgDisabledRole  = "User %s is disabled and cannot be given a role."
	msgDisabledGroup = "User %s is disabled and cannot be added to a group."
	msgMergeState    = "User accounts can only be merged if they are either both enabled or both disabled."
	msgMergeSelf     = "Cannot merge an account into itself."
)

// Authorizer decides whether a caller may perform administrative actions.
type Authorizer interface {
	RequireSuperuser(ctx context.Context, caller models.Caller) error
	CanManagePermissions(ctx context.Context, caller models.Caller, definitionPointID int64) error
}

// Transactor runs fn inside a transaction carried by the context.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Accounts reads and locks user accounts.
type Accounts interface {
	GetByRef(ctx context.Context, ref models.UserRef) (*models.User, error)
	GetByRefForUpdate(ctx context.Context, ref models.UserRef) (*models.User, error)
	GetByRefForShare(ctx context.Context, ref models.UserRef) (*models.User, error)
	MarkDisabled(ctx context.Context, userID int64, at time.Time) error
}

// RoleAssignments stores role assignments.
type RoleAssignments interface {
	Create(ctx context.Context, a *models.RoleAssignment) error
}

// ExplicitGroups looks up groups and adds members.
type ExplicitGroups interface {
	GetByAlias(ctx context.Context, ownerID int64, alias string) (*models.ExplicitGroup, error)
	AddMember(ctx context.Context, groupID, userID int64) error
}

// DefinitionPoints resolves dataverses and datasets.
type DefinitionPoints interface {
	Resolve(ctx context.Context, ref models.DefinitionPointRef) (*models.DefinitionPoint, error)
}

// Merger folds source into target within the caller's transaction.
type Merger interface {
	Merge(ctx context.Context, target, source *models.User) error
}

// EventDispatcher delivers domain events synchronously.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event events.Event) error
}

// Deps bundles the collaborators of a Guard.
type Deps struct {
	Tx          Transactor
	Authorizer  Authorizer
	Accounts    Accounts
	Assignments RoleAssignments
	Groups      ExplicitGroups
	Points      DefinitionPoints
	Merger      Merger
	Dispatcher  EventDispatcher
	Metrics     *Metrics
	Logger      *slog.Logger
	Now         func() time.Time
}

// Guard is the account lifecycle guard.
type Guard struct {
	tx          Transactor
	authz       Authorizer
	accounts    Accounts
	assignments RoleAssignments
	groups      ExplicitGroups
	points      DefinitionPoints
	merger      Merger
	dispatcher  EventDispatcher
	metrics     *Metrics
	logger      *slog.Logger
	now         func() time.Time
}

func New(d Deps) *Guard {
	g := &Guard{
		tx:          d.Tx,
		authz:       d.Authorizer,
		accounts:    d.Accounts,
		assignments: d.Assignments,
		groups:      d.Groups,
		points:      d.Points,
		merger:      d.Merger,
		dispatcher:  d.Dispatcher,
		metrics:     d.Metrics,
		logger:      d.Logger,
		now:         d.Now,
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// DisableResult describes the outcome of Disable.
type DisableResult struct {
	User *models.User
	// Changed is false when the account was already disabled.
	Changed bool
	Cascade events.UserDisabledEvent
}

// Disable flips the account to disabled and, in the same transaction,
// dispatches user.disabled so the cascade removes the account's role
// assignments and explicit group memberships.
func (g *Guard) Disable(ctx context.Context, caller models.Caller, ref models.UserRef) (*DisableResult, error) {
	if err := g.authz.RequireSuperuser(ctx, caller); err != nil {
		return nil, err
	}

	var result DisableResult
	err := g.tx.InTx(ctx, func(ctx context.Context) error {
		user, err := g.accounts.GetByRefForUpdate(ctx, ref)
		if err != nil {
			return err
		}
		if user.Disabled {
			result = DisableResult{User: user}
			return nil
		}

		now := g.now().UTC()
		if err := g.accounts.MarkDisabled(ctx, user.ID, now); err != nil {
			return err
		}
		user.Disabled = true
		user.DisabledAt = &now
		user.UpdatedAt = now

		payload := &events.UserDisabledEvent{UserID: user.ID, Username: user.Username}
		err = g.dispatcher.Dispatch(ctx, events.Event{
			Type:      events.UserDisabled,
			Timestamp: now,
			Actor:     caller.Username,
			Data:      payload,
		})
		if err != nil {
			return err
		}
		result = DisableResult{User: user, Changed: true, Cascade: *payload}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Changed {
		g.metrics.disabled()
		g.metrics.cascaded(result.Cascade.RoleAssignmentsRemoved, result.Cascade.MembershipsRemoved)
		g.logger.Info("user disabled",
			"user", result.User.Username,
			"actor", caller.Username,
			"role_assignments_removed", result.Cascade.RoleAssignmentsRemoved,
			"memberships_removed", result.Cascade.MembershipsRemoved,
		)
	}
	return &result, nil
}

// IsEnabled reports whether the account is enabled.
func (g *Guard) IsEnabled(ctx context.Context, ref models.UserRef) (bool, error) {
	user, err := g.accounts.GetByRef(ctx, ref)
	if err != nil {
		return false, err
	}
	return !user.Disabled, nil
}

// GrantRole assigns role to assignee on the definition point. A user assignee
// is share-locked so a concurrent disable either cascades the new assignment
// or makes this call fail.
func (g *Guard) GrantRole(ctx context.Context, caller models.Caller, assignee, roleAlias string, target models.DefinitionPointRef) (*models.RoleAssignment, error) {
	if _, ok := models.RoleName(roleAlias); !ok {
		return nil, models.ErrBadRequest("Role %s not found.", roleAlias)
	}
	parsed, err := models.ParseAssignee(assignee)
	if err != nil {
		return nil, err
	}
	point, err := g.points.Resolve(ctx, target)
	if err != nil {
		return nil, err
	}
	if err := g.authz.CanManagePermissions(ctx, caller, point.ID); err != nil {
		return nil, err
	}

	assignment := &models.RoleAssignment{RoleAlias: roleAlias, DefinitionPointID: point.ID}
	err = g.tx.InTx(ctx, func(ctx context.Context) error {
		if parsed.IsGroup() {
			group, err := g.groups.GetByAlias(ctx, parsed.GroupOwnerID, parsed.GroupAlias)
			if err != nil {
				return assigneeNotFound(err, assignee)
			}
			assignment.Assignee = group.Identifier()
			assignment.GroupID = &group.ID
		} else {
			user, err := g.accounts.GetByRefForShare(ctx, *parsed.User)
			if err != nil {
				return assigneeNotFound(err, assignee)
			}
			if user.Disabled {
				g.metrics.rejected(opGrantRole)
				return models.ErrPermissionDenied(msgDisabledRole, user.Username)
			}
			assignment.Assignee = user.Identifier()
			assignment.UserID = &user.ID
		}
		return g.assignments.Create(ctx, assignment)
	})
	if err != nil {
		return nil, err
	}
	return assignment, nil
}

// AddToGroup adds every member to the group owned by the dataverse, or none
// of them when any member cannot be added.
func (g *Guard) AddToGroup(ctx context.Context, caller models.Caller, ownerAlias, groupAlias string, members []string) (*models.ExplicitGroup, []*models.User, error) {
	if len(members) == 0 {
		return nil, nil, models.ErrBadRequest("No role assignees given.")
	}
	owner, err := g.points.Resolve(ctx, models.DefinitionPointRef{Kind: models.KindDataverse, Alias: ownerAlias})
	if err != nil {
		return nil, nil, err
	}
	if err := g.authz.CanManagePermissions(ctx, caller, owner.ID); err != nil {
		return nil, nil, err
	}

	var group *models.ExplicitGroup
	var added []*models.User
	err = g.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		group, err = g.groups.GetByAlias(ctx, owner.ID, groupAlias)
		if err != nil {
			return err
		}

		users := make([]*models.User, 0, len(members))
		for _, m := range members {
			parsed, err := models.ParseAssignee(m)
			if err != nil {
				return err
			}
			if parsed.IsGroup() {
				return models.ErrBadRequest("Only users can be added to group %s: %s", group.Identifier(), m)
			}
			user, err := g.accounts.GetByRefForShare(ctx, *parsed.User)
			if err != nil {
				return assigneeNotFound(err, m)
			}
			if user.Disabled {
				g.metrics.rejected(opAddToGroup)
				return models.ErrPermissionDenied(msgDisabledGroup, user.Username)
			}
			users = append(users, user)
		}

		for _, u := range users {
			if err := g.groups.AddMember(ctx, group.ID, u.ID); err != nil {
				return err
			}
		}
		added = users
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return group, added, nil
}

// MergeResult names the surviving and the removed account.
type MergeResult struct {
	Target *models.User
	Source *models.User
}

// MergeAccounts folds source into target. Both accounts must be in the same
// enablement state.
func (g *Guard) MergeAccounts(ctx context.Context, caller models.Caller, target, source models.UserRef) (*MergeResult, error) {
	if err := g.authz.RequireSuperuser(ctx, caller); err != nil {
		return nil, err
	}

	var result MergeResult
	err := g.tx.InTx(ctx, func(ctx context.Context) error {
		t, err := g.accounts.GetByRef(ctx, target)
		if err != nil {
			return err
		}
		s, err := g.accounts.GetByRef(ctx, source)
		if err != nil {
			return err
		}
		if t.ID == s.ID {
			return models.ErrBadRequest(msgMergeSelf)
		}

		// Lock in id order so concurrent merges of the same pair cannot deadlock.
		first, second := t, s
		if second.ID < first.ID {
			first, second = second, first
		}
		if first, err = g.accounts.GetByRefForUpdate(ctx, models.UserRef{ID: first.ID}); err != nil {
			return err
		}
		if second, err = g.accounts.GetByRefForUpdate(ctx, models.UserRef{ID: second.ID}); err != nil {
			return err
		}
		if first.ID == t.ID {
			t, s = first, second
		} else {
			t, s = second, first
		}

		if t.Disabled != s.Disabled {
			g.metrics.rejected(opMerge)
			return models.ErrBadRequest(msgMergeState)
		}
		if err := g.merger.Merge(ctx, t, s); err != nil {
			return err
		}
		result = MergeResult{Target: t, Source: s}
		return g.dispatcher.Dispatch(ctx, events.Event{
			Type:      events.UserMerged,
			Timestamp: g.now().UTC(),
			Actor:     caller.Username,
			Data: &events.UserMergedEvent{
				TargetID:       t.ID,
				TargetUsername: t.Username,
				SourceID:       s.ID,
				SourceUsername: s.Username,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	g.logger.Info("accounts merged", "target", result.Target.Username, "source", result.Source.Username, "actor", caller.Username)
	return &result, nil
}

func assigneeNotFound(err error, assignee string) error {
	var nf *models.NotFoundError
	if errors.As(err, &nf) {
		return models.ErrBadRequest("Assignee not found: %s", assignee)
	}
	return err
}
