package repository

import (
	"context"
	"database/sql"

	"github.com/cldrn/dataverse/shared/models"
	"github.com/pkg/errors"
)

// TraceRepository lists the authorization artifacts attributed to a user.
// Callers wrap it in TxManager.InReadSnapshot to read both kinds consistently.
type TraceRepository struct {
	db *sql.DB
}

func NewTraceRepository(db *sql.DB) *TraceRepository {
	return &TraceRepository{db: db}
}

// ForUser returns the user's role assignments and explicit group memberships.
// Kinds without entries are left nil.
func (r *TraceRepository) ForUser(ctx context.Context, userID int64) (models.Traces, error) {
	var traces models.Traces

	assignments, err := r.roleAssignments(ctx, userID)
	if err != nil {
		return traces, err
	}
	if len(assignments) > 0 {
		traces.RoleAssignments = &models.TraceSection[models.RoleAssignmentTrace]{
			Count: len(assignments), Items: assignments,
		}
	}

	groups, err := r.explicitGroups(ctx, userID)
	if err != nil {
		return traces, err
	}
	if len(groups) > 0 {
		traces.ExplicitGroups = &models.TraceSection[models.ExplicitGroupTrace]{
			Count: len(groups), Items: groups,
		}
	}
	return traces, nil
}

func (r *TraceRepository) roleAssignments(ctx context.Context, userID int64) ([]models.RoleAssignmentTrace, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
		SELECT ra.id, ra.role_alias, dp.id, dp.kind, COALESCE(dp.alias, dp.persistent_id)
		FROM role_assignments ra
		JOIN definition_points dp ON dp.id = ra.definition_point_id
		WHERE ra.user_id = $1
		ORDER BY ra.id
	`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "trace role assignments")
	}
	defer rows.Close()

	var out []models.RoleAssignmentTrace
	for rows.Next() {
		var t models.RoleAssignmentTrace
		if err := rows.Scan(&t.ID, &t.RoleAlias, &t.DefinitionPointID, &t.DefinitionPointKind, &t.DefinitionPointName); err != nil {
			return nil, errors.Wrap(err, "scan role assignment trace")
		}
		t.RoleName, _ = models.RoleName(t.RoleAlias)
		out = append(out, t)
	}
	return out, errors.Wrap(rows.Err(), "trace role assignments")
}

func (r *TraceRepository) explicitGroups(ctx context.Context, userID int64) ([]models.ExplicitGroupTrace, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
		SELECT g.id, g.display_name, g.owner_id, g.alias_in_owner
		FROM explicit_group_members m
		JOIN explicit_groups g ON g.id = m.group_id
		WHERE m.user_id = $1
		ORDER BY g.id
	`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "trace explicit groups")
	}
	defer rows.Close()

	var out []models.ExplicitGroupTrace
	for rows.Next() {
		var t models.ExplicitGroupTrace
		var ownerID int64
		var alias string
		if err := rows.Scan(&t.ID, &t.Name, &ownerID, &alias); err != nil {
			return nil, errors.Wrap(err, "scan explicit group trace")
		}
		t.Identifier = models.GroupIdentifier(ownerID, alias)
		out = append(out, t)
	}
	return out, errors.Wrap(rows.Err(), "trace explicit groups")
}
