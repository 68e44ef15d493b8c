package repository

import (
	"context"
	"database/sql"

	"github.com/cldrn/dataverse/shared/models"
	"github.com/pkg/errors"
)

// AssignmentRepository stores role assignments.
type AssignmentRepository struct {
	db *sql.DB
}

func NewAssignmentRepository(db *sql.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Create stores the assignment. Granting the same role to the same assignee
// on the same definition point again returns the existing row.
func (r *AssignmentRepository) Create(ctx context.Context, a *models.RoleAssignment) error {
	query := `
		INSERT INTO role_assignments (assignee, user_id, group_id, role_alias, definition_point_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (assignee, role_alias, definition_point_id)
		DO UPDATE SET assignee = EXCLUDED.assignee
		RETURNING id, created_at
	`
	err := conn(ctx, r.db).QueryRowContext(ctx, query,
		a.Assignee, nullInt64(a.UserID), nullInt64(a.GroupID), a.RoleAlias, a.DefinitionPointID,
	).Scan(&a.ID, &a.CreatedAt)
	return errors.Wrap(err, "create role assignment")
}

// DeleteAllForUser removes every assignment made directly to the user.
func (r *AssignmentRepository) DeleteAllForUser(ctx context.Context, userID int64) (int64, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM role_assignments WHERE user_id = $1`, userID)
	if err != nil {
		return 0, errors.Wrap(err, "delete role assignments")
	}
	return res.RowsAffected()
}

// ReassignUser moves the source user's assignments to target, dropping the
// ones target already holds.
func (r *AssignmentRepository) ReassignUser(ctx context.Context, sourceID int64, target *models.User) (int64, error) {
	db := conn(ctx, r.db)
	_, err := db.ExecContext(ctx, `
		DELETE FROM role_assignments s
		WHERE s.user_id = $1
		  AND EXISTS (
			SELECT 1 FROM role_assignments t
			WHERE t.user_id = $2
			  AND t.role_alias = s.role_alias
			  AND t.definition_point_id = s.definition_point_id
		  )
	`, sourceID, target.ID)
	if err != nil {
		return 0, errors.Wrap(err, "drop duplicate role assignments")
	}

	res, err := db.ExecContext(ctx,
		`UPDATE role_assignments SET user_id = $2, assignee = $3 WHERE user_id = $1`,
		sourceID, target.ID, target.Identifier())
	if err != nil {
		return 0, errors.Wrap(err, "reassign role assignments")
	}
	return res.RowsAffected()
}

// ListForDefinitionPoint lists assignments on one definition point.
func (r *AssignmentRepository) ListForDefinitionPoint(ctx context.Context, definitionPointID int64) ([]models.RoleAssignment, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
		SELECT id, assignee, user_id, group_id, role_alias, definition_point_id, created_at
		FROM role_assignments
		WHERE definition_point_id = $1
		ORDER BY id
	`, definitionPointID)
	if err != nil {
		return nil, errors.Wrap(err, "list role assignments")
	}
	defer rows.Close()

	var out []models.RoleAssignment
	for rows.Next() {
		var a models.RoleAssignment
		var userID, groupID sql.NullInt64
		if err := rows.Scan(&a.ID, &a.Assignee, &userID, &groupID, &a.RoleAlias, &a.DefinitionPointID, &a.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan role assignment")
		}
		a.UserID = int64Ptr(userID)
		a.GroupID = int64Ptr(groupID)
		out = append(out, a)
	}
	return out, errors.Wrap(rows.Err(), "list role assignments")
}

// HasRole reports whether the user holds role on the definition point,
// directly or through an explicit group.
func (r *AssignmentRepository) HasRole(ctx context.Context, userID int64, roleAlias string, definitionPointID int64) (bool, error) {
	var ok bool
	err := conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM role_assignments ra
			WHERE ra.definition_point_id = $1
			  AND ra.role_alias = $2
			  AND (ra.user_id = $3
			       OR ra.group_id IN (SELECT group_id FROM explicit_group_members WHERE user_id = $3))
		)
	`, definitionPointID, roleAlias, userID).Scan(&ok)
	return ok, errors.Wrap(err, "check role")
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
