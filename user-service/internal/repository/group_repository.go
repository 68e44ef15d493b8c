package repository

import (
	"context"
	"database/sql"

	"github.com/cldrn/dataverse/shared/models"
	"github.com/pkg/errors"
)

// GroupRepository stores explicit groups and their memberships.
type GroupRepository struct {
	db *sql.DB
}

func NewGroupRepository(db *sql.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

func (r *GroupRepository) Create(ctx context.Context, g *models.ExplicitGroup) error {
	err := conn(ctx, r.db).QueryRowContext(ctx, `
		INSERT INTO explicit_groups (owner_id, alias_in_owner, display_name, description)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, g.OwnerID, g.AliasInOwner, g.DisplayName, g.Description).Scan(&g.ID, &g.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrConflict("Group %s already exists.", g.AliasInOwner)
		}
		return errors.Wrap(err, "create explicit group")
	}
	return nil
}

// GetByAlias finds a group by its owner and alias.
func (r *GroupRepository) GetByAlias(ctx context.Context, ownerID int64, alias string) (*models.ExplicitGroup, error) {
	var g models.ExplicitGroup
	err := conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, owner_id, alias_in_owner, display_name, description, created_at
		FROM explicit_groups
		WHERE owner_id = $1 AND alias_in_owner = $2
	`, ownerID, alias).Scan(&g.ID, &g.OwnerID, &g.AliasInOwner, &g.DisplayName, &g.Description, &g.CreatedAt)
	if err != nil {
		return nil, notFound(err, "Group "+models.GroupIdentifier(ownerID, alias))
	}
	return &g, nil
}

// AddMember adds a user to the group; an existing membership is kept.
func (r *GroupRepository) AddMember(ctx context.Context, groupID, userID int64) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO explicit_group_members (group_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, groupID, userID)
	return errors.Wrap(err, "add group member")
}

// ListMembers returns the identifiers of the group's members.
func (r *GroupRepository) ListMembers(ctx context.Context, groupID int64) ([]string, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
		SELECT u.username
		FROM explicit_group_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.group_id = $1
		ORDER BY u.username
	`, groupID)
	if err != nil {
		return nil, errors.Wrap(err, "list group members")
	}
	defer rows.Close()

	members := []string{}
	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			return nil, errors.Wrap(err, "scan group member")
		}
		members = append(members, models.UserIdentifierPrefix+username)
	}
	return members, errors.Wrap(rows.Err(), "list group members")
}

// DeleteAllMembershipsForUser removes the user from every explicit group.
func (r *GroupRepository) DeleteAllMembershipsForUser(ctx context.Context, userID int64) (int64, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM explicit_group_members WHERE user_id = $1`, userID)
	if err != nil {
		return 0, errors.Wrap(err, "delete group memberships")
	}
	return res.RowsAffected()
}

// ReassignMember moves the source user's memberships to target.
func (r *GroupRepository) ReassignMember(ctx context.Context, sourceID, targetID int64) (int64, error) {
	db := conn(ctx, r.db)
	res, err := db.ExecContext(ctx, `
		INSERT INTO explicit_group_members (group_id, user_id)
		SELECT group_id, $2 FROM explicit_group_members WHERE user_id = $1
		ON CONFLICT DO NOTHING
	`, sourceID, targetID)
	if err != nil {
		return 0, errors.Wrap(err, "copy group memberships")
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM explicit_group_members WHERE user_id = $1`, sourceID); err != nil {
		return 0, errors.Wrap(err, "drop group memberships")
	}
	return res.RowsAffected()
}
