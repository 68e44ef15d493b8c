package repository

import (
	"context"
	"database/sql"

	"github.com/cldrn/dataverse/shared/models"
	"github.com/pkg/errors"
)

// DefinitionPointRepository stores dataverses and datasets.
type DefinitionPointRepository struct {
	db *sql.DB
}

func NewDefinitionPointRepository(db *sql.DB) *DefinitionPointRepository {
	return &DefinitionPointRepository{db: db}
}

func (r *DefinitionPointRepository) Create(ctx context.Context, dp *models.DefinitionPoint) error {
	err := conn(ctx, r.db).QueryRowContext(ctx, `
		INSERT INTO definition_points (kind, alias, persistent_id, name, owner_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, dp.Kind, nullString(dp.Alias), nullString(dp.PersistentID), dp.Name, nullInt64(dp.OwnerID),
	).Scan(&dp.ID, &dp.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrConflict("A %s with identifier %s already exists.", dp.Kind, dp.DisplayName())
		}
		return errors.Wrap(err, "create definition point")
	}
	return nil
}

// Resolve looks a definition point up by id, alias or persistent identifier.
func (r *DefinitionPointRepository) Resolve(ctx context.Context, ref models.DefinitionPointRef) (*models.DefinitionPoint, error) {
	const base = `SELECT id, kind, alias, persistent_id, name, owner_id, created_at FROM definition_points `
	var query string
	var arg any
	switch {
	case ref.Alias != "":
		query, arg = base+`WHERE kind = 'dataverse' AND alias = $1`, ref.Alias
	case ref.PersistentID != "":
		query, arg = base+`WHERE kind = 'dataset' AND persistent_id = $1`, ref.PersistentID
	case ref.Kind != "":
		query, arg = base+`WHERE id = $1 AND kind = '`+kindLiteral(ref.Kind)+`'`, ref.ID
	default:
		query, arg = base+`WHERE id = $1`, ref.ID
	}

	var dp models.DefinitionPoint
	var alias, pid sql.NullString
	var owner sql.NullInt64
	err := conn(ctx, r.db).QueryRowContext(ctx, query, arg).
		Scan(&dp.ID, &dp.Kind, &alias, &pid, &dp.Name, &owner, &dp.CreatedAt)
	if err != nil {
		kind := ref.Kind
		if kind == "" {
			kind = "Definition point"
		}
		return nil, notFound(err, kind+" "+ref.String())
	}
	dp.Alias = alias.String
	dp.PersistentID = pid.String
	dp.OwnerID = int64Ptr(owner)
	return &dp, nil
}

func kindLiteral(kind string) string {
	if kind == models.KindDataset {
		return models.KindDataset
	}
	return models.KindDataverse
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
