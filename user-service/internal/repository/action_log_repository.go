package repository

import (
	"context"
	"database/sql"

	"github.com/cldrn/dataverse/shared/models"
	"github.com/pkg/errors"
)

// ActionLogRepository persists the administrative action log.
type ActionLogRepository struct {
	db *sql.DB
}

func NewActionLogRepository(db *sql.DB) *ActionLogRepository {
	return &ActionLogRepository{db: db}
}

func (r *ActionLogRepository) Insert(ctx context.Context, e *models.ActionLogEntry) error {
	var payload any
	if len(e.Payload) > 0 {
		payload = []byte(e.Payload)
	}
	err := conn(ctx, r.db).QueryRowContext(ctx, `
		INSERT INTO action_log (event_type, actor, subject, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, e.EventType, e.Actor, e.Subject, payload, e.CreatedAt).Scan(&e.ID)
	return errors.Wrap(err, "insert action log entry")
}

// List returns the most recent entries first.
func (r *ActionLogRepository) List(ctx context.Context, limit int) ([]models.ActionLogEntry, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
		SELECT id, event_type, actor, subject, payload, created_at
		FROM action_log
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list action log")
	}
	defer rows.Close()

	entries := []models.ActionLogEntry{}
	for rows.Next() {
		var e models.ActionLogEntry
		var payload []byte
		if err := rows.Scan(&e.ID, &e.EventType, &e.Actor, &e.Subject, &payload, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan action log entry")
		}
		e.Payload = payload
		entries = append(entries, e)
	}
	return entries, errors.Wrap(rows.Err(), "list action log")
}

// ReassignActor rewrites entries recorded for one username to another.
func (r *ActionLogRepository) ReassignActor(ctx context.Context, from, to string) (int64, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx, `
		UPDATE action_log
		SET actor = CASE WHEN actor = $1 THEN $2 ELSE actor END,
		    subject = CASE WHEN subject = $1 THEN $2 ELSE subject END
		WHERE actor = $1 OR subject = $1
	`, from, to)
	if err != nil {
		return 0, errors.Wrap(err, "reassign action log")
	}
	return res.RowsAffected()
}
