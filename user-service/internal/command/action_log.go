package command

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cldrn/dataverse/shared/events"
	"github.com/cldrn/dataverse/shared/models"
)

// ActionLogStore persists action log entries.
type ActionLogStore interface {
	Insert(ctx context.Context, e *models.ActionLogEntry) error
}

// subjectFields are the payload fields naming what an event acted on, in
// order of preference.
var subjectFields = []string{"userName", "targetUserName", "assignee", "identifier", "alias", "persistentId"}

// ActionLogRecorder is the Redis stream handler that records every published
// event in the action log.
type ActionLogRecorder struct {
	store  ActionLogStore
	logger *slog.Logger
}

func NewActionLogRecorder(store ActionLogStore, logger *slog.Logger) *ActionLogRecorder {
	return &ActionLogRecorder{store: store, logger: logger}
}

func (r *ActionLogRecorder) HandleEvent(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event.Type, err)
	}

	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		r.logger.Debug("event payload is not an object, recording without subject", "type", event.Type, "error", err)
	}

	entry := &models.ActionLogEntry{
		EventType: event.Type,
		Actor:     event.Actor,
		Subject:   subjectOf(fields),
		Payload:   payload,
		CreatedAt: event.Timestamp,
	}
	if err := r.store.Insert(ctx, entry); err != nil {
		return err
	}
	r.logger.Debug("action logged", "type", event.Type, "subject", entry.Subject)
	return nil
}

func subjectOf(fields map[string]any) string {
	for _, key := range subjectFields {
		if s, ok := fields[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
