package repository

import (
	"context"
	"log/slog"

	"github.com/cldrn/dataverse/shared/models"
)

// AccountMerger folds one account into another. It must run inside a
// transaction started by TxManager; the guard provides one.
type AccountMerger struct {
	users       *UserWriteRepository
	assignments *AssignmentRepository
	groups      *GroupRepository
	actionLog   *ActionLogRepository
	logger      *slog.Logger
}

func NewAccountMerger(users *UserWriteRepository, assignments *AssignmentRepository, groups *GroupRepository,
	actionLog *ActionLogRepository, logger *slog.Logger) *AccountMerger {
	return &AccountMerger{users: users, assignments: assignments, groups: groups, actionLog: actionLog, logger: logger}
}

// Merge moves role assignments, group memberships and action log references
// from source to target, then removes source and its tokens.
func (m *AccountMerger) Merge(ctx context.Context, target, source *models.User) error {
	roles, err := m.assignments.ReassignUser(ctx, source.ID, target)
	if err != nil {
		return err
	}
	memberships, err := m.groups.ReassignMember(ctx, source.ID, target.ID)
	if err != nil {
		return err
	}
	logEntries, err := m.actionLog.ReassignActor(ctx, source.Username, target.Username)
	if err != nil {
		return err
	}
	tokens, err := m.users.DeleteAPITokens(ctx, source.ID)
	if err != nil {
		return err
	}
	if err := m.users.Delete(ctx, source.ID); err != nil {
		return err
	}

	m.logger.Info("accounts merged",
		"target", target.Username,
		"source", source.Username,
		"role_assignments", roles,
		"memberships", memberships,
		"action_log_entries", logEntries,
		"tokens_removed", tokens,
	)
	return nil
}
