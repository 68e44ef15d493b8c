package command

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/cldrn/dataverse/shared/cqrs"
	"github.com/cldrn/dataverse/shared/events"
	"github.com/cldrn/dataverse/shared/models"
	"github.com/cldrn/dataverse/user-service/internal/guard"
	"github.com/cldrn/dataverse/user-service/internal/query"
	"github.com/cldrn/dataverse/user-service/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userCols = []string{"id", "username", "email", "first_name", "last_name", "password_hash",
	"superuser", "disabled", "disabled_at", "created_at", "updated_at"}

type harness struct {
	mock    sqlmock.Sqlmock
	mr      *miniredis.Miniredis
	redis   *redis.Client
	users   *UserCommandService
	reader  *repository.UserReadRepository
	queries *query.UserQueryService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		rdb.Close()
		db.Close()
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tx := repository.NewTxManager(db)
	writeRepo := repository.NewUserWriteRepository(db)
	assignments := repository.NewAssignmentRepository(db)
	groups := repository.NewGroupRepository(db)
	readRepo := repository.NewUserReadRepository(writeRepo, rdb, time.Minute)

	dispatcher := events.NewDispatcher()
	guard.NewCascadeHandler(assignments, groups).Register(dispatcher)
	g := guard.New(guard.Deps{
		Tx:          tx,
		Authorizer:  repository.NewAuthorizer(assignments),
		Accounts:    writeRepo,
		Assignments: assignments,
		Groups:      groups,
		Points:      repository.NewDefinitionPointRepository(db),
		Merger:      repository.NewAccountMerger(writeRepo, assignments, groups, repository.NewActionLogRepository(db), logger),
		Dispatcher:  dispatcher,
		Logger:      logger,
	})

	return &harness{
		mock:   mock,
		mr:     mr,
		redis:  rdb,
		users:  NewUserCommandService(tx, writeRepo, readRepo, g, events.NewPublisher(rdb), logger),
		reader: readRepo,
		queries: query.NewUserQueryService(tx, g, repository.NewAuthorizer(assignments), writeRepo, readRepo,
			repository.NewTraceRepository(db), repository.NewActionLogRepository(db)),
	}
}

func (h *harness) lastEvent(t *testing.T, stream string) events.Event {
	t.Helper()
	msgs, err := h.redis.XRevRangeN(context.Background(), stream, "+", "-", 1).Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	var e events.Event
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["event"].(string)), &e))
	return e
}

func TestUserCommandService_CreateUser(t *testing.T) {
	h := newHarness(t)
	now := time.Now()

	h.mock.ExpectBegin()
	h.mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("jdoe", "jdoe@example.org", "Jane", "Doe", sqlmock.AnyArg(), false).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(7, now, now))
	h.mock.ExpectExec(`INSERT INTO api_tokens`).
		WithArgs(sqlmock.AnyArg(), int64(7), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	h.mock.ExpectCommit()

	created, err := h.users.CreateUser(context.Background(), cqrs.CreateUserCommand{
		Username: "jdoe", Email: "jdoe@example.org", FirstName: "Jane", LastName: "Doe", Password: "secret-password",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), created.User.ID)
	assert.Equal(t, "@jdoe", created.User.Identifier)
	assert.NotEmpty(t, created.APIToken)

	view, err := h.reader.GetView(context.Background(), models.UserRef{Username: "jdoe"})
	require.NoError(t, err, "view must be served from the cache")
	assert.Equal(t, "Jane Doe", view.DisplayName)

	e := h.lastEvent(t, events.UserEventsStream)
	assert.Equal(t, events.UserCreated, e.Type)
}

func TestUserCommandService_DisableUser(t *testing.T) {
	h := newHarness(t)
	now := time.Now()
	admin := models.Caller{UserID: 1, Username: "admin", Superuser: true}

	h.mock.ExpectBegin()
	h.mock.ExpectQuery(`SELECT .* FROM users WHERE username = \$1 FOR UPDATE`).WithArgs("jdoe").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(7, "jdoe", "jdoe@example.org", "", "", "hash", false, false, nil, now, now))
	h.mock.ExpectExec(`UPDATE users SET disabled = TRUE`).WillReturnResult(sqlmock.NewResult(0, 1))
	h.mock.ExpectExec(`DELETE FROM role_assignments WHERE user_id = \$1`).WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	h.mock.ExpectExec(`DELETE FROM explicit_group_members WHERE user_id = \$1`).WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	h.mock.ExpectCommit()

	view, err := h.users.DisableUser(context.Background(), cqrs.DisableUserCommand{
		Caller: admin, User: models.UserRef{Username: "jdoe"},
	})
	require.NoError(t, err)
	assert.True(t, view.Disabled)

	n, err := h.redis.Exists(context.Background(), "user:view:jdoe").Result()
	require.NoError(t, err)
	assert.Zero(t, n, "the cached view is dropped after commit")

	e := h.lastEvent(t, events.UserEventsStream)
	assert.Equal(t, events.UserDisabled, e.Type)
	assert.Equal(t, "admin", e.Actor)
	var payload events.UserDisabledEvent
	require.NoError(t, events.Decode(e, &payload))
	assert.Equal(t, int64(2), payload.RoleAssignmentsRemoved)
	assert.Equal(t, int64(1), payload.MembershipsRemoved)
}

func TestUserCommandService_DisabledIsVisibleWhenCacheWriteFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Now()
	admin := models.Caller{UserID: 1, Username: "admin", Superuser: true}
	row := func(disabled bool) *sqlmock.Rows {
		var disabledAt any
		if disabled {
			disabledAt = now
		}
		return sqlmock.NewRows(userCols).
			AddRow(7, "jdoe", "jdoe@example.org", "", "", "hash", false, disabled, disabledAt, now, now)
	}

	h.reader.CacheUserView(ctx, &models.UserView{ID: 7, Identifier: "@jdoe", Username: "jdoe"})

	h.mock.ExpectBegin()
	h.mock.ExpectQuery(`FOR UPDATE`).WithArgs("jdoe").WillReturnRows(row(false))
	h.mock.ExpectExec(`UPDATE users SET disabled = TRUE`).WillReturnResult(sqlmock.NewResult(0, 1))
	h.mock.ExpectExec(`DELETE FROM role_assignments`).WillReturnResult(sqlmock.NewResult(0, 0))
	h.mock.ExpectExec(`DELETE FROM explicit_group_members`).WillReturnResult(sqlmock.NewResult(0, 0))
	h.mock.ExpectCommit()

	h.mr.SetError("READONLY You can't write against a read only replica.")
	_, err := h.users.DisableUser(ctx, cqrs.DisableUserCommand{Caller: admin, User: models.UserRef{Username: "jdoe"}})
	require.NoError(t, err)
	h.mr.SetError("")

	stale, err := h.reader.GetView(ctx, models.UserRef{Username: "jdoe"})
	require.NoError(t, err)
	require.False(t, stale.Disabled, "the cache still holds the enabled view")

	h.mock.ExpectQuery(`FROM users WHERE username = \$1`).WithArgs("jdoe").WillReturnRows(row(true))
	h.mock.ExpectQuery(`FROM users WHERE username = \$1`).WithArgs("jdoe").WillReturnRows(row(true))
	view, err := h.queries.GetUser(ctx, cqrs.GetUserQuery{Caller: admin, User: models.UserRef{Username: "jdoe"}})
	require.NoError(t, err)
	assert.True(t, view.Disabled)
}

func TestUserCommandService_DisableUserRollsBackOnCascadeFailure(t *testing.T) {
	h := newHarness(t)
	now := time.Now()
	admin := models.Caller{UserID: 1, Username: "admin", Superuser: true}

	h.mock.ExpectBegin()
	h.mock.ExpectQuery(`FOR UPDATE`).WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(7, "jdoe", "jdoe@example.org", "", "", "hash", false, false, nil, now, now))
	h.mock.ExpectExec(`UPDATE users SET disabled = TRUE`).WillReturnResult(sqlmock.NewResult(0, 1))
	h.mock.ExpectExec(`DELETE FROM role_assignments`).WillReturnError(assert.AnError)
	h.mock.ExpectRollback()

	_, err := h.users.DisableUser(context.Background(), cqrs.DisableUserCommand{
		Caller: admin, User: models.UserRef{ID: 7},
	})
	require.ErrorIs(t, err, assert.AnError)

	n, err := h.redis.Exists(context.Background(), events.UserEventsStream).Result()
	require.NoError(t, err)
	assert.Zero(t, n, "nothing is published for a rolled back disable")
}

type memActionLog struct {
	entries []*models.ActionLogEntry
}

func (m *memActionLog) Insert(_ context.Context, e *models.ActionLogEntry) error {
	e.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, e)
	return nil
}

func TestActionLogRecorder_HandleEvent(t *testing.T) {
	store := &memActionLog{}
	rec := NewActionLogRecorder(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	err := rec.HandleEvent(context.Background(), events.Event{
		Type:      events.UserDisabled,
		Timestamp: ts,
		Actor:     "admin",
		Data:      map[string]any{"userId": 7, "userName": "jdoe", "roleAssignmentsRemoved": 2},
	})
	require.NoError(t, err)
	require.Len(t, store.entries, 1)
	entry := store.entries[0]
	assert.Equal(t, events.UserDisabled, entry.EventType)
	assert.Equal(t, "admin", entry.Actor)
	assert.Equal(t, "jdoe", entry.Subject)
	assert.Equal(t, ts, entry.CreatedAt)
	assert.JSONEq(t, `{"userId":7,"userName":"jdoe","roleAssignmentsRemoved":2}`, string(entry.Payload))

	require.NoError(t, rec.HandleEvent(context.Background(), events.Event{
		Type: events.RoleAssigned,
		Data: events.RoleAssignedEvent{Assignee: "@jdoe", RoleAlias: models.RoleCurator},
	}))
	assert.Equal(t, "@jdoe", store.entries[1].Subject)

	require.NoError(t, rec.HandleEvent(context.Background(), events.Event{
		Type: "maintenance.note",
		Data: "reindex finished",
	}))
	require.Len(t, store.entries, 3)
	assert.Empty(t, store.entries[2].Subject)
	assert.JSONEq(t, `"reindex finished"`, string(store.entries[2].Payload))
}
