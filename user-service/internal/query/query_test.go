package query

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/cldrn/dataverse/shared/cqrs"
	"github.com/cldrn/dataverse/shared/models"
	"github.com/cldrn/dataverse/user-service/internal/guard"
	"github.com/cldrn/dataverse/user-service/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userCols = []string{"id", "username", "email", "first_name", "last_name", "password_hash",
	"superuser", "disabled", "disabled_at", "created_at", "updated_at"}

var admin = models.Caller{UserID: 1, Username: "admin", Superuser: true}

func newServices(t *testing.T) (*UserQueryService, *PermissionQueryService, sqlmock.Sqlmock) {
	users, perms, mock, _ := newServicesWithCache(t)
	return users, perms, mock
}

func newServicesWithCache(t *testing.T) (*UserQueryService, *PermissionQueryService, sqlmock.Sqlmock, *repository.UserReadRepository) {
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

	writeRepo := repository.NewUserWriteRepository(db)
	assignments := repository.NewAssignmentRepository(db)
	authz := repository.NewAuthorizer(assignments)
	readRepo := repository.NewUserReadRepository(writeRepo, rdb, time.Minute)
	users := NewUserQueryService(
		repository.NewTxManager(db),
		guard.New(guard.Deps{Accounts: writeRepo}),
		authz,
		writeRepo,
		readRepo,
		repository.NewTraceRepository(db),
		repository.NewActionLogRepository(db),
	)
	perms := NewPermissionQueryService(authz, repository.NewDefinitionPointRepository(db), assignments)
	return users, perms, mock, readRepo
}

func expectUserRow(mock sqlmock.Sqlmock, disabled bool) {
	now := time.Now()
	var disabledAt any
	if disabled {
		disabledAt = now
	}
	mock.ExpectQuery(`SELECT .* FROM users WHERE username = \$1`).WithArgs("jdoe").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(7, "jdoe", "jdoe@example.org", "", "", "hash", false, disabled, disabledAt, now, now))
}

func TestGetTraces_DisabledUserHasEmptyTraces(t *testing.T) {
	users, _, mock := newServices(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM users WHERE username = \$1`).WithArgs("jdoe").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(7, "jdoe", "jdoe@example.org", "Jane", "Doe", "hash", false, true, now, now, now))
	mock.ExpectQuery(`FROM role_assignments ra`).WithArgs(int64(7)).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`FROM explicit_group_members m`).WithArgs(int64(7)).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	view, err := users.GetTraces(context.Background(), cqrs.GetTracesQuery{Caller: admin, User: models.UserRef{Username: "jdoe"}})
	require.NoError(t, err)
	assert.True(t, view.User.Disabled)
	assert.Equal(t, "@jdoe", view.User.Identifier)
	assert.True(t, view.Traces.Empty())
}

func TestGetTraces_RequiresSuperuser(t *testing.T) {
	users, _, _ := newServices(t)

	_, err := users.GetTraces(context.Background(), cqrs.GetTracesQuery{
		Caller: models.Caller{UserID: 2, Username: "jdoe"},
		User:   models.UserRef{Username: "jdoe"},
	})
	var denied *models.PermissionDeniedError
	assert.ErrorAs(t, err, &denied)
}

func TestGetUser_CachesView(t *testing.T) {
	users, _, mock, reader := newServicesWithCache(t)
	ctx := context.Background()

	expectUserRow(mock, true) // miss fills the cache
	expectUserRow(mock, true) // enablement check
	q := cqrs.GetUserQuery{Caller: admin, User: models.UserRef{Username: "jdoe"}}
	first, err := users.GetUser(ctx, q)
	require.NoError(t, err)
	assert.True(t, first.Disabled)

	expectUserRow(mock, true)
	second, err := users.GetUser(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	cached, err := reader.GetView(ctx, models.UserRef{Username: "jdoe"})
	require.NoError(t, err)
	assert.True(t, cached.Disabled)
}

func TestGetUser_ReloadsStaleEnabledView(t *testing.T) {
	users, _, mock, reader := newServicesWithCache(t)
	ctx := context.Background()

	// cached before a disable whose cache refresh never reached Redis
	reader.CacheUserView(ctx, &models.UserView{ID: 7, Identifier: "@jdoe", Username: "jdoe"})

	expectUserRow(mock, true) // enablement check
	expectUserRow(mock, true) // reload
	view, err := users.GetUser(ctx, cqrs.GetUserQuery{Caller: admin, User: models.UserRef{Username: "jdoe"}})
	require.NoError(t, err)
	assert.True(t, view.Disabled)
	assert.NotNil(t, view.DisabledAt)

	cached, err := reader.GetView(ctx, models.UserRef{Username: "jdoe"})
	require.NoError(t, err)
	assert.True(t, cached.Disabled, "reload refreshes the cache")
}

func TestListActionLog_ClampsLimit(t *testing.T) {
	users, _, mock := newServices(t)

	mock.ExpectQuery(`FROM action_log`).WithArgs(maxActionLogLimit).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_type", "actor", "subject", "payload", "created_at"}).
			AddRow(1, "user.disabled", "admin", "jdoe", []byte(`{"userName":"jdoe"}`), time.Now()))

	entries, err := users.ListActionLog(context.Background(), cqrs.ListActionLogQuery{Caller: admin, Limit: 5000})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "jdoe", entries[0].Subject)
}

func TestListAssignments(t *testing.T) {
	_, perms, mock := newServices(t)
	dpCols := []string{"id", "kind", "alias", "persistent_id", "name", "owner_id", "created_at"}

	mock.ExpectQuery(`WHERE kind = 'dataverse' AND alias = \$1`).WithArgs("root").
		WillReturnRows(sqlmock.NewRows(dpCols).AddRow(3, "dataverse", "root", nil, "Root", nil, time.Now()))
	mock.ExpectQuery(`FROM role_assignments\s+WHERE definition_point_id = \$1`).WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "assignee", "user_id", "group_id", "role_alias", "definition_point_id", "created_at"}).
			AddRow(10, "@jdoe", 7, nil, models.RoleCurator, 3, time.Now()))

	views, err := perms.ListAssignments(context.Background(), cqrs.ListAssignmentsQuery{Caller: admin, DataverseAlias: "root"})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "@jdoe", views[0].Assignee)
	assert.Equal(t, "Curator", views[0].RoleName)
}
