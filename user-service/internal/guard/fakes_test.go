package guard

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/cldrn/dataverse/shared/events"
	"github.com/cldrn/dataverse/shared/models"
)

// memStore is an in-memory stand-in for the PostgreSQL repositories. InTx
// restores the previous state when fn fails.
type memStore struct {
	nextID      int64
	users       map[int64]*models.User
	points      map[int64]*models.DefinitionPoint
	groups      map[int64]*models.ExplicitGroup
	members     map[int64]map[int64]bool
	assignments map[int64]models.RoleAssignment

	failRevoke error
	txCount    int
}

func newMemStore() *memStore {
	return &memStore{
		users:       map[int64]*models.User{},
		points:      map[int64]*models.DefinitionPoint{},
		groups:      map[int64]*models.ExplicitGroup{},
		members:     map[int64]map[int64]bool{},
		assignments: map[int64]models.RoleAssignment{},
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) addUser(username string, superuser bool) *models.User {
	u := &models.User{ID: s.id(), Username: username, Email: username + "@example.org", Superuser: superuser}
	s.users[u.ID] = u
	return u
}

func (s *memStore) addDataverse(alias string) *models.DefinitionPoint {
	dp := &models.DefinitionPoint{ID: s.id(), Kind: models.KindDataverse, Alias: alias, Name: alias}
	s.points[dp.ID] = dp
	return dp
}

func (s *memStore) addGroup(owner *models.DefinitionPoint, alias string) *models.ExplicitGroup {
	g := &models.ExplicitGroup{ID: s.id(), OwnerID: owner.ID, AliasInOwner: alias, DisplayName: alias}
	s.groups[g.ID] = g
	return g
}

// traces counts the artifacts attributed to the user.
func (s *memStore) traces(userID int64) (roles, groups int) {
	for _, a := range s.assignments {
		if a.UserID != nil && *a.UserID == userID {
			roles++
		}
	}
	for _, m := range s.members {
		if m[userID] {
			groups++
		}
	}
	return roles, groups
}

func (s *memStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txCount++
	users := map[int64]*models.User{}
	for id, u := range s.users {
		c := *u
		users[id] = &c
	}
	members := map[int64]map[int64]bool{}
	for g, m := range s.members {
		members[g] = map[int64]bool{}
		for u := range m {
			members[g][u] = true
		}
	}
	assignments := map[int64]models.RoleAssignment{}
	for id, a := range s.assignments {
		assignments[id] = a
	}

	if err := fn(ctx); err != nil {
		s.users, s.members, s.assignments = users, members, assignments
		return err
	}
	return nil
}

func (s *memStore) GetByRef(_ context.Context, ref models.UserRef) (*models.User, error) {
	for _, u := range s.users {
		if (ref.ByID() && u.ID == ref.ID) || (!ref.ByID() && u.Username == ref.Username) {
			c := *u
			return &c, nil
		}
	}
	return nil, models.ErrNotFound("User %s not found.", ref)
}

func (s *memStore) GetByRefForUpdate(ctx context.Context, ref models.UserRef) (*models.User, error) {
	return s.GetByRef(ctx, ref)
}

func (s *memStore) GetByRefForShare(ctx context.Context, ref models.UserRef) (*models.User, error) {
	return s.GetByRef(ctx, ref)
}

func (s *memStore) MarkDisabled(_ context.Context, userID int64, at time.Time) error {
	u, ok := s.users[userID]
	if !ok {
		return models.ErrNotFound("User id:%d not found.", userID)
	}
	u.Disabled = true
	u.DisabledAt = &at
	return nil
}

func (s *memStore) Create(_ context.Context, a *models.RoleAssignment) error {
	for id, existing := range s.assignments {
		if existing.Assignee == a.Assignee && existing.RoleAlias == a.RoleAlias && existing.DefinitionPointID == a.DefinitionPointID {
			a.ID = id
			return nil
		}
	}
	a.ID = s.id()
	s.assignments[a.ID] = *a
	return nil
}

func (s *memStore) DeleteAllForUser(_ context.Context, userID int64) (int64, error) {
	if s.failRevoke != nil {
		return 0, s.failRevoke
	}
	var n int64
	for id, a := range s.assignments {
		if a.UserID != nil && *a.UserID == userID {
			delete(s.assignments, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) GetByAlias(_ context.Context, ownerID int64, alias string) (*models.ExplicitGroup, error) {
	for _, g := range s.groups {
		if g.OwnerID == ownerID && g.AliasInOwner == alias {
			return g, nil
		}
	}
	return nil, models.ErrNotFound("Group %s not found.", models.GroupIdentifier(ownerID, alias))
}

func (s *memStore) AddMember(_ context.Context, groupID, userID int64) error {
	if s.members[groupID] == nil {
		s.members[groupID] = map[int64]bool{}
	}
	s.members[groupID][userID] = true
	return nil
}

func (s *memStore) groupMembers(groupID int64) []int64 {
	var ids []int64
	for id := range s.members[groupID] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *memStore) DeleteAllMembershipsForUser(_ context.Context, userID int64) (int64, error) {
	var n int64
	for _, m := range s.members {
		if m[userID] {
			delete(m, userID)
			n++
		}
	}
	return n, nil
}

func (s *memStore) Resolve(_ context.Context, ref models.DefinitionPointRef) (*models.DefinitionPoint, error) {
	for _, dp := range s.points {
		if (ref.Alias != "" && dp.Alias == ref.Alias) ||
			(ref.PersistentID != "" && dp.PersistentID == ref.PersistentID) ||
			(ref.Alias == "" && ref.PersistentID == "" && dp.ID == ref.ID) {
			return dp, nil
		}
	}
	return nil, models.ErrNotFound("Definition point %s not found.", ref)
}

func (s *memStore) Merge(_ context.Context, target, source *models.User) error {
	for id, a := range s.assignments {
		if a.UserID != nil && *a.UserID == source.ID {
			tid := target.ID
			a.UserID = &tid
			a.Assignee = target.Identifier()
			s.assignments[id] = a
		}
	}
	for _, m := range s.members {
		if m[source.ID] {
			delete(m, source.ID)
			m[target.ID] = true
		}
	}
	delete(s.users, source.ID)
	return nil
}

// memAuthorizer grants permission management to superusers and dataverse admins.
type memAuthorizer struct {
	store *memStore
}

func (a memAuthorizer) RequireSuperuser(_ context.Context, caller models.Caller) error {
	if !caller.Superuser {
		return models.ErrPermissionDenied("Superusers only.")
	}
	return nil
}

func (a memAuthorizer) CanManagePermissions(_ context.Context, caller models.Caller, definitionPointID int64) error {
	if caller.Superuser {
		return nil
	}
	for _, ra := range a.store.assignments {
		if ra.UserID != nil && *ra.UserID == caller.UserID && ra.DefinitionPointID == definitionPointID && ra.RoleAlias == models.RoleAdmin {
			return nil
		}
	}
	return models.ErrPermissionDenied("User @%s is not permitted to manage permissions on this object.", caller.Username)
}

type fixture struct {
	store      *memStore
	guard      *Guard
	dispatched []events.Event
}

func newFixture() *fixture {
	f := &fixture{store: newMemStore()}
	d := events.NewDispatcher()
	d.Subscribe(events.UserDisabled, func(_ context.Context, e events.Event) error {
		f.dispatched = append(f.dispatched, e)
		return nil
	})
	NewCascadeHandler(f.store, f.store).Register(d)

	f.guard = New(Deps{
		Tx:          f.store,
		Authorizer:  memAuthorizer{store: f.store},
		Accounts:    f.store,
		Assignments: f.store,
		Groups:      f.store,
		Points:      f.store,
		Merger:      f.store,
		Dispatcher:  d,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:         func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) },
	})
	return f
}

func callerOf(u *models.User) models.Caller {
	return models.Caller{UserID: u.ID, Username: u.Username, Superuser: u.Superuser}
}

func refOf(u *models.User) models.UserRef {
	return models.UserRef{Username: u.Username}
}
