package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/cldrn/dataverse/shared/cqrs"
	"github.com/cldrn/dataverse/shared/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPermissionCommander struct {
	grantFn       func(cqrs.GrantRoleCommand) (*models.RoleAssignmentView, error)
	createGroupFn func(cqrs.CreateGroupCommand) (*models.ExplicitGroupView, error)
	addMembersFn  func(cqrs.AddGroupMembersCommand) (*models.ExplicitGroupView, error)
}

func (m *mockPermissionCommander) GrantRole(_ context.Context, cmd cqrs.GrantRoleCommand) (*models.RoleAssignmentView, error) {
	if m.grantFn != nil {
		return m.grantFn(cmd)
	}
	return nil, fmt.Errorf("not configured")
}

func (m *mockPermissionCommander) CreateGroup(_ context.Context, cmd cqrs.CreateGroupCommand) (*models.ExplicitGroupView, error) {
	if m.createGroupFn != nil {
		return m.createGroupFn(cmd)
	}
	return nil, fmt.Errorf("not configured")
}

func (m *mockPermissionCommander) AddGroupMembers(_ context.Context, cmd cqrs.AddGroupMembersCommand) (*models.ExplicitGroupView, error) {
	if m.addMembersFn != nil {
		return m.addMembersFn(cmd)
	}
	return nil, fmt.Errorf("not configured")
}

type mockPermissionQuerier struct {
	listFn func(cqrs.ListAssignmentsQuery) ([]*models.RoleAssignmentView, error)
}

func (m *mockPermissionQuerier) ListAssignments(_ context.Context, q cqrs.ListAssignmentsQuery) ([]*models.RoleAssignmentView, error) {
	if m.listFn != nil {
		return m.listFn(q)
	}
	return nil, fmt.Errorf("not configured")
}

type mockCollectionCommander struct {
	dataverseFn func(cqrs.CreateDataverseCommand) (*models.DefinitionPoint, error)
	datasetFn   func(cqrs.CreateDatasetCommand) (*models.DefinitionPoint, error)
}

func (m *mockCollectionCommander) CreateDataverse(_ context.Context, cmd cqrs.CreateDataverseCommand) (*models.DefinitionPoint, error) {
	if m.dataverseFn != nil {
		return m.dataverseFn(cmd)
	}
	return nil, fmt.Errorf("not configured")
}

func (m *mockCollectionCommander) CreateDataset(_ context.Context, cmd cqrs.CreateDatasetCommand) (*models.DefinitionPoint, error) {
	if m.datasetFn != nil {
		return m.datasetFn(cmd)
	}
	return nil, fmt.Errorf("not configured")
}

func TestGrantOnDataverse(t *testing.T) {
	d := newDeps()
	d.perms.grantFn = func(cmd cqrs.GrantRoleCommand) (*models.RoleAssignmentView, error) {
		assert.Equal(t, models.DefinitionPointRef{Kind: models.KindDataverse, Alias: "dv1"}, cmd.Target)
		return &models.RoleAssignmentView{ID: 5, Assignee: cmd.Assignee, RoleAlias: cmd.RoleAlias}, nil
	}
	r := newTestRouter(d, fakeAuth(superCaller))

	w := doRequest(r, http.MethodPost, "/api/dataverses/dv1/assignments",
		map[string]string{"assignee": "@jdoe", "role": "curator"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var data map[string]any
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &data))
	assert.Equal(t, "@jdoe", data["assignee"])
	assert.Equal(t, "curator", data["_roleAlias"])
}

func TestGrantRole_DisabledAssignee(t *testing.T) {
	const msg = "User jdoe is disabled and cannot be given a role."
	d := newDeps()
	d.perms.grantFn = func(cqrs.GrantRoleCommand) (*models.RoleAssignmentView, error) {
		return nil, models.ErrPermissionDenied(msg)
	}
	r := newTestRouter(d, fakeAuth(superCaller))

	for _, url := range []string{
		"/api/dataverses/dv1/assignments",
		"/api/datasets/12/assignments",
		"/api/datasets/:persistentId/assignments?persistentId=doi:10.5072/FK2/ABCDEF",
	} {
		w := doRequest(r, http.MethodPost, url, map[string]string{"assignee": "@jdoe", "role": "curator"}, nil)
		assert.Equal(t, http.StatusForbidden, w.Code, url)
		assert.Equal(t, msg, decode(t, w).Message, url)
	}
}

func TestGrantOnDataset_Addressing(t *testing.T) {
	d := newDeps()
	var got []models.DefinitionPointRef
	d.perms.grantFn = func(cmd cqrs.GrantRoleCommand) (*models.RoleAssignmentView, error) {
		got = append(got, cmd.Target)
		return &models.RoleAssignmentView{}, nil
	}
	r := newTestRouter(d, fakeAuth(superCaller))
	body := map[string]string{"assignee": "@jdoe", "role": "curator"}

	w := doRequest(r, http.MethodPost, "/api/datasets/12/assignments", body, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = doRequest(r, http.MethodPost, "/api/datasets/:persistentId/assignments?persistentId=doi:10.5072/FK2/ABCDEF", body, nil)
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, got, 2)
	assert.Equal(t, models.DefinitionPointRef{Kind: models.KindDataset, ID: 12}, got[0])
	assert.Equal(t, models.DefinitionPointRef{Kind: models.KindDataset, PersistentID: "doi:10.5072/FK2/ABCDEF"}, got[1])

	w = doRequest(r, http.MethodPost, "/api/datasets/:persistentId/assignments", body, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doRequest(r, http.MethodPost, "/api/datasets/abc/assignments", body, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddGroupMembers(t *testing.T) {
	d := newDeps()
	d.perms.addMembersFn = func(cmd cqrs.AddGroupMembersCommand) (*models.ExplicitGroupView, error) {
		assert.Equal(t, "dv1", cmd.OwnerAlias)
		assert.Equal(t, "group1", cmd.AliasInOwner)
		assert.Equal(t, []string{"@jdoe"}, cmd.Members)
		return &models.ExplicitGroupView{Identifier: "&explicit/3-group1", Members: cmd.Members}, nil
	}
	r := newTestRouter(d, fakeAuth(superCaller))

	w := doRequest(r, http.MethodPost, "/api/dataverses/dv1/groups/group1/roleAssignees", []string{"@jdoe"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doRequest(r, http.MethodPost, "/api/dataverses/dv1/groups/group1/roleAssignees", map[string]string{"a": "b"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddGroupMembers_DisabledMember(t *testing.T) {
	const msg = "User jdoe is disabled and cannot be added to a group."
	d := newDeps()
	d.perms.addMembersFn = func(cqrs.AddGroupMembersCommand) (*models.ExplicitGroupView, error) {
		return nil, models.ErrPermissionDenied(msg)
	}
	r := newTestRouter(d, fakeAuth(superCaller))

	w := doRequest(r, http.MethodPost, "/api/dataverses/dv1/groups/group1/roleAssignees", []string{"@jdoe"}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, msg, decode(t, w).Message)
}

func TestCreateGroup(t *testing.T) {
	d := newDeps()
	d.perms.createGroupFn = func(cmd cqrs.CreateGroupCommand) (*models.ExplicitGroupView, error) {
		return &models.ExplicitGroupView{ID: 4, Identifier: models.GroupIdentifier(3, cmd.AliasInOwner), Members: []string{}}, nil
	}
	r := newTestRouter(d, fakeAuth(superCaller))

	w := doRequest(r, http.MethodPost, "/api/dataverses/dv1/groups",
		map[string]string{"aliasInOwner": "group1", "displayName": "Group One"}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var data map[string]any
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &data))
	assert.Equal(t, "&explicit/3-group1", data["identifier"])

	w = doRequest(r, http.MethodPost, "/api/dataverses/dv1/groups", map[string]string{"displayName": "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAssignments(t *testing.T) {
	d := newDeps()
	d.permQueries.listFn = func(q cqrs.ListAssignmentsQuery) ([]*models.RoleAssignmentView, error) {
		if q.Caller.Superuser {
			return []*models.RoleAssignmentView{{ID: 1, Assignee: "@jdoe", RoleAlias: "admin"}}, nil
		}
		return nil, models.ErrPermissionDenied("not permitted")
	}

	w := doRequest(newTestRouter(d, fakeAuth(superCaller)), http.MethodGet, "/api/dataverses/dv1/assignments", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(newTestRouter(d, fakeAuth(models.Caller{UserID: 2, Username: "jdoe"})), http.MethodGet, "/api/dataverses/dv1/assignments", nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCreateDataverseAndDataset(t *testing.T) {
	d := newDeps()
	d.collections.dataverseFn = func(cmd cqrs.CreateDataverseCommand) (*models.DefinitionPoint, error) {
		return &models.DefinitionPoint{ID: 3, Kind: models.KindDataverse, Alias: cmd.Alias, Name: cmd.Name}, nil
	}
	d.collections.datasetFn = func(cmd cqrs.CreateDatasetCommand) (*models.DefinitionPoint, error) {
		if cmd.DataverseAlias != "dv1" {
			return nil, models.ErrNotFound("dataverse %s not found.", cmd.DataverseAlias)
		}
		return &models.DefinitionPoint{ID: 4, Kind: models.KindDataset, PersistentID: "doi:10.5072/FK2/ABCDEF"}, nil
	}
	r := newTestRouter(d, fakeAuth(superCaller))

	w := doRequest(r, http.MethodPost, "/api/dataverses", map[string]string{"alias": "dv1", "name": "Dataverse One"}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var dv map[string]any
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &dv))
	assert.Equal(t, "dv1", dv["alias"])

	w = doRequest(r, http.MethodPost, "/api/dataverses/dv1/datasets", map[string]string{"title": "Data"}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var ds map[string]any
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &ds))
	assert.Equal(t, "doi:10.5072/FK2/ABCDEF", ds["persistentId"])

	w = doRequest(r, http.MethodPost, "/api/dataverses/other/datasets", map[string]string{"title": "Data"}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
