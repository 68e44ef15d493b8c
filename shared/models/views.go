package models

import "time"

// UserView is the read-optimised projection of a user.
// It never exposes PasswordHash.
type UserView struct {
	ID          int64      `json:"id"`
	Identifier  string     `json:"identifier"`
	Username    string     `json:"userName"`
	DisplayName string     `json:"displayName"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	Email       string     `json:"email"`
	Superuser   bool       `json:"superuser"`
	Disabled    bool       `json:"disabled"`
	DisabledAt  *time.Time `json:"disabledTime,omitempty"`
	CreatedAt   time.Time  `json:"createdTime"`
	UpdatedAt   time.Time  `json:"lastUpdatedTime"`
}

// NewUserView projects the write model.
func NewUserView(u *User) *UserView {
	return &UserView{
		ID:          u.ID,
		Identifier:  u.Identifier(),
		Username:    u.Username,
		DisplayName: u.DisplayName(),
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Email:       u.Email,
		Superuser:   u.Superuser,
		Disabled:    u.Disabled,
		DisabledAt:  u.DisabledAt,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// CreatedUserView is returned once on registration; it is the only place the
// API token is shown.
type CreatedUserView struct {
	User     *UserView `json:"user"`
	APIToken string    `json:"apiToken"`
}

// RoleAssignmentTrace is one role assignment attributed to a user.
type RoleAssignmentTrace struct {
	ID                  int64  `json:"id"`
	RoleAlias           string `json:"roleAlias"`
	RoleName            string `json:"roleName"`
	DefinitionPointID   int64  `json:"definitionPointId"`
	DefinitionPointName string `json:"definitionPointName"`
	DefinitionPointKind string `json:"definitionPointType"`
}

// ExplicitGroupTrace is one explicit group a user belongs to.
type ExplicitGroupTrace struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Identifier string `json:"identifier"`
}

// TraceSection wraps the items of one trace kind.
type TraceSection[T any] struct {
	Count int `json:"count"`
	Items []T `json:"items"`
}

// Traces aggregates a user's authorization artifacts. Empty sections are
// omitted so an account without any serialises as {}.
type Traces struct {
	RoleAssignments *TraceSection[RoleAssignmentTrace] `json:"roleAssignments,omitempty"`
	ExplicitGroups  *TraceSection[ExplicitGroupTrace]  `json:"explicitGroups,omitempty"`
}

// Empty reports whether no artifacts are attributed.
func (t Traces) Empty() bool {
	return t.RoleAssignments == nil && t.ExplicitGroups == nil
}

// TraceUser identifies the subject of a trace.
type TraceUser struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
	Disabled   bool   `json:"disabled"`
}

// TraceView is computed per query from a single read snapshot.
type TraceView struct {
	User   TraceUser `json:"user"`
	Traces Traces    `json:"traces"`
}

// RoleAssignmentView is the API projection of a role assignment.
type RoleAssignmentView struct {
	ID                int64  `json:"id"`
	Assignee          string `json:"assignee"`
	RoleAlias         string `json:"_roleAlias"`
	RoleName          string `json:"roleName"`
	DefinitionPointID int64  `json:"definitionPointId"`
}

// NewRoleAssignmentView projects an assignment.
func NewRoleAssignmentView(a *RoleAssignment) *RoleAssignmentView {
	name, _ := RoleName(a.RoleAlias)
	return &RoleAssignmentView{
		ID:                a.ID,
		Assignee:          a.Assignee,
		RoleAlias:         a.RoleAlias,
		RoleName:          name,
		DefinitionPointID: a.DefinitionPointID,
	}
}

// ExplicitGroupView is the API projection of an explicit group.
type ExplicitGroupView struct {
	ID           int64    `json:"id"`
	Identifier   string   `json:"identifier"`
	AliasInOwner string   `json:"groupAliasInOwner"`
	DisplayName  string   `json:"displayName"`
	Description  string   `json:"description,omitempty"`
	OwnerID      int64    `json:"owner"`
	Members      []string `json:"containedRoleAssignees"`
}
