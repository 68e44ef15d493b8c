package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// User is the write model of an authenticated user account.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"userName"`
	Email        string     `json:"email"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	PasswordHash string     `json:"-"`
	Superuser    bool       `json:"superuser"`
	Disabled     bool       `json:"disabled"`
	DisabledAt   *time.Time `json:"disabledTime,omitempty"`
	CreatedAt    time.Time  `json:"createdTime"`
	UpdatedAt    time.Time  `json:"lastUpdatedTime"`
}

// Identifier is the assignee form of the user, e.g. "@jdoe".
func (u *User) Identifier() string {
	return UserIdentifierPrefix + u.Username
}

// DisplayName joins first and last name, falling back to the username.
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	default:
		return u.Username
	}
}

// Definition point kinds.
const (
	KindDataverse = "dataverse"
	KindDataset   = "dataset"
)

// DefinitionPoint is an object a role can be assigned on.
type DefinitionPoint struct {
	ID           int64     `json:"id"`
	Kind         string    `json:"kind"`
	Alias        string    `json:"alias,omitempty"`
	PersistentID string    `json:"persistentId,omitempty"`
	Name         string    `json:"name"`
	OwnerID      *int64    `json:"ownerId,omitempty"`
	CreatedAt    time.Time `json:"createdTime"`
}

// DisplayName is the alias for dataverses and the persistent identifier for datasets.
func (d *DefinitionPoint) DisplayName() string {
	if d.Kind == KindDataset {
		return d.PersistentID
	}
	return d.Alias
}

// DefinitionPointRef addresses a definition point by id, dataverse alias or
// dataset persistent identifier. Kind is required with Alias or PersistentID.
type DefinitionPointRef struct {
	ID           int64
	Kind         string
	Alias        string
	PersistentID string
}

func (r DefinitionPointRef) String() string {
	switch {
	case r.Alias != "":
		return r.Alias
	case r.PersistentID != "":
		return r.PersistentID
	default:
		return strconv.FormatInt(r.ID, 10)
	}
}

// RoleAssignment grants a role to a user or an explicit group at a definition point.
type RoleAssignment struct {
	ID                int64     `json:"id"`
	Assignee          string    `json:"assignee"`
	UserID            *int64    `json:"-"`
	GroupID           *int64    `json:"-"`
	RoleAlias         string    `json:"_roleAlias"`
	DefinitionPointID int64     `json:"definitionPointId"`
	CreatedAt         time.Time `json:"-"`
}

// ExplicitGroup is an administrator-managed group owned by a dataverse.
type ExplicitGroup struct {
	ID           int64     `json:"id"`
	OwnerID      int64     `json:"ownerId"`
	AliasInOwner string    `json:"aliasInOwner"`
	DisplayName  string    `json:"displayName"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"-"`
}

// Identifier is the assignee form of the group, e.g. "&explicit/12-editors".
func (g *ExplicitGroup) Identifier() string {
	return GroupIdentifier(g.OwnerID, g.AliasInOwner)
}

// ActionLogEntry is a persisted record of an administrative action.
type ActionLogEntry struct {
	ID        int64           `json:"id"`
	EventType string          `json:"actionType"`
	Actor     string          `json:"actor,omitempty"`
	Subject   string          `json:"subject,omitempty"`
	Payload   json.RawMessage `json:"info,omitempty"`
	CreatedAt time.Time       `json:"startTime"`
}

// Caller is the authenticated identity performing a request.
type Caller struct {
	UserID    int64
	Username  string
	Superuser bool
}

// Built-in role aliases.
const (
	RoleAdmin           = "admin"
	RoleCurator         = "curator"
	RoleContributor     = "contributor"
	RoleDsContributor   = "dsContributor"
	RoleFullContributor = "fullContributor"
	RoleMember          = "member"
	RoleFileDownloader  = "fileDownloader"
)

var builtinRoles = map[string]string{
	RoleAdmin:           "Admin",
	RoleCurator:         "Curator",
	RoleContributor:     "Contributor",
	RoleDsContributor:   "Dataset Creator",
	RoleFullContributor: "Dataverse + Dataset Creator",
	RoleMember:          "Member",
	RoleFileDownloader:  "File Downloader",
}

// RoleName returns the display name of a built-in role.
func RoleName(alias string) (string, bool) {
	name, ok := builtinRoles[alias]
	return name, ok
}
