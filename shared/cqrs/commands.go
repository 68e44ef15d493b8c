package cqrs

import "github.com/cldrn/dataverse/shared/models"

type CreateUserCommand struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Password  string
}

type SetSuperuserCommand struct {
	User      models.UserRef
	Superuser *bool // nil toggles
}

type DisableUserCommand struct {
	Caller models.Caller
	User   models.UserRef
}

// MergeAccountsCommand folds Source into Target and removes Source.
type MergeAccountsCommand struct {
	Caller models.Caller
	Target models.UserRef
	Source models.UserRef
}

type GrantRoleCommand struct {
	Caller    models.Caller
	Assignee  string
	RoleAlias string
	Target    models.DefinitionPointRef
}

type AddGroupMembersCommand struct {
	Caller       models.Caller
	OwnerAlias   string
	AliasInOwner string
	Members      []string
}

type CreateDataverseCommand struct {
	Caller      models.Caller
	Alias       string
	Name        string
	ParentAlias string
}

type CreateDatasetCommand struct {
	Caller         models.Caller
	DataverseAlias string
	Title          string
}

type CreateGroupCommand struct {
	Caller       models.Caller
	OwnerAlias   string
	AliasInOwner string
	DisplayName  string
	Description  string
}

type LoginCommand struct {
	Username string
	Password string
}

type RefreshTokenCommand struct {
	Token string
}
