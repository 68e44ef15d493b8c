package cqrs

import "github.com/cldrn/dataverse/shared/models"

// ---------- User queries ----------

// GetUserQuery fetches a user view on behalf of a superuser.
type GetUserQuery struct {
	Caller models.Caller
	User   models.UserRef
}

// GetTracesQuery fetches the role assignments and explicit group memberships of a user.
type GetTracesQuery struct {
	Caller models.Caller
	User   models.UserRef
}

// ---------- Permission queries ----------

// ListAssignmentsQuery lists role assignments defined on a dataverse.
type ListAssignmentsQuery struct {
	Caller         models.Caller
	DataverseAlias string
}

// ---------- Action log queries ----------

// ListActionLogQuery returns the most recent action log entries.
type ListActionLogQuery struct {
	Caller models.Caller
	Limit  int
}
