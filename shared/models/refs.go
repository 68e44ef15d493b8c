package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Assignee identifier prefixes.
const (
	UserIdentifierPrefix  = "@"
	GroupIdentifierPrefix = "&explicit/"
	userIDPrefix          = "id:"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidUsername reports whether s may be used as a username.
func ValidUsername(s string) bool {
	return usernamePattern.MatchString(s)
}

// UserRef addresses an account either by numeric id or by username.
type UserRef struct {
	ID       int64
	Username string
}

// ByID reports whether the reference carries a numeric id.
func (r UserRef) ByID() bool {
	return r.Username == ""
}

func (r UserRef) String() string {
	if r.ByID() {
		return userIDPrefix + strconv.FormatInt(r.ID, 10)
	}
	return UserIdentifierPrefix + r.Username
}

// ParseUserRef accepts "jdoe", "@jdoe" or "id:42".
func ParseUserRef(s string) (UserRef, error) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, userIDPrefix); ok {
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || id <= 0 {
			return UserRef{}, ErrBadRequest("Invalid user id: %s", rest)
		}
		return UserRef{ID: id}, nil
	}
	name := strings.TrimPrefix(s, UserIdentifierPrefix)
	if !ValidUsername(name) {
		return UserRef{}, ErrBadRequest("Invalid user identifier: %s", s)
	}
	return UserRef{Username: name}, nil
}

// GroupIdentifier builds the assignee identifier of an explicit group.
func GroupIdentifier(ownerID int64, aliasInOwner string) string {
	return fmt.Sprintf("%s%d-%s", GroupIdentifierPrefix, ownerID, aliasInOwner)
}

// Assignee is a parsed role assignee identifier.
type Assignee struct {
	User         *UserRef
	GroupOwnerID int64
	GroupAlias   string
}

// IsGroup reports whether the assignee names an explicit group.
func (a Assignee) IsGroup() bool {
	return a.User == nil
}

// ParseAssignee accepts "@username" or "&explicit/{ownerId}-{alias}".
func ParseAssignee(s string) (Assignee, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, UserIdentifierPrefix):
		ref, err := ParseUserRef(s)
		if err != nil {
			return Assignee{}, err
		}
		return Assignee{User: &ref}, nil
	case strings.HasPrefix(s, GroupIdentifierPrefix):
		owner, alias, ok := strings.Cut(strings.TrimPrefix(s, GroupIdentifierPrefix), "-")
		if !ok || alias == "" {
			return Assignee{}, ErrBadRequest("Invalid group identifier: %s", s)
		}
		ownerID, err := strconv.ParseInt(owner, 10, 64)
		if err != nil {
			return Assignee{}, ErrBadRequest("Invalid group identifier: %s", s)
		}
		return Assignee{GroupOwnerID: ownerID, GroupAlias: alias}, nil
	default:
		return Assignee{}, ErrBadRequest("Unsupported assignee identifier: %s", s)
	}
}
