package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types
const (
	UserCreated          = "user.created"
	UserDisabled         = "user.disabled"
	UserMerged           = "user.merged"
	UserSuperuserToggled = "user.superuser_toggled"

	RoleAssigned      = "role.assigned"
	GroupCreated      = "group.created"
	GroupMembersAdded = "group.members_added"

	DataverseCreated = "dataverse.created"
	DatasetCreated   = "dataset.created"
)

// Stream names
const (
	UserEventsStream       = "user.events"
	PermissionEventsStream = "permission.events"
)

// Base event structure
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor,omitempty"`
	Data      any       `json:"data"`
}

// Decode converts the loosely typed Data of an event received from a stream
// (or dispatched in process) into v.
func Decode(event Event, v any) error {
	dataBytes, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event.Type, err)
	}
	if err := json.Unmarshal(dataBytes, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s payload: %w", event.Type, err)
	}
	return nil
}

// User events
type UserCreatedEvent struct {
	UserID   int64  `json:"userId"`
	Username string `json:"userName"`
	Email    string `json:"email"`
}

// UserDisabledEvent is dispatched inside the disabling transaction. The
// cascade handler fills in the removal counts before the event is published.
type UserDisabledEvent struct {
	UserID                 int64  `json:"userId"`
	Username               string `json:"userName"`
	RoleAssignmentsRemoved int64  `json:"roleAssignmentsRemoved"`
	MembershipsRemoved     int64  `json:"explicitGroupMembershipsRemoved"`
}

type UserMergedEvent struct {
	TargetID       int64  `json:"targetUserId"`
	TargetUsername string `json:"targetUserName"`
	SourceID       int64  `json:"consumedUserId"`
	SourceUsername string `json:"consumedUserName"`
}

type UserSuperuserToggledEvent struct {
	UserID    int64  `json:"userId"`
	Username  string `json:"userName"`
	Superuser bool   `json:"superuser"`
}

// Permission events
type RoleAssignedEvent struct {
	AssignmentID      int64  `json:"assignmentId"`
	Assignee          string `json:"assignee"`
	RoleAlias         string `json:"roleAlias"`
	DefinitionPointID int64  `json:"definitionPointId"`
}

type GroupCreatedEvent struct {
	GroupID    int64  `json:"groupId"`
	Identifier string `json:"identifier"`
}

type GroupMembersAddedEvent struct {
	GroupID    int64    `json:"groupId"`
	Identifier string   `json:"identifier"`
	Members    []string `json:"members"`
}

type DataverseCreatedEvent struct {
	DataverseID int64  `json:"dataverseId"`
	Alias       string `json:"alias"`
}

type DatasetCreatedEvent struct {
	DatasetID    int64  `json:"datasetId"`
	PersistentID string `json:"persistentId"`
	OwnerID      int64  `json:"ownerId"`
}
