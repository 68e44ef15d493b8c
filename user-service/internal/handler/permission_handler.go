package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cldrn/dataverse/shared/cqrs"
	"github.com/cldrn/dataverse/shared/middleware"
	"github.com/cldrn/dataverse/shared/models"
	"github.com/gin-gonic/gin"
)

// persistentIDParam is the placeholder used in dataset paths when the dataset
// is addressed by the persistentId query parameter instead of its id.
const persistentIDParam = ":persistentId"

type PermissionCommander interface {
	GrantRole(context.Context, cqrs.GrantRoleCommand) (*models.RoleAssignmentView, error)
	CreateGroup(context.Context, cqrs.CreateGroupCommand) (*models.ExplicitGroupView, error)
	AddGroupMembers(context.Context, cqrs.AddGroupMembersCommand) (*models.ExplicitGroupView, error)
}

type PermissionQuerier interface {
	ListAssignments(context.Context, cqrs.ListAssignmentsQuery) ([]*models.RoleAssignmentView, error)
}

// PermissionHandler serves role assignments and explicit groups.
type PermissionHandler struct {
	commands PermissionCommander
	queries  PermissionQuerier
}

type GrantRoleRequest struct {
	Assignee string `json:"assignee" validate:"required"`
	Role     string `json:"role" validate:"required"`
}

type CreateGroupRequest struct {
	AliasInOwner string `json:"aliasInOwner" validate:"required,username"`
	DisplayName  string `json:"displayName" validate:"required"`
	Description  string `json:"description"`
}

func NewPermissionHandler(commands PermissionCommander, queries PermissionQuerier) *PermissionHandler {
	return &PermissionHandler{commands: commands, queries: queries}
}

func (h *PermissionHandler) GrantOnDataverse(c *gin.Context) {
	h.grant(c, models.DefinitionPointRef{Kind: models.KindDataverse, Alias: c.Param("alias")})
}

// GrantOnDataset accepts /datasets/{id}/assignments and
// /datasets/:persistentId/assignments?persistentId=doi:...
func (h *PermissionHandler) GrantOnDataset(c *gin.Context) {
	target := models.DefinitionPointRef{Kind: models.KindDataset}
	if id := c.Param("id"); id == persistentIDParam {
		target.PersistentID = c.Query("persistentId")
		if target.PersistentID == "" {
			middleware.RespondWithError(c, http.StatusBadRequest, "Missing persistentId query parameter")
			return
		}
	} else {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			middleware.RespondWithError(c, http.StatusBadRequest, "Invalid dataset id: "+id)
			return
		}
		target.ID = n
	}
	h.grant(c, target)
}

func (h *PermissionHandler) grant(c *gin.Context, target models.DefinitionPointRef) {
	caller, ok := middleware.GetCaller(c)
	if !ok {
		middleware.RespondWithError(c, http.StatusUnauthorized, "Bad credential")
		return
	}
	var req GrantRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	view, err := h.commands.GrantRole(c.Request.Context(), cqrs.GrantRoleCommand{
		Caller:    caller,
		Assignee:  req.Assignee,
		RoleAlias: req.Role,
		Target:    target,
	})
	if err != nil {
		middleware.RespondWithDomainError(c, err, "Failed to assign role")
		return
	}
	middleware.RespondWithData(c, http.StatusOK, view)
}

func (h *PermissionHandler) ListAssignments(c *gin.Context) {
	caller, ok := middleware.GetCaller(c)
	if !ok {
		middleware.RespondWithError(c, http.StatusUnauthorized, "Bad credential")
		return
	}
	views, err := h.queries.ListAssignments(c.Request.Context(), cqrs.ListAssignmentsQuery{
		Caller:         caller,
		DataverseAlias: c.Param("alias"),
	})
	if err != nil {
		middleware.RespondWithDomainError(c, err, "Failed to list role assignments")
		return
	}
	middleware.RespondWithData(c, http.StatusOK, views)
}

func (h *PermissionHandler) CreateGroup(c *gin.Context) {
	caller, ok := middleware.GetCaller(c)
	if !ok {
		middleware.RespondWithError(c, http.StatusUnauthorized, "Bad credential")
		return
	}
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	view, err := h.commands.CreateGroup(c.Request.Context(), cqrs.CreateGroupCommand{
		Caller:       caller,
		OwnerAlias:   c.Param("alias"),
		AliasInOwner: req.AliasInOwner,
		DisplayName:  req.DisplayName,
		Description:  req.Description,
	})
	if err != nil {
		middleware.RespondWithDomainError(c, err, "Failed to create group")
		return
	}
	middleware.RespondWithData(c, http.StatusCreated, view)
}

// AddGroupMembers takes a JSON array of assignee identifiers.
func (h *PermissionHandler) AddGroupMembers(c *gin.Context) {
	caller, ok := middleware.GetCaller(c)
	if !ok {
		middleware.RespondWithError(c, http.StatusUnauthorized, "Bad credential")
		return
	}
	var members []string
	if err := c.ShouldBindJSON(&members); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Request body must be a JSON array of role assignee identifiers")
		return
	}

	view, err := h.commands.AddGroupMembers(c.Request.Context(), cqrs.AddGroupMembersCommand{
		Caller:       caller,
		OwnerAlias:   c.Param("alias"),
		AliasInOwner: c.Param("group"),
		Members:      members,
	})
	if err != nil {
		middleware.RespondWithDomainError(c, err, "Failed to add group members")
		return
	}
	middleware.RespondWithData(c, http.StatusOK, view)
}
