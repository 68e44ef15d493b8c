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

// UserCommander defines the write-side operations used by UserHandler.
type UserCommander interface {
	CreateUser(context.Context, cqrs.CreateUserCommand) (*models.CreatedUserView, error)
	SetSuperuser(context.Context, cqrs.SetSuperuserCommand) (*models.UserView, error)
	DisableUser(context.Context, cqrs.DisableUserCommand) (*models.UserView, error)
	MergeAccounts(context.Context, cqrs.MergeAccountsCommand) (*models.UserView, error)
}

// UserQuerier defines the read-side operations used by UserHandler.
type UserQuerier interface {
	GetUser(context.Context, cqrs.GetUserQuery) (*models.UserView, error)
	GetCurrentUser(context.Context, models.Caller) (*models.UserView, error)
	GetTraces(context.Context, cqrs.GetTracesQuery) (*models.TraceView, error)
	ListActionLog(context.Context, cqrs.ListActionLogQuery) ([]models.ActionLogEntry, error)
}

// UserHandler routes user and admin requests to the command or query service.
type UserHandler struct {
	commands UserCommander
	queries  UserQuerier
}

type CreateUserRequest struct {
	Username  string `json:"userName" validate:"required,username,max=255"`
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"firstName" validate:"max=255"`
	LastName  string `json:"lastName" validate:"max=255"`
	Password  string `json:"password" validate:"required,min=8"`
}

func NewUserHandler(commands UserCommander, queries UserQuerier) *UserHandler {
	return &UserHandler{commands: commands, queries: queries}
}

func (h *UserHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	created, err := h.commands.CreateUser(c.Request.Context(), cqrs.CreateUserCommand{
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
	})
	if err != nil {
		middleware.RespondWithDomainError(c, err, "Failed to create user")
		return
	}
	middleware.RespondWithData(c, http.StatusOK, created)
}

func (h *UserHandler) GetCurrentUser(c *gin.Context) {
	caller, ok := middleware.GetCaller(c)
	if !ok {
		middleware.RespondWithError(c, http.StatusUnauthorized, "Bad credential")
		return
	}
	view, err := h.queries.GetCurrentUser(c.Request.Context(), caller)
	if err != nil {
		middleware.RespondWithDomainError(c, err, "Failed to get user")
		return
	}
	middleware.RespondWithData(c, http.StatusOK, view)
}

func (h *UserHandler) GetUser(c *gin.Context) {
	caller, ref, ok := callerAndUser(c, "identifier")
	if !ok {
		return
	}
	view, err := h.queries.GetUser(c.Request.Context(), cqrs.GetUserQuery{Caller: caller, User: ref})
	if err != nil {
		middleware.RespondWithDomainError(c, err, "Failed to get user")
		return
	}
	middleware.RespondWithData(c, http.StatusOK, view)
}

func (h *UserHandler) DisableUser(c *gin.Context) {
	caller, ref, ok := callerAndUser(c, "identifier")
	if !ok {
		return
	}
	view, err := h.commands.DisableUser(c.Request.Context(), cqrs.DisableUserCommand{Caller: caller, User: ref})
	if err != nil {
		middleware.RespondWithDomainError(c, err, "Failed to disable user")
		return
	}
	middleware.RespondWithData(c, http.StatusOK, view)
}

func (h *UserHandler) GetTraces(c *gin.Context) {
	caller, ref, ok := callerAndUser(c, "identifier")
	if !ok {
		return
	}
	view, err := h.queries.GetTraces(c.Request.Context(), cqrs.GetTracesQuery{Caller: caller, User: ref})
	if err != nil {
		middleware.RespondWithDomainError(c, err, "Failed to get traces")
		return
	}
	middleware.RespondWithData(c, http.StatusOK, view)
}

// MergeAccounts merges the account in :identifier into the one in :target.
func (h *UserHandler) MergeAccounts(c *gin.Context) {
	caller, source, ok := callerAndUser(c, "identifier")
	if !ok {
		return
	}
	target, err := models.ParseUserRef(c.Param("target"))
	if err != nil {
		middleware.RespondWithDomainError(c, err, "")
		return
	}

	view, err := h.commands.MergeAccounts(c.Request.Context(), cqrs.MergeAccountsCommand{
		Caller: caller,
		Target: target,
		Source: source,
	})
	if err != nil {
		middleware.RespondWithDomainError(c, err, "Failed to merge accounts")
		return
	}
	middleware.RespondWithData(c, http.StatusOK, gin.H{
		"message": "All account data for " + source.String() + " has been merged into " + view.Identifier + ".",
		"user":    view,
	})
}

type SetSuperuserRequest struct {
	Superuser *bool `json:"superuser"`
}

// SetSuperuser is authorised by the admin API key. An empty body toggles.
func (h *UserHandler) SetSuperuser(c *gin.Context) {
	ref, err := models.ParseUserRef(c.Param("identifier"))
	if err != nil {
		middleware.RespondWithDomainError(c, err, "")
		return
	}
	var req SetSuperuserRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	view, err := h.commands.SetSuperuser(c.Request.Context(), cqrs.SetSuperuserCommand{User: ref, Superuser: req.Superuser})
	if err != nil {
		middleware.RespondWithDomainError(c, err, "Failed to update user")
		return
	}
	middleware.RespondWithData(c, http.StatusOK, view)
}

func (h *UserHandler) ListActionLog(c *gin.Context) {
	caller, ok := middleware.GetCaller(c)
	if !ok {
		middleware.RespondWithError(c, http.StatusUnauthorized, "Bad credential")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid limit")
		return
	}
	entries, err := h.queries.ListActionLog(c.Request.Context(), cqrs.ListActionLogQuery{Caller: caller, Limit: limit})
	if err != nil {
		middleware.RespondWithDomainError(c, err, "Failed to list action log")
		return
	}
	middleware.RespondWithData(c, http.StatusOK, entries)
}

// callerAndUser reads the authenticated caller and parses the user reference
// in param. It writes the error response itself when either is missing.
func callerAndUser(c *gin.Context, param string) (models.Caller, models.UserRef, bool) {
	caller, ok := middleware.GetCaller(c)
	if !ok {
		middleware.RespondWithError(c, http.StatusUnauthorized, "Bad credential")
		return models.Caller{}, models.UserRef{}, false
	}
	ref, err := models.ParseUserRef(c.Param(param))
	if err != nil {
		middleware.RespondWithDomainError(c, err, "")
		return models.Caller{}, models.UserRef{}, false
	}
	return caller, ref, true
}
