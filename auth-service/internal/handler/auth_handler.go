package handler

import (
	"context"
	"net/http"

	"github.com/cldrn/dataverse/shared/cqrs"
	"github.com/cldrn/dataverse/shared/middleware"
	"github.com/gin-gonic/gin"
)

// AuthQuerier defines the read-side operations used by AuthHandler.
type AuthQuerier interface {
	Login(ctx context.Context, cmd cqrs.LoginCommand) (string, error)
	RefreshToken(ctx context.Context, cmd cqrs.RefreshTokenCommand) (string, error)
}

// AuthHandler handles login and token refresh. No command service needed.
type AuthHandler struct {
	queries AuthQuerier
}

type LoginRequest struct {
	Username string `json:"userName" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type RefreshTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

type AuthResponse struct {
	Token string `json:"token"`
}

func NewAuthHandler(queries AuthQuerier) *AuthHandler {
	return &AuthHandler{queries: queries}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	token, err := h.queries.Login(c.Request.Context(), cqrs.LoginCommand{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		middleware.RespondWithDomainError(c, err, "Failed to log in")
		return
	}

	middleware.RespondWithData(c, http.StatusOK, AuthResponse{Token: token})
}

func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	token, err := h.queries.RefreshToken(c.Request.Context(), cqrs.RefreshTokenCommand{
		Token: req.Token,
	})
	if err != nil {
		middleware.RespondWithDomainError(c, err, "Failed to refresh token")
		return
	}

	middleware.RespondWithData(c, http.StatusOK, AuthResponse{Token: token})
}

// RegisterRoutes mounts the auth endpoints under group.
func (h *AuthHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/login", h.Login)
	group.POST("/refresh", h.RefreshToken)
}
