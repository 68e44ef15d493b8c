package handler

import (
	"context"
	"net/http"

	"github.com/cldrn/dataverse/shared/cqrs"
	"github.com/cldrn/dataverse/shared/middleware"
	"github.com/cldrn/dataverse/shared/models"
	"github.com/gin-gonic/gin"
)

type CollectionCommander interface {
	CreateDataverse(context.Context, cqrs.CreateDataverseCommand) (*models.DefinitionPoint, error)
	CreateDataset(context.Context, cqrs.CreateDatasetCommand) (*models.DefinitionPoint, error)
}

// CollectionHandler creates dataverses and datasets.
type CollectionHandler struct {
	commands CollectionCommander
}

type CreateDataverseRequest struct {
	Alias  string `json:"alias" validate:"required,username,max=60"`
	Name   string `json:"name" validate:"required"`
	Parent string `json:"parent"`
}

type CreateDatasetRequest struct {
	Title string `json:"title" validate:"required"`
}

func NewCollectionHandler(commands CollectionCommander) *CollectionHandler {
	return &CollectionHandler{commands: commands}
}

func (h *CollectionHandler) CreateDataverse(c *gin.Context) {
	caller, ok := middleware.GetCaller(c)
	if !ok {
		middleware.RespondWithError(c, http.StatusUnauthorized, "Bad credential")
		return
	}
	var req CreateDataverseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	dv, err := h.commands.CreateDataverse(c.Request.Context(), cqrs.CreateDataverseCommand{
		Caller:      caller,
		Alias:       req.Alias,
		Name:        req.Name,
		ParentAlias: req.Parent,
	})
	if err != nil {
		middleware.RespondWithDomainError(c, err, "Failed to create dataverse")
		return
	}
	middleware.RespondWithData(c, http.StatusCreated, dv)
}

func (h *CollectionHandler) CreateDataset(c *gin.Context) {
	caller, ok := middleware.GetCaller(c)
	if !ok {
		middleware.RespondWithError(c, http.StatusUnauthorized, "Bad credential")
		return
	}
	var req CreateDatasetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	ds, err := h.commands.CreateDataset(c.Request.Context(), cqrs.CreateDatasetCommand{
		Caller:         caller,
		DataverseAlias: c.Param("alias"),
		Title:          req.Title,
	})
	if err != nil {
		middleware.RespondWithDomainError(c, err, "Failed to create dataset")
		return
	}
	middleware.RespondWithData(c, http.StatusCreated, ds)
}
