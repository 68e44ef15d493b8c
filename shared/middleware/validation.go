package middleware

import (
	"errors"
	"net/http"

	"github.com/cldrn/dataverse/shared/models"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return models.ValidUsername(fl.Field().String())
	})
	return v
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

type BadRequestErrorResponse struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Details []ValidationError `json:"details"`
}

func ValidateRequest(obj any) []ValidationError {
	var validationErrors []ValidationError

	err := validate.Struct(obj)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return []ValidationError{{Message: err.Error(), Type: "invalid"}}
	}
	for _, err := range fieldErrors {
		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: getErrorMsg(err),
			Type:    err.Tag(),
		})
	}

	return validationErrors
}

func getErrorMsg(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Invalid email format"
	case "username":
		return "Only letters, digits, '.', '_' and '-' are allowed"
	case "min":
		return "Value is too short"
	case "max":
		return "Value is too long"
	case "gt":
		return "Value must be greater than " + err.Param()
	case "gte":
		return "Value must be greater than or equal to " + err.Param()
	default:
		return "Invalid value"
	}
}

func RespondWithValidationError(c *gin.Context, validationErrors []ValidationError) {
	c.JSON(http.StatusBadRequest, BadRequestErrorResponse{
		Status:  "ERROR",
		Message: "Invalid request data",
		Details: validationErrors,
	})
}

func RespondWithError(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"status":  "ERROR",
		"message": message,
	})
}

func RespondWithData(c *gin.Context, code int, data any) {
	c.JSON(code, gin.H{
		"status": "OK",
		"data":   data,
	})
}

// RespondWithDomainError maps the typed errors of the models package to a
// status code. Anything else is reported as fallback with a 500.
func RespondWithDomainError(c *gin.Context, err error, fallback string) {
	var (
		unauthorized *models.UnauthorizedError
		denied       *models.PermissionDeniedError
		badRequest   *models.BadRequestError
		notFound     *models.NotFoundError
		conflict     *models.ConflictError
	)
	switch {
	case errors.As(err, &unauthorized):
		RespondWithError(c, http.StatusUnauthorized, unauthorized.Message)
	case errors.As(err, &denied):
		RespondWithError(c, http.StatusForbidden, denied.Message)
	case errors.As(err, &badRequest):
		RespondWithError(c, http.StatusBadRequest, badRequest.Message)
	case errors.As(err, &notFound):
		RespondWithError(c, http.StatusNotFound, notFound.Message)
	case errors.As(err, &conflict):
		RespondWithError(c, http.StatusConflict, conflict.Message)
	default:
		_ = c.Error(err)
		RespondWithError(c, http.StatusInternalServerError, fallback)
	}
}
