package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cldrn/dataverse/shared/models"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// APITokenHeader carries a user's API token.
	APITokenHeader = "X-Dataverse-key"
	// AdminKeyHeader carries the shared key guarding bootstrap admin routes.
	AdminKeyHeader = "X-Admin-Key"

	callerKey = "caller"
)

// CredentialResolver maps a presented credential to the account it belongs to.
// Implementations return a *models.NotFoundError for unknown credentials.
type CredentialResolver interface {
	ResolveAPIToken(ctx context.Context, token string) (*models.User, error)
	ResolveUserID(ctx context.Context, id int64) (*models.User, error)
}

type Claims struct {
	UserID   int64  `json:"userId"`
	Username string `json:"userName"`
	jwt.RegisteredClaims
}

// SignToken issues an HS256 session token for user.
func SignToken(secret []byte, userID int64, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies a session token and returns its claims.
func ParseToken(secret []byte, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, models.ErrUnauthorized("Invalid or expired token")
	}
	return claims, nil
}

// AuthMiddleware authenticates either an API token or a bearer session token.
// Requests made with a credential of a disabled account are rejected with 400.
func AuthMiddleware(resolver CredentialResolver, secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := authenticate(c, resolver, secret)
		if err != nil {
			var unauthorized *models.UnauthorizedError
			var notFound *models.NotFoundError
			switch {
			case errors.As(err, &unauthorized):
				RespondWithError(c, http.StatusUnauthorized, unauthorized.Message)
			case errors.As(err, &notFound):
				RespondWithError(c, http.StatusUnauthorized, "Bad credential")
			default:
				RespondWithError(c, http.StatusInternalServerError, "Failed to authenticate request")
			}
			c.Abort()
			return
		}

		if user.Disabled {
			RespondWithError(c, http.StatusBadRequest, fmt.Sprintf("User %s is disabled.", user.Username))
			c.Abort()
			return
		}

		c.Set(callerKey, models.Caller{
			UserID:    user.ID,
			Username:  user.Username,
			Superuser: user.Superuser,
		})
		c.Next()
	}
}

func authenticate(c *gin.Context, resolver CredentialResolver, secret []byte) (*models.User, error) {
	if apiToken := c.GetHeader(APITokenHeader); apiToken != "" {
		return resolver.ResolveAPIToken(c.Request.Context(), apiToken)
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return nil, models.ErrUnauthorized("Authorization header or API token required")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, models.ErrUnauthorized("Invalid authorization header format")
	}

	claims, err := ParseToken(secret, parts[1])
	if err != nil {
		return nil, err
	}
	return resolver.ResolveUserID(c.Request.Context(), claims.UserID)
}

// AdminKeyMiddleware guards bootstrap routes with a shared key. An empty
// configured key closes the routes entirely.
func AdminKeyMiddleware(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			RespondWithError(c, http.StatusForbidden, "Admin API is not enabled")
			c.Abort()
			return
		}
		presented := c.GetHeader(AdminKeyHeader)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
			RespondWithError(c, http.StatusUnauthorized, "Invalid admin key")
			c.Abort()
			return
		}
		c.Next()
	}
}

// SetCaller stores the authenticated caller, used by tests and AuthMiddleware.
func SetCaller(c *gin.Context, caller models.Caller) {
	c.Set(callerKey, caller)
}

func GetCaller(c *gin.Context) (models.Caller, bool) {
	v, exists := c.Get(callerKey)
	if !exists {
		return models.Caller{}, false
	}
	caller, ok := v.(models.Caller)
	return caller, ok
}
