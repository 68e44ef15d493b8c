package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	c := New("8082")
	assert.Equal(t, "8082", c.Port())
	assert.Equal(t, "localhost:6379", c.RedisAddr())
	assert.Equal(t, 24*time.Hour, c.TokenTTL())
	assert.Equal(t, "info", c.LogLevel())
}

func TestNew_ReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("TOKEN_TTL", "90m")
	t.Setenv("USER_SERVICE_URL", "http://users:8082/")

	c := New("8082")
	assert.Equal(t, "9999", c.Port())
	assert.Equal(t, 3, c.RedisDB())
	assert.Equal(t, 90*time.Minute, c.TokenTTL())
	assert.Equal(t, "http://users:8082", c.UserServiceURL())
}

func TestValidate_AggregatesErrors(t *testing.T) {
	c := New("8082")
	c.Set(DatabaseURL, "")
	c.Set(JWTSecret, "short")

	err := c.Validate(DatabaseURL, JWTSecret, RedisAddr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
	assert.Contains(t, err.Error(), "JWT_SECRET must be at least 16 characters")
	assert.NotContains(t, err.Error(), "REDIS_ADDR")
}

func TestValidate_OK(t *testing.T) {
	c := New("8082")
	c.Set(JWTSecret, "0123456789abcdef0123")
	assert.NoError(t, c.Validate(DatabaseURL, JWTSecret, TokenTTL))
}
