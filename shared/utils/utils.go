package utils

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// GenerateAPIToken returns a new opaque API token.
func GenerateAPIToken() string {
	return uuid.NewString()
}

// ValidAPIToken reports whether s has the shape of an issued API token.
func ValidAPIToken(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// GeneratePersistentID returns a DOI-style identifier under the test shoulder,
// e.g. doi:10.5072/FK2/ABC123.
func GeneratePersistentID() string {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 6

	result := make([]byte, length)
	for i := range result {
		num, _ := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		result[i] = charset[num.Int64()]
	}

	return "doi:10.5072/FK2/" + string(result)
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword checks if a password matches a hash
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
