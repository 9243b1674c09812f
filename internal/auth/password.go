package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// HashKey turns a plaintext client key into a bcrypt hash for config files.
func HashKey(key string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// CheckKey verifies a plaintext key against a bcrypt hash.
func CheckKey(key, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}
