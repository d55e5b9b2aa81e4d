package auth

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// HashSecret hashes a basic-auth password for storage.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CompareSecret checks a presented password against a stored bcrypt hash.
func CompareSecret(hash, secret string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// EqualToken compares two tokens in constant time.
func EqualToken(expected, presented string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}
