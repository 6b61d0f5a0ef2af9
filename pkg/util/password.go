package util

import (
	"golang.org/x/crypto/bcrypt"
)

// HashSecret turns the shared secret into a bcrypt hash so the plaintext does
// not need to stay in memory.
func HashSecret(secret string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), 8)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// CheckSecret verifies a presented credential against a bcrypt hash.
func CheckSecret(presented, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(presented))
	return err == nil
}
