package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Users maps user names to bcrypt password hashes
type Users map[string]string

// Enabled reports whether any user is configured
func (u Users) Enabled() bool {
	return len(u) > 0
}

// HashPassword hashes a password for the auth.users config table
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword verifies a user's password against the stored hash
func (u Users) VerifyPassword(name string, password string) bool {
	hashedPassword, exists := u[name]
	if !exists {
		return false
	}

	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	return err == nil
}
