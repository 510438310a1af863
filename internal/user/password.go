package user

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost stays at the library default. Raising it slows every login; the
// default tracks hardware well enough.
const bcryptCost = bcrypt.DefaultCost

// ErrWrongPassword indicates the password does not match the stored hash.
var ErrWrongPassword = errors.New("wrong password")

// HashPassword derives a bcrypt hash for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword compares a candidate password against a stored hash.
// A mismatch returns ErrWrongPassword; any other failure is a hash problem.
func VerifyPassword(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrWrongPassword
	}
	if err != nil {
		return fmt.Errorf("verifying password: %w", err)
	}
	return nil
}
