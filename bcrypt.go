package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher implements PasswordHasher with a fixed work factor
type BcryptHasher struct {
	cost int
}

var _ PasswordHasher = BcryptHasher{}

// NewBcryptHasher returns a hasher using the package work factor
func NewBcryptHasher() BcryptHasher {
	return BcryptHasher{cost: passwordHashCost()}
}

// Hash will generate a password hash
func (h BcryptHasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("%w: empty password", ErrCrypt)
	}

	cost := h.cost
	if cost == 0 {
		cost = passwordHashCost()
	}

	out, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCrypt, err)
	}
	return string(out), nil
}

// Compare will validate the given cleartext password matches the
// hashed password. A mismatch is not an error, a malformed input is.
func (h BcryptHasher) Compare(plaintext, hash string) (bool, error) {
	if plaintext == "" || hash == "" {
		return false, fmt.Errorf("%w: missing password or hash", ErrCrypt)
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrCrypt, err)
	}
}

// HashPassword hashes with the default hasher
func HashPassword(password string) (string, error) {
	return NewBcryptHasher().Hash(password)
}
