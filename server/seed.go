package server

import (
	"context"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	auth "github.com/goliatone/go-noire"
)

// SeedEmailDomain completes the seeded admin address when none is given
const SeedEmailDomain = "example.com"

// SeedAccount is the admin created by --seed-admin
type SeedAccount struct {
	Username string
	Password string
	Email    string
}

// ParseSeedCredentials splits a "user:password[:email]" triple. The email
// defaults to user@example.com and must pass the same check the password
// reset form applies.
func ParseSeedCredentials(s string) (SeedAccount, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return SeedAccount{}, fmt.Errorf("seed admin: expected user:password[:email]")
	}

	acc := SeedAccount{Username: parts[0], Password: parts[1]}
	if len(parts) == 3 && parts[2] != "" {
		acc.Email = parts[2]
	} else {
		acc.Email = acc.Username + "@" + SeedEmailDomain
	}

	if err := validation.Validate(acc.Email, is.Email); err != nil {
		return SeedAccount{}, fmt.Errorf("seed admin email %q: %w", acc.Email, err)
	}
	return acc, nil
}

// SeedAdmin creates an active account holding the admin role
func SeedAdmin(ctx context.Context, repo auth.RepositoryManager, hasher auth.PasswordHasher, acc SeedAccount) (*auth.User, error) {
	hash, err := hasher.Hash(acc.Password)
	if err != nil {
		return nil, err
	}

	email := acc.Email
	if email == "" {
		email = acc.Username + "@" + SeedEmailDomain
	}

	return repo.Users().Create(ctx, &auth.User{
		Username:     acc.Username,
		Email:        email,
		Name:         acc.Username,
		PasswordHash: hash,
		Active:       true,
		Roles:        []auth.Role{{Name: auth.RoleAdmin}, {Name: auth.RoleUser}},
	})
}
