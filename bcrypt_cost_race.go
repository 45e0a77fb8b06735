//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

func passwordHashCost() int {
	// race builds are slow enough without a real work factor
	return bcrypt.MinCost
}
