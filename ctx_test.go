package auth_test

import (
	"context"
	"testing"

	auth "github.com/goliatone/go-noire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialsContext(t *testing.T) {
	ctx := context.Background()

	_, ok := auth.CredentialsFromContext(ctx)
	assert.False(t, ok)
	assert.False(t, auth.Can(ctx, "admin"))

	_, ok = auth.CredentialsFromContext(auth.WithCredentials(ctx, nil))
	assert.False(t, ok, "nil credentials are not credentials")

	creds := &auth.Credentials{ID: 1, Username: "john", Scope: []string{"user", "admin"}}
	ctx = auth.WithCredentials(ctx, creds)

	got, ok := auth.CredentialsFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, creds, got)
	assert.True(t, auth.Can(ctx, "admin"))
	assert.False(t, auth.Can(ctx, "owner"))
}

func TestCredentials_HasScope(t *testing.T) {
	var nilCreds *auth.Credentials
	assert.False(t, nilCreds.HasScope("user"))

	creds := &auth.Credentials{Scope: []string{"user"}}
	assert.True(t, creds.HasScope("user"))
	assert.False(t, creds.HasScope("User"))
}

func TestClaimsContext(t *testing.T) {
	ctx := context.Background()

	_, ok := auth.GetClaims(ctx)
	assert.False(t, ok)

	claims := &auth.TokenClaims{UserID: 3}
	got, ok := auth.GetClaims(auth.WithClaimsContext(ctx, claims))
	require.True(t, ok)
	assert.Equal(t, int64(3), got.UserID)
}
