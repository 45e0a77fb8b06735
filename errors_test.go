package auth_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	auth "github.com/goliatone/go-noire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsAuthError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		reason string
	}{
		{"missing", auth.ErrMissingAuthentication, http.StatusUnauthorized, "Missing authentication"},
		{"invalid", auth.ErrTokenInvalid, http.StatusUnauthorized, "Invalid token"},
		{"audience", fmt.Errorf("%w: signup", auth.ErrTokenAudienceMismatch), http.StatusUnauthorized, "Invalid token"},
		{"non renewable", auth.ErrNonRenewableToken, http.StatusUnauthorized, "Invalid token"},
		{"expired", fmt.Errorf("decode: %w", auth.ErrTokenExpired), http.StatusUnauthorized, "Expired token"},
		{"credentials", fmt.Errorf("%w: inactive user", auth.ErrInvalidCredentials), http.StatusUnauthorized, "Invalid credentials"},
		{"scope", auth.ErrInsufficientScope, http.StatusForbidden, "Insufficient scope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ae, ok := auth.AsAuthError(tt.err)
			require.True(t, ok)
			assert.Equal(t, tt.status, ae.Status)
			assert.Equal(t, tt.reason, ae.Reason)
			assert.ErrorIs(t, ae, tt.err)

			res := ae.Response()
			assert.Equal(t, tt.status, res.StatusCode)
			assert.Equal(t, http.StatusText(tt.status), res.Error)
			assert.Equal(t, tt.reason, res.Message)
		})
	}
}

func TestAsAuthError_Passthrough(t *testing.T) {
	for _, err := range []error{nil, errors.New("boom"), auth.ErrCrypt, auth.ErrResourceNotFound} {
		ae, ok := auth.AsAuthError(err)
		assert.False(t, ok)
		assert.Nil(t, ae)
	}

	custom := &auth.AuthError{Status: http.StatusTeapot, Reason: "Teapot"}
	ae, ok := auth.AsAuthError(fmt.Errorf("wrapped: %w", custom))
	require.True(t, ok)
	assert.Same(t, custom, ae)
}

func TestAuthError_Message(t *testing.T) {
	ae := &auth.AuthError{Status: http.StatusUnauthorized, Reason: "Invalid token", Err: errors.New("bad signature")}
	assert.Equal(t, "Invalid token: bad signature", ae.Error())
	assert.Equal(t, "Invalid token", (&auth.AuthError{Reason: "Invalid token"}).Error())
}

func TestErrorPredicates(t *testing.T) {
	assert.True(t, auth.IsTokenExpiredError(fmt.Errorf("x: %w", auth.ErrTokenExpired)))
	assert.False(t, auth.IsTokenExpiredError(auth.ErrTokenInvalid))
	assert.True(t, auth.IsMalformedError(fmt.Errorf("x: %w", auth.ErrTokenInvalid)))
	assert.False(t, auth.IsMalformedError(auth.ErrTokenExpired))
}
