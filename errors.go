package auth

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrCrypt is returned when hashing or comparing a password fails
var ErrCrypt = errors.New("crypt error")

// ErrMissingSecret is returned when a codec is built without a signing secret
var ErrMissingSecret = errors.New("signing secret is empty")

// ErrTokenInvalid bad signature or malformed token
var ErrTokenInvalid = errors.New("invalid token")

// ErrTokenExpired the token exp claim is in the past
var ErrTokenExpired = errors.New("expired token")

// ErrTokenAudienceMismatch the token was issued for a different purpose
var ErrTokenAudienceMismatch = errors.New("token audience mismatch")

// ErrNonRenewableToken the token lacks a usable loggedInAt claim
var ErrNonRenewableToken = errors.New("non renewable token")

// ErrMissingAuthentication no token was found in the request
var ErrMissingAuthentication = errors.New("missing authentication")

// ErrInvalidCredentials covers unknown users, inactive users, wrong
// passwords and stale token versions
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrInsufficientScope the identity lacks a scope required by the route
var ErrInsufficientScope = errors.New("insufficient scope")

// ErrResourceNotFound is returned by lookups that find nothing
var ErrResourceNotFound = errors.New("resource not found")

// ErrUserExists username or email already taken
var ErrUserExists = errors.New("user already exists")

// ErrImmutableClaimMutation a claims decorator touched a protected claim
var ErrImmutableClaimMutation = errors.New("immutable claim mutated")

const (
	ReasonMissingAuthentication = "Missing authentication"
	ReasonInvalidToken          = "Invalid token"
	ReasonExpiredToken          = "Expired token"
	ReasonInvalidCredentials    = "Invalid credentials"
	ReasonInsufficientScope     = "Insufficient scope"
)

// AuthError is what crosses the HTTP boundary: a vague reason and a status.
// Err keeps the underlying cause for server side logging.
type AuthError struct {
	Status int
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// ErrorResponse is the JSON body rendered for failed requests
type ErrorResponse struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// Response renders the error as a response body
func (e *AuthError) Response() ErrorResponse {
	return ErrorResponse{
		StatusCode: e.Status,
		Error:      http.StatusText(e.Status),
		Message:    e.Reason,
	}
}

// AsAuthError normalizes err into the boundary vocabulary. It returns
// false for errors that are not authentication failures.
func AsAuthError(err error) (*AuthError, bool) {
	if err == nil {
		return nil, false
	}

	var ae *AuthError
	if errors.As(err, &ae) {
		return ae, true
	}

	switch {
	case errors.Is(err, ErrMissingAuthentication):
		return &AuthError{Status: http.StatusUnauthorized, Reason: ReasonMissingAuthentication, Err: err}, true
	case errors.Is(err, ErrTokenExpired):
		return &AuthError{Status: http.StatusUnauthorized, Reason: ReasonExpiredToken, Err: err}, true
	case errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrTokenAudienceMismatch),
		errors.Is(err, ErrNonRenewableToken):
		return &AuthError{Status: http.StatusUnauthorized, Reason: ReasonInvalidToken, Err: err}, true
	case errors.Is(err, ErrInvalidCredentials):
		return &AuthError{Status: http.StatusUnauthorized, Reason: ReasonInvalidCredentials, Err: err}, true
	case errors.Is(err, ErrInsufficientScope):
		return &AuthError{Status: http.StatusForbidden, Reason: ReasonInsufficientScope, Err: err}, true
	}

	return nil, false
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	return errors.Is(err, ErrTokenExpired)
}

// IsMalformedError will check for tokens we could not verify
func IsMalformedError(err error) bool {
	return errors.Is(err, ErrTokenInvalid)
}
