package auth

import (
	"context"
)

var credentialsCtxKey = &contextKey{"credentials"}
var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// Credentials is what a successful authentication hands to downstream
// handlers. Scope holds role names in the order they were granted.
type Credentials struct {
	ID       int64    `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Scope    []string `json:"scope"`
}

// HasScope reports whether scope is among the credentials scopes
func (c *Credentials) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	for _, s := range c.Scope {
		if s == scope {
			return true
		}
	}
	return false
}

// WithCredentials sets the Credentials in the given context
func WithCredentials(ctx context.Context, creds *Credentials) context.Context {
	return context.WithValue(ctx, credentialsCtxKey, creds)
}

// CredentialsFromContext finds the credentials in the context
func CredentialsFromContext(ctx context.Context) (*Credentials, bool) {
	raw, ok := ctx.Value(credentialsCtxKey).(*Credentials)
	return raw, ok && raw != nil
}

// WithClaimsContext sets the decoded token claims in the given context
func WithClaimsContext(ctx context.Context, claims *TokenClaims) context.Context {
	return context.WithValue(ctx, claimsCtxKey, claims)
}

// GetClaims extracts the token claims from the context
func GetClaims(ctx context.Context) (*TokenClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(*TokenClaims)
	return raw, ok && raw != nil
}

// Can checks a scope directly from the context
func Can(ctx context.Context, scope string) bool {
	creds, ok := CredentialsFromContext(ctx)
	if !ok {
		return false
	}
	return creds.HasScope(scope)
}
