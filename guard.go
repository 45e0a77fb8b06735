package auth

import (
	"context"
	"errors"
	"fmt"
)

// Guard turns a bearer token into Credentials. Each call is a single
// pass: decode, resolve identity, check version, check scope.
type Guard struct {
	codec    *TokenCodec
	finder   IdentityFinder
	version  int
	logger   Logger
	activity ActivitySink
}

// GuardOption configures a Guard
type GuardOption func(*Guard)

// WithTokenVersion sets the version expected from identities that do not
// track their own
func WithTokenVersion(v int) GuardOption {
	return func(g *Guard) {
		g.version = v
	}
}

func WithGuardLogger(l Logger) GuardOption {
	return func(g *Guard) {
		g.logger = normalizeLogger(l)
	}
}

func WithGuardActivitySink(s ActivitySink) GuardOption {
	return func(g *Guard) {
		g.activity = normalizeActivitySink(s)
	}
}

func NewGuard(codec *TokenCodec, finder IdentityFinder, opts ...GuardOption) *Guard {
	g := &Guard{
		codec:    codec,
		finder:   finder,
		logger:   defLogger{},
		activity: noopActivitySink{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// ExpectedVersion is the token version an identity must present
func (g *Guard) ExpectedVersion(identity *Identity) int {
	return expectedVersion(identity, g.version)
}

// Authenticate runs the decision procedure for token. Every scope in
// required must be granted by one of the identity roles.
func (g *Guard) Authenticate(ctx context.Context, token string, required ...string) (*Credentials, error) {
	creds, userID, err := g.decide(ctx, token, required)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			g.logger.Debug("access denied: %v", err)
			emitActivity(ctx, g.activity, g.logger, ActivityEvent{
				EventType: ActivityEventAccessDenied,
				UserID:    userID,
				Reason:    reasonOf(err),
			})
		}
		return nil, err
	}

	emitActivity(ctx, g.activity, g.logger, ActivityEvent{
		EventType: ActivityEventAccessGranted,
		UserID:    creds.ID,
	})
	return creds, nil
}

func (g *Guard) decide(ctx context.Context, token string, required []string) (*Credentials, int64, error) {
	if token == "" {
		return nil, 0, ErrMissingAuthentication
	}

	claims, err := g.codec.Decode(token, AudienceAuth)
	if err != nil {
		return nil, 0, err
	}

	if err := ctx.Err(); err != nil {
		return nil, claims.UserID, err
	}

	identity, err := g.finder.FindByID(ctx, claims.UserID)
	if err := ctx.Err(); err != nil {
		return nil, claims.UserID, err
	}
	if err != nil {
		return nil, claims.UserID, fmt.Errorf("%w: lookup %d: %v", ErrInvalidCredentials, claims.UserID, err)
	}
	if identity == nil {
		return nil, claims.UserID, fmt.Errorf("%w: identity %d not found", ErrInvalidCredentials, claims.UserID)
	}

	if want, got := expectedVersion(identity, g.version), claims.ClaimedVersion(); want != got {
		return nil, identity.ID, fmt.Errorf("%w: token version %d, expected %d", ErrInvalidCredentials, got, want)
	}

	for _, scope := range required {
		if !identity.HasRole(scope) {
			return nil, identity.ID, fmt.Errorf("%w: missing %s", ErrInsufficientScope, scope)
		}
	}

	scope := make([]string, len(identity.Roles))
	copy(scope, identity.Roles)

	return &Credentials{
		ID:       identity.ID,
		Username: identity.Username,
		Email:    identity.Email,
		Scope:    scope,
	}, identity.ID, nil
}

func expectedVersion(identity *Identity, fallback int) int {
	if identity != nil && identity.Version != nil {
		return *identity.Version
	}
	return fallback
}
