package auth

import "context"

// ClaimsDecorator adds extra claims to auth tokens at login. Decorators
// may only touch TokenClaims.Extra.
type ClaimsDecorator interface {
	Decorate(ctx context.Context, identity *Identity, claims *TokenClaims) error
}

// ClaimsDecoratorFunc adapts a function to ClaimsDecorator
type ClaimsDecoratorFunc func(ctx context.Context, identity *Identity, claims *TokenClaims) error

// Decorate implements ClaimsDecorator
func (f ClaimsDecoratorFunc) Decorate(ctx context.Context, identity *Identity, claims *TokenClaims) error {
	if f == nil {
		return nil
	}
	return f(ctx, identity, claims)
}

type noopClaimsDecorator struct{}

func (noopClaimsDecorator) Decorate(context.Context, *Identity, *TokenClaims) error {
	return nil
}

func normalizeClaimsDecorator(d ClaimsDecorator) ClaimsDecorator {
	if d == nil {
		return noopClaimsDecorator{}
	}
	return d
}

func decorateClaims(ctx context.Context, d ClaimsDecorator, identity *Identity, claims *TokenClaims) error {
	snap := captureImmutableClaims(claims)
	if err := d.Decorate(ctx, identity, claims); err != nil {
		return err
	}
	return snap.validate(claims)
}
