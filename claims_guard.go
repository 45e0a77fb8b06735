package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type immutableClaimsSnapshot struct {
	userID        int64
	version       int
	hasVersion    bool
	loggedInAt    time.Time
	hasLoggedInAt bool
	registered    jwt.RegisteredClaims
}

func captureImmutableClaims(claims *TokenClaims) immutableClaimsSnapshot {
	snap := immutableClaimsSnapshot{
		userID:     claims.UserID,
		registered: claims.RegisteredClaims,
	}

	if claims.Version != nil {
		snap.version = *claims.Version
		snap.hasVersion = true
	}

	if claims.LoggedInAt != nil {
		snap.loggedInAt = claims.LoggedInAt.Time
		snap.hasLoggedInAt = true
	}

	return snap
}

func (snap immutableClaimsSnapshot) validate(claims *TokenClaims) error {
	if claims.UserID != snap.userID {
		return immutableClaimViolation("id")
	}

	if (claims.Version != nil) != snap.hasVersion || (claims.Version != nil && *claims.Version != snap.version) {
		return immutableClaimViolation("version")
	}

	if (claims.LoggedInAt != nil) != snap.hasLoggedInAt ||
		(claims.LoggedInAt != nil && !claims.LoggedInAt.Time.Equal(snap.loggedInAt)) {
		return immutableClaimViolation("loggedInAt")
	}

	if claims.Subject != snap.registered.Subject || claims.Issuer != snap.registered.Issuer {
		return immutableClaimViolation("sub")
	}

	if len(claims.Audience) != len(snap.registered.Audience) {
		return immutableClaimViolation("aud")
	}
	for i := range claims.Audience {
		if claims.Audience[i] != snap.registered.Audience[i] {
			return immutableClaimViolation("aud")
		}
	}

	for k := range claims.Extra {
		if IsReservedClaim(k) {
			return immutableClaimViolation(k)
		}
	}

	return nil
}

func immutableClaimViolation(field string) error {
	return fmt.Errorf("%w: %s", ErrImmutableClaimMutation, field)
}
