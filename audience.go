package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Audience restricts what a token may be used for
type Audience int

const (
	// AudienceAuth tokens authenticate API requests
	AudienceAuth Audience = iota
	// AudienceSignup tokens complete an invited registration
	AudienceSignup
	// AudiencePasswordReset tokens authorize a single password change
	AudiencePasswordReset
)

var audienceNames = map[Audience]string{
	AudienceAuth:          "auth",
	AudienceSignup:        "signup",
	AudiencePasswordReset: "password-reset",
}

// String returns the value written to the aud claim
func (a Audience) String() string {
	if s, ok := audienceNames[a]; ok {
		return s
	}
	return fmt.Sprintf("audience(%d)", int(a))
}

// Valid reports whether a is one of the declared audiences
func (a Audience) Valid() bool {
	_, ok := audienceNames[a]
	return ok
}

// ParseAudience maps an aud claim value back to an Audience
func ParseAudience(s string) (Audience, error) {
	for a, name := range audienceNames {
		if name == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown audience %q", s)
}

// stampLoggedInAt decides the loggedInAt claim for a new token. Only auth
// tokens without a session start get stamped; anything else passes through.
func stampLoggedInAt(aud Audience, existing *jwt.NumericDate, now time.Time) *jwt.NumericDate {
	if aud != AudienceAuth || existing != nil {
		return existing
	}
	return jwt.NewNumericDate(now)
}
