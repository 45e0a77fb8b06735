package auth

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// reservedClaims can not be set through TokenClaims.Extra
var reservedClaims = map[string]struct{}{
	"id":         {},
	"aud":        {},
	"iat":        {},
	"exp":        {},
	"nbf":        {},
	"iss":        {},
	"sub":        {},
	"jti":        {},
	"version":    {},
	"loggedInAt": {},
}

// IsReservedClaim reports whether name is managed by the codec
func IsReservedClaim(name string) bool {
	_, ok := reservedClaims[name]
	return ok
}

// TokenClaims is the decoded payload of a token. On the wire all claims,
// including Extra, form a single flat object.
type TokenClaims struct {
	jwt.RegisteredClaims
	UserID     int64            `json:"id"`
	Version    *int             `json:"version,omitempty"`
	LoggedInAt *jwt.NumericDate `json:"loggedInAt,omitempty"`
	Extra      map[string]any   `json:"-"`
}

type tokenClaimsJSON TokenClaims

// MarshalJSON flattens Extra next to the registered claims
func (c TokenClaims) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(tokenClaimsJSON(c))
	if err != nil || len(c.Extra) == 0 {
		return base, err
	}

	merged := make(map[string]any, len(c.Extra)+8)
	for k, v := range c.Extra {
		if IsReservedClaim(k) {
			continue
		}
		merged[k] = v
	}

	dec := json.NewDecoder(bytes.NewReader(base))
	dec.UseNumber()
	if err := dec.Decode(&merged); err != nil {
		return nil, err
	}

	return json.Marshal(merged)
}

// UnmarshalJSON collects unknown claims into Extra
func (c *TokenClaims) UnmarshalJSON(data []byte) error {
	var known tokenClaimsJSON
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	raw := map[string]any{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	for k := range raw {
		if IsReservedClaim(k) {
			delete(raw, k)
		}
	}

	*c = TokenClaims(known)
	if len(raw) > 0 {
		c.Extra = raw
	}
	return nil
}

// HasAudience reports whether aud was issued for a
func (c *TokenClaims) HasAudience(a Audience) bool {
	for _, aud := range c.Audience {
		if aud == a.String() {
			return true
		}
	}
	return false
}

// SessionStart returns the loggedInAt claim
func (c *TokenClaims) SessionStart() (time.Time, bool) {
	if c.LoggedInAt == nil {
		return time.Time{}, false
	}
	return c.LoggedInAt.Time, true
}

// ClaimedVersion returns the version claim, zero when absent
func (c *TokenClaims) ClaimedVersion() int {
	if c.Version == nil {
		return 0
	}
	return *c.Version
}

func (c *TokenClaims) clone() *TokenClaims {
	out := *c
	if c.Audience != nil {
		out.Audience = append(jwt.ClaimStrings(nil), c.Audience...)
	}
	if c.Version != nil {
		v := *c.Version
		out.Version = &v
	}
	if c.Extra != nil {
		out.Extra = make(map[string]any, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = v
		}
	}
	return &out
}

// IntPtr is a helper for optional int claims
func IntPtr(v int) *int {
	return &v
}
