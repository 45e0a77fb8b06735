package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenExpiration is used when the codec is built without one
const DefaultTokenExpiration = 8 * time.Hour

// Expiry selects how long an issued token lives. The zero value means
// the codec default.
type Expiry struct {
	ttl   time.Duration
	never bool
}

// ExpiresIn sets a custom lifetime, non positive values fall back to the default
func ExpiresIn(d time.Duration) Expiry {
	return Expiry{ttl: d}
}

// NeverExpires omits the exp claim
func NeverExpires() Expiry {
	return Expiry{never: true}
}

// DefaultExpiry uses the codec default lifetime
func DefaultExpiry() Expiry {
	return Expiry{}
}

func (e Expiry) resolve(def time.Duration) (time.Duration, bool) {
	if e.never {
		return 0, false
	}
	if e.ttl > 0 {
		return e.ttl, true
	}
	return def, true
}

// TokenCodec signs and verifies HS256 tokens with a secret injected at
// construction. It holds no mutable state once built.
type TokenCodec struct {
	secret        []byte
	expiration    time.Duration
	maxSessionAge time.Duration
	issuer        string
	now           func() time.Time
	logger        Logger
}

// TokenCodecOption configures a TokenCodec
type TokenCodecOption func(*TokenCodec)

// WithTokenExpiration sets the default token lifetime
func WithTokenExpiration(d time.Duration) TokenCodecOption {
	return func(c *TokenCodec) {
		if d > 0 {
			c.expiration = d
		}
	}
}

// WithMaxSessionAge limits how long after loggedInAt a token can be renewed.
// Zero disables the limit.
func WithMaxSessionAge(d time.Duration) TokenCodecOption {
	return func(c *TokenCodec) {
		c.maxSessionAge = d
	}
}

// WithIssuer sets the iss claim on issued tokens
func WithIssuer(iss string) TokenCodecOption {
	return func(c *TokenCodec) {
		c.issuer = iss
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) TokenCodecOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCodecLogger sets the codec logger
func WithCodecLogger(l Logger) TokenCodecOption {
	return func(c *TokenCodec) {
		c.logger = normalizeLogger(l)
	}
}

// NewTokenCodec creates a codec. An empty secret is an error callers
// should treat as fatal.
func NewTokenCodec(secret []byte, opts ...TokenCodecOption) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}

	key := make([]byte, len(secret))
	copy(key, secret)

	c := &TokenCodec{
		secret:     key,
		expiration: DefaultTokenExpiration,
		now:        time.Now,
		logger:     defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c, nil
}

// Expiration returns the default token lifetime
func (c *TokenCodec) Expiration() time.Duration {
	return c.expiration
}

// Issue signs claims for the given audience. Reserved claims are owned by
// the codec: aud, iat, exp and jti are always overwritten.
func (c *TokenCodec) Issue(claims TokenClaims, exp Expiry, aud Audience) (string, error) {
	if !aud.Valid() {
		return "", fmt.Errorf("issue token: unknown audience %d", int(aud))
	}

	now := c.now()
	out := claims.clone()

	out.Audience = jwt.ClaimStrings{aud.String()}
	out.IssuedAt = jwt.NewNumericDate(now)
	out.ExpiresAt = nil
	if ttl, ok := exp.resolve(c.expiration); ok {
		out.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	if c.issuer != "" {
		out.Issuer = c.issuer
	}
	out.LoggedInAt = stampLoggedInAt(aud, out.LoggedInAt, now)
	out.RegisteredClaims.ID = uuid.NewString()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, out).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies signature, expiry and audience and returns the claims
func (c *TokenCodec) Decode(token string, expected Audience) (*TokenClaims, error) {
	claims := &TokenClaims{}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(expected.String()),
		jwt.WithTimeFunc(c.now),
	)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		case errors.Is(err, jwt.ErrTokenInvalidAudience),
			errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
			c.logger.Debug("token audience rejected, expected %s", expected)
			return nil, fmt.Errorf("%w: %v", ErrTokenAudienceMismatch, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
	}

	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// Renew reissues an auth token keeping its subject, version, extra claims
// and session start.
func (c *TokenCodec) Renew(token string) (string, error) {
	claims, err := c.Decode(token, AudienceAuth)
	if err != nil {
		return "", err
	}

	started, ok := claims.SessionStart()
	if !ok {
		return "", ErrNonRenewableToken
	}

	if c.maxSessionAge > 0 && c.now().Sub(started) > c.maxSessionAge {
		c.logger.Info("token for %d not renewed, session started %s", claims.UserID, started.Format(time.RFC3339))
		return "", fmt.Errorf("%w: session older than %s", ErrNonRenewableToken, c.maxSessionAge)
	}

	return c.Issue(TokenClaims{
		UserID:     claims.UserID,
		Version:    claims.Version,
		LoggedInAt: claims.LoggedInAt,
		Extra:      claims.Extra,
	}, DefaultExpiry(), AudienceAuth)
}
