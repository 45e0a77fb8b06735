package jwtware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-noire"
)

var defaultTokenLookup = "header:" + fiber.HeaderAuthorization + ",cookie:token"

// DefaultContextKey is the Locals key holding *auth.Credentials
const DefaultContextKey = "credentials"

// DefaultRawTokenKey is the Locals key holding the raw token
const DefaultRawTokenKey = "token"

// Authenticator runs the authentication decision for a raw token
type Authenticator interface {
	Authenticate(ctx context.Context, token string, required ...string) (*auth.Credentials, error)
}

type Config struct {
	// Filter defines a function to skip middleware.
	Filter func(*fiber.Ctx) bool

	// SuccessHandler runs after credentials were stored, defaults to c.Next
	SuccessHandler fiber.Handler

	// ErrorHandler renders failures, defaults to DefaultErrorHandler
	ErrorHandler fiber.ErrorHandler

	Authenticator Authenticator

	// Scope lists the role names every caller must hold
	Scope []string

	// ContextKey is the Locals key for the credentials. Default "credentials"
	ContextKey string

	// RawTokenKey is the Locals key for the accepted token. Default "token"
	RawTokenKey string

	// TokenLookup is a comma separated list of "<source>:<name>" pairs,
	// sources are header, query, param and cookie.
	// Default "header:Authorization,cookie:token"
	TokenLookup string

	// AuthScheme is stripped from header values when present. Default "Bearer"
	AuthScheme string

	// ContextEnricher decorates the user context, defaults to auth.WithCredentials
	ContextEnricher func(ctx context.Context, creds *auth.Credentials) context.Context

	// TemplateUserKey exposes the credentials to views
	TemplateUserKey string
}

// New builds the authentication middleware
func New(config ...Config) fiber.Handler {
	cfg := GetDefaultConfig(config...)
	extractors := GetExtractors(cfg.TokenLookup, cfg.AuthScheme)

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		token := ExtractRawToken(c, extractors)

		creds, err := cfg.Authenticator.Authenticate(c.UserContext(), token, cfg.Scope...)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		c.Locals(cfg.ContextKey, creds)
		c.Locals(cfg.RawTokenKey, token)
		if cfg.TemplateUserKey != "" {
			c.Locals(cfg.TemplateUserKey, creds)
		}
		c.SetUserContext(cfg.ContextEnricher(c.UserContext(), creds))

		return cfg.SuccessHandler(c)
	}
}

// Credentials returns the credentials stored by the middleware
func Credentials(c *fiber.Ctx, key ...string) (*auth.Credentials, bool) {
	k := DefaultContextKey
	if len(key) > 0 && key[0] != "" {
		k = key[0]
	}
	creds, ok := c.Locals(k).(*auth.Credentials)
	return creds, ok && creds != nil
}

// DefaultErrorHandler renders authentication failures with their vague
// reason and hands everything else to the app error handler.
func DefaultErrorHandler(c *fiber.Ctx, err error) error {
	ae, ok := auth.AsAuthError(err)
	if !ok {
		return err
	}
	if ae.Status == fiber.StatusUnauthorized {
		c.Set(fiber.HeaderWWWAuthenticate, `Bearer error="invalid_token"`)
	}
	return c.Status(ae.Status).JSON(ae.Response())
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Authenticator == nil {
		panic("AUTH: JWT middleware configuration: Authenticator is required.")
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = DefaultErrorHandler
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}

	if cfg.RawTokenKey == "" {
		cfg.RawTokenKey = DefaultRawTokenKey
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	if cfg.ContextEnricher == nil {
		cfg.ContextEnricher = auth.WithCredentials
	}

	return cfg
}

// ExtractRawToken returns the first non empty token found by extractors
func ExtractRawToken(c *fiber.Ctx, extractors []TokenExtractor) string {
	for _, extractor := range extractors {
		if raw := extractor(c); raw != "" {
			return raw
		}
	}
	return ""
}

type TokenExtractor func(c *fiber.Ctx) string

func GetExtractors(tokenLookup string, authScheme string) []TokenExtractor {
	extractors := make([]TokenExtractor, 0)

	// header:Authorization,cookie:token,query:auth_token,param:token
	for _, rootPart := range strings.Split(tokenLookup, ",") {
		parts := strings.SplitN(strings.TrimSpace(rootPart), ":", 2)
		if len(parts) != 2 {
			continue
		}
		source, name := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])

		switch source {
		case "header":
			extractors = append(extractors, tokenFromHeader(name, authScheme))
		case "query":
			extractors = append(extractors, tokenFromQuery(name))
		case "param":
			extractors = append(extractors, tokenFromParam(name))
		case "cookie":
			extractors = append(extractors, tokenFromCookie(name))
		}
	}

	return extractors
}

// tokenFromHeader accepts both "<scheme> <token>" and a bare token
func tokenFromHeader(header string, authScheme string) TokenExtractor {
	authScheme = strings.TrimSpace(authScheme)
	return func(c *fiber.Ctx) string {
		a := strings.TrimSpace(c.Get(header))
		l := len(authScheme)
		if l > 0 && len(a) > l && strings.EqualFold(a[:l], authScheme) && a[l] == ' ' {
			return strings.TrimSpace(a[l:])
		}
		if strings.EqualFold(a, authScheme) {
			return ""
		}
		return a
	}
}

func tokenFromQuery(param string) TokenExtractor {
	return func(c *fiber.Ctx) string {
		return c.Query(param)
	}
}

func tokenFromParam(param string) TokenExtractor {
	return func(c *fiber.Ctx) string {
		return c.Params(param)
	}
}

func tokenFromCookie(name string) TokenExtractor {
	return func(c *fiber.Ctx) string {
		return c.Cookies(name)
	}
}
