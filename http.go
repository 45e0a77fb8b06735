package auth

import (
	"errors"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
)

// DefaultCookieName is the cookie mirroring the bearer token
const DefaultCookieName = "token"

// DefaultCookieTTL keeps the cookie for a year, the token inside expires sooner
const DefaultCookieTTL = 365 * 24 * time.Hour

// RouteAuthenticator writes and clears the token transport on responses
type RouteAuthenticator struct {
	cookieName string
	cookieTTL  time.Duration
	now        func() time.Time
	Logger     Logger
}

func NewHTTPAuthenticator(cfg Config) *RouteAuthenticator {
	a := &RouteAuthenticator{
		cookieName: DefaultCookieName,
		cookieTTL:  DefaultCookieTTL,
		now:        time.Now,
		Logger:     defLogger{},
	}

	if cfg != nil {
		if cfg.GetCookieName() != "" {
			a.cookieName = cfg.GetCookieName()
		}
		if cfg.GetCookieTTL() > 0 {
			a.cookieTTL = cfg.GetCookieTTL()
		}
	}

	return a
}

func (a *RouteAuthenticator) CookieName() string {
	return a.cookieName
}

func (a *RouteAuthenticator) GetCookieDuration() time.Duration {
	return a.cookieTTL
}

// SetToken mirrors token into the Authorization header and the cookie
func (a *RouteAuthenticator) SetToken(c *fiber.Ctx, token string) {
	c.Set(fiber.HeaderAuthorization, token)
	c.Cookie(&fiber.Cookie{
		Name:     a.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  a.now().Add(a.cookieTTL),
		Secure:   true,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

// ClearToken expires the cookie
func (a *RouteAuthenticator) ClearToken(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     a.cookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		Secure:   true,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

// ValidationErrorResponse is rendered for payloads that fail validation
type ValidationErrorResponse struct {
	ErrorResponse
	Errors map[string]string `json:"errors"`
}

// NewErrorHandler builds the fiber error handler. Authentication failures
// only expose their reason, everything else unexpected becomes a 500 and
// gets logged.
func NewErrorHandler(logger Logger) fiber.ErrorHandler {
	logger = normalizeLogger(logger)

	return func(c *fiber.Ctx, err error) error {
		if ae, ok := AsAuthError(err); ok {
			logger.Debug("%s %s: %v", c.Method(), c.Path(), ae)
			return c.Status(ae.Status).JSON(ae.Response())
		}

		var verrs validation.Errors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for k, v := range verrs {
				fields[k] = v.Error()
			}
			return c.Status(fiber.StatusBadRequest).JSON(ValidationErrorResponse{
				ErrorResponse: ErrorResponse{
					StatusCode: fiber.StatusBadRequest,
					Error:      "Bad Request",
					Message:    "Invalid request payload",
				},
				Errors: fields,
			})
		}

		if errors.Is(err, ErrResourceNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				StatusCode: fiber.StatusNotFound,
				Error:      "Not Found",
				Message:    "Resource not found",
			})
		}

		if errors.Is(err, ErrUserExists) {
			return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
				StatusCode: fiber.StatusConflict,
				Error:      "Conflict",
				Message:    "User already exists",
			})
		}

		var ferr *fiber.Error
		if errors.As(err, &ferr) {
			return c.Status(ferr.Code).JSON(ErrorResponse{
				StatusCode: ferr.Code,
				Error:      http.StatusText(ferr.Code),
				Message:    ferr.Message,
			})
		}

		logger.Error("%s %s: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			StatusCode: fiber.StatusInternalServerError,
			Error:      "Internal Server Error",
			Message:    "An internal server error occurred",
		})
	}
}
