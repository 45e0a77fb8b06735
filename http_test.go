package auth_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-noire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	cookieName string
	cookieTTL  time.Duration
}

func (c testConfig) GetSigningKey() []byte                     { return testSecret }
func (c testConfig) GetTokenExpiration() time.Duration         { return auth.DefaultTokenExpiration }
func (c testConfig) GetPasswordResetExpiration() time.Duration { return time.Hour }
func (c testConfig) GetSignupExpiration() time.Duration        { return 72 * time.Hour }
func (c testConfig) GetMaxSessionAge() time.Duration           { return 0 }
func (c testConfig) GetTokenVersion() int                      { return 0 }
func (c testConfig) GetCookieName() string                     { return c.cookieName }
func (c testConfig) GetCookieTTL() time.Duration               { return c.cookieTTL }
func (c testConfig) GetBaseURL() string                        { return "http://localhost:8080" }

func TestNewHTTPAuthenticator(t *testing.T) {
	a := auth.NewHTTPAuthenticator(nil)
	assert.Equal(t, auth.DefaultCookieName, a.CookieName())
	assert.Equal(t, auth.DefaultCookieTTL, a.GetCookieDuration())

	a = auth.NewHTTPAuthenticator(testConfig{cookieName: "session", cookieTTL: time.Hour})
	assert.Equal(t, "session", a.CookieName())
	assert.Equal(t, time.Hour, a.GetCookieDuration())
}

func TestRouteAuthenticator_Cookies(t *testing.T) {
	a := auth.NewHTTPAuthenticator(testConfig{cookieName: "session", cookieTTL: time.Hour})

	app := fiber.New()
	app.Get("/set", func(c *fiber.Ctx) error {
		a.SetToken(c, "abc.def.ghi")
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Get("/clear", func(c *fiber.Ctx) error {
		a.ClearToken(c)
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/set", nil))
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", resp.Header.Get("Authorization"))

	cookies := resp.Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "session", cookies[0].Name)
	assert.Equal(t, "abc.def.ghi", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookies[0].SameSite)
	assert.WithinDuration(t, time.Now().Add(time.Hour), cookies[0].Expires, time.Minute)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/clear", nil))
	require.NoError(t, err)

	cookies = resp.Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "session", cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.True(t, cookies[0].Expires.Before(time.Now()))
}

func TestNewErrorHandler(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		label   string
		message string
		logs    string
	}{
		{
			name:    "missing authentication",
			err:     auth.ErrMissingAuthentication,
			status:  http.StatusUnauthorized,
			label:   "Unauthorized",
			message: "Missing authentication",
			logs:    "Debug",
		},
		{
			name:    "wrapped insufficient scope",
			err:     fmt.Errorf("%w: missing admin", auth.ErrInsufficientScope),
			status:  http.StatusForbidden,
			label:   "Forbidden",
			message: "Insufficient scope",
			logs:    "Debug",
		},
		{
			name:    "validation",
			err:     validation.Errors{"username": errors.New("cannot be blank")},
			status:  http.StatusBadRequest,
			label:   "Bad Request",
			message: "Invalid request payload",
		},
		{
			name:    "not found",
			err:     fmt.Errorf("user 3: %w", auth.ErrResourceNotFound),
			status:  http.StatusNotFound,
			label:   "Not Found",
			message: "Resource not found",
		},
		{
			name:    "user exists",
			err:     fmt.Errorf("%w: john", auth.ErrUserExists),
			status:  http.StatusConflict,
			label:   "Conflict",
			message: "User already exists",
		},
		{
			name:    "fiber error",
			err:     fiber.NewError(fiber.StatusBadRequest, "Invalid user id"),
			status:  http.StatusBadRequest,
			label:   "Bad Request",
			message: "Invalid user id",
		},
		{
			name:    "unexpected",
			err:     errors.New("disk on fire"),
			status:  http.StatusInternalServerError,
			label:   "Internal Server Error",
			message: "An internal server error occurred",
			logs:    "Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := new(MockLogger)
			if tt.logs != "" {
				logger.On(tt.logs, mock.Anything, mock.Anything).Once()
			}

			app := fiber.New(fiber.Config{ErrorHandler: auth.NewErrorHandler(logger)})
			app.Get("/", func(*fiber.Ctx) error { return tt.err })

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
			require.NoError(t, err)
			defer resp.Body.Close()

			raw, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			var body auth.ErrorResponse
			require.NoError(t, json.Unmarshal(raw, &body))

			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.status, body.StatusCode)
			assert.Equal(t, tt.label, body.Error)
			assert.Equal(t, tt.message, body.Message)
			assert.NotContains(t, string(raw), "disk on fire")
			logger.AssertExpectations(t)
		})
	}
}

func TestNewErrorHandler_ValidationFields(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: auth.NewErrorHandler(nil)})
	app.Get("/", func(*fiber.Ctx) error {
		return auth.LoginRequest{Username: "jo"}.Validate()
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body auth.ValidationErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusBadRequest, body.StatusCode)
	assert.Contains(t, body.Errors, "username")
	assert.Contains(t, body.Errors, "password")
}
