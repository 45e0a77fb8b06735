package auth

import (
	"errors"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
)

const (
	UsernameMinLength = 3
	UsernameMaxLength = 32
	PasswordMinLength = 3
	// PasswordMaxLength for stored passwords, login accepts up to LoginPasswordMaxLength
	PasswordMaxLength      = 60
	LoginPasswordMaxLength = 200
)

// DefaultTokenLocalsKey is where the auth middleware leaves the raw token
const DefaultTokenLocalsKey = "token"

type AuthControllerRoutes struct {
	Login                string
	Logout               string
	Renew                string
	Register             string
	PasswordReset        string
	PasswordResetConfirm string
	Me                   string
	User                 string
	Invite               string
}

type AuthControllerViews struct {
	Register      string
	PasswordReset string
}

// ProtectFunc builds the authentication middleware for the given scopes
type ProtectFunc func(scope ...string) fiber.Handler

type AuthController struct {
	Debug          bool
	Logger         Logger
	Routes         *AuthControllerRoutes
	Views          *AuthControllerViews
	Creds          *CredentialsService
	Accounts       AccountLookup
	Auther         *RouteAuthenticator
	Registrar      *RegisterUserHandler
	Inviter        *InviteUserHandler
	ResetRequester *InitializePasswordResetHandler
	ResetFinalizer *FinalizePasswordResetHandler
	TokenLocalsKey string
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(a *AuthController) *AuthController {
		a.Logger = normalizeLogger(logger)
		return a
	}
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(a *AuthController) *AuthController {
		a.Debug = debug
		return a
	}
}

func WithControllerRoutes(routes *AuthControllerRoutes) AuthControllerOption {
	return func(a *AuthController) *AuthController {
		if routes != nil {
			a.Routes = routes
		}
		return a
	}
}

func NewAuthController(creds *CredentialsService, accounts AccountLookup, auther *RouteAuthenticator, opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:   defLogger{},
		Creds:    creds,
		Accounts: accounts,
		Auther:   auther,
		Routes: &AuthControllerRoutes{
			Login:                "/login",
			Logout:               "/logout",
			Renew:                "/token/renew",
			Register:             "/register",
			PasswordReset:        "/password-reset",
			PasswordResetConfirm: "/password-reset/confirm",
			Me:                   "/api/users/me",
			User:                 "/api/users/:id",
			Invite:               "/api/users/invite",
		},
		Views: &AuthControllerViews{
			Register:      "register",
			PasswordReset: "password_reset",
		},
		TokenLocalsKey: DefaultTokenLocalsKey,
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Creds == nil {
		panic("Missing CredentialsService in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing RouteAuthenticator in auth controller...")
	}

	return c
}

// RegisterAuthRoutes mounts the auth routes. limit guards the login route.
func RegisterAuthRoutes(app fiber.Router, ctrl *AuthController, protect ProtectFunc, limit fiber.Handler) {
	if limit == nil {
		limit = func(c *fiber.Ctx) error { return c.Next() }
	}

	app.Post(ctrl.Routes.Login, limit, ctrl.LoginPost)
	app.Get(ctrl.Routes.Logout, ctrl.LogOut)
	app.Post(ctrl.Routes.Renew, protect(), ctrl.RenewPost)

	if ctrl.Registrar != nil {
		app.Get(ctrl.Routes.Register, ctrl.RegistrationShow)
		app.Post(ctrl.Routes.Register, ctrl.RegistrationCreate)
	}

	if ctrl.ResetRequester != nil {
		app.Post(ctrl.Routes.PasswordReset, limit, ctrl.PasswordResetPost)
	}

	if ctrl.ResetFinalizer != nil {
		app.Get(ctrl.Routes.PasswordResetConfirm, ctrl.PasswordResetForm)
		app.Post(ctrl.Routes.PasswordResetConfirm, ctrl.PasswordResetExecute)
	}

	app.Get(ctrl.Routes.Me, protect(), ctrl.Me)

	if ctrl.Inviter != nil {
		app.Post(ctrl.Routes.Invite, protect(RoleAdmin), ctrl.InviteCreate)
	}

	if ctrl.Accounts != nil {
		app.Get(ctrl.Routes.User, protect(RoleAdmin), ctrl.UserShow)
	}
}

// LoginRequest payload
type LoginRequest struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Username,
			validation.Required,
			validation.Length(UsernameMinLength, UsernameMaxLength),
		),
		validation.Field(
			&r.Password,
			validation.Required,
			validation.Length(PasswordMinLength, LoginPasswordMaxLength),
		),
	)
}

// TokenResponse is returned by login and renew
type TokenResponse struct {
	Token string `json:"token"`
}

func (a *AuthController) LoginPost(c *fiber.Ctx) error {
	payload := new(LoginRequest)
	if err := c.BodyParser(payload); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request payload")
	}

	if err := payload.Validate(); err != nil {
		return err
	}

	if a.Debug {
		a.Logger.Debug("login attempt: %s", print.MaybePrettyJSON(map[string]string{"username": payload.Username}))
	}

	token, err := a.Creds.Login(c.UserContext(), payload.Username, payload.Password, DefaultExpiry())
	if err != nil {
		return err
	}

	a.Auther.SetToken(c, token)
	return c.JSON(TokenResponse{Token: token})
}

func (a *AuthController) LogOut(c *fiber.Ctx) error {
	a.Auther.ClearToken(c)
	return c.Redirect("/", fiber.StatusSeeOther)
}

// RenewPost runs behind the auth middleware, so the token already passed
// the identity and version checks.
func (a *AuthController) RenewPost(c *fiber.Ctx) error {
	raw, _ := c.Locals(a.TokenLocalsKey).(string)
	if raw == "" {
		return ErrMissingAuthentication
	}

	token, err := a.Creds.Renew(c.UserContext(), raw)
	if err != nil {
		return err
	}

	a.Auther.SetToken(c, token)
	return c.JSON(TokenResponse{Token: token})
}

func (a *AuthController) RegistrationShow(c *fiber.Ctx) error {
	token := c.Query("token")
	claims, err := a.Creds.DecodeSignupToken(token)
	if err != nil {
		a.Logger.Info("register page with unusable token: %v", err)
		return c.Status(fiber.StatusUnauthorized).Render(a.Views.Register, fiber.Map{
			"errors": map[string]string{"token": "This registration link is invalid or has expired"},
		})
	}

	return c.Render(a.Views.Register, fiber.Map{
		"errors": map[string]string{},
		"token":  token,
		"id":     claims.UserID,
	})
}

// RegistrationCreatePayload is the form payload
type RegistrationCreatePayload struct {
	Token           string `form:"token" json:"token"`
	Username        string `form:"username" json:"username"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Username, validation.Required, validation.Length(UsernameMinLength, UsernameMaxLength)),
		validation.Field(&r.Password, validation.Required, validation.Length(PasswordMinLength, PasswordMaxLength)),
		validation.Field(&r.ConfirmPassword, validation.Required, validation.By(ValidateStringEquals(r.Password))),
	)
}

// RegisterResponse is returned after a registration completes
type RegisterResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ID      int64  `json:"id"`
}

func (a *AuthController) RegistrationCreate(c *fiber.Ctx) error {
	payload := new(RegistrationCreatePayload)
	if err := c.BodyParser(payload); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request payload")
	}

	if payload.Token == "" {
		payload.Token = c.Query("token")
	}

	if err := payload.Validate(); err != nil {
		return err
	}

	var id int64
	err := a.Registrar.Execute(c.UserContext(), RegisterUserMessage{
		Token:    payload.Token,
		Username: payload.Username,
		Password: payload.Password,
		OnResponse: func(user *User) {
			id = user.ID
		},
	})
	if err != nil {
		return err
	}

	return c.JSON(RegisterResponse{Success: true, Message: "registered", ID: id})
}

// PasswordResetRequestPayload asks for a reset link
type PasswordResetRequestPayload struct {
	Email string `form:"email" json:"email"`
}

func (r PasswordResetRequestPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 100), is.Email),
	)
}

// StatusResponse is a generic acknowledgement
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (a *AuthController) PasswordResetPost(c *fiber.Ctx) error {
	payload := new(PasswordResetRequestPayload)
	if err := c.BodyParser(payload); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request payload")
	}

	if err := payload.Validate(); err != nil {
		return err
	}

	if err := a.ResetRequester.Execute(c.UserContext(), InitializePasswordResetMessage{Email: payload.Email}); err != nil {
		return err
	}

	return c.JSON(StatusResponse{
		Success: true,
		Message: "If the address belongs to an active account a reset link was sent",
	})
}

func (a *AuthController) PasswordResetForm(c *fiber.Ctx) error {
	token := c.Query("token")
	if _, err := a.Creds.DecodePasswordResetToken(token); err != nil {
		a.Logger.Info("password reset page with unusable token: %v", err)
		return c.Status(fiber.StatusUnauthorized).Render(a.Views.PasswordReset, fiber.Map{
			"errors": map[string]string{"token": "This password reset link is invalid or has expired"},
		})
	}

	return c.Render(a.Views.PasswordReset, fiber.Map{
		"errors": map[string]string{},
		"token":  token,
	})
}

// PasswordResetVerifyPayload sets the new password
type PasswordResetVerifyPayload struct {
	Token           string `form:"token" json:"token"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

func (r PasswordResetVerifyPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(PasswordMinLength, PasswordMaxLength)),
		validation.Field(&r.ConfirmPassword, validation.Required, validation.By(ValidateStringEquals(r.Password))),
	)
}

func (a *AuthController) PasswordResetExecute(c *fiber.Ctx) error {
	payload := new(PasswordResetVerifyPayload)
	if err := c.BodyParser(payload); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request payload")
	}

	if err := payload.Validate(); err != nil {
		return err
	}

	err := a.ResetFinalizer.Execute(c.UserContext(), FinalizePasswordResetMessage{
		Token:    payload.Token,
		Password: payload.Password,
	})
	if err != nil {
		return err
	}

	a.Auther.ClearToken(c)
	return c.JSON(StatusResponse{Success: true, Message: "password updated"})
}

func (a *AuthController) Me(c *fiber.Ctx) error {
	creds, ok := CredentialsFromContext(c.UserContext())
	if !ok {
		return ErrMissingAuthentication
	}
	return c.JSON(creds)
}

// UserResponse is the public view of an identity
type UserResponse struct {
	ID       int64    `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Active   bool     `json:"active"`
	Roles    []string `json:"roles"`
}

func (a *AuthController) UserShow(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid user id")
	}

	identity, err := a.Accounts.FindByID(c.UserContext(), id)
	if err != nil {
		return err
	}

	return c.JSON(UserResponse{
		ID:       identity.ID,
		Username: identity.Username,
		Email:    identity.Email,
		Active:   identity.Active,
		Roles:    identity.Roles,
	})
}

// InvitePayload creates an invited user
type InvitePayload struct {
	Email string `form:"email" json:"email"`
	Name  string `form:"name" json:"name"`
}

func (r InvitePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 100), is.Email),
		validation.Field(&r.Name, validation.Length(1, 64)),
	)
}

// InviteResponse returns the new user id and its signup token
type InviteResponse struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Token string `json:"token"`
}

func (a *AuthController) InviteCreate(c *fiber.Ctx) error {
	payload := new(InvitePayload)
	if err := c.BodyParser(payload); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request payload")
	}

	if err := payload.Validate(); err != nil {
		return err
	}

	var out InviteResponse
	err := a.Inviter.Execute(c.UserContext(), InviteUserMessage{
		Email: payload.Email,
		Name:  payload.Name,
		OnResponse: func(user *User, token string) {
			out = InviteResponse{ID: user.ID, Email: user.Email, Token: token}
		},
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(out)
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}
