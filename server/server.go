package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/template/django/v3"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-noire"
	"github.com/goliatone/go-noire/config"
	"github.com/goliatone/go-noire/metrics"
	"github.com/goliatone/go-noire/middleware/jwtware"
	"github.com/goliatone/go-noire/middleware/ratelimit"
)

// Version is stamped at build time with -ldflags "-X .../server.Version=..."
var Version = "dev"

type Server struct {
	app     *fiber.App
	cfg     *config.Config
	repo    auth.RepositoryManager
	creds   *auth.CredentialsService
	guard   *auth.Guard
	metrics *metrics.Metrics
	logger  auth.Logger
}

type options struct {
	logger      auth.Logger
	mailer      auth.Mailer
	hasher      auth.PasswordHasher
	decorator   auth.ClaimsDecorator
	clock       func() time.Time
	disableCSRF bool
}

type Option func(*options)

func WithLogger(l auth.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMailer replaces the logging mailer
func WithMailer(m auth.Mailer) Option {
	return func(o *options) {
		o.mailer = m
	}
}

func WithHasher(h auth.PasswordHasher) Option {
	return func(o *options) {
		o.hasher = h
	}
}

func WithClaimsDecorator(d auth.ClaimsDecorator) Option {
	return func(o *options) {
		o.decorator = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}

// WithoutCSRF turns off the form CSRF check
func WithoutCSRF() Option {
	return func(o *options) {
		o.disableCSRF = true
	}
}

// New wires the auth core, the repositories and the HTTP routes
func New(cfg *config.Config, db *bun.DB, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server: missing config")
	}
	if db == nil {
		return nil, errors.New("server: missing database")
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = auth.NewSlogLogger(nil)
	}
	if o.mailer == nil {
		o.mailer = auth.LogMailer(o.logger)
	}
	if o.hasher == nil {
		o.hasher = auth.NewBcryptHasher()
	}

	codec, err := auth.NewTokenCodec(
		cfg.Auth.GetSigningKey(),
		auth.WithTokenExpiration(cfg.Auth.GetTokenExpiration()),
		auth.WithMaxSessionAge(cfg.Auth.GetMaxSessionAge()),
		auth.WithClock(o.clock),
		auth.WithCodecLogger(o.logger),
	)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	m.SetBuildInfo(Version)

	sink := auth.MultiActivitySink{auth.LoggerActivitySink(o.logger), m}

	repo := auth.NewRepositoryManager(db)
	if err := repo.Validate(); err != nil {
		return nil, err
	}

	accounts := auth.NewUserProvider(repo.Users()).WithLogger(o.logger)

	creds := auth.NewCredentialsService(accounts, o.hasher, codec,
		auth.WithLoginTokenVersion(cfg.Auth.GetTokenVersion()),
		auth.WithPasswordResetExpiration(cfg.Auth.GetPasswordResetExpiration()),
		auth.WithSignupExpiration(cfg.Auth.GetSignupExpiration()),
		auth.WithClaimsDecorator(o.decorator),
		auth.WithActivitySink(sink),
		auth.WithCredentialsLogger(o.logger),
	)

	guard := auth.NewGuard(codec, accounts,
		auth.WithTokenVersion(cfg.Auth.GetTokenVersion()),
		auth.WithGuardLogger(o.logger),
		auth.WithGuardActivitySink(sink),
	)

	engine := django.NewFileSystem(http.FS(auth.ViewsFS()), ".html")

	app := fiber.New(fiber.Config{
		AppName:           "noire " + Version,
		Views:             engine,
		PassLocalsToViews: true,
		ErrorHandler:      auth.NewErrorHandler(o.logger),
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: newRequestID}))
	if cfg.Server.Debug {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
		}))
	}
	app.Use(m.Instrument())

	if !o.disableCSRF {
		app.Use(csrf.New(csrf.Config{
			KeyLookup:      "form:_csrf",
			CookieName:     "csrf_",
			CookieSameSite: "Strict",
			CookieHTTPOnly: true,
			ContextKey:     "csrf",
			Expiration:     time.Hour,
			// JSON bodies cannot be posted cross site without a preflight
			Next: func(c *fiber.Ctx) bool {
				return strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON)
			},
		}))
	}

	s := &Server{
		app:     app,
		cfg:     cfg,
		repo:    repo,
		creds:   creds,
		guard:   guard,
		metrics: m,
		logger:  o.logger,
	}

	ctrl := auth.NewAuthController(creds, accounts, auth.NewHTTPAuthenticator(cfg.Auth),
		auth.WithControllerLogger(o.logger),
		auth.WithControllerDebug(cfg.Server.Debug),
	)
	ctrl.Registrar = auth.NewRegisterUserHandler(repo, creds).
		WithActivitySink(sink).
		WithLogger(o.logger)
	ctrl.Inviter = auth.NewInviteUserHandler(repo, creds, o.mailer, cfg.Auth.GetBaseURL()).
		WithActivitySink(sink).
		WithLogger(o.logger)
	ctrl.ResetRequester = auth.NewInitializePasswordResetHandler(repo, accounts, creds, o.mailer, cfg.Auth.GetBaseURL()).
		WithActivitySink(sink).
		WithLogger(o.logger)
	ctrl.ResetFinalizer = auth.NewFinalizePasswordResetHandler(repo, creds).
		WithActivitySink(sink).
		WithLogger(o.logger)

	app.Get("/healthz", s.Health)
	app.Get("/version", s.VersionInfo)
	app.Get("/metrics", m.Handler())

	limiter := ratelimit.New(ratelimit.Config{
		PerSecond: cfg.Auth.LoginRate,
		Burst:     cfg.Auth.LoginBurst,
	})

	auth.RegisterAuthRoutes(app, ctrl, s.Protect, limiter)

	return s, nil
}

// Protect builds the authentication middleware for the given scopes
func (s *Server) Protect(scope ...string) fiber.Handler {
	return jwtware.New(jwtware.Config{
		Authenticator:   s.guard,
		Scope:           scope,
		TokenLookup:     "header:" + fiber.HeaderAuthorization + ",cookie:" + s.cfg.Auth.GetCookieName(),
		RawTokenKey:     auth.DefaultTokenLocalsKey,
		TemplateUserKey: "user",
	})
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Repository() auth.RepositoryManager {
	return s.repo
}

func (s *Server) Credentials() *auth.CredentialsService {
	return s.creds
}

func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// Health pings the database
func (s *Server) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	if err := s.repo.Ping(ctx); err != nil {
		s.logger.Error("health check: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unavailable",
		})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) VersionInfo(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"version": Version})
}

// Listen blocks until the server stops
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Server.Address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
