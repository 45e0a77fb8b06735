package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix scopes environment overrides, nested keys use a double
// underscore: NOIRE_AUTH__MAX_SESSION_AGE=720h
const EnvPrefix = "NOIRE_"

// LegacySecretEnv is read when auth.secret is not set any other way
const LegacySecretEnv = "JWT_SECRET"

var ErrMissingSecret = errors.New("config: auth.secret is required")

type Server struct {
	Address         string        `koanf:"address"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Debug           bool          `koanf:"debug"`
}

type Database struct {
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
	// Debug logs every query
	Debug bool `koanf:"debug"`
}

type Auth struct {
	Secret                  string        `koanf:"secret"`
	Expiration              time.Duration `koanf:"expiration"`
	PasswordResetExpiration time.Duration `koanf:"password_reset_expiration"`
	SignupExpiration        time.Duration `koanf:"signup_expiration"`
	MaxSessionAge           time.Duration `koanf:"max_session_age"`
	Version                 int           `koanf:"version"`
	CookieName              string        `koanf:"cookie_name"`
	CookieTTL               time.Duration `koanf:"cookie_ttl"`
	LoginRate               float64       `koanf:"login_rate"`
	LoginBurst              int           `koanf:"login_burst"`
	BaseURL                 string        `koanf:"base_url"`

	signingKey []byte
}

type Config struct {
	Server   Server   `koanf:"server"`
	Database Database `koanf:"database"`
	Auth     Auth     `koanf:"auth"`
}

// Defaults returns the baseline values every source overrides
func Defaults() map[string]any {
	return map[string]any{
		"server.address":                 ":8080",
		"server.shutdown_timeout":        "10s",
		"server.debug":                   false,
		"database.driver":                "sqlite",
		"database.dsn":                   "file:noire.db?cache=shared",
		"database.debug":                 false,
		"auth.expiration":                "24h",
		"auth.password_reset_expiration": "1h",
		"auth.signup_expiration":         "72h",
		"auth.max_session_age":           "720h",
		"auth.version":                   0,
		"auth.cookie_name":               "token",
		"auth.cookie_ttl":                "8760h",
		"auth.login_rate":                1.0,
		"auth.login_burst":               5,
		"auth.base_url":                  "http://localhost:8080",
	}
}

// Flags registers the command line overrides. --config points at a YAML file.
func Flags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a YAML config file")
	fs.String("server.address", ":8080", "listen address")
	fs.Bool("server.debug", false, "verbose request logging")
	fs.String("database.driver", "sqlite", "sqlite or postgres")
	fs.String("database.dsn", "", "database connection string")
	fs.Bool("database.debug", false, "log every query")
}

// Load merges defaults, the optional file, environment and changed flags,
// in that order. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("config: defaults: %w", err)
	}

	if fs != nil {
		if path, _ := fs.GetString("config"); path != "" {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}

	if k.String("auth.secret") == "" {
		if v := os.Getenv(LegacySecretEnv); v != "" {
			if err := k.Set("auth.secret", v); err != nil {
				return nil, fmt.Errorf("config: %s: %w", LegacySecretEnv, err)
			}
		}
	}

	if fs != nil {
		if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
			return nil, fmt.Errorf("config: flags: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// NOIRE_AUTH__COOKIE_NAME -> auth.cookie_name
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate checks the values and decodes the signing key
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.Secret) == "" {
		return ErrMissingSecret
	}

	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(c.Auth.Secret))
	if err != nil {
		return fmt.Errorf("config: auth.secret is not valid base64: %w", err)
	}
	if len(key) == 0 {
		return ErrMissingSecret
	}
	c.Auth.signingKey = key

	return validation.Errors{
		"server":   c.Server.validate(),
		"database": c.Database.validate(),
		"auth":     c.Auth.validate(),
	}.Filter()
}

func (s Server) validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Address, validation.Required),
		validation.Field(&s.ShutdownTimeout, validation.Min(time.Duration(0))),
	)
}

func (d Database) validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Driver, validation.Required, validation.In("sqlite", "postgres")),
		validation.Field(&d.DSN, validation.Required),
	)
}

func (a Auth) validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Expiration, validation.Required),
		validation.Field(&a.PasswordResetExpiration, validation.Required),
		validation.Field(&a.SignupExpiration, validation.Required),
		validation.Field(&a.MaxSessionAge, validation.Min(time.Duration(0))),
		validation.Field(&a.Version, validation.Min(0)),
		validation.Field(&a.CookieName, validation.Required),
		validation.Field(&a.LoginRate, validation.Min(0.0)),
		validation.Field(&a.LoginBurst, validation.Min(0)),
		validation.Field(&a.BaseURL, validation.Required, is.RequestURL),
	)
}

func (a Auth) GetSigningKey() []byte {
	return a.signingKey
}

func (a Auth) GetTokenExpiration() time.Duration {
	return a.Expiration
}

func (a Auth) GetPasswordResetExpiration() time.Duration {
	return a.PasswordResetExpiration
}

func (a Auth) GetSignupExpiration() time.Duration {
	return a.SignupExpiration
}

func (a Auth) GetMaxSessionAge() time.Duration {
	return a.MaxSessionAge
}

func (a Auth) GetTokenVersion() int {
	return a.Version
}

func (a Auth) GetCookieName() string {
	return a.CookieName
}

func (a Auth) GetCookieTTL() time.Duration {
	return a.CookieTTL
}

func (a Auth) GetBaseURL() string {
	return strings.TrimRight(a.BaseURL, "/")
}
