package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// IdentityFinder resolves the identity a token was issued for
type IdentityFinder interface {
	FindByID(ctx context.Context, id int64) (*Identity, error)
}

// AccountLookup is the persistence contract the credentials flows need
type AccountLookup interface {
	IdentityFinder
	FindByUsername(ctx context.Context, username string) (*Account, error)
	FindActiveByEmail(ctx context.Context, email string) (*Account, error)
}

// PasswordHasher hashes and verifies passwords
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Compare(plaintext, hash string) (bool, error)
}

// Config holds auth options
type Config interface {
	GetSigningKey() []byte
	GetTokenExpiration() time.Duration
	GetPasswordResetExpiration() time.Duration
	GetSignupExpiration() time.Duration
	GetMaxSessionAge() time.Duration
	GetTokenVersion() int
	GetCookieName() string
	GetCookieTTL() time.Duration
	GetBaseURL() string
}

type defLogger struct {
	logger *slog.Logger
}

// NewSlogLogger adapts a slog.Logger to Logger, nil uses slog.Default
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return defLogger{logger: l.With("component", "auth")}
}

func (d defLogger) Error(format string, args ...any) {
	d.get().Error(fmt.Sprintf(format, args...))
}

func (d defLogger) Warn(format string, args ...any) {
	d.get().Warn(fmt.Sprintf(format, args...))
}

func (d defLogger) Info(format string, args ...any) {
	d.get().Info(fmt.Sprintf(format, args...))
}

func (d defLogger) Debug(format string, args ...any) {
	d.get().Debug(fmt.Sprintf(format, args...))
}

func (d defLogger) get() *slog.Logger {
	if d.logger == nil {
		return slog.Default().With("component", "auth")
	}
	return d.logger
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
