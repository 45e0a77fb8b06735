package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// CredentialsService verifies passwords and issues the tokens used by
// login, signup and password reset.
type CredentialsService struct {
	accounts         AccountLookup
	hasher           PasswordHasher
	codec            *TokenCodec
	version          int
	signupExpiration time.Duration
	resetExpiration  time.Duration
	decorator        ClaimsDecorator
	activity         ActivitySink
	logger           Logger

	dummyOnce sync.Once
	dummyHash string
}

// CredentialsOption configures a CredentialsService
type CredentialsOption func(*CredentialsService)

// WithLoginTokenVersion sets the version stamped on tokens for identities
// that do not track their own
func WithLoginTokenVersion(v int) CredentialsOption {
	return func(s *CredentialsService) {
		s.version = v
	}
}

func WithPasswordResetExpiration(d time.Duration) CredentialsOption {
	return func(s *CredentialsService) {
		s.resetExpiration = d
	}
}

func WithSignupExpiration(d time.Duration) CredentialsOption {
	return func(s *CredentialsService) {
		s.signupExpiration = d
	}
}

func WithClaimsDecorator(d ClaimsDecorator) CredentialsOption {
	return func(s *CredentialsService) {
		s.decorator = normalizeClaimsDecorator(d)
	}
}

func WithActivitySink(sink ActivitySink) CredentialsOption {
	return func(s *CredentialsService) {
		s.activity = normalizeActivitySink(sink)
	}
}

func WithCredentialsLogger(l Logger) CredentialsOption {
	return func(s *CredentialsService) {
		s.logger = normalizeLogger(l)
	}
}

func NewCredentialsService(accounts AccountLookup, hasher PasswordHasher, codec *TokenCodec, opts ...CredentialsOption) *CredentialsService {
	s := &CredentialsService{
		accounts:        accounts,
		hasher:          hasher,
		codec:           codec,
		resetExpiration: time.Hour,
		decorator:       noopClaimsDecorator{},
		activity:        noopActivitySink{},
		logger:          defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Login checks username and password and issues an auth token. Unknown
// users, inactive users and wrong passwords all yield ErrInvalidCredentials.
func (s *CredentialsService) Login(ctx context.Context, username, password string, exp Expiry) (string, error) {
	account, err := s.verify(ctx, username, password)
	if err != nil {
		var userID int64
		if account != nil {
			userID = account.ID
		}
		emitActivity(ctx, s.activity, s.logger, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			UserID:    userID,
			Reason:    reasonOf(err),
			Metadata:  map[string]any{"username": username},
		})
		return "", err
	}

	claims := TokenClaims{UserID: account.ID}
	if v := expectedVersion(&account.Identity, s.version); v != 0 {
		claims.Version = IntPtr(v)
	}

	if err := decorateClaims(ctx, s.decorator, &account.Identity, &claims); err != nil {
		return "", err
	}

	token, err := s.codec.Issue(claims, exp, AudienceAuth)
	if err != nil {
		return "", err
	}

	emitActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		UserID:    account.ID,
	})
	return token, nil
}

func (s *CredentialsService) verify(ctx context.Context, username, password string) (*Account, error) {
	account, err := s.accounts.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			s.compareDummy(password)
			return nil, fmt.Errorf("%w: unknown user", ErrInvalidCredentials)
		}
		return nil, err
	}

	if account == nil {
		s.compareDummy(password)
		return nil, fmt.Errorf("%w: unknown user", ErrInvalidCredentials)
	}

	if !account.Active {
		s.compareDummy(password)
		return account, fmt.Errorf("%w: inactive user", ErrInvalidCredentials)
	}

	match, err := s.hasher.Compare(password, account.PasswordHash)
	if err != nil {
		return account, err
	}

	if !match {
		return account, fmt.Errorf("%w: password mismatch", ErrInvalidCredentials)
	}

	return account, nil
}

// compareDummy spends the same hashing work as a real comparison, so
// rejected usernames take as long as wrong passwords.
func (s *CredentialsService) compareDummy(password string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("noire-dummy-password")
		if err != nil {
			s.logger.Error("dummy password hash: %v", err)
			return
		}
		s.dummyHash = hash
	})

	if s.dummyHash == "" {
		return
	}
	_, _ = s.hasher.Compare(password, s.dummyHash)
}

// Renew reissues an auth token, see TokenCodec.Renew
func (s *CredentialsService) Renew(ctx context.Context, token string) (string, error) {
	renewed, err := s.codec.Renew(token)
	if err != nil {
		emitActivity(ctx, s.activity, s.logger, ActivityEvent{
			EventType: ActivityEventTokenRenewFailure,
			Reason:    reasonOf(err),
		})
		return "", err
	}

	emitActivity(ctx, s.activity, s.logger, ActivityEvent{EventType: ActivityEventTokenRenewed})
	return renewed, nil
}

// IssueSignupToken issues a token that lets user id complete registration
func (s *CredentialsService) IssueSignupToken(id int64) (string, error) {
	return s.codec.Issue(TokenClaims{UserID: id}, ExpiresIn(s.signupExpiration), AudienceSignup)
}

func (s *CredentialsService) DecodeSignupToken(token string) (*TokenClaims, error) {
	return s.codec.Decode(token, AudienceSignup)
}

// IssuePasswordResetToken issues a token that lets identity set a new
// password once. The subject names the reset record and the version is the
// one the identity holds now, so the token dies with the next reset.
func (s *CredentialsService) IssuePasswordResetToken(identity *Identity, resetID string) (string, error) {
	if identity == nil {
		return "", ErrResourceNotFound
	}

	claims := TokenClaims{UserID: identity.ID}
	claims.Subject = resetID
	if v := s.ExpectedVersion(identity); v != 0 {
		claims.Version = IntPtr(v)
	}
	return s.codec.Issue(claims, ExpiresIn(s.resetExpiration), AudiencePasswordReset)
}

func (s *CredentialsService) DecodePasswordResetToken(token string) (*TokenClaims, error) {
	return s.codec.Decode(token, AudiencePasswordReset)
}

// TokenVersion is the version stamped for identities without their own
func (s *CredentialsService) TokenVersion() int {
	return s.version
}

// ExpectedVersion is the version tokens for identity must carry
func (s *CredentialsService) ExpectedVersion(identity *Identity) int {
	return expectedVersion(identity, s.version)
}

// Hasher returns the password hasher
func (s *CredentialsService) Hasher() PasswordHasher {
	return s.hasher
}
