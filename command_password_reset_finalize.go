package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type FinalizePasswordResetMessage struct {
	Token    string `json:"token" form:"token"`
	Password string `json:"password" form:"password"`
}

func (e FinalizePasswordResetMessage) Type() string {
	return "password_reset.finalize"
}

// FinalizePasswordResetHandler stores the new password of the user named
// by a password reset token. Each reset record accepts one token use, and
// the token must carry the version the user holds.
type FinalizePasswordResetHandler struct {
	repo     RepositoryManager
	creds    *CredentialsService
	activity ActivitySink
	logger   Logger
}

func NewFinalizePasswordResetHandler(repo RepositoryManager, creds *CredentialsService) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		repo:     repo,
		creds:    creds,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *FinalizePasswordResetHandler) WithActivitySink(sink ActivitySink) *FinalizePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	claims, err := h.creds.DecodePasswordResetToken(event.Token)
	if err != nil {
		return err
	}

	resetID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return fmt.Errorf("%w: malformed reset id", ErrTokenInvalid)
	}

	hash, err := h.creds.Hasher().Hash(event.Password)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	reset, err := h.repo.PasswordResets().GetByID(ctx, resetID.String())
	if err != nil {
		if repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: unknown reset", ErrTokenInvalid)
		}
		return fmt.Errorf("password reset lookup: %w", err)
	}

	if reset.UserID != claims.UserID {
		return fmt.Errorf("%w: reset belongs to another user", ErrTokenInvalid)
	}

	if reset.Status != ResetRequestedStatus {
		return fmt.Errorf("%w: reset already used", ErrTokenInvalid)
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().GetByIDTx(ctx, tx, claims.UserID)
		if err != nil {
			return err
		}

		if claims.ClaimedVersion() != h.creds.ExpectedVersion(user.ToIdentity()) {
			return fmt.Errorf("%w: token version mismatch", ErrTokenInvalid)
		}

		if err := h.repo.PasswordResets().ConsumeTx(ctx, tx, resetID, claims.UserID); err != nil {
			if errors.Is(err, ErrResourceNotFound) {
				return fmt.Errorf("%w: reset already used", ErrTokenInvalid)
			}
			return err
		}

		return h.repo.Users().ResetPasswordTx(ctx, tx, claims.UserID, hash, h.creds.TokenVersion())
	})
	if err != nil {
		return err
	}

	emitActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordResetSuccess,
		UserID:    claims.UserID,
	})
	return nil
}
