package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type InitializePasswordResetMessage struct {
	Email string `json:"email" form:"email"`
}

func (e InitializePasswordResetMessage) Type() string {
	return "password_reset.initialize"
}

// InitializePasswordResetHandler records a reset request and mails its link
// to an active user. Unknown addresses are not reported back to the caller.
type InitializePasswordResetHandler struct {
	repo     RepositoryManager
	accounts AccountLookup
	creds    *CredentialsService
	mailer   Mailer
	baseURL  string
	activity ActivitySink
	logger   Logger
}

func NewInitializePasswordResetHandler(repo RepositoryManager, accounts AccountLookup, creds *CredentialsService, mailer Mailer, baseURL string) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:     repo,
		accounts: accounts,
		creds:    creds,
		mailer:   mailer,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *InitializePasswordResetHandler) WithActivitySink(sink ActivitySink) *InitializePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	account, err := h.accounts.FindActiveByEmail(ctx, event.Email)
	if err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			h.logger.Info("password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("password reset lookup: %w", err)
	}

	reset := &PasswordReset{
		ID:     uuid.New(),
		UserID: account.ID,
		Email:  account.Email,
		Status: ResetRequestedStatus,
	}
	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		created, err := h.repo.PasswordResets().CreateTx(ctx, tx, reset)
		if err != nil {
			return err
		}
		reset = created
		return nil
	})
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}

	token, err := h.creds.IssuePasswordResetToken(&account.Identity, reset.ID.String())
	if err != nil {
		return err
	}

	link := h.baseURL + "/password-reset/confirm?token=" + url.QueryEscape(token)
	if err := h.mailer.Send(ctx, Mail{
		To:      account.Email,
		Subject: "Password reset",
		Body:    "Follow this link to choose a new password:\n" + link,
	}); err != nil {
		return fmt.Errorf("send password reset mail: %w", err)
	}

	emitActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordResetRequested,
		UserID:    account.ID,
	})
	return nil
}
