package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// InviteUserMessage creates an inactive account and mails a signup link
type InviteUserMessage struct {
	Email      string `json:"email" form:"email"`
	Name       string `json:"name" form:"name"`
	OnResponse func(user *User, token string)
}

func (e InviteUserMessage) Type() string { return "user.invite" }

type InviteUserHandler struct {
	repo     RepositoryManager
	creds    *CredentialsService
	mailer   Mailer
	baseURL  string
	activity ActivitySink
	logger   Logger
}

func NewInviteUserHandler(repo RepositoryManager, creds *CredentialsService, mailer Mailer, baseURL string) *InviteUserHandler {
	return &InviteUserHandler{
		repo:     repo,
		creds:    creds,
		mailer:   mailer,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *InviteUserHandler) WithActivitySink(sink ActivitySink) *InviteUserHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *InviteUserHandler) WithLogger(logger Logger) *InviteUserHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *InviteUserHandler) Execute(ctx context.Context, event InviteUserMessage) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return h.execute(ctx, event)
	}
}

func (h *InviteUserHandler) execute(ctx context.Context, event InviteUserMessage) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var user *User
	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		// the username is a placeholder until registration completes
		user, err = h.repo.Users().CreateTx(ctx, tx, &User{
			Username: event.Email,
			Email:    event.Email,
			Name:     event.Name,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("invite user: %w", err)
	}

	token, err := h.creds.IssueSignupToken(user.ID)
	if err != nil {
		return err
	}

	link := h.baseURL + "/register?token=" + url.QueryEscape(token)
	if err := h.mailer.Send(ctx, Mail{
		To:      user.Email,
		Subject: "Complete your registration",
		Body:    "Follow this link to finish creating your account:\n" + link,
	}); err != nil {
		return fmt.Errorf("send signup mail: %w", err)
	}

	emitActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventSignupTokenIssued,
		UserID:    user.ID,
	})

	if event.OnResponse != nil {
		event.OnResponse(user, token)
	}
	return nil
}
