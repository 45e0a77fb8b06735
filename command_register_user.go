package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// RegisterUserMessage completes an invited registration. The signup
// token names the user.
type RegisterUserMessage struct {
	Token      string `json:"token" form:"token"`
	Username   string `json:"username" form:"username"`
	Password   string `json:"password" form:"password"`
	OnResponse func(user *User)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

type RegisterUserHandler struct {
	repo     RepositoryManager
	creds    *CredentialsService
	activity ActivitySink
	logger   Logger
}

func NewRegisterUserHandler(repo RepositoryManager, creds *CredentialsService) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:     repo,
		creds:    creds,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

func (h *RegisterUserHandler) WithActivitySink(sink ActivitySink) *RegisterUserHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	h.logger = normalizeLogger(logger)
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	claims, err := h.creds.DecodeSignupToken(event.Token)
	if err != nil {
		return err
	}

	hash, err := h.creds.Hasher().Hash(event.Password)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var user *User
	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		taken, err := h.repo.Users().GetByUsernameTx(ctx, tx, event.Username)
		if err != nil && !errors.Is(err, ErrResourceNotFound) {
			return err
		}
		if taken != nil && taken.ID != claims.UserID {
			return fmt.Errorf("%w: %s", ErrUserExists, event.Username)
		}

		if _, err := h.repo.Users().CompleteRegistrationTx(ctx, tx, claims.UserID, event.Username, hash); err != nil {
			if errors.Is(err, ErrResourceNotFound) {
				return fmt.Errorf("%w: registration already completed", ErrTokenInvalid)
			}
			return err
		}
		if err := h.repo.Users().AssignRolesTx(ctx, tx, claims.UserID, RoleUser); err != nil {
			return err
		}
		user, err = h.repo.Users().GetByIDTx(ctx, tx, claims.UserID)
		return err
	})
	if err != nil {
		return err
	}

	emitActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventRegistrationCompleted,
		UserID:    user.ID,
	})

	if event.OnResponse != nil {
		event.OnResponse(user)
	}
	return nil
}
