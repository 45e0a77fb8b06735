package auth

import (
	"context"
)

// UserProvider serves identity lookups from the users repository
type UserProvider struct {
	store  Users
	logger Logger
}

var _ AccountLookup = (*UserProvider)(nil)

func NewUserProvider(store Users) *UserProvider {
	return &UserProvider{
		store:  store,
		logger: defLogger{},
	}
}

func (u *UserProvider) WithLogger(logger Logger) *UserProvider {
	u.logger = normalizeLogger(logger)
	return u
}

// FindByID returns ErrResourceNotFound for unknown ids
func (u *UserProvider) FindByID(ctx context.Context, id int64) (*Identity, error) {
	user, err := u.store.GetByID(ctx, id)
	if err != nil {
		u.logger.Debug("find identity %d: %v", id, err)
		return nil, err
	}
	return user.ToIdentity(), nil
}

func (u *UserProvider) FindByUsername(ctx context.Context, username string) (*Account, error) {
	user, err := u.store.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return user.ToAccount(), nil
}

func (u *UserProvider) FindActiveByEmail(ctx context.Context, email string) (*Account, error) {
	user, err := u.store.GetActiveByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return user.ToAccount(), nil
}
