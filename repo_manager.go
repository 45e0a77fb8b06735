package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	Validate() error
	MustValidate()
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	CreateSchema(ctx context.Context) error
	Ping(ctx context.Context) error
	Users() Users
	Roles() Roles
	PasswordResets() PasswordResets
}

type mngr struct {
	db             *bun.DB
	users          Users
	roles          Roles
	passwordResets PasswordResets
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	db.RegisterModel((*UserToRole)(nil), (*RoleToPermission)(nil))

	roles := NewRolesRepository(db)
	return &mngr{
		db:             db,
		roles:          roles,
		users:          NewUsersRepository(db, roles),
		passwordResets: NewPasswordResetsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository db should be initialized")
	}

	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.roles == nil {
		return errors.New("repository roles should be initialized")
	}

	if m.passwordResets == nil {
		return errors.New("repository passwordResets should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

// CreateSchema creates missing tables, join tables last
func (m mngr) CreateSchema(ctx context.Context) error {
	models := []any{
		(*User)(nil),
		(*Role)(nil),
		(*Permission)(nil),
		(*UserToRole)(nil),
		(*RoleToPermission)(nil),
		(*PasswordReset)(nil),
	}

	return m.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, model := range models {
			if _, err := tx.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m mngr) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Roles() Roles {
	return m.roles
}

func (m mngr) PasswordResets() PasswordResets {
	return m.passwordResets
}
