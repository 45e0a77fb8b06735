package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type Users interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error)
	GetActiveByEmail(ctx context.Context, email string) (*User, error)
	GetActiveByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)

	Create(ctx context.Context, record *User) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error)
	AssignRolesTx(ctx context.Context, tx bun.IDB, userID int64, roles ...string) error

	CompleteRegistrationTx(ctx context.Context, tx bun.IDB, id int64, username, passwordHash string) (*User, error)
	ResetPasswordTx(ctx context.Context, tx bun.IDB, id int64, passwordHash string, fallbackVersion int) error
}

type users struct {
	db    *bun.DB
	roles Roles
}

var _ Users = (*users)(nil)

func NewUsersRepository(db *bun.DB, roles Roles) Users {
	return &users{db: db, roles: roles}
}

func (a *users) GetByID(ctx context.Context, id int64) (*User, error) {
	return a.GetByIDTx(ctx, a.db, id)
}

func (a *users) GetByIDTx(ctx context.Context, tx bun.IDB, id int64) (*User, error) {
	return a.getOneTx(ctx, tx, "?TableAlias.id = ?", id)
}

func (a *users) GetByUsername(ctx context.Context, username string) (*User, error) {
	return a.GetByUsernameTx(ctx, a.db, username)
}

func (a *users) GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error) {
	return a.getOneTx(ctx, tx, "?TableAlias.username = ?", username)
}

func (a *users) GetActiveByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetActiveByEmailTx(ctx, a.db, email)
}

func (a *users) GetActiveByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	return a.getOneTx(ctx, tx, "lower(?TableAlias.email) = ? AND ?TableAlias.active = ?", strings.ToLower(email), true)
}

func (a *users) getOneTx(ctx context.Context, tx bun.IDB, where string, args ...any) (*User, error) {
	record := new(User)
	err := tx.NewSelect().
		Model(record).
		Where(where, args...).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResourceNotFound
		}
		return nil, err
	}

	if record.Roles, err = a.rolesOfTx(ctx, tx, record.ID); err != nil {
		return nil, err
	}

	return record, nil
}

// rolesOfTx loads roles in the order they were granted
func (a *users) rolesOfTx(ctx context.Context, tx bun.IDB, userID int64) ([]Role, error) {
	var roles []Role
	err := tx.NewSelect().
		Model(&roles).
		Join("JOIN users_roles AS ur ON ur.role_id = ?TableAlias.id").
		Where("ur.user_id = ?", userID).
		OrderExpr("ur.id ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load roles: %w", err)
	}
	return roles, nil
}

func (a *users) Create(ctx context.Context, record *User) (*User, error) {
	var out *User
	err := a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		out, err = a.CreateTx(ctx, tx, record)
		return err
	})
	return out, err
}

// CreateTx inserts the user and grants the roles listed in record.Roles
func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error) {
	if record == nil {
		return nil, errors.New("user record is nil")
	}

	exists, err := tx.NewSelect().
		Model((*User)(nil)).
		Where("?TableAlias.username = ?", record.Username).
		WhereOr("?TableAlias.email = ?", record.Email).
		Exists(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrUserExists, record.Username)
	}

	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now

	roles := record.RoleNames()
	record.Roles = nil

	if _, err := tx.NewInsert().Model(record).Returning("*").Exec(ctx); err != nil {
		return nil, err
	}

	if err := a.AssignRolesTx(ctx, tx, record.ID, roles...); err != nil {
		return nil, err
	}

	return a.GetByIDTx(ctx, tx, record.ID)
}

func (a *users) AssignRolesTx(ctx context.Context, tx bun.IDB, userID int64, roles ...string) error {
	for _, name := range roles {
		role, err := a.roles.GetOrCreateTx(ctx, tx, name)
		if err != nil {
			return err
		}

		link := &UserToRole{UserID: userID, RoleID: role.ID}
		if _, err := tx.NewInsert().Model(link).Ignore().Exec(ctx); err != nil {
			return fmt.Errorf("assign role %s: %w", name, err)
		}
	}
	return nil
}

// CompleteRegistrationTx sets the credentials of an invited user and
// activates the account. Active accounts are left untouched and reported
// as ErrResourceNotFound.
func (a *users) CompleteRegistrationTx(ctx context.Context, tx bun.IDB, id int64, username, passwordHash string) (*User, error) {
	res, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("username = ?", username).
		Set("password_hash = ?", passwordHash).
		Set("active = ?", true).
		Set("updated_at = ?", time.Now()).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.active = ?", false).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrResourceNotFound
	}

	return a.GetByIDTx(ctx, tx, id)
}

// ResetPasswordTx stores a new hash and bumps the token version so tokens
// issued before the reset stop working. Users without a version start from
// fallbackVersion, the version their tokens were issued with.
func (a *users) ResetPasswordTx(ctx context.Context, tx bun.IDB, id int64, passwordHash string, fallbackVersion int) error {
	res, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("token_version = COALESCE(token_version, ?) + 1", fallbackVersion).
		Set("updated_at = ?", time.Now()).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return ErrResourceNotFound
	}
	return nil
}
