package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
)

// Roles manages roles and the permissions they grant
type Roles interface {
	GetOrCreateTx(ctx context.Context, tx bun.IDB, name string) (*Role, error)
	GetByName(ctx context.Context, name string) (*Role, error)
	GetByNameTx(ctx context.Context, tx bun.IDB, name string) (*Role, error)
	GrantTx(ctx context.Context, tx bun.IDB, role string, perm Permission) (*Permission, error)
}

type roles struct {
	db *bun.DB
}

func NewRolesRepository(db *bun.DB) Roles {
	return &roles{db: db}
}

func (r *roles) GetByName(ctx context.Context, name string) (*Role, error) {
	return r.GetByNameTx(ctx, r.db, name)
}

// GetByNameTx loads the role with its permissions
func (r *roles) GetByNameTx(ctx context.Context, tx bun.IDB, name string) (*Role, error) {
	role := new(Role)
	err := tx.NewSelect().
		Model(role).
		Relation("Permissions").
		Where("?TableAlias.name = ?", name).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResourceNotFound
		}
		return nil, err
	}
	return role, nil
}

func (r *roles) GetOrCreateTx(ctx context.Context, tx bun.IDB, name string) (*Role, error) {
	role := new(Role)
	err := tx.NewSelect().
		Model(role).
		Where("?TableAlias.name = ?", name).
		Limit(1).
		Scan(ctx)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	role = &Role{Name: name}
	if _, err := tx.NewInsert().Model(role).Returning("*").Exec(ctx); err != nil {
		return nil, fmt.Errorf("create role %s: %w", name, err)
	}
	return role, nil
}

// GrantTx attaches a permission to a role, creating both when missing
func (r *roles) GrantTx(ctx context.Context, tx bun.IDB, roleName string, perm Permission) (*Permission, error) {
	role, err := r.GetOrCreateTx(ctx, tx, roleName)
	if err != nil {
		return nil, err
	}

	record := new(Permission)
	err = tx.NewSelect().
		Model(record).
		Where("?TableAlias.action = ?", perm.Action).
		Where("?TableAlias.resource = ?", perm.Resource).
		Limit(1).
		Scan(ctx)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		record = &Permission{Action: perm.Action, Resource: perm.Resource, Description: perm.Description}
		if _, err := tx.NewInsert().Model(record).Returning("*").Exec(ctx); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	link := &RoleToPermission{RoleID: role.ID, PermissionID: record.ID}
	if _, err := tx.NewInsert().Model(link).Ignore().Exec(ctx); err != nil {
		return nil, err
	}

	return record, nil
}
