package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RoleAdmin is the scope required by administrative routes
const RoleAdmin = "admin"

// RoleUser is the scope given to registered users
const RoleUser = "user"

// User is the user model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            int64     `bun:"id,pk,autoincrement" json:"id"`
	Username      string    `bun:"username,notnull,unique" json:"username"`
	Email         string    `bun:"email,notnull,unique" json:"email"`
	Name          string    `bun:"name" json:"name,omitempty"`
	PasswordHash  string    `bun:"password_hash" json:"-"`
	Active        bool      `bun:"active,notnull" json:"active"`
	TokenVersion  *int      `bun:"token_version" json:"-"`
	Roles         []Role    `bun:"m2m:users_roles,join:User=Role" json:"roles,omitempty"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// Role groups permissions, its name is the scope it grants
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:rol"`
	ID            int64        `bun:"id,pk,autoincrement" json:"id"`
	Name          string       `bun:"name,notnull,unique" json:"name"`
	Permissions   []Permission `bun:"m2m:roles_permissions,join:Role=Permission" json:"permissions,omitempty"`
}

// Permission is an action allowed on a resource
type Permission struct {
	bun.BaseModel `bun:"table:permissions,alias:prm"`
	ID            int64  `bun:"id,pk,autoincrement" json:"id"`
	Action        string `bun:"action,notnull,unique:action_resource" json:"action"`
	Resource      string `bun:"resource,notnull,unique:action_resource" json:"resource"`
	Description   string `bun:"description,nullzero" json:"description,omitempty"`
}

// UserToRole is the users_roles join table. Its id keeps the order in
// which roles were granted.
type UserToRole struct {
	bun.BaseModel `bun:"table:users_roles,alias:ur"`
	ID            int64 `bun:"id,pk,autoincrement"`
	UserID        int64 `bun:"user_id,notnull,unique:user_role"`
	User          *User `bun:"rel:belongs-to,join:user_id=id"`
	RoleID        int64 `bun:"role_id,notnull,unique:user_role"`
	Role          *Role `bun:"rel:belongs-to,join:role_id=id"`
}

// RoleToPermission is the roles_permissions join table
type RoleToPermission struct {
	bun.BaseModel `bun:"table:roles_permissions,alias:rp"`
	RoleID        int64       `bun:"role_id,pk"`
	Role          *Role       `bun:"rel:belongs-to,join:role_id=id"`
	PermissionID  int64       `bun:"permission_id,pk"`
	Permission    *Permission `bun:"rel:belongs-to,join:permission_id=id"`
}

const (
	ResetRequestedStatus = "requested"
	ResetChangedStatus   = "changed"
)

// PasswordReset tracks one reset request. The reset token carries its id,
// and the record stops accepting tokens once its status leaves requested.
type PasswordReset struct {
	bun.BaseModel `bun:"table:password_reset,alias:pwdr"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	UserID        int64      `bun:"user_id,notnull" json:"user_id"`
	User          *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Status        string     `bun:"status,notnull" json:"status"`
	Email         string     `bun:"email,notnull" json:"email"`
	ResetedAt     *time.Time `bun:"reseted_at,nullzero" json:"reseted_at,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// RoleNames returns the user's role names in the order they were loaded
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}
