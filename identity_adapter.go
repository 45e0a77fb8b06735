package auth

// Identity is the read only projection of a user the guard works with
type Identity struct {
	ID       int64
	Username string
	Email    string
	Active   bool
	// Version is nil when the user does not track a token version
	Version *int
	Roles   []string
}

// Account is an Identity plus the secret needed to log in
type Account struct {
	Identity
	PasswordHash string
}

// HasRole reports whether name is one of the identity roles
func (i *Identity) HasRole(name string) bool {
	for _, r := range i.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// ToIdentity projects a loaded user
func (u *User) ToIdentity() *Identity {
	if u == nil {
		return nil
	}

	id := &Identity{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Active:   u.Active,
		Roles:    u.RoleNames(),
	}
	if u.TokenVersion != nil {
		v := *u.TokenVersion
		id.Version = &v
	}
	return id
}

// ToAccount projects a loaded user including its password hash
func (u *User) ToAccount() *Account {
	if u == nil {
		return nil
	}
	return &Account{
		Identity:     *u.ToIdentity(),
		PasswordHash: u.PasswordHash,
	}
}
