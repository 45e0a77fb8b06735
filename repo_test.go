package auth_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	auth "github.com/goliatone/go-noire"
)

func newTestRepo(t *testing.T) auth.RepositoryManager {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	repo := auth.NewRepositoryManager(db)
	require.NoError(t, repo.Validate())
	require.NoError(t, repo.CreateSchema(context.Background()))
	return repo
}

func createUser(t *testing.T, repo auth.RepositoryManager, u *auth.User) *auth.User {
	t.Helper()
	out, err := repo.Users().Create(context.Background(), u)
	require.NoError(t, err)
	return out
}

func TestUsers_CreateKeepsRoleOrder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u := createUser(t, repo, &auth.User{
		Username:     "john",
		Email:        "john@example.com",
		PasswordHash: hashOf("pw"),
		Active:       true,
		Roles:        []auth.Role{{Name: "editor"}, {Name: "admin"}, {Name: "user"}},
	})
	assert.NotZero(t, u.ID)
	assert.Equal(t, []string{"editor", "admin", "user"}, u.RoleNames())

	err := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return repo.Users().AssignRolesTx(ctx, tx, u.ID, "auditor", "admin")
	})
	require.NoError(t, err)

	got, err := repo.Users().GetByUsername(ctx, "john")
	require.NoError(t, err)
	assert.Equal(t, []string{"editor", "admin", "user", "auditor"}, got.RoleNames())
}

func TestUsers_CreateDuplicate(t *testing.T) {
	repo := newTestRepo(t)
	createUser(t, repo, &auth.User{Username: "john", Email: "john@example.com"})

	_, err := repo.Users().Create(context.Background(), &auth.User{Username: "other", Email: "john@example.com"})
	assert.ErrorIs(t, err, auth.ErrUserExists)

	_, err = repo.Users().Create(context.Background(), &auth.User{Username: "john", Email: "new@example.com"})
	assert.ErrorIs(t, err, auth.ErrUserExists)

	_, err = repo.Users().Create(context.Background(), nil)
	assert.Error(t, err)
}

func TestUsers_Lookups(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	createUser(t, repo, &auth.User{Username: "john", Email: "John@Example.com", Active: true})
	createUser(t, repo, &auth.User{Username: "invited@example.com", Email: "invited@example.com"})

	u, err := repo.Users().GetActiveByEmail(ctx, "john@EXAMPLE.com")
	require.NoError(t, err)
	assert.Equal(t, "john", u.Username)

	_, err = repo.Users().GetActiveByEmail(ctx, "invited@example.com")
	assert.ErrorIs(t, err, auth.ErrResourceNotFound)

	_, err = repo.Users().GetByID(ctx, 999)
	assert.ErrorIs(t, err, auth.ErrResourceNotFound)

	_, err = repo.Users().GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, auth.ErrResourceNotFound)
}

func TestUsers_CompleteRegistrationOnlyOnce(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	invited := createUser(t, repo, &auth.User{Username: "jane@example.com", Email: "jane@example.com"})

	complete := func(username string) (*auth.User, error) {
		var out *auth.User
		err := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			var err error
			out, err = repo.Users().CompleteRegistrationTx(ctx, tx, invited.ID, username, hashOf("pw"))
			return err
		})
		return out, err
	}

	u, err := complete("jane")
	require.NoError(t, err)
	assert.True(t, u.Active)
	assert.Equal(t, "jane", u.Username)

	_, err = complete("mallory")
	assert.ErrorIs(t, err, auth.ErrResourceNotFound)

	got, err := repo.Users().GetByID(ctx, invited.ID)
	require.NoError(t, err)
	assert.Equal(t, "jane", got.Username)
}

func TestUsers_ResetPasswordBumpsVersion(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u := createUser(t, repo, &auth.User{Username: "john", Email: "john@example.com", Active: true})
	assert.Nil(t, u.TokenVersion)

	reset := func(id int64, fallback int) error {
		return repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return repo.Users().ResetPasswordTx(ctx, tx, id, hashOf("new-pw"), fallback)
		})
	}

	require.NoError(t, reset(u.ID, 0))
	require.NoError(t, reset(u.ID, 0))

	got, err := repo.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.TokenVersion)
	assert.Equal(t, 2, *got.TokenVersion)

	ok, err := auth.NewBcryptHasher().Compare("new-pw", got.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.ErrorIs(t, reset(999, 0), auth.ErrResourceNotFound)

	t.Run("untracked user starts from the configured version", func(t *testing.T) {
		v := createUser(t, repo, &auth.User{Username: "jane", Email: "jane@example.com", Active: true})
		require.NoError(t, reset(v.ID, 3))

		got, err := repo.Users().GetByID(ctx, v.ID)
		require.NoError(t, err)
		require.NotNil(t, got.TokenVersion)
		assert.Equal(t, 4, *got.TokenVersion)

		// once tracked the fallback no longer applies
		require.NoError(t, reset(v.ID, 3))
		got, err = repo.Users().GetByID(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, 5, *got.TokenVersion)
	})
}

func TestPasswordResets_ConsumeOnce(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u := createUser(t, repo, &auth.User{Username: "john", Email: "john@example.com", Active: true})

	var created *auth.PasswordReset
	err := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		created, err = repo.PasswordResets().CreateTx(ctx, tx, &auth.PasswordReset{
			ID:     uuid.New(),
			UserID: u.ID,
			Email:  u.Email,
			Status: auth.ResetRequestedStatus,
		})
		return err
	})
	require.NoError(t, err)

	got, err := repo.PasswordResets().GetByID(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.UserID)
	assert.Equal(t, auth.ResetRequestedStatus, got.Status)
	assert.Nil(t, got.ResetedAt)

	consume := func(id uuid.UUID, userID int64) error {
		return repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			return repo.PasswordResets().ConsumeTx(ctx, tx, id, userID)
		})
	}

	assert.ErrorIs(t, consume(created.ID, u.ID+1), auth.ErrResourceNotFound)
	require.NoError(t, consume(created.ID, u.ID))
	assert.ErrorIs(t, consume(created.ID, u.ID), auth.ErrResourceNotFound)
	assert.ErrorIs(t, consume(uuid.New(), u.ID), auth.ErrResourceNotFound)

	got, err = repo.PasswordResets().GetByID(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, auth.ResetChangedStatus, got.Status)
	assert.NotNil(t, got.ResetedAt)
}

func TestRoles_Grant(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	perm := auth.Permission{Action: "read", Resource: "users"}
	err := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := repo.Roles().GrantTx(ctx, tx, "admin", perm); err != nil {
			return err
		}
		_, err := repo.Roles().GrantTx(ctx, tx, "admin", perm)
		return err
	})
	require.NoError(t, err)

	role, err := repo.Roles().GetByName(ctx, "admin")
	require.NoError(t, err)
	require.Len(t, role.Permissions, 1)
	assert.Equal(t, "users", role.Permissions[0].Resource)

	_, err = repo.Roles().GetByName(ctx, "ghost")
	assert.ErrorIs(t, err, auth.ErrResourceNotFound)
}

func TestUserProvider(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	provider := auth.NewUserProvider(repo.Users()).WithLogger(nil)

	u := createUser(t, repo, &auth.User{
		Username:     "john",
		Email:        "john@example.com",
		PasswordHash: hashOf("pw"),
		Active:       true,
		Roles:        []auth.Role{{Name: auth.RoleUser}},
	})

	identity, err := provider.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{auth.RoleUser}, identity.Roles)
	assert.Nil(t, identity.Version)

	account, err := provider.FindByUsername(ctx, "john")
	require.NoError(t, err)
	assert.NotEmpty(t, account.PasswordHash)

	account, err = provider.FindActiveByEmail(ctx, "JOHN@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, account.ID)

	_, err = provider.FindByID(ctx, 404)
	assert.ErrorIs(t, err, auth.ErrResourceNotFound)
}

func TestRepositoryManager_Ping(t *testing.T) {
	repo := newTestRepo(t)
	assert.NoError(t, repo.Ping(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, repo.RunInTx(ctx, nil, func(context.Context, bun.Tx) error { return nil }), context.Canceled)
}
