package service

import (
	"context"
	"testing"
	"time"

	"keymarket/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterThenAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, role := range []string{models.RoleBuyer, models.RoleSeller, models.RoleAdmin} {
		user, err := env.auth.Register(ctx, "user-"+role, "correct-horse", role)
		require.NoError(t, err)
		assert.NotEqual(t, "correct-horse", user.Password)

		id, err := env.auth.Authenticate(ctx, "user-"+role, "correct-horse")
		require.NoError(t, err)
		assert.Equal(t, user.ID, id.UserID)
		assert.Equal(t, role, id.Role)
	}

	assert.Len(t, env.sink.ofType(models.EventTypeUserRegistered), 3)
}

func TestAuthenticateFailuresAreUniform(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "alice", models.RoleBuyer)

	_, errWrongPassword := env.auth.Authenticate(ctx, "alice", "not-her-password")
	_, errUnknownUser := env.auth.Authenticate(ctx, "nobody", "whatever")

	assert.ErrorIs(t, errWrongPassword, ErrNotFound)
	assert.ErrorIs(t, errUnknownUser, ErrNotFound)
	assert.Equal(t, errWrongPassword.Error(), errUnknownUser.Error())
}

func TestRegisterDuplicateUsername(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "alice", models.RoleBuyer)

	_, err := env.auth.Register(ctx, "alice", "another-pw", models.RoleSeller)
	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, err, ErrUsernameTaken)
	assert.Equal(t, 0, env.countRows(t, "pending_sellers"))
}

func TestUsernameWhitespaceIsTrimmedEverywhere(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.auth.Register(ctx, " bob ", "secret-pw", models.RoleBuyer)
	require.NoError(t, err)
	assert.Equal(t, "bob", user.Username)

	for _, name := range []string{" bob ", "bob", "\tbob"} {
		id, err := env.auth.Authenticate(ctx, name, "secret-pw")
		require.NoError(t, err, "%q", name)
		assert.Equal(t, user.ID, id.UserID)

		sess, err := env.auth.Login(ctx, name, "secret-pw")
		require.NoError(t, err, "%q", name)
		assert.Equal(t, "bob", sess.Identity.Username)
	}

	_, err = env.auth.Register(ctx, "bob  ", "secret-pw", models.RoleBuyer)
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
		role     string
	}{
		{"empty username", "", "secret-pw", models.RoleBuyer},
		{"blank username", "   ", "secret-pw", models.RoleBuyer},
		{"short password", "carol", "123", models.RoleBuyer},
		{"unknown role", "carol", "secret-pw", "moderator"},
		{"empty role", "carol", "secret-pw", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.auth.Register(ctx, tt.username, tt.password, tt.role)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
	assert.Equal(t, 0, env.countRows(t, "users"))
}

func TestSellerRegistrationIsPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.register(t, "bob", models.RoleBuyer)
	seller := env.register(t, "sam", models.RoleSeller)

	admin := env.register(t, "root", models.RoleAdmin)
	pending, err := env.admin.ListPendingSellers(ctx, admin)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, seller.UserID, pending[0].UserID)

	_, err = env.shops.CreateShop(ctx, seller, "Sam's Keys")
	require.NoError(t, err)

	pending, err = env.admin.ListPendingSellers(ctx, admin)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestLoginSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	buyer := env.register(t, "alice", models.RoleBuyer)

	sess, err := env.auth.Login(ctx, "alice", "secret-pw")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, buyer, sess.Identity)

	id, err := env.auth.ResolveSession(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, buyer, *id)

	require.NoError(t, env.auth.Logout(ctx, sess.Token))
	_, err = env.auth.ResolveSession(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = env.auth.ResolveSession(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestLoginThrottling(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "alice", models.RoleBuyer)

	for i := 0; i < 3; i++ {
		_, err := env.auth.Login(ctx, "alice", "wrong-password")
		assert.ErrorIs(t, err, ErrNotFound)
	}

	_, err := env.auth.Login(ctx, "alice", "secret-pw")
	assert.ErrorIs(t, err, ErrTooManyAttempts)

	env.mr.FastForward(2 * time.Minute)
	_, err = env.auth.Login(ctx, "alice", "secret-pw")
	assert.NoError(t, err)
}

func TestLoginWithoutRedis(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "alice", models.RoleBuyer)
	env.mr.Close()

	_, err := env.auth.Login(ctx, "alice", "secret-pw")
	assert.ErrorIs(t, err, ErrStorage, "no session store, no session")

	_, err = env.auth.Login(ctx, "alice", "wrong-password")
	assert.ErrorIs(t, err, ErrNotFound, "credentials are still checked")
}

func TestEnsureAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.auth.EnsureAdmin(ctx, "admin", "")
	assert.ErrorIs(t, err, ErrValidation)

	created, err := env.auth.EnsureAdmin(ctx, "admin", "admin-pw")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = env.auth.EnsureAdmin(ctx, "admin2", "admin-pw")
	require.NoError(t, err)
	assert.False(t, created)

	id, err := env.auth.Authenticate(ctx, "admin", "admin-pw")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, id.Role)
}
