package service

import (
	"context"
	"testing"
	"time"

	"keymarket/internal/models"
	"keymarket/internal/redisclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListUsersRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	buyer := env.register(t, "alice", models.RoleBuyer)
	admin := env.register(t, "root", models.RoleAdmin)

	_, err := env.admin.ListUsers(ctx, buyer)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.admin.ListPendingSellers(ctx, buyer)
	assert.ErrorIs(t, err, ErrForbidden)

	users, err := env.admin.ListUsers(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestDeleteSeller(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	seller, game, keys := env.seedListing(t, "sam", "5", "K-1", "K-2")
	buyer := env.register(t, "alice", models.RoleBuyer)
	admin := env.register(t, "root", models.RoleAdmin)

	_, err := env.purchase.Purchase(ctx, buyer, keys[0].ID)
	require.NoError(t, err)
	require.NoError(t, env.redis.SaveSession(ctx, "sam-token",
		&redisclient.Session{UserID: seller.UserID, Role: models.RoleSeller}, time.Hour))

	require.NoError(t, env.admin.DeleteUser(ctx, admin, seller.UserID))

	_, err = env.auth.Authenticate(ctx, "sam", "secret-pw")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = env.auth.ResolveSession(ctx, "sam-token")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	assert.Equal(t, 0, env.countRows(t, "shops"))
	assert.Equal(t, 1, env.countRows(t, "keys"), "sold key stays")
	assert.Equal(t, 1, env.countRows(t, "sales"))

	stock, err := env.inventory.GameStock(ctx, game.ID)
	require.NoError(t, err)
	assert.Zero(t, stock)

	history, err := env.sales.BuyerPurchases(ctx, buyer)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	events := env.sink.ofType(models.EventTypeUserDeleted)
	require.Len(t, events, 1)
	assert.Equal(t, float64(seller.UserID), events[0].Value["user_id"])
}

func TestDeleteUserGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.register(t, "root", models.RoleAdmin)
	other := env.register(t, "root2", models.RoleAdmin)
	buyer := env.register(t, "alice", models.RoleBuyer)

	assert.ErrorIs(t, env.admin.DeleteUser(ctx, admin, admin.UserID), ErrConflict)
	assert.ErrorIs(t, env.admin.DeleteUser(ctx, admin, other.UserID), ErrConflict)
	assert.ErrorIs(t, env.admin.DeleteUser(ctx, admin, 999), ErrNotFound)
	assert.ErrorIs(t, env.admin.DeleteUser(ctx, buyer, admin.UserID), ErrForbidden)

	require.NoError(t, env.admin.DeleteUser(ctx, admin, buyer.UserID))
	assert.Equal(t, 2, env.countRows(t, "users"))
}
