package service

import (
	"context"
	"testing"
	"time"

	"keymarket/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse(saleDayLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr(t time.Time) *time.Time { return &t }

func TestAggregateDailySales(t *testing.T) {
	k1, k2, k3 := int64(1), int64(2), int64(3)
	prices := []models.Price{
		{KeyID: &k1, Amount: decimal.RequireFromString("10.00"), StartDate: day("2024-01-01"), EndDate: ptr(day("2024-01-10"))},
		{KeyID: &k1, Amount: decimal.RequireFromString("8.00"), StartDate: day("2024-01-10")},
		{KeyID: &k2, Amount: decimal.RequireFromString("15.50"), StartDate: day("2024-01-01")},
		{KeyID: &k3, Amount: decimal.RequireFromString("99.00"), StartDate: day("2024-06-01")},
	}
	sold := []models.SoldKey{
		{KeyID: 1, SaleDate: day("2024-01-10").Add(3 * time.Hour), GameTitle: "Hades", Platform: "PC"},
		{KeyID: 2, SaleDate: day("2024-01-10").Add(5 * time.Hour), GameTitle: "Hades", Platform: "PC"},
		{KeyID: 3, SaleDate: day("2024-01-02"), GameTitle: "Hades", Platform: "PC"},
	}

	stats := aggregateDailySales(sold, prices)
	require.Len(t, stats, 2)

	assert.Equal(t, "2024-01-02", stats[0].Date)
	assert.Equal(t, 1, stats[0].SoldKeys)
	assert.True(t, stats[0].TotalRevenue.IsZero(), "no price valid on the sale date")

	assert.Equal(t, "2024-01-10", stats[1].Date)
	assert.Equal(t, 2, stats[1].SoldKeys)
	assert.Equal(t, "23.5", stats[1].TotalRevenue.String())
}

func TestGameStatistics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	seller, game, keys := env.seedListing(t, "sam", "20", "K-1", "K-2", "K-3")
	buyer := env.register(t, "alice", models.RoleBuyer)
	for _, k := range keys[:2] {
		_, err := env.purchase.Purchase(ctx, buyer, k.ID)
		require.NoError(t, err)
	}

	stats, err := env.sales.GameStatistics(ctx, seller, game.ID)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, time.Now().UTC().Format(saleDayLayout), stats[0].Date)
	assert.Equal(t, 2, stats[0].SoldKeys)
	assert.True(t, stats[0].TotalRevenue.Equal(decimal.NewFromInt(40)))

	admin := env.register(t, "root", models.RoleAdmin)
	adminStats, err := env.sales.GameStatistics(ctx, admin, game.ID)
	require.NoError(t, err)
	assert.Equal(t, stats, adminStats)

	other, _, _ := env.seedListing(t, "olga", "1")
	_, err = env.sales.GameStatistics(ctx, other, game.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.sales.GameStatistics(ctx, buyer, game.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.sales.GameStatistics(ctx, admin, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBuyerPurchases(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _, keys := env.seedListing(t, "sam", "3.25", "K-1", "K-2")
	alice := env.register(t, "alice", models.RoleBuyer)
	bob := env.register(t, "bob", models.RoleBuyer)

	_, err := env.purchase.Purchase(ctx, alice, keys[0].ID)
	require.NoError(t, err)
	_, err = env.purchase.Purchase(ctx, bob, keys[1].ID)
	require.NoError(t, err)

	history, err := env.sales.BuyerPurchases(ctx, alice)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "K-1", history[0].KeyValue)
	require.NotNil(t, history[0].Price)
	assert.Equal(t, "3.25", history[0].Price.String())

	_, err = env.sales.BuyerPurchases(ctx, Identity{UserID: 1, Role: models.RoleSeller})
	assert.ErrorIs(t, err, ErrForbidden)
}
