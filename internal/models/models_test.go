package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPriceActiveAt(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	bounded := Price{Amount: decimal.RequireFromString("9.99"), StartDate: start, EndDate: &end}
	open := Price{Amount: decimal.RequireFromString("4.50"), StartDate: start}

	assert.False(t, bounded.ActiveAt(start.Add(-time.Second)))
	assert.True(t, bounded.ActiveAt(start))
	assert.True(t, bounded.ActiveAt(end.Add(-time.Second)))
	assert.False(t, bounded.ActiveAt(end), "end date is exclusive")

	assert.True(t, open.ActiveAt(start.AddDate(50, 0, 0)))
}

func TestValidRole(t *testing.T) {
	assert.True(t, ValidRole(RoleBuyer))
	assert.True(t, ValidRole(RoleSeller))
	assert.True(t, ValidRole(RoleAdmin))
	assert.False(t, ValidRole(""))
	assert.False(t, ValidRole("moderator"))
}
