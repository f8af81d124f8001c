package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Roles
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
	RoleAdmin  = "admin"
)

// Key statuses
const (
	KeyStatusAvailable = "available"
	KeyStatusSold      = "sold"
)

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleBuyer, RoleSeller, RoleAdmin:
		return true
	}
	return false
}

// User is a registered account. Password holds the bcrypt hash.
type User struct {
	ID        int64     `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	Password  string    `db:"password" json:"-"`
	Role      string    `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// PendingSeller is a seller account that has not opened a shop yet.
type PendingSeller struct {
	UserID    int64     `db:"user_id" json:"user_id"`
	Username  string    `db:"username" json:"username"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Platform struct {
	ID   int64  `db:"platform_id" json:"platform_id"`
	Name string `db:"name" json:"name"`
}

type Game struct {
	ID          int64      `db:"game_id" json:"game_id"`
	Title       string     `db:"title" json:"title"`
	Publisher   string     `db:"publisher" json:"publisher"`
	Genre       string     `db:"genre" json:"genre"`
	PlatformID  int64      `db:"platform_id" json:"platform_id"`
	Platform    string     `db:"platform" json:"platform,omitempty"`
	ReleaseDate *time.Time `db:"release_date" json:"release_date,omitempty"`
}

// Shop is a seller's storefront, one per seller.
type Shop struct {
	ID        int64     `db:"shop_id" json:"shop_id"`
	SellerID  int64     `db:"seller_id" json:"seller_id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Key is a redeemable code for one copy of a game.
type Key struct {
	ID        int64     `db:"key_id" json:"key_id"`
	Value     string    `db:"key_value" json:"key_value"`
	GameID    int64     `db:"game_id" json:"game_id"`
	Status    string    `db:"status" json:"status"`
	ShopID    *int64    `db:"shop_id" json:"shop_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Price is valid over [StartDate, EndDate); a nil EndDate never expires.
type Price struct {
	ID        int64           `db:"price_id" json:"price_id"`
	KeyID     *int64          `db:"key_id" json:"key_id,omitempty"`
	Amount    decimal.Decimal `db:"price" json:"price"`
	StartDate time.Time       `db:"start_date" json:"start_date"`
	EndDate   *time.Time      `db:"end_date" json:"end_date,omitempty"`
}

// ActiveAt reports whether the price window contains t.
func (p Price) ActiveAt(t time.Time) bool {
	if t.Before(p.StartDate) {
		return false
	}
	return p.EndDate == nil || t.Before(*p.EndDate)
}

type Sale struct {
	ID       int64     `db:"sale_id" json:"sale_id"`
	BuyerID  *int64    `db:"buyer_id" json:"buyer_id,omitempty"`
	SaleDate time.Time `db:"sale_date" json:"sale_date"`
}

type SaleDetail struct {
	SaleID int64 `db:"sale_id" json:"sale_id"`
	KeyID  int64 `db:"key_id" json:"key_id"`
}

// AvailableKey is a catalog listing row. The key value is withheld until purchase.
type AvailableKey struct {
	KeyID     int64            `db:"key_id" json:"key_id"`
	GameID    int64            `db:"game_id" json:"game_id"`
	GameTitle string           `db:"game_title" json:"game_title"`
	Platform  string           `db:"platform_name" json:"platform"`
	ShopID    int64            `db:"shop_id" json:"shop_id"`
	ShopName  string           `db:"shop_name" json:"shop_name"`
	Price     *decimal.Decimal `db:"-" json:"price,omitempty"`
}

// SellerKey is a key as seen by the shop that listed it.
type SellerKey struct {
	KeyID     int64  `db:"key_id" json:"key_id"`
	Value     string `db:"key_value" json:"key_value"`
	GameTitle string `db:"game_title" json:"game_title"`
	Platform  string `db:"platform_name" json:"platform"`
	Status    string `db:"status" json:"status"`
}

// SoldKey is one sold key joined with its sale, used for purchase history
// and revenue statistics.
type SoldKey struct {
	SaleID    int64     `db:"sale_id" json:"sale_id"`
	SaleDate  time.Time `db:"sale_date" json:"sale_date"`
	KeyID     int64     `db:"key_id" json:"key_id"`
	Value     string    `db:"key_value" json:"key_value"`
	GameID    int64     `db:"game_id" json:"game_id"`
	GameTitle string    `db:"game_title" json:"game_title"`
	Platform  string    `db:"platform_name" json:"platform"`
}

// PurchaseResult is returned to the buyer after a successful purchase.
type PurchaseResult struct {
	SaleID    int64            `json:"sale_id"`
	KeyID     int64            `json:"key_id"`
	KeyValue  string           `json:"key_value"`
	GameID    int64            `json:"game_id"`
	GameTitle string           `json:"game_title"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	SaleDate  time.Time        `json:"sale_date"`
}

// DailySales aggregates sold keys and revenue for one game on one day.
type DailySales struct {
	Date         string          `json:"date"`
	GameTitle    string          `json:"game_title"`
	Platform     string          `json:"platform"`
	SoldKeys     int             `json:"sold_keys"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
