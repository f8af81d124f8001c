package models

import "time"

// Event types
const (
	EventTypeUserRegistered = "USER_REGISTERED"
	EventTypeShopCreated    = "SHOP_CREATED"
	EventTypeKeyPurchased   = "KEY_PURCHASED"
	EventTypeUserDeleted    = "USER_DELETED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// UserRegisteredEvent published after an account is created
type UserRegisteredEvent struct {
	BaseEvent
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// ShopCreatedEvent published when a pending seller opens a shop
type ShopCreatedEvent struct {
	BaseEvent
	ShopID   int64  `json:"shop_id"`
	SellerID int64  `json:"seller_id"`
	Name     string `json:"name"`
}

// KeyPurchasedEvent published after the purchase transaction commits
type KeyPurchasedEvent struct {
	BaseEvent
	SaleID  int64  `json:"sale_id"`
	KeyID   int64  `json:"key_id"`
	GameID  int64  `json:"game_id"`
	BuyerID int64  `json:"buyer_id"`
	Price   string `json:"price,omitempty"`
}

// UserDeletedEvent published when an admin removes an account
type UserDeletedEvent struct {
	BaseEvent
	UserID    int64 `json:"user_id"`
	DeletedBy int64 `json:"deleted_by"`
}
