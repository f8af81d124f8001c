package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"keymarket/internal/models"
)

// CreateShopTx opens a shop for the seller and clears the seller's pending
// row in one transaction. ErrDBShopExists if the seller already has a shop.
func (s *Store) CreateShopTx(ctx context.Context, shop *models.Shop) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists bool
	err = tx.GetContext(ctx, &exists,
		tx.Rebind("SELECT EXISTS(SELECT 1 FROM shops WHERE seller_id = ?)"), shop.SellerID)
	if err != nil {
		return fmt.Errorf("failed to check existing shop: %w", err)
	}
	if exists {
		return ErrDBShopExists
	}

	err = tx.GetContext(ctx, &shop.ID,
		tx.Rebind("INSERT INTO shops (seller_id, name, created_at) VALUES (?, ?, ?) RETURNING shop_id"),
		shop.SellerID, shop.Name, shop.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDBShopExists
		}
		return fmt.Errorf("failed to insert shop: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		tx.Rebind("DELETE FROM pending_sellers WHERE user_id = ?"), shop.SellerID)
	if err != nil {
		return fmt.Errorf("failed to clear pending seller: %w", err)
	}

	return tx.Commit()
}

// GetShopBySeller retrieves the seller's shop
func (s *Store) GetShopBySeller(ctx context.Context, sellerID int64) (*models.Shop, error) {
	var shop models.Shop
	err := s.db.GetContext(ctx, &shop,
		s.db.Rebind("SELECT shop_id, seller_id, name, created_at FROM shops WHERE seller_id = ?"), sellerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDBNotFound
	}
	if err != nil {
		return nil, err
	}
	return &shop, nil
}
