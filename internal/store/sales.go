package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"keymarket/internal/models"
)

const soldKeySelect = `
	SELECT s.sale_id, s.sale_date, k.key_id, k.key_value, g.game_id,
	       g.title AS game_title, p.name AS platform_name
	FROM sales s
	JOIN sales_details sd ON sd.sale_id = s.sale_id
	JOIN keys k ON k.key_id = sd.key_id
	JOIN games g ON g.game_id = k.game_id
	JOIN platforms p ON p.platform_id = g.platform_id`

// PurchaseKeyTx sells an available key to the buyer. The status flip is a
// conditional update, so of two concurrent purchases of one key only the
// first to update the row succeeds; the other gets ErrDBKeyNotAvailable.
// The sale, its detail row and the key update commit together or not at all.
func (s *Store) PurchaseKeyTx(ctx context.Context, buyerID, keyID int64, saleDate time.Time) (*models.SoldKey, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE keys SET status = ?, shop_id = NULL
		WHERE key_id = ? AND status = ?`),
		models.KeyStatusSold, keyID, models.KeyStatusAvailable)
	if err != nil {
		return nil, fmt.Errorf("failed to mark key as sold: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		var status string
		err = tx.GetContext(ctx, &status, tx.Rebind("SELECT status FROM keys WHERE key_id = ?"), keyID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDBNotFound
		}
		if err != nil {
			return nil, err
		}
		return nil, ErrDBKeyNotAvailable
	}

	var saleID int64
	err = tx.GetContext(ctx, &saleID,
		tx.Rebind("INSERT INTO sales (buyer_id, sale_date) VALUES (?, ?) RETURNING sale_id"),
		buyerID, saleDate)
	if err != nil {
		return nil, fmt.Errorf("failed to insert sale: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		tx.Rebind("INSERT INTO sales_details (sale_id, key_id) VALUES (?, ?)"), saleID, keyID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDBKeyNotAvailable
		}
		return nil, fmt.Errorf("failed to insert sale detail: %w", err)
	}

	var sold models.SoldKey
	err = tx.GetContext(ctx, &sold, tx.Rebind(soldKeySelect+" WHERE s.sale_id = ?"), saleID)
	if err != nil {
		return nil, fmt.Errorf("failed to read sale: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &sold, nil
}

// PurchasesByBuyer retrieves a buyer's purchase history, newest first
func (s *Store) PurchasesByBuyer(ctx context.Context, buyerID int64) ([]models.SoldKey, error) {
	sold := []models.SoldKey{}
	err := s.db.SelectContext(ctx, &sold,
		s.db.Rebind(soldKeySelect+" WHERE s.buyer_id = ? ORDER BY s.sale_date DESC, s.sale_id DESC"), buyerID)
	return sold, err
}

// SoldKeysForGame retrieves every sold key of a game in sale order
func (s *Store) SoldKeysForGame(ctx context.Context, gameID int64) ([]models.SoldKey, error) {
	sold := []models.SoldKey{}
	err := s.db.SelectContext(ctx, &sold,
		s.db.Rebind(soldKeySelect+" WHERE g.game_id = ? ORDER BY s.sale_date, s.sale_id"), gameID)
	return sold, err
}
