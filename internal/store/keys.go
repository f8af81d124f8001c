package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"keymarket/internal/models"

	"github.com/jmoiron/sqlx"
)

// AddKeyTx lists a key for sale in the shop together with its price.
// key.ID and price.ID are filled in. ErrDBDuplicate if the key value exists.
func (s *Store) AddKeyTx(ctx context.Context, shopID int64, key *models.Key, price *models.Price) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.GetContext(ctx, &key.ID, tx.Rebind(`
		INSERT INTO keys (key_value, game_id, status, shop_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING key_id`),
		key.Value, key.GameID, models.KeyStatusAvailable, shopID, key.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDBDuplicate
		}
		return fmt.Errorf("failed to insert key: %w", err)
	}
	key.Status = models.KeyStatusAvailable
	key.ShopID = &shopID

	price.KeyID = &key.ID
	err = tx.GetContext(ctx, &price.ID, tx.Rebind(`
		INSERT INTO prices (key_id, price, start_date, end_date)
		VALUES (?, ?, ?, ?)
		RETURNING price_id`),
		key.ID, price.Amount, price.StartDate, price.EndDate)
	if err != nil {
		return fmt.Errorf("failed to insert price: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		tx.Rebind("INSERT INTO shop_keys (shop_id, key_id) VALUES (?, ?)"), shopID, key.ID)
	if err != nil {
		return fmt.Errorf("failed to link key to shop: %w", err)
	}

	return tx.Commit()
}

// GetKeyByID retrieves a key by ID
func (s *Store) GetKeyByID(ctx context.Context, id int64) (*models.Key, error) {
	var key models.Key
	err := s.db.GetContext(ctx, &key, s.db.Rebind(`
		SELECT key_id, key_value, game_id, status, shop_id, created_at
		FROM keys WHERE key_id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDBNotFound
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// ListAvailableKeys retrieves every key currently on sale
func (s *Store) ListAvailableKeys(ctx context.Context) ([]models.AvailableKey, error) {
	keys := []models.AvailableKey{}
	err := s.db.SelectContext(ctx, &keys, s.db.Rebind(`
		SELECT k.key_id, g.game_id, g.title AS game_title, p.name AS platform_name,
		       sh.shop_id, sh.name AS shop_name
		FROM keys k
		JOIN games g ON g.game_id = k.game_id
		JOIN platforms p ON p.platform_id = g.platform_id
		JOIN shops sh ON sh.shop_id = k.shop_id
		WHERE k.status = ?
		ORDER BY g.title, k.key_id`), models.KeyStatusAvailable)
	return keys, err
}

// SellerKeys retrieves every key the shop has listed, sold ones included
func (s *Store) SellerKeys(ctx context.Context, shopID int64) ([]models.SellerKey, error) {
	keys := []models.SellerKey{}
	err := s.db.SelectContext(ctx, &keys, s.db.Rebind(`
		SELECT k.key_id, k.key_value, g.title AS game_title, p.name AS platform_name, k.status
		FROM shop_keys sk
		JOIN keys k ON k.key_id = sk.key_id
		JOIN games g ON g.game_id = k.game_id
		JOIN platforms p ON p.platform_id = g.platform_id
		WHERE sk.shop_id = ?
		ORDER BY k.key_id`), shopID)
	return keys, err
}

// PricesForKeys retrieves the price history of the given keys
func (s *Store) PricesForKeys(ctx context.Context, keyIDs []int64) ([]models.Price, error) {
	if len(keyIDs) == 0 {
		return []models.Price{}, nil
	}

	query, args, err := sqlx.In(`
		SELECT price_id, key_id, price, start_date, end_date
		FROM prices WHERE key_id IN (?)
		ORDER BY start_date, price_id`, keyIDs)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var prices []models.Price
	err = s.db.SelectContext(ctx, &prices, query, args...)
	return prices, err
}

type gameStock struct {
	GameID int64 `db:"game_id"`
	Count  int   `db:"cnt"`
}

// CountAvailableByGame returns the number of available keys per game.
// Games without available keys are absent from the map.
func (s *Store) CountAvailableByGame(ctx context.Context) (map[int64]int, error) {
	var rows []gameStock
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT game_id, COUNT(*) AS cnt
		FROM keys WHERE status = ?
		GROUP BY game_id`), models.KeyStatusAvailable)
	if err != nil {
		return nil, err
	}

	stock := make(map[int64]int, len(rows))
	for _, r := range rows {
		stock[r.GameID] = r.Count
	}
	return stock, nil
}

// CountAvailableForGame returns the number of available keys for one game
func (s *Store) CountAvailableForGame(ctx context.Context, gameID int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, s.db.Rebind(
		"SELECT COUNT(*) FROM keys WHERE game_id = ? AND status = ?"),
		gameID, models.KeyStatusAvailable)
	return count, err
}
