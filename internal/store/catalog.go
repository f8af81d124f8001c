package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"keymarket/internal/models"
)

const gameSelect = `
	SELECT g.game_id, g.title, g.publisher, g.genre, g.platform_id, p.name AS platform, g.release_date
	FROM games g
	JOIN platforms p ON p.platform_id = g.platform_id`

// ListPlatforms retrieves all platforms
func (s *Store) ListPlatforms(ctx context.Context) ([]models.Platform, error) {
	platforms := []models.Platform{}
	err := s.db.SelectContext(ctx, &platforms, "SELECT platform_id, name FROM platforms ORDER BY platform_id")
	return platforms, err
}

// PlatformExists reports whether the platform ID is known
func (s *Store) PlatformExists(ctx context.Context, platformID int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		s.db.Rebind("SELECT EXISTS(SELECT 1 FROM platforms WHERE platform_id = ?)"), platformID)
	return exists, err
}

// ListGames retrieves all games ordered by title
func (s *Store) ListGames(ctx context.Context) ([]models.Game, error) {
	games := []models.Game{}
	err := s.db.SelectContext(ctx, &games, gameSelect+" ORDER BY g.title, g.game_id")
	return games, err
}

// GetGameByID retrieves a game by ID
func (s *Store) GetGameByID(ctx context.Context, id int64) (*models.Game, error) {
	var game models.Game
	err := s.db.GetContext(ctx, &game, s.db.Rebind(gameSelect+" WHERE g.game_id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDBNotFound
	}
	if err != nil {
		return nil, err
	}
	return &game, nil
}

// GamesByShop retrieves the games a shop sells
func (s *Store) GamesByShop(ctx context.Context, shopID int64) ([]models.Game, error) {
	games := []models.Game{}
	err := s.db.SelectContext(ctx, &games, s.db.Rebind(gameSelect+`
		JOIN shop_games sg ON sg.game_id = g.game_id
		WHERE sg.shop_id = ?
		ORDER BY g.title`), shopID)
	return games, err
}

// ShopSellsGame reports whether the game is linked to the shop
func (s *Store) ShopSellsGame(ctx context.Context, shopID, gameID int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		s.db.Rebind("SELECT EXISTS(SELECT 1 FROM shop_games WHERE shop_id = ? AND game_id = ?)"),
		shopID, gameID)
	return exists, err
}

// AddGameToShopTx links a game to the shop, inserting the game first when no
// game with the same title exists on that platform. game.ID is filled in.
// ErrDBDuplicate if the shop already sells the game.
func (s *Store) AddGameToShopTx(ctx context.Context, shopID int64, game *models.Game) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.GetContext(ctx, &game.ID,
		tx.Rebind("SELECT game_id FROM games WHERE title = ? AND platform_id = ?"),
		game.Title, game.PlatformID)
	if errors.Is(err, sql.ErrNoRows) {
		err = tx.GetContext(ctx, &game.ID, tx.Rebind(`
			INSERT INTO games (title, publisher, genre, platform_id, release_date)
			VALUES (?, ?, ?, ?, ?)
			RETURNING game_id`),
			game.Title, game.Publisher, game.Genre, game.PlatformID, game.ReleaseDate)
		if err != nil {
			return fmt.Errorf("failed to insert game: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to look up game: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		tx.Rebind("INSERT INTO shop_games (shop_id, game_id) VALUES (?, ?)"), shopID, game.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDBDuplicate
		}
		return fmt.Errorf("failed to link game to shop: %w", err)
	}

	return tx.Commit()
}

// DeleteGameTx removes a game and its shop links. ErrDBGameHasKeys if any
// key, sold or not, references the game.
func (s *Store) DeleteGameTx(ctx context.Context, gameID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var id int64
	err = tx.GetContext(ctx, &id, tx.Rebind("SELECT game_id FROM games WHERE game_id = ?"), gameID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrDBNotFound
	}
	if err != nil {
		return err
	}

	var hasKeys bool
	err = tx.GetContext(ctx, &hasKeys,
		tx.Rebind("SELECT EXISTS(SELECT 1 FROM keys WHERE game_id = ?)"), gameID)
	if err != nil {
		return err
	}
	if hasKeys {
		return ErrDBGameHasKeys
	}

	for _, query := range []string{
		"DELETE FROM shop_games WHERE game_id = ?",
		"DELETE FROM games WHERE game_id = ?",
	} {
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), gameID); err != nil {
			return fmt.Errorf("failed to delete game %d: %w", gameID, err)
		}
	}

	return tx.Commit()
}

// RemoveGameFromShopTx unlinks a game from one shop. The game row is deleted
// as well once no shop sells it and no key references it. ErrDBNotFound if
// the shop does not sell the game, ErrDBGameHasKeys if the shop ever listed a
// key for it.
func (s *Store) RemoveGameFromShopTx(ctx context.Context, shopID, gameID int64) (gameDeleted bool, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		tx.Rebind("DELETE FROM shop_games WHERE shop_id = ? AND game_id = ?"), shopID, gameID)
	if err != nil {
		return false, fmt.Errorf("failed to unlink game %d: %w", gameID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, err
	} else if n == 0 {
		return false, ErrDBNotFound
	}

	var shopHasKeys bool
	err = tx.GetContext(ctx, &shopHasKeys, tx.Rebind(`
		SELECT EXISTS(
			SELECT 1 FROM shop_keys sk
			JOIN keys k ON k.key_id = sk.key_id
			WHERE sk.shop_id = ? AND k.game_id = ?)`), shopID, gameID)
	if err != nil {
		return false, err
	}
	if shopHasKeys {
		return false, ErrDBGameHasKeys
	}

	var inUse bool
	err = tx.GetContext(ctx, &inUse, tx.Rebind(`
		SELECT EXISTS(SELECT 1 FROM shop_games WHERE game_id = ?)
		    OR EXISTS(SELECT 1 FROM keys WHERE game_id = ?)`), gameID, gameID)
	if err != nil {
		return false, err
	}
	if !inUse {
		if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM games WHERE game_id = ?"), gameID); err != nil {
			return false, fmt.Errorf("failed to delete game %d: %w", gameID, err)
		}
		gameDeleted = true
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return gameDeleted, nil
}
