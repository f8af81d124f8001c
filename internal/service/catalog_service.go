package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"keymarket/internal/models"
	"keymarket/internal/store"
	"keymarket/internal/util"

	"go.uber.org/zap"
)

// NewGame describes a game a seller wants to sell
type NewGame struct {
	Title       string     `json:"title" binding:"required"`
	Publisher   string     `json:"publisher"`
	Genre       string     `json:"genre"`
	PlatformID  int64      `json:"platform_id" binding:"required"`
	ReleaseDate *time.Time `json:"release_date,omitempty"`
}

// CatalogService manages platforms and games
type CatalogService struct {
	store  *store.Store
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(store *store.Store) *CatalogService {
	return &CatalogService{
		store:  store,
		logger: util.GetLogger(),
	}
}

func (s *CatalogService) ListPlatforms(ctx context.Context) ([]models.Platform, error) {
	platforms, err := s.store.ListPlatforms(ctx)
	if err != nil {
		return nil, storageError("list platforms", err)
	}
	return platforms, nil
}

func (s *CatalogService) ListGames(ctx context.Context) ([]models.Game, error) {
	games, err := s.store.ListGames(ctx)
	if err != nil {
		return nil, storageError("list games", err)
	}
	return games, nil
}

// AddGame puts a game on the seller's shop. A game with the same title on
// the same platform is shared between shops.
func (s *CatalogService) AddGame(ctx context.Context, seller Identity, req NewGame) (game *models.Game, err error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.AddGame")
	defer func() { util.EndSpan(span, err) }()

	if err := requireRole(seller, models.RoleSeller); err != nil {
		return nil, err
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return nil, validationError("game title is required")
	}
	ok, err := s.store.PlatformExists(ctx, req.PlatformID)
	if err != nil {
		return nil, storageError("check platform", err)
	}
	if !ok {
		return nil, validationError("unknown platform %d", req.PlatformID)
	}

	shop, err := sellerShop(ctx, s.store, seller)
	if err != nil {
		return nil, err
	}

	game = &models.Game{
		Title:       req.Title,
		Publisher:   strings.TrimSpace(req.Publisher),
		Genre:       strings.TrimSpace(req.Genre),
		PlatformID:  req.PlatformID,
		ReleaseDate: req.ReleaseDate,
	}
	err = s.store.AddGameToShopTx(ctx, shop.ID, game)
	if errors.Is(err, store.ErrDBDuplicate) {
		return nil, conflictError("shop already sells %q", game.Title)
	}
	if err != nil {
		return nil, storageError("add game", err)
	}

	s.logger.Info("Game added to shop",
		zap.Int64("game_id", game.ID),
		zap.Int64("shop_id", shop.ID))

	saved, err := s.store.GetGameByID(ctx, game.ID)
	if err != nil {
		return game, nil
	}
	return saved, nil
}

// SellerGames lists the games on the seller's shop
func (s *CatalogService) SellerGames(ctx context.Context, seller Identity) ([]models.Game, error) {
	if err := requireRole(seller, models.RoleSeller); err != nil {
		return nil, err
	}

	shop, err := sellerShop(ctx, s.store, seller)
	if err != nil {
		return nil, err
	}

	games, err := s.store.GamesByShop(ctx, shop.ID)
	if err != nil {
		return nil, storageError("list shop games", err)
	}
	return games, nil
}

// DeleteGame removes a game. An admin deletes it from the catalog; a seller
// only takes it off their own shop, and the game row goes away once no shop
// sells it. Games with keys are kept.
func (s *CatalogService) DeleteGame(ctx context.Context, caller Identity, gameID int64) (err error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.DeleteGame")
	defer func() { util.EndSpan(span, err) }()

	if err := requireRole(caller, models.RoleAdmin, models.RoleSeller); err != nil {
		return err
	}
	if !caller.IsAdmin() {
		return s.removeFromShop(ctx, caller, gameID)
	}

	err = s.store.DeleteGameTx(ctx, gameID)
	switch {
	case errors.Is(err, store.ErrDBNotFound):
		return notFoundError("game %d", gameID)
	case errors.Is(err, store.ErrDBGameHasKeys):
		return conflictError("game %d still has keys", gameID)
	case err != nil:
		return storageError("delete game", err)
	}

	s.logger.Info("Game deleted", zap.Int64("game_id", gameID), zap.Int64("by", caller.UserID))
	return nil
}

func (s *CatalogService) removeFromShop(ctx context.Context, seller Identity, gameID int64) error {
	shop, err := sellerShop(ctx, s.store, seller)
	if err != nil {
		return err
	}

	deleted, err := s.store.RemoveGameFromShopTx(ctx, shop.ID, gameID)
	switch {
	case errors.Is(err, store.ErrDBNotFound):
		return notFoundError("game %d is not sold by your shop", gameID)
	case errors.Is(err, store.ErrDBGameHasKeys):
		return conflictError("your shop has keys for game %d", gameID)
	case err != nil:
		return storageError("remove game", err)
	}

	s.logger.Info("Game removed from shop",
		zap.Int64("game_id", gameID),
		zap.Int64("shop_id", shop.ID),
		zap.Bool("game_deleted", deleted))
	return nil
}

// canManageGame lets admins through and checks that a seller's shop sells
// the game.
func canManageGame(ctx context.Context, st *store.Store, caller Identity, gameID int64) error {
	if caller.IsAdmin() {
		return nil
	}

	shop, err := sellerShop(ctx, st, caller)
	if err != nil {
		return err
	}
	sells, err := st.ShopSellsGame(ctx, shop.ID, gameID)
	if err != nil {
		return storageError("check shop game", err)
	}
	if !sells {
		return notFoundError("game %d is not sold by your shop", gameID)
	}
	return nil
}
