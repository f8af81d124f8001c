package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"keymarket/internal/models"
	"keymarket/internal/redisclient"
	"keymarket/internal/store"
	"keymarket/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// NewKey is a key a seller puts on sale together with its price window
type NewKey struct {
	GameID    int64           `json:"game_id" binding:"required"`
	Value     string          `json:"key_value" binding:"required"`
	Price     decimal.Decimal `json:"price"`
	StartDate *time.Time      `json:"start_date,omitempty"`
	EndDate   *time.Time      `json:"end_date,omitempty"`
}

// InventoryService manages listed keys and the cached per-game stock
type InventoryService struct {
	store  *store.Store
	redis  *redisclient.Client
	logger *zap.Logger
}

// NewInventoryService creates a new inventory service
func NewInventoryService(store *store.Store, redis *redisclient.Client) *InventoryService {
	return &InventoryService{
		store:  store,
		redis:  redis,
		logger: util.GetLogger(),
	}
}

// AddKey lists a key on the seller's shop. The shop must already sell the game.
func (s *InventoryService) AddKey(ctx context.Context, seller Identity, req NewKey) (key *models.Key, err error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.AddKey")
	defer func() { util.EndSpan(span, err) }()

	if err := requireRole(seller, models.RoleSeller); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	req.Value = strings.TrimSpace(req.Value)
	price, err := validateNewKey(&req, now)
	if err != nil {
		return nil, err
	}

	shop, err := sellerShop(ctx, s.store, seller)
	if err != nil {
		return nil, err
	}
	sells, err := s.store.ShopSellsGame(ctx, shop.ID, req.GameID)
	if err != nil {
		return nil, storageError("check shop game", err)
	}
	if !sells {
		return nil, notFoundError("game %d is not sold by your shop", req.GameID)
	}

	key = &models.Key{Value: req.Value, GameID: req.GameID, CreatedAt: now}
	err = s.store.AddKeyTx(ctx, shop.ID, key, price)
	if errors.Is(err, store.ErrDBDuplicate) {
		return nil, conflictError("key value already listed")
	}
	if err != nil {
		return nil, storageError("add key", err)
	}

	util.KeysListedTotal.Inc()
	s.logger.Info("Key listed",
		zap.Int64("key_id", key.ID),
		zap.Int64("game_id", key.GameID),
		zap.Int64("shop_id", shop.ID))

	s.refreshStock(ctx, key.GameID)
	return key, nil
}

func validateNewKey(req *NewKey, now time.Time) (*models.Price, error) {
	if req.GameID <= 0 {
		return nil, validationError("game id is required")
	}
	if req.Value == "" {
		return nil, validationError("key value is required")
	}
	if !req.Price.IsPositive() {
		return nil, validationError("price must be greater than zero")
	}

	price := &models.Price{Amount: req.Price, StartDate: now}
	if req.StartDate != nil {
		price.StartDate = req.StartDate.UTC()
	}
	if req.EndDate != nil {
		end := req.EndDate.UTC()
		if !end.After(price.StartDate) {
			return nil, validationError("end date must be after start date")
		}
		price.EndDate = &end
	}
	return price, nil
}

// AvailableKeys lists every key on sale with the price valid now. Key
// values are only revealed to the buyer after purchase.
func (s *InventoryService) AvailableKeys(ctx context.Context) ([]models.AvailableKey, error) {
	keys, err := s.store.ListAvailableKeys(ctx)
	if err != nil {
		return nil, storageError("list keys", err)
	}

	ids := make([]int64, len(keys))
	for i, k := range keys {
		ids[i] = k.KeyID
	}
	prices, err := s.store.PricesForKeys(ctx, ids)
	if err != nil {
		return nil, storageError("load prices", err)
	}

	active := activePrices(prices, time.Now().UTC())
	for i := range keys {
		if p, ok := active[keys[i].KeyID]; ok {
			p := p
			keys[i].Price = &p
		}
	}
	return keys, nil
}

// SellerKeys lists every key the seller's shop ever listed
func (s *InventoryService) SellerKeys(ctx context.Context, seller Identity) ([]models.SellerKey, error) {
	if err := requireRole(seller, models.RoleSeller); err != nil {
		return nil, err
	}

	shop, err := sellerShop(ctx, s.store, seller)
	if err != nil {
		return nil, err
	}

	keys, err := s.store.SellerKeys(ctx, shop.ID)
	if err != nil {
		return nil, storageError("list seller keys", err)
	}
	return keys, nil
}

// GameStock returns the number of available keys of a game, from the cache
// when possible
func (s *InventoryService) GameStock(ctx context.Context, gameID int64) (int, error) {
	count, ok, err := s.redis.GetStock(ctx, gameID)
	if err != nil {
		s.logger.Warn("Stock cache read failed", zap.Int64("game_id", gameID), zap.Error(err))
	}
	if err == nil && ok {
		return count, nil
	}

	if _, err := s.store.GetGameByID(ctx, gameID); err != nil {
		if errors.Is(err, store.ErrDBNotFound) {
			return 0, notFoundError("game %d", gameID)
		}
		return 0, storageError("load game", err)
	}

	count, err = s.store.CountAvailableForGame(ctx, gameID)
	if err != nil {
		return 0, storageError("count stock", err)
	}
	return count, nil
}

// SoldCount returns the sold-key counter kept by the event worker. It is
// zero when the counter is missing or Redis is unavailable.
func (s *InventoryService) SoldCount(ctx context.Context, gameID int64) int64 {
	n, err := s.redis.GetSold(ctx, gameID)
	if err != nil {
		s.logger.Warn("Sold counter read failed", zap.Int64("game_id", gameID), zap.Error(err))
		return 0
	}
	return n
}

// SyncStockToRedis rebuilds the stock cache from the database. Games with
// no available keys are cached as zero.
func (s *InventoryService) SyncStockToRedis(ctx context.Context) (err error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.SyncStockToRedis")
	defer func() { util.EndSpan(span, err) }()

	start := time.Now()
	defer func() { util.StockSyncDuration.Observe(time.Since(start).Seconds()) }()

	games, err := s.store.ListGames(ctx)
	if err != nil {
		return storageError("list games", err)
	}
	counts, err := s.store.CountAvailableByGame(ctx)
	if err != nil {
		return storageError("count stock", err)
	}

	stock := make(map[int64]int, len(games))
	for _, g := range games {
		stock[g.ID] = counts[g.ID]
	}

	if err := s.redis.SetStock(ctx, stock); err != nil {
		return err
	}

	s.logger.Info("Stock synced to Redis", zap.Int("games", len(stock)))
	return nil
}

func (s *InventoryService) refreshStock(ctx context.Context, gameID int64) {
	count, err := s.store.CountAvailableForGame(ctx, gameID)
	if err != nil {
		s.logger.Warn("Failed to count stock", zap.Int64("game_id", gameID), zap.Error(err))
		return
	}
	if err := s.redis.SetStock(ctx, map[int64]int{gameID: count}); err != nil {
		s.logger.Warn("Failed to update stock cache", zap.Int64("game_id", gameID), zap.Error(err))
	}
}
