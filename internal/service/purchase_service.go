package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"keymarket/internal/broker"
	"keymarket/internal/models"
	"keymarket/internal/redisclient"
	"keymarket/internal/store"
	"keymarket/internal/util"

	"go.uber.org/zap"
)

// PurchaseService sells keys to buyers
type PurchaseService struct {
	store          *store.Store
	redis          *redisclient.Client
	eventPublisher *broker.EventPublisher
	lockTTL        time.Duration
	logger         *zap.Logger
}

// NewPurchaseService creates a new purchase service
func NewPurchaseService(
	store *store.Store,
	redis *redisclient.Client,
	eventPublisher *broker.EventPublisher,
	lockTTL time.Duration,
) *PurchaseService {
	return &PurchaseService{
		store:          store,
		redis:          redis,
		eventPublisher: eventPublisher,
		lockTTL:        lockTTL,
		logger:         util.GetLogger(),
	}
}

func purchaseLockKey(keyID int64) string {
	return fmt.Sprintf("purchase:key:%d", keyID)
}

// Purchase sells the key to the buyer. The sale, its detail row and the key
// status change are committed together; a key that is already sold yields
// ErrKeyNotAvailable and leaves no trace.
func (s *PurchaseService) Purchase(ctx context.Context, buyer Identity, keyID int64) (result *models.PurchaseResult, err error) {
	ctx, span := util.StartSpan(ctx, "PurchaseService.Purchase")
	defer func() { util.EndSpan(span, err) }()

	if err := requireRole(buyer, models.RoleBuyer); err != nil {
		util.PurchasesFailedTotal.WithLabelValues("forbidden").Inc()
		return nil, err
	}
	if keyID <= 0 {
		return nil, validationError("invalid key id %d", keyID)
	}

	lockKey := purchaseLockKey(keyID)
	token, locked, lerr := s.redis.AcquireLock(ctx, lockKey, s.lockTTL)
	switch {
	case lerr != nil:
		s.logger.Warn("Purchase lock unavailable, relying on database",
			zap.Int64("key_id", keyID), zap.Error(lerr))
	case !locked:
		util.PurchasesFailedTotal.WithLabelValues("locked").Inc()
		return nil, ErrKeyLocked
	default:
		defer func() {
			if err := s.redis.ReleaseLock(context.Background(), lockKey, token); err != nil {
				s.logger.Warn("Failed to release purchase lock", zap.String("lock", lockKey), zap.Error(err))
			}
		}()
	}

	start := time.Now()
	sold, err := s.store.PurchaseKeyTx(ctx, buyer.UserID, keyID, start.UTC())
	util.PurchaseLatency.Observe(time.Since(start).Seconds())
	switch {
	case errors.Is(err, store.ErrDBNotFound):
		util.PurchasesFailedTotal.WithLabelValues("not_found").Inc()
		return nil, notFoundError("key %d", keyID)
	case errors.Is(err, store.ErrDBKeyNotAvailable):
		util.PurchasesFailedTotal.WithLabelValues("sold").Inc()
		return nil, ErrKeyNotAvailable
	case err != nil:
		util.PurchasesFailedTotal.WithLabelValues("db_error").Inc()
		return nil, storageError("purchase key", err)
	}

	util.PurchasesTotal.Inc()
	s.logger.Info("Key purchased",
		zap.Int64("sale_id", sold.SaleID),
		zap.Int64("key_id", sold.KeyID),
		zap.Int64("buyer_id", buyer.UserID))

	result = &models.PurchaseResult{
		SaleID:    sold.SaleID,
		KeyID:     sold.KeyID,
		KeyValue:  sold.Value,
		GameID:    sold.GameID,
		GameTitle: sold.GameTitle,
		SaleDate:  sold.SaleDate,
	}

	prices, err := s.store.PricesForKeys(ctx, []int64{keyID})
	if err != nil {
		s.logger.Warn("Failed to load price of sold key", zap.Int64("key_id", keyID), zap.Error(err))
	} else if amount, ok := activePrices(prices, sold.SaleDate)[keyID]; ok {
		result.Price = &amount
	}

	s.afterPurchase(ctx, buyer, result)
	return result, nil
}

// afterPurchase runs the post-commit side effects. None of them can fail
// the purchase.
func (s *PurchaseService) afterPurchase(ctx context.Context, buyer Identity, result *models.PurchaseResult) {
	if _, err := s.redis.TakeStock(ctx, result.GameID); err != nil {
		s.logger.Warn("Failed to update stock cache", zap.Int64("game_id", result.GameID), zap.Error(err))
	}

	event := &models.KeyPurchasedEvent{
		SaleID:  result.SaleID,
		KeyID:   result.KeyID,
		GameID:  result.GameID,
		BuyerID: buyer.UserID,
	}
	if result.Price != nil {
		event.Price = result.Price.String()
	}
	if err := s.eventPublisher.PublishKeyPurchased(ctx, event); err != nil {
		s.logger.Error("Failed to publish KeyPurchased event", zap.Error(err))
	}
}
