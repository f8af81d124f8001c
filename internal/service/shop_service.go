package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"keymarket/internal/broker"
	"keymarket/internal/models"
	"keymarket/internal/store"
	"keymarket/internal/util"

	"go.uber.org/zap"
)

const maxShopNameLen = 128

// ShopService manages seller storefronts
type ShopService struct {
	store          *store.Store
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
}

// NewShopService creates a new shop service
func NewShopService(store *store.Store, eventPublisher *broker.EventPublisher) *ShopService {
	return &ShopService{
		store:          store,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// CreateShop opens the seller's shop and takes the seller off the pending list
func (s *ShopService) CreateShop(ctx context.Context, seller Identity, name string) (shop *models.Shop, err error) {
	ctx, span := util.StartSpan(ctx, "ShopService.CreateShop")
	defer func() { util.EndSpan(span, err) }()

	if err := requireRole(seller, models.RoleSeller); err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxShopNameLen {
		return nil, validationError("shop name must be 1 to %d characters", maxShopNameLen)
	}

	shop = &models.Shop{SellerID: seller.UserID, Name: name, CreatedAt: time.Now().UTC()}
	err = s.store.CreateShopTx(ctx, shop)
	if errors.Is(err, store.ErrDBShopExists) {
		return nil, ErrShopExists
	}
	if err != nil {
		return nil, storageError("create shop", err)
	}

	util.ShopsCreatedTotal.Inc()
	s.logger.Info("Shop created", zap.Int64("shop_id", shop.ID), zap.Int64("seller_id", seller.UserID))

	if err := s.eventPublisher.PublishShopCreated(ctx, &models.ShopCreatedEvent{
		ShopID:   shop.ID,
		SellerID: shop.SellerID,
		Name:     shop.Name,
	}); err != nil {
		s.logger.Error("Failed to publish ShopCreated event", zap.Error(err))
	}

	return shop, nil
}

// GetShop returns the seller's shop
func (s *ShopService) GetShop(ctx context.Context, seller Identity) (*models.Shop, error) {
	if err := requireRole(seller, models.RoleSeller); err != nil {
		return nil, err
	}
	return sellerShop(ctx, s.store, seller)
}

// sellerShop loads the shop owned by the identity
func sellerShop(ctx context.Context, st *store.Store, seller Identity) (*models.Shop, error) {
	shop, err := st.GetShopBySeller(ctx, seller.UserID)
	if errors.Is(err, store.ErrDBNotFound) {
		return nil, ErrNoShop
	}
	if err != nil {
		return nil, storageError("load shop", err)
	}
	return shop, nil
}
