package service

import (
	"context"
	"errors"
	"sort"

	"keymarket/internal/models"
	"keymarket/internal/store"
	"keymarket/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const saleDayLayout = "2006-01-02"

// SalesService reports on completed sales
type SalesService struct {
	store  *store.Store
	logger *zap.Logger
}

// NewSalesService creates a new sales service
func NewSalesService(store *store.Store) *SalesService {
	return &SalesService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// GameStatistics returns sold keys and revenue per day for a game, oldest
// day first. Each key earns the price that was valid on its sale date.
func (s *SalesService) GameStatistics(ctx context.Context, caller Identity, gameID int64) (stats []models.DailySales, err error) {
	ctx, span := util.StartSpan(ctx, "SalesService.GameStatistics")
	defer func() { util.EndSpan(span, err) }()

	if err := requireRole(caller, models.RoleAdmin, models.RoleSeller); err != nil {
		return nil, err
	}
	if _, err := s.store.GetGameByID(ctx, gameID); err != nil {
		if errors.Is(err, store.ErrDBNotFound) {
			return nil, notFoundError("game %d", gameID)
		}
		return nil, storageError("load game", err)
	}
	if err := canManageGame(ctx, s.store, caller, gameID); err != nil {
		return nil, err
	}

	sold, err := s.store.SoldKeysForGame(ctx, gameID)
	if err != nil {
		return nil, storageError("load sales", err)
	}

	prices, err := s.store.PricesForKeys(ctx, soldKeyIDs(sold))
	if err != nil {
		return nil, storageError("load prices", err)
	}

	return aggregateDailySales(sold, prices), nil
}

func soldKeyIDs(sold []models.SoldKey) []int64 {
	ids := make([]int64, len(sold))
	for i, k := range sold {
		ids[i] = k.KeyID
	}
	return ids
}

func aggregateDailySales(sold []models.SoldKey, prices []models.Price) []models.DailySales {
	byDay := make(map[string]*models.DailySales)
	for _, k := range sold {
		day := k.SaleDate.UTC().Format(saleDayLayout)
		row, ok := byDay[day]
		if !ok {
			row = &models.DailySales{
				Date:         day,
				GameTitle:    k.GameTitle,
				Platform:     k.Platform,
				TotalRevenue: decimal.Zero,
			}
			byDay[day] = row
		}
		row.SoldKeys++
		if p, ok := activePrices(prices, k.SaleDate)[k.KeyID]; ok {
			row.TotalRevenue = row.TotalRevenue.Add(p)
		}
	}

	out := make([]models.DailySales, 0, len(byDay))
	for _, row := range byDay {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// BuyerPurchases returns the buyer's purchases, newest first, with the
// purchased key values and the price paid
func (s *SalesService) BuyerPurchases(ctx context.Context, buyer Identity) ([]models.PurchaseResult, error) {
	if err := requireRole(buyer, models.RoleBuyer); err != nil {
		return nil, err
	}

	sold, err := s.store.PurchasesByBuyer(ctx, buyer.UserID)
	if err != nil {
		return nil, storageError("load purchases", err)
	}
	prices, err := s.store.PricesForKeys(ctx, soldKeyIDs(sold))
	if err != nil {
		return nil, storageError("load prices", err)
	}

	out := make([]models.PurchaseResult, len(sold))
	for i, k := range sold {
		out[i] = models.PurchaseResult{
			SaleID:    k.SaleID,
			KeyID:     k.KeyID,
			KeyValue:  k.Value,
			GameID:    k.GameID,
			GameTitle: k.GameTitle,
			SaleDate:  k.SaleDate,
		}
		if p, ok := activePrices(prices, k.SaleDate)[k.KeyID]; ok {
			p := p
			out[i].Price = &p
		}
	}
	return out, nil
}
