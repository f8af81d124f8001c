package service

import (
	"time"

	"keymarket/internal/models"

	"github.com/shopspring/decimal"
)

// activePrices picks, per key, the price whose window contains t. When
// windows overlap the one that started last wins.
func activePrices(prices []models.Price, t time.Time) map[int64]decimal.Decimal {
	type pick struct {
		amount decimal.Decimal
		start  time.Time
	}
	best := make(map[int64]pick, len(prices))
	for _, p := range prices {
		if p.KeyID == nil || !p.ActiveAt(t) {
			continue
		}
		if cur, ok := best[*p.KeyID]; ok && cur.start.After(p.StartDate) {
			continue
		}
		best[*p.KeyID] = pick{amount: p.Amount, start: p.StartDate}
	}

	out := make(map[int64]decimal.Decimal, len(best))
	for id, p := range best {
		out[id] = p.amount
	}
	return out
}
