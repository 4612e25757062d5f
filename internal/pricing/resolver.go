package pricing

import (
	"settlement-service/internal/apperr"
	"settlement-service/internal/models"

	"github.com/shopspring/decimal"
)

// Quote is the resolved price for one product at one quantity.
type Quote struct {
	UnitPrice    decimal.Decimal `json:"unit_price"`
	TierName     string          `json:"tier_name"`
	VATRate      decimal.Decimal `json:"vat_rate"`
	CashbackRate decimal.Decimal `json:"cashback_rate"`
}

// ResolveTier selects the pricing tier for the requested quantity: among
// tiers whose band contains the quantity, the one with the largest
// min_quantity wins; equal min_quantity falls back to the lowest tier ID
// (insertion order). Pure function, no side effects.
func ResolveTier(product *models.Product, tiers []models.PricingTier, quantity int) (*Quote, error) {
	if quantity < 1 {
		return nil, apperr.Validation("quantity must be at least 1")
	}
	if product == nil || !product.IsActive {
		return nil, apperr.NotFound("product not found or inactive")
	}

	var best *models.PricingTier
	for i := range tiers {
		t := &tiers[i]
		if !t.Contains(quantity) {
			continue
		}
		if best == nil ||
			t.MinQuantity > best.MinQuantity ||
			(t.MinQuantity == best.MinQuantity && t.ID < best.ID) {
			best = t
		}
	}

	if best == nil {
		return nil, apperr.Newf(apperr.CodeNotFound,
			"no pricing tier for product %d at quantity %d", product.ID, quantity)
	}

	return &Quote{
		UnitPrice:    best.SellingPrice,
		TierName:     best.TierName,
		VATRate:      product.VATRate,
		CashbackRate: product.CashbackRate,
	}, nil
}
