package pricing

import (
	"database/sql"
	"testing"

	"settlement-service/internal/apperr"
	"settlement-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProduct() *models.Product {
	return &models.Product{
		ID:           1,
		Code:         "FC-001",
		Name:         "A4 Copy Paper",
		VATRate:      decimal.NewFromInt(16),
		CashbackRate: decimal.NewFromInt(5),
		StockUnits:   100,
		IsActive:     true,
	}
}

func testTiers() []models.PricingTier {
	return []models.PricingTier{
		{ID: 1, ProductID: 1, TierName: "1-3", MinQuantity: 1,
			MaxQuantity: sql.NullInt64{Int64: 3, Valid: true},
			SellingPrice: decimal.NewFromInt(100)},
		{ID: 2, ProductID: 1, TierName: "4-11", MinQuantity: 4,
			MaxQuantity: sql.NullInt64{Int64: 11, Valid: true},
			SellingPrice: decimal.NewFromInt(95)},
		{ID: 3, ProductID: 1, TierName: "12+", MinQuantity: 12,
			SellingPrice: decimal.NewFromInt(90)},
	}
}

func TestResolveTierPicksContainingBand(t *testing.T) {
	product := testProduct()
	tiers := testTiers()

	cases := []struct {
		quantity int
		price    string
		tierName string
	}{
		{1, "100", "1-3"},
		{3, "100", "1-3"},
		{4, "95", "4-11"},
		{5, "95", "4-11"},
		{11, "95", "4-11"},
		{12, "90", "12+"},
		{500, "90", "12+"},
	}

	for _, tc := range cases {
		quote, err := ResolveTier(product, tiers, tc.quantity)
		require.NoError(t, err, "quantity %d", tc.quantity)
		assert.True(t, quote.UnitPrice.Equal(decimal.RequireFromString(tc.price)),
			"quantity %d: got %s", tc.quantity, quote.UnitPrice)
		assert.Equal(t, tc.tierName, quote.TierName)
	}
}

func TestResolveTierQuantityGap(t *testing.T) {
	product := testProduct()
	tiers := []models.PricingTier{
		{ID: 1, ProductID: 1, MinQuantity: 1,
			MaxQuantity: sql.NullInt64{Int64: 3, Valid: true},
			SellingPrice: decimal.NewFromInt(100)},
		{ID: 2, ProductID: 1, MinQuantity: 10,
			SellingPrice: decimal.NewFromInt(80)},
	}

	// 5 falls between the bands
	_, err := ResolveTier(product, tiers, 5)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestResolveTierBeyondAllBands(t *testing.T) {
	product := testProduct()
	tiers := []models.PricingTier{
		{ID: 1, ProductID: 1, MinQuantity: 1,
			MaxQuantity: sql.NullInt64{Int64: 10, Valid: true},
			SellingPrice: decimal.NewFromInt(100)},
	}

	_, err := ResolveTier(product, tiers, 11)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestResolveTierInactiveProduct(t *testing.T) {
	product := testProduct()
	product.IsActive = false

	_, err := ResolveTier(product, testTiers(), 5)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestResolveTierInvalidQuantity(t *testing.T) {
	_, err := ResolveTier(testProduct(), testTiers(), 0)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestResolveTierEqualMinQuantityPrefersLowestID(t *testing.T) {
	product := testProduct()
	tiers := []models.PricingTier{
		{ID: 7, ProductID: 1, MinQuantity: 4, SellingPrice: decimal.NewFromInt(92)},
		{ID: 3, ProductID: 1, MinQuantity: 4, SellingPrice: decimal.NewFromInt(95)},
	}

	quote, err := ResolveTier(product, tiers, 6)
	require.NoError(t, err)
	assert.True(t, quote.UnitPrice.Equal(decimal.NewFromInt(95)))
}
