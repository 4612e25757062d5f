package pricing

import (
	"testing"

	"settlement-service/internal/apperr"
	"settlement-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func catalog() (map[int64]*models.Product, map[int64][]models.PricingTier) {
	products := map[int64]*models.Product{1: testProduct()}
	tiers := map[int64][]models.PricingTier{1: testTiers()}
	return products, tiers
}

func TestCalculateSingleLine(t *testing.T) {
	products, tiers := catalog()

	totals, err := Calculate([]LineRequest{{ProductID: 1, Quantity: 5}}, products, tiers)
	require.NoError(t, err)
	require.Len(t, totals.Lines, 1)

	line := totals.Lines[0]
	assert.True(t, line.UnitPrice.Equal(decimal.NewFromInt(95)), "unit price %s", line.UnitPrice)
	assert.True(t, line.TotalPrice.Equal(decimal.NewFromInt(475)), "total price %s", line.TotalPrice)
	assert.Equal(t, "409.48", line.PriceExclVAT.StringFixed(2))
	assert.Equal(t, "20.47", line.Cashback.StringFixed(2))

	assert.Equal(t, "409.48", totals.Subtotal.StringFixed(2))
	assert.Equal(t, "65.52", totals.VATAmount.StringFixed(2))
	assert.Equal(t, "475.00", totals.Total.StringFixed(2))
	assert.Equal(t, "20.47", totals.TotalCashback.StringFixed(2))
}

func TestCalculateSubtotalPlusVATEqualsTotal(t *testing.T) {
	products, tiers := catalog()

	zeroVAT := testProduct()
	zeroVAT.ID = 2
	zeroVAT.VATRate = decimal.Zero
	zeroVAT.CashbackRate = decimal.NewFromInt(3)
	products[2] = zeroVAT
	tiers[2] = []models.PricingTier{
		{ID: 10, ProductID: 2, MinQuantity: 1, SellingPrice: decimal.RequireFromString("49.99")},
	}

	lines := []LineRequest{
		{ProductID: 1, Quantity: 2},
		{ProductID: 1, Quantity: 12},
		{ProductID: 2, Quantity: 7},
	}

	totals, err := Calculate(lines, products, tiers)
	require.NoError(t, err)

	assert.True(t, totals.Subtotal.Add(totals.VATAmount).Equal(totals.Total))
	assert.True(t, totals.Total.GreaterThanOrEqual(decimal.Zero))

	// The per-product VAT model keeps the grand total equal to the sum of
	// the VAT-inclusive line totals.
	lineSum := decimal.Zero
	for _, line := range totals.Lines {
		lineSum = lineSum.Add(line.TotalPrice)
	}
	assert.True(t, totals.Total.Equal(lineSum), "total %s, line sum %s", totals.Total, lineSum)
}

func TestCalculateZeroVATLine(t *testing.T) {
	products, tiers := catalog()
	products[1].VATRate = decimal.Zero

	totals, err := Calculate([]LineRequest{{ProductID: 1, Quantity: 2}}, products, tiers)
	require.NoError(t, err)

	line := totals.Lines[0]
	assert.True(t, line.PriceExclVAT.Equal(line.TotalPrice))
	assert.True(t, line.VATAmount.IsZero())
}

func TestCalculateInsufficientStock(t *testing.T) {
	products, tiers := catalog()
	products[1].StockUnits = 4

	_, err := Calculate([]LineRequest{{ProductID: 1, Quantity: 5}}, products, tiers)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInsufficientStock, apperr.CodeOf(err))
}

func TestCalculateUnknownProduct(t *testing.T) {
	products, tiers := catalog()

	_, err := Calculate([]LineRequest{{ProductID: 99, Quantity: 1}}, products, tiers)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestCalculateEmptyCart(t *testing.T) {
	products, tiers := catalog()

	_, err := Calculate(nil, products, tiers)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestCalculateFailsAtomically(t *testing.T) {
	products, tiers := catalog()

	// second line falls into no tier, so the whole cart must fail
	_, err := Calculate([]LineRequest{
		{ProductID: 1, Quantity: 2},
		{ProductID: 99, Quantity: 1},
	}, products, tiers)
	require.Error(t, err)
}
