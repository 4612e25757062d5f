package pricing

import (
	"settlement-service/internal/apperr"
	"settlement-service/internal/models"

	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)
var hundred = decimal.NewFromInt(100)

// LineRequest is one requested (product, quantity) pair.
type LineRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// PricedLine is a line after tier resolution. TotalPrice is VAT-inclusive;
// PriceExclVAT strips the product's own VAT rate back out.
type PricedLine struct {
	ProductID    int64           `json:"product_id"`
	Quantity     int             `json:"quantity"`
	TierName     string          `json:"tier_name"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	TotalPrice   decimal.Decimal `json:"total_price"`
	PriceExclVAT decimal.Decimal `json:"price_excl_vat"`
	VATAmount    decimal.Decimal `json:"vat_amount"`
	Cashback     decimal.Decimal `json:"cashback"`
}

// Totals aggregates priced lines. Subtotal + VATAmount always equals the sum
// of the VAT-inclusive line totals to 2 decimal places.
type Totals struct {
	Lines         []PricedLine    `json:"lines"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	VATAmount     decimal.Decimal `json:"vat_amount"`
	Total         decimal.Decimal `json:"total"`
	TotalCashback decimal.Decimal `json:"total_cashback"`
}

// round2 rounds half away from zero to 2 decimal places at every
// aggregation boundary.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Calculate prices a cart against the catalog snapshot. Each product's own
// VAT rate is applied per line; there is no flat aggregate rate. Stock is
// checked against the snapshot here so an oversized cart fails before the
// order transaction even starts; the reservation re-checks under lock.
func Calculate(lines []LineRequest, products map[int64]*models.Product, tiers map[int64][]models.PricingTier) (*Totals, error) {
	if len(lines) == 0 {
		return nil, apperr.Validation("order must contain at least one item")
	}

	totals := &Totals{
		Lines:         make([]PricedLine, 0, len(lines)),
		Subtotal:      decimal.Zero,
		VATAmount:     decimal.Zero,
		Total:         decimal.Zero,
		TotalCashback: decimal.Zero,
	}

	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			return nil, apperr.Newf(apperr.CodeNotFound, "product not found: %d", line.ProductID)
		}

		quote, err := ResolveTier(product, tiers[line.ProductID], line.Quantity)
		if err != nil {
			return nil, err
		}

		if product.StockUnits < line.Quantity {
			return nil, apperr.Newf(apperr.CodeInsufficientStock,
				"insufficient stock for product %d: available=%d, requested=%d",
				product.ID, product.StockUnits, line.Quantity)
		}

		totalPrice := round2(quote.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
		exclVAT := round2(totalPrice.Div(one.Add(quote.VATRate.Div(hundred))))
		vat := totalPrice.Sub(exclVAT)
		cashback := round2(exclVAT.Mul(quote.CashbackRate).Div(hundred))

		totals.Lines = append(totals.Lines, PricedLine{
			ProductID:    line.ProductID,
			Quantity:     line.Quantity,
			TierName:     quote.TierName,
			UnitPrice:    quote.UnitPrice,
			TotalPrice:   totalPrice,
			PriceExclVAT: exclVAT,
			VATAmount:    vat,
			Cashback:     cashback,
		})

		totals.Subtotal = totals.Subtotal.Add(exclVAT)
		totals.VATAmount = totals.VATAmount.Add(vat)
		totals.TotalCashback = totals.TotalCashback.Add(cashback)
	}

	totals.Subtotal = round2(totals.Subtotal)
	totals.VATAmount = round2(totals.VATAmount)
	totals.Total = totals.Subtotal.Add(totals.VATAmount)
	totals.TotalCashback = round2(totals.TotalCashback)

	return totals, nil
}
