package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRateForSequence(t *testing.T) {
	tests := []struct {
		sequence int
		want     string
	}{
		{1, "6"},
		{2, "4"},
		{3, "3"},
		{4, "2"},
		{5, "0"},
		{6, "0"},
		{100, "0"},
	}

	for _, tt := range tests {
		got := RateForSequence(tt.sequence)
		assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
			"sequence %d: want %s%%, got %s", tt.sequence, tt.want, got)
	}
}

func TestCommissionAmountRounding(t *testing.T) {
	// 6% of 333.33 is 19.9998, booked as 20.00.
	subtotal := decimal.RequireFromString("333.33")
	amount := subtotal.Mul(RateForSequence(1)).Div(decimal.NewFromInt(100)).Round(2)
	assert.Equal(t, "20.00", amount.StringFixed(2))

	// 4% of 100.10 is 4.004, booked as 4.00.
	subtotal = decimal.RequireFromString("100.10")
	amount = subtotal.Mul(RateForSequence(2)).Div(decimal.NewFromInt(100)).Round(2)
	assert.Equal(t, "4.00", amount.StringFixed(2))
}
