package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestBandedWithdrawalFee(t *testing.T) {
	tests := []struct {
		amount string
		want   string
	}{
		{"100", "5"},
		{"500", "5"},
		{"500.01", "10"},
		{"1000", "10"},
		{"1000.01", "20"},
		{"2500", "20"},
		{"2500.01", "30"},
		{"5000", "30"},
		{"5000.01", "50"},
		{"250000", "50"},
	}

	for _, tt := range tests {
		got := BandedWithdrawalFee(decimal.RequireFromString(tt.amount))
		assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
			"amount %s: want fee %s, got %s", tt.amount, tt.want, got)
	}
}

func TestWithdrawalChargesAreInformational(t *testing.T) {
	// The ledger debits the gross amount; charges only reduce the payout.
	amount := decimal.RequireFromString("1500")
	maintenance := decimal.RequireFromString("2.50")
	fee := BandedWithdrawalFee(amount)

	total := maintenance.Add(fee)
	assert.Equal(t, "22.50", total.StringFixed(2))

	netPayout := amount.Sub(total)
	assert.Equal(t, "1477.50", netPayout.StringFixed(2))
}
