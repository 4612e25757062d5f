package models

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidStatusTransition(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{"pending to confirmed", OrderStatusPending, OrderStatusConfirmed, true},
		{"confirmed to processing", OrderStatusConfirmed, OrderStatusProcessing, true},
		{"processing to shipped", OrderStatusProcessing, OrderStatusShipped, true},
		{"shipped to delivered", OrderStatusShipped, OrderStatusDelivered, true},
		{"pending to processing skips confirmed", OrderStatusPending, OrderStatusProcessing, false},
		{"confirmed to shipped skips processing", OrderStatusConfirmed, OrderStatusShipped, false},
		{"delivered back to shipped", OrderStatusDelivered, OrderStatusShipped, false},
		{"shipped back to pending", OrderStatusShipped, OrderStatusPending, false},
		{"pending to cancelled", OrderStatusPending, OrderStatusCancelled, true},
		{"confirmed to cancelled", OrderStatusConfirmed, OrderStatusCancelled, true},
		{"processing to cancelled", OrderStatusProcessing, OrderStatusCancelled, true},
		{"shipped to cancelled", OrderStatusShipped, OrderStatusCancelled, false},
		{"delivered to cancelled", OrderStatusDelivered, OrderStatusCancelled, false},
		{"cancelled to cancelled", OrderStatusCancelled, OrderStatusCancelled, false},
		{"cancelled to confirmed", OrderStatusCancelled, OrderStatusConfirmed, false},
		{"unknown status", "archived", OrderStatusConfirmed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidStatusTransition(tt.from, tt.to))
		})
	}
}

func TestValidPaymentTransition(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{"pending to paid", PaymentStatusPending, PaymentStatusPaid, true},
		{"pending to failed", PaymentStatusPending, PaymentStatusFailed, true},
		{"paid to refunded", PaymentStatusPaid, PaymentStatusRefunded, true},
		{"paid to failed", PaymentStatusPaid, PaymentStatusFailed, false},
		{"paid to pending", PaymentStatusPaid, PaymentStatusPending, false},
		{"failed to paid", PaymentStatusFailed, PaymentStatusPaid, false},
		{"failed to refunded", PaymentStatusFailed, PaymentStatusRefunded, false},
		{"refunded to paid", PaymentStatusRefunded, PaymentStatusPaid, false},
		{"pending to refunded", PaymentStatusPending, PaymentStatusRefunded, false},
		{"unknown status", "chargeback", PaymentStatusPaid, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidPaymentTransition(tt.from, tt.to))
		})
	}
}

func TestPricingTierContains(t *testing.T) {
	bounded := PricingTier{MinQuantity: 4, MaxQuantity: sql.NullInt64{Int64: 11, Valid: true}}
	assert.False(t, bounded.Contains(3))
	assert.True(t, bounded.Contains(4))
	assert.True(t, bounded.Contains(11))
	assert.False(t, bounded.Contains(12))

	open := PricingTier{MinQuantity: 12}
	assert.False(t, open.Contains(11))
	assert.True(t, open.Contains(12))
	assert.True(t, open.Contains(10000))
}
