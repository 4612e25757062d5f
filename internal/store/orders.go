package store

import (
	"context"
	"database/sql"
	"fmt"

	"settlement-service/internal/apperr"
	"settlement-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateOrderTx inserts a new order inside the caller's transaction.
func (s *Store) CreateOrderTx(ctx context.Context, tx *sqlx.Tx, order *models.Order) error {
	query := `
		INSERT INTO orders (order_number, customer_id, sales_agent_id, status, payment_status,
			subtotal, vat_amount, total_amount, cashback_amount,
			shipping_address, billing_address, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`

	return tx.GetContext(ctx, order, query,
		order.OrderNumber, order.CustomerID, order.SalesAgentID, order.Status, order.PaymentStatus,
		order.Subtotal, order.VATAmount, order.TotalAmount, order.CashbackAmount,
		order.ShippingAddr, order.BillingAddr, order.Notes)
}

// CreateOrderItemTx inserts an order line inside the caller's transaction.
func (s *Store) CreateOrderItemTx(ctx context.Context, tx *sqlx.Tx, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, quantity, unit_price, total_price, cashback_amount)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	return tx.GetContext(ctx, &item.ID, query,
		item.OrderID, item.ProductID, item.Quantity, item.UnitPrice, item.TotalPrice, item.CashbackAmount)
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, apperr.Newf(apperr.CodeNotFound, "order not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderForUpdateTx locks an order row for a status mutation.
func (s *Store) GetOrderForUpdateTx(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Order, error) {
	var order models.Order
	err := tx.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", id)
	if err == sql.ErrNoRows {
		return nil, apperr.Newf(apperr.CodeNotFound, "order not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrderStatusTx updates order status inside the caller's transaction.
func (s *Store) UpdateOrderStatusTx(ctx context.Context, tx *sqlx.Tx, orderID int64, status string) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	return err
}

// UpdateOrderPaymentStatusTx updates the order's payment status.
func (s *Store) UpdateOrderPaymentStatusTx(ctx context.Context, tx *sqlx.Tx, orderID int64, paymentStatus string) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE orders SET payment_status = $1, updated_at = NOW() WHERE id = $2",
		paymentStatus, orderID)
	return err
}

// UpdateOrderTrackingTx records the carrier tracking number.
func (s *Store) UpdateOrderTrackingTx(ctx context.Context, tx *sqlx.Tx, orderID int64, trackingNumber string) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE orders SET tracking_number = $1, updated_at = NOW() WHERE id = $2",
		trackingNumber, orderID)
	return err
}

// GetOrdersByCustomerID retrieves orders for a customer
func (s *Store) GetOrdersByCustomerID(ctx context.Context, customerID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE customer_id = $1 ORDER BY created_at DESC", customerID)
	return orders, err
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1", orderID)
	return items, err
}

// GetOrderItemsByOrderIDTx is the transactional variant used during
// cancellation, where the restore must see the same snapshot it mutates.
func (s *Store) GetOrderItemsByOrderIDTx(ctx context.Context, tx *sqlx.Tx, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := tx.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1", orderID)
	return items, err
}

// CreatePayment creates a new gateway payment record
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (order_id, provider, external_ref, phone_number, amount, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, payment, query,
		payment.OrderID, payment.Provider, payment.ExternalRef, payment.PhoneNumber,
		payment.Amount, payment.Status)
}

// GetPaymentByExternalRefTx locks the payment row matched by the gateway
// reference. The lock serializes concurrent callback replays for the same
// reference.
func (s *Store) GetPaymentByExternalRefTx(ctx context.Context, tx *sqlx.Tx, provider, externalRef string) (*models.Payment, error) {
	var payment models.Payment
	err := tx.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE provider = $1 AND external_ref = $2 FOR UPDATE",
		provider, externalRef)
	if err == sql.ErrNoRows {
		return nil, apperr.Newf(apperr.CodeNotFound, "payment not found: %s/%s", provider, externalRef)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// UpdatePaymentStatusTx updates a gateway payment row.
func (s *Store) UpdatePaymentStatusTx(ctx context.Context, tx *sqlx.Tx, paymentID int64, status, resultDesc string) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE payments SET status = $1, result_desc = $2, updated_at = NOW() WHERE id = $3",
		status, sql.NullString{String: resultDesc, Valid: resultDesc != ""}, paymentID)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	return nil
}

// GetPaymentsByOrderID retrieves payment attempts for an order, newest first.
func (s *Store) GetPaymentsByOrderID(ctx context.Context, orderID int64) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.SelectContext(ctx, &payments,
		"SELECT * FROM payments WHERE order_id = $1 ORDER BY created_at DESC", orderID)
	return payments, err
}
