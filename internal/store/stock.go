package store

import (
	"context"
	"database/sql"
	"fmt"

	"settlement-service/internal/apperr"
	"settlement-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// ReserveStockTx atomically checks and decrements a product's stock inside
// the caller's transaction (FOR UPDATE lock), appending an `out` movement
// tied to the order. Returns the stock level after the decrement.
func (s *Store) ReserveStockTx(ctx context.Context, tx *sqlx.Tx, productID int64, quantity int, orderID int64) (int, error) {
	var stock int
	err := tx.GetContext(ctx, &stock,
		"SELECT stock_units FROM products WHERE id = $1 FOR UPDATE", productID)
	if err == sql.ErrNoRows {
		return 0, apperr.Newf(apperr.CodeNotFound, "product not found: %d", productID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to lock product stock: %w", err)
	}

	if stock < quantity {
		return 0, apperr.Newf(apperr.CodeInsufficientStock,
			"insufficient stock for product %d: available=%d, requested=%d", productID, stock, quantity)
	}

	after := stock - quantity
	if _, err := tx.ExecContext(ctx,
		"UPDATE products SET stock_units = $1 WHERE id = $2", after, productID); err != nil {
		return 0, fmt.Errorf("failed to decrement stock: %w", err)
	}

	if err := s.insertMovementTx(ctx, tx, &models.InventoryMovement{
		ProductID:     productID,
		MovementType:  models.MovementOut,
		Quantity:      -quantity,
		ReferenceType: sql.NullString{String: models.MovementRefOrder, Valid: true},
		ReferenceID:   sql.NullInt64{Int64: orderID, Valid: true},
	}); err != nil {
		return 0, err
	}

	return after, nil
}

// RestoreStockTx increments stock and appends an `in` movement referencing
// the cancelled order. Returns the stock level after the increment.
func (s *Store) RestoreStockTx(ctx context.Context, tx *sqlx.Tx, productID int64, quantity int, orderID int64) (int, error) {
	var stock int
	err := tx.GetContext(ctx, &stock,
		"SELECT stock_units FROM products WHERE id = $1 FOR UPDATE", productID)
	if err == sql.ErrNoRows {
		return 0, apperr.Newf(apperr.CodeNotFound, "product not found: %d", productID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to lock product stock: %w", err)
	}

	after := stock + quantity
	if _, err := tx.ExecContext(ctx,
		"UPDATE products SET stock_units = $1 WHERE id = $2", after, productID); err != nil {
		return 0, fmt.Errorf("failed to restore stock: %w", err)
	}

	if err := s.insertMovementTx(ctx, tx, &models.InventoryMovement{
		ProductID:     productID,
		MovementType:  models.MovementIn,
		Quantity:      quantity,
		ReferenceType: sql.NullString{String: models.MovementRefOrderCancellation, Valid: true},
		ReferenceID:   sql.NullInt64{Int64: orderID, Valid: true},
	}); err != nil {
		return 0, err
	}

	return after, nil
}

// AdjustStockTx sets a product's stock to an absolute value and appends an
// adjustment movement whose signed quantity reconciles old vs new. Returns
// the delta applied and the new stock level.
func (s *Store) AdjustStockTx(ctx context.Context, tx *sqlx.Tx, productID int64, newQuantity int, notes string) (int, int, error) {
	if newQuantity < 0 {
		return 0, 0, apperr.Validation("stock quantity cannot be negative")
	}

	var stock int
	err := tx.GetContext(ctx, &stock,
		"SELECT stock_units FROM products WHERE id = $1 FOR UPDATE", productID)
	if err == sql.ErrNoRows {
		return 0, 0, apperr.Newf(apperr.CodeNotFound, "product not found: %d", productID)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to lock product stock: %w", err)
	}

	delta := newQuantity - stock
	if delta == 0 {
		return 0, stock, nil
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE products SET stock_units = $1 WHERE id = $2", newQuantity, productID); err != nil {
		return 0, 0, fmt.Errorf("failed to adjust stock: %w", err)
	}

	if err := s.insertMovementTx(ctx, tx, &models.InventoryMovement{
		ProductID:     productID,
		MovementType:  models.MovementAdjustment,
		Quantity:      delta,
		ReferenceType: sql.NullString{String: models.MovementRefManualAdjustment, Valid: true},
		Notes:         sql.NullString{String: notes, Valid: notes != ""},
	}); err != nil {
		return 0, 0, err
	}

	return delta, newQuantity, nil
}

func (s *Store) insertMovementTx(ctx context.Context, tx *sqlx.Tx, m *models.InventoryMovement) error {
	query := `
		INSERT INTO inventory_movements (product_id, movement_type, quantity, reference_type, reference_id, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := tx.GetContext(ctx, m, query,
		m.ProductID, m.MovementType, m.Quantity, m.ReferenceType, m.ReferenceID, m.Notes)
	if err != nil {
		return fmt.Errorf("failed to record inventory movement: %w", err)
	}
	return nil
}

// GetInventoryMovements retrieves recent movements for a product, newest first.
func (s *Store) GetInventoryMovements(ctx context.Context, productID int64, limit int) ([]models.InventoryMovement, error) {
	if limit <= 0 {
		limit = 50
	}
	var movements []models.InventoryMovement
	err := s.db.SelectContext(ctx, &movements,
		"SELECT * FROM inventory_movements WHERE product_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2",
		productID, limit)
	return movements, err
}
