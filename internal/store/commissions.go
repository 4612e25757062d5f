package store

import (
	"context"
	"database/sql"
	"fmt"

	"settlement-service/internal/apperr"
	"settlement-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// NextAgentSequenceTx advances the (customer, agent) order counter and
// returns the new value. The upsert is a single statement, so concurrent
// orders from the same customer serialize on the row and the sequence stays
// gap-free.
func (s *Store) NextAgentSequenceTx(ctx context.Context, tx *sqlx.Tx, customerID, salesAgentID int64) (int, error) {
	query := `
		INSERT INTO customer_agent_sequences (customer_id, sales_agent_id, order_sequence, last_order_date)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (customer_id, sales_agent_id)
		DO UPDATE SET order_sequence = customer_agent_sequences.order_sequence + 1, last_order_date = NOW()
		RETURNING order_sequence`

	var sequence int
	if err := tx.GetContext(ctx, &sequence, query, customerID, salesAgentID); err != nil {
		return 0, fmt.Errorf("failed to advance agent sequence: %w", err)
	}
	return sequence, nil
}

// CreateCommissionTx inserts a commission record inside the caller's transaction.
func (s *Store) CreateCommissionTx(ctx context.Context, tx *sqlx.Tx, c *models.Commission) error {
	query := `
		INSERT INTO commissions (sales_agent_id, customer_id, order_id, order_sequence,
			rate, order_amount, commission_amount, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	return tx.GetContext(ctx, c, query,
		c.SalesAgentID, c.CustomerID, c.OrderID, c.OrderSequence,
		c.Rate, c.OrderAmount, c.CommissionAmount, c.Status)
}

// CancelCommissionForOrderTx marks any pending commission for the order as
// cancelled. No-op when the order carried no commission.
func (s *Store) CancelCommissionForOrderTx(ctx context.Context, tx *sqlx.Tx, orderID int64) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE commissions SET status = $1, updated_at = NOW() WHERE order_id = $2 AND status = $3",
		models.CommissionCancelled, orderID, models.CommissionPending)
	return err
}

// GetCommissionByID retrieves a commission record.
func (s *Store) GetCommissionByID(ctx context.Context, id int64) (*models.Commission, error) {
	var c models.Commission
	err := s.db.GetContext(ctx, &c, "SELECT * FROM commissions WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, apperr.Newf(apperr.CodeNotFound, "commission not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCommissionsByAgent retrieves an agent's commissions, newest first.
func (s *Store) GetCommissionsByAgent(ctx context.Context, salesAgentID int64, limit, offset int) ([]models.Commission, error) {
	if limit <= 0 {
		limit = 50
	}
	var commissions []models.Commission
	err := s.db.SelectContext(ctx, &commissions,
		"SELECT * FROM commissions WHERE sales_agent_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3",
		salesAgentID, limit, offset)
	return commissions, err
}

// MarkCommissionPaidTx transitions a pending commission to paid. Fails when
// the record is not pending, so a double payout cannot slip through.
func (s *Store) MarkCommissionPaidTx(ctx context.Context, tx *sqlx.Tx, id int64) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE commissions SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		models.CommissionPaid, id, models.CommissionPending)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperr.Newf(apperr.CodeConflict, "commission %d is not pending", id)
	}
	return nil
}
