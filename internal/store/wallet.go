package store

import (
	"context"
	"fmt"

	"settlement-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const walletBalanceQuery = `
	SELECT COALESCE(SUM(
		CASE WHEN transaction_type IN ('credit', 'cashback') THEN amount
		     ELSE -amount END), 0)
	FROM wallet_transactions
	WHERE user_id = $1 AND status = 'completed'`

// WalletBalance derives a user's balance by summation over the ledger.
// There is no stored balance column anywhere.
func (s *Store) WalletBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	if err := s.db.GetContext(ctx, &balance, walletBalanceQuery, userID); err != nil {
		return decimal.Zero, fmt.Errorf("failed to derive wallet balance: %w", err)
	}
	return balance, nil
}

// LockWalletTx takes a per-user advisory lock for the duration of the
// caller's transaction. A SUM cannot be row-locked, so this is what keeps
// concurrent withdrawals from both reading the same balance.
func (s *Store) LockWalletTx(ctx context.Context, tx *sqlx.Tx, userID int64) error {
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", userID); err != nil {
		return fmt.Errorf("failed to lock wallet: %w", err)
	}
	return nil
}

// WalletBalanceTx derives the balance inside the caller's transaction.
// Callers mutating the ledger must hold the wallet lock first.
func (s *Store) WalletBalanceTx(ctx context.Context, tx *sqlx.Tx, userID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	if err := tx.GetContext(ctx, &balance, walletBalanceQuery, userID); err != nil {
		return decimal.Zero, fmt.Errorf("failed to derive wallet balance: %w", err)
	}
	return balance, nil
}

// InsertWalletTransactionTx appends a ledger row. Rows are never updated or
// deleted afterwards.
func (s *Store) InsertWalletTransactionTx(ctx context.Context, tx *sqlx.Tx, t *models.WalletTransaction) error {
	query := `
		INSERT INTO wallet_transactions (user_id, transaction_type, amount,
			balance_before, balance_after, reference_type, reference_id, description, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	err := tx.GetContext(ctx, t, query,
		t.UserID, t.Type, t.Amount, t.BalanceBefore, t.BalanceAfter,
		t.ReferenceType, t.ReferenceID, t.Description, t.Status)
	if err != nil {
		return fmt.Errorf("failed to append wallet transaction: %w", err)
	}
	return nil
}

// GetWalletTransactions retrieves a page of a user's ledger, newest first.
func (s *Store) GetWalletTransactions(ctx context.Context, userID int64, limit, offset int) ([]models.WalletTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	var transactions []models.WalletTransaction
	err := s.db.SelectContext(ctx, &transactions,
		"SELECT * FROM wallet_transactions WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3",
		userID, limit, offset)
	return transactions, err
}
