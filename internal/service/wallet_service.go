package service

import (
	"context"
	"database/sql"
	"fmt"

	"settlement-service/config"
	"settlement-service/internal/apperr"
	"settlement-service/internal/models"
	"settlement-service/internal/store"
	"settlement-service/internal/util"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// withdrawalBands maps an upper bound (inclusive) to the withdrawal fee for
// amounts in that band. Amounts above the last bound pay the top fee.
var withdrawalBands = []struct {
	upTo decimal.Decimal
	fee  decimal.Decimal
}{
	{decimal.NewFromInt(500), decimal.NewFromInt(5)},
	{decimal.NewFromInt(1000), decimal.NewFromInt(10)},
	{decimal.NewFromInt(2500), decimal.NewFromInt(20)},
	{decimal.NewFromInt(5000), decimal.NewFromInt(30)},
}

var topBandFee = decimal.NewFromInt(50)

// BandedWithdrawalFee returns the fee for a withdrawal amount.
func BandedWithdrawalFee(amount decimal.Decimal) decimal.Decimal {
	for _, band := range withdrawalBands {
		if amount.LessThanOrEqual(band.upTo) {
			return band.fee
		}
	}
	return topBandFee
}

// WithdrawalCharges is the fee breakdown returned with a withdrawal. The
// ledger debits the gross amount; charges reduce the net payout only.
type WithdrawalCharges struct {
	MaintenanceCharge decimal.Decimal `json:"maintenance_charge"`
	WithdrawalFee     decimal.Decimal `json:"withdrawal_fee"`
	TotalCharges      decimal.Decimal `json:"total_charges"`
}

// WithdrawalResult reports the outcome of a withdrawal request.
type WithdrawalResult struct {
	Transaction *models.WalletTransaction `json:"transaction"`
	Charges     WithdrawalCharges         `json:"charges"`
	NetPayout   decimal.Decimal           `json:"net_payout"`
	Balance     decimal.Decimal           `json:"balance"`
}

// WalletService maintains the append-only wallet ledger. Balances are
// always derived by summation, never stored.
type WalletService struct {
	store  *store.Store
	cfg    config.WalletConfig
	logger *zap.Logger
}

// NewWalletService creates a new wallet service
func NewWalletService(store *store.Store, cfg config.WalletConfig) *WalletService {
	return &WalletService{
		store:  store,
		cfg:    cfg,
		logger: util.GetLogger(),
	}
}

// Balance derives a user's current balance from the ledger.
func (ws *WalletService) Balance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	return ws.store.WalletBalance(ctx, userID)
}

// Transactions returns a page of a user's ledger, newest first.
func (ws *WalletService) Transactions(ctx context.Context, userID int64, limit, offset int) ([]models.WalletTransaction, error) {
	return ws.store.GetWalletTransactions(ctx, userID, limit, offset)
}

// CreditTx appends a credit row inside the caller's transaction, holding
// the per-user wallet lock so the balance snapshots stay consistent.
func (ws *WalletService) CreditTx(
	ctx context.Context,
	tx *sqlx.Tx,
	userID int64,
	amount decimal.Decimal,
	txType, referenceType string,
	referenceID int64,
	description string,
) (*models.WalletTransaction, error) {
	if !amount.IsPositive() {
		return nil, apperr.Validation("credit amount must be positive")
	}
	if txType != models.WalletTxCredit && txType != models.WalletTxCashback {
		return nil, apperr.Newf(apperr.CodeValidation, "invalid credit type: %s", txType)
	}

	if err := ws.store.LockWalletTx(ctx, tx, userID); err != nil {
		return nil, err
	}

	balance, err := ws.store.WalletBalanceTx(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	transaction := &models.WalletTransaction{
		UserID:        userID,
		Type:          txType,
		Amount:        amount.Round(2),
		BalanceBefore: balance,
		BalanceAfter:  balance.Add(amount.Round(2)),
		ReferenceType: sql.NullString{String: referenceType, Valid: referenceType != ""},
		ReferenceID:   sql.NullInt64{Int64: referenceID, Valid: referenceID != 0},
		Description:   description,
		Status:        models.WalletTxCompleted,
	}

	if err := ws.store.InsertWalletTransactionTx(ctx, tx, transaction); err != nil {
		return nil, err
	}
	return transaction, nil
}

// Credit appends a credit row in its own transaction.
func (ws *WalletService) Credit(
	ctx context.Context,
	userID int64,
	amount decimal.Decimal,
	txType, referenceType string,
	referenceID int64,
	description string,
) (*models.WalletTransaction, error) {
	var transaction *models.WalletTransaction
	err := ws.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		transaction, err = ws.CreditTx(ctx, tx, userID, amount, txType, referenceType, referenceID, description)
		return err
	})
	return transaction, err
}

// CreditOrderCashbackTx credits an order's cashback to the customer inside
// the payment confirmation transaction. No-op for zero cashback.
func (ws *WalletService) CreditOrderCashbackTx(ctx context.Context, tx *sqlx.Tx, order *models.Order) (*models.WalletTransaction, error) {
	if !order.CashbackAmount.IsPositive() {
		return nil, nil
	}

	transaction, err := ws.CreditTx(ctx, tx, order.CustomerID, order.CashbackAmount,
		models.WalletTxCashback, "order", order.ID,
		fmt.Sprintf("Cashback for order %s", order.OrderNumber))
	if err != nil {
		return nil, err
	}

	util.CashbackCreditedTotal.Inc()
	ws.logger.Info("Cashback credited",
		zap.Int64("user_id", order.CustomerID),
		zap.Int64("order_id", order.ID),
		zap.String("amount", order.CashbackAmount.String()))
	return transaction, nil
}

// Withdraw debits the gross amount off the wallet ledger. The per-user
// advisory lock serializes concurrent withdrawals so the derived balance
// can never be spent twice. Charges are computed for the response; they do
// not change the debited amount.
func (ws *WalletService) Withdraw(ctx context.Context, userID int64, amount decimal.Decimal, description string) (*WithdrawalResult, error) {
	ctx, span := util.StartSpan(ctx, "WalletService.Withdraw")
	defer span.End()

	amount = amount.Round(2)
	if !amount.IsPositive() {
		util.WalletWithdrawalsRejected.WithLabelValues("invalid_amount").Inc()
		return nil, apperr.Validation("withdrawal amount must be positive")
	}
	if amount.LessThan(ws.cfg.MinWithdrawal) {
		util.WalletWithdrawalsRejected.WithLabelValues("below_minimum").Inc()
		return nil, apperr.Newf(apperr.CodeValidation,
			"minimum withdrawal is %s", ws.cfg.MinWithdrawal.StringFixed(2))
	}

	var result *WithdrawalResult
	err := ws.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := ws.store.LockWalletTx(ctx, tx, userID); err != nil {
			return err
		}

		balance, err := ws.store.WalletBalanceTx(ctx, tx, userID)
		if err != nil {
			return err
		}

		if amount.GreaterThan(balance) {
			util.WalletWithdrawalsRejected.WithLabelValues("insufficient_balance").Inc()
			return apperr.Newf(apperr.CodeInsufficientBalance,
				"insufficient balance: available=%s, requested=%s",
				balance.StringFixed(2), amount.StringFixed(2))
		}

		transaction := &models.WalletTransaction{
			UserID:        userID,
			Type:          models.WalletTxWithdrawal,
			Amount:        amount,
			BalanceBefore: balance,
			BalanceAfter:  balance.Sub(amount),
			Description:   description,
			Status:        models.WalletTxCompleted,
		}

		if err := ws.store.InsertWalletTransactionTx(ctx, tx, transaction); err != nil {
			return err
		}

		fee := BandedWithdrawalFee(amount)
		charges := WithdrawalCharges{
			MaintenanceCharge: ws.cfg.MaintenanceCharge,
			WithdrawalFee:     fee,
			TotalCharges:      ws.cfg.MaintenanceCharge.Add(fee),
		}

		result = &WithdrawalResult{
			Transaction: transaction,
			Charges:     charges,
			NetPayout:   amount.Sub(charges.TotalCharges),
			Balance:     transaction.BalanceAfter,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.WalletWithdrawalsTotal.Inc()
	ws.logger.Info("Withdrawal completed",
		zap.Int64("user_id", userID),
		zap.String("amount", amount.String()),
		zap.String("net_payout", result.NetPayout.String()))
	return result, nil
}
