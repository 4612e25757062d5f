package service

import (
	"context"

	"settlement-service/internal/models"
	"settlement-service/internal/store"
	"settlement-service/internal/util"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// commissionRates maps a customer's per-agent order sequence number to the
// commission percentage. Sequences past the table earn nothing.
var commissionRates = map[int]decimal.Decimal{
	1: decimal.NewFromInt(6),
	2: decimal.NewFromInt(4),
	3: decimal.NewFromInt(3),
	4: decimal.NewFromInt(2),
}

// RateForSequence returns the commission percentage for an order sequence
// number. Deterministic: same sequence, same rate.
func RateForSequence(sequence int) decimal.Decimal {
	if rate, ok := commissionRates[sequence]; ok {
		return rate
	}
	return decimal.Zero
}

// CommissionService tracks per-(customer, agent) order sequences and turns
// them into commission records.
type CommissionService struct {
	store  *store.Store
	logger *zap.Logger
}

// NewCommissionService creates a new commission service
func NewCommissionService(store *store.Store) *CommissionService {
	return &CommissionService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// RecordOrderCommissionTx advances the (customer, agent) sequence and, when
// the sequence still earns a rate, inserts a pending commission on the
// VAT-exclusive order subtotal. Runs inside the order creation transaction
// so sequences stay gap-free and a failed order never leaves a commission
// behind. Returns nil when the sequence earns no commission.
func (cs *CommissionService) RecordOrderCommissionTx(
	ctx context.Context,
	tx *sqlx.Tx,
	salesAgentID, customerID, orderID int64,
	orderSubtotalExclVAT decimal.Decimal,
) (*models.Commission, error) {
	sequence, err := cs.store.NextAgentSequenceTx(ctx, tx, customerID, salesAgentID)
	if err != nil {
		return nil, err
	}

	rate := RateForSequence(sequence)
	if rate.IsZero() {
		cs.logger.Debug("Order past commission window",
			zap.Int64("sales_agent_id", salesAgentID),
			zap.Int64("customer_id", customerID),
			zap.Int("sequence", sequence))
		return nil, nil
	}

	commission := &models.Commission{
		SalesAgentID:     salesAgentID,
		CustomerID:       customerID,
		OrderID:          orderID,
		OrderSequence:    sequence,
		Rate:             rate,
		OrderAmount:      orderSubtotalExclVAT,
		CommissionAmount: orderSubtotalExclVAT.Mul(rate).Div(decimal.NewFromInt(100)).Round(2),
		Status:           models.CommissionPending,
	}

	if err := cs.store.CreateCommissionTx(ctx, tx, commission); err != nil {
		return nil, err
	}

	util.CommissionsRecordedTotal.Inc()
	cs.logger.Info("Commission recorded",
		zap.Int64("sales_agent_id", salesAgentID),
		zap.Int64("order_id", orderID),
		zap.Int("sequence", sequence),
		zap.String("rate", rate.String()),
		zap.String("amount", commission.CommissionAmount.String()))

	return commission, nil
}

// ListByAgent returns an agent's commissions, newest first.
func (cs *CommissionService) ListByAgent(ctx context.Context, salesAgentID int64, limit, offset int) ([]models.Commission, error) {
	return cs.store.GetCommissionsByAgent(ctx, salesAgentID, limit, offset)
}

// MarkPaid transitions a pending commission to paid (admin action) and
// returns the updated record.
func (cs *CommissionService) MarkPaid(ctx context.Context, commissionID int64) (*models.Commission, error) {
	ctx, span := util.StartSpan(ctx, "CommissionService.MarkPaid")
	defer span.End()

	err := cs.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return cs.store.MarkCommissionPaidTx(ctx, tx, commissionID)
	})
	if err != nil {
		return nil, err
	}

	return cs.store.GetCommissionByID(ctx, commissionID)
}
