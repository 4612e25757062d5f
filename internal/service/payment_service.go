package service

import (
	"context"
	"time"

	"settlement-service/internal/apperr"
	"settlement-service/internal/broker"
	"settlement-service/internal/gateway"
	"settlement-service/internal/models"
	"settlement-service/internal/redisclient"
	"settlement-service/internal/store"
	"settlement-service/internal/util"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// callbackSeenTTL bounds the Redis fast-path replay check. The payment row
// status remains the real guard after the key expires.
const callbackSeenTTL = 48 * time.Hour

// PaymentService wraps the mobile-money gateways and applies their
// callbacks to orders. Callback handling is idempotent on the gateway's
// external reference.
type PaymentService struct {
	store          *store.Store
	orders         *OrderService
	redis          *redisclient.Client
	eventPublisher *broker.EventPublisher
	mpesa          *gateway.MpesaClient
	kcb            *gateway.KCBClient
	logger         *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	store *store.Store,
	orders *OrderService,
	redis *redisclient.Client,
	eventPublisher *broker.EventPublisher,
	mpesa *gateway.MpesaClient,
	kcb *gateway.KCBClient,
) *PaymentService {
	return &PaymentService{
		store:          store,
		orders:         orders,
		redis:          redis,
		eventPublisher: eventPublisher,
		mpesa:          mpesa,
		kcb:            kcb,
		logger:         util.GetLogger(),
	}
}

// InitiatePaymentRequest starts a gateway payment for an order.
type InitiatePaymentRequest struct {
	OrderID     int64  `json:"order_id" binding:"required"`
	PhoneNumber string `json:"phone_number" binding:"required"`
}

// InitiateMpesa sends an STK push for the order total and records the
// payment attempt keyed by the gateway's checkout request ID.
func (ps *PaymentService) InitiateMpesa(ctx context.Context, req *InitiatePaymentRequest) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.InitiateMpesa")
	defer span.End()

	order, err := ps.initiableOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	resp, err := ps.mpesa.STKPush(ctx, &gateway.STKPushRequest{
		PhoneNumber:      req.PhoneNumber,
		Amount:           order.TotalAmount,
		AccountReference: order.OrderNumber,
		Description:      "Order " + order.OrderNumber,
	})
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		OrderID:     order.ID,
		Provider:    models.ProviderMpesa,
		ExternalRef: resp.CheckoutRequestID,
		PhoneNumber: req.PhoneNumber,
		Amount:      order.TotalAmount,
		Status:      models.GatewayPaymentPending,
	}
	if err := ps.store.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	util.PaymentInitiationsTotal.WithLabelValues(models.ProviderMpesa).Inc()
	ps.logger.Info("M-Pesa payment initiated",
		zap.Int64("order_id", order.ID),
		zap.String("external_ref", payment.ExternalRef))
	return payment, nil
}

// InitiateKCB requests a KCB mobile debit for the order total.
func (ps *PaymentService) InitiateKCB(ctx context.Context, req *InitiatePaymentRequest) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.InitiateKCB")
	defer span.End()

	order, err := ps.initiableOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	resp, err := ps.kcb.InitiatePayment(ctx, &gateway.InitiateRequest{
		PhoneNumber:   req.PhoneNumber,
		Amount:        order.TotalAmount,
		InvoiceNumber: order.OrderNumber,
	})
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		OrderID:     order.ID,
		Provider:    models.ProviderKCB,
		ExternalRef: resp.TransactionReference,
		PhoneNumber: req.PhoneNumber,
		Amount:      order.TotalAmount,
		Status:      models.GatewayPaymentPending,
	}
	if err := ps.store.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	util.PaymentInitiationsTotal.WithLabelValues(models.ProviderKCB).Inc()
	ps.logger.Info("KCB payment initiated",
		zap.Int64("order_id", order.ID),
		zap.String("external_ref", payment.ExternalRef))
	return payment, nil
}

// initiableOrder loads an order and rejects initiation when it is already
// paid or cancelled.
func (ps *PaymentService) initiableOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := ps.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus == models.PaymentStatusPaid {
		return nil, apperr.Newf(apperr.CodeConflict, "order %d is already paid", orderID)
	}
	if order.Status == models.OrderStatusCancelled {
		return nil, apperr.Newf(apperr.CodeConflict, "order %d is cancelled", orderID)
	}
	return order, nil
}

// HandleMpesaCallback applies a Daraja STK callback. Errors are returned
// for logging only; the webhook handler responds 200 regardless.
func (ps *PaymentService) HandleMpesaCallback(ctx context.Context, cb *gateway.STKCallback) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandleMpesaCallback")
	defer span.End()

	if cb.Succeeded() {
		return ps.ConfirmPayment(ctx, models.ProviderMpesa, cb.ExternalRef(), cb.ReceiptNumber())
	}
	return ps.FailPayment(ctx, models.ProviderMpesa, cb.ExternalRef(), cb.Body.StkCallback.ResultDesc)
}

// HandleKCBCallback applies a KCB payment callback.
func (ps *PaymentService) HandleKCBCallback(ctx context.Context, cb *gateway.KCBCallback) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandleKCBCallback")
	defer span.End()

	if cb.Succeeded() {
		return ps.ConfirmPayment(ctx, models.ProviderKCB, cb.TransactionReference, cb.TransactionID)
	}
	return ps.FailPayment(ctx, models.ProviderKCB, cb.TransactionReference, cb.ResultDescription)
}

// ConfirmPayment runs the payment-confirmed protocol in one transaction:
// the payment row moves to completed, the order is marked paid and
// confirmed, cashback is credited. A replay of the same external reference
// is a no-op because the row lock plus the completed-status guard make the
// first transition the only one.
func (ps *PaymentService) ConfirmPayment(ctx context.Context, provider, externalRef, resultDesc string) error {
	firstSeen, err := ps.redis.MarkCallbackSeen(ctx, provider, externalRef, callbackSeenTTL)
	if err != nil {
		ps.logger.Warn("Callback replay pre-check unavailable", zap.Error(err))
	} else if !firstSeen {
		util.PaymentCallbackReplays.Inc()
		ps.logger.Info("Callback replay ignored",
			zap.String("provider", provider),
			zap.String("external_ref", externalRef))
		return nil
	}

	var confirmed *models.Payment
	var order *models.Order
	err = ps.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		payment, err := ps.store.GetPaymentByExternalRefTx(ctx, tx, provider, externalRef)
		if err != nil {
			return err
		}
		if payment.Status == models.GatewayPaymentCompleted {
			util.PaymentCallbackReplays.Inc()
			return nil
		}

		if err := ps.store.UpdatePaymentStatusTx(ctx, tx, payment.ID, models.GatewayPaymentCompleted, resultDesc); err != nil {
			return err
		}

		o, err := ps.store.GetOrderForUpdateTx(ctx, tx, payment.OrderID)
		if err != nil {
			return err
		}
		if o.PaymentStatus != models.PaymentStatusPaid {
			if err := ps.orders.MarkOrderPaidTx(ctx, tx, o); err != nil {
				return err
			}
		}

		confirmed = payment
		order = o
		return nil
	})
	if err != nil {
		util.PaymentCallbacksTotal.WithLabelValues(provider, "error").Inc()
		// Drop the marker so the gateway's retry reaches the row guard
		// instead of being swallowed by the pre-check.
		if clearErr := ps.redis.ClearCallbackSeen(ctx, provider, externalRef); clearErr != nil {
			ps.logger.Warn("Failed to clear callback marker after settlement error",
				zap.String("provider", provider),
				zap.String("external_ref", externalRef),
				zap.Error(clearErr))
		}
		return err
	}
	if confirmed == nil {
		return nil
	}

	util.PaymentCallbacksTotal.WithLabelValues(provider, "confirmed").Inc()
	ps.logger.Info("Payment confirmed",
		zap.String("provider", provider),
		zap.String("external_ref", externalRef),
		zap.Int64("order_id", confirmed.OrderID))

	event := &models.PaymentConfirmedEvent{
		BaseEvent:   newBaseEvent(models.EventTypePaymentConfirmed),
		OrderID:     confirmed.OrderID,
		PaymentID:   confirmed.ID,
		Provider:    provider,
		ExternalRef: externalRef,
		Amount:      confirmed.Amount,
	}
	if err := ps.eventPublisher.PublishPaymentConfirmed(ctx, event); err != nil {
		ps.logger.Error("Failed to publish PaymentConfirmed event", zap.Error(err))
	}

	if order.CashbackAmount.IsPositive() {
		cashbackEvent := &models.CashbackCreditedEvent{
			BaseEvent: newBaseEvent(models.EventTypeCashbackCredited),
			UserID:    order.CustomerID,
			OrderID:   order.ID,
			Amount:    order.CashbackAmount,
		}
		if err := ps.eventPublisher.PublishCashbackCredited(ctx, cashbackEvent); err != nil {
			ps.logger.Error("Failed to publish CashbackCredited event", zap.Error(err))
		}
	}

	return nil
}

// FailPayment records a terminal gateway failure. No automatic retry; the
// customer re-initiates manually.
func (ps *PaymentService) FailPayment(ctx context.Context, provider, externalRef, reason string) error {
	var failed *models.Payment
	err := ps.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		payment, err := ps.store.GetPaymentByExternalRefTx(ctx, tx, provider, externalRef)
		if err != nil {
			return err
		}
		if payment.Status != models.GatewayPaymentPending {
			util.PaymentCallbackReplays.Inc()
			return nil
		}

		if err := ps.store.UpdatePaymentStatusTx(ctx, tx, payment.ID, models.GatewayPaymentFailed, reason); err != nil {
			return err
		}

		order, err := ps.store.GetOrderForUpdateTx(ctx, tx, payment.OrderID)
		if err != nil {
			return err
		}
		if order.PaymentStatus == models.PaymentStatusPending {
			if err := ps.store.UpdateOrderPaymentStatusTx(ctx, tx, order.ID, models.PaymentStatusFailed); err != nil {
				return err
			}
		}

		failed = payment
		return nil
	})
	if err != nil {
		util.PaymentCallbacksTotal.WithLabelValues(provider, "error").Inc()
		return err
	}
	if failed == nil {
		return nil
	}

	util.PaymentCallbacksTotal.WithLabelValues(provider, "failed").Inc()
	ps.logger.Warn("Payment failed",
		zap.String("provider", provider),
		zap.String("external_ref", externalRef),
		zap.String("reason", reason))

	event := &models.PaymentFailedEvent{
		BaseEvent:   newBaseEvent(models.EventTypePaymentFailed),
		OrderID:     failed.OrderID,
		PaymentID:   failed.ID,
		Provider:    provider,
		ExternalRef: externalRef,
		Reason:      reason,
	}
	if err := ps.eventPublisher.PublishPaymentFailed(ctx, event); err != nil {
		ps.logger.Error("Failed to publish PaymentFailed event", zap.Error(err))
	}

	return nil
}

// GetPaymentsForOrder lists payment attempts for an order.
func (ps *PaymentService) GetPaymentsForOrder(ctx context.Context, orderID int64) ([]models.Payment, error) {
	return ps.store.GetPaymentsByOrderID(ctx, orderID)
}
