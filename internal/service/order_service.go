package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"settlement-service/internal/apperr"
	"settlement-service/internal/broker"
	"settlement-service/internal/models"
	"settlement-service/internal/pricing"
	"settlement-service/internal/redisclient"
	"settlement-service/internal/store"
	"settlement-service/internal/util"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// OrderService orchestrates order settlement: pricing, stock reservation,
// commission and the order lifecycle, each mutation inside one transaction.
type OrderService struct {
	store          *store.Store
	redis          *redisclient.Client
	eventPublisher *broker.EventPublisher
	commission     *CommissionService
	wallet         *WalletService
	logger         *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	store *store.Store,
	redis *redisclient.Client,
	eventPublisher *broker.EventPublisher,
	commission *CommissionService,
	wallet *WalletService,
) *OrderService {
	return &OrderService{
		store:          store,
		redis:          redis,
		eventPublisher: eventPublisher,
		commission:     commission,
		wallet:         wallet,
		logger:         util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	CustomerID      int64                 `json:"-"`
	SalesAgentID    *int64                `json:"sales_agent_id,omitempty"`
	Items           []pricing.LineRequest `json:"items" binding:"required,min=1,dive"`
	ShippingAddress string                `json:"shipping_address" binding:"required"`
	BillingAddress  string                `json:"billing_address,omitempty"`
	Notes           string                `json:"notes,omitempty"`
}

// CreateOrderResponse represents the response after creating an order
type CreateOrderResponse struct {
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Total       string `json:"total"`
	Cashback    string `json:"cashback"`
}

// CreateOrder runs the create-order protocol in a single transaction:
// price the cart, insert the order and its lines, reserve stock per line,
// record the agent commission. Any failure rolls the whole order back.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	start := time.Now()
	defer func() {
		util.OrderSettlementLatency.Observe(time.Since(start).Seconds())
	}()

	products, tiers, err := s.loadCatalog(ctx, req.Items)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("catalog_lookup").Inc()
		return nil, err
	}

	totals, err := pricing.Calculate(req.Items, products, tiers)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	order := &models.Order{
		OrderNumber:    generateOrderNumber(),
		CustomerID:     req.CustomerID,
		Status:         models.OrderStatusPending,
		PaymentStatus:  models.PaymentStatusPending,
		Subtotal:       totals.Subtotal,
		VATAmount:      totals.VATAmount,
		TotalAmount:    totals.Total,
		CashbackAmount: totals.TotalCashback,
		ShippingAddr:   req.ShippingAddress,
		BillingAddr:    sql.NullString{String: req.BillingAddress, Valid: req.BillingAddress != ""},
		Notes:          sql.NullString{String: req.Notes, Valid: req.Notes != ""},
	}
	if req.SalesAgentID != nil {
		order.SalesAgentID = sql.NullInt64{Int64: *req.SalesAgentID, Valid: true}
	}

	var stockEvents []*models.StockMovedEvent
	err = s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.store.CreateOrderTx(ctx, tx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		for _, line := range totals.Lines {
			item := &models.OrderItem{
				OrderID:        order.ID,
				ProductID:      line.ProductID,
				Quantity:       line.Quantity,
				UnitPrice:      line.UnitPrice,
				TotalPrice:     line.TotalPrice,
				CashbackAmount: line.Cashback,
			}
			if err := s.store.CreateOrderItemTx(ctx, tx, item); err != nil {
				return fmt.Errorf("failed to create order item: %w", err)
			}

			after, err := s.store.ReserveStockTx(ctx, tx, line.ProductID, line.Quantity, order.ID)
			if err != nil {
				util.StockReservationsFailed.WithLabelValues(failureReason(err)).Inc()
				return err
			}
			stockEvents = append(stockEvents, s.stockMovedEvent(line.ProductID, models.MovementOut, -line.Quantity, after))
		}

		if order.SalesAgentID.Valid {
			if _, err := s.commission.RecordOrderCommissionTx(ctx, tx,
				order.SalesAgentID.Int64, order.CustomerID, order.ID, order.Subtotal); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("total", order.TotalAmount.String()))

	s.publishStockEvents(ctx, stockEvents)

	itemData := make([]models.OrderItemData, 0, len(totals.Lines))
	for _, line := range totals.Lines {
		itemData = append(itemData, models.OrderItemData{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}
	event := &models.OrderCreatedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeOrderCreated),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		TotalAmount: order.TotalAmount,
		Cashback:    order.CashbackAmount,
		Items:       itemData,
	}
	if err := s.eventPublisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	return &CreateOrderResponse{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Total:       order.TotalAmount.StringFixed(2),
		Cashback:    order.CashbackAmount.StringFixed(2),
	}, nil
}

// CancelOrder runs the cancel-order protocol: guard on the current status,
// restore every reserved line, cancel any pending commission.
func (s *OrderService) CancelOrder(ctx context.Context, orderID int64, reason string) error {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder")
	defer span.End()

	var cancelled *models.Order
	var stockEvents []*models.StockMovedEvent
	err := s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		order, err := s.store.GetOrderForUpdateTx(ctx, tx, orderID)
		if err != nil {
			return err
		}

		events, err := s.cancelOrderTx(ctx, tx, order)
		if err != nil {
			return err
		}
		cancelled = order
		stockEvents = events
		return nil
	})
	if err != nil {
		return err
	}

	util.OrdersCancelledTotal.Inc()
	s.logger.Info("Order cancelled",
		zap.Int64("order_id", orderID),
		zap.String("reason", reason))

	s.publishStockEvents(ctx, stockEvents)

	event := &models.OrderCancelledEvent{
		BaseEvent:  newBaseEvent(models.EventTypeOrderCancelled),
		OrderID:    orderID,
		CustomerID: cancelled.CustomerID,
		Reason:     reason,
	}
	if err := s.eventPublisher.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}

	return nil
}

// cancelOrderTx restores stock for every line and marks the order
// cancelled, inside the caller's transaction which holds the order lock.
func (s *OrderService) cancelOrderTx(ctx context.Context, tx *sqlx.Tx, order *models.Order) ([]*models.StockMovedEvent, error) {
	if !models.CancellableStatuses[order.Status] {
		return nil, apperr.Newf(apperr.CodeConflict,
			"order %d cannot be cancelled from status %s", order.ID, order.Status)
	}

	items, err := s.store.GetOrderItemsByOrderIDTx(ctx, tx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}

	var stockEvents []*models.StockMovedEvent
	for _, item := range items {
		after, err := s.store.RestoreStockTx(ctx, tx, item.ProductID, item.Quantity, order.ID)
		if err != nil {
			return nil, err
		}
		stockEvents = append(stockEvents, s.stockMovedEvent(item.ProductID, models.MovementIn, item.Quantity, after))
	}

	if err := s.store.CancelCommissionForOrderTx(ctx, tx, order.ID); err != nil {
		return nil, fmt.Errorf("failed to cancel commission: %w", err)
	}

	if err := s.store.UpdateOrderStatusTx(ctx, tx, order.ID, models.OrderStatusCancelled); err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	order.Status = models.OrderStatusCancelled

	return stockEvents, nil
}

// UpdateStatusRequest is the admin status mutation.
type UpdateStatusRequest struct {
	Status         string `json:"status,omitempty"`
	PaymentStatus  string `json:"payment_status,omitempty"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

// UpdateStatus applies an admin status mutation. A status of cancelled runs
// the full cancellation protocol; payment_status=paid runs the payment
// confirmation side effects including the cashback credit.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID int64, req *UpdateStatusRequest) error {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus")
	defer span.End()

	if req.Status == "" && req.PaymentStatus == "" && req.TrackingNumber == "" {
		return apperr.Validation("nothing to update")
	}

	var stockEvents []*models.StockMovedEvent
	err := s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		order, err := s.store.GetOrderForUpdateTx(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if req.Status == models.OrderStatusCancelled {
			events, err := s.cancelOrderTx(ctx, tx, order)
			if err != nil {
				return err
			}
			stockEvents = events
		} else if req.Status != "" {
			if !models.ValidStatusTransition(order.Status, req.Status) {
				return apperr.Newf(apperr.CodeConflict,
					"invalid status transition %s -> %s", order.Status, req.Status)
			}
			if err := s.store.UpdateOrderStatusTx(ctx, tx, orderID, req.Status); err != nil {
				return err
			}
			order.Status = req.Status
		}

		if req.PaymentStatus != "" {
			if err := s.applyPaymentStatusTx(ctx, tx, order, req.PaymentStatus); err != nil {
				return err
			}
		}

		if req.TrackingNumber != "" {
			if err := s.store.UpdateOrderTrackingTx(ctx, tx, orderID, req.TrackingNumber); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	if len(stockEvents) > 0 {
		util.OrdersCancelledTotal.Inc()
		s.publishStockEvents(ctx, stockEvents)
	}
	return nil
}

// applyPaymentStatusTx mutates the order's payment status. Marking an order
// paid is idempotent: an already-paid order is left untouched, so a repeat
// can never double-credit cashback.
func (s *OrderService) applyPaymentStatusTx(ctx context.Context, tx *sqlx.Tx, order *models.Order, paymentStatus string) error {
	switch paymentStatus {
	case models.PaymentStatusPaid, models.PaymentStatusFailed, models.PaymentStatusRefunded:
	default:
		return apperr.Newf(apperr.CodeValidation, "invalid payment status: %s", paymentStatus)
	}

	if order.PaymentStatus == paymentStatus {
		return nil
	}
	if !models.ValidPaymentTransition(order.PaymentStatus, paymentStatus) {
		return apperr.Newf(apperr.CodeConflict,
			"order %d cannot move from payment status %s to %s",
			order.ID, order.PaymentStatus, paymentStatus)
	}

	if paymentStatus == models.PaymentStatusPaid {
		return s.MarkOrderPaidTx(ctx, tx, order)
	}
	return s.store.UpdateOrderPaymentStatusTx(ctx, tx, order.ID, paymentStatus)
}

// MarkOrderPaidTx applies the payment-confirmed side effects inside the
// caller's transaction: payment status paid, a pending order moves to
// confirmed, cashback lands on the customer's wallet ledger.
func (s *OrderService) MarkOrderPaidTx(ctx context.Context, tx *sqlx.Tx, order *models.Order) error {
	if err := s.store.UpdateOrderPaymentStatusTx(ctx, tx, order.ID, models.PaymentStatusPaid); err != nil {
		return err
	}
	order.PaymentStatus = models.PaymentStatusPaid

	if order.Status == models.OrderStatusPending {
		if err := s.store.UpdateOrderStatusTx(ctx, tx, order.ID, models.OrderStatusConfirmed); err != nil {
			return err
		}
		order.Status = models.OrderStatusConfirmed
	}

	if _, err := s.wallet.CreditOrderCashbackTx(ctx, tx, order); err != nil {
		return err
	}

	util.OrdersPaidTotal.Inc()
	return nil
}

// GetOrder retrieves an order and its lines.
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	return order, items, nil
}

// ListOrders returns a customer's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, customerID int64) ([]models.Order, error) {
	return s.store.GetOrdersByCustomerID(ctx, customerID)
}

// catalogEntry is the cached product + tiers snapshot for pricing reads.
type catalogEntry struct {
	Product *models.Product      `json:"product"`
	Tiers   []models.PricingTier `json:"tiers"`
}

// GetQuote resolves the tier price for one product and quantity, serving
// the catalog snapshot from Redis when possible.
func (s *OrderService) GetQuote(ctx context.Context, productID int64, quantity int) (*pricing.Quote, error) {
	entry, err := s.catalogEntry(ctx, productID)
	if err != nil {
		return nil, err
	}
	return pricing.ResolveTier(entry.Product, entry.Tiers, quantity)
}

func (s *OrderService) catalogEntry(ctx context.Context, productID int64) (*catalogEntry, error) {
	cacheKey := fmt.Sprintf("catalog:%d", productID)

	var cached catalogEntry
	hit, err := s.redis.GetJSON(ctx, cacheKey, &cached)
	if err != nil {
		s.logger.Warn("Catalog cache read failed", zap.Error(err))
	}
	if hit {
		return &cached, nil
	}

	product, err := s.store.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	tiers, err := s.store.GetPricingTiers(ctx, productID)
	if err != nil {
		return nil, err
	}

	entry := &catalogEntry{Product: product, Tiers: tiers}
	if err := s.redis.CacheJSON(ctx, cacheKey, entry, 5*time.Minute); err != nil {
		s.logger.Warn("Catalog cache write failed", zap.Error(err))
	}
	return entry, nil
}

// loadCatalog fetches products and tiers for every distinct line.
func (s *OrderService) loadCatalog(ctx context.Context, items []pricing.LineRequest) (map[int64]*models.Product, map[int64][]models.PricingTier, error) {
	ids := make([]int64, 0, len(items))
	seen := make(map[int64]bool, len(items))
	for _, item := range items {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			ids = append(ids, item.ProductID)
		}
	}

	products, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	productMap := make(map[int64]*models.Product, len(products))
	tierMap := make(map[int64][]models.PricingTier, len(products))
	for i := range products {
		p := &products[i]
		productMap[p.ID] = p

		tiers, err := s.store.GetPricingTiers(ctx, p.ID)
		if err != nil {
			return nil, nil, err
		}
		tierMap[p.ID] = tiers
	}

	return productMap, tierMap, nil
}

func (s *OrderService) stockMovedEvent(productID int64, movementType string, quantity, after int) *models.StockMovedEvent {
	return &models.StockMovedEvent{
		BaseEvent:    newBaseEvent(models.EventTypeStockMoved),
		ProductID:    productID,
		MovementType: movementType,
		Quantity:     quantity,
		StockAfter:   after,
	}
}

func (s *OrderService) publishStockEvents(ctx context.Context, events []*models.StockMovedEvent) {
	for _, event := range events {
		if err := s.eventPublisher.PublishStockMoved(ctx, event); err != nil {
			s.logger.Error("Failed to publish StockMoved event",
				zap.Int64("product_id", event.ProductID),
				zap.Error(err))
		}
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// generateOrderNumber builds a human-readable order reference.
func generateOrderNumber() string {
	suffix := strings.ToUpper(uuid.New().String()[:8])
	return fmt.Sprintf("ORD-%s-%s", time.Now().Format("20060102"), suffix)
}

// failureReason maps an error to a low-cardinality metric label.
func failureReason(err error) string {
	switch apperr.CodeOf(err) {
	case apperr.CodeInsufficientStock:
		return "insufficient_stock"
	case apperr.CodeNotFound:
		return "not_found"
	case apperr.CodeValidation:
		return "validation"
	default:
		return "internal"
	}
}
