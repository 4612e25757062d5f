package service

import (
	"context"
	"fmt"

	"settlement-service/internal/broker"
	"settlement-service/internal/models"
	"settlement-service/internal/redisclient"
	"settlement-service/internal/store"
	"settlement-service/internal/util"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// StockService handles manual stock corrections and availability reads.
// Order-driven stock mutations live in the order transaction, not here.
type StockService struct {
	store          *store.Store
	redis          *redisclient.Client
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
}

// NewStockService creates a new stock service
func NewStockService(store *store.Store, redis *redisclient.Client, eventPublisher *broker.EventPublisher) *StockService {
	return &StockService{
		store:          store,
		redis:          redis,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// AdjustResult reports a manual stock correction.
type AdjustResult struct {
	ProductID  int64 `json:"product_id"`
	Delta      int   `json:"delta"`
	StockUnits int   `json:"stock_units"`
}

// Adjust sets a product's stock to an absolute value, recording the
// reconciling movement in the same transaction.
func (ss *StockService) Adjust(ctx context.Context, productID int64, newQuantity int, notes string) (*AdjustResult, error) {
	ctx, span := util.StartSpan(ctx, "StockService.Adjust")
	defer span.End()

	var result *AdjustResult
	err := ss.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		delta, after, err := ss.store.AdjustStockTx(ctx, tx, productID, newQuantity, notes)
		if err != nil {
			return err
		}
		result = &AdjustResult{ProductID: productID, Delta: delta, StockUnits: after}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Delta != 0 {
		util.StockAdjustmentsTotal.Inc()
		ss.logger.Info("Stock adjusted",
			zap.Int64("product_id", productID),
			zap.Int("delta", result.Delta),
			zap.Int("stock_units", result.StockUnits))

		// The cached catalog entry carries the old stock level.
		if err := ss.redis.InvalidateKey(ctx, fmt.Sprintf("catalog:%d", productID)); err != nil {
			ss.logger.Warn("Failed to invalidate catalog cache", zap.Error(err))
		}

		event := &models.StockMovedEvent{
			BaseEvent:    newBaseEvent(models.EventTypeStockMoved),
			ProductID:    productID,
			MovementType: models.MovementAdjustment,
			Quantity:     result.Delta,
			StockAfter:   result.StockUnits,
		}
		if err := ss.eventPublisher.PublishStockMoved(ctx, event); err != nil {
			ss.logger.Error("Failed to publish StockMoved event", zap.Error(err))
		}
	}

	return result, nil
}

// Availability reads a product's stock level, preferring the Redis
// snapshot and falling back to the authoritative counter.
func (ss *StockService) Availability(ctx context.Context, productID int64) (int, error) {
	stock, ok, err := ss.redis.GetStockSnapshot(ctx, productID)
	if err != nil {
		ss.logger.Warn("Stock snapshot read failed, falling back to DB",
			zap.Int64("product_id", productID),
			zap.Error(err))
	}
	if ok && err == nil {
		return stock, nil
	}

	return ss.store.GetProductStock(ctx, productID)
}

// Movements lists recent inventory movements for a product.
func (ss *StockService) Movements(ctx context.Context, productID int64, limit int) ([]models.InventoryMovement, error) {
	return ss.store.GetInventoryMovements(ctx, productID, limit)
}

// SyncSnapshot mirrors a stock level into Redis. Called by the snapshot
// worker when a StockMoved event arrives.
func (ss *StockService) SyncSnapshot(ctx context.Context, productID int64, stock int) error {
	return ss.redis.SetStockSnapshot(ctx, productID, stock)
}
