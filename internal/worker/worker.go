package worker

import (
	"context"
	"log"

	"settlement-service/internal/broker"
	"settlement-service/internal/models"
	"settlement-service/internal/service"
)

// StockSnapshotWorker consumes StockMoved events and mirrors the stock
// counter into Redis. The mirror is read-only serving; losing an event only
// means a stale snapshot until the next movement, the DB stays
// authoritative.
type StockSnapshotWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
}

// NewStockSnapshotWorker creates a new stock snapshot worker
func NewStockSnapshotWorker(consumer *broker.Consumer, stockService *service.StockService) *StockSnapshotWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnStockMoved(func(ctx context.Context, event *models.StockMovedEvent) error {
		return stockService.SyncSnapshot(ctx, event.ProductID, event.StockAfter)
	})

	return &StockSnapshotWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
	}
}

// Start starts the worker
func (w *StockSnapshotWorker) Start(ctx context.Context) error {
	log.Println("Starting stock snapshot worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StockSnapshotWorker) Stop() error {
	log.Println("Stopping stock snapshot worker...")
	return w.consumer.Close()
}
