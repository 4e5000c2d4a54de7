package worker

import (
	"context"
	"fmt"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Indexer is the part of the search index the worker keeps in sync
type Indexer interface {
	IndexProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id string) error
}

// MessageSource delivers product events to a handler until ctx is done
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// SearchIndexWorker keeps the product search index in step with catalog writes
type SearchIndexWorker struct {
	source       MessageSource
	index        Indexer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewSearchIndexWorker creates a worker that applies product events from source to index
func NewSearchIndexWorker(source MessageSource, index Indexer) *SearchIndexWorker {
	w := &SearchIndexWorker{
		source:       source,
		index:        index,
		eventHandler: broker.NewEventHandler(),
		logger:       util.GetLogger().Named("search-worker"),
	}
	w.eventHandler.OnProductUpsert(w.upsert)
	w.eventHandler.OnProductDelete(w.remove)
	return w
}

// Start consumes until ctx is cancelled
func (w *SearchIndexWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting search index worker")
	return w.source.StartConsuming(ctx, w.Handle)
}

// Stop closes the underlying consumer
func (w *SearchIndexWorker) Stop() error {
	w.logger.Info("Stopping search index worker")
	return w.source.Close()
}

// Handle applies a single product event message
func (w *SearchIndexWorker) Handle(ctx context.Context, msg kafka.Message) error {
	return w.eventHandler.HandleMessage(ctx, msg)
}

func (w *SearchIndexWorker) upsert(ctx context.Context, event *models.ProductEvent) error {
	if event.Product == nil {
		w.logger.Warn("Product event without product body", zap.String("product_id", event.ProductID))
		return nil
	}
	if err := w.index.IndexProduct(ctx, event.Product); err != nil {
		return fmt.Errorf("index product %s: %w", event.ProductID, err)
	}
	w.logger.Debug("Indexed product", zap.String("product_id", event.ProductID))
	return nil
}

func (w *SearchIndexWorker) remove(ctx context.Context, event *models.ProductEvent) error {
	if err := w.index.DeleteProduct(ctx, event.ProductID); err != nil {
		return fmt.Errorf("remove product %s: %w", event.ProductID, err)
	}
	w.logger.Debug("Removed product from index", zap.String("product_id", event.ProductID))
	return nil
}
