package service

import (
	"context"
	"errors"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InventoryService owns per-product stock counts
type InventoryService struct {
	store     ProductStore
	publisher EventPublisher
	opts      Options
	logger    *zap.Logger
}

// NewInventoryService creates a new inventory service
func NewInventoryService(products ProductStore, publisher EventPublisher, opts Options) *InventoryService {
	return &InventoryService{
		store:     products,
		publisher: publisher,
		opts:      opts.withDefaults(),
		logger:    util.GetLogger(),
	}
}

// GetStock returns the current stock of a product
func (s *InventoryService) GetStock(ctx context.Context, productID string) (int, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.GetStock")
	defer span.End()

	sctx, cancel := s.opts.storeCtx(ctx)
	defer cancel()

	stock, err := s.store.GetStock(sctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, apperr.New(apperr.NotFound, "product not found")
	}
	if err != nil {
		return 0, storeError(sctx, err, "failed to read stock")
	}
	return stock, nil
}

// DecrementStock removes amount units, clamping at zero. An amount larger than the
// remaining stock is not an error.
func (s *InventoryService) DecrementStock(ctx context.Context, orderID, productID string, amount int) (int, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.DecrementStock")
	defer span.End()

	if amount < 0 {
		return 0, apperr.New(apperr.InvalidInput, "amount must not be negative")
	}

	sctx, cancel := s.opts.storeCtx(ctx)
	defer cancel()

	stock, err := s.store.DecrementStock(sctx, productID, amount)
	if errors.Is(err, store.ErrNotFound) {
		util.StockDecrementsTotal.WithLabelValues("missing").Inc()
		return 0, apperr.New(apperr.NotFound, "product not found")
	}
	if err != nil {
		util.StockDecrementsTotal.WithLabelValues("error").Inc()
		return 0, storeError(sctx, err, "failed to decrement stock")
	}

	if stock == 0 {
		util.StockDecrementsTotal.WithLabelValues("depleted").Inc()
	} else {
		util.StockDecrementsTotal.WithLabelValues("ok").Inc()
	}

	s.logger.Info("Stock decremented",
		zap.String("order_id", orderID),
		zap.String("product_id", productID),
		zap.Int("amount", amount),
		zap.Int("stock", stock))

	event := &models.StockDecrementedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeStockDecremented,
			Timestamp: s.opts.Now(),
		},
		OrderID:   orderID,
		ProductID: productID,
		Quantity:  amount,
		NewStock:  stock,
	}
	if err := s.publisher.PublishStockDecremented(ctx, event); err != nil {
		s.logger.Error("Failed to publish StockDecremented event", zap.Error(err))
	}

	return stock, nil
}
