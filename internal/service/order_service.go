package service

import (
	"context"
	"encoding/json"
	"errors"

	"checkout-service/internal/apperr"
	"checkout-service/internal/auth"
	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderService builds orders from carts and drives their lifecycle
type OrderService struct {
	store     Store
	publisher EventPublisher
	lifecycle *lifecycle
	opts      Options
	logger    *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(st Store, publisher EventPublisher, opts Options) *OrderService {
	opts = opts.withDefaults()
	return &OrderService{
		store:     st,
		publisher: publisher,
		lifecycle: newLifecycle(st, publisher, opts),
		opts:      opts,
		logger:    util.GetLogger(),
	}
}

// CreateOrderResponse represents the response after creating an order
type CreateOrderResponse struct {
	OrderID string          `json:"orderId"`
	Total   decimal.Decimal `json:"total"`
	Freight decimal.Decimal `json:"freight"`
}

// ParseFreight reads a freight value sent as a JSON number or numeric string
func ParseFreight(raw json.RawMessage) (decimal.Decimal, error) {
	var freight decimal.Decimal
	if len(raw) == 0 {
		return freight, apperr.New(apperr.InvalidInput, "freight must be a positive number")
	}
	if err := freight.UnmarshalJSON(raw); err != nil {
		return freight, apperr.New(apperr.InvalidInput, "freight must be a positive number")
	}
	if err := checkFreightBounds(freight); err != nil {
		return decimal.Zero, err
	}
	return freight, nil
}

// maxFreight is the first value orders.freight NUMERIC(12,2) cannot hold
var maxFreight = decimal.New(1, 10)

// checkFreightBounds rejects values the freight column cannot store exactly.
// The exponent is checked before any comparison so huge inputs are never rescaled.
func checkFreightBounds(freight decimal.Decimal) error {
	exp := freight.Exponent()
	if exp < -12 || (exp < -2 && !freight.Equal(freight.Truncate(2))) {
		return apperr.New(apperr.InvalidInput, "freight has at most 2 decimal places")
	}
	if exp > 10 || freight.Abs().GreaterThanOrEqual(maxFreight) {
		return apperr.New(apperr.InvalidInput, "freight is too large")
	}
	return nil
}

// CreateOrder snapshots the caller's cart into a pending order and empties the cart.
// Stock is not touched here.
func (s *OrderService) CreateOrder(ctx context.Context, id auth.Identity, freight decimal.Decimal) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if !freight.IsPositive() {
		util.OrdersFailedTotal.WithLabelValues("invalid_freight").Inc()
		return nil, apperr.New(apperr.InvalidInput, "freight must be a positive number")
	}
	if err := checkFreightBounds(freight); err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_freight").Inc()
		return nil, err
	}

	sctx, cancel := s.opts.storeCtx(ctx)
	cart, err := s.store.GetCart(sctx, id.UserID)
	cancel()
	if errors.Is(err, store.ErrNotFound) || (err == nil && len(cart.Lines) == 0) {
		util.OrdersFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, apperr.New(apperr.EmptyCart, "cart is empty")
	}
	if err != nil {
		return nil, storeError(sctx, err, "failed to load cart")
	}

	prices, err := s.unitPrices(ctx, cart.Lines)
	if err != nil {
		return nil, err
	}

	now := s.opts.Now()
	order := &models.Order{
		ID:        uuid.New().String(),
		UserID:    id.UserID,
		Freight:   freight,
		Status:    models.OrderStatusPending,
		CreatedAt: now,
	}

	total := decimal.Zero
	eventItems := make([]models.OrderItemData, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		price := prices[line.ProductID]
		order.Items = append(order.Items, models.OrderItem{
			OrderID:   order.ID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: price,
		})
		eventItems = append(eventItems, models.OrderItemData{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: price,
		})
		total = total.Add(price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	order.Total = total.Add(freight)

	sctx, cancel = s.opts.storeCtx(ctx)
	err = s.store.CreateOrder(sctx, order)
	cancel()
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, storeError(sctx, err, "failed to create order")
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.String("total", order.Total.StringFixed(2)))

	// The order is already committed; a failed clear leaves a stale cart, not a lost order.
	cart.Lines = nil
	cart.UpdatedAt = now
	sctx, cancel = s.opts.storeCtx(ctx)
	if err := s.store.SaveCart(sctx, cart); err != nil {
		s.logger.Error("Failed to clear cart after order creation",
			zap.String("order_id", order.ID),
			zap.String("user_id", order.UserID),
			zap.Error(err))
	}
	cancel()

	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: now,
		},
		OrderID: order.ID,
		UserID:  order.UserID,
		Total:   order.Total,
		Freight: order.Freight,
		Items:   eventItems,
	}
	if err := s.publisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	return &CreateOrderResponse{
		OrderID: order.ID,
		Total:   order.Total,
		Freight: order.Freight,
	}, nil
}

// unitPrices resolves the current price of every line. Missing products are priced at zero.
func (s *OrderService) unitPrices(ctx context.Context, lines []models.CartLine) (map[string]decimal.Decimal, error) {
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}

	sctx, cancel := s.opts.storeCtx(ctx)
	products, err := s.store.GetProductsByIDs(sctx, ids)
	cancel()
	if err != nil {
		return nil, storeError(sctx, err, "failed to load products")
	}

	prices := make(map[string]decimal.Decimal, len(lines))
	for _, p := range products {
		prices[p.ID] = p.Price
	}
	for _, id := range ids {
		if _, ok := prices[id]; !ok {
			s.logger.Warn("Product in cart no longer exists, pricing at zero", zap.String("product_id", id))
			prices[id] = decimal.Zero
		}
	}
	return prices, nil
}
