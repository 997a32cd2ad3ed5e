package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/auth"
	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Cancellation triggers, used as event reasons and metric labels
const (
	cancelOnList     = "expired_on_list"
	cancelOnApproval = "expired_on_approval"
	cancelOnCheckout = "expired_on_checkout"
	cancelOnSweep    = "expired_on_sweep"
)

// lifecycle applies the lazy expiry rule: a pending order older than the expiry window
// becomes cancelled the next time it is read for update.
type lifecycle struct {
	orders    OrderStore
	publisher EventPublisher
	opts      Options
	logger    *zap.Logger
}

func newLifecycle(orders OrderStore, publisher EventPublisher, opts Options) *lifecycle {
	return &lifecycle{
		orders:    orders,
		publisher: publisher,
		opts:      opts,
		logger:    util.GetLogger(),
	}
}

// expireIfStale cancels o in storage when it is pending and expired, and updates o in place
// with whatever status storage ends up holding.
func (l *lifecycle) expireIfStale(ctx context.Context, o *models.Order, trigger string) error {
	if !l.opts.isExpired(o, l.opts.Now()) {
		return nil
	}

	sctx, cancel := l.opts.storeCtx(ctx)
	changed, err := l.orders.CancelIfPending(sctx, o.ID)
	cancel()
	if err != nil {
		return storeError(sctx, err, "failed to expire order")
	}

	if changed {
		o.Status = models.OrderStatusCancelled
		l.cancelled(ctx, o, trigger)
		return nil
	}

	// Someone else moved it first; report what storage holds now.
	sctx, cancel = l.opts.storeCtx(ctx)
	fresh, err := l.orders.GetOrder(sctx, o.ID)
	cancel()
	if err != nil {
		return storeError(sctx, err, "failed to reload order")
	}
	o.Status = fresh.Status
	return nil
}

// cancelled records and announces an expiry cancellation
func (l *lifecycle) cancelled(ctx context.Context, o *models.Order, trigger string) {
	util.OrdersCancelledTotal.WithLabelValues(trigger).Inc()
	l.logger.Info("Order expired and cancelled",
		zap.String("order_id", o.ID),
		zap.String("trigger", trigger))

	event := &models.OrderCancelledEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCancelled,
			Timestamp: l.opts.Now(),
		},
		OrderID: o.ID,
		UserID:  o.UserID,
		Reason:  trigger,
	}
	if err := l.publisher.PublishOrderCancelled(ctx, event); err != nil {
		l.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}
}

// BuyerView is the contact data attached to a listed order
type BuyerView struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// OrderItemView is an order line with display fields of its product
type OrderItemView struct {
	models.OrderItem
	Name     string `json:"name,omitempty"`
	Model    string `json:"model,omitempty"`
	Color    string `json:"color,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// OrderView is an order as returned by ListOrders
type OrderView struct {
	models.Order
	Items []OrderItemView `json:"items"`
	Buyer *BuyerView      `json:"buyer,omitempty"`
}

// ListOrders returns all orders for admins and the caller's own orders otherwise,
// newest first. Expired pending orders are cancelled before they are returned.
func (s *OrderService) ListOrders(ctx context.Context, id auth.Identity) ([]OrderView, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	owner := id.UserID
	if id.IsAdmin() {
		owner = ""
	}

	sctx, cancel := s.opts.storeCtx(ctx)
	orders, err := s.store.ListOrders(sctx, owner)
	cancel()
	if err != nil {
		return nil, storeError(sctx, err, "failed to list orders")
	}

	for i := range orders {
		if err := s.lifecycle.expireIfStale(ctx, &orders[i], cancelOnList); err != nil {
			return nil, err
		}
	}

	return s.enrich(ctx, orders)
}

func (s *OrderService) enrich(ctx context.Context, orders []models.Order) ([]OrderView, error) {
	userIDs := make([]string, 0, len(orders))
	productIDs := make([]string, 0)
	seenUser := map[string]bool{}
	seenProduct := map[string]bool{}
	for _, o := range orders {
		if !seenUser[o.UserID] {
			seenUser[o.UserID] = true
			userIDs = append(userIDs, o.UserID)
		}
		for _, it := range o.Items {
			if !seenProduct[it.ProductID] {
				seenProduct[it.ProductID] = true
				productIDs = append(productIDs, it.ProductID)
			}
		}
	}

	sctx, cancel := s.opts.storeCtx(ctx)
	users, err := s.store.GetUsersByIDs(sctx, userIDs)
	cancel()
	if err != nil {
		return nil, storeError(sctx, err, "failed to load buyers")
	}

	sctx, cancel = s.opts.storeCtx(ctx)
	products, err := s.store.GetProductsByIDs(sctx, productIDs)
	cancel()
	if err != nil {
		return nil, storeError(sctx, err, "failed to load products")
	}

	buyers := make(map[string]*BuyerView, len(users))
	for _, u := range users {
		buyers[u.ID] = &BuyerView{Name: u.Name, Email: u.Email, Phone: u.Phone, Address: u.Address}
	}
	byID := make(map[string]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	views := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		v := OrderView{Order: o, Buyer: buyers[o.UserID], Items: make([]OrderItemView, 0, len(o.Items))}
		for _, it := range o.Items {
			iv := OrderItemView{OrderItem: it}
			if p, ok := byID[it.ProductID]; ok {
				iv.Name, iv.Model, iv.Color, iv.ImageURL = p.Name, p.Model, p.Color, p.ImageURL
			}
			v.Items = append(v.Items, iv)
		}
		views = append(views, v)
	}
	return views, nil
}

// SetShipped marks an order shipped or not. Admin only; independent of payment status.
func (s *OrderService) SetShipped(ctx context.Context, id auth.Identity, orderID string, shipped bool) error {
	ctx, span := util.StartSpan(ctx, "OrderService.SetShipped")
	defer span.End()

	if !id.IsAdmin() {
		return apperr.New(apperr.Forbidden, "admin only")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return apperr.New(apperr.InvalidInput, "order id is required")
	}

	now := s.opts.Now()
	var shippedAt *time.Time
	if shipped {
		shippedAt = &now
	}

	sctx, cancel := s.opts.storeCtx(ctx)
	status, err := s.store.SetShipped(sctx, orderID, shipped, shippedAt, s.opts.cutoff(now))
	cancel()
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.NotFound, "order not found")
	}
	if err != nil {
		return storeError(sctx, err, "failed to update shipping")
	}

	s.logger.Info("Order shipping updated",
		zap.String("order_id", orderID),
		zap.Bool("shipped", shipped),
		zap.String("status", string(status)))
	return nil
}

// ExpireStale cancels every expired pending order. It backs the optional sweep.
func (s *OrderService) ExpireStale(ctx context.Context) (int, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ExpireStale")
	defer span.End()

	sctx, cancel := s.opts.storeCtx(ctx)
	orders, err := s.store.CancelExpired(sctx, s.opts.cutoff(s.opts.Now()))
	cancel()
	if err != nil {
		return 0, storeError(sctx, err, "failed to expire orders")
	}

	for i := range orders {
		s.lifecycle.cancelled(ctx, &orders[i], cancelOnSweep)
	}
	return len(orders), nil
}
