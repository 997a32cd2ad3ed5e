package service

import (
	"context"
	"errors"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"
	"checkout-service/internal/payment"
	"checkout-service/internal/util"
)

// ProductStore is the inventory side of the store
type ProductStore interface {
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) ([]models.Product, error)
	GetStock(ctx context.Context, id string) (int, error)
	DecrementStock(ctx context.Context, id string, amount int) (int, error)
}

// CartStore persists one cart per user
type CartStore interface {
	GetCart(ctx context.Context, userID string) (*models.Cart, error)
	SaveCart(ctx context.Context, cart *models.Cart) error
}

// OrderStore persists orders and applies their conditional transitions
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListOrders(ctx context.Context, userID string) ([]models.Order, error)
	ApproveOrder(ctx context.Context, id, paymentID string, cutoff time.Time) (models.OrderStatus, error)
	CancelIfPending(ctx context.Context, id string) (bool, error)
	CancelExpired(ctx context.Context, cutoff time.Time) ([]models.Order, error)
	SetShipped(ctx context.Context, id string, shipped bool, shippedAt *time.Time, cutoff time.Time) (models.OrderStatus, error)
}

// UserStore reads account data
type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

// Store is everything the core needs from persistence
type Store interface {
	ProductStore
	CartStore
	OrderStore
	UserStore
	Ping(ctx context.Context) error
}

// EventPublisher publishes domain events after state changes commit
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderApproved(ctx context.Context, event *models.OrderApprovedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishStockDecremented(ctx context.Context, event *models.StockDecrementedEvent) error
}

// PaymentProvider is the external payment gateway
type PaymentProvider interface {
	GetPayment(ctx context.Context, id string) (*payment.Payment, error)
	CreatePreference(ctx context.Context, req payment.PreferenceRequest) (*payment.Preference, error)
}

// LinkCache remembers the checkout URL created for an order
type LinkCache interface {
	GetPaymentLink(ctx context.Context, orderID string) (string, bool, error)
	SetPaymentLink(ctx context.Context, orderID, link string, ttl time.Duration) (bool, error)
}

// Options carries the timing knobs shared by the services
type Options struct {
	StoreTimeout time.Duration
	OrderExpiry  time.Duration
	Now          func() time.Time
}

func (o Options) withDefaults() Options {
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 10 * time.Second
	}
	if o.OrderExpiry <= 0 {
		o.OrderExpiry = 24 * time.Hour
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// storeCtx bounds a single store access
func (o Options) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.StoreTimeout)
}

// cutoff is the creation time before which a pending order counts as expired
func (o Options) cutoff(now time.Time) time.Time {
	return now.Add(-o.OrderExpiry)
}

func (o Options) isExpired(order *models.Order, now time.Time) bool {
	return order.Status == models.OrderStatusPending && order.CreatedAt.Before(o.cutoff(now))
}

// storeError converts a store failure into a kinded error. sctx is the bounded context
// the store call ran under; drivers report a cancelled statement with their own error.
func storeError(sctx context.Context, err error, msg string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(sctx.Err(), context.DeadlineExceeded) {
		util.StoreTimeoutsTotal.Inc()
		return apperr.Wrap(apperr.StoreTimeout, err, msg)
	}
	return apperr.Wrap(apperr.Internal, err, msg)
}
