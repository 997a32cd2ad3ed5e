package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/auth"
	"checkout-service/internal/models"
	"checkout-service/internal/payment"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// CheckoutConfig holds what the checkout needs to build provider callbacks
type CheckoutConfig struct {
	PublicURL string
	LinkTTL   time.Duration
}

// PaymentLink is a hosted checkout URL for an order
type PaymentLink struct {
	OrderID   string `json:"orderId"`
	InitPoint string `json:"initPoint"`
	Cached    bool   `json:"cached"`
}

// CheckoutService creates payment links for pending orders
type CheckoutService struct {
	orders    OrderStore
	users     UserStore
	provider  PaymentProvider
	cache     LinkCache
	lifecycle *lifecycle
	cfg       CheckoutConfig
	opts      Options
	logger    *zap.Logger
}

// NewCheckoutService creates a new checkout service. cache may be nil.
func NewCheckoutService(
	orders OrderStore,
	users UserStore,
	provider PaymentProvider,
	cache LinkCache,
	publisher EventPublisher,
	cfg CheckoutConfig,
	opts Options,
) *CheckoutService {
	opts = opts.withDefaults()
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = 30 * time.Minute
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	return &CheckoutService{
		orders:    orders,
		users:     users,
		provider:  provider,
		cache:     cache,
		lifecycle: newLifecycle(orders, publisher, opts),
		cfg:       cfg,
		opts:      opts,
		logger:    util.GetLogger(),
	}
}

// CreatePaymentLink returns the checkout URL of a pending order owned by the caller.
// Repeated calls within the cache TTL return the same link.
func (s *CheckoutService) CreatePaymentLink(ctx context.Context, id auth.Identity, orderID string) (*PaymentLink, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.CreatePaymentLink")
	defer span.End()

	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, apperr.New(apperr.InvalidInput, "orderId is required")
	}

	sctx, cancel := s.opts.storeCtx(ctx)
	order, err := s.orders.GetOrder(sctx, orderID)
	cancel()
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.NotFound, "order not found")
	}
	if err != nil {
		return nil, storeError(sctx, err, "failed to load order")
	}

	if order.UserID != id.UserID && !id.IsAdmin() {
		return nil, apperr.New(apperr.Forbidden, "order belongs to another user")
	}

	if err := s.lifecycle.expireIfStale(ctx, order, cancelOnCheckout); err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusPending {
		return nil, apperr.New(apperr.InvalidInput, "order is %s, not awaiting payment", order.Status)
	}

	if link, ok := s.cachedLink(ctx, order.ID); ok {
		util.PaymentLinksTotal.WithLabelValues("cache").Inc()
		return &PaymentLink{OrderID: order.ID, InitPoint: link, Cached: true}, nil
	}

	if s.cfg.PublicURL == "" {
		return nil, apperr.New(apperr.Internal, "PUBLIC_URL is not configured")
	}

	email, err := s.payerEmail(ctx, id, order)
	if err != nil {
		return nil, err
	}

	ref := url.QueryEscape(order.ID)
	pref, err := s.provider.CreatePreference(ctx, payment.PreferenceRequest{
		OrderID:         order.ID,
		Title:           "Order #" + order.ID,
		Amount:          order.Total,
		PayerEmail:      email,
		SuccessURL:      s.cfg.PublicURL + "/checkout/success?order=" + ref,
		FailureURL:      s.cfg.PublicURL + "/checkout/failure?order=" + ref,
		PendingURL:      s.cfg.PublicURL + "/checkout/pending?order=" + ref,
		NotificationURL: s.cfg.PublicURL + "/webhooks/payment",
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "failed to create payment link")
	}

	util.PaymentLinksTotal.WithLabelValues("provider").Inc()
	link := &PaymentLink{OrderID: order.ID, InitPoint: pref.InitPoint}

	if s.cache == nil {
		return link, nil
	}
	stored, err := s.cache.SetPaymentLink(ctx, order.ID, pref.InitPoint, s.cfg.LinkTTL)
	if err != nil {
		s.logger.Warn("Failed to cache payment link", zap.String("order_id", order.ID), zap.Error(err))
		return link, nil
	}
	if !stored {
		// A concurrent request cached its link first; hand out that one.
		if existing, ok := s.cachedLink(ctx, order.ID); ok {
			link.InitPoint = existing
			link.Cached = true
		}
	}
	return link, nil
}

func (s *CheckoutService) cachedLink(ctx context.Context, orderID string) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	link, ok, err := s.cache.GetPaymentLink(ctx, orderID)
	if err != nil {
		s.logger.Warn("Payment link cache unavailable", zap.String("order_id", orderID), zap.Error(err))
		return "", false
	}
	return link, ok
}

// payerEmail prefers the caller's token email, then the order owner's account
func (s *CheckoutService) payerEmail(ctx context.Context, id auth.Identity, order *models.Order) (string, error) {
	if id.Email != "" && id.UserID == order.UserID {
		return id.Email, nil
	}

	sctx, cancel := s.opts.storeCtx(ctx)
	user, err := s.users.GetUser(sctx, order.UserID)
	cancel()
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", storeError(sctx, err, "failed to load buyer")
	}
	if user != nil && user.Email != "" {
		return user.Email, nil
	}
	if id.Email != "" {
		return id.Email, nil
	}
	return "", apperr.New(apperr.InvalidInput, "payer email not found")
}
