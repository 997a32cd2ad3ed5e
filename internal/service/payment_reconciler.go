package service

import (
	"context"
	"errors"
	"net/url"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"
	"checkout-service/internal/payment"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outcome describes what a notification did
type Outcome string

const (
	OutcomeIgnored         Outcome = "ignored"
	OutcomeNotApproved     Outcome = "not_approved"
	OutcomeApproved        Outcome = "approved"
	OutcomeAlreadyApproved Outcome = "already_approved"
	OutcomeOrderClosed     Outcome = "order_closed"
)

// NotificationRequest is a raw provider callback
type NotificationRequest struct {
	Body      []byte
	Query     url.Values
	Signature string
	RequestID string
}

// NotificationResult reports the effect of a notification
type NotificationResult struct {
	Outcome       Outcome
	OrderID       string
	PaymentStatus string
	FailedLines   []string
}

// PaymentReconciler turns provider notifications into order approvals and stock decrements
type PaymentReconciler struct {
	orders        OrderStore
	inventory     *InventoryService
	provider      PaymentProvider
	publisher     EventPublisher
	lifecycle     *lifecycle
	webhookSecret string
	opts          Options
	logger        *zap.Logger
}

// NewPaymentReconciler creates a new reconciler. An empty webhookSecret disables signature checks.
func NewPaymentReconciler(
	orders OrderStore,
	inventory *InventoryService,
	provider PaymentProvider,
	publisher EventPublisher,
	webhookSecret string,
	opts Options,
) *PaymentReconciler {
	opts = opts.withDefaults()
	return &PaymentReconciler{
		orders:        orders,
		inventory:     inventory,
		provider:      provider,
		publisher:     publisher,
		lifecycle:     newLifecycle(orders, publisher, opts),
		webhookSecret: webhookSecret,
		opts:          opts,
		logger:        util.GetLogger(),
	}
}

// HandleNotification verifies a callback, looks the payment up and, when it is approved,
// approves the order once and decrements stock for each line. Redeliveries are no-ops.
func (r *PaymentReconciler) HandleNotification(ctx context.Context, req NotificationRequest) (*NotificationResult, error) {
	ctx, span := util.StartSpan(ctx, "PaymentReconciler.HandleNotification")
	defer span.End()

	res, err := r.handle(ctx, req)
	if err != nil {
		util.WebhookNotificationsTotal.WithLabelValues(apperr.KindOf(err).String()).Inc()
		return nil, err
	}
	util.WebhookNotificationsTotal.WithLabelValues(string(res.Outcome)).Inc()
	return res, nil
}

func (r *PaymentReconciler) handle(ctx context.Context, req NotificationRequest) (*NotificationResult, error) {
	n, err := payment.ParseNotification(req.Body, req.Query)
	if err != nil {
		r.logger.Warn("Invalid payment notification",
			zap.ByteString("body", req.Body),
			zap.String("query", req.Query.Encode()))
		return nil, apperr.Wrap(apperr.InvalidNotification, err, "invalid notification")
	}

	if !n.IsPayment() {
		r.logger.Debug("Ignoring non-payment notification", zap.String("type", n.Type))
		return &NotificationResult{Outcome: OutcomeIgnored}, nil
	}

	if r.webhookSecret != "" {
		if err := payment.VerifySignature(r.webhookSecret, req.Signature, req.RequestID, n.PaymentID); err != nil {
			r.logger.Warn("Rejected notification with bad signature", zap.String("payment_id", n.PaymentID))
			return nil, apperr.Wrap(apperr.InvalidSignature, err, "invalid signature")
		}
	}

	p, err := r.provider.GetPayment(ctx, n.PaymentID)
	if err != nil {
		r.logger.Warn("Payment lookup failed", zap.String("payment_id", n.PaymentID), zap.Error(err))
		return nil, apperr.Wrap(apperr.PaymentLookupFailed, err, "payment not found or invalid")
	}

	if p.Status != payment.StatusApproved {
		fields := []zap.Field{
			zap.String("payment_id", n.PaymentID),
			zap.String("order_id", p.ExternalReference),
			zap.String("status", p.Status),
		}
		if p.Status == payment.StatusRejected {
			r.logger.Warn("Payment rejected, order stays pending", fields...)
		} else {
			r.logger.Info("Payment not approved, nothing to do", fields...)
		}
		return &NotificationResult{Outcome: OutcomeNotApproved, OrderID: p.ExternalReference, PaymentStatus: p.Status}, nil
	}

	if p.ExternalReference == "" {
		return nil, apperr.New(apperr.OrderNotFound, "payment has no external_reference")
	}

	sctx, cancel := r.opts.storeCtx(ctx)
	order, err := r.orders.GetOrder(sctx, p.ExternalReference)
	cancel()
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.OrderNotFound, "order not found")
	}
	if err != nil {
		return nil, storeError(sctx, err, "failed to load order")
	}

	result := &NotificationResult{OrderID: order.ID, PaymentStatus: p.Status}

	switch order.Status {
	case models.OrderStatusApproved:
		result.Outcome = OutcomeAlreadyApproved
		return result, nil
	case models.OrderStatusCancelled:
		r.logger.Warn("Approved payment for a cancelled order",
			zap.String("order_id", order.ID),
			zap.String("payment_id", n.PaymentID))
		result.Outcome = OutcomeOrderClosed
		return result, nil
	}

	now := r.opts.Now()
	sctx, cancel = r.opts.storeCtx(ctx)
	status, err := r.orders.ApproveOrder(sctx, order.ID, n.PaymentID, r.opts.cutoff(now))
	cancel()
	if errors.Is(err, store.ErrNotPending) {
		return r.lostRace(ctx, result)
	}
	if err != nil {
		return nil, storeError(sctx, err, "failed to approve order")
	}

	if status == models.OrderStatusCancelled {
		order.Status = status
		r.lifecycle.cancelled(ctx, order, cancelOnApproval)
		r.logger.Warn("Approved payment arrived after order expiry",
			zap.String("order_id", order.ID),
			zap.String("payment_id", n.PaymentID))
		result.Outcome = OutcomeOrderClosed
		return result, nil
	}

	util.OrdersApprovedTotal.Inc()
	r.logger.Info("Order approved",
		zap.String("order_id", order.ID),
		zap.String("payment_id", n.PaymentID))

	result.FailedLines = r.decrementLines(ctx, order)
	result.Outcome = OutcomeApproved

	event := &models.OrderApprovedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderApproved,
			Timestamp: now,
		},
		OrderID:   order.ID,
		UserID:    order.UserID,
		PaymentID: n.PaymentID,
		Total:     order.Total,
	}
	if err := r.publisher.PublishOrderApproved(ctx, event); err != nil {
		r.logger.Error("Failed to publish OrderApproved event", zap.Error(err))
	}

	return result, nil
}

// decrementLines decrements each line on its own. A failure is logged and the loop continues;
// a missing product counts as already gone.
func (r *PaymentReconciler) decrementLines(ctx context.Context, order *models.Order) []string {
	var failed []string
	for _, item := range order.Items {
		_, err := r.inventory.DecrementStock(ctx, order.ID, item.ProductID, item.Quantity)
		switch {
		case err == nil:
		case apperr.Is(err, apperr.NotFound):
			r.logger.Info("Product already gone, skipping decrement",
				zap.String("order_id", order.ID),
				zap.String("product_id", item.ProductID))
		default:
			r.logger.Error("Failed to decrement stock",
				zap.String("order_id", order.ID),
				zap.String("product_id", item.ProductID),
				zap.Int("quantity", item.Quantity),
				zap.Error(err))
			failed = append(failed, item.ProductID)
		}
	}
	return failed
}

// lostRace handles a conditional approval that matched nothing: another delivery or an
// expiry got there first.
func (r *PaymentReconciler) lostRace(ctx context.Context, result *NotificationResult) (*NotificationResult, error) {
	sctx, cancel := r.opts.storeCtx(ctx)
	fresh, err := r.orders.GetOrder(sctx, result.OrderID)
	cancel()
	if err != nil {
		return nil, storeError(sctx, err, "failed to reload order")
	}

	if fresh.Status == models.OrderStatusApproved {
		result.Outcome = OutcomeAlreadyApproved
	} else {
		result.Outcome = OutcomeOrderClosed
	}
	return result, nil
}
