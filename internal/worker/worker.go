package worker

import (
	"context"
	"time"

	"checkout-service/internal/broker"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// Notifier tells buyers about order outcomes
type Notifier interface {
	NotifyOrderApproved(ctx context.Context, event *models.OrderApprovedEvent) error
	NotifyOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
}

// LogNotifier is a Notifier that only writes log lines
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a new log notifier
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: util.GetLogger()}
}

func (n *LogNotifier) NotifyOrderApproved(ctx context.Context, event *models.OrderApprovedEvent) error {
	n.logger.Info("Notify buyer: payment approved",
		zap.String("order_id", event.OrderID),
		zap.String("user_id", event.UserID),
		zap.String("payment_id", event.PaymentID))
	return nil
}

func (n *LogNotifier) NotifyOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	n.logger.Info("Notify buyer: order cancelled",
		zap.String("order_id", event.OrderID),
		zap.String("user_id", event.UserID),
		zap.String("reason", event.Reason))
	return nil
}

// OrderEventWorker consumes order events and hands them to the notifier
type OrderEventWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewOrderEventWorker creates a new order event worker
func NewOrderEventWorker(consumer *broker.Consumer, notifier Notifier) *OrderEventWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnOrderApproved(notifier.NotifyOrderApproved)
	eventHandler.OnOrderCancelled(notifier.NotifyOrderCancelled)

	return &OrderEventWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start blocks until ctx is cancelled or the stream ends
func (w *OrderEventWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting order event worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *OrderEventWorker) Stop() error {
	w.logger.Info("Stopping order event worker")
	return w.consumer.Close()
}

// Expirer cancels pending orders past the expiry window
type Expirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// ExpirySweeper periodically cancels expired pending orders. Reads already
// expire orders lazily; the sweeper only keeps storage tidy.
type ExpirySweeper struct {
	expirer  Expirer
	interval time.Duration
	logger   *zap.Logger
}

// NewExpirySweeper creates a new sweeper. A non-positive interval disables it.
func NewExpirySweeper(expirer Expirer, interval time.Duration) *ExpirySweeper {
	return &ExpirySweeper{
		expirer:  expirer,
		interval: interval,
		logger:   util.GetLogger(),
	}
}

// Enabled reports whether Start will do anything
func (s *ExpirySweeper) Enabled() bool {
	return s.interval > 0
}

// Start runs a sweep every interval until ctx is cancelled
func (s *ExpirySweeper) Start(ctx context.Context) {
	if !s.Enabled() {
		s.logger.Info("Expiry sweeper disabled")
		return
	}

	s.logger.Info("Starting expiry sweeper", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping expiry sweeper")
			return
		case <-ticker.C:
			n, err := s.expirer.ExpireStale(ctx)
			if err != nil {
				s.logger.Error("Expiry sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("Expiry sweep cancelled orders", zap.Int("count", n))
			}
		}
	}
}
