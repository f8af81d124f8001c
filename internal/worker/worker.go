package worker

import (
	"context"
	"fmt"
	"time"

	"keymarket/internal/broker"
	"keymarket/internal/models"
	"keymarket/internal/redisclient"
	"keymarket/internal/store"
	"keymarket/internal/util"

	"go.uber.org/zap"
)

// saleMarkerTTL bounds how long a counted event is remembered in Redis. It
// outlives the topic's redelivery window.
const saleMarkerTTL = 7 * 24 * time.Hour

// EventWorker consumes domain events and maintains the per-game sold counters
type EventWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        *store.Store
	redis        *redisclient.Client
	logger       *zap.Logger
}

// NewEventWorker creates a new event worker
func NewEventWorker(consumer *broker.Consumer, store *store.Store, redis *redisclient.Client) *EventWorker {
	w := &EventWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		store:        store,
		redis:        redis,
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnKeyPurchased(w.HandleKeyPurchased)
	w.eventHandler.OnOther(w.handleOther)
	return w
}

// Start consumes until ctx is cancelled
func (w *EventWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting event worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop closes the consumer
func (w *EventWorker) Stop() error {
	w.logger.Info("Stopping event worker")
	return w.consumer.Close()
}

// Handle processes one serialised event
func (w *EventWorker) Handle(ctx context.Context, payload []byte) error {
	return w.eventHandler.Dispatch(ctx, payload)
}

// HandleKeyPurchased bumps the sold counter of the game. The counter is
// applied at most once per event ID; a failure to record the event returns an
// error so the message is redelivered.
func (w *EventWorker) HandleKeyPurchased(ctx context.Context, event *models.KeyPurchasedEvent) (err error) {
	ctx, span := util.StartSpan(ctx, "EventWorker.HandleKeyPurchased")
	defer func() { util.EndSpan(span, err) }()

	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		w.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	sold, counted, err := w.redis.CountSale(ctx, event.EventID, event.GameID, saleMarkerTTL)
	if err != nil {
		return fmt.Errorf("failed to update sold counter: %w", err)
	}

	if _, err := w.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}

	if !counted {
		w.logger.Info("Sale already counted", zap.String("event_id", event.EventID))
		return nil
	}

	util.EventsConsumedTotal.WithLabelValues(event.EventType).Inc()
	w.logger.Info("Sale recorded",
		zap.Int64("game_id", event.GameID),
		zap.Int64("sale_id", event.SaleID),
		zap.Int64("sold", sold))
	return nil
}

func (w *EventWorker) handleOther(_ context.Context, event *models.BaseEvent) error {
	util.EventsConsumedTotal.WithLabelValues(event.EventType).Inc()
	w.logger.Info("Event received",
		zap.String("type", event.EventType),
		zap.String("event_id", event.EventID))
	return nil
}
