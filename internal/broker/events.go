package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"keymarket/internal/models"
	"keymarket/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventSink is where the publisher hands off serialised events
type EventSink interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing domain events
type EventPublisher struct {
	sink EventSink
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(sink EventSink) *EventPublisher {
	return &EventPublisher{sink: sink}
}

func stamp(base *models.BaseEvent, eventType string) {
	if base.EventID == "" {
		base.EventID = uuid.New().String()
	}
	if base.Timestamp.IsZero() {
		base.Timestamp = time.Now().UTC()
	}
	base.EventType = eventType
}

// PublishUserRegistered publishes UserRegistered event
func (ep *EventPublisher) PublishUserRegistered(ctx context.Context, event *models.UserRegisteredEvent) error {
	stamp(&event.BaseEvent, models.EventTypeUserRegistered)
	return ep.sink.PublishEvent(ctx, fmt.Sprintf("user-%d", event.UserID), event)
}

// PublishShopCreated publishes ShopCreated event
func (ep *EventPublisher) PublishShopCreated(ctx context.Context, event *models.ShopCreatedEvent) error {
	stamp(&event.BaseEvent, models.EventTypeShopCreated)
	return ep.sink.PublishEvent(ctx, fmt.Sprintf("shop-%d", event.ShopID), event)
}

// PublishKeyPurchased publishes KeyPurchased event
func (ep *EventPublisher) PublishKeyPurchased(ctx context.Context, event *models.KeyPurchasedEvent) error {
	stamp(&event.BaseEvent, models.EventTypeKeyPurchased)
	return ep.sink.PublishEvent(ctx, fmt.Sprintf("game-%d", event.GameID), event)
}

// PublishUserDeleted publishes UserDeleted event
func (ep *EventPublisher) PublishUserDeleted(ctx context.Context, event *models.UserDeletedEvent) error {
	stamp(&event.BaseEvent, models.EventTypeUserDeleted)
	return ep.sink.PublishEvent(ctx, fmt.Sprintf("user-%d", event.UserID), event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onKeyPurchased func(context.Context, *models.KeyPurchasedEvent) error
	onOther        func(context.Context, *models.BaseEvent) error
	logger         *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnKeyPurchased registers a handler for KeyPurchased events
func (eh *EventHandler) OnKeyPurchased(handler func(context.Context, *models.KeyPurchasedEvent) error) {
	eh.onKeyPurchased = handler
}

// OnOther registers a handler for every event type without a dedicated handler
func (eh *EventHandler) OnOther(handler func(context.Context, *models.BaseEvent) error) {
	eh.onOther = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	return eh.Dispatch(ctx, msg.Value)
}

// Dispatch decodes one serialised event and routes it
func (eh *EventHandler) Dispatch(ctx context.Context, payload []byte) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(payload, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeKeyPurchased:
		if eh.onKeyPurchased != nil {
			var event models.KeyPurchasedEvent
			if err := json.Unmarshal(payload, &event); err != nil {
				return fmt.Errorf("failed to unmarshal KeyPurchased event: %w", err)
			}
			return eh.onKeyPurchased(ctx, &event)
		}

	default:
		if eh.onOther != nil {
			return eh.onOther(ctx, &baseEvent)
		}
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
