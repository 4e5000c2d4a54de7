package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Topics names the topic each event family is written to
type Topics struct {
	Order   string
	Product string
	User    string
}

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
	topics   Topics
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer, topics Topics) *EventPublisher {
	return &EventPublisher{producer: producer, topics: topics}
}

func orderKey(id string) string   { return "order-" + id }
func productKey(id string) string { return "product-" + id }
func userKey(id string) string    { return "user-" + id }

// PublishOrderCreated publishes OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return ep.producer.PublishEvent(ctx, ep.topics.Order, orderKey(event.OrderID), event)
}

// PublishOrderPaid publishes OrderPaid event
func (ep *EventPublisher) PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error {
	return ep.producer.PublishEvent(ctx, ep.topics.Order, orderKey(event.OrderID), event)
}

// PublishOrderStatusChanged publishes OrderStatusChanged event
func (ep *EventPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	return ep.producer.PublishEvent(ctx, ep.topics.Order, orderKey(event.OrderID), event)
}

// PublishProductEvent publishes a product created, updated or deleted event
func (ep *EventPublisher) PublishProductEvent(ctx context.Context, event *models.ProductEvent) error {
	return ep.producer.PublishEvent(ctx, ep.topics.Product, productKey(event.ProductID), event)
}

// PublishAuthEvent publishes a login or logout event
func (ep *EventPublisher) PublishAuthEvent(ctx context.Context, event *models.AuthEvent) error {
	return ep.producer.PublishEvent(ctx, ep.topics.User, userKey(event.UserID), event)
}

// EventHandler routes incoming product events
type EventHandler struct {
	onProductUpsert func(context.Context, *models.ProductEvent) error
	onProductDelete func(context.Context, *models.ProductEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnProductUpsert registers a handler for product created and updated events
func (eh *EventHandler) OnProductUpsert(handler func(context.Context, *models.ProductEvent) error) {
	eh.onProductUpsert = handler
}

// OnProductDelete registers a handler for product deleted events
func (eh *EventHandler) OnProductDelete(handler func(context.Context, *models.ProductEvent) error) {
	eh.onProductDelete = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	logger := util.GetLogger()
	logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	var handler func(context.Context, *models.ProductEvent) error
	switch baseEvent.EventType {
	case models.EventTypeProductCreated, models.EventTypeProductUpdated:
		handler = eh.onProductUpsert
	case models.EventTypeProductDeleted:
		handler = eh.onProductDelete
	default:
		logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
		return nil
	}
	if handler == nil {
		return nil
	}

	var event models.ProductEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal %s event: %w", baseEvent.EventType, err)
	}
	return handler(ctx, &event)
}
