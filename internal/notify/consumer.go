package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/swifttrack/core/internal/domain"
	"github.com/swifttrack/core/internal/eventbus"
)

// QueueName is the notifier's own durable queue.
const QueueName = "notifier.status_changed"

// RoutingKeys is the single event the notifier subscribes to.
var RoutingKeys = []string{eventbus.NotificationStatusChanged}

// ClientLookup resolves an order's owning client_id, so the notifier can
// filter delivery instead of broadcasting to every connected dashboard.
type ClientLookup interface {
	ClientIDFor(ctx context.Context, orderID string) (string, error)
}

// Publisher republishes the per-client notification back to the bus for
// any other consumer that wants it (audit, other channels), mirroring
// the source's own re-publish-as-order_update behavior.
type Publisher interface {
	PublishEvent(ctx context.Context, routingKey string, body any, correlationID string, headers amqp.Table) (string, error)
}

type statusChangedEvent struct {
	OrderID string        `json:"order_id"`
	Status  domain.Status `json:"status"`
	Details string        `json:"details,omitempty"`
}

type orderUpdateEvent struct {
	Event   string        `json:"event"`
	OrderID string        `json:"order_id"`
	Status  domain.Status `json:"status"`
	Message string        `json:"message"`
	Channel string        `json:"channel"`
}

// Consumer bridges notification.status_changed into a per-client
// WebSocket push plus a republished notification.order_update.
type Consumer struct {
	hub    *Hub
	lookup ClientLookup
	pub    Publisher
	logger *zap.Logger
}

// NewConsumer builds a Consumer.
func NewConsumer(hub *Hub, lookup ClientLookup, pub Publisher, logger *zap.Logger) *Consumer {
	return &Consumer{hub: hub, lookup: lookup, pub: pub, logger: logger}
}

// Handle matches eventbus.Handler's signature.
func (c *Consumer) Handle(ctx context.Context, routingKey, correlationID string, body []byte) error {
	var evt statusChangedEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return fmt.Errorf("notify: unmarshal status_changed: %w", err)
	}

	clientID, err := c.lookup.ClientIDFor(ctx, evt.OrderID)
	if err != nil {
		return fmt.Errorf("notify: resolve client_id for %s: %w", evt.OrderID, err)
	}

	update := orderUpdateEvent{
		Event:   eventbus.NotificationOrderUpdate,
		OrderID: evt.OrderID,
		Status:  evt.Status,
		Message: evt.Details,
		Channel: "websocket",
	}

	if _, err := c.pub.PublishEvent(ctx, eventbus.NotificationOrderUpdate, update, correlationID, nil); err != nil {
		return fmt.Errorf("notify: republish order_update for %s: %w", evt.OrderID, err)
	}

	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("notify: marshal order_update payload: %w", err)
	}

	// Filtered by client_id: only that client's open sessions receive it,
	// never a blind broadcast to every connection (spec.md §9).
	c.hub.Send(clientID, payload)
	return nil
}
