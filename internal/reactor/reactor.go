// Package reactor consumes the saga's step events and advances order
// state accordingly, triggering auto-assignment once an order reaches
// READY. It runs on its own durable queue with no retry wrapper — an
// unknown routing key is logged and acked, not retried (spec.md §4.4).
package reactor

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/swifttrack/core/internal/autoassign"
	"github.com/swifttrack/core/internal/domain"
	"github.com/swifttrack/core/internal/eventbus"
)

// QueueName is the Status Reactor's own durable queue.
const QueueName = "status_reactor.events"

// RoutingKeys are the events the reactor subscribes to.
var RoutingKeys = []string{
	eventbus.OrderCMSRegistered,
	eventbus.OrderWMSReceived,
	eventbus.OrderRouteOptimized,
	eventbus.OrderSagaFailed,
}

// OrderTransitioner is the Order Store surface the reactor writes
// through.
type OrderTransitioner interface {
	Transition(ctx context.Context, id string, newStatus domain.Status, details string, extra *domain.TransitionFields) (*domain.Order, error)
}

// Publisher is the subset of eventbus.Bus the reactor publishes
// through.
type Publisher interface {
	PublishEvent(ctx context.Context, routingKey string, body any, correlationID string, headers amqp.Table) (string, error)
}

// Reactor wires an Order Store, an event publisher, and an Auto-Assigner
// together to react to saga step events.
type Reactor struct {
	store    OrderTransitioner
	pub      Publisher
	assigner *autoassign.Assigner
	counter  autoassign.LoadCounter
	logger   *zap.Logger
}

// New builds a Reactor.
func New(store OrderTransitioner, pub Publisher, assigner *autoassign.Assigner, counter autoassign.LoadCounter, logger *zap.Logger) *Reactor {
	return &Reactor{store: store, pub: pub, assigner: assigner, counter: counter, logger: logger}
}

type stepEvent struct {
	OrderID      string `json:"order_id"`
	CMSReference string `json:"cms_reference"`
	WMSReference string `json:"wms_reference"`
	RouteID      string `json:"route_id"`
	Error        string `json:"error"`
}

type statusChangedEvent struct {
	Event   string        `json:"event"`
	OrderID string        `json:"order_id"`
	Status  domain.Status `json:"status"`
	Details string        `json:"details,omitempty"`
}

// Handle dispatches one delivery by routing key. It matches
// eventbus.Handler's signature and is registered as the handler for
// eventbus.Consume (no retry topology, per spec.md §4.4).
func (r *Reactor) Handle(ctx context.Context, routingKey, correlationID string, body []byte) error {
	var evt stepEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return fmt.Errorf("reactor: unmarshal event: %w", err)
	}

	var newStatus domain.Status
	var details string
	extra := &domain.TransitionFields{}

	switch routingKey {
	case eventbus.OrderCMSRegistered:
		newStatus = domain.StatusCMSRegistered
		details = "cms registered"
		ref := evt.CMSReference
		extra.CMSReference = &ref
	case eventbus.OrderWMSReceived:
		newStatus = domain.StatusWMSReceived
		details = "wms received"
		ref := evt.WMSReference
		extra.WMSReference = &ref
	case eventbus.OrderRouteOptimized:
		// Skips ROUTE_OPTIMIZED: the saga's third step lands the order
		// directly in READY, per spec.md §4.4's transition table.
		newStatus = domain.StatusReady
		details = "route optimized"
		ref := evt.RouteID
		extra.RouteID = &ref
	case eventbus.OrderSagaFailed:
		newStatus = domain.StatusFailed
		details = evt.Error
		extra = nil
	default:
		r.logger.Warn("unknown routing key, acking without action", zap.String("routing_key", routingKey))
		return nil
	}

	order, err := r.store.Transition(ctx, evt.OrderID, newStatus, details, extra)
	if err != nil {
		return fmt.Errorf("reactor: transition order %s: %w", evt.OrderID, err)
	}
	if order == nil {
		r.logger.Warn("transition target order not found", zap.String("order_id", evt.OrderID))
		return nil
	}

	if err := r.publishStatusChanged(ctx, order.ID, newStatus, details, correlationID); err != nil {
		return err
	}

	if newStatus == domain.StatusReady {
		if err := r.assignPickup(ctx, order, correlationID); err != nil {
			return err
		}
	}

	return nil
}

// assignPickup runs the Auto-Assigner's pickup phase for a newly READY
// order and, if a driver was selected, performs the second transition to
// PICKUP_ASSIGNED with its own notification.
func (r *Reactor) assignPickup(ctx context.Context, order *domain.Order, correlationID string) error {
	driverID, assigned, err := r.assigner.Assign(ctx, r.counter, autoassign.Pickup)
	if err != nil {
		return fmt.Errorf("reactor: auto-assign pickup for %s: %w", order.ID, err)
	}
	if !assigned {
		r.logger.Warn("no driver roster configured, order stays READY", zap.String("order_id", order.ID))
		return nil
	}

	extra := &domain.TransitionFields{PickupDriverID: &driverID}
	updated, err := r.store.Transition(ctx, order.ID, domain.StatusPickupAssigned, "pickup driver assigned", extra)
	if err != nil {
		return fmt.Errorf("reactor: transition to PICKUP_ASSIGNED for %s: %w", order.ID, err)
	}
	if updated == nil {
		return nil
	}

	return r.publishStatusChanged(ctx, updated.ID, domain.StatusPickupAssigned, "pickup driver assigned", correlationID)
}

func (r *Reactor) publishStatusChanged(ctx context.Context, orderID string, status domain.Status, details, correlationID string) error {
	body := statusChangedEvent{
		Event:   eventbus.NotificationStatusChanged,
		OrderID: orderID,
		Status:  status,
		Details: details,
	}
	if _, err := r.pub.PublishEvent(ctx, eventbus.NotificationStatusChanged, body, correlationID, nil); err != nil {
		return fmt.Errorf("reactor: publish status changed for %s: %w", orderID, err)
	}
	return nil
}
