// Package eventbus is the durable publish/subscribe client the rest of the
// core talks through. It owns one logical topic exchange, swifttrack.events,
// and the retry/DLQ topology described in spec.md §4.1.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Exchange is the single logical topic exchange every routing key in this
// system is published to and consumed from.
const Exchange = "swifttrack.events"

// DLX is the dead-letter exchange messages land on after a consumer nacks.
const DLX = "swifttrack.dlx"

// DLQExchange is the fanout exchange retry-exhausted messages are
// explicitly republished to.
const DLQExchange = "swifttrack.dlq"

const EventVersion = "1.0"

// Routing keys, per spec.md §6.
const (
	OrderCreated        = "order.created"
	OrderCMSRegistered  = "order.cms_registered"
	OrderWMSReceived    = "order.wms_received"
	OrderRouteOptimized = "order.route_optimized"
	OrderSagaFailed     = "order.saga_failed"
	NotificationStatusChanged = "notification.status_changed"
	NotificationOrderUpdate   = "notification.order_update"
)

// connectAttempts and connectDelay implement the spec's "exponential
// backoff, >=30 attempts, 2s spacing" requirement. The spacing is fixed
// rather than exponential because the spec pins it to a constant interval
// ("2 s spacing"); kept as a var so tests can shrink it.
var (
	connectAttempts = 30
	connectDelay    = 2 * time.Second
)

// Bus wraps a single AMQP connection/channel pair, constructed once at
// process startup and passed explicitly into every component that needs
// it — no package-level global, per spec.md §9.
type Bus struct {
	conn        *amqp.Connection
	ch          *amqp.Channel
	serviceName string
	logger      *zap.Logger
}

// Connect dials url with retry, declares the durable topic exchange and
// the DLX/DLQ topology, and sets a per-consumer prefetch of 10.
func Connect(ctx context.Context, url, serviceName string, logger *zap.Logger) (*Bus, error) {
	var conn *amqp.Connection
	var err error

	for attempt := 1; attempt <= connectAttempts; attempt++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		logger.Warn("rabbitmq connect attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", connectAttempts),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(connectDelay):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("eventbus: failed to connect after %d attempts: %w", connectAttempts, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("eventbus: failed to open channel: %w", err)
	}

	if err := ch.Qos(10, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("eventbus: failed to set prefetch: %w", err)
	}

	if err := declareTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Bus{conn: conn, ch: ch, serviceName: serviceName, logger: logger}, nil
}

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("eventbus: declare %s: %w", Exchange, err)
	}
	if err := ch.ExchangeDeclare(DLX, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("eventbus: declare %s: %w", DLX, err)
	}
	if err := ch.ExchangeDeclare(DLQExchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("eventbus: declare %s: %w", DLQExchange, err)
	}
	return nil
}

// Close drains by closing the channel then the connection, in that order,
// per spec.md §5's shutdown sequence.
func (b *Bus) Close() error {
	if err := b.ch.Close(); err != nil {
		return err
	}
	return b.conn.Close()
}

// Channel exposes the underlying AMQP channel for callers that need queue
// declarations beyond what Consume/ConsumeWithRetry offer.
func (b *Bus) Channel() *amqp.Channel { return b.ch }

// Publish does a plain, persistent publish with no header stamping.
func (b *Bus) Publish(ctx context.Context, routingKey string, body []byte) error {
	return b.ch.PublishWithContext(ctx, Exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
	})
}

// PublishEvent marshals body, stamps the standard headers (correlation_id,
// request_id, timestamp, event_version, source_service) and publishes it.
// correlationID is generated if empty. Returns the correlation id used.
func (b *Bus) PublishEvent(ctx context.Context, routingKey string, body any, correlationID string, headers amqp.Table) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("eventbus: marshal event body: %w", err)
	}

	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	if headers == nil {
		headers = amqp.Table{}
	}
	headers["correlation_id"] = correlationID
	headers["request_id"] = uuid.NewString()
	headers["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	headers["event_version"] = EventVersion
	headers["source_service"] = b.serviceName
	InjectTraceContext(ctx, headers)

	err = b.ch.PublishWithContext(ctx, Exchange, routingKey, false, false, amqp.Publishing{
		ContentType:   "application/json",
		Body:          payload,
		DeliveryMode:  amqp.Persistent,
		Headers:       headers,
		CorrelationId: correlationID,
		Timestamp:     time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("eventbus: publish %s: %w", routingKey, err)
	}
	return correlationID, nil
}

// CorrelationID extracts the correlation id for a delivery in the order
// spec.md §4.1 specifies: header correlation_id, then the transport-level
// correlation id, then a newly minted one.
func CorrelationID(d amqp.Delivery) string {
	if v, ok := d.Headers["correlation_id"]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if d.CorrelationId != "" {
		return d.CorrelationId
	}
	return uuid.NewString()
}

// withCorrelationID injects _correlation_id into the JSON body, as
// spec.md §4.1's Consume operation requires.
func withCorrelationID(body []byte, correlationID string) []byte {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return body
	}
	m["_correlation_id"] = correlationID
	out, err := json.Marshal(m)
	if err != nil {
		return body
	}
	return out
}
