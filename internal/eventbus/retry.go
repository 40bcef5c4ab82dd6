package eventbus

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Handler processes one delivery's body (already stamped with
// _correlation_id) and returns an error to trigger a retry/requeue.
type Handler func(ctx context.Context, routingKey, correlationID string, body []byte) error

// Consume declares a durable queue, binds routingKeys on Exchange, and
// dispatches each delivery to handler. A handler error requeues the
// message (basic at-least-once, no retry topology); success acks.
func (b *Bus) Consume(ctx context.Context, queue string, routingKeys []string, handler Handler) error {
	q, err := b.ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("eventbus: declare queue %s: %w", queue, err)
	}
	for _, rk := range routingKeys {
		if err := b.ch.QueueBind(q.Name, rk, Exchange, false, nil); err != nil {
			return fmt.Errorf("eventbus: bind %s to %s: %w", q.Name, rk, err)
		}
	}

	deliveries, err := b.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("eventbus: consume %s: %w", q.Name, err)
	}

	go func() {
		for d := range deliveries {
			msgCtx := ExtractTraceContext(ctx, d)
			correlationID := CorrelationID(d)
			body := withCorrelationID(d.Body, correlationID)
			if err := handler(msgCtx, d.RoutingKey, correlationID, body); err != nil {
				b.logger.Error("handler failed, requeuing",
					zap.String("queue", q.Name),
					zap.String("correlation_id", correlationID),
					zap.Error(err),
				)
				_ = d.Nack(false, true)
				continue
			}
			_ = d.Ack(false)
		}
	}()

	return nil
}

// ConsumeWithRetry wires the full retry/DLQ topology from spec.md §4.1:
//
//	main queue (x-dead-letter-exchange = DLX)
//	    │ handler error
//	    ▼
//	DLX (topic) ──► {queue}.retry (x-message-ttl=retryTTL, x-dead-letter-exchange=Exchange)
//	                    │ TTL expiry
//	                    ▼
//	                main queue (re-delivered)
//	retry_count >= maxRetries
//	    ▼
//	DLQExchange (fanout) ──► {queue}.dlq
//
// Retry count is read from the x-death header entry whose queue matches
// the main queue. A message that has exhausted maxRetries is acked on the
// main queue and explicitly republished to DLQExchange carrying
// x-original-routing-key, x-retry-count, x-service.
func (b *Bus) ConsumeWithRetry(ctx context.Context, queue string, routingKeys []string, handler Handler, maxRetries int, retryTTLMillis int) error {
	retryQueue := queue + ".retry"
	dlqQueue := queue + ".dlq"

	if _, err := b.ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": DLX,
	}); err != nil {
		return fmt.Errorf("eventbus: declare main queue %s: %w", queue, err)
	}
	for _, rk := range routingKeys {
		if err := b.ch.QueueBind(queue, rk, Exchange, false, nil); err != nil {
			return fmt.Errorf("eventbus: bind %s to %s: %w", queue, rk, err)
		}
	}

	if _, err := b.ch.QueueDeclare(retryQueue, true, false, false, false, amqp.Table{
		"x-message-ttl":          retryTTLMillis,
		"x-dead-letter-exchange": Exchange,
	}); err != nil {
		return fmt.Errorf("eventbus: declare retry queue %s: %w", retryQueue, err)
	}
	// DLX mirrors Exchange's routing keys so a nacked message lands on the
	// retry queue for the same keys it was originally routed on.
	for _, rk := range routingKeys {
		if err := b.ch.QueueBind(retryQueue, rk, DLX, false, nil); err != nil {
			return fmt.Errorf("eventbus: bind %s to %s: %w", retryQueue, rk, err)
		}
	}

	if _, err := b.ch.QueueDeclare(dlqQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("eventbus: declare dlq %s: %w", dlqQueue, err)
	}
	if err := b.ch.QueueBind(dlqQueue, "", DLQExchange, false, nil); err != nil {
		return fmt.Errorf("eventbus: bind %s to %s: %w", dlqQueue, DLQExchange, err)
	}

	deliveries, err := b.ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("eventbus: consume %s: %w", queue, err)
	}

	go func() {
		for d := range deliveries {
			msgCtx := ExtractTraceContext(ctx, d)
			correlationID := CorrelationID(d)
			body := withCorrelationID(d.Body, correlationID)

			err := handler(msgCtx, d.RoutingKey, correlationID, body)
			if err == nil {
				_ = d.Ack(false)
				continue
			}

			retryCount := retryCountFor(d, queue)
			b.logger.Warn("handler failed",
				zap.String("queue", queue),
				zap.String("correlation_id", correlationID),
				zap.Int("retry_count", retryCount),
				zap.Error(err),
			)

			if retryCount >= maxRetries {
				b.republishToDLQ(ctx, d, queue, retryCount)
				_ = d.Ack(false)
				continue
			}

			// Nack without requeue: the main queue's x-dead-letter-exchange
			// routes it to DLX, which fans it into {queue}.retry where it
			// waits out retryTTLMillis before coming back to the main queue.
			_ = d.Nack(false, false)
		}
	}()

	return nil
}

// retryCountFor reads the broker-maintained x-death header, selecting the
// entry whose queue matches mainQueue, per spec.md §4.1.
func retryCountFor(d amqp.Delivery, mainQueue string) int {
	raw, ok := d.Headers["x-death"]
	if !ok {
		return 0
	}
	deaths, ok := raw.([]any)
	if !ok {
		if deathsTable, ok := raw.([]amqp.Table); ok {
			for _, entry := range deathsTable {
				if q, _ := entry["queue"].(string); q == mainQueue {
					return countFromDeathEntry(entry)
				}
			}
		}
		return 0
	}
	for _, item := range deaths {
		entry, ok := item.(amqp.Table)
		if !ok {
			continue
		}
		if q, _ := entry["queue"].(string); q == mainQueue {
			return countFromDeathEntry(entry)
		}
	}
	return 0
}

func countFromDeathEntry(entry amqp.Table) int {
	switch v := entry["count"].(type) {
	case int64:
		return int(v)
	case int32:
		return int(v)
	case int:
		return v
	default:
		return 1
	}
}

func (b *Bus) republishToDLQ(ctx context.Context, d amqp.Delivery, originalQueue string, retryCount int) {
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers["x-original-routing-key"] = d.RoutingKey
	headers["x-retry-count"] = retryCount
	headers["x-service"] = originalQueue

	err := b.ch.PublishWithContext(ctx, DLQExchange, "", false, false, amqp.Publishing{
		ContentType:  d.ContentType,
		Body:         d.Body,
		Headers:      headers,
		DeliveryMode: amqp.Persistent,
	})
	if err != nil {
		b.logger.Error("failed to republish exhausted message to dlq",
			zap.String("queue", originalQueue),
			zap.Error(err),
		)
	}
}
