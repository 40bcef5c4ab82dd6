package notify

import (
	"context"
	"encoding/json"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/swifttrack/core/internal/eventbus"
)

type fakeLookup struct {
	clientID string
	err      error
}

func (f fakeLookup) ClientIDFor(ctx context.Context, orderID string) (string, error) {
	return f.clientID, f.err
}

type fakePublisher struct {
	published []string
	bodies    []any
}

func (f *fakePublisher) PublishEvent(ctx context.Context, routingKey string, body any, correlationID string, headers amqp.Table) (string, error) {
	f.published = append(f.published, routingKey)
	f.bodies = append(f.bodies, body)
	return correlationID, nil
}

func TestHandleRepublishesOrderUpdate(t *testing.T) {
	hub := NewHub(zap.NewNop())
	pub := &fakePublisher{}
	lookup := fakeLookup{clientID: "client-42"}
	consumer := NewConsumer(hub, lookup, pub, zap.NewNop())

	body, _ := json.Marshal(map[string]string{"order_id": "order-1", "status": "READY"})
	if err := consumer.Handle(context.Background(), eventbus.NotificationStatusChanged, "corr-1", body); err != nil {
		t.Fatal(err)
	}

	if len(pub.published) != 1 || pub.published[0] != eventbus.NotificationOrderUpdate {
		t.Errorf("expected a republish of notification.order_update, got %v", pub.published)
	}
}

func TestHandlePropagatesLookupFailure(t *testing.T) {
	hub := NewHub(zap.NewNop())
	pub := &fakePublisher{}
	lookup := fakeLookup{err: context.DeadlineExceeded}
	consumer := NewConsumer(hub, lookup, pub, zap.NewNop())

	body, _ := json.Marshal(map[string]string{"order_id": "order-2", "status": "READY"})
	if err := consumer.Handle(context.Background(), eventbus.NotificationStatusChanged, "corr-2", body); err == nil {
		t.Fatal("expected error when client lookup fails")
	}
	if len(pub.published) != 0 {
		t.Error("should not republish when client lookup fails")
	}
}
