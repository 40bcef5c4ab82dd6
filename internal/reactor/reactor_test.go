package reactor

import (
	"context"
	"encoding/json"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/swifttrack/core/internal/autoassign"
	"github.com/swifttrack/core/internal/domain"
	"github.com/swifttrack/core/internal/eventbus"
)

type fakeStore struct {
	orders map[string]*domain.Order
}

func (f *fakeStore) Transition(ctx context.Context, id string, newStatus domain.Status, details string, extra *domain.TransitionFields) (*domain.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, nil
	}
	order.Status = newStatus
	if extra != nil {
		if extra.CMSReference != nil {
			order.CMSReference = extra.CMSReference
		}
		if extra.WMSReference != nil {
			order.WMSReference = extra.WMSReference
		}
		if extra.RouteID != nil {
			order.RouteID = extra.RouteID
		}
		if extra.PickupDriverID != nil {
			order.PickupDriverID = extra.PickupDriverID
		}
	}
	return order, nil
}

type fakePublisher struct {
	published []string
}

func (f *fakePublisher) PublishEvent(ctx context.Context, routingKey string, body any, correlationID string, headers amqp.Table) (string, error) {
	f.published = append(f.published, routingKey)
	return correlationID, nil
}

type fakeCounter struct{}

func (fakeCounter) ActiveLoadByDriver(ctx context.Context, phase autoassign.Phase) (map[string]int, error) {
	return map[string]int{}, nil
}

func newTestReactor(orders map[string]*domain.Order, roster []string) (*Reactor, *fakePublisher) {
	pub := &fakePublisher{}
	r := New(&fakeStore{orders: orders}, pub, autoassign.New(roster), fakeCounter{}, zap.NewNop())
	return r, pub
}

func TestHandleRouteOptimizedGoesToReadyThenAssignsPickup(t *testing.T) {
	order := &domain.Order{ID: "order-1", Status: domain.StatusWMSReceived}
	r, pub := newTestReactor(map[string]*domain.Order{"order-1": order}, []string{"d1", "d2"})

	body, _ := json.Marshal(map[string]string{"order_id": "order-1", "route_id": "RT-1"})
	if err := r.Handle(context.Background(), eventbus.OrderRouteOptimized, "corr-1", body); err != nil {
		t.Fatal(err)
	}

	if order.Status != domain.StatusPickupAssigned {
		t.Errorf("status = %s, want PICKUP_ASSIGNED", order.Status)
	}
	if order.PickupDriverID == nil || *order.PickupDriverID != "d1" {
		t.Errorf("expected d1 assigned, got %v", order.PickupDriverID)
	}
	if len(pub.published) != 2 {
		t.Errorf("expected two notification publishes (READY, PICKUP_ASSIGNED), got %v", pub.published)
	}
}

func TestHandleSagaFailedTransitionsToFailed(t *testing.T) {
	order := &domain.Order{ID: "order-2", Status: domain.StatusCMSRegistered}
	r, pub := newTestReactor(map[string]*domain.Order{"order-2": order}, nil)

	body, _ := json.Marshal(map[string]string{"order_id": "order-2", "error": "wms down"})
	if err := r.Handle(context.Background(), eventbus.OrderSagaFailed, "corr-2", body); err != nil {
		t.Fatal(err)
	}

	if order.Status != domain.StatusFailed {
		t.Errorf("status = %s, want FAILED", order.Status)
	}
	if len(pub.published) != 1 {
		t.Errorf("expected one notification publish, got %v", pub.published)
	}
}

func TestHandleUnknownRoutingKeyIsAckedWithoutAction(t *testing.T) {
	r, pub := newTestReactor(map[string]*domain.Order{}, nil)
	if err := r.Handle(context.Background(), "order.mystery", "corr-3", []byte(`{}`)); err != nil {
		t.Fatalf("unknown routing key should not error, got %v", err)
	}
	if len(pub.published) != 0 {
		t.Error("expected no publish for unknown routing key")
	}
}

func TestHandleEmptyRosterLeavesOrderReady(t *testing.T) {
	order := &domain.Order{ID: "order-3", Status: domain.StatusWMSReceived}
	r, pub := newTestReactor(map[string]*domain.Order{"order-3": order}, nil)

	body, _ := json.Marshal(map[string]string{"order_id": "order-3", "route_id": "RT-3"})
	if err := r.Handle(context.Background(), eventbus.OrderRouteOptimized, "corr-4", body); err != nil {
		t.Fatal(err)
	}

	if order.Status != domain.StatusReady {
		t.Errorf("status = %s, want READY (no roster to assign from)", order.Status)
	}
	if len(pub.published) != 1 {
		t.Errorf("expected only the READY notification, got %v", pub.published)
	}
}
