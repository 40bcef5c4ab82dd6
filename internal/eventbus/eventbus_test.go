package eventbus

import (
	"encoding/json"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestCorrelationIDPrecedence(t *testing.T) {
	d := amqp.Delivery{
		Headers:       amqp.Table{"correlation_id": "from-header"},
		CorrelationId: "from-transport",
	}
	if got := CorrelationID(d); got != "from-header" {
		t.Errorf("CorrelationID() = %q, want header value", got)
	}

	d2 := amqp.Delivery{CorrelationId: "from-transport"}
	if got := CorrelationID(d2); got != "from-transport" {
		t.Errorf("CorrelationID() = %q, want transport value", got)
	}

	d3 := amqp.Delivery{}
	if got := CorrelationID(d3); got == "" {
		t.Error("CorrelationID() should mint a new id when nothing is present")
	}
}

func TestWithCorrelationIDInjectsField(t *testing.T) {
	body, err := json.Marshal(map[string]any{"order_id": "abc"})
	if err != nil {
		t.Fatal(err)
	}

	out := withCorrelationID(body, "corr-1")

	var m map[string]any
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatal(err)
	}
	if m["_correlation_id"] != "corr-1" {
		t.Errorf("_correlation_id = %v, want corr-1", m["_correlation_id"])
	}
	if m["order_id"] != "abc" {
		t.Errorf("order_id lost: %v", m["order_id"])
	}
}

func TestWithCorrelationIDFallsBackOnNonJSON(t *testing.T) {
	body := []byte("not json")
	out := withCorrelationID(body, "corr-1")
	if string(out) != string(body) {
		t.Error("expected non-JSON body to be returned unchanged")
	}
}

func TestRetryCountForReadsXDeath(t *testing.T) {
	d := amqp.Delivery{
		Headers: amqp.Table{
			"x-death": []any{
				amqp.Table{"queue": "orders.saga", "count": int64(2)},
				amqp.Table{"queue": "orders.saga.retry", "count": int64(5)},
			},
		},
	}
	if got := retryCountFor(d, "orders.saga"); got != 2 {
		t.Errorf("retryCountFor = %d, want 2", got)
	}
}

func TestRetryCountForNoHeader(t *testing.T) {
	d := amqp.Delivery{}
	if got := retryCountFor(d, "orders.saga"); got != 0 {
		t.Errorf("retryCountFor = %d, want 0", got)
	}
}

func TestHeaderCarrierRoundTrip(t *testing.T) {
	headers := amqp.Table{}
	c := headerCarrier{headers: headers}
	c.Set("traceparent", "00-abc-def-01")
	if got := c.Get("traceparent"); got != "00-abc-def-01" {
		t.Errorf("Get() = %q, want round-tripped value", got)
	}
	if got := c.Get("missing"); got != "" {
		t.Errorf("Get(missing) = %q, want empty", got)
	}
}
