package eventbus

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
)

// headerCarrier adapts an amqp.Table to OTel's TextMapCarrier so trace
// context can ride along in message headers the same way it rides along
// in HTTP headers.
type headerCarrier struct {
	headers amqp.Table
}

func (c headerCarrier) Get(key string) string {
	v, ok := c.headers[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func (c headerCarrier) Set(key, value string) {
	c.headers[key] = value
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for k := range c.headers {
		keys = append(keys, k)
	}
	return keys
}

// InjectTraceContext writes the span context from ctx into headers using
// the globally configured propagator.
func InjectTraceContext(ctx context.Context, headers amqp.Table) {
	if headers == nil {
		return
	}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{headers: headers})
}

// ExtractTraceContext reads a span context out of a delivery's headers,
// returning a context callers can start a child span from.
func ExtractTraceContext(ctx context.Context, d amqp.Delivery) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, headerCarrier{headers: d.Headers})
}
