// Command saga runs the Saga Orchestrator: it consumes order.created,
// drives CMS → WMS → ROS, and publishes a step event (or
// order.saga_failed) for the Status Reactor to act on.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"github.com/swifttrack/core/internal/config"
	"github.com/swifttrack/core/internal/eventbus"
	"github.com/swifttrack/core/internal/logging"
	"github.com/swifttrack/core/internal/metrics"
	"github.com/swifttrack/core/internal/saga"
	"github.com/swifttrack/core/internal/saga/cms"
	"github.com/swifttrack/core/internal/saga/ros"
	"github.com/swifttrack/core/internal/saga/wms"
	"github.com/swifttrack/core/internal/tracingsetup"
)

const queueName = "saga_orchestrator.order_created"

type stepEvent struct {
	OrderID      string `json:"order_id"`
	CMSReference string `json:"cms_reference,omitempty"`
	WMSReference string `json:"wms_reference,omitempty"`
	RouteID      string `json:"route_id,omitempty"`
}

type sagaFailedEvent struct {
	OrderID        string   `json:"order_id"`
	Error          string   `json:"error"`
	CompletedSteps []string `json:"completed_steps"`
}

func main() {
	cfg := config.Load()

	logger, err := logging.New("saga")
	if err != nil {
		panic(err)
	}

	shutdownTrace, err := tracingsetup.Init("saga", logger)
	if err != nil {
		logger.Fatal("tracing init failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus, err := eventbus.Connect(ctx, cfg.RabbitMQURL, "saga", logger)
	if err != nil {
		logger.Fatal("eventbus connect failed", zap.Error(err))
	}

	orch := saga.New(
		cms.New(cfg.CMSURL),
		wms.New(cfg.WMSHost, cfg.WMSPort),
		ros.New(cfg.ROSURL),
		saga.NewHTTPStatusProbe(cfg.OrderServiceURL),
		logger,
		metrics.NewExternal("saga"),
		metrics.NewBusiness("saga"),
	)

	handler := func(ctx context.Context, routingKey, correlationID string, body []byte) error {
		var in saga.OrderInput
		if err := json.Unmarshal(body, &in); err != nil {
			return err
		}

		result := orch.Run(ctx, in)
		if !result.Success {
			if _, err := bus.PublishEvent(ctx, eventbus.OrderSagaFailed, sagaFailedEvent{
				OrderID:        result.OrderID,
				Error:          result.Error,
				CompletedSteps: result.CompletedSteps,
			}, correlationID, nil); err != nil {
				return err
			}
			// Returning an error hands the delivery to ConsumeWithRetry's
			// retry/DLQ topology.
			return fmt.Errorf("saga failed for order %s: %s", result.OrderID, result.Error)
		}

		// A step that was executed (not skipped by the idempotence probe)
		// gets its own event, in order: the Status Reactor's transition
		// table advances one state per event, and a skipped step already
		// reflects the order's persisted status.
		if !contains(result.SkippedSteps, saga.StepCMSRegistered) {
			if _, err := bus.PublishEvent(ctx, eventbus.OrderCMSRegistered, stepEvent{OrderID: result.OrderID, CMSReference: result.CMSReference}, correlationID, nil); err != nil {
				return err
			}
		}
		if !contains(result.SkippedSteps, saga.StepWMSReceived) {
			if _, err := bus.PublishEvent(ctx, eventbus.OrderWMSReceived, stepEvent{OrderID: result.OrderID, WMSReference: result.WMSReference}, correlationID, nil); err != nil {
				return err
			}
		}
		if !contains(result.SkippedSteps, saga.StepRouteOptimized) {
			if _, err := bus.PublishEvent(ctx, eventbus.OrderRouteOptimized, stepEvent{OrderID: result.OrderID, RouteID: result.RouteID}, correlationID, nil); err != nil {
				return err
			}
		}
		return nil
	}

	if err := bus.ConsumeWithRetry(ctx, queueName, []string{eventbus.OrderCreated}, handler, cfg.MaxRetries, cfg.RetryTTLMillis); err != nil {
		logger.Fatal("consume order.created failed", zap.Error(err))
	}

	logger.Info("saga orchestrator running")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down gracefully")
	cancel()
	time.Sleep(500 * time.Millisecond) // let in-flight deliveries finish their current handler call
	if err := bus.Close(); err != nil {
		logger.Error("error closing eventbus", zap.Error(err))
	}
	if shutdownTrace != nil {
		shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shCancel()
		_ = shutdownTrace(shCtx)
	}
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
