// Command reactor runs the Status Reactor: it consumes the saga's step
// events, advances order state, and triggers pickup auto-assignment.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/swifttrack/core/internal/autoassign"
	"github.com/swifttrack/core/internal/config"
	"github.com/swifttrack/core/internal/eventbus"
	"github.com/swifttrack/core/internal/logging"
	"github.com/swifttrack/core/internal/orderstore"
	"github.com/swifttrack/core/internal/reactor"
	"github.com/swifttrack/core/internal/tracingsetup"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New("reactor")
	if err != nil {
		panic(err)
	}

	shutdownTrace, err := tracingsetup.Init("reactor", logger)
	if err != nil {
		logger.Fatal("tracing init failed", zap.Error(err))
	}

	store, err := orderstore.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("order store connect failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus, err := eventbus.Connect(ctx, cfg.RabbitMQURL, "reactor", logger)
	if err != nil {
		logger.Fatal("eventbus connect failed", zap.Error(err))
	}

	assigner := autoassign.New(cfg.DriverUsernames)
	r := reactor.New(store, bus, assigner, store, logger)

	if err := bus.Consume(ctx, reactor.QueueName, reactor.RoutingKeys, r.Handle); err != nil {
		logger.Fatal("consume reactor events failed", zap.Error(err))
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	logger.Info("status reactor running")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down gracefully")
	cancel()
	time.Sleep(500 * time.Millisecond)

	shCtx, shCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shCancel()
	if err := metricsServer.Shutdown(shCtx); err != nil {
		logger.Error("error shutting down metrics server", zap.Error(err))
	}
	if err := bus.Close(); err != nil {
		logger.Error("error closing eventbus", zap.Error(err))
	}
	if shutdownTrace != nil {
		_ = shutdownTrace(shCtx)
	}
	if err := store.Close(); err != nil {
		logger.Error("error closing order store", zap.Error(err))
	}
}
