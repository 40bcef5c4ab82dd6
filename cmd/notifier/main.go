// Command notifier runs the notification bridge: it consumes
// notification.status_changed, resolves the owning client, and pushes
// the update over that client's WebSocket connections.
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

	"github.com/swifttrack/core/internal/config"
	"github.com/swifttrack/core/internal/eventbus"
	"github.com/swifttrack/core/internal/logging"
	"github.com/swifttrack/core/internal/notify"
	"github.com/swifttrack/core/internal/orderstore"
	"github.com/swifttrack/core/internal/tracingsetup"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New("notifier")
	if err != nil {
		panic(err)
	}

	shutdownTrace, err := tracingsetup.Init("notifier", logger)
	if err != nil {
		logger.Fatal("tracing init failed", zap.Error(err))
	}

	store, err := orderstore.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("order store connect failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus, err := eventbus.Connect(ctx, cfg.RabbitMQURL, "notifier", logger)
	if err != nil {
		logger.Fatal("eventbus connect failed", zap.Error(err))
	}

	hub := notify.NewHub(logger)
	consumer := notify.NewConsumer(hub, store, bus, logger)

	if err := bus.Consume(ctx, notify.QueueName, notify.RoutingKeys, consumer.Handle); err != nil {
		logger.Fatal("consume notification events failed", zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		clientID := r.URL.Query().Get("client_id")
		if clientID == "" {
			http.Error(w, "client_id query parameter required", http.StatusBadRequest)
			return
		}
		if err := hub.ServeWS(clientID, w, r); err != nil {
			logger.Warn("websocket upgrade failed", zap.String("client_id", clientID), zap.Error(err))
		}
	})
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		logger.Info("notifier listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down gracefully")
	cancel()
	time.Sleep(500 * time.Millisecond)

	shCtx, shCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shCancel()
	if err := httpServer.Shutdown(shCtx); err != nil {
		logger.Error("error shutting down http server", zap.Error(err))
	}
	hub.Close()
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
