// Command orderstore serves the Order Store's HTTP surface: order
// creation, lookup, listing, and manual status transitions, backed by
// Postgres.
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
	"github.com/swifttrack/core/internal/logging"
	"github.com/swifttrack/core/internal/metrics"
	"github.com/swifttrack/core/internal/orderstore"
	"github.com/swifttrack/core/internal/tracingsetup"
)

// App wires the Order Store's dependencies together, following the
// teacher's App/Start/Shutdown shape.
type App struct {
	cfg           config.Config
	logger        *zap.Logger
	store         *orderstore.Store
	httpServer    *http.Server
	metricsServer *http.Server
	shutdownTrace func(context.Context) error
}

// NewApp builds an App: logger, tracing, the Postgres-backed store, and
// the HTTP/metrics servers. It does not start listening.
func NewApp(cfg config.Config) (*App, error) {
	logger, err := logging.New("orderstore")
	if err != nil {
		return nil, err
	}

	shutdownTrace, err := tracingsetup.Init("orderstore", logger)
	if err != nil {
		return nil, err
	}

	store, err := orderstore.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	httpMetrics := metrics.NewHTTP("orderstore")
	mux := orderstore.NewServer(store, logger, httpMetrics)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	return &App{
		cfg:           cfg,
		logger:        logger,
		store:         store,
		shutdownTrace: shutdownTrace,
		httpServer:    &http.Server{Addr: cfg.HTTPAddr, Handler: mux},
		metricsServer: &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux},
	}, nil
}

// Start brings the HTTP and metrics listeners up in background
// goroutines.
func (a *App) Start() {
	go func() {
		a.logger.Info("order store listening", zap.String("addr", a.cfg.HTTPAddr))
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("http server failed", zap.Error(err))
		}
	}()
	go func() {
		a.logger.Info("metrics listening", zap.String("addr", a.cfg.MetricsAddr))
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}

// Shutdown stops new HTTP work, then closes the database pool last, per
// spec.md §5's shutdown ordering.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down gracefully")

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("error shutting down http server", zap.Error(err))
	}
	if err := a.metricsServer.Shutdown(ctx); err != nil {
		a.logger.Error("error shutting down metrics server", zap.Error(err))
	}
	if a.shutdownTrace != nil {
		if err := a.shutdownTrace(ctx); err != nil {
			a.logger.Error("error shutting down tracing", zap.Error(err))
		}
	}
	return a.store.Close()
}

func main() {
	cfg := config.Load()

	app, err := NewApp(cfg)
	if err != nil {
		panic(err)
	}
	app.Start()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Shutdown(ctx); err != nil {
		app.logger.Error("shutdown error", zap.Error(err))
	}
}
