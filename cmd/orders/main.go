package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"fulfillment/internal/config"
	"fulfillment/internal/messaging"
	"fulfillment/internal/orders"
	"fulfillment/internal/telemetry"
)

const (
	serviceName    = "orders"
	serviceVersion = "0.1.0"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(logger); err != nil {
		logger.Error("orders service exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load[config.Orders]()
	if err != nil {
		return err
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, serviceName, serviceVersion)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, serviceVersion)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownMeter(context.Background()) }()

	db, err := telemetry.OpenDB(cfg.PostgresURL, "orders")
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	createdProducer := messaging.NewProducer(cfg.KafkaBrokers, messaging.TopicOrderCreated)
	defer func() { _ = createdProducer.Close() }()

	expiredProducer := messaging.NewProducer(cfg.KafkaBrokers, messaging.TopicOrderExpired)
	defer func() { _ = expiredProducer.Close() }()

	repo := orders.NewOrderRepository(db)
	handler := orders.NewHandler(repo, createdProducer, logger)
	reconciler := orders.NewReconciler(repo, logger)
	reaper := orders.NewReaper(repo, expiredProducer, cfg.SagaTimeout, cfg.ReapInterval, logger)

	resultConsumer := messaging.NewConsumer(cfg.KafkaBrokers, messaging.TopicDeliveryResult, "orders-service")
	defer func() { _ = resultConsumer.Close() }()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(handler.HandleList))
	mux.HandleFunc("POST /orders", telemetry.WithHTTPRoute(handler.HandleCreate))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(handler.HandleGet))
	mux.HandleFunc("PATCH /orders/{id}/status", telemetry.WithHTTPRoute(handler.HandleUpdateStatus))
	mux.Handle("GET /metrics", metricsHandler)

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: otelhttp.NewHandler(mux, serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting orders service", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		logger.Info("consuming delivery results", "topic", messaging.TopicDeliveryResult)
		if err := resultConsumer.Consume(ctx, reconciler.HandleDeliveryResult); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("starting saga reaper", "timeout", cfg.SagaTimeout, "interval", cfg.ReapInterval)
		if err := reaper.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	})

	return g.Wait()
}
