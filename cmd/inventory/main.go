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
	"fulfillment/internal/inventory"
	"fulfillment/internal/messaging"
	"fulfillment/internal/orders"
	"fulfillment/internal/telemetry"
)

const (
	serviceName    = "inventory"
	serviceVersion = "0.1.0"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(logger); err != nil {
		logger.Error("inventory service exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load[config.Inventory]()
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

	db, err := telemetry.OpenDB(cfg.PostgresURL, "inventory")
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	reservedProducer := messaging.NewProducer(cfg.KafkaBrokers, messaging.TopicInventoryReserved)
	defer func() { _ = reservedProducer.Close() }()

	failedProducer := messaging.NewProducer(cfg.KafkaBrokers, messaging.TopicInventoryFailed)
	defer func() { _ = failedProducer.Close() }()

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	repo := inventory.NewRepository(db)
	orderClient := orders.NewClient(cfg.OrdersURL, httpClient)
	step := inventory.NewStep(repo, orderClient, reservedProducer, failedProducer, cfg.FulfillmentDelay, logger)
	handler := inventory.NewHandler(repo, logger)

	paidConsumer := messaging.NewConsumer(cfg.KafkaBrokers, messaging.TopicPaymentSuccess, "inventory-service")
	defer func() { _ = paidConsumer.Close() }()

	resultConsumer := messaging.NewConsumer(cfg.KafkaBrokers, messaging.TopicDeliveryResult, "inventory-service")
	defer func() { _ = resultConsumer.Close() }()

	expiredConsumer := messaging.NewConsumer(cfg.KafkaBrokers, messaging.TopicOrderExpired, "inventory-service")
	defer func() { _ = expiredConsumer.Close() }()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /stock", telemetry.WithHTTPRoute(handler.HandleListStock))
	mux.HandleFunc("GET /stock/{productId}", telemetry.WithHTTPRoute(handler.HandleGetStock))
	mux.HandleFunc("PUT /stock/{productId}", telemetry.WithHTTPRoute(handler.HandleUpsertStock))
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
		logger.Info("starting inventory service", "port", cfg.Port)
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

	consume := func(consumer *messaging.Consumer, topic string, handler messaging.Handler) {
		g.Go(func() error {
			logger.Info("consuming", "topic", topic)
			if err := consumer.Consume(ctx, handler); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		})
	}

	consume(paidConsumer, messaging.TopicPaymentSuccess, step.HandleReservation)
	consume(resultConsumer, messaging.TopicDeliveryResult, step.HandleCompensation)
	consume(expiredConsumer, messaging.TopicOrderExpired, step.HandleOrderExpired)

	return g.Wait()
}
