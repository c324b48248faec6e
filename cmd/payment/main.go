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
	"fulfillment/internal/payment"
	"fulfillment/internal/telemetry"
)

const (
	serviceName    = "payment"
	serviceVersion = "0.1.0"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(logger); err != nil {
		logger.Error("payment service exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load[config.Payment]()
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

	db, err := telemetry.OpenDB(cfg.PostgresURL, "payment")
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	successProducer := messaging.NewProducer(cfg.KafkaBrokers, messaging.TopicPaymentSuccess)
	defer func() { _ = successProducer.Close() }()

	failedProducer := messaging.NewProducer(cfg.KafkaBrokers, messaging.TopicPaymentFailed)
	defer func() { _ = failedProducer.Close() }()

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	repo := payment.NewRepository(db)
	orderClient := orders.NewClient(cfg.OrdersURL, httpClient)
	step := payment.NewStep(repo, orderClient, successProducer, failedProducer, logger)
	handler := payment.NewHandler(repo, logger)

	createdConsumer := messaging.NewConsumer(cfg.KafkaBrokers, messaging.TopicOrderCreated, "payment-service")
	defer func() { _ = createdConsumer.Close() }()

	inventoryFailedConsumer := messaging.NewConsumer(cfg.KafkaBrokers, messaging.TopicInventoryFailed, "payment-service")
	defer func() { _ = inventoryFailedConsumer.Close() }()

	resultConsumer := messaging.NewConsumer(cfg.KafkaBrokers, messaging.TopicDeliveryResult, "payment-service")
	defer func() { _ = resultConsumer.Close() }()

	expiredConsumer := messaging.NewConsumer(cfg.KafkaBrokers, messaging.TopicOrderExpired, "payment-service")
	defer func() { _ = expiredConsumer.Close() }()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /balances", telemetry.WithHTTPRoute(handler.HandleListBalances))
	mux.HandleFunc("GET /balances/{userId}", telemetry.WithHTTPRoute(handler.HandleGetBalance))
	mux.HandleFunc("PUT /balances/{userId}", telemetry.WithHTTPRoute(handler.HandleUpsertBalance))
	mux.HandleFunc("GET /payments", telemetry.WithHTTPRoute(handler.HandleListPayments))
	mux.HandleFunc("GET /payments/{orderId}", telemetry.WithHTTPRoute(handler.HandleGetPayment))
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
		logger.Info("starting payment service", "port", cfg.Port)
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

	consume(createdConsumer, messaging.TopicOrderCreated, step.HandleOrderCreated)
	consume(inventoryFailedConsumer, messaging.TopicInventoryFailed, step.HandleCompensation)
	consume(resultConsumer, messaging.TopicDeliveryResult, step.HandleCompensation)
	consume(expiredConsumer, messaging.TopicOrderExpired, step.HandleOrderExpired)

	return g.Wait()
}
