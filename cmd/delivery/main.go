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
	"fulfillment/internal/delivery"
	"fulfillment/internal/messaging"
	"fulfillment/internal/orders"
	"fulfillment/internal/telemetry"
)

const (
	serviceName    = "delivery"
	serviceVersion = "0.1.0"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(logger); err != nil {
		logger.Error("delivery service exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load[config.Delivery]()
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

	db, err := telemetry.OpenDB(cfg.PostgresURL, "delivery")
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	resultProducer := messaging.NewProducer(cfg.KafkaBrokers, messaging.TopicDeliveryResult)
	defer func() { _ = resultProducer.Close() }()

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	repo := delivery.NewRepository(db)
	orderClient := orders.NewClient(cfg.OrdersURL, httpClient)
	step := delivery.NewStep(repo, orderClient, resultProducer, cfg.TransitDelay, cfg.SuccessRate, logger)
	handler := delivery.NewHandler(repo, logger)

	reservedConsumer := messaging.NewConsumer(cfg.KafkaBrokers, messaging.TopicInventoryReserved, "delivery-service")
	defer func() { _ = reservedConsumer.Close() }()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /deliveries", telemetry.WithHTTPRoute(handler.HandleListDeliveries))
	mux.HandleFunc("GET /deliveries/{orderId}", telemetry.WithHTTPRoute(handler.HandleGetDelivery))
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
		logger.Info("starting delivery service", "port", cfg.Port)
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
		logger.Info("consuming", "topic", messaging.TopicInventoryReserved)
		if err := reservedConsumer.Consume(ctx, step.HandleDelivery); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	})

	return g.Wait()
}
