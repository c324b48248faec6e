package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"fulfillment/internal/config"
	"fulfillment/internal/gateway"
	"fulfillment/internal/telemetry"
)

const (
	serviceName    = "gateway"
	serviceVersion = "0.1.0"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(logger); err != nil {
		logger.Error("gateway service exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load[config.Gateway]()
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

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	ordersProxy := gateway.NewServiceProxy(cfg.OrdersURL, httpClient)
	paymentProxy := gateway.NewServiceProxy(cfg.PaymentURL, httpClient)
	inventoryProxy := gateway.NewServiceProxy(cfg.InventoryURL, httpClient)
	deliveryProxy := gateway.NewServiceProxy(cfg.DeliveryURL, httpClient)
	handler := gateway.NewHandler(ordersProxy, paymentProxy, inventoryProxy, deliveryProxy, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(handler.HandleOrders))
	mux.HandleFunc("POST /orders", telemetry.WithHTTPRoute(handler.HandleOrders))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(handler.HandleOrders))
	mux.HandleFunc("PATCH /orders/{id}/status", telemetry.WithHTTPRoute(handler.HandleOrders))
	mux.HandleFunc("GET /balances", telemetry.WithHTTPRoute(handler.HandlePayment))
	mux.HandleFunc("GET /balances/{userId}", telemetry.WithHTTPRoute(handler.HandlePayment))
	mux.HandleFunc("PUT /balances/{userId}", telemetry.WithHTTPRoute(handler.HandlePayment))
	mux.HandleFunc("GET /payments", telemetry.WithHTTPRoute(handler.HandlePayment))
	mux.HandleFunc("GET /payments/{orderId}", telemetry.WithHTTPRoute(handler.HandlePayment))
	mux.HandleFunc("GET /stock", telemetry.WithHTTPRoute(handler.HandleInventory))
	mux.HandleFunc("GET /stock/{productId}", telemetry.WithHTTPRoute(handler.HandleInventory))
	mux.HandleFunc("PUT /stock/{productId}", telemetry.WithHTTPRoute(handler.HandleInventory))
	mux.HandleFunc("GET /deliveries", telemetry.WithHTTPRoute(handler.HandleDeliveries))
	mux.HandleFunc("GET /deliveries/{orderId}", telemetry.WithHTTPRoute(handler.HandleDeliveries))
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

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting gateway service", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}
