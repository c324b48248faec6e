package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	sagaOnce sync.Once

	ordersStarted metric.Int64Counter
	stepOutcomes  metric.Int64Counter
	compensations metric.Int64Counter
)

func sagaInstruments() {
	sagaOnce.Do(func() {
		meter := otel.Meter("fulfillment/saga")
		ordersStarted, _ = meter.Int64Counter("saga.orders.started",
			metric.WithDescription("Orders that entered the fulfillment saga"))
		stepOutcomes, _ = meter.Int64Counter("saga.step.outcomes",
			metric.WithDescription("Step results by step and resulting order status"))
		compensations, _ = meter.Int64Counter("saga.compensations",
			metric.WithDescription("Compensating transactions applied, by step"))
	})
}

func RecordOrderStarted(ctx context.Context) {
	sagaInstruments()
	ordersStarted.Add(ctx, 1)
}

func RecordStepOutcome(ctx context.Context, step, status string) {
	sagaInstruments()
	stepOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step", step),
		attribute.String("status", status),
	))
}

func RecordCompensation(ctx context.Context, step string) {
	sagaInstruments()
	compensations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step", step),
	))
}
