package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/Rox-Lvmaohua/qrsignature"

var (
	metersOnce       sync.Once
	signFlowCounter  metric.Int64Counter
	repoOpCounter    metric.Int64Counter
	statusCacheCount metric.Int64Counter
)

func initMeters() {
	meter := otel.Meter(meterName)
	signFlowCounter, _ = meter.Int64Counter("qrsignature.sign_flow.events",
		metric.WithDescription("Sign protocol operations by outcome"))
	repoOpCounter, _ = meter.Int64Counter("qrsignature.repository.operations",
		metric.WithDescription("Repository operations by entity and outcome"))
	statusCacheCount, _ = meter.Int64Counter("qrsignature.status_cache.events",
		metric.WithDescription("Status cache lookups by outcome"))
}

// RecordSignFlowEvent counts one protocol-level operation outcome, e.g.
// ("generate", "success") or ("confirm", "session_expired").
func RecordSignFlowEvent(ctx context.Context, operation, outcome string) {
	metersOnce.Do(initMeters)
	if signFlowCounter == nil {
		return
	}
	signFlowCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

func RecordRepositoryOperation(ctx context.Context, entity, operation, outcome string) {
	metersOnce.Do(initMeters)
	if repoOpCounter == nil {
		return
	}
	repoOpCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

func RecordStatusCacheEvent(ctx context.Context, outcome string) {
	metersOnce.Do(initMeters)
	if statusCacheCount == nil {
		return
	}
	statusCacheCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}
