package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/propfront/propfront/internal/config"
)

const meterName = "propfront"

type AppMetrics struct {
	sessionTransitionCounter metric.Int64Counter
	cacheOperationCounter    metric.Int64Counter
	apiRequestCounter        metric.Int64Counter
	apiRequestDuration       metric.Float64Histogram
	accessDecisionCounter    metric.Int64Counter
	csrfRejectionCounter     metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTEL.MetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		if err := registerInstruments(mp.Meter(meterName)); err != nil {
			return nil, err
		}
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTEL.ExporterEndpoint)}
	if cfg.OTEL.ExporterInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTEL.MetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	if err := registerInstruments(mp.Meter(meterName)); err != nil {
		return nil, err
	}
	logger.Info("otel metrics initialized", "endpoint", cfg.OTEL.ExporterEndpoint)
	return mp, nil
}

func registerInstruments(meter metric.Meter) error {
	transitionCounter, err := meter.Int64Counter("session.transitions")
	if err != nil {
		return err
	}
	cacheCounter, err := meter.Int64Counter("cache.coordinator.operations")
	if err != nil {
		return err
	}
	apiCounter, err := meter.Int64Counter("api.client.requests")
	if err != nil {
		return err
	}
	apiDuration, err := meter.Float64Histogram("api.client.request.duration", metric.WithUnit("s"))
	if err != nil {
		return err
	}
	accessCounter, err := meter.Int64Counter("access.guard.decisions")
	if err != nil {
		return err
	}
	csrfCounter, err := meter.Int64Counter("http.csrf.rejections")
	if err != nil {
		return err
	}

	metricsMu.Lock()
	appMetrics = &AppMetrics{
		sessionTransitionCounter: transitionCounter,
		cacheOperationCounter:    cacheCounter,
		apiRequestCounter:        apiCounter,
		apiRequestDuration:       apiDuration,
		accessDecisionCounter:    accessCounter,
		csrfRejectionCounter:     csrfCounter,
	}
	metricsMu.Unlock()
	return nil
}

func loadMetrics() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func RecordSessionTransition(ctx context.Context, transition, outcome string) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.sessionTransitionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("transition", transition),
		attribute.String("outcome", outcome),
	))
}

func RecordCacheOperation(ctx context.Context, operation, outcome string) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.cacheOperationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

func RecordAPIRequest(ctx context.Context, endpoint string, status int, elapsed time.Duration) {
	m := loadMetrics()
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("status_class", StatusClass(status)),
	)
	m.apiRequestCounter.Add(ctx, 1, attrs)
	m.apiRequestDuration.Record(ctx, elapsed.Seconds(), attrs)
}

func RecordAccessDecision(ctx context.Context, decision string) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.accessDecisionCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", decision)))
}

func RecordCSRFRejection(ctx context.Context, pathGroup, reason string) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.csrfRejectionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("path_group", pathGroup),
		attribute.String("reason", reason),
	))
}

// StatusClass buckets an HTTP status; 0 means the request never got a response.
func StatusClass(status int) string {
	switch {
	case status == 0:
		return "transport_error"
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	default:
		return "other"
	}
}
