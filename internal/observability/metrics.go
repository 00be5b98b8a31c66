package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RESTMetrics holds custom metrics for resource operations
type RESTMetrics struct {
	requestDuration metric.Float64Histogram
	requestCounter  metric.Int64Counter
	errorCounter    metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter
	resultRows      metric.Int64Histogram
}

// InitRESTMetrics initializes resource-operation metrics
func InitRESTMetrics() (*RESTMetrics, error) {
	meter := otel.Meter("tidb-rest")

	requestDuration, err := meter.Float64Histogram(
		"rest.request.duration",
		metric.WithDescription("Duration of resource requests in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	requestCounter, err := meter.Int64Counter(
		"rest.requests.total",
		metric.WithDescription("Total number of resource requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"rest.errors.total",
		metric.WithDescription("Total number of resource request errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"rest.requests.active",
		metric.WithDescription("Number of resource requests in flight"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}

	resultRows, err := meter.Int64Histogram(
		"rest.results.rows",
		metric.WithDescription("Number of rows returned per listing request"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create result rows histogram: %w", err)
	}

	return &RESTMetrics{
		requestDuration: requestDuration,
		requestCounter:  requestCounter,
		errorCounter:    errorCounter,
		activeRequests:  activeRequests,
		resultRows:      resultRows,
	}, nil
}

// RecordRequest records a completed request with its duration and status
func (m *RESTMetrics) RecordRequest(ctx context.Context, duration time.Duration, status int, method, route string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
	)
	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.requestCounter.Add(ctx, 1, attrs)
	if status >= 500 {
		m.errorCounter.Add(ctx, 1, attrs)
	}
}

// RecordResultRows records the row count of a listing response
func (m *RESTMetrics) RecordResultRows(ctx context.Context, count int64, route string) {
	if m == nil {
		return
	}
	m.resultRows.Record(ctx, count, metric.WithAttributes(
		attribute.String("http.route", route),
	))
}

// IncrementActiveRequests increments the active request counter
func (m *RESTMetrics) IncrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, 1)
}

// DecrementActiveRequests decrements the active request counter
func (m *RESTMetrics) DecrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, -1)
}

// InitMetrics initializes all custom metrics
func InitMetrics(logger *slog.Logger) (*RESTMetrics, error) {
	metrics, err := InitRESTMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize REST metrics: %w", err)
	}
	logger.Info("REST metrics initialized")
	return metrics, nil
}
