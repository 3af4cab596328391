package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	httpMetrics     *HTTPServerMetrics
	httpMetricsOnce sync.Once
)

// HTTPServerMetrics holds the metrics instruments for HTTP server monitoring
type HTTPServerMetrics struct {
	// Latency metrics
	serverLatency metric.Float64Histogram

	// Traffic metrics
	requestsTotal    metric.Int64Counter
	requestsInFlight metric.Int64UpDownCounter

	// Error metrics
	errorTotal metric.Int64Counter
}

// NewHTTPServerMetrics creates a new HTTPServerMetrics instance
func NewHTTPServerMetrics(meter metric.Meter) (*HTTPServerMetrics, error) {
	serverLatency, err := meter.Float64Histogram(
		"http.server.duration",
		metric.WithDescription("Response latency (seconds) of HTTP server"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	requestsTotal, err := meter.Int64Counter(
		"http.server.requests.total",
		metric.WithDescription("Total number of HTTP requests started"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	requestsInFlight, err := meter.Int64UpDownCounter(
		"http.server.requests.in_flight",
		metric.WithDescription("Number of HTTP requests currently in flight"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	errorTotal, err := meter.Int64Counter(
		"http.server.errors.total",
		metric.WithDescription("Total number of HTTP requests that returned an error status"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &HTTPServerMetrics{
		serverLatency:    serverLatency,
		requestsTotal:    requestsTotal,
		requestsInFlight: requestsInFlight,
		errorTotal:       errorTotal,
	}, nil
}

// GetHTTPServerMetrics returns the HTTPServerMetrics singleton
func GetHTTPServerMetrics() *HTTPServerMetrics {
	httpMetricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter(instrumentationName)
		m, err := NewHTTPServerMetrics(meter)
		if err != nil {
			httpMetrics = &HTTPServerMetrics{}
			return
		}
		httpMetrics = m
	})
	return httpMetrics
}

// RecordRequestStart records the start of an HTTP request
func (m *HTTPServerMetrics) RecordRequestStart(ctx context.Context, route string) {
	attrs := metric.WithAttributes(attribute.String("http.route", route))
	if m.requestsTotal != nil {
		m.requestsTotal.Add(ctx, 1, attrs)
	}
	if m.requestsInFlight != nil {
		m.requestsInFlight.Add(ctx, 1, attrs)
	}
}

// RecordRequestEnd records the completion of an HTTP request
func (m *HTTPServerMetrics) RecordRequestEnd(ctx context.Context, route string, status int, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
	)
	if m.requestsInFlight != nil {
		m.requestsInFlight.Add(ctx, -1, metric.WithAttributes(attribute.String("http.route", route)))
	}
	if m.serverLatency != nil {
		m.serverLatency.Record(ctx, elapsed.Seconds(), attrs)
	}
	if status >= 500 && m.errorTotal != nil {
		m.errorTotal.Add(ctx, 1, attrs)
	}
}
