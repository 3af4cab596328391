package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	bookMetrics     *BookMetrics
	bookMetricsOnce sync.Once
)

// BookMetrics holds metrics for book operations
type BookMetrics struct {
	ordersAddedTotal metric.Int64Counter

	// Fills by mode (direct, remote, signed)
	ordersFilledTotal metric.Int64Counter

	// Remote fill sessions by outcome
	remoteFillsTotal metric.Int64Counter

	failedMessagesTotal metric.Int64Counter
}

// GetBookMetrics returns the BookMetrics singleton
func GetBookMetrics() *BookMetrics {
	bookMetricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter(instrumentationName)
		m := &BookMetrics{}

		var err error
		m.ordersAddedTotal, err = meter.Int64Counter(
			"book.orders_added.total",
			metric.WithDescription("Total number of orders added"),
			metric.WithUnit("{order}"),
		)
		if err != nil {
			bookMetrics = &BookMetrics{}
			return
		}

		m.ordersFilledTotal, err = meter.Int64Counter(
			"book.orders_filled.total",
			metric.WithDescription("Total number of orders filled"),
			metric.WithUnit("{order}"),
		)
		if err != nil {
			bookMetrics = &BookMetrics{}
			return
		}

		m.remoteFillsTotal, err = meter.Int64Counter(
			"book.remote_fills.total",
			metric.WithDescription("Remote fill sessions by outcome"),
			metric.WithUnit("{fill}"),
		)
		if err != nil {
			bookMetrics = &BookMetrics{}
			return
		}

		m.failedMessagesTotal, err = meter.Int64Counter(
			"book.failed_messages.total",
			metric.WithDescription("Inbound messages stored for retry"),
			metric.WithUnit("{message}"),
		)
		if err != nil {
			bookMetrics = &BookMetrics{}
			return
		}

		bookMetrics = m
	})

	return bookMetrics
}

// RecordOrderAdded increments the added orders counter
func (m *BookMetrics) RecordOrderAdded(ctx context.Context) {
	if m.ordersAddedTotal == nil {
		return
	}
	m.ordersAddedTotal.Add(ctx, 1)
}

// RecordOrderFilled increments the filled orders counter
func (m *BookMetrics) RecordOrderFilled(ctx context.Context, mode string) {
	if m.ordersFilledTotal == nil {
		return
	}
	m.ordersFilledTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("fill.mode", mode),
	))
}

// RecordRemoteFill increments the remote fill counter
func (m *BookMetrics) RecordRemoteFill(ctx context.Context, outcome string) {
	if m.remoteFillsTotal == nil {
		return
	}
	m.remoteFillsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("fill.outcome", outcome),
	))
}

// RecordFailedMessage increments the failed message counter
func (m *BookMetrics) RecordFailedMessage(ctx context.Context) {
	if m.failedMessagesTotal == nil {
		return
	}
	m.failedMessagesTotal.Add(ctx, 1)
}
