package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// Span names
	SpanAddOrder   = "add_order"
	SpanFillOrder  = "fill_order"
	SpanRemoteFill = "remote_fill"
	SpanSignedFill = "signed_fill"
	SpanReceive    = "receive_message"

	// Attribute keys
	AttributeNonce      = "order.nonce"
	AttributeMaker      = "order.maker"
	AttributeTaker      = "order.taker"
	AttributeAsset      = "order.asset"
	AttributeRemoteBook = "fill.remote_book"
	AttributeSrcDomain  = "message.src_domain"
	AttributeSequence   = "message.sequence"
)

// StartBookSpan starts a new span for a book operation. When no collector is
// configured the span is a no-op, so callers can defer End unconditionally.
func StartBookSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := GetBookServiceTracer()
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(instrumentationName)
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// AddAttributes adds attributes to a span
func AddAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span == nil {
		return
	}
	span.SetAttributes(attrs...)
}
