package client

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// startSpan starts a span for one transition on the event loop.
func (c *Client) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("topicsync.client_id", c.ids.ClientID()))
	return c.tracer.Start(ctx, "topicsync."+name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// endSpan records the outcome of a transition and ends its span.
func (c *Client) endSpan(span trace.Span, err error) {
	span.SetAttributes(attribute.Int("topicsync.preview_depth", c.m.PreviewLen()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
