// Package otel maps gateway lifecycle events onto OpenTelemetry spans.
package otel

import (
	"context"
	"sync"

	eventbus "github.com/classhub/gqlgate/internal/eventbus"
	events "github.com/classhub/gqlgate/internal/events"
	reqid "github.com/classhub/gqlgate/internal/reqid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
)

// Setup configures the OTLP trace exporter and attaches event subscribers.
// An empty endpoint disables telemetry; the returned shutdown function is
// then a no-op.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithInsecure()))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	sub := &subscriber{tracer: otel.Tracer("gqlgate")}
	sub.register()

	return tp.Shutdown, nil
}

// subscriber keys open spans by request ID so finish events can close the
// span their start event opened.
type subscriber struct {
	tracer    trace.Tracer
	httpSpans sync.Map // rid -> trace.Span
}

func (s *subscriber) register() {
	eventbus.Subscribe(func(ctx context.Context, e events.HTTPStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(ctx, "http.request")
		span.SetAttributes(
			semconv.HTTPMethodKey.String(e.Request.Method),
			attribute.String("http.target", e.Request.URL.Path),
		)
		s.httpSpans.Store(rid, span)
	})

	eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
		rid, _ := reqid.FromContext(ctx)
		v, ok := s.httpSpans.LoadAndDelete(rid)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
		span.End()
	})

	eventbus.Subscribe(func(ctx context.Context, e events.AdmissionEvaluated) {
		rid, _ := reqid.FromContext(ctx)
		parent := ctx
		if v, ok := s.httpSpans.Load(rid); ok {
			parent = trace.ContextWithSpan(ctx, v.(trace.Span))
		}
		// Admission is synchronous; the span is recorded after the fact
		// with its measured duration as an attribute.
		_, span := s.tracer.Start(parent, "graphql.admission")
		span.SetAttributes(
			attribute.String("graphql.operation.name", e.OperationName),
			attribute.String("graphql.operation.type", e.OperationType),
			attribute.Float64("graphql.admission.complexity", e.Complexity),
			attribute.Int("graphql.admission.depth", e.Depth),
			attribute.Bool("graphql.admission.allowed", e.Allowed),
			attribute.Int64("graphql.admission.duration_us", e.Duration.Microseconds()),
		)
		if e.RejectionCode != "" {
			span.SetAttributes(attribute.String("graphql.admission.rejection_code", e.RejectionCode))
		}
		span.End()
	})

	eventbus.Subscribe(func(ctx context.Context, e events.UpstreamFinish) {
		rid, _ := reqid.FromContext(ctx)
		parent := ctx
		if v, ok := s.httpSpans.Load(rid); ok {
			parent = trace.ContextWithSpan(ctx, v.(trace.Span))
		}
		_, span := s.tracer.Start(parent, "graphql.upstream")
		span.SetAttributes(
			semconv.HTTPStatusCodeKey.Int(e.Status),
			attribute.Int64("graphql.upstream.duration_us", e.Duration.Microseconds()),
		)
		if e.Err != nil {
			span.RecordError(e.Err)
		}
		span.End()
	})
}
