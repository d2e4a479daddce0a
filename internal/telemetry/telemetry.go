// Package telemetry provides OpenTelemetry tracing for the fable RAG
// gateway. Spans cover the retrieval pipeline stages and every backend
// generation call, exported over OTLP/HTTP.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Config holds telemetry configuration.
type Config struct {
	Enabled     bool
	Endpoint    string // OTLP/HTTP collector, e.g. "localhost:6006"
	ProjectName string
	ServiceName string
}

// DefaultConfig returns default telemetry config.
func DefaultConfig() Config {
	return Config{
		Enabled:     false,
		Endpoint:    "localhost:6006",
		ProjectName: "fablerag",
		ServiceName: "fablerag",
	}
}

var (
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	enabled  bool
)

// Init initializes the telemetry system. With Enabled false a no-op
// tracer is installed and spans cost nothing.
func Init(cfg Config) error {
	if !cfg.Enabled {
		enabled = false
		tracer = otel.Tracer("fablerag-noop")
		return nil
	}

	ctx := context.Background()

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(), // local collectors run without TLS
		otlptracehttp.WithURLPath("/v1/traces"),
	)
	if err != nil {
		return err
	}

	res := resource.NewWithAttributes(
		"",
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion("dev"),
		attribute.String("llm.system", "fablerag"),
		attribute.String("openinference.project.name", cfg.ProjectName),
	)

	provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(provider)
	tracer = provider.Tracer("fablerag")
	enabled = true

	return nil
}

// Shutdown flushes pending traces and stops the exporter.
func Shutdown(ctx context.Context) error {
	if provider != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return provider.Shutdown(shutdownCtx)
	}
	return nil
}

// Enabled returns whether telemetry is enabled.
func Enabled() bool {
	return enabled
}

// Tracer returns the global tracer.
func Tracer() trace.Tracer {
	if tracer == nil {
		return otel.Tracer("fablerag-noop")
	}
	return tracer
}

// StartSpan starts a plain pipeline span (retrieval, embedding,
// context assembly).
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name)
}

// LLMSpan wraps a span around one backend generation call.
type LLMSpan struct {
	span      trace.Span
	startTime time.Time
}

// StartLLMSpan starts a span for a generation call against the named
// backend (label form, e.g. "ollama (llama3.2:latest)").
func StartLLMSpan(ctx context.Context, name, backend string) (context.Context, *LLMSpan) {
	ctx, span := Tracer().Start(ctx, name,
		trace.WithAttributes(
			attribute.String("llm.backend", backend),
			attribute.String("llm.system", "fablerag"),
		),
	)
	return ctx, &LLMSpan{span: span, startTime: time.Now()}
}

// SetInput records the prompt.
func (s *LLMSpan) SetInput(prompt string) {
	s.span.SetAttributes(
		attribute.String("llm.prompts.0.content", prompt),
		attribute.String("llm.prompts.0.role", "user"),
	)
}

// SetOutput records the completion.
func (s *LLMSpan) SetOutput(response string) {
	s.span.SetAttributes(
		attribute.String("llm.completions.0.content", response),
		attribute.String("llm.completions.0.role", "assistant"),
	)
}

// SetError records an error on the span.
func (s *LLMSpan) SetError(err error) {
	s.span.RecordError(err)
	s.span.SetAttributes(attribute.Bool("error", true))
}

// End completes the span with the call latency attached.
func (s *LLMSpan) End() {
	duration := time.Since(s.startTime)
	s.span.SetAttributes(attribute.Float64("llm.latency_ms", float64(duration.Milliseconds())))
	s.span.End()
}
