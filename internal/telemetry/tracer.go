package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Option configures InitTracer.
type Option func(*options)

type options struct {
	writer      io.Writer
	prettyPrint bool
	version     string
}

// WithWriter sends exported spans to w instead of stdout.
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.writer = w }
}

// WithPrettyPrint indents exported spans.
func WithPrettyPrint() Option {
	return func(o *options) { o.prettyPrint = true }
}

// WithVersion records the service version on the resource.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// InitTracer installs a global tracer provider that exports spans as JSON
// and returns its shutdown function, which flushes pending spans.
func InitTracer(serviceName string, logger *slog.Logger, opts ...Option) (func(context.Context) error, error) {
	o := options{writer: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	exporterOpts := []stdouttrace.Option{stdouttrace.WithWriter(o.writer)}
	if o.prettyPrint {
		exporterOpts = append(exporterOpts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(exporterOpts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(o.version),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)

	logger.Info("tracing initialized", slog.String("service", serviceName))

	return tp.Shutdown, nil
}
