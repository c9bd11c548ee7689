package tracing

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

var ServiceName string
var TracingProvider *sdktrace.TracerProvider

// InitTraceProvider installs the global tracer provider. Spans are exported over
// OTLP gRPC or to Jaeger depending on which endpoint is set in the environment,
// and dropped when neither is.
func InitTraceProvider(servicename string) (shutdown func(), err error) {
	ServiceName = servicename

	var exporter sdktrace.SpanExporter
	switch {
	case os.Getenv("OTEL_GRPC_ENDPOINT") != "":
		log.Info().Msg("New GRPC TraceProvider")
		exporter, err = otlptracegrpc.New(
			context.Background(),
			otlptracegrpc.WithEndpoint(os.Getenv("OTEL_GRPC_ENDPOINT")),
			otlptracegrpc.WithHeaders(map[string]string{
				"Authorization": os.Getenv("OTEL_AUTH_KEY"),
			}),
		)
	case os.Getenv("OTEL_JAEGER_ENDPOINT") != "":
		log.Info().Msg("New Jaeger TraceProvider")
		exporter, err = jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(os.Getenv("OTEL_JAEGER_ENDPOINT"))))
	default:
		log.Debug().Msg("No trace exporter configured")
	}
	if err != nil {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(servicename),
			semconv.DeploymentEnvironmentKey.String(environment()),
		)),
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	TracingProvider = sdktrace.NewTracerProvider(opts...)

	otel.SetTracerProvider(TracingProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	shutdown = func() {
		if err := TracingProvider.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown trace provider")
		}
	}
	return
}

func environment() string {
	if env := os.Getenv("OTEL_ENVIRONMENT"); env != "" {
		return env
	}
	return "production"
}

func NewSpan(name string, ctx context.Context) (context.Context, trace.Span) {
	tracer := otel.Tracer(ServiceName)
	return tracer.Start(ctx, name)
}
