package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"claimant-consumer/internal/config"
	"claimant-consumer/internal/constants"
)

const consumerTracer = constants.ServiceName + "/consumer"

// TracerProvider owns the SDK provider so it can be flushed on shutdown.
type TracerProvider struct {
	tp *sdktrace.TracerProvider
}

func (tp *TracerProvider) Tracer(name string) trace.Tracer {
	return tp.tp.Tracer(name)
}

func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.tp != nil {
		return tp.tp.Shutdown(ctx)
	}
	return nil
}

// Init installs the global propagator and provider for the consumer. Spans
// are always created so trace ids reach the logs; they are exported over OTLP
// gRPC only when tracing is enabled.
func Init(cfg *config.Config) (*TracerProvider, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	res, err := resource.Merge(resource.Default(), consumerResource(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if !cfg.Tracing.Enabled {
		tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
		otel.SetTracerProvider(tp)
		return &TracerProvider{tp: tp}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.HealthTimeout)
	defer cancel()

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Tracing.OTLP.Endpoint)}
	if cfg.Tracing.OTLP.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.Tracing.Sampler)),
	)
	otel.SetTracerProvider(tp)
	return &TracerProvider{tp: tp}, nil
}

// consumerResource describes this consumer instance: its group, the topics it
// follows and where it writes.
func consumerResource(cfg *config.Config) *resource.Resource {
	name := cfg.Tracing.ServiceName
	if name == "" {
		name = constants.ServiceName
	}

	topics := make([]string, 0, len(cfg.Topics))
	for _, t := range cfg.Topics {
		topics = append(topics, t.Name)
	}

	return resource.NewSchemaless(
		semconv.ServiceNameKey.String(name),
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.kafka.consumer.group", cfg.Broker.Kafka.GroupID),
		attribute.String("messaging.client_id", cfg.Broker.Kafka.ClientID),
		attribute.String("claimant.topic_pattern", cfg.Broker.Kafka.TopicRegex),
		attribute.StringSlice("claimant.topics", topics),
		attribute.String("claimant.target.success", cfg.Target.Success.Type),
		attribute.String("claimant.target.failure", cfg.Target.Failure.Type),
	)
}

// sampler defaults to sampling everything, parent based.
func sampler(cfg config.SamplerConfig) sdktrace.Sampler {
	switch cfg.Type {
	case "always_on":
		return sdktrace.AlwaysSample()
	case "always_off":
		return sdktrace.NeverSample()
	case "traceidratio":
		return sdktrace.TraceIDRatioBased(cfg.Param)
	case "parentbased_traceidratio":
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Param))
	}
	return sdktrace.ParentBased(sdktrace.AlwaysSample())
}

func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
