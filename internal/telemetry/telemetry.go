package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const (
	// DefaultServiceName names the console in exported telemetry.
	DefaultServiceName = "joynix-admin"

	apiHostKey      = attribute.Key("joynix.api.host")
	storeBackendKey = attribute.Key("joynix.store.backend")

	metricInterval = 10 * time.Second
)

// Config describes the console process to the OTLP collector. The exporter
// endpoint and headers come from the standard OTEL_EXPORTER_OTLP_* variables.
type Config struct {
	ServiceName string
	Version     string
	SampleRatio float64

	// APIBaseURL contributes only its host, StoreBackend is the session store
	// in use. Both tag every span and metric.
	APIBaseURL   string
	StoreBackend string
}

func (c Config) Validate() error {
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("sample ratio %v must be between 0 and 1", c.SampleRatio)
	}
	if c.APIBaseURL != "" {
		if _, err := url.Parse(c.APIBaseURL); err != nil {
			return fmt.Errorf("invalid api base url: %w", err)
		}
	}
	return nil
}

func (c Config) attributes() []attribute.KeyValue {
	name := c.ServiceName
	if name == "" {
		name = DefaultServiceName
	}

	attrs := []attribute.KeyValue{semconv.ServiceName(name)}
	if c.Version != "" {
		attrs = append(attrs, semconv.ServiceVersion(c.Version))
	}
	if u, err := url.Parse(c.APIBaseURL); err == nil && u.Host != "" {
		attrs = append(attrs, apiHostKey.String(u.Host))
	}
	if c.StoreBackend != "" {
		attrs = append(attrs, storeBackendKey.String(c.StoreBackend))
	}
	return attrs
}

// newResource merges the console attributes with OTEL_RESOURCE_ATTRIBUTES.
func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(cfg.attributes()...),
		resource.WithFromEnv(),
		// command args carry flags such as --redis-password, so no WithProcess
		resource.WithProcessPID(),
		resource.WithProcessExecutableName(),
		resource.WithProcessRuntimeVersion(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// Init installs OTLP trace and metric providers as the globals. A provider that
// cannot be created is skipped with a warning. The returned func flushes both.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var shutdowns []func(context.Context) error

	tp, err := newTracerProvider(ctx, res, cfg.SampleRatio)
	if err != nil {
		log.Warn().Err(err).Msg("Tracing disabled")
	} else {
		otel.SetTracerProvider(tp)
		shutdowns = append(shutdowns, tp.Shutdown)
	}

	mp, err := newMeterProvider(ctx, res)
	if err != nil {
		log.Warn().Err(err).Msg("Metrics disabled")
	} else {
		otel.SetMeterProvider(mp)
		shutdowns = append(shutdowns, mp.Shutdown)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info().
		Str("service", cfg.ServiceName).
		Str("version", cfg.Version).
		Str("store_backend", cfg.StoreBackend).
		Float64("sample_ratio", cfg.SampleRatio).
		Msg("Telemetry initialized")

	return func(ctx context.Context) error {
		var errs []error
		for _, shutdown := range shutdowns {
			if err := shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}, nil
}

func newTracerProvider(ctx context.Context, res *resource.Resource, sampleRatio float64) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio))),
	), nil
}

func newMeterProvider(ctx context.Context, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	exporter, err := otlpmetricgrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(metricInterval))),
		sdkmetric.WithResource(res),
	), nil
}
