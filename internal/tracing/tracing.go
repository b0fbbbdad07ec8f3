// Package tracing sets up the OpenTelemetry tracer provider.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

var (
	ErrEndpointRequired    = errors.New("tracing: endpoint is required when tracing is enabled")
	ErrEndpointInvalid     = errors.New("tracing: endpoint must be a URL with a host, e.g. http://collector:4318")
	ErrServiceNameRequired = errors.New("tracing: service name is required")
	ErrTimeoutInvalid      = errors.New("tracing: timeout must be positive")
	ErrSampleRateInvalid   = errors.New("tracing: sample rate must be between 0 and 1")
)

// Config defines tracing settings.
type Config struct {
	Enabled     bool          `mapstructure:"enabled"`
	Endpoint    string        `mapstructure:"endpoint"`
	ServiceName string        `mapstructure:"service_name"`
	Environment string        `mapstructure:"environment"`
	Insecure    bool          `mapstructure:"insecure"`
	Timeout     time.Duration `mapstructure:"timeout"`
	SampleRate  float64       `mapstructure:"sample_rate"`
}

// Validate checks an enabled configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Endpoint == "" {
		return ErrEndpointRequired
	}
	if u, err := url.Parse(c.Endpoint); err != nil || u.Host == "" {
		return ErrEndpointInvalid
	}
	if c.ServiceName == "" {
		return ErrServiceNameRequired
	}
	if c.Timeout <= 0 {
		return ErrTimeoutInvalid
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("%w, got %g", ErrSampleRateInvalid, c.SampleRate)
	}
	return nil
}

// Setup installs a global tracer provider exporting over OTLP/HTTP and returns
// its shutdown function. When tracing is disabled the global no-op provider
// stays in place.
func Setup(ctx context.Context, cfg Config, version string, logger *slog.Logger) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(version),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	// WithEndpoint takes host:port only.
	u, _ := url.Parse(cfg.Endpoint)
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(u.Host),
		otlptracehttp.WithTimeout(cfg.Timeout),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)
	otel.SetTracerProvider(tp)

	logger.Info("tracing enabled",
		"endpoint", cfg.Endpoint,
		"service", cfg.ServiceName,
		"sample_rate", cfg.SampleRate,
	)
	return tp.Shutdown, nil
}
