package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
)

const ServiceName = "rockhype"

type Telemetry struct {
	provider *sdkmetric.MeterProvider
	handler  http.Handler
}

// Setup installs a global meter provider backed by a Prometheus exporter.
// When the exporter cannot be created, metrics are still collected but not exposed.
func Setup(ctx context.Context, environment string) (*Telemetry, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
			attribute.String("deployment.environment", environment),
		),
	)
	if err != nil {
		return nil, err
	}

	promExporter, err := prometheus.New()
	if err != nil {
		slog.Warn("failed to initialize prometheus exporter", "error", err)
		provider := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
		otel.SetMeterProvider(provider)
		return &Telemetry{provider: provider, handler: http.NotFoundHandler()}, nil
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)
	return &Telemetry{provider: provider, handler: promhttp.Handler()}, nil
}

func (t *Telemetry) Meter() metric.Meter {
	return t.provider.Meter(ServiceName)
}

func (t *Telemetry) Handler() http.Handler {
	return t.handler
}

func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return errors.Join(t.provider.ForceFlush(ctx), t.provider.Shutdown(ctx))
}
