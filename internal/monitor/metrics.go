package monitor

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"

	"github.com/t77yq/webhook-cronjob/internal/webhook"
)

const (
	meterName    = "webhook-cronjob"
	meterVersion = "1.0.0"
)

// Metrics records dispatch outcomes and host usage and serves them in the
// Prometheus exposition format.
type Metrics struct {
	logger   *zap.Logger
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider

	dispatches metric.Int64Counter
	duration   metric.Float64Histogram
}

// NewMetrics creates the meter provider and registers every instrument. Each
// instance exports to its own registry.
func NewMetrics(logger *zap.Logger) (*Metrics, error) {
	registry := prometheus.NewRegistry()

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(meterName, metric.WithInstrumentationVersion(meterVersion))

	m := &Metrics{
		logger:   logger.Named("metrics"),
		registry: registry,
		provider: provider,
	}

	if err := m.registerInstruments(meter); err != nil {
		provider.Shutdown(context.Background())
		return nil, err
	}

	return m, nil
}

func (m *Metrics) registerInstruments(meter metric.Meter) error {
	var err error

	m.dispatches, err = meter.Int64Counter(
		"webhook.dispatches",
		metric.WithDescription("Number of webhook dispatch attempts by outcome"),
		metric.WithUnit("{dispatch}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create dispatch counter: %w", err)
	}

	m.duration, err = meter.Float64Histogram(
		"webhook.dispatch.duration",
		metric.WithDescription("Duration of webhook dispatch attempts"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create dispatch duration histogram: %w", err)
	}

	_, err = meter.Float64ObservableGauge(
		"host.cpu.usage",
		metric.WithDescription("Host CPU usage"),
		metric.WithUnit("%"),
		metric.WithFloat64Callback(m.observeCPU),
	)
	if err != nil {
		return fmt.Errorf("failed to create cpu gauge: %w", err)
	}

	_, err = meter.Float64ObservableGauge(
		"host.memory.usage",
		metric.WithDescription("Host memory usage"),
		metric.WithUnit("%"),
		metric.WithFloat64Callback(m.observeMemory),
	)
	if err != nil {
		return fmt.Errorf("failed to create memory gauge: %w", err)
	}

	return nil
}

// Observe implements webhook.OutcomeObserver
func (m *Metrics) Observe(ctx context.Context, outcome *webhook.Outcome) {
	attrs := metric.WithAttributes(attribute.String("outcome", string(outcome.Kind())))

	m.dispatches.Add(ctx, 1, attrs)
	m.duration.Record(ctx, outcome.Duration().Seconds(), attrs)
}

// Handler serves the metrics in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

func (m *Metrics) observeCPU(ctx context.Context, observer metric.Float64Observer) error {
	percent, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil || len(percent) == 0 {
		m.logger.Debug("Failed to get CPU usage", zap.Error(err))
		return nil
	}

	observer.Observe(percent[0])
	return nil
}

func (m *Metrics) observeMemory(ctx context.Context, observer metric.Float64Observer) error {
	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		m.logger.Debug("Failed to get memory usage", zap.Error(err))
		return nil
	}

	observer.Observe(memInfo.UsedPercent)
	return nil
}
