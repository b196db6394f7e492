package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

const meterName = "github.com/searchktools/edge-httpd"

// Metrics holds the OpenTelemetry instruments of one engine. Readings are
// pulled on demand through a manual reader; nothing runs in the background.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	reader   *sdkmetric.ManualReader

	requests metric.Int64Counter
	bytes    metric.Int64Counter
	latency  metric.Float64Histogram
	conns    metric.Int64ObservableGauge
}

// NewMetrics creates the meter provider and instruments. liveConns, when
// non-nil, is sampled on every Collect.
func NewMetrics(liveConns func() int64) (*Metrics, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter(meterName)

	m := &Metrics{provider: provider, reader: reader}

	var err error
	m.requests, err = meter.Int64Counter("httpd.requests",
		metric.WithDescription("Responses fully sent, by status code"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, fmt.Errorf("requests counter: %w", err)
	}

	m.bytes, err = meter.Int64Counter("httpd.sent",
		metric.WithDescription("Response bytes written"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, fmt.Errorf("bytes counter: %w", err)
	}

	m.latency, err = meter.Float64Histogram("httpd.duration",
		metric.WithDescription("Time from response build to last byte sent"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("latency histogram: %w", err)
	}

	if liveConns != nil {
		m.conns, err = meter.Int64ObservableGauge("httpd.connections",
			metric.WithDescription("Live client connections"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(liveConns())
				return nil
			}))
		if err != nil {
			return nil, fmt.Errorf("connections gauge: %w", err)
		}
	}

	return m, nil
}

// RecordRequest adds one sent response to the instruments
func (m *Metrics) RecordRequest(ctx context.Context, status int, d time.Duration, sent int64) {
	attrs := metric.WithAttributes(attribute.Int("status", status))
	m.requests.Add(ctx, 1, attrs)
	m.bytes.Add(ctx, sent, attrs)
	m.latency.Record(ctx, float64(d)/float64(time.Millisecond), attrs)
}

// Collect gathers the current readings.
func (m *Metrics) Collect(ctx context.Context) (metricdata.ResourceMetrics, error) {
	var rm metricdata.ResourceMetrics
	err := m.reader.Collect(ctx, &rm)
	return rm, err
}

// Shutdown flushes and stops the provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}
