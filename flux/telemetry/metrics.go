// Package telemetry wires node-execution tracing and metrics into the
// executor (SPEC_FULL.md §12.2) and sets up the engine's structured
// logger. Grounded on randalmurphal-flowgraph's
// pkg/flowgraph/observability/metrics.go (MetricsRecorder interface,
// otelMetrics implementation, NoopMetrics fallback) and viant-fluxor's
// tracing/tracing.go (stdouttrace-backed tracer provider, Span wrapper).
package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var (
	meterProviderOnce sync.Once
	meterProviderErr  error
)

// InitMetrics installs an SDK-backed MeterProvider as the global provider,
// the metrics counterpart to InitTracing. Idempotent — only the first call
// takes effect. Pass an empty outputFile to write metric snapshots to
// stdout. Must run before the first NewMetricsRecorder call that should
// produce real readings; a recorder built before this runs against the
// no-op global meter and silently discards every measurement.
func InitMetrics(serviceName, serviceVersion, outputFile string) error {
	var w io.Writer = os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return err
		}
		w = f
	}

	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return err
	}

	meterProviderOnce.Do(func() {
		res, rerr := resource.New(context.Background(),
			resource.WithAttributes(
				attribute.String("service.name", serviceName),
				attribute.String("service.version", serviceVersion),
			),
		)
		if rerr != nil {
			meterProviderErr = rerr
			return
		}

		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
	})

	return meterProviderErr
}

// MetricsRecorder records node-execution metrics for a flow run. Use
// NewMetricsRecorder for an OTel-backed recorder, or NoopMetrics{} to
// disable metrics entirely.
type MetricsRecorder interface {
	RecordNodeExecution(ctx context.Context, nodeType, nodePath string, duration time.Duration, err error)
	RecordFluxRun(ctx context.Context, endpoint string, success bool, duration time.Duration)
}

// NoopMetrics discards every measurement — the default when no meter
// provider has been configured.
type NoopMetrics struct{}

func (NoopMetrics) RecordNodeExecution(context.Context, string, string, time.Duration, error) {}
func (NoopMetrics) RecordFluxRun(context.Context, string, bool, time.Duration)                {}

type otelMetrics struct {
	nodeExecutions metric.Int64Counter
	nodeLatency    metric.Float64Histogram
	nodeErrors     metric.Int64Counter
	fluxRuns       metric.Int64Counter
	fluxLatency    metric.Float64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("fluxcore")

	nodeExecutions, err := meter.Int64Counter("fluxcore.node.executions",
		metric.WithDescription("Number of flow node executions"))
	if err != nil {
		return nil, err
	}

	nodeLatency, err := meter.Float64Histogram("fluxcore.node.latency_ms",
		metric.WithDescription("Flow node execution latency"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	nodeErrors, err := meter.Int64Counter("fluxcore.node.errors",
		metric.WithDescription("Number of flow node execution errors"))
	if err != nil {
		return nil, err
	}

	fluxRuns, err := meter.Int64Counter("fluxcore.flux.runs",
		metric.WithDescription("Number of flux requests served"))
	if err != nil {
		return nil, err
	}

	fluxLatency, err := meter.Float64Histogram("fluxcore.flux.latency_ms",
		metric.WithDescription("Total flux request latency"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		nodeExecutions: nodeExecutions,
		nodeLatency:    nodeLatency,
		nodeErrors:     nodeErrors,
		fluxRuns:       fluxRuns,
		fluxLatency:    fluxLatency,
	}, nil
}

// NewMetricsRecorder returns an OTel-backed MetricsRecorder using the
// global meter provider. Call InitMetrics (or otel.SetMeterProvider
// directly) before this, or instruments bind to OTel's no-op global meter
// and every recording is silently discarded. Falls back to NoopMetrics if
// instrument creation fails.
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder", "error", err)
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) RecordNodeExecution(ctx context.Context, nodeType, nodePath string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("node_type", nodeType),
		attribute.String("node_path", nodePath),
	}
	m.nodeExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.nodeLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if err != nil {
		m.nodeErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *otelMetrics) RecordFluxRun(ctx context.Context, endpoint string, success bool, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("endpoint", endpoint),
		attribute.Bool("success", success),
	}
	m.fluxRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.fluxLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}
