package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	events          metric.Int64Counter
	duplicates      metric.Int64Counter
	rejected        metric.Int64Counter
	auditFailures   metric.Int64Counter
	rateLimitDenied metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the reconciliation instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "reconcile"
	}
	meter := provider.Meter(name)

	events, err := meter.Int64Counter("reconcile_events_total")
	if err != nil {
		return nil, err
	}
	duplicates, err := meter.Int64Counter("reconcile_duplicate_events_total")
	if err != nil {
		return nil, err
	}
	rejected, err := meter.Int64Counter("reconcile_rejected_events_total")
	if err != nil {
		return nil, err
	}
	auditFailures, err := meter.Int64Counter("reconcile_audit_failures_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("reconcile_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		events:          events,
		duplicates:      duplicates,
		rejected:        rejected,
		auditFailures:   auditFailures,
		rateLimitDenied: rateLimitDenied,
	}, nil
}

// RecordEvent increments processed event counts per channel and outcome.
func (m *Metrics) RecordEvent(ctx context.Context, channel, eventType, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("channel", strings.TrimSpace(channel)),
		attribute.String("event_type", strings.TrimSpace(eventType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.events.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDuplicate increments replayed deliveries recognized by the ledger.
func (m *Metrics) RecordDuplicate(ctx context.Context, channel, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("channel", strings.TrimSpace(channel)),
		attribute.String("event_type", strings.TrimSpace(eventType)),
	)
	m.duplicates.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRejected increments deliveries refused by the authorization gate.
func (m *Metrics) RecordRejected(ctx context.Context, channel, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("channel", strings.TrimSpace(channel)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rejected.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordAuditFailure(ctx context.Context, action string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("action", strings.TrimSpace(action)))
	m.auditFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"channel":     {},
	"endpoint":    {},
	"status_code": {},
	"event_type":  {},
	"outcome":     {},
	"action":      {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
