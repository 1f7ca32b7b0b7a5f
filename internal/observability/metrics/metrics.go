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
	webhooksReceived metric.Int64Counter
	ordersIngested   metric.Int64Counter
	ordersAccepted   metric.Int64Counter
	mappingFailures  metric.Int64Counter
	pushFailures     metric.Int64Counter
	menuSyncs        metric.Int64Counter
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

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "sufra"
	}
	meter := provider.Meter(name)

	webhooksReceived, err := meter.Int64Counter("sufra_aggregator_webhooks_total")
	if err != nil {
		return nil, err
	}
	ordersIngested, err := meter.Int64Counter("sufra_aggregator_orders_ingested_total")
	if err != nil {
		return nil, err
	}
	ordersAccepted, err := meter.Int64Counter("sufra_aggregator_orders_accepted_total")
	if err != nil {
		return nil, err
	}
	mappingFailures, err := meter.Int64Counter("sufra_aggregator_mapping_failures_total")
	if err != nil {
		return nil, err
	}
	pushFailures, err := meter.Int64Counter("sufra_aggregator_push_failures_total")
	if err != nil {
		return nil, err
	}
	menuSyncs, err := meter.Int64Counter("sufra_aggregator_menu_syncs_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		webhooksReceived: webhooksReceived,
		ordersIngested:   ordersIngested,
		ordersAccepted:   ordersAccepted,
		mappingFailures:  mappingFailures,
		pushFailures:     pushFailures,
		menuSyncs:        menuSyncs,
	}, nil
}

// RecordWebhook increments inbound webhook counts per provider and outcome.
func (m *Metrics) RecordWebhook(ctx context.Context, provider, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.webhooksReceived.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordOrderIngested increments ingested order counts.
func (m *Metrics) RecordOrderIngested(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("provider", strings.TrimSpace(provider)))
	m.ordersIngested.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordOrderAccepted increments accepted order counts.
func (m *Metrics) RecordOrderAccepted(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("provider", strings.TrimSpace(provider)))
	m.ordersAccepted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordMappingFailure increments sale mapping failure counts.
func (m *Metrics) RecordMappingFailure(ctx context.Context, provider, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.mappingFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPushFailure increments outbound status push failure counts.
func (m *Metrics) RecordPushFailure(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("provider", strings.TrimSpace(provider)))
	m.pushFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordMenuSync increments menu sync counts per outcome.
func (m *Metrics) RecordMenuSync(ctx context.Context, provider, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.menuSyncs.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"provider":    {},
	"outcome":     {},
	"reason":      {},
	"endpoint":    {},
	"status_code": {},
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
