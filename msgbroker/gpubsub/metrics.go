package gpubsub

import (
	"context"

	"github.com/pikapool/pikapool-api/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metricsCollector interface {
	onPublish(context.Context, string, error)
}

type noopMetricsCollector struct{}

func (noopMetricsCollector) onPublish(context.Context, string, error) {}

type otelMetricsCollector struct {
	metricPublishedMessages metric.Int64Counter
}

func (c *otelMetricsCollector) onPublish(ctx context.Context, topicName string, err error) {
	metrics.MetricIncrCounter(ctx, err, c.metricPublishedMessages, attribute.String("topic", topicName))
}

func (p *PubsubMsgBroker) initMetrics(meter metric.Meter) error {
	published, err := meter.Int64Counter("gpubsub_published_messages_total")
	if err != nil {
		return err
	}
	p.metrics = &otelMetricsCollector{metricPublishedMessages: published}
	return nil
}
