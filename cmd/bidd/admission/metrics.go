package admission

import (
	"context"
	"time"

	"github.com/pikapool/pikapool-api/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

func (a *Admitter) initMetrics() error {
	meter := otel.Meter("admission")
	var err error
	if a.metricRequests, err = meter.Int64Counter("admission_requests_total"); err != nil {
		return err
	}
	if a.metricDuration, err = meter.Int64Histogram("admission_duration_millis"); err != nil {
		return err
	}
	if a.metricPublished, err = meter.Int64Counter("admission_published_events_total"); err != nil {
		return err
	}
	return nil
}

func (a *Admitter) onAdmit(ctx context.Context, start time.Time, err error) {
	kind := "none"
	if err != nil {
		kind = KindOf(err).String()
	}
	label := attribute.String("kind", kind)
	metrics.MetricIncrCounter(ctx, err, a.metricRequests, label)
	metrics.MetricRecordMillis(ctx, err, a.metricDuration, time.Since(start).Milliseconds(), label)
}

func (a *Admitter) onPublish(ctx context.Context, err error) {
	metrics.MetricIncrCounter(ctx, err, a.metricPublished)
}
