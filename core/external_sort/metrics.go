package externalsort

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type sortMetrics struct {
	sorts       metric.Int64Counter
	records     metric.Int64Counter
	runs        metric.Int64Counter
	mergeRounds metric.Int64Counter
	pagesCopied metric.Int64Counter
	duration    metric.Float64Histogram
}

func newSortMetrics(meter metric.Meter) (*sortMetrics, error) {
	sorts, err := meter.Int64Counter("gojosort.sorts",
		metric.WithDescription("Sort invocations by outcome"))
	if err != nil {
		return nil, err
	}
	records, err := meter.Int64Counter("gojosort.records.sorted",
		metric.WithDescription("Records written to sorted outputs"))
	if err != nil {
		return nil, err
	}
	runs, err := meter.Int64Counter("gojosort.runs.created",
		metric.WithDescription("Chunk files produced by the splitter"))
	if err != nil {
		return nil, err
	}
	mergeRounds, err := meter.Int64Counter("gojosort.merge.rounds",
		metric.WithDescription("Merge rounds executed"))
	if err != nil {
		return nil, err
	}
	pagesCopied, err := meter.Int64Counter("gojosort.pages.copied",
		metric.WithDescription("Pages copied into sort outputs"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("gojosort.sort.duration",
		metric.WithDescription("Wall time of one sort"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &sortMetrics{
		sorts:       sorts,
		records:     records,
		runs:        runs,
		mergeRounds: mergeRounds,
		pagesCopied: pagesCopied,
		duration:    duration,
	}, nil
}

func (m *sortMetrics) addRuns(ctx context.Context, n int) {
	m.runs.Add(ctx, int64(n))
}

func (m *sortMetrics) addMergeRound(ctx context.Context) {
	m.mergeRounds.Add(ctx, 1)
}

func (m *sortMetrics) addPagesCopied(ctx context.Context, n int) {
	m.pagesCopied.Add(ctx, int64(n))
}

func (m *sortMetrics) recordSort(ctx context.Context, field FieldNo, records int, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("field", field.String()),
		attribute.String("outcome", outcome),
	)
	m.sorts.Add(ctx, 1, attrs)
	if err == nil {
		m.records.Add(ctx, int64(records), metric.WithAttributes(attribute.String("field", field.String())))
	}
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}
