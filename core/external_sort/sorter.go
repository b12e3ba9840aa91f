// Package externalsort sorts record files that do not fit in memory. The
// input is split into chunks that fit the caller's buffer budget, each chunk
// is sorted in place while pinned, and sorted chunks are merged in rounds of
// bounded fan-in until a single file remains.
package externalsort

import (
	"context"
	"fmt"
	"os"
	"time"

	recordfile "github.com/sushant-115/gojosort/core/record_file"
	"github.com/sushant-115/gojosort/core/storage_engine/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// MinBufferBudget is the smallest usable budget: a merge needs one output
// page and at least two inputs.
const MinBufferBudget = 3

// Options configures a Sorter.
type Options struct {
	// ScratchRoot is where per-sort scratch directories are created.
	// Empty means os.TempDir().
	ScratchRoot string
	// CopyRateBytesPerSec throttles the copy of the result to the output
	// path. Zero disables throttling.
	CopyRateBytesPerSec int64
	// Meter and Tracer default to no-op implementations.
	Meter  metric.Meter
	Tracer trace.Tracer
}

// Sorter runs external sorts over record files managed by one recordfile.Manager.
type Sorter struct {
	files    *recordfile.Manager
	opts     Options
	throttle *common.Throttle
	logger   *zap.Logger
	metrics  *sortMetrics
	tracer   trace.Tracer
}

func NewSorter(files *recordfile.Manager, opts Options, logger *zap.Logger) (*Sorter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Meter == nil {
		opts.Meter = metricnoop.NewMeterProvider().Meter("")
	}
	if opts.Tracer == nil {
		opts.Tracer = tracenoop.NewTracerProvider().Tracer("")
	}
	metrics, err := newSortMetrics(opts.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create sort metrics: %w", err)
	}
	pageSize := files.BufferPool().PageSize()
	return &Sorter{
		files:    files,
		opts:     opts,
		throttle: common.NewThrottle(opts.CopyRateBytesPerSec, pageSize),
		logger:   logger.Named("external_sort"),
		metrics:  metrics,
		tracer:   opts.Tracer,
	}, nil
}

// MaxBufferBudget is the largest budget the underlying buffer pool can honor.
func (s *Sorter) MaxBufferBudget() int {
	return s.files.BufferPool().MaxPinnedPages()
}

// Validate checks a sort request without touching any file.
func (s *Sorter) Validate(field FieldNo, bufferBudget int) error {
	if bufferBudget < MinBufferBudget || bufferBudget > s.MaxBufferBudget() {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidBufferBudget, bufferBudget, MinBufferBudget, s.MaxBufferBudget())
	}
	if !field.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidField, int(field))
	}
	return nil
}

// SortedFile writes the records of input, ordered by field, to a new record
// file at output, pinning at most bufferBudget pages at a time. input is not
// modified. On failure nothing is promised about output.
func (s *Sorter) SortedFile(ctx context.Context, input, output string, field FieldNo, bufferBudget int) (err error) {
	if err := s.Validate(field, bufferBudget); err != nil {
		return err
	}
	if _, statErr := os.Stat(output); statErr == nil {
		return fmt.Errorf("%w: %s", common.ErrFileExists, output)
	}

	ctx, span := s.tracer.Start(ctx, "externalsort.SortedFile", trace.WithAttributes(
		attribute.String("input", input),
		attribute.String("field", field.String()),
		attribute.Int("buffer_budget", bufferBudget),
	))
	start := time.Now()
	records := 0
	defer func() {
		s.metrics.recordSort(ctx, field, records, time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.logger.Error("Sort failed", zap.String("input", input), zap.String("output", output), zap.Error(err))
		}
		span.End()
	}()

	area, err := newScratchArea(s.opts.ScratchRoot, s.logger)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, area.Release()) }()

	// The slot array is shared by every phase of this sort.
	sl := newSlots(s.files.BufferPool(), bufferBudget)
	defer func() { err = multierr.Append(err, sl.ReleaseAll()) }()

	runs, err := s.split(ctx, input, bufferBudget, area, sl)
	if err != nil {
		return err
	}
	for _, r := range runs {
		if err := s.sortChunk(r.path, sl, field); err != nil {
			return err
		}
		records += r.records
	}
	s.logger.Info("Sorted initial chunks",
		zap.String("input", input),
		zap.Stringer("field", field),
		zap.Int("chunks", len(runs)),
		zap.Int("records", records))

	for round := 1; len(runs) > 1; round++ {
		runs, err = s.mergeRound(ctx, round, runs, bufferBudget-1, area, sl, field)
		if err != nil {
			return err
		}
		s.metrics.addMergeRound(ctx)
	}

	if err := s.materialize(ctx, runs, output, area); err != nil {
		return err
	}
	s.logger.Info("Sort finished",
		zap.String("input", input),
		zap.String("output", output),
		zap.Int("records", records),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// materialize copies the single remaining run to output and removes it. With
// no runs (empty input) output becomes an empty record file.
func (s *Sorter) materialize(ctx context.Context, runs []run, output string, area *scratchArea) error {
	_, span := s.tracer.Start(ctx, "externalsort.materialize")
	defer span.End()

	if len(runs) == 0 {
		return s.files.CreateFile(output)
	}
	final := runs[0]
	if err := s.files.CopyFile(ctx, final.path, output, s.throttle); err != nil {
		return fmt.Errorf("copying result to %s: %w", output, err)
	}
	s.metrics.addPagesCopied(ctx, recordfile.PageCountFor(final.records, s.files.RecordsPerPage()))
	return area.remove(final.path)
}
