package externalsort

import (
	"context"
	"fmt"

	recordfile "github.com/sushant-115/gojosort/core/record_file"
	pagemanager "github.com/sushant-115/gojosort/core/storage_engine/page_manager"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	splitInSlot  = 0
	splitOutSlot = 1
)

// run is a record file in the scratch area together with its record count.
type run struct {
	path    string
	records int
}

// chunkCount returns ceil(dataPages / budget).
func chunkCount(dataPages, budget int) int {
	return (dataPages + budget - 1) / budget
}

// split cuts input into chunks of at most budget data pages each. Pages are
// copied verbatim and in order; nothing is reordered at split time.
func (s *Sorter) split(ctx context.Context, input string, budget int, area *scratchArea, sl *slots) (runs []run, err error) {
	_, span := s.tracer.Start(ctx, "externalsort.split")
	defer span.End()

	in, err := s.files.OpenFile(input)
	if err != nil {
		return nil, err
	}
	defer func() { err = multierr.Append(err, s.files.CloseFile(in)) }()

	md, err := s.files.Metadata(in)
	if err != nil {
		return nil, err
	}
	rpp := int(md.RecordsPerPage)
	chunks := chunkCount(md.DataPages(), budget)
	s.logger.Debug("Splitting input",
		zap.String("input", input),
		zap.Int32("records", md.RecordCount),
		zap.Int("dataPages", md.DataPages()),
		zap.Int("chunks", chunks))

	nextPage := 1 // first data page of the input not yet copied
	for k := 0; k < chunks; k++ {
		pages := budget
		records := budget * rpp
		if k == chunks-1 {
			pages = md.DataPages() - (nextPage - 1)
			records = int(md.RecordCount) - k*budget*rpp
		}

		path := area.runPath(0, k)
		if err := s.writeChunk(in, path, nextPage, pages, records, md, sl); err != nil {
			return nil, fmt.Errorf("writing chunk %d of %s: %w", k, input, err)
		}
		nextPage += pages
		runs = append(runs, run{path: path, records: records})
	}
	s.metrics.addRuns(ctx, len(runs))
	return runs, nil
}

// writeChunk creates path and fills it with pages [first, first+pages) of in.
func (s *Sorter) writeChunk(in *recordfile.File, path string, first, pages, records int, srcMD recordfile.Metadata, sl *slots) (err error) {
	if err := s.files.CreateFile(path); err != nil {
		return err
	}
	out, err := s.files.OpenFile(path)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, s.files.CloseFile(out)) }()

	md := srcMD
	md.SetRecordCount(records)
	if err := s.files.WriteMetadata(out, md); err != nil {
		return err
	}

	defer func() { err = multierr.Append(err, sl.ReleaseAll()) }()
	for p := first; p < first+pages; p++ {
		if err := sl.Pin(splitInSlot, in.ID(), pagemanager.PageID(p)); err != nil {
			return err
		}
		if err := sl.Allocate(splitOutSlot, out.ID()); err != nil {
			return err
		}
		src, err := sl.Data(splitInSlot)
		if err != nil {
			return err
		}
		dst, err := sl.Data(splitOutSlot)
		if err != nil {
			return err
		}
		copy(dst, src)
		if err := sl.Unpin(splitInSlot); err != nil {
			return err
		}
		if err := sl.Unpin(splitOutSlot); err != nil {
			return err
		}
	}
	return nil
}
