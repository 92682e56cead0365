package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"golang.org/x/sync/errgroup"

	"github.com/hurttlocker/provnotes/internal/extract"
	"github.com/hurttlocker/provnotes/internal/ingest"
)

// Record is one input row reduced to what cleaning and extraction need.
type Record struct {
	Index int
	Notes any
	Group string
}

// Output is the per-record result. Group is the canonical catalog key, or
// "" when the record has no known group.
type Output struct {
	Index      int
	Cleaned    any
	Fields     extract.Result
	Group      string
	Successful bool
}

// ProcessRecords cleans and extracts every record, in order. It has no side
// effects and shares nothing with its input.
func (p *Processor) ProcessRecords(records []Record) []Output {
	out := make([]Output, len(records))
	for i, rec := range records {
		out[i] = p.processRecord(rec)
	}
	return out
}

func (p *Processor) processRecord(rec Record) Output {
	group := ""
	if g, ok := p.reg.Group(rec.Group); ok {
		group = g.Key
	}
	cleaned := p.cleaner.Clean(rec.Notes, group)
	fields := p.extractor.ExtractAll(cleaned, group)
	successful := false
	for _, v := range fields {
		if v != nil {
			successful = true
			break
		}
	}
	return Output{
		Index:      rec.Index,
		Cleaned:    cleaned,
		Fields:     fields,
		Group:      group,
		Successful: successful,
	}
}

// ReadRecords drains src and maps every row to a Record using the named
// columns. A missing group column means no group.
func ReadRecords(ctx context.Context, src ingest.Source, notesColumn, groupColumn string) ([]Record, error) {
	columns := src.Columns()
	notesIdx := columnIndex(columns, notesColumn)
	if notesIdx < 0 {
		return nil, configurationError("required column %q not found in source columns [%s]",
			notesColumn, strings.Join(columns, ", "))
	}
	rows, err := ingest.ReadAll(ctx, src, DefaultChunkSize)
	if err != nil {
		return nil, &RunError{Kind: KindSourceRead, Message: "reading source", Err: err}
	}
	return toRecords(rows, notesIdx, columnIndex(columns, groupColumn)), nil
}

func toRecords(rows []ingest.Row, notesIdx, groupIdx int) []Record {
	records := make([]Record, len(rows))
	for i, row := range rows {
		records[i] = Record{Index: row.Index, Notes: row.Get(notesIdx)}
		if groupIdx >= 0 {
			records[i].Group = strings.TrimSpace(cast.ToString(row.Get(groupIdx)))
		}
	}
	return records
}

// processParallel splits records into at most workers contiguous slices and
// runs ProcessRecords on each, writing results back in input order.
func (p *Processor) processParallel(ctx context.Context, records []Record, workers int) ([]Output, error) {
	if workers <= 1 || len(records) <= 1 {
		return p.safeProcess(records)
	}
	out := make([]Output, len(records))
	size := (len(records) + workers - 1) / workers
	g, gctx := errgroup.WithContext(ctx)
	for lo := 0; lo < len(records); lo += size {
		if gctx.Err() != nil {
			break
		}
		hi := min(lo+size, len(records))
		g.Go(func() error {
			part, err := p.safeProcess(records[lo:hi])
			if err != nil {
				return err
			}
			copy(out[lo:hi], part)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// safeProcess is ProcessRecords with a panic turned into an error naming the
// record range.
func (p *Processor) safeProcess(records []Record) (out []Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("records %d-%d: panic: %v",
				records[0].Index, records[len(records)-1].Index, r)
		}
	}()
	return p.ProcessRecords(records), nil
}
