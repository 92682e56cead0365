// Package pipeline drives cleaning and extraction over a record source in
// fixed-size chunks.
//
// A run moves through Init → ReadingChunks → Finalizing → Completed, or to
// Failed from any state. Failed is terminal: nothing partial is returned and
// callers retry by starting a new run. Records inside a chunk are processed
// concurrently; output order always matches input order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hurttlocker/provnotes/internal/clean"
	"github.com/hurttlocker/provnotes/internal/extract"
	"github.com/hurttlocker/provnotes/internal/ingest"
	"github.com/hurttlocker/provnotes/internal/registry"
)

// DefaultChunkSize is used when RunOptions.ChunkSize is not positive.
const DefaultChunkSize = 5000

// State is a run's lifecycle state.
type State string

const (
	StateInit          State = "init"
	StateReadingChunks State = "reading_chunks"
	StateFinalizing    State = "finalizing"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
)

// ProgressFunc receives coarse progress. percent is 0..100, or -1 when the
// step has no percentage.
type ProgressFunc func(message string, percent int)

// RunOptions configures one run.
type RunOptions struct {
	NotesColumn string
	GroupColumn string // optional
	ChunkSize   int
	Workers     int
	Progress    ProgressFunc
}

// RunResult is the outcome of a run. Table is nil unless Success.
type RunResult struct {
	RunID       string
	State       State
	Success     bool
	NotesColumn string
	GroupColumn string
	Table       *Table
	Stats       Stats
	Errors      []string
	Err         error
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Duration is the wall time of the run.
func (r *RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Processor wires one Cleaner and one Extractor over a shared registry. It
// is safe for concurrent runs.
type Processor struct {
	reg       *registry.Registry
	cleaner   *clean.Cleaner
	extractor *extract.Extractor
	logger    *zap.Logger
}

type processorConfig struct {
	logger      *zap.Logger
	cleanOpts   []clean.Option
	extractOpts []extract.Option
}

// Option configures a Processor.
type Option func(*processorConfig)

// WithLogger sets the run logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *processorConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCleanerOptions passes options to the underlying Cleaner.
func WithCleanerOptions(opts ...clean.Option) Option {
	return func(c *processorConfig) {
		c.cleanOpts = append(c.cleanOpts, opts...)
	}
}

// WithExtractorOptions passes options to the underlying Extractor.
func WithExtractorOptions(opts ...extract.Option) Option {
	return func(c *processorConfig) {
		c.extractOpts = append(c.extractOpts, opts...)
	}
}

// NewProcessor creates a Processor over reg.
func NewProcessor(reg *registry.Registry, opts ...Option) *Processor {
	cfg := processorConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	extractOpts := append([]extract.Option{extract.WithLogger(cfg.logger)}, cfg.extractOpts...)
	return &Processor{
		reg:       reg,
		cleaner:   clean.New(reg, cfg.cleanOpts...),
		extractor: extract.New(reg, extractOpts...),
		logger:    cfg.logger,
	}
}

// Registry returns the registry the processor runs against.
func (p *Processor) Registry() *registry.Registry { return p.reg }

// Cleaner returns the processor's cleaner.
func (p *Processor) Cleaner() *clean.Cleaner { return p.cleaner }

// Extractor returns the processor's extractor.
func (p *Processor) Extractor() *extract.Extractor { return p.extractor }

type run struct {
	p        *Processor
	res      *RunResult
	progress *progressReporter
	logger   *zap.Logger
}

// Run processes src to completion. It never panics and never returns a
// partial table; failures are reported through RunResult.
func (p *Processor) Run(ctx context.Context, src ingest.Source, opts RunOptions) (res *RunResult) {
	res = &RunResult{
		RunID:       uuid.NewString(),
		State:       StateInit,
		NotesColumn: opts.NotesColumn,
		GroupColumn: opts.GroupColumn,
		StartedAt:   time.Now().UTC(),
	}
	r := &run{
		p:      p,
		res:    res,
		logger: p.logger.With(zap.String("run_id", res.RunID)),
	}
	r.progress = newProgressReporter(opts.Progress, r.logger)

	defer func() {
		if rec := recover(); rec != nil {
			r.fail(&RunError{Kind: KindInternal, Message: "unexpected failure", Err: fmt.Errorf("panic: %v", rec)})
		}
		res.FinishedAt = time.Now().UTC()
	}()

	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	if err := r.execute(ctx, src, opts); err != nil {
		r.fail(err)
		return res
	}
	r.transition(StateCompleted)
	res.Success = true
	r.progress.report("completed", 100)
	r.logger.Info("run completed",
		zap.Int("records", res.Stats.TotalRecords),
		zap.Int("successful", res.Stats.SuccessfulRecords),
		zap.Int("chunks", res.Stats.ChunksProcessed),
		zap.Duration("duration", time.Since(res.StartedAt)))
	return res
}

func (r *run) execute(ctx context.Context, src ingest.Source, opts RunOptions) *RunError {
	columns := src.Columns()
	notesIdx := columnIndex(columns, opts.NotesColumn)
	if notesIdx < 0 {
		return configurationError("required column %q not found in source columns [%s]",
			opts.NotesColumn, strings.Join(columns, ", "))
	}
	groupIdx := -1
	if opts.GroupColumn != "" {
		groupIdx = columnIndex(columns, opts.GroupColumn)
		if groupIdx < 0 {
			r.logger.Warn("group column not found, processing without product groups",
				zap.String("group_column", opts.GroupColumn))
		}
	}

	total := -1
	if s, ok := src.(ingest.Sizer); ok {
		total = s.Len()
	}

	r.transition(StateReadingChunks)
	r.progress.report("reading records", 5)

	var (
		rows    []ingest.Row
		outputs []Output
		chunks  int
	)
	for {
		if err := ctx.Err(); err != nil {
			return &RunError{Kind: KindCancelled, Message: "run cancelled", Err: err}
		}
		batch, readErr := src.Next(ctx, opts.ChunkSize)
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return &RunError{Kind: KindCancelled, Message: "run cancelled", Err: ctxErr}
			}
			return &RunError{Kind: KindSourceRead, Message: "reading source", Err: readErr}
		}

		if len(batch) > 0 {
			records := toRecords(batch, notesIdx, groupIdx)
			r.logger.Debug("chunk started", zap.Int("chunk", chunks+1), zap.Int("records", len(batch)))
			out, err := r.p.processParallel(ctx, records, opts.Workers)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return &RunError{Kind: KindCancelled, Message: "run cancelled", Err: ctxErr}
				}
				return &RunError{Kind: KindInternal, Message: "processing records", Err: err}
			}
			rows = append(rows, batch...)
			outputs = append(outputs, out...)
			chunks++
			r.logger.Debug("chunk finished", zap.Int("chunk", chunks), zap.Int("records_total", len(rows)))
			r.progress.chunk(chunks, len(rows), total)
		}

		if errors.Is(readErr, io.EOF) {
			break
		}
	}

	r.transition(StateFinalizing)
	r.progress.report("finalizing", 85)
	r.res.Table = BuildTable(columns, opts.NotesColumn, r.p.reg.FieldNames(), rows, outputs)
	r.res.Stats = ComputeStats(r.p.reg, outputs, chunks)
	return nil
}

func (r *run) transition(to State) {
	r.logger.Debug("run state", zap.String("from", string(r.res.State)), zap.String("to", string(to)))
	r.res.State = to
}

func (r *run) fail(err *RunError) {
	r.transition(StateFailed)
	r.res.Success = false
	r.res.Table = nil
	r.res.Stats = Stats{}
	r.res.Err = err
	r.res.Errors = append(r.res.Errors, err.Error())
	r.logger.Error("run failed", zap.String("kind", string(err.Kind)), zap.Error(err))
}

func columnIndex(columns []string, name string) int {
	if name == "" {
		return -1
	}
	for i, c := range columns {
		if c == name {
			return i
		}
	}
	return -1
}
