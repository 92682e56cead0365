package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v2"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hurttlocker/provnotes/internal/config"
	"github.com/hurttlocker/provnotes/internal/export"
	"github.com/hurttlocker/provnotes/internal/ingest"
	"github.com/hurttlocker/provnotes/internal/pipeline"
	"github.com/hurttlocker/provnotes/internal/store"
)

type runFlags struct {
	input       string
	output      string
	stats       string
	notesColumn string
	groupColumn string
	chunkSize   int
	workers     int
	threshold   float64
	bonus       float64
	noSave      bool
	storeRows   bool
	quiet       bool
}

func createRunCmd(a *app) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Clean and extract every record of a CSV/TSV/XLSX/JSON/JSONL/YAML file",
		Example: `  provnotes run --input orders.xlsx
  provnotes run --input orders.csv --output out.jsonl --stats stats.json --chunk-size 1000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := config.ResolveOptions{
				CLINotesColumn: f.notesColumn,
				CLIGroupColumn: f.groupColumn,
			}
			if cmd.Flags().Changed("chunk-size") {
				opts.CLIChunkSize = cast.ToString(f.chunkSize)
			}
			if cmd.Flags().Changed("workers") {
				opts.CLIWorkers = cast.ToString(f.workers)
			}
			if cmd.Flags().Changed("threshold") {
				opts.CLIThreshold = cast.ToString(f.threshold)
			}
			if cmd.Flags().Changed("long-pattern-bonus") {
				opts.CLILongPatternBonus = cast.ToString(f.bonus)
			}
			return a.runFile(cmd, f, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.input, "input", "i", "", "input file (required)")
	flags.StringVarP(&f.output, "output", "o", "", "output file; format from extension (default <input>_processed.<ext>)")
	flags.StringVar(&f.stats, "stats", "", "write run statistics as JSON to this file")
	flags.StringVar(&f.notesColumn, "notes-column", "", "notes column name (default \"notes\")")
	flags.StringVar(&f.groupColumn, "group-column", "", "product group column name (default \"product_group\")")
	flags.IntVar(&f.chunkSize, "chunk-size", config.DefaultChunkSize, "records per chunk (100-10000)")
	flags.IntVar(&f.workers, "workers", 0, "records processed concurrently (default: number of CPUs)")
	flags.Float64Var(&f.threshold, "threshold", config.DefaultThreshold, "minimum confidence to accept a field value")
	flags.Float64Var(&f.bonus, "long-pattern-bonus", config.DefaultLongPatternBonus, "score bonus for long, specific patterns")
	flags.BoolVar(&f.noSave, "no-save", false, "do not record the run in the history database")
	flags.BoolVar(&f.storeRows, "store-rows", false, "also store cleaned text and fields per row in the history database")
	flags.BoolVarP(&f.quiet, "quiet", "q", false, "no progress bar or summary")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func (a *app) runFile(cmd *cobra.Command, f runFlags, opts config.ResolveOptions) error {
	s, err := a.settings(opts)
	if err != nil {
		return err
	}
	p, err := a.processor(s)
	if err != nil {
		return err
	}

	output := f.output
	if output == "" {
		output = defaultOutputPath(f.input)
	}
	if _, err := export.FormatFor(output); err != nil {
		return err
	}

	src, err := ingest.Open(f.input)
	if err != nil {
		return fmt.Errorf("opening input: %w", err)
	}
	defer src.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	runOpts := pipeline.RunOptions{
		NotesColumn: s.NotesColumn,
		GroupColumn: s.GroupColumn,
		ChunkSize:   s.ChunkSize,
		Workers:     s.Workers,
	}
	var bar *progressbar.ProgressBar
	if !f.quiet {
		bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionSetWidth(30),
		)
		runOpts.Progress = func(message string, percent int) {
			bar.Describe(message)
			if percent >= 0 {
				_ = bar.Set(percent)
			}
		}
	}

	res := p.Run(ctx, src, runOpts)
	if bar != nil {
		fmt.Fprintln(cmd.ErrOrStderr())
	}

	if !f.noSave {
		a.saveRun(ctx, s, res, store.RunSettings{Input: f.input, ChunkSize: s.ChunkSize, Workers: s.Workers}, f.storeRows)
	}

	if !res.Success {
		for _, msg := range res.Errors {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", msg)
		}
		return fmt.Errorf("run %s failed: %w", shortID(res.RunID), res.Err)
	}

	if err := export.Write(output, res.Table); err != nil {
		return err
	}
	if f.stats != "" {
		if err := export.WriteStats(f.stats, res.Stats); err != nil {
			return err
		}
	}

	if !f.quiet {
		printRunSummary(cmd.OutOrStdout(), res, output)
	}
	return nil
}

// saveRun records the run in the history database. Failures are logged and
// never fail the run.
func (a *app) saveRun(ctx context.Context, s config.Settings, res *pipeline.RunResult, rs store.RunSettings, withRows bool) {
	st, err := store.NewStore(store.StoreConfig{DBPath: s.DBPath})
	if err != nil {
		a.logger.Warn("run history unavailable", zap.String("db", s.DBPath), zap.Error(err))
		return
	}
	defer st.Close()

	// The run context may already be cancelled; history is still written.
	if err := st.SaveRun(context.WithoutCancel(ctx), store.NewRunRecord(res, rs, withRows)); err != nil {
		a.logger.Warn("saving run", zap.String("run_id", res.RunID), zap.Error(err))
	}
}

func printRunSummary(w io.Writer, res *pipeline.RunResult, output string) {
	st := res.Stats
	fmt.Fprintf(w, "Run %s completed in %s\n", shortID(res.RunID), res.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "  Records:     %s (%s with at least one field, %.1f%%)\n",
		humanize.Comma(int64(st.TotalRecords)),
		humanize.Comma(int64(st.SuccessfulRecords)),
		st.SuccessRate*100)
	fmt.Fprintf(w, "  Chunks:      %d\n", st.ChunksProcessed)
	fmt.Fprintf(w, "  Output:      %s\n", output)

	var found []pipeline.FieldStat
	for _, fs := range st.Fields {
		if fs.Count > 0 {
			found = append(found, fs)
		}
	}
	if len(found) > 0 {
		fmt.Fprintln(w, "\nFields:")
		for _, fs := range found {
			fmt.Fprintf(w, "  %-22s %8s  %5.1f%%  %s\n",
				fs.Field, humanize.Comma(int64(fs.Count)), fs.Percentage, strings.Join(fs.Samples, ", "))
		}
	}
	if len(st.Groups) > 0 {
		fmt.Fprintln(w, "\nGroups:")
		for _, g := range st.Groups {
			fmt.Fprintf(w, "  %-22s %8s records  mandatory %5.1f%% complete\n",
				g.DisplayName, humanize.Comma(int64(g.Records)), g.Completeness*100)
		}
	}
}

// defaultOutputPath is <input>_processed with the input's extension, or
// .csv when results cannot be written in the input's format.
func defaultOutputPath(input string) string {
	ext := filepath.Ext(input)
	base := strings.TrimSuffix(input, ext)
	if _, err := export.FormatFor(input); err != nil {
		ext = ".csv"
	}
	return base + "_processed" + ext
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
