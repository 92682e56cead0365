package main

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hurttlocker/provnotes/internal/config"
	"github.com/hurttlocker/provnotes/internal/mcp"
	"github.com/hurttlocker/provnotes/internal/store"
)

func createGroupsCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "groups",
		Short: "List product groups and their mandatory fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.settings(config.ResolveOptions{})
			if err != nil {
				return err
			}
			p, err := a.processor(s)
			if err != nil {
				return err
			}
			summaries := p.Registry().Summaries()
			out := cmd.OutOrStdout()

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(summaries)
			}
			for _, g := range summaries {
				fmt.Fprintf(out, "%s (%s)\n", g.Key, g.DisplayName)
				for _, business := range g.Mandatory {
					field := g.Mapping[business]
					if field == "" {
						field = "unresolved"
					}
					fmt.Fprintf(out, "  %-24s -> %s\n", business, field)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func createRunsCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTARTED\tSTATE\tRECORDS\tSUCCESS\tINPUT")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1f%%\t%s\n",
					shortID(r.ID), humanize.Time(r.StartedAt), r.State,
					humanize.Comma(int64(r.TotalRecords)), r.SuccessRate*100, r.Input)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", store.DefaultListLimit, "maximum runs to list")

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a recorded run and its rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.DeleteRun(cmd.Context(), args[0]); err != nil {
				return err
			}
			if err := st.Vacuum(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
			return nil
		},
	})
	return cmd
}

func createShowCmd(a *app) *cobra.Command {
	var (
		rows   int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one recorded run (id or unique id prefix)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			run, err := st.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if rows > 0 {
				if run.Rows, err = st.RunRows(cmd.Context(), run.ID, rows, 0); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(run)
			}

			fmt.Fprintf(out, "Run:       %s\n", run.ID)
			fmt.Fprintf(out, "Input:     %s\n", run.Input)
			fmt.Fprintf(out, "State:     %s\n", run.State)
			fmt.Fprintf(out, "Started:   %s (%s)\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"), humanize.Time(run.StartedAt))
			fmt.Fprintf(out, "Duration:  %s\n", run.Duration())
			fmt.Fprintf(out, "Columns:   notes=%s group=%s\n", run.NotesColumn, orDash(run.GroupColumn))
			fmt.Fprintf(out, "Chunking:  %d chunks of %d, %d workers\n", run.Chunks, run.ChunkSize, run.Workers)
			fmt.Fprintf(out, "Records:   %s (%s successful, %.1f%%)\n",
				humanize.Comma(int64(run.TotalRecords)), humanize.Comma(int64(run.SuccessfulRecords)), run.SuccessRate*100)
			for _, e := range run.Errors {
				fmt.Fprintf(out, "Error:     %s\n", e)
			}

			if len(run.Fields) > 0 {
				fmt.Fprintln(out, "\nFields:")
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				for _, f := range run.Fields {
					fmt.Fprintf(tw, "  %s\t%s\t%.1f%%\t%s\n",
						f.Field, humanize.Comma(int64(f.Count)), f.Percentage, strings.Join(f.Samples, ", "))
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}
			if len(run.Groups) > 0 {
				fmt.Fprintln(out, "\nGroups:")
				for _, g := range run.Groups {
					fmt.Fprintf(out, "  %-24s %s records, %d/%d mandatory values (%.1f%%)\n",
						g.DisplayName, humanize.Comma(int64(g.Records)), g.MandatoryFilled, g.MandatoryTotal, g.Completeness*100)
				}
			}
			if len(run.Rows) > 0 {
				fmt.Fprintln(out, "\nRows:")
				for _, r := range run.Rows {
					fmt.Fprintf(out, "  #%d %s\n", r.Index, orDash(r.Group))
					for _, name := range slices.Sorted(maps.Keys(r.Fields)) {
						if v := r.Fields[name]; v != nil {
							fmt.Fprintf(out, "    %s: %s\n", name, cast.ToString(v))
						}
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&rows, "rows", 0, "also print up to N stored rows (runs saved with --store-rows)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func createMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the provnotes tools over MCP (stdio)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.settings(config.ResolveOptions{})
			if err != nil {
				return err
			}
			p, err := a.processor(s)
			if err != nil {
				return err
			}
			cfg := mcp.ServerConfig{Processor: p, Version: version, Logger: a.logger}
			if st, err := store.NewStore(store.StoreConfig{DBPath: s.DBPath}); err != nil {
				a.logger.Warn("run history unavailable to MCP clients", zap.Error(err))
			} else {
				defer st.Close()
				cfg.Store = st
			}
			return mcp.Serve(cfg)
		},
	}
}

func (a *app) openStore() (store.Store, error) {
	s, err := a.settings(config.ResolveOptions{})
	if err != nil {
		return nil, err
	}
	st, err := store.NewStore(store.StoreConfig{DBPath: s.DBPath})
	if err != nil {
		return nil, fmt.Errorf("opening run history: %w", err)
	}
	return st, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
