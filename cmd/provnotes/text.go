package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/hurttlocker/provnotes/internal/config"
	"github.com/hurttlocker/provnotes/internal/pipeline"
)

func createCleanCmd(a *app) *cobra.Command {
	var (
		group   string
		explain bool
	)

	cmd := &cobra.Command{
		Use:   "clean [file|-]",
		Short: "Denoise notes text read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, text, err := a.textInput(cmd, args)
			if err != nil {
				return err
			}
			group, err = resolveGroup(p, group)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !explain {
				fmt.Fprintln(out, p.Cleaner().CleanString(text, group))
				return nil
			}
			for _, d := range p.Cleaner().Explain(text, group) {
				verdict := "drop"
				if d.Kept {
					verdict = "keep"
				}
				rule := d.Rule
				if rule == "" {
					rule = "-"
				}
				fmt.Fprintf(out, "%-4s  %-11s  %-28s  %s\n", verdict, d.Class, rule, d.Line)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&group, "group", "g", "", "product group key (see `provnotes groups`)")
	cmd.Flags().BoolVar(&explain, "explain", false, "print the decision for every line")
	return cmd
}

func createExtractCmd(a *app) *cobra.Command {
	var (
		group   string
		explain bool
		asJSON  bool
		noClean bool
	)

	cmd := &cobra.Command{
		Use:   "extract [file|-]",
		Short: "Extract technical fields from notes text read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, text, err := a.textInput(cmd, args)
			if err != nil {
				return err
			}
			group, err = resolveGroup(p, group)
			if err != nil {
				return err
			}

			cleaned := text
			if !noClean {
				cleaned = p.Cleaner().CleanString(text, group)
			}
			fields := p.Extractor().ExtractAll(cleaned, group)
			out := cmd.OutOrStdout()

			if asJSON {
				doc := map[string]any{"fields": fields}
				if group != "" {
					doc["group"] = group
					doc["mandatory"] = p.Extractor().ExtractMandatory(cleaned, group)
				}
				if explain {
					doc["resolutions"] = p.Extractor().ExtractDetailed(cleaned, group)
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(doc)
			}

			if explain {
				for _, r := range p.Extractor().ExtractDetailed(cleaned, group) {
					fmt.Fprintf(out, "%-22s %-24s score=%.2f pass=%s pattern=%s\n",
						r.Field, cast.ToString(r.Value), r.Score, r.Pass, r.Pattern)
				}
				return nil
			}
			for _, name := range p.Registry().FieldNames() {
				if v := fields[name]; v != nil {
					fmt.Fprintf(out, "%s: %s\n", name, cast.ToString(v))
				}
			}
			if group != "" {
				fmt.Fprintf(out, "\n%s mandatory fields:\n", p.Registry().GroupDisplayName(group))
				mandatory := p.Extractor().ExtractMandatory(cleaned, group)
				for _, business := range p.Registry().MandatoryFields(group) {
					v := "(missing)"
					if mandatory[business] != nil {
						v = cast.ToString(mandatory[business])
					}
					fmt.Fprintf(out, "  %s: %s\n", business, v)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&group, "group", "g", "", "product group key (see `provnotes groups`)")
	cmd.Flags().BoolVar(&explain, "explain", false, "show score, pass and pattern for every accepted field")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().BoolVar(&noClean, "no-clean", false, "extract from the raw text without cleaning it first")
	return cmd
}

// textInput builds a processor and reads the text argument: a file path, or
// stdin when the argument is "-" or absent.
func (a *app) textInput(cmd *cobra.Command, args []string) (*pipeline.Processor, string, error) {
	s, err := a.settings(config.ResolveOptions{})
	if err != nil {
		return nil, "", err
	}
	p, err := a.processor(s)
	if err != nil {
		return nil, "", err
	}

	var data []byte
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return nil, "", fmt.Errorf("reading input: %w", err)
	}
	return p, strings.TrimRight(string(data), "\r\n"), nil
}

func resolveGroup(p *pipeline.Processor, group string) (string, error) {
	group = strings.TrimSpace(group)
	if group == "" {
		return "", nil
	}
	g, ok := p.Registry().Group(group)
	if !ok {
		return "", fmt.Errorf("unknown group %q (available: %s)", group, strings.Join(p.Registry().Groups(), ", "))
	}
	return g.Key, nil
}
