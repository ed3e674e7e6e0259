package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tvcorpus/internal/grouping"
)

func newGroupCommand(ctx *commandContext) *cobra.Command {
	groupCmd := &cobra.Command{
		Use:   "group",
		Short: "Group a run's units by speaker",
	}
	groupCmd.AddCommand(newGroupRunCommand(ctx, "generate", "Rebuild the grouping and refresh its cache", false))
	groupCmd.AddCommand(newGroupRunCommand(ctx, "show", "Show the grouping, reusing the cache when it is current", true))
	return groupCmd
}

func newGroupRunCommand(ctx *commandContext, use, short string, cached bool) *cobra.Command {
	var tolerant, asJSON bool

	cmd := &cobra.Command{
		Use:   use + " <episode> <run>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(c context.Context, a *app) error {
				var (
					doc grouping.Grouping
					err error
				)
				if cached {
					doc, err = a.grouping.Load(c, args[0], args[1], tolerant)
				} else {
					doc, err = a.grouping.Generate(c, args[0], args[1], tolerant)
				}
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, doc)
				}
				printGrouping(cmd, doc)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&tolerant, "tolerant", false, "Let units without a speaker join the current group")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the grouping as JSON")
	return cmd
}

func printGrouping(cmd *cobra.Command, doc grouping.Grouping) {
	out := cmd.OutOrStdout()
	source := "generated"
	if doc.FromCache {
		source = "cached"
	}
	fmt.Fprintf(out, "%s run %s: %d group(s), revision %d, %s\n", doc.EpisodeID, doc.RunID, len(doc.Groups), doc.RunRevision, source)
	if len(doc.Groups) == 0 {
		return
	}
	rows := make([][]string, 0, len(doc.Groups))
	for _, group := range doc.Groups {
		speaker := group.SpeakerLabel
		if speaker == "" {
			speaker = "-"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", group.ID),
			speaker,
			fmt.Sprintf("%d", len(group.SegmentIDs)),
			group.TextSegment,
			formatConfidence(group.ConfidencePivot),
		})
	}
	fmt.Fprint(out, renderTable(out,
		[]string{"#", "Speaker", "Units", "Text", "Conf"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignRight},
	))
}

func newConcordanceCommand(ctx *commandContext) *cobra.Command {
	var (
		langs  []string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "concordance <episode> <run>",
		Short: "Show each segment with its linked subtitle texts",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(c context.Context, a *app) error {
				rows, err := a.grouping.Concordance(c, args[0], args[1], langs)
				if err != nil {
					return err
				}
				if asJSON {
					flat := make([]map[string]any, 0, len(rows))
					for _, row := range rows {
						flat = append(flat, row.Flat())
					}
					return writeJSON(cmd, flat)
				}
				out := cmd.OutOrStdout()
				if len(rows) == 0 {
					fmt.Fprintln(out, "No rows")
					return nil
				}
				columns := rows[0].Languages()
				headers := []string{"Segment", "Text", "Conf"}
				aligns := []columnAlignment{alignLeft, alignLeft, alignRight}
				for i, lang := range columns {
					headers = append(headers, strings.ToUpper(lang))
					aligns = append(aligns, alignLeft)
					if i > 0 {
						headers = append(headers, "Conf "+lang)
						aligns = append(aligns, alignRight)
					}
				}
				table := make([][]string, 0, len(rows))
				for _, row := range rows {
					line := []string{row.SegmentID, row.TextSegment, formatConfidence(row.ConfidencePivot)}
					for i, lang := range columns {
						line = append(line, row.TextsByLang[lang])
						if i > 0 {
							line = append(line, formatConfidence(row.ConfidenceByLang[lang]))
						}
					}
					table = append(table, line)
				}
				fmt.Fprint(out, renderTable(out, headers, table, aligns))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&langs, "lang", nil, "Target languages to include (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output rows as JSON")
	return cmd
}

func newPropagateCommand(ctx *commandContext) *cobra.Command {
	var (
		langs  []string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "propagate <episode> <run>",
		Short: "Write assigned character names into segments, cues and subtitle files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(c context.Context, a *app) error {
				result, err := a.propagate.Propagate(c, args[0], args[1], langs)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Segments updated: %d\n", result.SegmentsUpdated)
				fmt.Fprintf(out, "Cues updated:     %d\n", result.CuesUpdated)
				fmt.Fprintf(out, "Files rewritten:  %s\n", yesNo(len(result.FilesRewritten) > 0))
				for _, path := range result.FilesRewritten {
					fmt.Fprintf(out, "  %s\n", path)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&langs, "lang", nil, "Only rewrite subtitle files of these languages (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the result as JSON")
	return cmd
}
