package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"tvcorpus/internal/align"
	"tvcorpus/internal/alignment"
	"tvcorpus/internal/services"
)

type runFlags struct {
	pivot         string
	targets       []string
	minConfidence float64
	similarity    bool
	kind          string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.pivot, "pivot", "", "Pivot language (defaults to alignment.pivot_lang)")
	cmd.Flags().StringSliceVar(&f.targets, "target", nil, "Target languages (repeatable; defaults to alignment.target_langs)")
	cmd.Flags().Float64Var(&f.minConfidence, "min-confidence", 0, "Minimum similarity score for a link")
	cmd.Flags().BoolVar(&f.similarity, "similarity", false, "Match target cues by text similarity instead of timing")
	cmd.Flags().StringVar(&f.kind, "kind", "", "Segment kind to align (sentence or utterance)")
}

func (f *runFlags) request(cmd *cobra.Command, episodeID string) alignment.CreateRunRequest {
	req := alignment.CreateRunRequest{
		EpisodeID:   episodeID,
		PivotLang:   f.pivot,
		TargetLangs: f.targets,
		SegmentKind: f.kind,
	}
	if cmd.Flags().Changed("min-confidence") {
		value := f.minConfidence
		req.MinConfidence = &value
	}
	if cmd.Flags().Changed("similarity") {
		value := f.similarity
		req.UseSimilarity = &value
	}
	return req
}

func newAlignCommand(ctx *commandContext) *cobra.Command {
	alignCmd := &cobra.Command{
		Use:   "align",
		Short: "Compute alignment runs",
	}
	alignCmd.AddCommand(newAlignRunCommand(ctx))
	alignCmd.AddCommand(newAlignBatchCommand(ctx))
	return alignCmd
}

func newAlignRunCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "run <episode>",
		Short: "Align one episode's segments and subtitle tracks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(c context.Context, a *app) error {
				run, err := a.alignment.CreateRun(c, flags.request(cmd, args[0]))
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, run)
				}
				printRunSummary(cmd, run)
				return nil
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the run as JSON")
	return cmd
}

func newAlignBatchCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "batch [episode...]",
		Short: "Align several episodes; every known episode when none are given",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(c context.Context, a *app) error {
				result, err := a.alignment.AlignEpisodes(c, alignment.BatchRequest{
					Episodes: args,
					Template: flags.request(cmd, ""),
				})
				if err != nil && !errors.Is(err, services.ErrCanceled) {
					return err
				}
				if asJSON {
					if writeErr := writeJSON(cmd, result); writeErr != nil {
						return writeErr
					}
					return err
				}
				printBatchResult(cmd, result)
				return err
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the batch result as JSON")
	return cmd
}

func printRunSummary(cmd *cobra.Command, run align.Run) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s\n", run.ID)
	fmt.Fprintf(out, "  Episode:            %s\n", run.EpisodeID)
	fmt.Fprintf(out, "  Pivot:              %s\n", run.PivotLang)
	fmt.Fprintf(out, "  Revision:           %d\n", run.Revision)
	fmt.Fprintf(out, "  Segments:           %d (%d unmatched)\n", run.Summary.SegmentsCount, run.Summary.UnmatchedSegments)
	fmt.Fprintf(out, "  Pivot cues:         %d\n", run.Summary.CuesCount)
	fmt.Fprintf(out, "  Pivot links:        %d\n", run.Summary.PivotLinks)
	fmt.Fprintf(out, "  Total links:        %d\n", run.Summary.TotalLinks)
	if len(run.Params.TargetLangs) == 0 {
		return
	}
	rows := make([][]string, 0, len(run.Params.TargetLangs))
	for _, lang := range run.Params.TargetLangs {
		rows = append(rows, []string{
			lang,
			fmt.Sprintf("%d", run.Summary.TargetLinks[lang]),
			string(run.Summary.Strategies[lang]),
		})
	}
	fmt.Fprint(out, renderTable(out, []string{"Lang", "Links", "Strategy"}, rows, []columnAlignment{alignLeft, alignRight, alignLeft}))
}

func printBatchResult(cmd *cobra.Command, result alignment.BatchResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Batch %s\n", result.CorrelationID)
	if len(result.Runs) > 0 {
		rows := make([][]string, 0, len(result.Runs))
		for _, run := range result.Runs {
			rows = append(rows, []string{run.EpisodeID, run.ID, fmt.Sprintf("%d", run.Summary.TotalLinks)})
		}
		fmt.Fprint(out, renderTable(out, []string{"Episode", "Run", "Links"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
	}
	for _, failure := range result.Failures {
		fmt.Fprintf(out, "FAILED %s (%s): %s\n", failure.EpisodeID, failure.Kind, failure.Error)
	}
	if result.Canceled {
		fmt.Fprintf(out, "Canceled; %d episode(s) not processed: %s\n", len(result.Skipped), strings.Join(result.Skipped, ", "))
	}
}

func newRunsCommand(ctx *commandContext) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and delete alignment runs",
	}
	runsCmd.AddCommand(newRunsListCommand(ctx))
	runsCmd.AddCommand(newRunsShowCommand(ctx))
	runsCmd.AddCommand(newRunsDeleteCommand(ctx))
	return runsCmd
}

func newRunsListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list [episode]",
		Short: "List runs, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			episodeID := ""
			if len(args) == 1 {
				episodeID = args[0]
			}
			return ctx.withApp(cmd, func(c context.Context, a *app) error {
				runs, err := a.alignment.ListRuns(c, episodeID)
				if err != nil {
					return err
				}
				if asJSON {
					if runs == nil {
						runs = []align.Run{}
					}
					return writeJSON(cmd, runs)
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs")
					return nil
				}
				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					rows = append(rows, []string{
						run.ID,
						run.PivotLang,
						strings.Join(run.Params.TargetLangs, ","),
						fmt.Sprintf("%d", run.Summary.TotalLinks),
						fmt.Sprintf("%d", run.Revision),
					})
				}
				fmt.Fprint(out, renderTable(out,
					[]string{"Run", "Pivot", "Targets", "Links", "Rev"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output runs as JSON")
	return cmd
}

func newRunsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <run>",
		Short: "Show a run's summary and review counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(c context.Context, a *app) error {
				run, err := a.alignment.GetRun(c, args[0])
				if err != nil {
					return err
				}
				stats, err := a.alignment.RunStats(c, run.ID)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, struct {
						align.Run
						Stats map[align.Status]int `json:"stats"`
					}{Run: run, Stats: stats})
				}
				printRunSummary(cmd, run)
				statuses := make([]string, 0, len(stats))
				for status := range stats {
					statuses = append(statuses, string(status))
				}
				sort.Strings(statuses)
				out := cmd.OutOrStdout()
				for _, status := range statuses {
					fmt.Fprintf(out, "  %-19s %d\n", status+":", stats[align.Status(status)])
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the run as JSON")
	return cmd
}

func newRunsDeleteCommand(ctx *commandContext) *cobra.Command {
	var episodeID string

	cmd := &cobra.Command{
		Use:   "delete [run]",
		Short: "Delete a run, or every run of an episode with --episode",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			episodeID = strings.TrimSpace(episodeID)
			if (len(args) == 1) == (episodeID != "") {
				return services.Wrap(services.ErrValidation, "cli", "delete runs", "give either a run id or --episode", nil)
			}
			return ctx.withApp(cmd, func(c context.Context, a *app) error {
				out := cmd.OutOrStdout()
				if episodeID != "" {
					deleted, err := a.alignment.DeleteRunsForEpisode(c, episodeID)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Deleted %d run(s) of %s\n", len(deleted), episodeID)
					return nil
				}
				if err := a.alignment.DeleteRun(c, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(out, "Deleted run %s\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&episodeID, "episode", "", "Delete every run of this episode")
	return cmd
}
