package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tvcorpus/internal/align"
	"tvcorpus/internal/alignment"
	"tvcorpus/internal/language"
	"tvcorpus/internal/services"
)

func newLinksCommand(ctx *commandContext) *cobra.Command {
	linksCmd := &cobra.Command{
		Use:   "links",
		Short: "Query and review alignment links",
	}
	linksCmd.AddCommand(newLinksListCommand(ctx))
	linksCmd.AddCommand(newLinksStatusCommand(ctx))
	linksCmd.AddCommand(newLinksEditCommand(ctx))
	return linksCmd
}

func newLinksListCommand(ctx *commandContext) *cobra.Command {
	var (
		runID         string
		status        string
		role          string
		lang          string
		minConfidence float64
		asJSON        bool
	)

	cmd := &cobra.Command{
		Use:   "list <episode>",
		Short: "List an episode's links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			const op = "list links"
			q := alignment.LinkQuery{EpisodeID: args[0], RunID: strings.TrimSpace(runID)}
			if strings.TrimSpace(status) != "" {
				parsed, err := align.ParseStatus(status)
				if err != nil {
					return services.Wrap(services.ErrValidation, "cli", op, "", err)
				}
				q.Status = parsed
			}
			if strings.TrimSpace(role) != "" {
				parsed, err := align.ParseRole(role)
				if err != nil {
					return services.Wrap(services.ErrValidation, "cli", op, "", err)
				}
				q.Role = parsed
			}
			if strings.TrimSpace(lang) != "" {
				normalized, err := language.Normalize(lang)
				if err != nil {
					return services.Wrap(services.ErrValidation, "cli", op, "invalid language", err)
				}
				q.Lang = normalized
			}
			if cmd.Flags().Changed("min-confidence") {
				value := minConfidence
				q.MinConfidence = &value
			}

			return ctx.withApp(cmd, func(c context.Context, a *app) error {
				links, err := a.alignment.Query(c, q)
				if err != nil {
					return err
				}
				if asJSON {
					if links == nil {
						links = []align.Link{}
					}
					return writeJSON(cmd, links)
				}
				out := cmd.OutOrStdout()
				if len(links) == 0 {
					fmt.Fprintln(out, "No links")
					return nil
				}
				rows := make([][]string, 0, len(links))
				for _, link := range links {
					rows = append(rows, []string{
						link.ID,
						string(link.Role),
						link.Lang,
						link.SegmentID,
						link.CueID,
						link.CueIDTarget,
						formatConfidence(link.Confidence),
						string(link.ReviewStatus()),
					})
				}
				fmt.Fprint(out, renderTable(out,
					[]string{"Link", "Role", "Lang", "Segment", "Cue", "Target cue", "Conf", "Status"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "Restrict to one run")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (auto, accepted, rejected, manual)")
	cmd.Flags().StringVar(&role, "role", "", "Filter by role (pivot or target)")
	cmd.Flags().StringVar(&lang, "lang", "", "Filter by link language")
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "Only links at or above this confidence")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output links as JSON")
	return cmd
}

func newLinksStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <link> <auto|accepted|rejected>",
		Short: "Set a link's review status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := align.ParseStatus(args[1])
			if err != nil {
				return services.Wrap(services.ErrValidation, "cli", "set status", "", err)
			}
			return ctx.withApp(cmd, func(c context.Context, a *app) error {
				link, err := a.alignment.SetStatus(c, args[0], status)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Link %s is now %s\n", link.ID, link.ReviewStatus())
				return nil
			})
		},
	}
}

func newLinksEditCommand(ctx *commandContext) *cobra.Command {
	var cueID, cueIDTarget string

	cmd := &cobra.Command{
		Use:   "edit <link>",
		Short: "Re-point a link at different cues",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pivot, target *string
			if cmd.Flags().Changed("cue") {
				pivot = &cueID
			}
			if cmd.Flags().Changed("cue-target") {
				target = &cueIDTarget
			}
			return ctx.withApp(cmd, func(c context.Context, a *app) error {
				link, err := a.alignment.EditLinkCues(c, args[0], pivot, target)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Link %s now points at %s", link.ID, link.CueID)
				if link.CueIDTarget != "" {
					fmt.Fprintf(out, " -> %s", link.CueIDTarget)
				}
				fmt.Fprintf(out, " (%s)\n", link.ReviewStatus())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&cueID, "cue", "", "New pivot cue id")
	cmd.Flags().StringVar(&cueIDTarget, "cue-target", "", "New target cue id (target links only)")
	return cmd
}
