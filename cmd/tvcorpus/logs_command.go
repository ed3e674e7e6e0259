package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"tvcorpus/internal/logging"
	"tvcorpus/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines         int
		follow        bool
		episodeID     string
		runID         string
		correlationID string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent log lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.Paths.LogDir, logging.FileName)
			filter := logs.Filter{
				logging.FieldEpisodeID:     episodeID,
				logging.FieldRunID:         runID,
				logging.FieldCorrelationID: correlationID,
			}

			result, err := logs.Tail(path, logs.TailOptions{Limit: lines, Filter: filter})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, line := range result.Lines {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}
			return logs.Follow(cmd.Context(), path, result.Offset, filter, 0, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of lines to show (0 for all)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().StringVar(&episodeID, "episode", "", "Only lines for this episode")
	cmd.Flags().StringVar(&runID, "run", "", "Only lines for this alignment run")
	cmd.Flags().StringVar(&correlationID, "correlation", "", "Only lines for this command or batch correlation id")
	return cmd
}
