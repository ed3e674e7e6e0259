package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"tvcorpus/internal/alignment"
	"tvcorpus/internal/corpus"
	"tvcorpus/internal/language"
	"tvcorpus/internal/logging"
	"tvcorpus/internal/services"
	"tvcorpus/internal/subtitles"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Load segments, subtitle tracks and character data",
	}

	importCmd.AddCommand(newImportSegmentsCommand(ctx))
	importCmd.AddCommand(newImportSubtitlesCommand(ctx))
	importCmd.AddCommand(newImportCharactersCommand(ctx))
	importCmd.AddCommand(newImportAssignCommand(ctx))

	return importCmd
}

func newImportSegmentsCommand(ctx *commandContext) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "segments <episode> <file>",
		Short: "Replace an episode's segments with the non-empty lines of a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read segments: %w", err)
			}
			texts := readLines(data)
			if len(texts) == 0 {
				return fmt.Errorf("%s has no segments", args[1])
			}
			return ctx.withApp(cmd, func(c context.Context, a *app) error {
				value := kind
				if strings.TrimSpace(value) == "" {
					value = a.cfg.Alignment.SegmentKind
				}
				segmentKind, err := corpus.ParseSegmentKind(value)
				if err != nil {
					return services.Wrap(services.ErrValidation, "cli", "import segments", "invalid segment kind", err)
				}
				invalidated, err := a.alignment.ReplaceSegments(c, args[0], segmentKind, texts)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Imported %d %s segments for %s\n", len(texts), segmentKind, args[0])
				printInvalidated(cmd, invalidated)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Segment kind (sentence or utterance)")
	return cmd
}

func readLines(data []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func newImportSubtitlesCommand(ctx *commandContext) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "subtitles <episode> <lang> <file>",
		Short: "Replace an episode's subtitle track for one language",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[2])
			if err != nil {
				return fmt.Errorf("read subtitles: %w", err)
			}
			if strings.TrimSpace(format) == "" {
				if inferred, err := subtitles.FormatFromPath(args[2]); err == nil {
					format = inferred
				}
			}
			return ctx.withApp(cmd, func(c context.Context, a *app) error {
				result, err := a.alignment.ImportTrack(c, alignment.TrackImport{
					EpisodeID: args[0],
					Lang:      args[1],
					Format:    format,
					Data:      data,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Imported %d %s cues for %s (%s)\n", result.Cues, result.Track.Lang, result.Track.EpisodeID, result.Track.Path)
				if skipped := result.Stats.Malformed + result.Stats.Advertising; skipped > 0 {
					fmt.Fprintf(out, "Skipped %d blocks (%d malformed, %d advertising)\n", skipped, result.Stats.Malformed, result.Stats.Advertising)
				}
				printInvalidated(cmd, result.Invalidated)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "Subtitle format (srt or vtt); inferred from the file name when omitted")
	return cmd
}

type characterFile struct {
	Characters []struct {
		ID        string            `toml:"id"`
		Canonical string            `toml:"canonical"`
		Names     map[string]string `toml:"names"`
	} `toml:"characters"`
}

func newImportCharactersCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "characters <file.toml>",
		Short: "Upsert character catalog entries from a TOML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read characters: %w", err)
			}
			var file characterFile
			if err := toml.Unmarshal(data, &file); err != nil {
				return services.Wrap(services.ErrValidation, "cli", "import characters", "parse "+args[0], err)
			}
			for i, entry := range file.Characters {
				if strings.TrimSpace(entry.ID) == "" || strings.TrimSpace(entry.Canonical) == "" {
					return services.Wrap(services.ErrValidation, "cli", "import characters", fmt.Sprintf("entry %d needs id and canonical", i+1), nil)
				}
			}
			return ctx.withApp(cmd, func(c context.Context, a *app) error {
				for _, entry := range file.Characters {
					character := corpus.Character{
						ID:        strings.TrimSpace(entry.ID),
						Canonical: strings.TrimSpace(entry.Canonical),
						Names:     entry.Names,
					}
					if err := a.store.UpsertCharacter(c, character); err != nil {
						return storeFailure("import characters", err)
					}
				}
				logging.WithContext(c, a.logger).Info("characters imported",
					logging.String(logging.FieldEventType, "characters_imported"),
					logging.Int("characters", len(file.Characters)),
				)
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d characters\n", len(file.Characters))
				return nil
			})
		},
	}
}

func newImportAssignCommand(ctx *commandContext) *cobra.Command {
	var clear bool

	cmd := &cobra.Command{
		Use:   "assign <episode> <segment|cue> <source-id> [character-id]",
		Short: "Bind a segment or cue to a character",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			sourceType, err := corpus.ParseSourceType(args[1])
			if err != nil {
				return services.Wrap(services.ErrValidation, "cli", "assign", "", err)
			}
			characterID := ""
			if len(args) == 4 {
				characterID = strings.TrimSpace(args[3])
			}
			if characterID == "" && !clear {
				return services.Wrap(services.ErrValidation, "cli", "assign", "character id is required (use --clear to remove the binding)", nil)
			}
			if clear {
				characterID = ""
			}
			return ctx.withApp(cmd, func(c context.Context, a *app) error {
				if characterID != "" {
					if _, err := a.store.GetCharacter(c, characterID); err != nil {
						return storeFailure("assign", err)
					}
				}
				assignment := corpus.Assignment{
					EpisodeID:   args[0],
					SourceType:  sourceType,
					SourceID:    args[2],
					CharacterID: characterID,
				}
				if err := a.store.SetAssignment(c, assignment); err != nil {
					return storeFailure("assign", err)
				}
				if characterID == "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Cleared assignment on %s\n", args[2])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Assigned %s to %s\n", args[2], characterID)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clear, "clear", false, "Remove the existing assignment")
	return cmd
}

func printInvalidated(cmd *cobra.Command, runIDs []string) {
	if len(runIDs) == 0 {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Deleted %d stale alignment run(s):\n", len(runIDs))
	for _, id := range runIDs {
		fmt.Fprintf(out, "  %s\n", id)
	}
}

func newTrackCommand(ctx *commandContext) *cobra.Command {
	trackCmd := &cobra.Command{
		Use:   "track",
		Short: "Manage subtitle tracks",
	}
	trackCmd.AddCommand(&cobra.Command{
		Use:   "remove <episode> <lang>",
		Short: "Remove a subtitle track and the runs that reference it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(c context.Context, a *app) error {
				invalidated, err := a.alignment.RemoveTrack(c, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s track of %s\n", args[1], args[0])
				printInvalidated(cmd, invalidated)
				return nil
			})
		},
	})
	trackCmd.AddCommand(&cobra.Command{
		Use:   "list <episode>",
		Short: "List an episode's subtitle tracks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(c context.Context, a *app) error {
				tracks, err := a.store.ListTracks(c, args[0])
				if err != nil {
					return storeFailure("list tracks", err)
				}
				if len(tracks) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No tracks")
					return nil
				}
				rows := make([][]string, 0, len(tracks))
				for _, track := range tracks {
					rows = append(rows, []string{track.Lang, language.DisplayName(track.Lang), track.Format, track.Path})
				}
				out := cmd.OutOrStdout()
				fmt.Fprint(out, renderTable(out, []string{"Lang", "Language", "Format", "Path"}, rows, nil))
				return nil
			})
		},
	})
	return trackCmd
}
