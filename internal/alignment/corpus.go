package alignment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"tvcorpus/internal/corpus"
	"tvcorpus/internal/fileutil"
	"tvcorpus/internal/language"
	"tvcorpus/internal/logging"
	"tvcorpus/internal/services"
	"tvcorpus/internal/subtitles"
)

// ReplaceSegments stores a new segmentation of an episode. Every run of the
// episode is deleted because its segment ids are stale; the deleted run ids
// are returned.
func (s *Service) ReplaceSegments(ctx context.Context, episodeID string, kind corpus.SegmentKind, texts []string) ([]string, error) {
	const op = "replace segments"
	episodeID = strings.TrimSpace(episodeID)
	if err := corpus.ValidateEpisodeID(episodeID); err != nil {
		return nil, services.Wrap(services.ErrValidation, component, op, "invalid episode", err)
	}
	if _, err := corpus.ParseSegmentKind(string(kind)); err != nil {
		return nil, services.Wrap(services.ErrValidation, component, op, "invalid segment kind", err)
	}
	segments := corpus.NewSegments(episodeID, kind, texts)
	invalidated, err := s.store.ReplaceSegments(ctx, episodeID, kind, segments)
	if err != nil {
		return nil, storeError(op, "episode "+episodeID, err)
	}
	s.invalidated(ctx, episodeID, invalidated, "segments replaced")
	logging.WithContext(services.WithEpisodeID(ctx, episodeID), s.logger).Info(
		"segments replaced",
		logging.String(logging.FieldEventType, "segments_replaced"),
		logging.String("kind", string(kind)),
		logging.Int("segments", len(segments)),
	)
	return invalidated, nil
}

// TrackImport is a subtitle file to import for one episode language.
type TrackImport struct {
	EpisodeID string
	Lang      string
	// Format defaults to the configured subtitle format.
	Format string
	Data   []byte
}

// TrackImportResult reports what an import stored.
type TrackImportResult struct {
	Track       corpus.Track
	Cues        int
	Stats       subtitles.ParseStats
	Invalidated []string
}

// ImportTrack parses a subtitle file, stores its cues and writes the managed
// copy under the subtitles directory. The episode's runs are invalidated.
func (s *Service) ImportTrack(ctx context.Context, in TrackImport) (TrackImportResult, error) {
	const op = "import track"
	episodeID := strings.TrimSpace(in.EpisodeID)
	if err := corpus.ValidateEpisodeID(episodeID); err != nil {
		return TrackImportResult{}, services.Wrap(services.ErrValidation, component, op, "invalid episode", err)
	}
	lang, err := language.Normalize(in.Lang)
	if err != nil {
		return TrackImportResult{}, services.Wrap(services.ErrValidation, component, op, "invalid language", err)
	}
	format := strings.ToLower(strings.TrimSpace(in.Format))
	if format == "" {
		format = s.cfg.Subtitles.DefaultFormat
	}
	serializer, err := subtitles.ForFormat(format)
	if err != nil {
		return TrackImportResult{}, services.Wrap(services.ErrValidation, component, op, "", err)
	}
	parsed, stats, err := subtitles.Parse(format, in.Data)
	if err != nil {
		return TrackImportResult{}, services.Wrap(services.ErrValidation, component, op, "parse subtitles", err)
	}
	if len(parsed) == 0 {
		return TrackImportResult{}, services.Wrap(services.ErrValidation, component, op, "subtitle file has no cues", nil)
	}
	cues := corpus.StampCues(episodeID, lang, parsed)

	text, err := serializer.CuesToText(cues)
	if err != nil {
		return TrackImportResult{}, services.Wrap(services.ErrValidation, component, op, "serialize track", err)
	}
	path := subtitles.TrackPath(s.cfg.Paths.SubtitlesDir, episodeID, lang, serializer.Format())
	staged, err := fileutil.StageFile(path, []byte(text), 0o644)
	if err != nil {
		return TrackImportResult{}, services.Wrap(services.ErrIO, component, op, "stage track file", err)
	}
	track := corpus.Track{EpisodeID: episodeID, Lang: lang, Format: serializer.Format(), Path: path}
	invalidated, err := s.store.ReplaceCues(ctx, track, cues)
	if err != nil {
		_ = os.Remove(staged)
		return TrackImportResult{}, storeError(op, fmt.Sprintf("track %s/%s", episodeID, lang), err)
	}
	if err := os.Rename(staged, path); err != nil {
		_ = os.Remove(staged)
		return TrackImportResult{}, services.Wrap(services.ErrIO, component, op, "install track file", err)
	}
	s.invalidated(ctx, episodeID, invalidated, "cues replaced")

	logger := logging.WithContext(services.WithEpisodeID(ctx, episodeID), s.logger)
	logger.Info(
		"subtitle track imported",
		logging.String(logging.FieldEventType, "track_imported"),
		logging.String(logging.FieldLang, lang),
		logging.String("format", track.Format),
		logging.Int("cues", len(cues)),
		logging.Int("malformed_blocks", stats.Malformed),
		logging.Int("advertising_blocks", stats.Advertising),
	)
	return TrackImportResult{Track: track, Cues: len(cues), Stats: stats, Invalidated: invalidated}, nil
}

// RemoveTrack drops a subtitle track with its cues and managed file. Every run
// of the episode is deleted because its cue ids are stale.
func (s *Service) RemoveTrack(ctx context.Context, episodeID, lang string) ([]string, error) {
	const op = "remove track"
	episodeID = strings.TrimSpace(episodeID)
	normalized, err := language.Normalize(lang)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, component, op, "invalid language", err)
	}
	track, err := s.store.GetTrack(ctx, episodeID, normalized)
	if err != nil {
		return nil, storeError(op, fmt.Sprintf("track %s/%s", episodeID, normalized), err)
	}
	invalidated, err := s.store.RemoveTrack(ctx, episodeID, normalized)
	if err != nil {
		return nil, storeError(op, fmt.Sprintf("track %s/%s", episodeID, normalized), err)
	}
	s.invalidated(ctx, episodeID, invalidated, "track removed")

	logger := logging.WithContext(services.WithEpisodeID(ctx, episodeID), s.logger)
	managed := subtitles.TrackPath(s.cfg.Paths.SubtitlesDir, episodeID, normalized, track.Format)
	if track.Path == managed {
		if err := os.Remove(managed); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.WarnWithContext(logger, "managed track file not removed", "track_file_remove_failed",
				logging.Error(err),
				logging.String("path", managed),
			)
		}
	}
	logger.Info(
		"subtitle track removed",
		logging.String(logging.FieldEventType, "track_removed"),
		logging.String(logging.FieldLang, normalized),
	)
	return invalidated, nil
}
