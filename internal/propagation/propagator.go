package propagation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sort"
	"strings"

	"tvcorpus/internal/config"
	"tvcorpus/internal/corpus"
	"tvcorpus/internal/fileutil"
	"tvcorpus/internal/grouping"
	"tvcorpus/internal/language"
	"tvcorpus/internal/logging"
	"tvcorpus/internal/services"
	"tvcorpus/internal/store"
	"tvcorpus/internal/subtitles"
)

const component = "propagation"

var renameFile = os.Rename

// Result reports what a propagation changed.
type Result struct {
	SegmentsUpdated int      `json:"segments_updated"`
	CuesUpdated     int      `json:"cues_updated"`
	FilesRewritten  []string `json:"files_rewritten"`
}

// SerializerLookup resolves the serializer for a track format.
type SerializerLookup func(format string) (subtitles.Serializer, error)

// Propagator writes resolved character names into segments, cues and
// subtitle files.
type Propagator struct {
	cfg         *config.Config
	store       *store.Store
	logger      *slog.Logger
	serializers SerializerLookup
}

// Option customizes a Propagator.
type Option func(*Propagator)

// WithSerializers replaces the serializer registry.
func WithSerializers(lookup SerializerLookup) Option {
	return func(p *Propagator) {
		if lookup != nil {
			p.serializers = lookup
		}
	}
}

// New constructs a Propagator.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, opts ...Option) *Propagator {
	p := &Propagator{
		cfg:         cfg,
		store:       st,
		logger:      logging.NewComponentLogger(logger, component),
		serializers: subtitles.ForFormat,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type changeSet struct {
	speakers map[string]string
	cues     map[string]string
	langs    map[string]struct{}
}

type stagedFile struct {
	lang     string
	path     string
	temp     string
	snapshot fileutil.Snapshot
}

// Propagate resolves each unit's character and writes it back: the segment's
// explicit speaker and a "<Name>: " prefix on every linked cue. Subtitle
// files of changed languages are rewritten, restricted to languages when it
// is non-empty.
//
// Files are staged beside their targets and the database changes are applied
// in one transaction before any file is renamed into place. A failure before
// the renames changes nothing; a rename or commit failure restores the
// previous files and rolls the transaction back. Every failure wraps
// services.ErrIO.
func (p *Propagator) Propagate(ctx context.Context, episodeID, runID string, languages []string) (Result, error) {
	const op = "propagate"
	ctx = services.WithRunID(services.WithEpisodeID(ctx, episodeID), runID)
	logger := logging.WithContext(ctx, p.logger)

	filter, err := language.NormalizeList(languages)
	if err != nil {
		return Result{}, services.Wrap(services.ErrValidation, component, op, "invalid language", err)
	}
	graph, err := grouping.LoadGraph(ctx, p.store, episodeID, runID)
	if err != nil {
		return Result{}, err
	}
	changes := computeChanges(graph)
	if len(changes.speakers) == 0 && len(changes.cues) == 0 {
		logger.Info("nothing to propagate", logging.String(logging.FieldEventType, "propagation_noop"))
		return Result{}, nil
	}

	rewrite := make([]string, 0, len(changes.langs))
	for lang := range changes.langs {
		if len(filter) == 0 || slices.Contains(filter, lang) {
			rewrite = append(rewrite, lang)
		}
	}
	sort.Strings(rewrite)

	staged, err := p.stage(ctx, episodeID, rewrite, changes.cues)
	if err != nil {
		discard(staged)
		return Result{}, err
	}

	tx, err := p.store.BeginWrite(ctx)
	if err != nil {
		discard(staged)
		return Result{}, services.Wrap(services.ErrIO, component, op, "begin write", err)
	}
	if err := apply(ctx, tx, changes); err != nil {
		_ = tx.Rollback()
		discard(staged)
		return Result{}, services.Wrap(services.ErrIO, component, op, "update rows", err)
	}

	for i, file := range staged {
		if err := renameFile(file.temp, file.path); err != nil {
			restoreErr := restore(staged[:i])
			discard(staged[i:])
			_ = tx.Rollback()
			logging.ErrorWithContext(logger, "subtitle rewrite failed", "propagation_rewrite_failed",
				logging.Error(err),
				logging.String(logging.FieldLang, file.lang),
				logging.Any("restore_error", restoreErr),
			)
			return Result{}, services.Wrap(services.ErrIO, component, op, "rewrite failed: install "+file.path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		restoreErr := restore(staged)
		logging.ErrorWithContext(logger, "propagation commit failed", "propagation_commit_failed",
			logging.Error(err),
			logging.Any("restore_error", restoreErr),
		)
		return Result{}, services.Wrap(services.ErrIO, component, op, "commit", err)
	}

	result := Result{
		SegmentsUpdated: len(changes.speakers),
		CuesUpdated:     len(changes.cues),
		FilesRewritten:  make([]string, 0, len(staged)),
	}
	for _, file := range staged {
		result.FilesRewritten = append(result.FilesRewritten, file.path)
	}
	logger.Info(
		"character names propagated",
		logging.String(logging.FieldEventType, "propagation_complete"),
		logging.Int("segments_updated", result.SegmentsUpdated),
		logging.Int("cues_updated", result.CuesUpdated),
		logging.Int("files_rewritten", len(result.FilesRewritten)),
	)
	return result, nil
}

func computeChanges(graph *grouping.Graph) changeSet {
	changes := changeSet{
		speakers: map[string]string{},
		cues:     map[string]string{},
		langs:    map[string]struct{}{},
	}
	known := knownNames(graph.Characters)
	pivotLang := graph.Run.PivotLang

	update := func(cue corpus.Cue, name string) {
		current, pending := changes.cues[cue.ID]
		if !pending {
			current = cue.Text()
		}
		next := Prefix(current, name, known)
		if next == cue.Text() {
			delete(changes.cues, cue.ID)
			return
		}
		changes.cues[cue.ID] = next
	}

	for _, unit := range graph.Units {
		character, ok := graph.Character(unit)
		if !ok {
			continue
		}
		speaker := character.CanonicalName(pivotLang)
		if unit.Segment.SpeakerExplicit != speaker {
			changes.speakers[unit.Segment.ID] = speaker
		}
		update(unit.PivotCue, speaker)
		for _, target := range unit.Targets {
			update(target.Cue, character.CanonicalName(target.Cue.Lang))
		}
	}
	for cueID := range changes.cues {
		if lang, ok := corpus.CueLang(cueID); ok {
			changes.langs[lang] = struct{}{}
		}
	}
	return changes
}

// Prefix puts "<name>: " in front of text. Text already carrying that prefix
// is returned unchanged; a prefix naming another known character is replaced.
func Prefix(text, name string, known []string) string {
	prefix := name + ": "
	if strings.HasPrefix(text, prefix) {
		return text
	}
	for _, other := range known {
		if other == name {
			continue
		}
		if rest, ok := strings.CutPrefix(text, other+": "); ok {
			return prefix + rest
		}
	}
	return prefix + text
}

// knownNames lists every character name, longest first so a longer name wins
// over a shorter one it starts with.
func knownNames(characters map[string]corpus.Character) []string {
	seen := map[string]struct{}{}
	var names []string
	for _, character := range characters {
		for _, name := range character.KnownNames() {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return names
}

// stage serializes every language to rewrite into a temp file beside its
// target and snapshots the target.
func (p *Propagator) stage(ctx context.Context, episodeID string, langs []string, texts map[string]string) ([]stagedFile, error) {
	const op = "propagate"
	staged := make([]stagedFile, 0, len(langs))
	for _, lang := range langs {
		track, err := p.store.GetTrack(ctx, episodeID, lang)
		if err != nil {
			return staged, services.Wrap(services.ErrIO, component, op, "rewrite failed: load "+lang+" track", err)
		}
		cues, err := p.store.GetCues(ctx, episodeID, lang)
		if err != nil {
			return staged, services.Wrap(services.ErrIO, component, op, "rewrite failed: load "+lang+" cues", err)
		}
		for i := range cues {
			if text, ok := texts[cues[i].ID]; ok {
				cues[i].TextClean = text
			}
		}
		serializer, err := p.serializers(track.Format)
		if err != nil {
			return staged, services.Wrap(services.ErrIO, component, op, "rewrite failed: "+lang, err)
		}
		body, err := serializer.CuesToText(cues)
		if err != nil {
			return staged, services.Wrap(services.ErrIO, component, op, "rewrite failed: serialize "+lang, err)
		}

		path := strings.TrimSpace(track.Path)
		if path == "" {
			path = subtitles.TrackPath(p.cfg.Paths.SubtitlesDir, episodeID, lang, track.Format)
		}
		snapshot, err := fileutil.TakeSnapshot(path)
		if err != nil {
			return staged, services.Wrap(services.ErrIO, component, op, "rewrite failed: snapshot "+path, err)
		}
		temp, err := fileutil.StageFile(path, []byte(body), 0o644)
		if err != nil {
			return staged, services.Wrap(services.ErrIO, component, op, "rewrite failed: stage "+path, err)
		}
		staged = append(staged, stagedFile{lang: lang, path: path, temp: temp, snapshot: snapshot})
	}
	return staged, nil
}

func apply(ctx context.Context, tx *store.WriteTx, changes changeSet) error {
	for _, segmentID := range sortedKeys(changes.speakers) {
		if err := tx.UpdateSegmentSpeaker(ctx, segmentID, changes.speakers[segmentID]); err != nil {
			return err
		}
	}
	for _, cueID := range sortedKeys(changes.cues) {
		if err := tx.UpdateCueTextClean(ctx, cueID, changes.cues[cueID]); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func discard(staged []stagedFile) {
	for _, file := range staged {
		_ = os.Remove(file.temp)
	}
}

func restore(installed []stagedFile) error {
	var failed []string
	for _, file := range installed {
		if err := file.snapshot.Restore(); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", file.path, err))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("restore files: %s", strings.Join(failed, "; "))
	}
	return nil
}
