package testsupport

import (
	"context"
	"testing"

	"tvcorpus/internal/config"
	"tvcorpus/internal/corpus"
	"tvcorpus/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// CueSpec describes one cue to seed.
type CueSpec struct {
	StartMs int64
	EndMs   int64
	Text    string
}

// SeedSegments stores sentence segments for an episode.
func SeedSegments(t testing.TB, st *store.Store, episodeID string, texts ...string) []corpus.Segment {
	t.Helper()

	segments := corpus.NewSegments(episodeID, corpus.KindSentence, texts)
	if _, err := st.ReplaceSegments(context.Background(), episodeID, corpus.KindSentence, segments); err != nil {
		t.Fatalf("store.ReplaceSegments: %v", err)
	}
	return segments
}

// SeedCues stores an SRT track for one language of an episode. The track has
// no explicit path, so rewrites land under the configured subtitles dir.
func SeedCues(t testing.TB, st *store.Store, episodeID, lang string, specs ...CueSpec) []corpus.Cue {
	t.Helper()

	raw := make([]corpus.Cue, len(specs))
	for i, spec := range specs {
		raw[i] = corpus.Cue{StartMs: spec.StartMs, EndMs: spec.EndMs, TextRaw: spec.Text}
	}
	cues := corpus.StampCues(episodeID, lang, raw)
	track := corpus.Track{EpisodeID: episodeID, Lang: lang, Format: "srt"}
	if _, err := st.ReplaceCues(context.Background(), track, cues); err != nil {
		t.Fatalf("store.ReplaceCues: %v", err)
	}
	return cues
}

// SeedCharacter stores a catalog entry.
func SeedCharacter(t testing.TB, st *store.Store, id, canonical string, names map[string]string) corpus.Character {
	t.Helper()

	character := corpus.Character{ID: id, Canonical: canonical, Names: names}
	if err := st.UpsertCharacter(context.Background(), character); err != nil {
		t.Fatalf("store.UpsertCharacter: %v", err)
	}
	return character
}

// Assign binds a segment or cue to a character.
func Assign(t testing.TB, st *store.Store, episodeID string, sourceType corpus.SourceType, sourceID, characterID string) {
	t.Helper()

	assignment := corpus.Assignment{
		EpisodeID:   episodeID,
		SourceType:  sourceType,
		SourceID:    sourceID,
		CharacterID: characterID,
	}
	if err := st.SetAssignment(context.Background(), assignment); err != nil {
		t.Fatalf("store.SetAssignment: %v", err)
	}
}
