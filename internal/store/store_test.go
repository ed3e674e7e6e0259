package store_test

import (
	"context"
	"errors"
	"testing"

	"tvcorpus/internal/corpus"
	"tvcorpus/internal/store"
	"tvcorpus/internal/testsupport"
)

func TestOpenCreatesSchemaAndReopens(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	testsupport.SeedSegments(t, st, "S01E07", "Hello world")
	if err := st.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	segments, err := reopened.GetSegments(context.Background(), "S01E07", corpus.KindSentence)
	if err != nil {
		t.Fatalf("GetSegments failed: %v", err)
	}
	if len(segments) != 1 || segments[0].Text != "Hello world" {
		t.Fatalf("unexpected segments after reopen: %+v", segments)
	}
}

func TestSegmentsAndCuesRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedSegments(t, st, "S01E07", "One", "Two", "Three")
	testsupport.SeedCues(t, st, "S01E07", "en",
		testsupport.CueSpec{StartMs: 0, EndMs: 1000, Text: "One"},
		testsupport.CueSpec{StartMs: 1000, EndMs: 2000, Text: "Two"},
	)

	segments, err := st.GetSegments(ctx, "S01E07", corpus.KindSentence)
	if err != nil {
		t.Fatalf("GetSegments failed: %v", err)
	}
	if len(segments) != 3 || segments[2].N != 3 || segments[2].ID != "S01E07:sentence:3" {
		t.Fatalf("unexpected segments: %+v", segments)
	}

	cue, err := st.GetCue(ctx, "S01E07:en:2")
	if err != nil {
		t.Fatalf("GetCue failed: %v", err)
	}
	if cue.StartMs != 1000 || cue.EndMs != 2000 || cue.TextClean != "Two" {
		t.Fatalf("unexpected cue: %+v", cue)
	}
	if _, err := st.GetCue(ctx, "S01E07:en:9"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	track, err := st.GetTrack(ctx, "S01E07", "en")
	if err != nil {
		t.Fatalf("GetTrack failed: %v", err)
	}
	if track.Format != "srt" {
		t.Fatalf("unexpected track: %+v", track)
	}

	episodes, err := st.Episodes(ctx)
	if err != nil {
		t.Fatalf("Episodes failed: %v", err)
	}
	if len(episodes) != 1 || episodes[0] != "S01E07" {
		t.Fatalf("unexpected episodes: %v", episodes)
	}
}

func TestRemoveTrackDropsCues(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedCues(t, st, "S01E07", "fr", testsupport.CueSpec{Text: "Salut"})
	if _, err := st.RemoveTrack(ctx, "S01E07", "fr"); err != nil {
		t.Fatalf("RemoveTrack failed: %v", err)
	}
	cues, err := st.GetCues(ctx, "S01E07", "fr")
	if err != nil {
		t.Fatalf("GetCues failed: %v", err)
	}
	if len(cues) != 0 {
		t.Fatalf("expected cues removed with track, got %d", len(cues))
	}
	if _, err := st.RemoveTrack(ctx, "S01E07", "fr"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing track, got %v", err)
	}
}

func TestCharactersAndAssignments(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedCharacter(t, st, "ross", "Ross", map[string]string{"fr": "Ross"})
	before, err := st.AssignmentsDigest(ctx, "S01E07")
	if err != nil {
		t.Fatalf("AssignmentsDigest failed: %v", err)
	}

	testsupport.Assign(t, st, "S01E07", corpus.SourceSegment, "S01E07:sentence:1", "ross")
	list, err := st.Assignments(ctx, "S01E07")
	if err != nil {
		t.Fatalf("Assignments failed: %v", err)
	}
	if len(list) != 1 || list[0].CharacterID != "ross" || list[0].SourceType != corpus.SourceSegment {
		t.Fatalf("unexpected assignments: %+v", list)
	}

	after, err := st.AssignmentsDigest(ctx, "S01E07")
	if err != nil {
		t.Fatalf("AssignmentsDigest failed: %v", err)
	}
	if before == after {
		t.Fatal("expected digest to change after assignment")
	}

	testsupport.SeedCharacter(t, st, "ross", "Ross Geller", nil)
	renamed, err := st.AssignmentsDigest(ctx, "S01E07")
	if err != nil {
		t.Fatalf("AssignmentsDigest failed: %v", err)
	}
	if renamed == after {
		t.Fatal("expected digest to change after character rename")
	}

	testsupport.Assign(t, st, "S01E07", corpus.SourceSegment, "S01E07:sentence:1", "")
	list, err = st.Assignments(ctx, "S01E07")
	if err != nil {
		t.Fatalf("Assignments failed: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected assignment cleared, got %+v", list)
	}

	character, err := st.GetCharacter(ctx, "ross")
	if err != nil {
		t.Fatalf("GetCharacter failed: %v", err)
	}
	if character.Canonical != "Ross Geller" || character.Names == nil {
		t.Fatalf("unexpected character: %+v", character)
	}
}

func TestWriteTxRollbackAndCommit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SeedSegments(t, st, "S01E07", "Hello")
	testsupport.SeedCues(t, st, "S01E07", "en", testsupport.CueSpec{Text: "Hello"})

	tx, err := st.BeginWrite(ctx)
	if err != nil {
		t.Fatalf("BeginWrite failed: %v", err)
	}
	if err := tx.UpdateCueTextClean(ctx, "S01E07:en:1", "Ross: Hello"); err != nil {
		t.Fatalf("UpdateCueTextClean failed: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	cue, err := st.GetCue(ctx, "S01E07:en:1")
	if err != nil {
		t.Fatalf("GetCue failed: %v", err)
	}
	if cue.TextClean != "Hello" {
		t.Fatalf("rollback should keep original text, got %q", cue.TextClean)
	}

	tx, err = st.BeginWrite(ctx)
	if err != nil {
		t.Fatalf("BeginWrite failed: %v", err)
	}
	if err := tx.UpdateSegmentSpeaker(ctx, "S01E07:sentence:1", "Ross"); err != nil {
		t.Fatalf("UpdateSegmentSpeaker failed: %v", err)
	}
	if err := tx.UpdateCueTextClean(ctx, "S01E07:en:99", "x"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown cue, got %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback after commit should be a no-op: %v", err)
	}
	seg, err := st.GetSegment(ctx, "S01E07:sentence:1")
	if err != nil {
		t.Fatalf("GetSegment failed: %v", err)
	}
	if seg.SpeakerExplicit != "Ross" {
		t.Fatalf("expected committed speaker, got %q", seg.SpeakerExplicit)
	}
}
