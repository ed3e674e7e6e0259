package grouping_test

import (
	"context"
	"os"
	"reflect"
	"strings"
	"testing"

	"tvcorpus/internal/align"
	"tvcorpus/internal/artifacts"
	"tvcorpus/internal/corpus"
	"tvcorpus/internal/grouping"
	"tvcorpus/internal/logging"
	"tvcorpus/internal/store"
	"tvcorpus/internal/testsupport"
)

const episode = "S01E07"

func newConsolidator(t *testing.T) (*grouping.Consolidator, *store.Store, *artifacts.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	docs, err := artifacts.New(cfg.Paths.ArtifactsDir, logging.NewNop())
	if err != nil {
		t.Fatalf("artifacts.New: %v", err)
	}
	return grouping.New(st, docs, logging.NewNop()), st, docs
}

func TestConcordanceScenario(t *testing.T) {
	c, st, _ := newConsolidator(t)
	testsupport.SeedSegments(t, st, episode, "Hello world")
	testsupport.SeedCues(t, st, episode, "en", testsupport.CueSpec{StartMs: 0, EndMs: 1000, Text: "Hello world"})
	testsupport.SeedCues(t, st, episode, "fr", testsupport.CueSpec{StartMs: 0, EndMs: 1000, Text: "Bonjour le monde"})
	run := testsupport.SeedRun(t, st, episode, []string{"fr"},
		testsupport.PivotLink(t, episode, 1, 1, 0.9),
		testsupport.TargetLink(t, episode, "fr", 1, 1, 1.0),
	)

	links, err := st.QueryLinks(context.Background(), store.LinkQuery{EpisodeID: episode, RunID: run.ID})
	if err != nil {
		t.Fatalf("QueryLinks: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("expected 2 links, got %d", len(links))
	}

	rows, err := c.Concordance(context.Background(), episode, run.ID, nil)
	if err != nil {
		t.Fatalf("Concordance: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	flat := rows[0].Flat()
	for key, want := range map[string]string{
		"text_segment": "Hello world",
		"text_en":      "Hello world",
		"text_fr":      "Bonjour le monde",
	} {
		if got := flat[key]; got != want {
			t.Fatalf("%s = %v, want %q", key, got, want)
		}
	}
	if conf, ok := flat["confidence_pivot"].(*float64); !ok || conf == nil || *conf != 0.9 {
		t.Fatalf("confidence_pivot = %v", flat["confidence_pivot"])
	}
	if conf, ok := flat["confidence_fr"].(*float64); !ok || conf == nil || *conf != 1.0 {
		t.Fatalf("confidence_fr = %v", flat["confidence_fr"])
	}
	if _, ok := flat["confidence_en"]; ok {
		t.Fatalf("pivot language should only report confidence_pivot")
	}
}

// seedSpeakers builds six units: Alice by segment then pivot cue assignment,
// an unassigned unit, Bob by target cue assignment, then two units with the
// same raw speaker label in different case.
func seedSpeakers(t *testing.T, st *store.Store) align.Run {
	t.Helper()
	ctx := context.Background()
	texts := []string{"One", "Two", "Three", "Four", "Five", "Six"}
	testsupport.SeedSegments(t, st, episode, texts...)
	en := make([]testsupport.CueSpec, len(texts))
	fr := make([]testsupport.CueSpec, len(texts))
	for i, text := range texts {
		start := int64(i * 1000)
		en[i] = testsupport.CueSpec{StartMs: start, EndMs: start + 900, Text: text}
		fr[i] = testsupport.CueSpec{StartMs: start, EndMs: start + 900, Text: "fr " + text}
	}
	testsupport.SeedCues(t, st, episode, "en", en...)
	testsupport.SeedCues(t, st, episode, "fr", fr...)

	testsupport.SeedCharacter(t, st, "alice", "Alice", map[string]string{"en": "Alice"})
	testsupport.SeedCharacter(t, st, "bob", "Bob", nil)
	testsupport.Assign(t, st, episode, corpus.SourceSegment, corpus.SegmentID(episode, corpus.KindSentence, 1), "alice")
	testsupport.Assign(t, st, episode, corpus.SourceCue, corpus.CueID(episode, "en", 2), "alice")
	testsupport.Assign(t, st, episode, corpus.SourceCue, corpus.CueID(episode, "fr", 4), "bob")

	tx, err := st.BeginWrite(ctx)
	if err != nil {
		t.Fatalf("BeginWrite: %v", err)
	}
	if err := tx.UpdateSegmentSpeaker(ctx, corpus.SegmentID(episode, corpus.KindSentence, 5), "Narrator"); err != nil {
		t.Fatalf("UpdateSegmentSpeaker: %v", err)
	}
	if err := tx.UpdateSegmentSpeaker(ctx, corpus.SegmentID(episode, corpus.KindSentence, 6), "NARRATOR"); err != nil {
		t.Fatalf("UpdateSegmentSpeaker: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	var links []align.Link
	for n := 1; n <= len(texts); n++ {
		links = append(links, testsupport.PivotLink(t, episode, n, n, 0.8))
	}
	for n := 1; n <= len(texts); n++ {
		links = append(links, testsupport.TargetLink(t, episode, "fr", n, n, 1.0))
	}
	return testsupport.SeedRun(t, st, episode, []string{"fr"}, links...)
}

func segmentNumbers(groups []grouping.Group) [][]string {
	out := make([][]string, len(groups))
	for i, g := range groups {
		for _, id := range g.SegmentIDs {
			out[i] = append(out[i], id[strings.LastIndex(id, ":")+1:])
		}
	}
	return out
}

func TestGenerateMergesConsecutiveSpeakers(t *testing.T) {
	c, st, _ := newConsolidator(t)
	run := seedSpeakers(t, st)
	ctx := context.Background()

	strict, err := c.Generate(ctx, episode, run.ID, false)
	if err != nil {
		t.Fatalf("Generate strict: %v", err)
	}
	want := [][]string{{"1", "2"}, {"3"}, {"4"}, {"5", "6"}}
	if got := segmentNumbers(strict.Groups); !reflect.DeepEqual(got, want) {
		t.Fatalf("strict groups = %v, want %v", got, want)
	}
	labels := []string{"Alice", "", "Bob", "Narrator"}
	for i, g := range strict.Groups {
		if g.SpeakerLabel != labels[i] {
			t.Fatalf("group %d label = %q, want %q", i, g.SpeakerLabel, labels[i])
		}
	}
	first := strict.Groups[0]
	if first.CharacterID != "alice" || first.TextSegment != "One Two" || first.TextsByLang["fr"] != "fr One\nfr Two" {
		t.Fatalf("unexpected first group %+v", first)
	}
	if first.ConfidencePivot == nil || *first.ConfidencePivot != 0.8 || first.ConfidenceByLang["fr"] != 1.0 {
		t.Fatalf("unexpected confidences %+v", first)
	}
	if !reflect.DeepEqual(strict.Languages, []string{"en", "fr"}) {
		t.Fatalf("languages = %v", strict.Languages)
	}

	tolerant, err := c.Generate(ctx, episode, run.ID, true)
	if err != nil {
		t.Fatalf("Generate tolerant: %v", err)
	}
	want = [][]string{{"1", "2", "3"}, {"4"}, {"5", "6"}}
	if got := segmentNumbers(tolerant.Groups); !reflect.DeepEqual(got, want) {
		t.Fatalf("tolerant groups = %v, want %v", got, want)
	}
}

func TestTolerantOnlyMerges(t *testing.T) {
	c, st, _ := newConsolidator(t)
	run := seedSpeakers(t, st)
	ctx := context.Background()

	strict, err := c.Generate(ctx, episode, run.ID, false)
	if err != nil {
		t.Fatalf("Generate strict: %v", err)
	}
	tolerant, err := c.Generate(ctx, episode, run.ID, true)
	if err != nil {
		t.Fatalf("Generate tolerant: %v", err)
	}
	if len(tolerant.Groups) > len(strict.Groups) {
		t.Fatalf("tolerant mode split groups: %d > %d", len(tolerant.Groups), len(strict.Groups))
	}
	// Every tolerant group must be a concatenation of whole strict groups.
	next := 0
	for _, tg := range tolerant.Groups {
		var joined []string
		for len(joined) < len(tg.SegmentIDs) && next < len(strict.Groups) {
			joined = append(joined, strict.Groups[next].SegmentIDs...)
			next++
		}
		if !reflect.DeepEqual(joined, tg.SegmentIDs) {
			t.Fatalf("tolerant group %v does not cover whole strict groups (%v)", tg.SegmentIDs, joined)
		}
	}
	if next != len(strict.Groups) {
		t.Fatalf("tolerant groups cover %d of %d strict groups", next, len(strict.Groups))
	}
}

func TestGenerateIgnoresRejectedLinks(t *testing.T) {
	c, st, _ := newConsolidator(t)
	run := seedSpeakers(t, st)
	ctx := context.Background()

	if _, err := st.SetLinkStatus(ctx, align.LinkID(run.ID, 2), align.StatusRejected); err != nil {
		t.Fatalf("SetLinkStatus: %v", err)
	}
	if _, err := st.SetLinkStatus(ctx, align.LinkID(run.ID, 6), align.StatusRejected); err != nil {
		t.Fatalf("SetLinkStatus: %v", err)
	}
	doc, err := c.Generate(ctx, episode, run.ID, false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	want := [][]string{{"1", "2"}, {"4"}, {"5", "6"}}
	if got := segmentNumbers(doc.Groups); !reflect.DeepEqual(got, want) {
		t.Fatalf("groups = %v, want %v", got, want)
	}
	if _, ok := doc.Groups[0].TextsByLang["fr"]; !ok || strings.Contains(doc.Groups[0].TextsByLang["fr"], "fr One") {
		t.Fatalf("rejected target link leaked into texts: %q", doc.Groups[0].TextsByLang["fr"])
	}
}

func TestLoadUsesCacheUntilStale(t *testing.T) {
	c, st, docs := newConsolidator(t)
	run := seedSpeakers(t, st)
	ctx := context.Background()

	first, err := c.Load(ctx, episode, run.ID, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if first.FromCache {
		t.Fatalf("first load cannot come from cache")
	}
	second, err := c.Load(ctx, episode, run.ID, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !second.FromCache {
		t.Fatalf("second load should hit the cache")
	}
	if other, err := c.Load(ctx, episode, run.ID, true); err != nil || other.FromCache {
		t.Fatalf("tolerant flag change should miss: cached=%v err=%v", other.FromCache, err)
	}

	if _, err := st.SetLinkStatus(ctx, align.LinkID(run.ID, 0), align.StatusAccepted); err != nil {
		t.Fatalf("SetLinkStatus: %v", err)
	}
	stale, err := c.Load(ctx, episode, run.ID, true)
	if err != nil {
		t.Fatalf("Load after revision bump: %v", err)
	}
	if stale.FromCache || stale.RunRevision != 1 {
		t.Fatalf("revision bump should regenerate, got cached=%v revision=%d", stale.FromCache, stale.RunRevision)
	}

	testsupport.Assign(t, st, episode, corpus.SourceSegment, corpus.SegmentID(episode, corpus.KindSentence, 3), "bob")
	reassigned, err := c.Load(ctx, episode, run.ID, true)
	if err != nil {
		t.Fatalf("Load after assignment: %v", err)
	}
	if reassigned.FromCache {
		t.Fatalf("assignment change should regenerate")
	}

	if err := os.WriteFile(docs.GroupingPath(episode, run.ID), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("corrupt cache: %v", err)
	}
	recovered, err := c.Load(ctx, episode, run.ID, true)
	if err != nil {
		t.Fatalf("corrupt cache should be a miss, got %v", err)
	}
	if recovered.FromCache || len(recovered.Groups) == 0 {
		t.Fatalf("expected regenerated grouping, got %+v", recovered)
	}
}

func TestGenerateUnknownRun(t *testing.T) {
	c, _, _ := newConsolidator(t)
	if _, err := c.Generate(context.Background(), episode, "S01E07:missing", false); err == nil {
		t.Fatalf("expected error for unknown run")
	}
}
