package propagation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tvcorpus/internal/align"
	"tvcorpus/internal/artifacts"
	"tvcorpus/internal/config"
	"tvcorpus/internal/corpus"
	"tvcorpus/internal/grouping"
	"tvcorpus/internal/logging"
	"tvcorpus/internal/services"
	"tvcorpus/internal/store"
	"tvcorpus/internal/subtitles"
	"tvcorpus/internal/testsupport"
)

const episode = "S01E07"

type fixture struct {
	cfg *config.Config
	st  *store.Store
	run align.Run
}

func newFixture(t *testing.T, pivotText string) fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedSegments(t, st, episode, "Hello world")
	testsupport.SeedCues(t, st, episode, "en", testsupport.CueSpec{StartMs: 0, EndMs: 1000, Text: pivotText})
	testsupport.SeedCues(t, st, episode, "fr", testsupport.CueSpec{StartMs: 0, EndMs: 1000, Text: "Bonjour le monde"})
	testsupport.SeedCharacter(t, st, "alice", "Alice", map[string]string{"fr": "Alicia"})
	testsupport.SeedCharacter(t, st, "bob", "Bob", nil)
	testsupport.Assign(t, st, episode, corpus.SourceSegment, corpus.SegmentID(episode, corpus.KindSentence, 1), "alice")
	run := testsupport.SeedRun(t, st, episode, []string{"fr"},
		testsupport.PivotLink(t, episode, 1, 1, 0.9),
		testsupport.TargetLink(t, episode, "fr", 1, 1, 1.0),
	)
	return fixture{cfg: cfg, st: st, run: run}
}

func (f fixture) trackPath(lang string) string {
	return subtitles.TrackPath(f.cfg.Paths.SubtitlesDir, episode, lang, subtitles.FormatSRT)
}

func (f fixture) cueText(t *testing.T, lang string) string {
	t.Helper()
	cue, err := f.st.GetCue(context.Background(), corpus.CueID(episode, lang, 1))
	if err != nil {
		t.Fatalf("GetCue: %v", err)
	}
	return cue.TextClean
}

func TestPropagateIsIdempotent(t *testing.T) {
	f := newFixture(t, "Hello world")
	p := New(f.cfg, f.st, logging.NewNop())
	ctx := context.Background()

	result, err := p.Propagate(ctx, episode, f.run.ID, nil)
	if err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	if result.SegmentsUpdated != 1 || result.CuesUpdated != 2 || len(result.FilesRewritten) != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	if got := f.cueText(t, "en"); got != "Alice: Hello world" {
		t.Fatalf("en cue = %q", got)
	}
	if got := f.cueText(t, "fr"); got != "Alicia: Bonjour le monde" {
		t.Fatalf("fr cue = %q", got)
	}
	segment, err := f.st.GetSegment(ctx, corpus.SegmentID(episode, corpus.KindSentence, 1))
	if err != nil {
		t.Fatalf("GetSegment: %v", err)
	}
	if segment.SpeakerExplicit != "Alice" {
		t.Fatalf("speaker = %q", segment.SpeakerExplicit)
	}
	data, err := os.ReadFile(f.trackPath("fr"))
	if err != nil {
		t.Fatalf("read fr track: %v", err)
	}
	if !strings.Contains(string(data), "Alicia: Bonjour le monde") {
		t.Fatalf("fr track not rewritten:\n%s", data)
	}

	again, err := p.Propagate(ctx, episode, f.run.ID, nil)
	if err != nil {
		t.Fatalf("second Propagate: %v", err)
	}
	if again.CuesUpdated != 0 || again.SegmentsUpdated != 0 || len(again.FilesRewritten) != 0 {
		t.Fatalf("second run should change nothing, got %+v", again)
	}
}

func TestPropagateInvalidatesCachedGrouping(t *testing.T) {
	f := newFixture(t, "Hello world")
	docs, err := artifacts.New(f.cfg.Paths.ArtifactsDir, logging.NewNop())
	if err != nil {
		t.Fatalf("artifacts.New: %v", err)
	}
	c := grouping.New(f.st, docs, logging.NewNop())
	ctx := context.Background()

	if _, err := c.Generate(ctx, episode, f.run.ID, false); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := New(f.cfg, f.st, logging.NewNop()).Propagate(ctx, episode, f.run.ID, nil); err != nil {
		t.Fatalf("Propagate: %v", err)
	}

	doc, err := c.Load(ctx, episode, f.run.ID, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.FromCache {
		t.Fatalf("grouping cached before propagation must not be served")
	}
	if len(doc.Groups) != 1 || doc.Groups[0].TextsByLang["fr"] != "Alicia: Bonjour le monde" {
		t.Fatalf("expected propagated fr text, got %+v", doc.Groups)
	}

	again, err := c.Load(ctx, episode, f.run.ID, false)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if !again.FromCache {
		t.Fatalf("regenerated grouping should be cached")
	}
}

func TestPropagateReplacesAnotherCharactersPrefix(t *testing.T) {
	f := newFixture(t, "Bob: Hello world")
	p := New(f.cfg, f.st, logging.NewNop())

	if _, err := p.Propagate(context.Background(), episode, f.run.ID, nil); err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	if got := f.cueText(t, "en"); got != "Alice: Hello world" {
		t.Fatalf("en cue = %q", got)
	}
}

func TestPropagateLanguageFilter(t *testing.T) {
	f := newFixture(t, "Hello world")
	p := New(f.cfg, f.st, logging.NewNop())

	result, err := p.Propagate(context.Background(), episode, f.run.ID, []string{"FR"})
	if err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	if len(result.FilesRewritten) != 1 || result.FilesRewritten[0] != f.trackPath("fr") {
		t.Fatalf("expected only the fr file, got %v", result.FilesRewritten)
	}
	if _, err := os.Stat(f.trackPath("en")); !os.IsNotExist(err) {
		t.Fatalf("en file should not be written, stat err %v", err)
	}
	if got := f.cueText(t, "en"); got != "Alice: Hello world" {
		t.Fatalf("en cue row should still update, got %q", got)
	}
}

func TestPropagateWithoutAssignmentsDoesNothing(t *testing.T) {
	f := newFixture(t, "Hello world")
	testsupport.Assign(t, f.st, episode, corpus.SourceSegment, corpus.SegmentID(episode, corpus.KindSentence, 1), "")
	p := New(f.cfg, f.st, logging.NewNop())

	result, err := p.Propagate(context.Background(), episode, f.run.ID, nil)
	if err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	if result.CuesUpdated != 0 || result.SegmentsUpdated != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

type failingSerializer struct{}

func (failingSerializer) Format() string { return subtitles.FormatSRT }

func (failingSerializer) CuesToText([]corpus.Cue) (string, error) {
	return "", errors.New("disk full")
}

func TestPropagateSerializerFailureChangesNothing(t *testing.T) {
	f := newFixture(t, "Hello world")
	p := New(f.cfg, f.st, logging.NewNop(), WithSerializers(func(format string) (subtitles.Serializer, error) {
		if format == subtitles.FormatSRT {
			return failingSerializer{}, nil
		}
		return subtitles.ForFormat(format)
	}))

	_, err := p.Propagate(context.Background(), episode, f.run.ID, nil)
	if !errors.Is(err, services.ErrIO) {
		t.Fatalf("expected io error, got %v", err)
	}
	if got := f.cueText(t, "en"); got != "Hello world" {
		t.Fatalf("cue row changed despite failure: %q", got)
	}
	assertNoTempFiles(t, filepath.Dir(f.trackPath("en")))
}

func TestPropagateRenameFailureRestoresFiles(t *testing.T) {
	f := newFixture(t, "Hello world")
	original := []byte("1\n00:00:00,000 --> 00:00:01,000\nHello world\n")
	if err := os.MkdirAll(filepath.Dir(f.trackPath("en")), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(f.trackPath("en"), original, 0o644); err != nil {
		t.Fatalf("seed en file: %v", err)
	}

	calls := 0
	renameFile = func(oldPath, newPath string) error {
		calls++
		if calls == 2 {
			return errors.New("device busy")
		}
		return os.Rename(oldPath, newPath)
	}
	t.Cleanup(func() { renameFile = os.Rename })

	p := New(f.cfg, f.st, logging.NewNop())
	_, err := p.Propagate(context.Background(), episode, f.run.ID, nil)
	if !errors.Is(err, services.ErrIO) || !strings.Contains(err.Error(), "rewrite failed") {
		t.Fatalf("expected rewrite failure, got %v", err)
	}

	data, err := os.ReadFile(f.trackPath("en"))
	if err != nil {
		t.Fatalf("read en file: %v", err)
	}
	if string(data) != string(original) {
		t.Fatalf("en file not restored:\n%s", data)
	}
	if _, err := os.Stat(f.trackPath("fr")); !os.IsNotExist(err) {
		t.Fatalf("fr file should not exist, stat err %v", err)
	}
	if got := f.cueText(t, "en"); got != "Hello world" {
		t.Fatalf("en cue row should be rolled back, got %q", got)
	}
	segment, err := f.st.GetSegment(context.Background(), corpus.SegmentID(episode, corpus.KindSentence, 1))
	if err != nil {
		t.Fatalf("GetSegment: %v", err)
	}
	if segment.SpeakerExplicit != "" {
		t.Fatalf("speaker should be rolled back, got %q", segment.SpeakerExplicit)
	}
	assertNoTempFiles(t, filepath.Dir(f.trackPath("en")))
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		t.Fatalf("read dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".tmp") {
			t.Fatalf("staged file left behind: %s", entry.Name())
		}
	}
}

func TestPrefix(t *testing.T) {
	known := []string{"Alicia", "Alice", "Bob"}
	tests := []struct {
		name string
		text string
		who  string
		want string
	}{
		{name: "adds", text: "Hello", who: "Alice", want: "Alice: Hello"},
		{name: "keeps", text: "Alice: Hello", who: "Alice", want: "Alice: Hello"},
		{name: "replaces", text: "Bob: Hello", who: "Alice", want: "Alice: Hello"},
		{name: "longest wins", text: "Alicia: Hola", who: "Bob", want: "Bob: Hola"},
		{name: "unknown colon kept", text: "Note: Hello", who: "Bob", want: "Bob: Note: Hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Prefix(tt.text, tt.who, known); got != tt.want {
				t.Fatalf("Prefix(%q, %q) = %q, want %q", tt.text, tt.who, got, tt.want)
			}
		})
	}
}
