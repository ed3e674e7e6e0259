package artifacts

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tvcorpus/internal/align"
	"tvcorpus/internal/logging"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(filepath.Join(t.TempDir(), "align"), logging.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return st
}

func TestAuditRoundTrip(t *testing.T) {
	st := newTestStore(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	run := align.Run{ID: align.RunID("S01E07", created), EpisodeID: "S01E07", PivotLang: "en", CreatedAt: created}
	links := []align.Link{{
		ID: align.LinkID(run.ID, 0), RunID: run.ID, EpisodeID: "S01E07",
		SegmentID: "S01E07:sentence:1", CueID: "S01E07:en:1", Lang: "en",
		Role: align.RolePivot, Confidence: align.Confidence(0.9), Status: align.StatusAuto,
	}}

	if err := st.WriteAudit(run, links); err != nil {
		t.Fatalf("WriteAudit failed: %v", err)
	}
	path := st.AuditPath("S01E07", run.ID)
	if !strings.HasPrefix(path, st.Dir()) || strings.Count(filepath.Base(path), ":") != 0 {
		t.Fatalf("unexpected audit path %s", path)
	}

	doc, err := st.ReadAudit("S01E07", run.ID)
	if err != nil {
		t.Fatalf("ReadAudit failed: %v", err)
	}
	if doc.Run.ID != run.ID || len(doc.Links) != 1 || *doc.Links[0].Confidence != 0.9 {
		t.Fatalf("unexpected audit document: %+v", doc)
	}
}

func TestReadGroupingMissingAndCorrupt(t *testing.T) {
	st := newTestStore(t)
	var doc map[string]any
	if err := st.ReadGrouping("S01E07", "run", &doc); !errors.Is(err, ErrMissing) {
		t.Fatalf("expected ErrMissing, got %v", err)
	}

	path := st.GroupingPath("S01E07", "run")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := st.ReadGrouping("S01E07", "run", &doc)
	if err == nil || errors.Is(err, ErrMissing) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestPurgeRemovesDocuments(t *testing.T) {
	st := newTestStore(t)
	run := align.Run{ID: "S01E07:x", EpisodeID: "S01E07"}
	if err := st.WriteAudit(run, nil); err != nil {
		t.Fatalf("WriteAudit failed: %v", err)
	}
	if err := st.WriteGrouping("S01E07", run.ID, map[string]int{"groups": 0}); err != nil {
		t.Fatalf("WriteGrouping failed: %v", err)
	}
	if err := st.Purge("S01E07", run.ID, "never-written"); err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	for _, path := range []string{st.AuditPath("S01E07", run.ID), st.GroupingPath("S01E07", run.ID)} {
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("expected %s removed, stat err = %v", path, err)
		}
	}
}

func TestNewRejectsEmptyDir(t *testing.T) {
	if _, err := New("  ", nil); err == nil {
		t.Fatal("expected error for empty dir")
	}
}
