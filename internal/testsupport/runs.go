package testsupport

import (
	"context"
	"testing"
	"time"

	"tvcorpus/internal/align"
	"tvcorpus/internal/corpus"
	"tvcorpus/internal/store"
)

// PivotLang is the pivot language used by seeded runs.
const PivotLang = "en"

// PivotLink builds a link from sentence segmentN to English cue cueN.
func PivotLink(t testing.TB, episodeID string, segmentN, cueN int, confidence float64) align.Link {
	t.Helper()

	link, err := align.NewPivotLink(episodeID,
		corpus.SegmentID(episodeID, corpus.KindSentence, segmentN),
		corpus.CueID(episodeID, PivotLang, cueN),
		PivotLang, align.Confidence(confidence))
	if err != nil {
		t.Fatalf("align.NewPivotLink: %v", err)
	}
	return link
}

// TargetLink builds a link from English cue pivotN to cue targetN of lang.
func TargetLink(t testing.TB, episodeID, lang string, pivotN, targetN int, confidence float64) align.Link {
	t.Helper()

	link, err := align.NewTargetLink(episodeID,
		corpus.CueID(episodeID, PivotLang, pivotN),
		corpus.CueID(episodeID, lang, targetN),
		lang, align.Confidence(confidence))
	if err != nil {
		t.Fatalf("align.NewTargetLink: %v", err)
	}
	return link
}

// SeedRun persists a run with the given links, numbering them in order.
func SeedRun(t testing.TB, st *store.Store, episodeID string, targetLangs []string, links ...align.Link) align.Run {
	t.Helper()

	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	run := align.Run{
		ID:        align.RunID(episodeID, created),
		EpisodeID: episodeID,
		PivotLang: PivotLang,
		Params:    align.Params{TargetLangs: targetLangs, MinConfidence: 0.3},
		CreatedAt: created,
	}
	for i := range links {
		links[i].ID = align.LinkID(run.ID, i)
		links[i].RunID = run.ID
		if links[i].Role == align.RolePivot {
			run.Summary.PivotLinks++
		}
	}
	run.Summary.TotalLinks = len(links)
	if err := st.CreateRun(context.Background(), run, links); err != nil {
		t.Fatalf("store.CreateRun: %v", err)
	}
	return run
}
