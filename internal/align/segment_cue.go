package align

import (
	"fmt"

	"tvcorpus/internal/corpus"
)

// SegmentCueAligner matches ordered narrative segments to ordered pivot cues.
type SegmentCueAligner struct {
	Window int
}

// Align returns one pivot link per segment whose best cue scores at least
// minConfidence. Segments without a match are left out.
func (a SegmentCueAligner) Align(segments []corpus.Segment, pivotCues []corpus.Cue, minConfidence float64) ([]Link, error) {
	if len(segments) == 0 || len(pivotCues) == 0 {
		return nil, nil
	}
	sources := make([]string, len(segments))
	for i, seg := range segments {
		sources[i] = seg.Text
	}
	targets := make([]string, len(pivotCues))
	for i, cue := range pivotCues {
		targets[i] = cue.Text()
	}

	matches := monotoneMatch(sources, targets, a.Window, minConfidence)
	links := make([]Link, 0, len(matches))
	for _, m := range matches {
		seg, cue := segments[m.source], pivotCues[m.target]
		link, err := NewPivotLink(seg.EpisodeID, seg.ID, cue.ID, cue.Lang, Confidence(m.score))
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", seg.N, err)
		}
		links = append(links, link)
	}
	return links, nil
}
