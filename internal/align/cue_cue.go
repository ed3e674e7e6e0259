package align

import (
	"fmt"

	"tvcorpus/internal/corpus"
)

// CueCueAligner matches pivot cues to the cues of one target language.
type CueCueAligner struct {
	Window int
}

// Align returns target links and the strategy that produced them. Time
// overlap runs first unless useSimilarity is set, in which case similarity
// runs first. Positional pairing is used only when both produced nothing.
func (a CueCueAligner) Align(pivot, target []corpus.Cue, minConfidence float64, useSimilarity bool) ([]Link, Strategy, error) {
	if len(pivot) == 0 || len(target) == 0 {
		return nil, StrategyNone, nil
	}

	strategies := []Strategy{StrategyTime, StrategySimilarity}
	if useSimilarity {
		strategies = []Strategy{StrategySimilarity, StrategyTime}
	}
	for _, strategy := range strategies {
		var (
			links []Link
			err   error
		)
		switch strategy {
		case StrategyTime:
			if !timed(pivot) || !timed(target) {
				continue
			}
			links, err = alignByTime(pivot, target)
		case StrategySimilarity:
			links, err = a.alignBySimilarity(pivot, target, minConfidence)
		}
		if err != nil {
			return nil, StrategyNone, err
		}
		if len(links) > 0 {
			return links, strategy, nil
		}
	}

	links, err := alignByOrder(pivot, target)
	if err != nil {
		return nil, StrategyNone, err
	}
	return links, StrategyOrder, nil
}

// timed reports whether every cue has a positive duration.
func timed(cues []corpus.Cue) bool {
	for _, cue := range cues {
		if cue.DurationMs() <= 0 {
			return false
		}
	}
	return true
}

// alignByTime links each pivot cue to the target cue with the largest overlap.
// Confidence is the overlapped fraction of the pivot cue. Any overlap yields a
// link regardless of the confidence threshold.
func alignByTime(pivot, target []corpus.Cue) ([]Link, error) {
	links := make([]Link, 0, len(pivot))
	for _, p := range pivot {
		best := -1
		var bestOverlap int64
		for j, t := range target {
			overlap := min(p.EndMs, t.EndMs) - max(p.StartMs, t.StartMs)
			if overlap <= 0 {
				continue
			}
			if best < 0 || overlap > bestOverlap || (overlap == bestOverlap && earlier(t, target[best])) {
				best, bestOverlap = j, overlap
			}
		}
		if best < 0 {
			continue
		}
		confidence := min(float64(bestOverlap)/float64(p.DurationMs()), 1)
		link, err := NewTargetLink(p.EpisodeID, p.ID, target[best].ID, target[best].Lang, Confidence(confidence))
		if err != nil {
			return nil, fmt.Errorf("pivot cue %d: %w", p.N, err)
		}
		links = append(links, link)
	}
	return links, nil
}

func earlier(a, b corpus.Cue) bool {
	if a.StartMs != b.StartMs {
		return a.StartMs < b.StartMs
	}
	return a.N < b.N
}

func (a CueCueAligner) alignBySimilarity(pivot, target []corpus.Cue, minConfidence float64) ([]Link, error) {
	sources := make([]string, len(pivot))
	for i, cue := range pivot {
		sources[i] = cue.Text()
	}
	targets := make([]string, len(target))
	for i, cue := range target {
		targets[i] = cue.Text()
	}
	matches := monotoneMatch(sources, targets, a.Window, minConfidence)
	links := make([]Link, 0, len(matches))
	for _, m := range matches {
		p, t := pivot[m.source], target[m.target]
		link, err := NewTargetLink(p.EpisodeID, p.ID, t.ID, t.Lang, Confidence(m.score))
		if err != nil {
			return nil, fmt.Errorf("pivot cue %d: %w", p.N, err)
		}
		links = append(links, link)
	}
	return links, nil
}

// alignByOrder pairs cues positionally. Confidence stays unset.
func alignByOrder(pivot, target []corpus.Cue) ([]Link, error) {
	n := min(len(pivot), len(target))
	links := make([]Link, 0, n)
	for i := range n {
		link, err := NewTargetLink(pivot[i].EpisodeID, pivot[i].ID, target[i].ID, target[i].Lang, nil)
		if err != nil {
			return nil, fmt.Errorf("pivot cue %d: %w", pivot[i].N, err)
		}
		links = append(links, link)
	}
	return links, nil
}
