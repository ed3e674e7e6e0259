package align

import "tvcorpus/internal/textutil"

// DefaultWindow is the number of candidate cues scanned ahead of the cursor.
const DefaultWindow = 20

type match struct {
	source int
	target int
	score  float64
}

// monotoneMatch pairs each source text with the best-scoring target text in a
// window starting at the last bound target. Bound target indexes never
// decrease, equal scores keep the earliest target, and a miss leaves the
// cursor where it was. Each consecutive miss widens the next scan by another
// window so the matcher can recover after the source skips many targets.
func monotoneMatch(sources, targets []string, window int, minConfidence float64) []match {
	if window <= 0 {
		window = DefaultWindow
	}
	matches := make([]match, 0, len(sources))
	cursor, misses := 0, 0
	for i, source := range sources {
		best, bestScore := -1, 0.0
		end := min(cursor+window*(misses+1), len(targets))
		for j := cursor; j < end; j++ {
			score := textutil.Similarity(source, targets[j])
			if score > bestScore {
				best, bestScore = j, score
			}
		}
		if best < 0 || bestScore < minConfidence {
			misses++
			continue
		}
		matches = append(matches, match{source: i, target: best, score: bestScore})
		cursor, misses = best, 0
	}
	return matches
}
