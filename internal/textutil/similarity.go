package textutil

import "strings"

// CosineSimilarity computes the cosine similarity between two fingerprints.
// Returns 0 if either fingerprint is nil or has zero norm.
func CosineSimilarity(a, b *Fingerprint) float64 {
	if a == nil || b == nil || a.norm == 0 || b.norm == 0 {
		return 0
	}
	var dot float64
	for token, count := range a.tokens {
		if other, ok := b.tokens[token]; ok {
			dot += count * other
		}
	}
	if dot == 0 {
		return 0
	}
	return dot / (a.norm * b.norm)
}

// Similarity scores two lines of text in [0, 1]. Texts that normalize to the
// same non-empty string score exactly 1; empty text scores 0.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	score := CosineSimilarity(fingerprintFromTokens(strings.Fields(na)), fingerprintFromTokens(strings.Fields(nb)))
	if dice := BigramDice(na, nb); dice > score {
		score = dice
	}
	if score > 1 {
		score = 1
	}
	return score
}

// BigramDice computes the Dice coefficient over character bigrams of the
// inputs with whitespace removed. Inputs shorter than two characters only
// match when equal.
func BigramDice(a, b string) float64 {
	ra := []rune(strings.Join(strings.Fields(a), ""))
	rb := []rune(strings.Join(strings.Fields(b), ""))
	if len(ra) < 2 || len(rb) < 2 {
		if len(ra) > 0 && string(ra) == string(rb) {
			return 1
		}
		return 0
	}
	counts := make(map[[2]rune]int, len(ra)-1)
	for i := 0; i+1 < len(ra); i++ {
		counts[[2]rune{ra[i], ra[i+1]}]++
	}
	shared := 0
	for i := 0; i+1 < len(rb); i++ {
		key := [2]rune{rb[i], rb[i+1]}
		if counts[key] > 0 {
			counts[key]--
			shared++
		}
	}
	total := (len(ra) - 1) + (len(rb) - 1)
	return 2 * float64(shared) / float64(total)
}
