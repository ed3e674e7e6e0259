// Package textutil provides text processing utilities for normalization,
// similarity scoring, and filename sanitization.
//
// The primary use cases are:
//   - Folding subtitle and transcript text into a comparable form
//   - Scoring two lines of dialogue for the aligners
//   - Sanitizing identifiers for safe filesystem use
//
// Normalization strips diacritics, lowercases, and collapses punctuation to
// single spaces. Similarity is the larger of a token cosine score and a
// character bigram Dice coefficient, so short lines still score sensibly.
package textutil
