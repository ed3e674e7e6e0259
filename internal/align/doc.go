// Package align holds the alignment records and the two pure aligners.
//
// SegmentCueAligner binds narrative segments to pivot-language cues by text
// similarity under an ordering constraint. CueCueAligner binds pivot cues to
// the cues of a target language by time overlap, text similarity, or, as a
// last resort, position. Neither aligner touches storage; they return link
// records without run or link ids, which the run service assigns.
package align
