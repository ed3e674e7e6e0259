// Package corpus defines the source records of the aligned corpus: narrative
// segments, subtitle cues, on-disk subtitle tracks, characters, and character
// assignments.
//
// Identifiers are deterministic. A segment id is derived from its episode,
// kind and ordinal, and a cue id from its episode, language and ordinal, so
// regenerating the same inputs yields the same ids.
package corpus
