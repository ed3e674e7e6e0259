// Package grouping derives presentation views from an alignment run.
//
// A Grouping merges consecutive units (a pivot link with its segment, pivot
// cue and linked target cues) that resolve to the same speaker. Speakers come
// from character assignments on the segment, then the pivot cue, then the
// first assigned target cue in link order, and finally the segment's raw
// speaker label. Groupings never modify source records; they are cached as
// documents keyed by run revision and assignment digest and regenerated when
// the cache is stale or unreadable.
//
// The parallel concordance lists one row per segment with the texts linked to
// it in every language.
package grouping
