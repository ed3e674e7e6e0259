// Package alignment orchestrates alignment runs for an episode.
//
// A run aligns the episode's narrative segments to its pivot-language cues and
// then each target language's cues to the pivot cues, persisting the run and
// its full link set in one transaction. The service also owns the review API
// (status toggles and manual cue edits), run deletion, and the invalidation
// rule: replacing segments or cues, or removing a track, deletes every run of
// the episode together with its on-disk documents.
//
// Batch alignment takes an advisory file lock so two batch writers never
// interleave, and checks for cancellation between episodes.
package alignment
