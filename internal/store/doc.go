// Package store persists the corpus and its alignment runs in SQLite.
//
// The corpus side holds segments, subtitle tracks with their cues, the
// character catalog, and character assignments. The alignment side holds
// runs and their link snapshots. Regenerating an episode's segments or
// replacing or removing one of its subtitle tracks deletes the episode's
// runs in the same transaction, since their links reference ids that are no
// longer meaningful.
//
// Every public method runs in its own transaction and retries on
// SQLITE_BUSY. BeginWrite exposes a longer-lived transaction for callers
// that must interleave file writes with row updates.
package store
