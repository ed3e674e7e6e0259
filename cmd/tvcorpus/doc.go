// Command tvcorpus manages the aligned TV corpus: it imports segments,
// subtitle tracks and character data, computes and reviews alignment runs,
// produces grouped and concordance views of a run, and writes resolved
// character names back into cues and subtitle files.
//
// Every command opens the store for the duration of one invocation. Errors
// are printed with their kind (validation, not_found, precondition, conflict,
// canceled, io) and exit with status 1.
package main
