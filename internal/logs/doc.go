// Package logs reads the tvcorpus log file for the CLI.
//
// It returns the last N lines with bounded memory, optionally keeping only
// lines that carry a given episode, run or correlation id, and follows the
// file for new lines until the caller's context ends.
package logs
