// Package services defines shared utilities consumed by the alignment,
// grouping, and propagation components.
//
// Key responsibilities:
//   - Context helpers that stamp episode IDs, run IDs, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers can tell a
//     missing prerequisite from an unknown identifier or a failed file rewrite.
//
// Use these helpers when wiring new operations so error classification and
// observability stay uniform across the corpus tooling.
package services
