// Package language normalizes the language codes attached to subtitle tracks,
// alignment runs, and character names.
//
// Every code that crosses a package boundary is reduced to its ISO 639-1 base
// (falling back to ISO 639-3 when no two-letter form exists) so "eng", "EN",
// "english" and "en-US" all key the same track.
package language
