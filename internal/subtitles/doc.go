// Package subtitles parses and serializes SubRip (.srt) and WebVTT (.vtt)
// subtitle tracks.
//
// Parsing turns a track into ordered corpus cues, keeping the original text
// as TextRaw and a markup-free rendition as TextClean. Serialization is the
// reverse and is what the character propagator uses to rewrite track files
// after cue text changes. Advertisement cues commonly injected by subtitle
// sites are dropped on import.
package subtitles
