package corpus

import (
	"fmt"
	"regexp"
	"strings"
)

var episodePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ValidateEpisodeID rejects episode ids that would break the composite ids
// built from them.
func ValidateEpisodeID(episodeID string) error {
	if !episodePattern.MatchString(episodeID) {
		return fmt.Errorf("invalid episode id %q", episodeID)
	}
	return nil
}

// SegmentID returns the deterministic id "{episode}:{kind}:{n}".
func SegmentID(episodeID string, kind SegmentKind, n int) string {
	return fmt.Sprintf("%s:%s:%d", episodeID, kind, n)
}

// CueID returns the deterministic id "{episode}:{lang}:{n}".
func CueID(episodeID, lang string, n int) string {
	return fmt.Sprintf("%s:%s:%d", episodeID, lang, n)
}

// CueLang extracts the language component of a cue id.
func CueLang(cueID string) (string, bool) {
	parts := strings.Split(cueID, ":")
	if len(parts) != 3 || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// NewSegments assigns ordinals and ids to ordered segment texts. Character
// offsets assume the texts are joined with a single separator character.
func NewSegments(episodeID string, kind SegmentKind, texts []string) []Segment {
	segments := make([]Segment, 0, len(texts))
	offset := 0
	for i, text := range texts {
		n := i + 1
		length := len([]rune(text))
		segments = append(segments, Segment{
			ID:        SegmentID(episodeID, kind, n),
			EpisodeID: episodeID,
			Kind:      kind,
			N:         n,
			StartChar: offset,
			EndChar:   offset + length,
			Text:      text,
		})
		offset += length + 1
	}
	return segments
}

// StampCues fills episode, language, ordinal and id on parsed cues, keeping
// their order.
func StampCues(episodeID, lang string, cues []Cue) []Cue {
	out := make([]Cue, len(cues))
	for i, cue := range cues {
		cue.EpisodeID = episodeID
		cue.Lang = lang
		cue.N = i + 1
		cue.ID = CueID(episodeID, lang, cue.N)
		if cue.TextClean == "" {
			cue.TextClean = cue.TextRaw
		}
		out[i] = cue
	}
	return out
}
