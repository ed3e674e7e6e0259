package corpus

import (
	"fmt"
	"strings"
)

// SegmentKind distinguishes sentence-level from utterance-level segmentation.
type SegmentKind string

const (
	KindSentence  SegmentKind = "sentence"
	KindUtterance SegmentKind = "utterance"
)

// ParseSegmentKind validates a segment kind string.
func ParseSegmentKind(value string) (SegmentKind, error) {
	switch SegmentKind(strings.ToLower(strings.TrimSpace(value))) {
	case KindSentence:
		return KindSentence, nil
	case KindUtterance:
		return KindUtterance, nil
	default:
		return "", fmt.Errorf("unknown segment kind %q", value)
	}
}

// Segment is one ordered unit of the narrative transcript.
type Segment struct {
	ID              string
	EpisodeID       string
	Kind            SegmentKind
	N               int
	StartChar       int
	EndChar         int
	Text            string
	SpeakerExplicit string
}

// Cue is one timed subtitle line in a single language.
type Cue struct {
	ID        string
	EpisodeID string
	Lang      string
	N         int
	StartMs   int64
	EndMs     int64
	TextRaw   string
	TextClean string
}

// Text returns the cleaned text, falling back to the raw text.
func (c Cue) Text() string {
	if strings.TrimSpace(c.TextClean) != "" {
		return c.TextClean
	}
	return c.TextRaw
}

// DurationMs returns the cue duration, or 0 when the timing is unusable.
func (c Cue) DurationMs() int64 {
	if c.EndMs <= c.StartMs {
		return 0
	}
	return c.EndMs - c.StartMs
}

// Track is the on-disk subtitle file backing one language of an episode.
type Track struct {
	EpisodeID string
	Lang      string
	Format    string
	Path      string
}

// Character is an entry of the character catalog.
type Character struct {
	ID        string
	Canonical string
	Names     map[string]string
}

// CanonicalName returns the character's name in lang, falling back to the
// canonical name.
func (c Character) CanonicalName(lang string) string {
	if name := strings.TrimSpace(c.Names[lang]); name != "" {
		return name
	}
	return c.Canonical
}

// KnownNames lists every distinct name the character is known by.
func (c Character) KnownNames() []string {
	seen := make(map[string]struct{}, len(c.Names)+1)
	var names []string
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	add(c.Canonical)
	for _, name := range c.Names {
		add(name)
	}
	return names
}

// SourceType identifies what kind of record an assignment points at.
type SourceType string

const (
	SourceSegment SourceType = "segment"
	SourceCue     SourceType = "cue"
)

// ParseSourceType validates an assignment source type.
func ParseSourceType(value string) (SourceType, error) {
	switch SourceType(strings.ToLower(strings.TrimSpace(value))) {
	case SourceSegment:
		return SourceSegment, nil
	case SourceCue:
		return SourceCue, nil
	default:
		return "", fmt.Errorf("unknown assignment source type %q", value)
	}
}

// Assignment binds a segment or cue to a character.
type Assignment struct {
	EpisodeID   string
	SourceType  SourceType
	SourceID    string
	CharacterID string
}

// Assignments indexes an episode's character assignments for lookup.
type Assignments struct {
	segments map[string]string
	cues     map[string]string
}

// NewAssignments builds a lookup index. Later entries win on duplicates.
func NewAssignments(list []Assignment) Assignments {
	idx := Assignments{segments: map[string]string{}, cues: map[string]string{}}
	for _, a := range list {
		switch a.SourceType {
		case SourceSegment:
			idx.segments[a.SourceID] = a.CharacterID
		case SourceCue:
			idx.cues[a.SourceID] = a.CharacterID
		}
	}
	return idx
}

// Segment returns the character assigned to a segment.
func (a Assignments) Segment(segmentID string) (string, bool) {
	id, ok := a.segments[segmentID]
	return id, ok && id != ""
}

// Cue returns the character assigned to a cue.
func (a Assignments) Cue(cueID string) (string, bool) {
	id, ok := a.cues[cueID]
	return id, ok && id != ""
}
