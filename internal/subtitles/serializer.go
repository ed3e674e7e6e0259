package subtitles

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"tvcorpus/internal/corpus"
	"tvcorpus/internal/textutil"
)

const (
	FormatSRT = "srt"
	FormatVTT = "vtt"
)

// Serializer renders cues as the text of a subtitle file.
type Serializer interface {
	Format() string
	CuesToText(cues []corpus.Cue) (string, error)
}

// SRT serializes SubRip tracks.
type SRT struct{}

// VTT serializes WebVTT tracks.
type VTT struct{}

func (SRT) Format() string { return FormatSRT }

func (VTT) Format() string { return FormatVTT }

// CuesToText renders cues as SubRip, renumbering from 1.
func (SRT) CuesToText(cues []corpus.Cue) (string, error) {
	var sb strings.Builder
	for i, cue := range cues {
		text, err := cueBody(cue)
		if err != nil {
			return "", err
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString("\n")
		sb.WriteString(formatTimestamp(cue.StartMs, ','))
		sb.WriteString(" --> ")
		sb.WriteString(formatTimestamp(cue.EndMs, ','))
		sb.WriteString("\n")
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// CuesToText renders cues as WebVTT.
func (VTT) CuesToText(cues []corpus.Cue) (string, error) {
	var sb strings.Builder
	sb.WriteString("WEBVTT\n")
	for _, cue := range cues {
		text, err := cueBody(cue)
		if err != nil {
			return "", err
		}
		sb.WriteString("\n")
		sb.WriteString(formatTimestamp(cue.StartMs, '.'))
		sb.WriteString(" --> ")
		sb.WriteString(formatTimestamp(cue.EndMs, '.'))
		sb.WriteString("\n")
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// cueBody returns the text to write for a cue. Blank lines would end the
// block early, so they are removed.
func cueBody(cue corpus.Cue) (string, error) {
	if cue.StartMs < 0 || cue.EndMs < cue.StartMs {
		return "", fmt.Errorf("cue %s: invalid timing %d-%d", cue.ID, cue.StartMs, cue.EndMs)
	}
	lines := strings.Split(strings.ReplaceAll(cue.Text(), "\r\n", "\n"), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			kept = append(kept, line)
		}
	}
	if len(kept) == 0 {
		return "", fmt.Errorf("cue %s: empty text", cue.ID)
	}
	return strings.Join(kept, "\n"), nil
}

// ForFormat returns the serializer for a format name.
func ForFormat(format string) (Serializer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatSRT:
		return SRT{}, nil
	case FormatVTT:
		return VTT{}, nil
	default:
		return nil, fmt.Errorf("unsupported subtitle format %q", format)
	}
}

// Parse reads a track in the named format.
func Parse(format string, data []byte) ([]corpus.Cue, ParseStats, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatSRT:
		return ParseSRT(data)
	case FormatVTT:
		return ParseVTT(data)
	default:
		return nil, ParseStats{}, fmt.Errorf("unsupported subtitle format %q", format)
	}
}

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (string, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	switch ext {
	case FormatSRT, FormatVTT:
		return ext, nil
	default:
		return "", fmt.Errorf("cannot infer subtitle format from %q", filepath.Base(path))
	}
}

// TrackPath is where a managed track file for an episode language lives.
func TrackPath(dir, episodeID, lang, format string) string {
	return filepath.Join(dir, textutil.SanitizeToken(episodeID), textutil.SanitizeToken(lang)+"."+strings.ToLower(format))
}
