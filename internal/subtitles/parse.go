package subtitles

import (
	"fmt"
	"regexp"
	"strings"

	"tvcorpus/internal/corpus"
)

var blankLines = regexp.MustCompile(`\n[ \t]*\n`)

// ParseStats reports what parsing skipped.
type ParseStats struct {
	Blocks      int
	Malformed   int
	Advertising int
}

func splitBlocks(data []byte) []string {
	content := strings.TrimPrefix(string(data), "\ufeff")
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	return blankLines.Split(content, -1)
}

// ParseSRT reads a SubRip track. Cues come back in file order without ids;
// corpus.StampCues assigns them.
func ParseSRT(data []byte) ([]corpus.Cue, ParseStats, error) {
	return parseBlocks(splitBlocks(data), false)
}

// ParseVTT reads a WebVTT track.
func ParseVTT(data []byte) ([]corpus.Cue, ParseStats, error) {
	blocks := splitBlocks(data)
	if len(blocks) == 0 || !strings.HasPrefix(strings.TrimSpace(blocks[0]), "WEBVTT") {
		return nil, ParseStats{}, fmt.Errorf("missing WEBVTT header")
	}
	return parseBlocks(blocks[1:], true)
}

func parseBlocks(blocks []string, vtt bool) ([]corpus.Cue, ParseStats, error) {
	var (
		cues  []corpus.Cue
		stats ParseStats
	)
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		if vtt && isVTTMetadata(block) {
			continue
		}
		stats.Blocks++
		lines := strings.Split(block, "\n")
		timing := -1
		for i, line := range lines {
			if strings.Contains(line, "-->") {
				timing = i
				break
			}
		}
		// SubRip puts at most an index before the timing line; WebVTT an
		// optional identifier.
		if timing < 0 || timing > 1 {
			stats.Malformed++
			continue
		}
		start, end, err := parseTiming(lines[timing])
		if err != nil {
			stats.Malformed++
			continue
		}
		raw := strings.TrimSpace(strings.Join(lines[timing+1:], "\n"))
		if raw == "" {
			stats.Malformed++
			continue
		}
		if IsAdvertisement(raw) {
			stats.Advertising++
			continue
		}
		cues = append(cues, corpus.Cue{
			StartMs:   start,
			EndMs:     end,
			TextRaw:   raw,
			TextClean: CleanText(raw),
		})
	}
	if stats.Blocks > 0 && len(cues) == 0 && stats.Malformed == stats.Blocks {
		return nil, stats, fmt.Errorf("no valid cues in %d blocks", stats.Blocks)
	}
	return cues, stats, nil
}

func isVTTMetadata(block string) bool {
	for _, prefix := range []string{"NOTE", "STYLE", "REGION"} {
		if block == prefix || strings.HasPrefix(block, prefix+" ") || strings.HasPrefix(block, prefix+"\n") {
			return true
		}
	}
	return false
}
