package subtitles

import (
	"regexp"
	"strings"
)

var adPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)opensubtitles`),
	regexp.MustCompile(`(?i)subtitles? by`),
	regexp.MustCompile(`(?i)synced? and corrected`),
	regexp.MustCompile(`(?i)advertise (your|yours?) product`),
	regexp.MustCompile(`(?i)http(s)?://`),
	regexp.MustCompile(`(?i)\bwww\.`),
	regexp.MustCompile(`(?i)\bsubscene\b`),
	regexp.MustCompile(`(?i)\byts\b`),
	regexp.MustCompile(`(?i)\byify\b`),
}

var (
	markupTag     = regexp.MustCompile(`</?[A-Za-z][^>]*>|</?[0-9.:]+>`)
	assOverride   = regexp.MustCompile(`\{\\[^}]*\}`)
	inlineSpacing = regexp.MustCompile(`[ \t]+`)
)

// IsAdvertisement reports whether cue text is an injected advertisement.
func IsAdvertisement(text string) bool {
	payload := strings.TrimSpace(strings.ToLower(strings.ReplaceAll(text, "\n", " ")))
	if payload == "" {
		return false
	}
	for _, pattern := range adPatterns {
		if pattern.MatchString(payload) {
			return true
		}
	}
	return false
}

// CleanText strips formatting markup from cue text and normalizes spacing.
// Line breaks are kept; blank lines are dropped.
func CleanText(raw string) string {
	text := assOverride.ReplaceAllString(raw, "")
	text = markupTag.ReplaceAllString(text, "")
	text = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&nbsp;", " ").Replace(text)
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(inlineSpacing.ReplaceAllString(line, " "))
		if line == "" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
