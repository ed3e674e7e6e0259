package language

import (
	"fmt"
	"strings"

	xlanguage "golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// legacy covers bibliographic ISO 639-2 codes and English words that tag
// parsing does not accept but subtitle file names commonly carry.
var legacy = map[string]string{
	"english":    "en",
	"french":     "fr",
	"fre":        "fr",
	"german":     "de",
	"ger":        "de",
	"spanish":    "es",
	"italian":    "it",
	"portuguese": "pt",
	"dutch":      "nl",
	"dut":        "nl",
	"chinese":    "zh",
	"chi":        "zh",
	"japanese":   "ja",
	"korean":     "ko",
	"russian":    "ru",
}

// Normalize reduces code to its canonical base language subtag.
func Normalize(code string) (string, error) {
	cleaned := strings.ToLower(strings.TrimSpace(code))
	if cleaned == "" {
		return "", fmt.Errorf("empty language code")
	}
	if mapped, ok := legacy[cleaned]; ok {
		return mapped, nil
	}
	tag, err := xlanguage.Parse(strings.ReplaceAll(cleaned, "_", "-"))
	if err != nil {
		return "", fmt.Errorf("parse language %q: %w", code, err)
	}
	base, conf := tag.Base()
	if conf == xlanguage.No {
		return "", fmt.Errorf("language %q has no base subtag", code)
	}
	return base.String(), nil
}

// NormalizeList normalizes codes, dropping blanks and duplicates while
// preserving first-seen order.
func NormalizeList(codes []string) ([]string, error) {
	out := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		if strings.TrimSpace(code) == "" {
			continue
		}
		normalized, err := Normalize(code)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out, nil
}

// DisplayName returns the English name of the language, or the upper-cased
// code when it cannot be resolved.
func DisplayName(code string) string {
	normalized, err := Normalize(code)
	if err != nil {
		if strings.TrimSpace(code) == "" {
			return "Unknown"
		}
		return strings.ToUpper(strings.TrimSpace(code))
	}
	name := display.English.Languages().Name(xlanguage.Make(normalized))
	if name == "" {
		return strings.ToUpper(normalized)
	}
	return name
}
