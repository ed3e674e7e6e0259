package subtitles

import (
	"fmt"
	"strconv"
	"strings"
)

// parseTimestamp reads "hh:mm:ss,mmm", "hh:mm:ss.mmm" or the WebVTT short
// form "mm:ss.mmm" into milliseconds.
func parseTimestamp(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	value = strings.ReplaceAll(value, ",", ".")
	clock, fraction, ok := strings.Cut(value, ".")
	if !ok || len(fraction) == 0 || len(fraction) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	parts := strings.Split(clock, ":")
	if len(parts) == 2 {
		parts = append([]string{"0"}, parts...)
	}
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(parts[0])
	minutes, errM := strconv.Atoi(parts[1])
	seconds, errS := strconv.Atoi(parts[2])
	millis, errMS := strconv.Atoi(fraction + strings.Repeat("0", 3-len(fraction)))
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	if hours < 0 || minutes < 0 || minutes > 59 || seconds < 0 || seconds > 59 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	return int64(hours*3600+minutes*60+seconds)*1000 + int64(millis), nil
}

// formatTimestamp renders milliseconds as "hh:mm:ss<sep>mmm".
func formatTimestamp(ms int64, sep byte) string {
	if ms < 0 {
		ms = 0
	}
	hours := ms / 3_600_000
	ms %= 3_600_000
	minutes := ms / 60_000
	ms %= 60_000
	secs := ms / 1_000
	millis := ms % 1_000
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", hours, minutes, secs, sep, millis)
}

// parseTiming reads a "start --> end" line. WebVTT cue settings after the
// end timestamp are ignored.
func parseTiming(line string) (int64, int64, error) {
	startText, rest, ok := strings.Cut(line, "-->")
	if !ok {
		return 0, 0, fmt.Errorf("missing --> in %q", line)
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return 0, 0, fmt.Errorf("missing end timestamp in %q", line)
	}
	start, err := parseTimestamp(startText)
	if err != nil {
		return 0, 0, err
	}
	end, err := parseTimestamp(fields[0])
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}
