package textutil

import "testing"

func TestSanitizeToken(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"S01E07", "S01E07"},
		{"S01E07:2026-01-02T03:04:05.000000006Z", "S01E07_2026-01-02T03_04_05.000000006Z"},
		{"../etc/passwd", "etc_passwd"},
		{"", "unknown"},
		{"///", "unknown"},
	}
	for _, tt := range tests {
		if got := SanitizeToken(tt.input); got != tt.want {
			t.Errorf("SanitizeToken(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
