package textutil

import (
	"math"
	"strings"
	"testing"
)

func fingerprint(text string) *Fingerprint {
	return fingerprintFromTokens(strings.Fields(Normalize(text)))
}

func TestCosineSimilarityNil(t *testing.T) {
	tests := []struct {
		name string
		a    *Fingerprint
		b    *Fingerprint
	}{
		{"both nil", nil, nil},
		{"a nil", nil, fingerprint("hello world")},
		{"b nil", fingerprint("hello world"), nil},
		{"zero norm", &Fingerprint{tokens: map[string]float64{}}, fingerprint("hello world")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CosineSimilarity(tt.a, tt.b); got != 0 {
				t.Errorf("CosineSimilarity() = %v, want 0", got)
			}
		})
	}
}

func TestCosineSimilarityIdentical(t *testing.T) {
	text := "The quick brown fox jumps over the lazy dog"
	got := CosineSimilarity(fingerprint(text), fingerprint(text))
	if math.Abs(got-1) > 1e-9 {
		t.Errorf("CosineSimilarity(identical) = %v, want 1.0", got)
	}
}

func TestCosineSimilarityPartialOverlap(t *testing.T) {
	a := fingerprint("the quick brown fox")
	b := fingerprint("the slow brown cat")

	got := CosineSimilarity(a, b)
	if got <= 0 || got >= 1 {
		t.Errorf("CosineSimilarity(partial) = %v, want between 0 and 1", got)
	}
	if back := CosineSimilarity(b, a); back != got {
		t.Errorf("CosineSimilarity not symmetric: (%v, %v)", got, back)
	}
}

func TestFingerprintNorm(t *testing.T) {
	// hello:2, world:1 -> sqrt(5)
	fp := fingerprint("Hello hello, world")
	if fp == nil {
		t.Fatal("expected fingerprint")
	}
	if math.Abs(fp.norm-math.Sqrt(5)) > 0.0001 {
		t.Errorf("norm = %v, want %v", fp.norm, math.Sqrt(5))
	}
	if len(fp.tokens) != 2 {
		t.Errorf("unique tokens = %d, want 2", len(fp.tokens))
	}
	if fingerprint("?!") != nil {
		t.Error("expected nil for text without tokens")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Hello world", "hello world"},
		{"  Hello,   world!!  ", "hello world"},
		{"- Où est-il ?", "ou est il"},
		{"<i>...</i>", "i i"},
		{"", ""},
		{"?!", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.input); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSimilarity(t *testing.T) {
	if got := Similarity("Hello world", "hello, WORLD!"); got != 1 {
		t.Fatalf("expected equal text to score 1, got %v", got)
	}
	if got := Similarity("Café", "cafe"); got != 1 {
		t.Fatalf("expected folded text to score 1, got %v", got)
	}
	if got := Similarity("", "hello"); got != 0 {
		t.Fatalf("expected empty text to score 0, got %v", got)
	}
	close := Similarity("I never said that", "I never said this")
	far := Similarity("I never said that", "Pass me the salt")
	if close <= far {
		t.Fatalf("expected closer text to score higher: close=%v far=%v", close, far)
	}
	if close < 0 || close > 1 || far < 0 || far > 1 {
		t.Fatalf("scores out of range: %v %v", close, far)
	}
	if a, b := Similarity("Oh no", "oh noo"), Similarity("oh noo", "Oh no"); a != b {
		t.Fatalf("Similarity not symmetric: %v vs %v", a, b)
	}
}

func TestBigramDice(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"night", "nacht", 0.25},
		{"ab", "ab", 1},
		{"a", "a", 1},
		{"a", "b", 0},
		{"", "", 0},
		{"ab cd", "abcd", 1},
	}
	for _, tt := range tests {
		if got := BigramDice(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("BigramDice(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestFoldKey(t *testing.T) {
	if FoldKey("  Monica   Geller ") != FoldKey("MONICA GELLER") {
		t.Fatal("expected case and spacing to fold to the same key")
	}
	if FoldKey("   ") != "" {
		t.Fatal("expected blank label to fold to empty key")
	}
}
