package testsupport

import (
	"path/filepath"
	"testing"

	"tvcorpus/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.ArtifactsDir = filepath.Join(base, "data", "align")
	cfgVal.Paths.SubtitlesDir = filepath.Join(base, "data", "subtitles")
	cfgVal.Alignment.TargetLangs = []string{"fr"}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return builder.cfg
}

// WithTargetLangs overrides the default target languages.
func WithTargetLangs(langs ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Alignment.TargetLangs = langs
	}
}

// WithMinConfidence overrides the default confidence threshold.
func WithMinConfidence(value float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Alignment.MinConfidence = value
	}
}

// WithSubtitleFormat overrides the default subtitle format.
func WithSubtitleFormat(format string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Subtitles.DefaultFormat = format
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LogDir)
}
