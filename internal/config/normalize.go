package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tvcorpus/internal/language"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeAlignment(); err != nil {
		return err
	}
	c.Subtitles.DefaultFormat = strings.ToLower(strings.TrimSpace(c.Subtitles.DefaultFormat))
	if c.Subtitles.DefaultFormat == "" {
		c.Subtitles.DefaultFormat = defaultSubtitleFormat
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		if value, ok := os.LookupEnv(dataDirEnv); ok && strings.TrimSpace(value) != "" {
			c.Paths.DataDir = strings.TrimSpace(value)
		} else {
			c.Paths.DataDir = defaultDataDir
		}
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, defaultLogDirName)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ArtifactsDir) == "" {
		c.Paths.ArtifactsDir = filepath.Join(c.Paths.DataDir, defaultArtifactsDirName)
	}
	if c.Paths.ArtifactsDir, err = expandPath(c.Paths.ArtifactsDir); err != nil {
		return fmt.Errorf("paths.artifacts_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SubtitlesDir) == "" {
		c.Paths.SubtitlesDir = filepath.Join(c.Paths.DataDir, defaultSubtitlesDirName)
	}
	if c.Paths.SubtitlesDir, err = expandPath(c.Paths.SubtitlesDir); err != nil {
		return fmt.Errorf("paths.subtitles_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAlignment() error {
	pivot := strings.TrimSpace(c.Alignment.PivotLang)
	if pivot == "" {
		pivot = defaultPivotLang
	}
	normalized, err := language.Normalize(pivot)
	if err != nil {
		return fmt.Errorf("alignment.pivot_lang: %w", err)
	}
	c.Alignment.PivotLang = normalized

	targets, err := language.NormalizeList(c.Alignment.TargetLangs)
	if err != nil {
		return fmt.Errorf("alignment.target_langs: %w", err)
	}
	filtered := targets[:0]
	for _, lang := range targets {
		if lang == c.Alignment.PivotLang {
			continue
		}
		filtered = append(filtered, lang)
	}
	c.Alignment.TargetLangs = filtered

	if c.Alignment.SearchWindow == 0 {
		c.Alignment.SearchWindow = defaultSearchWindow
	}
	c.Alignment.SegmentKind = strings.ToLower(strings.TrimSpace(c.Alignment.SegmentKind))
	if c.Alignment.SegmentKind == "" {
		c.Alignment.SegmentKind = defaultSegmentKind
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
