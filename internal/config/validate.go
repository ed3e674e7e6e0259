package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAlignment(); err != nil {
		return err
	}
	if err := c.validateSubtitles(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateAlignment() error {
	if c.Alignment.MinConfidence < 0 || c.Alignment.MinConfidence > 1 {
		return errors.New("alignment.min_confidence must be between 0 and 1")
	}
	if c.Alignment.SearchWindow < 1 {
		return errors.New("alignment.search_window must be at least 1")
	}
	switch c.Alignment.SegmentKind {
	case "sentence", "utterance":
	default:
		return fmt.Errorf("alignment.segment_kind: unsupported value %q (expected sentence or utterance)", c.Alignment.SegmentKind)
	}
	return nil
}

func (c *Config) validateSubtitles() error {
	switch c.Subtitles.DefaultFormat {
	case "srt", "vtt":
		return nil
	default:
		return fmt.Errorf("subtitles.default_format: unsupported value %q (expected srt or vtt)", c.Subtitles.DefaultFormat)
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
