package config

const (
	defaultConfigPath       = "~/.config/tvcorpus/config.toml"
	defaultDataDir          = "~/.local/share/tvcorpus"
	defaultLogDirName       = "logs"
	defaultArtifactsDirName = "align"
	defaultSubtitlesDirName = "subtitles"
	defaultPivotLang        = "en"
	defaultMinConfidence    = 0.3
	defaultSearchWindow     = 20
	defaultSegmentKind      = "sentence"
	defaultSubtitleFormat   = "srt"
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	dataDirEnv              = "TVCORPUS_DATA_DIR"
)

// Default returns a Config populated with repository defaults. Directory
// fields left empty are derived from the data directory during normalization.
func Default() Config {
	return Config{
		Paths: Paths{},
		Alignment: Alignment{
			PivotLang:     defaultPivotLang,
			MinConfidence: defaultMinConfidence,
			SearchWindow:  defaultSearchWindow,
			SegmentKind:   defaultSegmentKind,
		},
		Subtitles: Subtitles{
			DefaultFormat: defaultSubtitleFormat,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
