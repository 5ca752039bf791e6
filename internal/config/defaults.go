package config

const (
	defaultWorkDir        = "~/.local/share/soundscribe/work"
	defaultOutputDir      = "~/.local/share/soundscribe/audio"
	defaultLogDir         = "~/.local/share/soundscribe/logs"
	defaultDataDir        = "~/.local/share/soundscribe/data"
	defaultPromptsPath    = "~/.config/soundscribe/prompts.toml"
	defaultBitrateKbps    = 64
	defaultSampleRate     = 16000
	defaultSegmentSeconds = 30.0
	defaultFFmpegBinary   = "ffmpeg"
	defaultProbeBinary    = "ffprobe"
	defaultConvertTimeout = 1800
	defaultGenerationURL  = "https://generativelanguage.googleapis.com/v1beta/models"
	defaultModel          = "gemini-2.0-flash"
	defaultGenTimeout     = 120
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:     defaultWorkDir,
			OutputDir:   defaultOutputDir,
			LogDir:      defaultLogDir,
			DataDir:     defaultDataDir,
			PromptsPath: defaultPromptsPath,
		},
		Audio: Audio{
			BitrateKbps:    defaultBitrateKbps,
			SampleRate:     defaultSampleRate,
			SegmentSeconds: defaultSegmentSeconds,
		},
		FFmpeg: FFmpeg{
			Binary:         defaultFFmpegBinary,
			ProbeBinary:    defaultProbeBinary,
			ConvertTimeout: defaultConvertTimeout,
		},
		Generation: Generation{
			BaseURL:        defaultGenerationURL,
			Model:          defaultModel,
			TimeoutSeconds: defaultGenTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
