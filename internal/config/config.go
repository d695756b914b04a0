package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/daanzu/speech-training-recorder/internal/apperr"
)

// EnvPrefix prefixes every environment variable that overrides a config value
const EnvPrefix = "RECORDER_"

// Config represents the complete recorder configuration
type Config struct {
	Recorder RecorderConfig `yaml:"recorder"`
	Audio    AudioConfig    `yaml:"audio"`
	HTTP     HTTPConfig     `yaml:"http"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// RecorderConfig contains the session and prompt settings
type RecorderConfig struct {
	SaveDir          string `yaml:"save_dir"`
	PromptsFile      string `yaml:"prompts_file"`
	PromptsCount     *int   `yaml:"prompts_count"` // nil selects every line
	PromptLenSoftMax int    `yaml:"prompt_len_soft_max"`
	Randomize        bool   `yaml:"randomize"`
	DropLastChunks   int    `yaml:"drop_last_chunks"`
	StripPunctuation bool   `yaml:"strip_punctuation"`
	MetadataFile     string `yaml:"metadata_file"`
}

// AudioConfig contains capture parameters
type AudioConfig struct {
	SampleRate      int `yaml:"sample_rate"`
	Channels        int `yaml:"channels"`
	BitDepth        int `yaml:"bit_depth"`
	FramesPerBuffer int `yaml:"frames_per_buffer"`
}

// HTTPConfig contains the optional status API configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Default returns the configuration used when no file overrides a value
func Default() *Config {
	count := 100
	return &Config{
		Recorder: RecorderConfig{
			SaveDir:          "../audio_data",
			PromptsCount:     &count,
			PromptLenSoftMax: 0,
			Randomize:        true,
			DropLastChunks:   3,
			MetadataFile:     "recorder.tsv",
		},
		Audio: AudioConfig{
			SampleRate:      16000,
			Channels:        1,
			BitDepth:        16,
			FramesPerBuffer: 1024,
		},
		HTTP: HTTPConfig{
			Port:    9090,
			Address: "127.0.0.1",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Load reads the configuration file over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperr.E(apperr.CodeConfiguration, "config.Load", fmt.Sprintf("failed to read config file %s", path), err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, apperr.E(apperr.CodeConfiguration, "config.Load", fmt.Sprintf("failed to parse config file %s", path), err)
		}
	}

	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, apperr.E(apperr.CodeConfiguration, "config.Load", "invalid environment override", err)
	}

	if err := config.Validate(); err != nil {
		return nil, apperr.E(apperr.CodeConfiguration, "config.Load", "config validation failed", err)
	}

	return config, nil
}

// LoadDotEnv loads variables from a .env file into the process environment.
// Variables already set are kept. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return apperr.E(apperr.CodeConfiguration, "config.LoadDotEnv", fmt.Sprintf("failed to load %s", path), err)
	}
	return nil
}

// ApplyEnv overrides values from RECORDER_* variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return "", false
		}
		return strings.TrimSpace(v), true
	}

	var errs []error
	str := func(name string, dst *string) {
		if v, ok := get(name); ok && v != "" {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := get(name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := get(name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	str("SAVE_DIR", &c.Recorder.SaveDir)
	str("PROMPTS_FILE", &c.Recorder.PromptsFile)
	if v, ok := get("PROMPTS_COUNT"); ok && v != "" {
		if strings.EqualFold(v, "all") {
			c.Recorder.PromptsCount = nil
		} else if n, err := strconv.Atoi(v); err != nil {
			errs = append(errs, fmt.Errorf("%sPROMPTS_COUNT: %w", EnvPrefix, err))
		} else {
			c.Recorder.PromptsCount = &n
		}
	}
	integer("PROMPT_LEN_SOFT_MAX", &c.Recorder.PromptLenSoftMax)
	boolean("RANDOMIZE", &c.Recorder.Randomize)
	integer("DROP_LAST_CHUNKS", &c.Recorder.DropLastChunks)
	boolean("STRIP_PUNCTUATION", &c.Recorder.StripPunctuation)
	str("METADATA_FILE", &c.Recorder.MetadataFile)

	integer("SAMPLE_RATE", &c.Audio.SampleRate)
	integer("CHANNELS", &c.Audio.Channels)
	integer("FRAMES_PER_BUFFER", &c.Audio.FramesPerBuffer)

	boolean("HTTP_ENABLED", &c.HTTP.Enabled)
	str("HTTP_ADDRESS", &c.HTTP.Address)
	integer("HTTP_PORT", &c.HTTP.Port)

	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("LOG_OUTPUT", &c.Logging.Output)

	return errors.Join(errs...)
}

// Validate performs validation of every section
func (c *Config) Validate() error {
	if err := c.Recorder.Validate(); err != nil {
		return fmt.Errorf("recorder config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates recorder configuration
func (r *RecorderConfig) Validate() error {
	if r.SaveDir == "" {
		return fmt.Errorf("save_dir cannot be empty")
	}

	if r.PromptsCount != nil && *r.PromptsCount < 1 {
		return fmt.Errorf("prompts_count must be at least 1 or null for all prompts, got %d", *r.PromptsCount)
	}

	if r.PromptLenSoftMax < 0 {
		return fmt.Errorf("prompt_len_soft_max cannot be negative, got %d", r.PromptLenSoftMax)
	}

	if r.DropLastChunks < 0 {
		return fmt.Errorf("drop_last_chunks cannot be negative, got %d", r.DropLastChunks)
	}

	if r.MetadataFile == "" || strings.ContainsAny(r.MetadataFile, `/\`) {
		return fmt.Errorf("metadata_file must be a plain file name, got '%s'", r.MetadataFile)
	}

	return nil
}

// CheckPaths verifies that the save directory and corpus file exist. It runs
// after flags are merged, before any device is opened.
func (r *RecorderConfig) CheckPaths() error {
	info, err := os.Stat(r.SaveDir)
	if err != nil {
		return apperr.E(apperr.CodeConfiguration, "config.CheckPaths", fmt.Sprintf("save directory %s not accessible", r.SaveDir), err)
	}
	if !info.IsDir() {
		return apperr.E(apperr.CodeConfiguration, "config.CheckPaths", fmt.Sprintf("save path %s is not a directory", r.SaveDir), nil)
	}

	if r.PromptsFile == "" {
		return apperr.E(apperr.CodeConfiguration, "config.CheckPaths", "prompts file not set", nil)
	}
	info, err = os.Stat(r.PromptsFile)
	if err != nil {
		return apperr.E(apperr.CodeConfiguration, "config.CheckPaths", fmt.Sprintf("prompts file %s not accessible", r.PromptsFile), err)
	}
	if info.IsDir() {
		return apperr.E(apperr.CodeConfiguration, "config.CheckPaths", fmt.Sprintf("prompts path %s is a directory", r.PromptsFile), nil)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %d", a.SampleRate)
	}

	if a.Channels < 1 || a.Channels > 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", a.Channels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", a.BitDepth)
	}

	if a.FramesPerBuffer < 64 {
		return fmt.Errorf("frames_per_buffer must be at least 64, got %d", a.FramesPerBuffer)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	if l.Output == "" {
		return fmt.Errorf("output cannot be empty")
	}

	if l.MaxSizeMB < 0 || l.MaxBackups < 0 {
		return fmt.Errorf("max_size_mb and max_backups cannot be negative")
	}

	return nil
}

// IsFile reports whether log output goes to a file rather than a standard stream
func (l *LoggingConfig) IsFile() bool {
	return l.Output != "stdout" && l.Output != "stderr"
}

// Addr returns the host:port the HTTP server listens on
func (h *HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Address, strconv.Itoa(h.Port))
}

// GetBufferDuration returns the audio time covered by one device callback
func (a *AudioConfig) GetBufferDuration() time.Duration {
	if a.SampleRate <= 0 {
		return 0
	}
	return time.Duration(a.FramesPerBuffer) * time.Second / time.Duration(a.SampleRate)
}

// GetDroppedDuration returns the approximate audio time trimmed from the end
// of each recording
func (c *Config) GetDroppedDuration() time.Duration {
	return time.Duration(c.Recorder.DropLastChunks) * c.Audio.GetBufferDuration()
}
