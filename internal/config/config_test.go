package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/daanzu/speech-training-recorder/internal/apperr"
)

func intPtr(n int) *int { return &n }

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "defaults are valid",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name:        "all prompts",
			mutate:      func(c *Config) { c.Recorder.PromptsCount = nil },
			expectError: false,
		},
		{
			name:        "zero prompts",
			mutate:      func(c *Config) { c.Recorder.PromptsCount = intPtr(0) },
			expectError: true,
			errorMsg:    "prompts_count must be at least 1",
		},
		{
			name:        "negative soft max",
			mutate:      func(c *Config) { c.Recorder.PromptLenSoftMax = -5 },
			expectError: true,
			errorMsg:    "prompt_len_soft_max",
		},
		{
			name:        "negative drop count",
			mutate:      func(c *Config) { c.Recorder.DropLastChunks = -1 },
			expectError: true,
			errorMsg:    "drop_last_chunks",
		},
		{
			name:        "metadata file with directory",
			mutate:      func(c *Config) { c.Recorder.MetadataFile = "logs/recorder.tsv" },
			expectError: true,
			errorMsg:    "metadata_file",
		},
		{
			name:        "empty save dir",
			mutate:      func(c *Config) { c.Recorder.SaveDir = "" },
			expectError: true,
			errorMsg:    "save_dir cannot be empty",
		},
		{
			name:        "24-bit audio",
			mutate:      func(c *Config) { c.Audio.BitDepth = 24 },
			expectError: true,
			errorMsg:    "bit_depth must be 16",
		},
		{
			name:        "sample rate too low",
			mutate:      func(c *Config) { c.Audio.SampleRate = 4000 },
			expectError: true,
			errorMsg:    "sample_rate",
		},
		{
			name:        "tiny device buffer",
			mutate:      func(c *Config) { c.Audio.FramesPerBuffer = 16 },
			expectError: true,
			errorMsg:    "frames_per_buffer",
		},
		{
			name: "invalid http port when enabled",
			mutate: func(c *Config) {
				c.HTTP.Enabled = true
				c.HTTP.Port = 70000
			},
			expectError: true,
			errorMsg:    "http port must be between 1 and 65535",
		},
		{
			name:        "invalid http port when disabled",
			mutate:      func(c *Config) { c.HTTP.Port = 70000 },
			expectError: false,
		},
		{
			name:        "unknown log level",
			mutate:      func(c *Config) { c.Logging.Level = "verbose" },
			expectError: true,
			errorMsg:    "level must be one of",
		},
		{
			name:        "unknown log format",
			mutate:      func(c *Config) { c.Logging.Format = "xml" },
			expectError: true,
			errorMsg:    "format must be 'json' or 'text'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(config)
			err := config.Validate()
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		errorMsg    string
		check       func(t *testing.T, c *Config)
	}{
		{
			name: "valid config file",
			configYAML: `
recorder:
  save_dir: "/data/audio"
  prompts_file: "/data/prompts.txt"
  prompts_count: 25
  prompt_len_soft_max: 80
  randomize: false
audio:
  sample_rate: 44100
  frames_per_buffer: 512
logging:
  level: "debug"
  format: "json"
`,
			check: func(t *testing.T, c *Config) {
				if c.Recorder.SaveDir != "/data/audio" {
					t.Errorf("Expected save_dir /data/audio, got %s", c.Recorder.SaveDir)
				}
				if c.Recorder.PromptsCount == nil || *c.Recorder.PromptsCount != 25 {
					t.Errorf("Expected prompts_count 25, got %v", c.Recorder.PromptsCount)
				}
				if c.Recorder.Randomize {
					t.Error("Expected randomize false")
				}
				if c.Audio.SampleRate != 44100 {
					t.Errorf("Expected sample rate 44100, got %d", c.Audio.SampleRate)
				}
				// Unset keys keep their defaults
				if c.Audio.Channels != 1 || c.Audio.BitDepth != 16 {
					t.Errorf("Expected default mono 16-bit, got %d channels %d bits", c.Audio.Channels, c.Audio.BitDepth)
				}
				if c.Recorder.DropLastChunks != 3 {
					t.Errorf("Expected default drop_last_chunks 3, got %d", c.Recorder.DropLastChunks)
				}
				if c.Recorder.MetadataFile != "recorder.tsv" {
					t.Errorf("Expected default metadata file, got %s", c.Recorder.MetadataFile)
				}
			},
		},
		{
			name: "null prompts count selects all",
			configYAML: `
recorder:
  prompts_count: null
`,
			check: func(t *testing.T, c *Config) {
				if c.Recorder.PromptsCount != nil {
					t.Errorf("Expected nil prompts_count, got %d", *c.Recorder.PromptsCount)
				}
			},
		},
		{
			name: "missing prompts count keeps default",
			configYAML: `
recorder:
  randomize: true
`,
			check: func(t *testing.T, c *Config) {
				if c.Recorder.PromptsCount == nil || *c.Recorder.PromptsCount != 100 {
					t.Errorf("Expected default prompts_count 100, got %v", c.Recorder.PromptsCount)
				}
			},
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
audio:
  sample_rate: invalid_number
`,
			expectError: true,
			errorMsg:    "failed to parse",
		},
		{
			name: "invalid value",
			configYAML: `
recorder:
  drop_last_chunks: -2
`,
			expectError: true,
			errorMsg:    "drop_last_chunks cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tempDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.configYAML), 0644); err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			config, err := Load(configPath)

			if tt.expectError {
				if err == nil {
					t.Fatalf("Expected error but got none")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
				if !apperr.IsCode(err, apperr.CodeConfiguration) {
					t.Errorf("Expected configuration error, got %v", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if config == nil {
				t.Fatal("Expected config but got nil")
			}
			tt.check(t, config)
		})
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("Expected error for nonexistent file")
	}
	if !apperr.IsCode(err, apperr.CodeConfiguration) {
		t.Errorf("Expected configuration error, got %v", err)
	}
}

func TestConfigLoadWithoutFile(t *testing.T) {
	config, err := Load("")
	if err != nil {
		t.Fatalf("Expected defaults without a file, got: %v", err)
	}
	if config.Audio.SampleRate != 16000 {
		t.Errorf("Expected default sample rate 16000, got %d", config.Audio.SampleRate)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"RECORDER_SAVE_DIR":          "/tmp/rec",
		"RECORDER_PROMPTS_COUNT":     "all",
		"RECORDER_RANDOMIZE":         "false",
		"RECORDER_DROP_LAST_CHUNKS":  " 5 ",
		"RECORDER_STRIP_PUNCTUATION": "true",
		"RECORDER_HTTP_ENABLED":      "1",
		"RECORDER_HTTP_PORT":         "8081",
		"RECORDER_LOG_LEVEL":         "debug",
		"UNRELATED_SAMPLE_RATE":      "8000",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	config := Default()
	if err := config.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}

	if config.Recorder.SaveDir != "/tmp/rec" {
		t.Errorf("Expected save dir /tmp/rec, got %s", config.Recorder.SaveDir)
	}
	if config.Recorder.PromptsCount != nil {
		t.Errorf("Expected all prompts, got %d", *config.Recorder.PromptsCount)
	}
	if config.Recorder.Randomize {
		t.Error("Expected randomize false")
	}
	if config.Recorder.DropLastChunks != 5 {
		t.Errorf("Expected drop 5, got %d", config.Recorder.DropLastChunks)
	}
	if !config.Recorder.StripPunctuation {
		t.Error("Expected strip punctuation enabled")
	}
	if !config.HTTP.Enabled || config.HTTP.Port != 8081 {
		t.Errorf("Expected http enabled on 8081, got %v %d", config.HTTP.Enabled, config.HTTP.Port)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("Expected debug level, got %s", config.Logging.Level)
	}
	if config.Audio.SampleRate != 16000 {
		t.Errorf("Expected sample rate untouched, got %d", config.Audio.SampleRate)
	}
}

func TestApplyEnvInvalidValues(t *testing.T) {
	env := map[string]string{
		"RECORDER_PROMPTS_COUNT": "lots",
		"RECORDER_RANDOMIZE":     "maybe",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	config := Default()
	err := config.ApplyEnv(lookup)
	if err == nil {
		t.Fatal("Expected error for invalid overrides")
	}
	for _, name := range []string{"RECORDER_PROMPTS_COUNT", "RECORDER_RANDOMIZE"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("Expected error to mention %s, got '%s'", name, err.Error())
		}
	}
}

func TestLoadDotEnv(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Errorf("Expected missing .env to be ignored, got: %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("RECORDER_TEST_DOTENV_VALUE=from-file\n"), 0644); err != nil {
		t.Fatalf("Failed to write .env: %v", err)
	}
	t.Setenv("RECORDER_TEST_DOTENV_VALUE", "")
	os.Unsetenv("RECORDER_TEST_DOTENV_VALUE")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}
	if got := os.Getenv("RECORDER_TEST_DOTENV_VALUE"); got != "from-file" {
		t.Errorf("Expected value from .env, got '%s'", got)
	}
}

func TestCheckPaths(t *testing.T) {
	dir := t.TempDir()
	prompts := filepath.Join(dir, "prompts.txt")
	if err := os.WriteFile(prompts, []byte("hello\n"), 0644); err != nil {
		t.Fatalf("Failed to write prompts: %v", err)
	}

	tests := []struct {
		name        string
		saveDir     string
		promptsFile string
		expectError bool
	}{
		{"valid", dir, prompts, false},
		{"missing save dir", filepath.Join(dir, "nope"), prompts, true},
		{"save dir is a file", prompts, prompts, true},
		{"missing prompts", dir, filepath.Join(dir, "missing.txt"), true},
		{"prompts is a dir", dir, dir, true},
		{"prompts unset", dir, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := RecorderConfig{SaveDir: tt.saveDir, PromptsFile: tt.promptsFile}
			err := r.CheckPaths()
			if tt.expectError {
				if !apperr.IsCode(err, apperr.CodeConfiguration) {
					t.Errorf("Expected configuration error, got %v", err)
				}
			} else if err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	config := Default()
	config.Audio.SampleRate = 16000
	config.Audio.FramesPerBuffer = 1600
	config.Recorder.DropLastChunks = 3

	if got := config.Audio.GetBufferDuration(); got != 100*time.Millisecond {
		t.Errorf("Expected buffer duration 100ms, got %v", got)
	}
	if got := config.GetDroppedDuration(); got != 300*time.Millisecond {
		t.Errorf("Expected dropped duration 300ms, got %v", got)
	}
}

func TestHTTPAddr(t *testing.T) {
	h := HTTPConfig{Address: "127.0.0.1", Port: 9090}
	if got := h.Addr(); got != "127.0.0.1:9090" {
		t.Errorf("Expected 127.0.0.1:9090, got %s", got)
	}
}

func TestLoggingIsFile(t *testing.T) {
	tests := []struct {
		output   string
		expected bool
	}{
		{"stderr", false},
		{"stdout", false},
		{"/var/log/recorder.log", true},
	}
	for _, tt := range tests {
		l := LoggingConfig{Output: tt.output}
		if got := l.IsFile(); got != tt.expected {
			t.Errorf("IsFile(%q) = %v, expected %v", tt.output, got, tt.expected)
		}
	}
}
