package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/w2kr1stn/babel-tower/internal/audio"
)

const (
	BackendRemote = "remote"
	BackendLocal  = "local"
)

type Config struct {
	STT        STTConfig        `yaml:"stt"`
	LLM        LLMConfig        `yaml:"llm"`
	Audio      AudioConfig      `yaml:"audio"`
	TTS        TTSConfig        `yaml:"tts"`
	Processing ProcessingConfig `yaml:"processing"`
	LogLevel   string           `yaml:"log_level"`
}

type STTConfig struct {
	Backend  string  `yaml:"backend"` // "remote" or "local"
	URL      string  `yaml:"url"`
	Model    string  `yaml:"model"`
	Language string  `yaml:"language"`
	Timeout  float64 `yaml:"timeout"` // seconds

	// Local whisper.cpp settings
	LocalModel string `yaml:"local_model"` // "base", "small", etc.
	Threads    int    `yaml:"threads"`
}

type LLMConfig struct {
	URL     string  `yaml:"url"`
	Model   string  `yaml:"model"`
	APIKey  string  `yaml:"api_key"`
	Timeout float64 `yaml:"timeout"` // seconds
}

type AudioConfig struct {
	DeviceID        string  `yaml:"device"`
	SampleRate      int     `yaml:"sample_rate"`
	Channels        int     `yaml:"channels"`
	VADThreshold    float64 `yaml:"vad_threshold"`
	SilenceDuration float64 `yaml:"silence_duration"` // seconds
	MaxDuration     float64 `yaml:"max_duration"`     // seconds
}

type TTSConfig struct {
	Enabled bool    `yaml:"enabled"`
	URL     string  `yaml:"url"`
	Voice   string  `yaml:"voice"`
	Timeout float64 `yaml:"timeout"` // seconds
}

type ProcessingConfig struct {
	DefaultMode          string `yaml:"default_mode"`
	DurchreichenMaxWords int    `yaml:"durchreichen_max_words"`
	ReviewEnabled        bool   `yaml:"review_enabled"`
	PromptsDir           string `yaml:"prompts_dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		STT: STTConfig{
			Backend:    BackendRemote,
			URL:        "http://localhost:29000",
			Model:      "Systran/faster-whisper-large-v3",
			Language:   "de",
			Timeout:    30,
			LocalModel: "base",
			Threads:    0, // Auto-detect
		},
		LLM: LLMConfig{
			URL:     "http://ai-station:4000",
			Model:   "rupt",
			Timeout: 60,
		},
		Audio: AudioConfig{
			SampleRate:      audio.DefaultSampleRate,
			Channels:        1,
			VADThreshold:    0.5,
			SilenceDuration: 20,
			MaxDuration:     audio.DefaultMaxDuration.Seconds(),
		},
		TTS: TTSConfig{
			URL:     "http://m5:8000",
			Voice:   "thorsten_emotional",
			Timeout: 10,
		},
		Processing: ProcessingConfig{
			DefaultMode:          "clean",
			DurchreichenMaxWords: 5,
			PromptsDir:           "prompts",
		},
		LogLevel: "info",
	}
}

// Load reads the config file and environment overlay, or returns defaults
func Load() (*Config, error) {
	return LoadFrom(configPath(), os.Environ())
}

// LoadFrom applies the YAML file at path (if it exists) and then the BABEL_*
// variables in env on top of Default.
func LoadFrom(path string, env []string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		// An empty file decodes to io.EOF
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.applyEnv(env); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.STT.Backend != BackendRemote && c.STT.Backend != BackendLocal {
		errs = append(errs, fmt.Errorf("stt.backend must be %q or %q, got %q", BackendRemote, BackendLocal, c.STT.Backend))
	}
	if c.STT.Backend == BackendRemote && c.STT.URL == "" {
		errs = append(errs, errors.New("stt.url is required for the remote backend"))
	}
	if c.STT.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("stt.timeout must be positive, got %g", c.STT.Timeout))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("llm.timeout must be positive, got %g", c.LLM.Timeout))
	}
	if c.Audio.SampleRate != 8000 && c.Audio.SampleRate != 16000 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be 8000 or 16000, got %d", c.Audio.SampleRate))
	}
	if c.Audio.Channels <= 0 {
		errs = append(errs, fmt.Errorf("audio.channels must be positive, got %d", c.Audio.Channels))
	}
	if c.Audio.VADThreshold <= 0 || c.Audio.VADThreshold >= 1 {
		errs = append(errs, fmt.Errorf("audio.vad_threshold must be in (0, 1), got %g", c.Audio.VADThreshold))
	}
	if c.Audio.SilenceDuration <= 0 {
		errs = append(errs, fmt.Errorf("audio.silence_duration must be positive, got %g", c.Audio.SilenceDuration))
	}
	if c.Audio.MaxDuration <= 0 {
		errs = append(errs, fmt.Errorf("audio.max_duration must be positive, got %g", c.Audio.MaxDuration))
	}
	if c.TTS.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("tts.timeout must be positive, got %g", c.TTS.Timeout))
	}
	if c.Processing.DurchreichenMaxWords < 0 {
		errs = append(errs, fmt.Errorf("processing.durchreichen_max_words must not be negative, got %d", c.Processing.DurchreichenMaxWords))
	}
	return errors.Join(errs...)
}

// Save writes the config to disk
func (c *Config) Save() error {
	return c.SaveTo(configPath())
}

func (c *Config) SaveTo(path string) error {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// CaptureSettings converts the audio section for the capture loop.
func (a AudioConfig) CaptureSettings() audio.Settings {
	s := audio.DefaultSettings()
	s.DeviceID = a.DeviceID
	s.SampleRate = a.SampleRate
	s.Channels = a.Channels
	s.VADThreshold = a.VADThreshold
	s.MinSilence = Seconds(a.SilenceDuration)
	s.MaxDuration = Seconds(a.MaxDuration)
	return s
}

// Seconds converts a fractional seconds value from the config file.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

type envVar struct {
	name  string
	apply func(c *Config, v string) error
}

var envVars = []envVar{
	{"BABEL_STT_BACKEND", func(c *Config, v string) error { c.STT.Backend = v; return nil }},
	{"BABEL_STT_URL", func(c *Config, v string) error { c.STT.URL = v; return nil }},
	{"BABEL_STT_MODEL", func(c *Config, v string) error { c.STT.Model = v; return nil }},
	{"BABEL_STT_LANGUAGE", func(c *Config, v string) error { c.STT.Language = v; return nil }},
	{"BABEL_STT_TIMEOUT", floatVar(func(c *Config) *float64 { return &c.STT.Timeout })},
	{"BABEL_STT_LOCAL_MODEL", func(c *Config, v string) error { c.STT.LocalModel = v; return nil }},
	{"BABEL_STT_THREADS", intVar(func(c *Config) *int { return &c.STT.Threads })},
	{"BABEL_LLM_URL", func(c *Config, v string) error { c.LLM.URL = v; return nil }},
	{"BABEL_LLM_MODEL", func(c *Config, v string) error { c.LLM.Model = v; return nil }},
	{"BABEL_LLM_API_KEY", func(c *Config, v string) error { c.LLM.APIKey = v; return nil }},
	{"BABEL_LLM_TIMEOUT", floatVar(func(c *Config) *float64 { return &c.LLM.Timeout })},
	{"BABEL_AUDIO_DEVICE", func(c *Config, v string) error { c.Audio.DeviceID = v; return nil }},
	{"BABEL_AUDIO_SAMPLE_RATE", intVar(func(c *Config) *int { return &c.Audio.SampleRate })},
	{"BABEL_AUDIO_CHANNELS", intVar(func(c *Config) *int { return &c.Audio.Channels })},
	{"BABEL_VAD_THRESHOLD", floatVar(func(c *Config) *float64 { return &c.Audio.VADThreshold })},
	{"BABEL_SILENCE_DURATION", floatVar(func(c *Config) *float64 { return &c.Audio.SilenceDuration })},
	{"BABEL_MAX_DURATION", floatVar(func(c *Config) *float64 { return &c.Audio.MaxDuration })},
	{"BABEL_TTS_URL", func(c *Config, v string) error { c.TTS.URL = v; return nil }},
	{"BABEL_TTS_VOICE", func(c *Config, v string) error { c.TTS.Voice = v; return nil }},
	{"BABEL_TTS_TIMEOUT", floatVar(func(c *Config) *float64 { return &c.TTS.Timeout })},
	{"BABEL_TTS_ENABLED", boolVar(func(c *Config) *bool { return &c.TTS.Enabled })},
	{"BABEL_DEFAULT_MODE", func(c *Config, v string) error { c.Processing.DefaultMode = v; return nil }},
	{"BABEL_DURCHREICHEN_MAX_WORDS", intVar(func(c *Config) *int { return &c.Processing.DurchreichenMaxWords })},
	{"BABEL_REVIEW_ENABLED", boolVar(func(c *Config) *bool { return &c.Processing.ReviewEnabled })},
	{"BABEL_PROMPTS_DIR", func(c *Config, v string) error { c.Processing.PromptsDir = v; return nil }},
	{"BABEL_LOG_LEVEL", func(c *Config, v string) error { c.LogLevel = v; return nil }},
}

func (c *Config) applyEnv(env []string) error {
	values := make(map[string]string, len(env))
	for _, kv := range env {
		name, value, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(name, "BABEL_") {
			values[name] = value
		}
	}

	var errs []error
	for _, ev := range envVars {
		v, ok := values[ev.name]
		if !ok {
			continue
		}
		if err := ev.apply(c, v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ev.name, err))
		}
	}
	return errors.Join(errs...)
}

func floatVar(field func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return err
		}
		*field(c) = f
		return nil
	}
}

func intVar(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func boolVar(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

// ConfigPath returns the platform-specific config file path
func ConfigPath() string {
	return configPath()
}

// configPath returns the platform-specific config file path
func configPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "babel-tower", "config.yaml")
}

// ModelsPath returns the platform-specific models directory path
func ModelsPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.local/share"
		}
	}

	return filepath.Join(base, "babel-tower", "models")
}
