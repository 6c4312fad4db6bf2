package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the worker configuration
type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`

	Analysis struct {
		BaseURL        string   `yaml:"base_url"`
		APIKey         string   `yaml:"api_key"`
		Models         []string `yaml:"models"`
		MaxRetries     int      `yaml:"max_retries"`
		TimeoutSeconds int      `yaml:"timeout_seconds"`
	} `yaml:"analysis"`

	Storage struct {
		Database   string `yaml:"database"`
		ScratchDir string `yaml:"scratch_dir"`
		Bucket     struct {
			Endpoint   string `yaml:"endpoint"`
			Name       string `yaml:"name"`
			ServiceKey string `yaml:"service_key"`
		} `yaml:"bucket"`
	} `yaml:"storage"`

	Media struct {
		ProbeTimeoutSeconds    int `yaml:"probe_timeout_seconds"`
		SubtitleTimeoutSeconds int `yaml:"subtitle_timeout_seconds"`
		DownloadTimeoutMinutes int `yaml:"download_timeout_minutes"`
		FrameTimeoutSeconds    int `yaml:"frame_timeout_seconds"`
	} `yaml:"media"`

	Subtitles struct {
		Languages          []string `yaml:"languages"`
		MaxTranscriptChars int      `yaml:"max_transcript_chars"`
	} `yaml:"subtitles"`

	Worker struct {
		IdleSleepSeconds       int     `yaml:"idle_sleep_seconds"`
		ErrorSleepSeconds      int     `yaml:"error_sleep_seconds"`
		DefaultDurationSeconds float64 `yaml:"default_duration_seconds"`
	} `yaml:"worker"`

	Cleanup struct {
		IntervalMinutes int `yaml:"interval_minutes"`
		MaxAgeHours     int `yaml:"max_age_hours"`
	} `yaml:"cleanup"`
}

// Load reads the YAML config file, after overlaying a .env file (if present)
// onto the process environment. ${VAR} references inside YAML values are
// expanded from the environment so secrets stay out of the config file.
func Load(path string) (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.Expand(string(raw), func(key string) string {
		return os.Getenv(key)
	})

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Analysis.MaxRetries == 0 {
		c.Analysis.MaxRetries = 3
	}
	if c.Analysis.TimeoutSeconds == 0 {
		c.Analysis.TimeoutSeconds = 120
	}
	if c.Storage.Database == "" {
		c.Storage.Database = "data/vidguide.db"
	}
	if c.Storage.ScratchDir == "" {
		c.Storage.ScratchDir = "temp"
	}
	if c.Media.ProbeTimeoutSeconds == 0 {
		c.Media.ProbeTimeoutSeconds = 30
	}
	if c.Media.SubtitleTimeoutSeconds == 0 {
		c.Media.SubtitleTimeoutSeconds = 60
	}
	if c.Media.DownloadTimeoutMinutes == 0 {
		c.Media.DownloadTimeoutMinutes = 10
	}
	if c.Media.FrameTimeoutSeconds == 0 {
		c.Media.FrameTimeoutSeconds = 60
	}
	if len(c.Subtitles.Languages) == 0 {
		c.Subtitles.Languages = []string{"en", "en-US", "en-GB"}
	}
	if c.Subtitles.MaxTranscriptChars == 0 {
		c.Subtitles.MaxTranscriptChars = 24000
	}
	if c.Worker.IdleSleepSeconds == 0 {
		c.Worker.IdleSleepSeconds = 5
	}
	if c.Worker.ErrorSleepSeconds == 0 {
		c.Worker.ErrorSleepSeconds = 10
	}
	if c.Worker.DefaultDurationSeconds == 0 {
		c.Worker.DefaultDurationSeconds = 600
	}
	if c.Cleanup.IntervalMinutes == 0 {
		c.Cleanup.IntervalMinutes = 30
	}
	if c.Cleanup.MaxAgeHours == 0 {
		c.Cleanup.MaxAgeHours = 6
	}
}

func (c *Config) validate() error {
	if c.Analysis.APIKey == "" {
		return fmt.Errorf("analysis.api_key is required (set ANALYSIS_API_KEY)")
	}
	if len(c.Analysis.Models) == 0 {
		return fmt.Errorf("analysis.models must list at least one model")
	}
	return nil
}
