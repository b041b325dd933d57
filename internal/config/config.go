package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		DataPath   string `yaml:"data_path"`
		SeriesFile string `yaml:"series_file"`
		OutputDir  string `yaml:"output_dir"`
		ErrorLog   string `yaml:"error_log"`
		Debug      bool   `yaml:"debug"`
		// Workers bounds both planning and execution. 0 means one per CPU.
		Workers int `yaml:"workers"`
	} `yaml:"app"`

	Tools struct {
		Aria2c      string `yaml:"aria2c"`
		FFmpeg      string `yaml:"ffmpeg"`
		Connections int    `yaml:"connections"`
	} `yaml:"tools"`

	Transcode struct {
		Enabled     bool   `yaml:"enabled"`
		MaxAttempts int    `yaml:"max_attempts"`
		Codec       string `yaml:"codec"`
		CRF         int    `yaml:"crf"`
		Preset      string `yaml:"preset"`
		Threads     int    `yaml:"threads"`
		X265Params  string `yaml:"x265_params"`
		AudioCodec  string `yaml:"audio_codec"`
		Nice        int    `yaml:"nice"`
	} `yaml:"transcode"`

	Planning struct {
		Timeout            Duration `yaml:"timeout"`
		UserAgent          string   `yaml:"user_agent"`
		QualityPreferences []string `yaml:"quality_preferences"`
		RejectPatterns     []string `yaml:"reject_patterns"`

		// EpisodeSelector and DownloadSelector are CSS selectors for the
		// page planner. DownloadSelector may be empty.
		EpisodeSelector  string `yaml:"episode_selector"`
		DownloadSelector string `yaml:"download_selector"`
	} `yaml:"planning"`

	Cleanup struct {
		GracePeriod    Duration `yaml:"grace_period"`
		SweepProcesses bool     `yaml:"sweep_processes"`
	} `yaml:"cleanup"`

	Server struct {
		Port    int  `yaml:"port"`
		Enabled bool `yaml:"enabled"`
	} `yaml:"server"`

	Schedule struct {
		Cron string `yaml:"cron"`
	} `yaml:"schedule"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Notifications struct {
		PushbulletAPIKey string `yaml:"pushbullet_api_key"`
	} `yaml:"notifications"`

	Log struct {
		MaxSizeMB  int `yaml:"max_size_mb"`
		MaxBackups int `yaml:"max_backups"`
		MaxAgeDays int `yaml:"max_age_days"`
	} `yaml:"log"`
}

// Duration is a time.Duration that unmarshals from strings such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

func Load(path string) (*Config, error) {
	cfg := &Config{}
	setDefaults(cfg)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	loadFromEnv(cfg)
	cfg.resolvePaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration with paths under dataPath,
// ignoring the environment.
func Default(dataPath string) Config {
	var cfg Config
	setDefaults(&cfg)
	cfg.App.DataPath = dataPath
	cfg.resolvePaths()
	return cfg
}

// DefaultPath returns the config file location used when no --config flag is given.
func DefaultPath() string {
	return filepath.Join(defaultDataPath(), "config.yml")
}

func defaultDataPath() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "anidl")
	}
	return "./data"
}

func setDefaults(cfg *Config) {
	cfg.App.Workers = 0
	cfg.App.Debug = false

	cfg.Tools.Aria2c = "aria2c"
	cfg.Tools.FFmpeg = "ffmpeg"
	cfg.Tools.Connections = 16

	cfg.Transcode.Enabled = false
	cfg.Transcode.MaxAttempts = 3
	cfg.Transcode.Codec = "libx265"
	cfg.Transcode.CRF = 23
	cfg.Transcode.Preset = "veryfast"
	cfg.Transcode.Threads = 12
	cfg.Transcode.X265Params = "hist-scenecut=1"
	cfg.Transcode.AudioCodec = "copy"
	cfg.Transcode.Nice = 5

	cfg.Planning.Timeout = Duration{60 * time.Second}
	cfg.Planning.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	cfg.Planning.QualityPreferences = []string{"1080p", "720p"}
	cfg.Planning.EpisodeSelector = "a.episode"
	cfg.Planning.DownloadSelector = "a#download"

	cfg.Cleanup.GracePeriod = Duration{5 * time.Second}
	cfg.Cleanup.SweepProcesses = true

	cfg.Server.Port = 8081
	cfg.Server.Enabled = true

	cfg.Schedule.Cron = "@every 6h"

	cfg.Log.MaxSizeMB = 10
	cfg.Log.MaxBackups = 3
	cfg.Log.MaxAgeDays = 90
}

// resolvePaths fills every path left empty with a location under the data path.
func (c *Config) resolvePaths() {
	if strings.TrimSpace(c.App.DataPath) == "" {
		c.App.DataPath = defaultDataPath()
	}
	if c.App.SeriesFile == "" {
		c.App.SeriesFile = filepath.Join(c.App.DataPath, "series_data.json")
	}
	if c.App.OutputDir == "" {
		c.App.OutputDir = filepath.Join(c.App.DataPath, "converted")
	}
	if c.App.ErrorLog == "" {
		c.App.ErrorLog = filepath.Join(c.App.DataPath, "logs", "serie_critical_errors.log")
	}
	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(c.App.DataPath, "history.db")
	}
}

func loadFromEnv(cfg *Config) {
	if v := os.Getenv("ANIDL_DATA_PATH"); v != "" {
		cfg.App.DataPath = v
	}
	if v := os.Getenv("ANIDL_SERIES_FILE"); v != "" {
		cfg.App.SeriesFile = v
	}
	if v := os.Getenv("ANIDL_OUTPUT_DIR"); v != "" {
		cfg.App.OutputDir = v
	}
	if v := os.Getenv("ANIDL_ERROR_LOG"); v != "" {
		cfg.App.ErrorLog = v
	}
	if v, ok := envBool("ANIDL_DEBUG"); ok {
		cfg.App.Debug = v
	}
	if v, ok := envBool("ANIDL_TRANSCODE"); ok {
		cfg.Transcode.Enabled = v
	}
	if v := os.Getenv("ANIDL_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.App.Workers = n
		}
	}
	if v := os.Getenv("ANIDL_PUSHBULLET_API_KEY"); v != "" {
		cfg.Notifications.PushbulletAPIKey = v
	}
}

func envBool(key string) (bool, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

// Validate reports the first setting that cannot work at runtime.
func (c *Config) Validate() error {
	if c.App.Workers < 0 {
		return fmt.Errorf("app.workers must not be negative")
	}
	if strings.TrimSpace(c.Tools.Aria2c) == "" {
		return fmt.Errorf("tools.aria2c is required")
	}
	if strings.TrimSpace(c.Tools.FFmpeg) == "" {
		return fmt.Errorf("tools.ffmpeg is required")
	}
	if c.Tools.Connections < 1 || c.Tools.Connections > 16 {
		return fmt.Errorf("tools.connections must be between 1 and 16, got %d", c.Tools.Connections)
	}
	if c.Transcode.MaxAttempts < 1 {
		return fmt.Errorf("transcode.max_attempts must be at least 1")
	}
	if c.Planning.Timeout.Duration <= 0 {
		return fmt.Errorf("planning.timeout must be positive")
	}
	if strings.TrimSpace(c.Planning.EpisodeSelector) == "" {
		return fmt.Errorf("planning.episode_selector is required")
	}
	if _, err := cascadia.Compile(c.Planning.EpisodeSelector); err != nil {
		return fmt.Errorf("planning.episode_selector %q: %w", c.Planning.EpisodeSelector, err)
	}
	if strings.TrimSpace(c.Planning.DownloadSelector) != "" {
		if _, err := cascadia.Compile(c.Planning.DownloadSelector); err != nil {
			return fmt.Errorf("planning.download_selector %q: %w", c.Planning.DownloadSelector, err)
		}
	}
	if c.Cleanup.GracePeriod.Duration < 0 {
		return fmt.Errorf("cleanup.grace_period must not be negative")
	}
	return nil
}
