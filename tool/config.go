package tool

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/moyoez/splitsend-go/types"
)

// EnvPrefix namespaces environment overrides. Every variable also answers to
// its bare name (BOT_TOKEN, DOWNLOAD_PATH, ...) when the prefixed one is unset.
const EnvPrefix = "SPLITSEND"

var (
	ConfigPath    = "config.yaml" // be aware that it can be changed, default to ./config.yaml
	CurrentConfig types.AppConfig
)

func DefaultConfig() types.AppConfig {
	return types.AppConfig{
		Log: types.LogConfig{
			Mode:   "prod",
			Format: "text",
			File:   "logs/bot.log",
		},
		Telegram: types.TelegramConfig{
			BaseURL:       "https://api.telegram.org",
			PollTimeout:   30 * time.Second,
			Workers:       50,
			RatePerSecond: 25,
			PendingTTL:    time.Hour,
		},
		Download: types.DownloadConfig{
			Path:         "downloads",
			CleanOnStart: true,
		},
		Split: types.SplitConfig{
			MaxChunkSizeMB: 50, // bot API document limit
			BufferSizeMB:   8,
		},
		Upload: types.UploadConfig{
			Strategy:          "streaming",
			MaxParallel:       3,
			MaxAttempts:       3,
			BaseDelay:         2 * time.Second,
			DefaultRetryAfter: 10 * time.Second,
			Timeout:           300 * time.Second,
			ConnectTimeout:    60 * time.Second,
			RatePerSecond:     20,
		},
		Progress: types.ProgressConfig{
			Interval: 5 * time.Second,
		},
		Admission: types.AdmissionConfig{
			MaxConcurrent:        30,
			HousekeepingInterval: 10 * time.Minute,
		},
		Fetch: types.FetchConfig{
			CookiesFile:         "cookies.txt",
			ConcurrentFragments: 8,
			ExtractTimeout:      60 * time.Second,
			MaxFormats:          10,
		},
		API: types.APIConfig{
			Enabled: true,
			Listen:  "127.0.0.1:8089",
		},
		Notify: types.NotifyConfig{
			WebSocket: true,
		},
	}
}

// LoadConfig reads defaults, then the yaml file, then the environment.
// A missing file is created with the default values.
func LoadConfig(path string) (types.AppConfig, error) {
	if path == "" {
		path = ConfigPath
	}
	ConfigPath = path

	cfg := DefaultConfig()

	info, err := os.Stat(path)
	switch {
	case err != nil && os.IsNotExist(err):
		if writeErr := writeDefaultConfig(path, cfg); writeErr != nil {
			return cfg, fmt.Errorf("config file not found, and failed to generate default config: %v", writeErr)
		}
		DefaultLogger.Infof("Created new config file at %s", path)
	case err != nil:
		return cfg, fmt.Errorf("failed to read config file: %v", err)
	case info.IsDir():
		return cfg, fmt.Errorf("config file path is a directory: %s", path)
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %v", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %v", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to read environment: %v", err)
	}

	CurrentConfig = cfg
	return cfg, nil
}

// ApplyFlagOverrides merges non-zero CLI flags into cfg.
func ApplyFlagOverrides(cfg *types.AppConfig, flags types.Config) {
	if flags.Log != "" {
		cfg.Log.Mode = flags.Log
	}
	if flags.UseDownloadDir != "" {
		cfg.Download.Path = flags.UseDownloadDir
	}
	if flags.UseStrategy != "" {
		cfg.Upload.Strategy = flags.UseStrategy
	}
	if flags.UseListen != "" {
		cfg.API.Listen = flags.UseListen
	}
	if flags.UseMaxChunkMB > 0 {
		cfg.Split.MaxChunkSizeMB = flags.UseMaxChunkMB
	}
	if flags.NoAPI {
		cfg.API.Enabled = false
	}
	if flags.SkipNotify {
		cfg.Notify.SocketPath = ""
		cfg.Notify.WebSocket = false
	}
	CurrentConfig = *cfg
}

// ValidateConfig rejects values the pipeline cannot run with.
func ValidateConfig(cfg types.AppConfig, needToken bool) error {
	if needToken && cfg.Telegram.Token == "" {
		return fmt.Errorf("BOT_TOKEN is not set")
	}
	if cfg.Split.MaxChunkSizeMB <= 0 {
		return fmt.Errorf("max chunk size must be > 0, got %d", cfg.Split.MaxChunkSizeMB)
	}
	if cfg.Split.BufferSizeMB <= 0 {
		return fmt.Errorf("split buffer size must be > 0, got %d", cfg.Split.BufferSizeMB)
	}
	if cfg.Admission.MaxConcurrent <= 0 {
		return fmt.Errorf("max concurrent pipelines must be > 0, got %d", cfg.Admission.MaxConcurrent)
	}
	if cfg.Upload.MaxParallel <= 0 || cfg.Upload.MaxAttempts <= 0 {
		return fmt.Errorf("upload parallelism and attempts must be > 0")
	}
	switch strings.ToLower(cfg.Upload.Strategy) {
	case "streaming", "simple":
	case "s3":
		if cfg.S3.Bucket == "" {
			return fmt.Errorf("upload strategy s3 requires s3.bucket")
		}
	default:
		return fmt.Errorf("unknown upload strategy %q", cfg.Upload.Strategy)
	}
	return nil
}

func writeDefaultConfig(path string, cfg types.AppConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func GetCurrentConfig() *types.AppConfig {
	return &CurrentConfig
}
