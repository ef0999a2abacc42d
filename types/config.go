package types

import "time"

// AppConfig represents the application configuration loaded from config file.
// Environment variables override file values, flags override both.
type AppConfig struct {
	Log       LogConfig       `yaml:"log"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Download  DownloadConfig  `yaml:"download"`
	Split     SplitConfig     `yaml:"split"`
	Upload    UploadConfig    `yaml:"upload"`
	Progress  ProgressConfig  `yaml:"progress"`
	Admission AdmissionConfig `yaml:"admission"`
	Fetch     FetchConfig     `yaml:"fetch"`
	S3        S3Config        `yaml:"s3"`
	API       APIConfig       `yaml:"api"`
	Notify    NotifyConfig    `yaml:"notify"`
}

type LogConfig struct {
	Mode   string `yaml:"mode" envconfig:"LOG_MODE"`     // dev | prod | none
	Format string `yaml:"format" envconfig:"LOG_FORMAT"` // text | json
	File   string `yaml:"file" envconfig:"LOG_FILE"`
}

type TelegramConfig struct {
	Token         string        `yaml:"token" envconfig:"BOT_TOKEN"`
	BaseURL       string        `yaml:"baseURL" envconfig:"TELEGRAM_BASE_URL"`
	PollTimeout   time.Duration `yaml:"pollTimeout"`
	Workers       int           `yaml:"workers" envconfig:"THREAD_POOL_SIZE"` // concurrent update handlers
	RatePerSecond float64       `yaml:"ratePerSecond"`
	PendingTTL    time.Duration `yaml:"pendingTTL"`
}

type DownloadConfig struct {
	Path         string `yaml:"path" envconfig:"DOWNLOAD_PATH"`
	CleanOnStart bool   `yaml:"cleanOnStart"`
}

type SplitConfig struct {
	MaxChunkSizeMB int64 `yaml:"maxChunkSizeMB" envconfig:"MAX_CHUNK_SIZE_MB"`
	BufferSizeMB   int64 `yaml:"bufferSizeMB"`
}

type UploadConfig struct {
	Strategy          string        `yaml:"strategy" envconfig:"UPLOAD_STRATEGY"` // streaming | simple | s3
	MaxParallel       int           `yaml:"maxParallel"`
	MaxAttempts       int           `yaml:"maxAttempts"`
	BaseDelay         time.Duration `yaml:"baseDelay"`
	DefaultRetryAfter time.Duration `yaml:"defaultRetryAfter"`
	Timeout           time.Duration `yaml:"timeout"`
	ConnectTimeout    time.Duration `yaml:"connectTimeout"`
	RatePerSecond     float64       `yaml:"ratePerSecond"`
}

type ProgressConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type AdmissionConfig struct {
	MaxConcurrent        int           `yaml:"maxConcurrent" envconfig:"MAX_CONCURRENT_DOWNLOADS"`
	HousekeepingInterval time.Duration `yaml:"housekeepingInterval"` // 0 keeps idle actor locks forever
}

type FetchConfig struct {
	CookiesFile         string        `yaml:"cookiesFile" envconfig:"YTDLP_COOKIES_FILE"`
	AutoInstall         bool          `yaml:"autoInstall"`
	ConcurrentFragments int           `yaml:"concurrentFragments"`
	ExtractTimeout      time.Duration `yaml:"extractTimeout"`
	MaxFormats          int           `yaml:"maxFormats"`
}

type S3Config struct {
	Bucket       string `yaml:"bucket" envconfig:"S3_BUCKET"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region" envconfig:"AWS_REGION"`
	Endpoint     string `yaml:"endpoint" envconfig:"S3_ENDPOINT"`
	UsePathStyle bool   `yaml:"usePathStyle"`
}

type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen" envconfig:"API_LISTEN"`
}

type NotifyConfig struct {
	SocketPath string `yaml:"socketPath" envconfig:"NOTIFY_SOCKET"`
	WebSocket  bool   `yaml:"websocket"`
}

// Config holds runtime overrides from CLI flags
type Config struct {
	Log            string
	UseConfigPath  string
	UseDownloadDir string
	UseStrategy    string
	UseListen      string
	UseMaxChunkMB  int64
	NoAPI          bool
	SkipNotify     bool
}

const MiB = 1024 * 1024

func (c SplitConfig) MaxChunkBytes() int64 {
	return c.MaxChunkSizeMB * MiB
}

func (c SplitConfig) BufferBytes() int {
	return int(c.BufferSizeMB * MiB)
}
