package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/subtitle-studio/pkg/log"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds all application configuration.
// Both binaries read the same environment; each uses the sections it needs.
//
// Environment Variables:
// Client:
// - SERVER_URL: base URL of the job server (default: http://127.0.0.1:5000)
// - POLL_INTERVAL: delay between status queries (default: 5s)
// - NOTICE_TTL: how long an error notice stays visible (default: 2s)
// - REQUEST_TIMEOUT: per-request HTTP timeout (default: 30s)
// - PREFERENCES_FILE: theme preference file (default: $HOME/.config/subtitle-studio/preferences.json)
//
// Server:
// - HTTP_ADDR: listen address (default: :5000)
// - UPLOAD_DIR / RESULTS_DIR: working directories (default: uploads, results)
// - MAX_UPLOAD_MB: upload size cap (default: 500)
// - WORKERS: queue worker count (default: 2)
// - DB_PATH: sqlite job store; empty keeps jobs in memory
// - UI_DIR: optional static UI directory
//
// Transcription:
// - FFMPEG_PATH (default: ffmpeg), WHISPER_PATH (default: whisper-cli), WHISPER_MODEL
//
// Translation:
// - LLM_API_KEY, LLM_API_URL, LLM_MODEL, LLM_TIMEOUT
// - TRANSLATE_BATCH_SIZE (default: 50), TRANSLATE_CONCURRENCY (default: 2)
//
// Cleanup:
// - CLEANUP_CRON (default: "0 * * * *"), RESULT_RETENTION (default: 24h)
//
// - LOG_LEVEL: debug, info, warn, error (default: info)
// - LOG_FILE: append server logs to this file instead of stderr
type Config struct {
	Client     ClientConfig     `json:"client"`
	Server     ServerConfig     `json:"server"`
	Transcribe TranscribeConfig `json:"transcribe"`
	LLM        LLMConfig        `json:"llm"`
	Cleanup    CleanupConfig    `json:"cleanup"`
	LogLevel   log.LogLevel     `json:"log_level"`
	LogFile    string           `json:"log_file"`
}

type ClientConfig struct {
	ServerURL       string        `json:"server_url"`
	PollInterval    time.Duration `json:"poll_interval"`
	NoticeTTL       time.Duration `json:"notice_ttl"`
	RequestTimeout  time.Duration `json:"request_timeout"`
	PreferencesFile string        `json:"preferences_file"`
}

type ServerConfig struct {
	Addr           string `json:"addr"`
	UploadDir      string `json:"upload_dir"`
	ResultsDir     string `json:"results_dir"`
	MaxUploadBytes int64  `json:"max_upload_bytes"`
	Workers        int    `json:"workers"`
	DBPath         string `json:"db_path"`
	UIDir          string `json:"ui_dir"`
}

type TranscribeConfig struct {
	FFmpegPath  string `json:"ffmpeg_path"`
	WhisperPath string `json:"whisper_path"`
	ModelPath   string `json:"model_path"`
}

// LLMConfig configures the OpenAI-compatible endpoint used for translation.
type LLMConfig struct {
	APIKey      string `json:"-"`
	APIURL      string `json:"api_url"`
	Model       string `json:"model"`
	Timeout     int    `json:"timeout"`
	BatchSize   int    `json:"batch_size"`
	Concurrency int    `json:"concurrency"`
}

type CleanupConfig struct {
	CronExpr  string        `json:"cron_expr"`
	Retention time.Duration `json:"retention"`
}

// TranslationEnabled reports whether an LLM endpoint is configured.
func (c *Config) TranslationEnabled() bool {
	return strings.TrimSpace(c.LLM.APIKey) != ""
}

// Option is a function type for configuring Config
type Option func(*Config)

func WithServerURL(raw string) Option {
	return func(c *Config) {
		if strings.TrimSpace(raw) != "" {
			c.Client.ServerURL = raw
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Client.PollInterval = d
		}
	}
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are ignored; existing variables are not overridden.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		Client: ClientConfig{
			ServerURL:       getEnvString("SERVER_URL", "http://127.0.0.1:5000"),
			PollInterval:    getEnvDuration("POLL_INTERVAL", 5*time.Second),
			NoticeTTL:       getEnvDuration("NOTICE_TTL", 2*time.Second),
			RequestTimeout:  getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
			PreferencesFile: getEnvString("PREFERENCES_FILE", defaultPreferencesFile()),
		},
		Server: ServerConfig{
			Addr:           getEnvString("HTTP_ADDR", ":5000"),
			UploadDir:      getEnvString("UPLOAD_DIR", "uploads"),
			ResultsDir:     getEnvString("RESULTS_DIR", "results"),
			MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_MB", 500)) << 20,
			Workers:        getEnvInt("WORKERS", 2),
			DBPath:         getEnvString("DB_PATH", ""),
			UIDir:          getEnvString("UI_DIR", ""),
		},
		Transcribe: TranscribeConfig{
			FFmpegPath:  getEnvString("FFMPEG_PATH", "ffmpeg"),
			WhisperPath: getEnvString("WHISPER_PATH", "whisper-cli"),
			ModelPath:   getEnvString("WHISPER_MODEL", "models/ggml-large-v3-turbo.bin"),
		},
		LLM: LLMConfig{
			APIKey:      getEnvString("LLM_API_KEY", ""),
			APIURL:      getEnvString("LLM_API_URL", "https://openrouter.ai/api/v1"),
			Model:       getEnvString("LLM_MODEL", "openai/gpt-4o-mini"),
			Timeout:     getEnvInt("LLM_TIMEOUT", 60),
			BatchSize:   getEnvInt("TRANSLATE_BATCH_SIZE", 50),
			Concurrency: getEnvInt("TRANSLATE_CONCURRENCY", 2),
		},
		Cleanup: CleanupConfig{
			CronExpr:  getEnvString("CLEANUP_CRON", "0 * * * *"),
			Retention: getEnvDuration("RESULT_RETENTION", 24*time.Hour),
		},
		LogLevel: log.ParseLevel(getEnvString("LOG_LEVEL", "info")),
		LogFile:  getEnvString("LOG_FILE", ""),
	}

	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Debug("Config: %+v", *config)
	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	u, err := url.Parse(c.Client.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("SERVER_URL must be an absolute URL, got %q", c.Client.ServerURL)
	}
	if c.Client.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if c.Client.NoticeTTL <= 0 {
		return fmt.Errorf("NOTICE_TTL must be positive")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}
	if c.Server.Workers <= 0 {
		return fmt.Errorf("WORKERS must be positive")
	}
	if _, err := cron.ParseStandard(c.Cleanup.CronExpr); err != nil {
		return fmt.Errorf("invalid CLEANUP_CRON: %w", err)
	}
	if c.Cleanup.Retention <= 0 {
		return fmt.Errorf("RESULT_RETENTION must be positive")
	}
	return nil
}

func defaultPreferencesFile() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return "preferences.json"
	}
	return filepath.Join(dir, "subtitle-studio", "preferences.json")
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("5s") or bare milliseconds ("5000").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
