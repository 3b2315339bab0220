package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/kelseyhightower/envconfig"
)

// ByteSize is a size in bytes that can be written as "500MiB" or "1.5GB" in the environment.
type ByteSize int64

// Decode implements envconfig.Decoder.
func (b *ByteSize) Decode(value string) error {
	n, err := humanize.ParseBytes(value)
	if err != nil {
		return fmt.Errorf("invalid byte size %q: %w", value, err)
	}

	*b = ByteSize(n)

	return nil
}

func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// Config struct for environment variables.
type Config struct {
	DownloadDir     string        `envconfig:"DOWNLOAD_DIR" default:"downloads"`
	MaxFileSize     ByteSize      `envconfig:"MAX_FILE_SIZE" default:"500MiB"`
	FileTTL         time.Duration `envconfig:"FILE_TTL" default:"15m"`
	CleanupInterval time.Duration `envconfig:"CLEANUP_INTERVAL" default:"1m"`
	ExtractTimeout  time.Duration `envconfig:"EXTRACT_TIMEOUT" default:"120s"`
	Debug           bool          `envconfig:"DEBUG" default:"false"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"INFO"`
	DBPath          string        `envconfig:"DB_PATH" default:"downloads.db"`

	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`

	Ytdlp struct {
		Install bool   `split_words:"true" default:"false"`
		Proxy   string `split_words:"true"`
	}

	Telemetry struct {
		Enabled      bool   `split_words:"true" default:"true"`
		ServiceName  string `split_words:"true" default:"media-downloader"`
		OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:5000"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"10m"`
		IdleTimeout     time.Duration `split_words:"true" default:"30s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive")
	}

	if c.FileTTL <= 0 {
		return fmt.Errorf("FILE_TTL must be positive")
	}

	if c.CleanupInterval <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL must be positive")
	}

	if c.ExtractTimeout <= 0 {
		return fmt.Errorf("EXTRACT_TIMEOUT must be positive")
	}

	return nil
}

// StoreDir is where registered files live until they are collected.
func (c *Config) StoreDir() string {
	return filepath.Join(c.DownloadDir, "files")
}

// WorkDir is the root under which each extraction gets a private directory.
func (c *Config) WorkDir() string {
	return filepath.Join(c.DownloadDir, "work")
}

func (c *Config) SlogLevel() slog.Level {
	if c.Debug {
		return slog.LevelDebug
	}

	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
