package config

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "downloads", cfg.DownloadDir)
	assert.Equal(t, ByteSize(500*1024*1024), cfg.MaxFileSize)
	assert.Equal(t, 15*time.Minute, cfg.FileTTL)
	assert.Equal(t, 120*time.Second, cfg.ExtractTimeout)
	assert.False(t, cfg.Debug)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "0.0.0.0:5000", cfg.Web.BindAddress)
	assert.Equal(t, filepath.Join("downloads", "files"), cfg.StoreDir())
	assert.Equal(t, filepath.Join("downloads", "work"), cfg.WorkDir())
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("DOWNLOAD_DIR", "/srv/media")
	t.Setenv("MAX_FILE_SIZE", "1GB")
	t.Setenv("FILE_TTL", "1h")
	t.Setenv("DEBUG", "true")
	t.Setenv("YTDLP_INSTALL", "true")
	t.Setenv("TELEMETRY_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("WEB_BIND_ADDRESS", "127.0.0.1:8080")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "/srv/media", cfg.DownloadDir)
	assert.Equal(t, ByteSize(1000*1000*1000), cfg.MaxFileSize)
	assert.Equal(t, time.Hour, cfg.FileTTL)
	assert.True(t, cfg.Debug)
	assert.True(t, cfg.Ytdlp.Install)
	assert.Equal(t, "collector:4317", cfg.Telemetry.OTLPEndpoint)
	assert.Equal(t, "127.0.0.1:8080", cfg.Web.BindAddress)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"unparseable size", "MAX_FILE_SIZE", "lots"},
		{"zero size", "MAX_FILE_SIZE", "0"},
		{"zero ttl", "FILE_TTL", "0s"},
		{"negative timeout", "EXTRACT_TIMEOUT", "-1s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		debug bool
		want  slog.Level
	}{
		{"DEBUG", false, slog.LevelDebug},
		{"info", false, slog.LevelInfo},
		{"WARN", false, slog.LevelWarn},
		{"error", false, slog.LevelError},
		{"bogus", false, slog.LevelInfo},
		{"ERROR", true, slog.LevelDebug},
	}

	for _, tt := range tests {
		cfg := &Config{LogLevel: tt.level, Debug: tt.debug}
		assert.Equal(t, tt.want, cfg.SlogLevel(), "level=%s debug=%v", tt.level, tt.debug)
	}
}

func TestByteSize_String(t *testing.T) {
	assert.Equal(t, "500 MiB", ByteSize(500*1024*1024).String())
}
