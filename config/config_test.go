package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"HLSD_CONFIG", "PORT", "STORAGE_ROOT", "DATABASE_DRIVER", "DATABASE_PATH", "DATABASE_URL",
	"HLS_MAX_CONCURRENT_STREAMS", "HLS_QUEUE_SIZE", "HLS_SEGMENT_SECONDS",
	"HLS_PROGRESS_PERSIST_INTERVAL", "STARTUP_HLS_RETRY_ENABLED", "STARTUP_HLS_RETRY_LIMIT",
	"FFMPEG_BIN", "FFPROBE_BIN", "LOG_LEVEL", "LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7890, cfg.Port)
	assert.Equal(t, "storage", cfg.StorageRoot)
	assert.Equal(t, filepath.Join("storage", "media"), cfg.MediaDir)
	assert.Equal(t, filepath.Join("storage", "hls"), cfg.HLSDir)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, filepath.Join("storage", "database.db"), cfg.Database.Path)
	assert.Equal(t, 2, cfg.HLS.MaxConcurrentStreams)
	assert.Equal(t, 256, cfg.HLS.QueueSize)
	assert.Equal(t, 6, cfg.HLS.SegmentSeconds)
	assert.Equal(t, 5*time.Second, cfg.HLS.PersistInterval)
	assert.True(t, cfg.Startup.RetryEnabled)
	assert.Equal(t, 50, cfg.Startup.RetryLimit)
	assert.Equal(t, "ffmpeg", cfg.Encoder.FFmpeg)
	assert.Equal(t, "ffprobe", cfg.Encoder.FFprobe)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_Env(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	t.Setenv("PORT", "9000")
	t.Setenv("STORAGE_ROOT", root)
	t.Setenv("HLS_MAX_CONCURRENT_STREAMS", "4")
	t.Setenv("STARTUP_HLS_RETRY_ENABLED", "false")
	t.Setenv("STARTUP_HLS_RETRY_LIMIT", "0")
	t.Setenv("HLS_PROGRESS_PERSIST_INTERVAL", "750ms")
	t.Setenv("FFMPEG_BIN", "/opt/ffmpeg")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, filepath.Join(root, "hls"), cfg.HLSDir)
	assert.Equal(t, filepath.Join(root, "database.db"), cfg.Database.Path)
	assert.Equal(t, 4, cfg.HLS.MaxConcurrentStreams)
	assert.False(t, cfg.Startup.RetryEnabled)
	assert.Equal(t, 0, cfg.Startup.RetryLimit)
	assert.Equal(t, 750*time.Millisecond, cfg.HLS.PersistInterval)
	assert.Equal(t, "/opt/ffmpeg", cfg.Encoder.FFmpeg)
}

func TestLoad_ConcurrencyClampsToOne(t *testing.T) {
	clearEnv(t)
	t.Setenv("HLS_MAX_CONCURRENT_STREAMS", "0")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.HLS.MaxConcurrentStreams)

	t.Setenv("HLS_MAX_CONCURRENT_STREAMS", "-3")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.HLS.MaxConcurrentStreams)
}

func TestLoad_InvalidEnv(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"PORT", "abc", "invalid PORT"},
		{"PORT", "70000", "port must be between"},
		{"STARTUP_HLS_RETRY_LIMIT", "-1", "retry limit"},
		{"STARTUP_HLS_RETRY_ENABLED", "maybe", "invalid STARTUP_HLS_RETRY_ENABLED"},
		{"HLS_SEGMENT_SECONDS", "0", "segment seconds"},
		{"HLS_PROGRESS_PERSIST_INTERVAL", "soon", "invalid HLS_PROGRESS_PERSIST_INTERVAL"},
		{"DATABASE_DRIVER", "mysql", "unsupported database driver"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_PostgresRequiresURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_DRIVER", "postgres")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database url is required")

	t.Setenv("DATABASE_URL", "postgres://localhost/hlsd")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "hlsd.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
port = 8100
storage_root = "/srv/hlsd"

[database]
driver = "jsonfile"

[hls]
max_concurrent_streams = 3
queue_size = 16
progress_persist_seconds = 2

[startup]
retry_limit = 7
`), 0644))
	t.Setenv("PORT", "8200")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8200, cfg.Port, "env wins over the file")
	assert.Equal(t, "/srv/hlsd", cfg.StorageRoot)
	assert.Equal(t, DriverJSONFile, cfg.Database.Driver)
	assert.Equal(t, 3, cfg.HLS.MaxConcurrentStreams)
	assert.Equal(t, 16, cfg.HLS.QueueSize)
	assert.Equal(t, 2*time.Second, cfg.HLS.PersistInterval)
	assert.Equal(t, 7, cfg.Startup.RetryLimit)
	assert.True(t, cfg.Startup.RetryEnabled, "unset file keys keep defaults")
}

func TestLoad_ConfigFromEnvPath(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "hlsd.toml")
	require.NoError(t, os.WriteFile(path, []byte("port = 8300\n"), 0644))
	t.Setenv("HLSD_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8300, cfg.Port)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, 7890, cfg.Port)
}

func TestLoad_MalformedFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "hlsd.toml")
	require.NoError(t, os.WriteFile(path, []byte("port = \"not a number\"\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestEnsureDirectories(t *testing.T) {
	clearEnv(t)
	root := filepath.Join(t.TempDir(), "data")
	t.Setenv("STORAGE_ROOT", root)

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.EnsureDirectories())

	for _, dir := range []string{root, cfg.MediaDir, cfg.HLSDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
