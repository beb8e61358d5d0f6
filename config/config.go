package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverJSONFile = "jsonfile"
)

type Config struct {
	Port        int    `toml:"port"`
	StorageRoot string `toml:"storage_root"`
	MediaDir    string `toml:"-"`
	HLSDir      string `toml:"-"`

	Database Database `toml:"database"`
	HLS      HLS      `toml:"hls"`
	Startup  Startup  `toml:"startup"`
	Encoder  Encoder  `toml:"encoder"`
	Logging  Logging  `toml:"logging"`
}

type Database struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
	URL    string `toml:"url"`
}

type HLS struct {
	MaxConcurrentStreams int           `toml:"max_concurrent_streams"`
	QueueSize            int           `toml:"queue_size"`
	SegmentSeconds       int           `toml:"segment_seconds"`
	PersistSeconds       int           `toml:"progress_persist_seconds"`
	PersistInterval      time.Duration `toml:"-"`
}

type Startup struct {
	RetryEnabled bool `toml:"retry_enabled"`
	RetryLimit   int  `toml:"retry_limit"`
}

type Encoder struct {
	FFmpeg  string `toml:"ffmpeg"`
	FFprobe string `toml:"ffprobe"`
}

type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

func Default() Config {
	return Config{
		Port:        7890,
		StorageRoot: "storage",
		Database: Database{
			Driver: DriverSQLite,
		},
		HLS: HLS{
			MaxConcurrentStreams: 2,
			QueueSize:            256,
			SegmentSeconds:       6,
			PersistInterval:      5 * time.Second,
		},
		Startup: Startup{
			RetryEnabled: true,
			RetryLimit:   50,
		},
		Encoder: Encoder{
			FFmpeg:  "ffmpeg",
			FFprobe: "ffprobe",
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, then the TOML file at path
// (or HLSD_CONFIG) when one exists, then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("HLSD_CONFIG")
	}
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open config: %w", err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if c.HLS.PersistSeconds != 0 {
		c.HLS.PersistInterval = time.Duration(c.HLS.PersistSeconds) * time.Second
	}
	return nil
}

func (c *Config) applyEnv() error {
	var err error
	if c.Port, err = envInt("PORT", c.Port); err != nil {
		return err
	}
	c.StorageRoot = getEnv("STORAGE_ROOT", c.StorageRoot)
	c.Database.Driver = getEnv("DATABASE_DRIVER", c.Database.Driver)
	c.Database.Path = getEnv("DATABASE_PATH", c.Database.Path)
	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)

	if c.HLS.MaxConcurrentStreams, err = envInt("HLS_MAX_CONCURRENT_STREAMS", c.HLS.MaxConcurrentStreams); err != nil {
		return err
	}
	if c.HLS.QueueSize, err = envInt("HLS_QUEUE_SIZE", c.HLS.QueueSize); err != nil {
		return err
	}
	if c.HLS.SegmentSeconds, err = envInt("HLS_SEGMENT_SECONDS", c.HLS.SegmentSeconds); err != nil {
		return err
	}
	if v := os.Getenv("HLS_PROGRESS_PERSIST_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid HLS_PROGRESS_PERSIST_INTERVAL: %w", err)
		}
		c.HLS.PersistInterval = d
	}

	if v := os.Getenv("STARTUP_HLS_RETRY_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid STARTUP_HLS_RETRY_ENABLED: %w", err)
		}
		c.Startup.RetryEnabled = enabled
	}
	if c.Startup.RetryLimit, err = envInt("STARTUP_HLS_RETRY_LIMIT", c.Startup.RetryLimit); err != nil {
		return err
	}

	c.Encoder.FFmpeg = getEnv("FFMPEG_BIN", c.Encoder.FFmpeg)
	c.Encoder.FFprobe = getEnv("FFPROBE_BIN", c.Encoder.FFprobe)
	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)
	return nil
}

func (c *Config) normalize() {
	if root := strings.TrimSpace(c.StorageRoot); root != "" {
		c.StorageRoot = filepath.Clean(root)
	} else {
		c.StorageRoot = ""
	}
	c.MediaDir = filepath.Join(c.StorageRoot, "media")
	c.HLSDir = filepath.Join(c.StorageRoot, "hls")
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(c.StorageRoot, "database.db")
	}
	if c.HLS.MaxConcurrentStreams < 1 {
		c.HLS.MaxConcurrentStreams = 1
	}
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.StorageRoot == "" {
		return fmt.Errorf("storage root is required")
	}
	switch c.Database.Driver {
	case DriverSQLite, DriverJSONFile:
	case DriverPostgres:
		if strings.TrimSpace(c.Database.URL) == "" {
			return fmt.Errorf("database url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.HLS.QueueSize < 1 {
		return fmt.Errorf("hls queue size must be positive, got %d", c.HLS.QueueSize)
	}
	if c.HLS.SegmentSeconds < 1 {
		return fmt.Errorf("hls segment seconds must be at least 1, got %d", c.HLS.SegmentSeconds)
	}
	if c.HLS.PersistInterval < 0 {
		return fmt.Errorf("progress persist interval must not be negative")
	}
	if c.Startup.RetryLimit < 0 {
		return fmt.Errorf("startup retry limit must not be negative, got %d", c.Startup.RetryLimit)
	}
	return nil
}

// EnsureDirectories creates the storage root and its media and HLS
// directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.StorageRoot, c.MediaDir, c.HLSDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
