package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/rasky/gzstream"
)

// Config holds the settings of the gzseek command
type Config struct {
	// Reader tuning
	ChunkSize    int   `yaml:"chunk_size"`
	MaxChunkSize int   `yaml:"max_chunk_size"`
	Span         int64 `yaml:"span"`
	OutputSize   int   `yaml:"output_size"`

	// Where --resume keeps read positions
	StatePath string `yaml:"state_path"`

	// Observability
	LogLevel string  `yaml:"log_level"`
	Tracing  Tracing `yaml:"tracing"`
}

// Tracing configures span export over OTLP
type Tracing struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		ChunkSize:    gzstream.DefaultChunkSize,
		MaxChunkSize: gzstream.MaxChunkSize,
		Span:         gzstream.DefaultSpan,
		OutputSize:   gzstream.DefaultOutputSize,
		StatePath:    defaultStatePath(),
		LogLevel:     "warn",
		Tracing: Tracing{
			Protocol: "grpc",
		},
	}
}

// Load reads the YAML file at path, if any, over the defaults, then applies
// GZSEEK_* environment variables and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := ioutil.ReadFile(path)
		if err != nil {
			return nil, errors.Annotate(err, "reading config")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Annotatef(err, "parsing config %s", path)
		}
	}

	cfg.ChunkSize = getEnvInt("GZSEEK_CHUNK_SIZE", cfg.ChunkSize)
	cfg.MaxChunkSize = getEnvInt("GZSEEK_MAX_CHUNK_SIZE", cfg.MaxChunkSize)
	cfg.Span = int64(getEnvInt("GZSEEK_SPAN", int(cfg.Span)))
	cfg.OutputSize = getEnvInt("GZSEEK_OUTPUT_SIZE", cfg.OutputSize)
	cfg.StatePath = getEnv("GZSEEK_STATE", cfg.StatePath)
	cfg.LogLevel = getEnv("GZSEEK_LOG_LEVEL", cfg.LogLevel)
	cfg.Tracing.Enabled = getEnvBool("GZSEEK_TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Endpoint = getEnv("GZSEEK_TRACING_ENDPOINT", cfg.Tracing.Endpoint)
	cfg.Tracing.Protocol = getEnv("GZSEEK_TRACING_PROTOCOL", cfg.Tracing.Protocol)

	if err := cfg.Validate(); err != nil {
		return nil, errors.Annotate(err, "config validation failed")
	}
	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.ChunkSize < 512 {
		return errors.NotValidf("chunk_size %d (minimum 512)", c.ChunkSize)
	}
	if c.MaxChunkSize < c.ChunkSize {
		return errors.NotValidf("max_chunk_size %d below chunk_size %d", c.MaxChunkSize, c.ChunkSize)
	}
	if c.Span < 32*1024 {
		return errors.NotValidf("span %d (minimum 32768)", c.Span)
	}
	if c.OutputSize < 1024 {
		return errors.NotValidf("output_size %d (minimum 1024)", c.OutputSize)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return errors.NotValidf("log_level %q", c.LogLevel)
	}
	if c.Tracing.Enabled {
		switch c.Tracing.Protocol {
		case "grpc", "http":
		default:
			return errors.NotValidf("tracing protocol %q (use grpc or http)", c.Tracing.Protocol)
		}
	}
	return nil
}

// Options converts the reader settings to library options
func (c *Config) Options(log zerolog.Logger) []gzstream.Option {
	return []gzstream.Option{
		gzstream.WithChunkSize(c.ChunkSize),
		gzstream.WithMaxChunkSize(c.MaxChunkSize),
		gzstream.WithSpan(c.Span),
		gzstream.WithOutputSize(c.OutputSize),
		gzstream.WithLogger(log),
	}
}

func defaultStatePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ".gzseek.db"
	}
	return filepath.Join(dir, "gzseek", "offsets.db")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
