package server

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/iwvelando/tax-atlas/internal/config"
	"github.com/iwvelando/tax-atlas/pkg/constants"
	"gopkg.in/yaml.v3"
)

// Config defines runtime parameters for the tax API server.
type Config struct {
	Address       string               `yaml:"address"`
	MaxUploadSize string               `yaml:"maxUploadSize"`
	Timeouts      Timeouts             `yaml:"timeouts"`
	Logging       config.LoggingConfig `yaml:"logging"`
	Rates         config.RatesConfig   `yaml:"rates"`

	uploadSizeBytes int64
}

// Timeouts bounds the lifetime of requests and of the shutdown grace period.
type Timeouts struct {
	Read     time.Duration `yaml:"read"`
	Write    time.Duration `yaml:"write"`
	Shutdown time.Duration `yaml:"shutdown"`
}

func defaultConfig() *Config {
	return &Config{
		Address:       constants.DefaultServerAddress,
		MaxUploadSize: strconv.FormatInt(constants.DefaultMaxUploadSizeBytes, 10),
		Timeouts: Timeouts{
			Read:     constants.DefaultReadTimeoutSeconds * time.Second,
			Write:    constants.DefaultWriteTimeoutSeconds * time.Second,
			Shutdown: constants.DefaultShutdownTimeoutSeconds * time.Second,
		},
		Rates:           config.Default().Rates,
		uploadSizeBytes: constants.DefaultMaxUploadSizeBytes,
	}
}

// LoadConfig reads the server configuration from a YAML file. A missing file
// yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read server config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse server config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UploadSizeBytes returns the request body limit in bytes.
func (c *Config) UploadSizeBytes() int64 {
	return c.uploadSizeBytes
}

// SetUploadSizeBytes overrides the request body limit. Non-positive sizes are
// ignored.
func (c *Config) SetUploadSizeBytes(size int64) {
	if size <= 0 {
		return
	}
	c.uploadSizeBytes = size
	c.MaxUploadSize = strconv.FormatInt(size, 10)
}

func (c *Config) normalize() error {
	defaults := defaultConfig()

	c.Address = strings.TrimSpace(c.Address)
	if c.Address == "" {
		c.Address = defaults.Address
	}

	if c.Timeouts.Read <= 0 {
		c.Timeouts.Read = defaults.Timeouts.Read
	}
	if c.Timeouts.Write <= 0 {
		c.Timeouts.Write = defaults.Timeouts.Write
	}
	if c.Timeouts.Shutdown <= 0 {
		c.Timeouts.Shutdown = defaults.Timeouts.Shutdown
	}

	c.Rates.Source = strings.ToLower(strings.TrimSpace(c.Rates.Source))
	if c.Rates.Source == "" {
		c.Rates.Source = constants.RatesSourceFile
	}

	size, err := ParseSize(c.MaxUploadSize)
	if err != nil {
		return err
	}
	if size <= 0 {
		size = constants.DefaultMaxUploadSizeBytes
	}
	c.SetUploadSizeBytes(size)
	return nil
}

// sizeUnits is ordered so that two-letter suffixes are tried first.
var sizeUnits = []struct {
	suffix     string
	multiplier int64
}{
	{"KB", 1 << 10},
	{"MB", 1 << 20},
	{"GB", 1 << 30},
	{"K", 1 << 10},
	{"M", 1 << 20},
	{"G", 1 << 30},
	{"B", 1},
}

// ParseSize converts a byte count such as "256K" or "10MB" into bytes. An
// empty value yields the default request limit.
func ParseSize(value string) (int64, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(value))
	if trimmed == "" {
		return constants.DefaultMaxUploadSizeBytes, nil
	}

	number, multiplier := trimmed, int64(1)
	for _, unit := range sizeUnits {
		if rest, ok := strings.CutSuffix(trimmed, unit.suffix); ok {
			number, multiplier = strings.TrimSpace(rest), unit.multiplier
			break
		}
	}

	n, err := strconv.ParseInt(number, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", value, err)
	}
	if n < 0 || n > (1<<63-1)/multiplier {
		return 0, fmt.Errorf("size %q is out of range", value)
	}
	return n * multiplier, nil
}
