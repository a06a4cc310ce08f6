package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/iwvelando/tax-atlas/pkg/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeServerConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server-config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
	return path
}

func TestLoadConfigDefaultsWhenMissing(t *testing.T) {
	for _, path := range []string{"", filepath.Join(t.TempDir(), "missing.yaml")} {
		cfg, err := LoadConfig(path)
		require.NoError(t, err)

		assert.Equal(t, constants.DefaultServerAddress, cfg.Address)
		assert.Equal(t, constants.DefaultMaxUploadSizeBytes, cfg.UploadSizeBytes())
		assert.Equal(t, 30*time.Second, cfg.Timeouts.Read)
		assert.Equal(t, 60*time.Second, cfg.Timeouts.Write)
		assert.Equal(t, 10*time.Second, cfg.Timeouts.Shutdown)
		assert.Empty(t, cfg.Logging.Level)
		assert.Equal(t, constants.RatesSourceFile, cfg.Rates.Source)
		assert.Equal(t, constants.DefaultRatesFile, cfg.Rates.File)
		assert.Equal(t, constants.DefaultRatesCacheTTLMinutes*time.Minute, cfg.Rates.CacheTTL)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeServerConfig(t, `address: 127.0.0.1:9000
maxUploadSize: 2M
timeouts:
  write: 90s
logging:
  level: debug
  format: console
rates:
  source: HTTP
  url: https://rates.example/latest
  timeout: 3s
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Address)
	assert.Equal(t, int64(2*1024*1024), cfg.UploadSizeBytes())
	assert.Equal(t, 90*time.Second, cfg.Timeouts.Write)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.Read, "unset timeouts keep their default")
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, constants.RatesSourceHTTP, cfg.Rates.Source)
	assert.Equal(t, "https://rates.example/latest", cfg.Rates.URL)
	assert.Equal(t, 3*time.Second, cfg.Rates.Timeout)
	assert.Equal(t, constants.DefaultRatesCacheTTLMinutes*time.Minute, cfg.Rates.CacheTTL)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := map[string]string{
		"bad size":     "maxUploadSize: invalid",
		"bad yaml":     "address: [unterminated",
		"bad duration": "timeouts:\n  read: soon",
	}

	for name, contents := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeServerConfig(t, contents))
			assert.Error(t, err)
		})
	}
}

func TestSetUploadSizeBytes(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	cfg.SetUploadSizeBytes(4096)
	assert.Equal(t, int64(4096), cfg.UploadSizeBytes())
	assert.Equal(t, "4096", cfg.MaxUploadSize)

	cfg.SetUploadSizeBytes(0)
	assert.Equal(t, int64(4096), cfg.UploadSizeBytes())
}

func TestParseSize(t *testing.T) {
	tests := map[string]int64{
		"":          constants.DefaultMaxUploadSizeBytes,
		"1024":      1024,
		"512b":      512,
		"256K":      256 * 1024,
		"1m":        1024 * 1024,
		"3MB":       3 * 1024 * 1024,
		"2G":        2 * 1024 * 1024 * 1024,
		"  4096   ": 4096,
		"16 kb":     16 * 1024,
	}

	for input, expected := range tests {
		got, err := ParseSize(input)
		require.NoError(t, err, "ParseSize(%q)", input)
		assert.Equal(t, expected, got, "ParseSize(%q)", input)
	}

	for _, input := range []string{"1TB", "abc", "-5K", "99999999999G"} {
		_, err := ParseSize(input)
		assert.Error(t, err, "ParseSize(%q)", input)
	}
}
