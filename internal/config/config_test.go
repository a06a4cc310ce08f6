package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/iwvelando/tax-atlas/pkg/constants"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadConfiguration(t *testing.T) {
	tests := []struct {
		name       string
		configPath string
		wantError  bool
	}{
		{
			name:       "Non-existent config file",
			configPath: "nonexistent.yaml",
			wantError:  true,
		},
		{
			name:       "Minimal config file",
			configPath: "",
			wantError:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.configPath
			if path == "" {
				path = writeConfig(t, "countries: [Spain]\n")
			}
			config, err := LoadConfiguration(path)
			if tt.wantError {
				if err == nil {
					t.Errorf("LoadConfiguration() expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("LoadConfiguration() error = %v", err)
				return
			}
			if config == nil {
				t.Errorf("LoadConfiguration() returned nil config")
			}
		})
	}
}

func TestLoadConfigurationDefaults(t *testing.T) {
	config, err := LoadConfiguration(writeConfig(t, "countries: []\n"))
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}

	if config.Profile.IncomeUSD != constants.DefaultIncomeUSD {
		t.Errorf("Expected default income %v, got %v", constants.DefaultIncomeUSD, config.Profile.IncomeUSD)
	}
	if config.Profile.Married || !config.Profile.OneIncome {
		t.Errorf("Expected single taxpayer with one income, got %+v", config.Profile)
	}
	if config.Output.Format != constants.OutputFormatPretty {
		t.Errorf("Expected output format %q, got %q", constants.OutputFormatPretty, config.Output.Format)
	}
	if config.Rates.Source != constants.RatesSourceFile || config.Rates.File != constants.DefaultRatesFile {
		t.Errorf("Unexpected rates defaults: %+v", config.Rates)
	}
	if config.Rates.Timeout != 10*time.Second || config.Rates.CacheTTL != time.Hour {
		t.Errorf("Unexpected rates durations: timeout=%v cacheTTL=%v", config.Rates.Timeout, config.Rates.CacheTTL)
	}
}

func TestLoadConfigurationStructure(t *testing.T) {
	content := `
logging:
  level: debug
  format: console
output:
  format: CSV
profile:
  incomeUSD: 85000
  married: true
  oneIncome: false
countries:
  - Spain
  - Portugal
rates:
  source: static
  timeout: 3s
  cacheTTL: 5m
  static:
    EUR: 0.92
    gbp: 0.79
`
	config, err := LoadConfiguration(writeConfig(t, content))
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}

	if config.Logging.Level != "debug" || config.Logging.Format != "console" {
		t.Errorf("Unexpected logging config: %+v", config.Logging)
	}
	if config.Output.Format != constants.OutputFormatCSV {
		t.Errorf("Expected output format to be normalized to csv, got %q", config.Output.Format)
	}
	if config.Profile.IncomeUSD != 85000 || !config.Profile.Married || config.Profile.OneIncome {
		t.Errorf("Unexpected profile: %+v", config.Profile)
	}
	if len(config.Countries) != 2 || config.Countries[0] != "Spain" {
		t.Errorf("Unexpected countries: %v", config.Countries)
	}
	if config.Rates.Source != constants.RatesSourceStatic {
		t.Errorf("Expected static source, got %q", config.Rates.Source)
	}
	if config.Rates.Timeout != 3*time.Second || config.Rates.CacheTTL != 5*time.Minute {
		t.Errorf("Unexpected durations: %+v", config.Rates)
	}
	if len(config.Rates.Static) != 2 {
		t.Fatalf("Expected two static rates, got %v", config.Rates.Static)
	}
	for code, rate := range config.Rates.Static {
		switch strings.ToUpper(code) {
		case "EUR":
			if rate != 0.92 {
				t.Errorf("Expected EUR 0.92, got %v", rate)
			}
		case "GBP":
			if rate != 0.79 {
				t.Errorf("Expected GBP 0.79, got %v", rate)
			}
		default:
			t.Errorf("Unexpected rate code %q", code)
		}
	}
}

func TestLoadConfigurationFromReader(t *testing.T) {
	config, err := LoadConfigurationFromReader(strings.NewReader("profile:\n  incomeUSD: 1000\n"))
	if err != nil {
		t.Fatalf("LoadConfigurationFromReader() error = %v", err)
	}
	if config.Profile.IncomeUSD != 1000 {
		t.Errorf("Expected income 1000, got %v", config.Profile.IncomeUSD)
	}
	if !config.Profile.OneIncome {
		t.Errorf("Expected oneIncome default to survive a partial profile")
	}

	if _, err := LoadConfigurationFromReader(strings.NewReader("profile: [unbalanced")); err == nil {
		t.Errorf("Expected error for malformed YAML")
	}
}

func TestDefault(t *testing.T) {
	config := Default()
	if config.Profile.IncomeUSD != constants.DefaultIncomeUSD || !config.Profile.OneIncome {
		t.Errorf("Unexpected default profile: %+v", config.Profile)
	}
	if config.Rates.URL != constants.DefaultRatesURL {
		t.Errorf("Unexpected default rates url %q", config.Rates.URL)
	}
}

func TestLoggingConfiguration(t *testing.T) {
	config := Configuration{
		Logging: LoggingConfig{
			Level:  "debug",
			Format: "console",
		},
	}

	if config.Logging.Level != "debug" {
		t.Errorf("Expected logging level 'debug', got '%s'", config.Logging.Level)
	}
	if config.Logging.Format != "console" {
		t.Errorf("Expected logging format 'console', got '%s'", config.Logging.Format)
	}

	emptyConfig := Configuration{}
	if emptyConfig.Logging.Level != "" {
		t.Errorf("Expected empty logging level, got '%s'", emptyConfig.Logging.Level)
	}
}

func TestValidateConfiguration(t *testing.T) {
	ratesFile := filepath.Join(t.TempDir(), "rates.yaml")
	if err := os.WriteFile(ratesFile, []byte("rates: {EUR: 1}\n"), 0o600); err != nil {
		t.Fatalf("failed to write rates file: %v", err)
	}
	known := []string{"Portugal", "Spain"}

	valid := func() Configuration {
		config := *Default()
		config.Rates.File = ratesFile
		config.Countries = []string{"Spain"}
		return config
	}

	tests := []struct {
		name     string
		mutate   func(*Configuration)
		contains []string
	}{
		{
			name:   "valid",
			mutate: func(*Configuration) {},
		},
		{
			name:     "unknown country",
			mutate:   func(c *Configuration) { c.Countries = []string{"Spain", "Atlantis"} },
			contains: []string{`"Atlantis"`},
		},
		{
			name:     "impossible profile",
			mutate:   func(c *Configuration) { c.Profile.OneIncome = false },
			contains: []string{"single taxpayer with two incomes"},
		},
		{
			name:     "negative income",
			mutate:   func(c *Configuration) { c.Profile.IncomeUSD = -1 },
			contains: []string{"negative"},
		},
		{
			name:     "zero income",
			mutate:   func(c *Configuration) { c.Profile.IncomeUSD = 0 },
			contains: []string{"undefined"},
		},
		{
			name:     "missing rates file",
			mutate:   func(c *Configuration) { c.Rates.File = filepath.Join(t.TempDir(), "absent.yaml") },
			contains: []string{"does not exist"},
		},
		{
			name: "http without url",
			mutate: func(c *Configuration) {
				c.Rates.Source = constants.RatesSourceHTTP
				c.Rates.URL = ""
			},
			contains: []string{"no url"},
		},
		{
			name:     "static without rates",
			mutate:   func(c *Configuration) { c.Rates.Source = constants.RatesSourceStatic },
			contains: []string{"no rates"},
		},
		{
			name:     "unknown source",
			mutate:   func(c *Configuration) { c.Rates.Source = "carrier-pigeon" },
			contains: []string{"unknown rates source"},
		},
		{
			name:     "unknown output format",
			mutate:   func(c *Configuration) { c.Output.Format = "xml" },
			contains: []string{"unknown output format"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid()
			tt.mutate(&config)
			warnings := config.ValidateConfiguration(known)

			if len(tt.contains) == 0 && len(warnings) != 0 {
				t.Errorf("Expected no warnings, got %v", warnings)
			}
			for _, want := range tt.contains {
				found := false
				for _, warning := range warnings {
					if strings.Contains(warning, want) {
						found = true
						break
					}
				}
				if !found {
					t.Errorf("Expected a warning containing %q, got %v", want, warnings)
				}
			}
		})
	}
}
