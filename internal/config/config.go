// Package config defines the data structures related to configuration and
// includes functions for loading, defaulting and validating it.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/iwvelando/tax-atlas/internal/tax"
	"github.com/iwvelando/tax-atlas/pkg/constants"
	"github.com/iwvelando/tax-atlas/pkg/validation"
	"github.com/spf13/viper"
)

// Configuration holds all configuration for tax-atlas.
type Configuration struct {
	Logging   LoggingConfig `yaml:"logging,omitempty"`
	Output    OutputConfig  `yaml:"output,omitempty"`
	Profile   tax.Profile   `yaml:"profile,omitempty"`
	Countries []string      `yaml:"countries,omitempty"`
	Rates     RatesConfig   `yaml:"rates,omitempty"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty"`      // debug, info, warn, error
	Format     string `yaml:"format,omitempty"`     // json, console
	OutputFile string `yaml:"outputFile,omitempty"` // optional file output
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format string `yaml:"format,omitempty"` // pretty, csv, json
}

// RatesConfig selects where exchange rates come from.
type RatesConfig struct {
	Source   string             `yaml:"source,omitempty"` // file, http, static
	File     string             `yaml:"file,omitempty"`
	URL      string             `yaml:"url,omitempty"`
	Timeout  time.Duration      `yaml:"timeout,omitempty"`
	CacheTTL time.Duration      `yaml:"cacheTTL,omitempty"`
	Static   map[string]float64 `yaml:"static,omitempty"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("output.format", constants.OutputFormatPretty)
	v.SetDefault("profile.incomeUSD", constants.DefaultIncomeUSD)
	v.SetDefault("profile.married", false)
	v.SetDefault("profile.oneIncome", true)
	v.SetDefault("rates.source", constants.RatesSourceFile)
	v.SetDefault("rates.file", constants.DefaultRatesFile)
	v.SetDefault("rates.url", constants.DefaultRatesURL)
	v.SetDefault("rates.timeout", constants.DefaultRatesTimeoutSeconds*time.Second)
	v.SetDefault("rates.cacheTTL", constants.DefaultRatesCacheTTLMinutes*time.Minute)
}

// Default returns the configuration used when no file is given.
func Default() *Configuration {
	v := viper.New()
	setDefaults(v)
	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return &configuration
}

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// configuration there. Environment variables override file values, with
// nested keys joined by underscores (RATES_SOURCE, PROFILE_INCOMEUSD).
func LoadConfiguration(configPath string) (*Configuration, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigType("yml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file, %s", err)
	}

	return decode(v)
}

// LoadConfigurationFromReader loads a YAML configuration from r.
func LoadConfigurationFromReader(r io.Reader) (*Configuration, error) {
	v := viper.New()
	v.SetConfigType("yml")
	setDefaults(v)

	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("error reading config, %s", err)
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Configuration, error) {
	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %s", err)
	}
	configuration.Rates.Source = strings.ToLower(strings.TrimSpace(configuration.Rates.Source))
	configuration.Output.Format = strings.ToLower(strings.TrimSpace(configuration.Output.Format))
	return &configuration, nil
}

// ValidateConfiguration performs general validation of the configuration
// against the known country names and returns warnings.
func (c *Configuration) ValidateConfiguration(known []string) []string {
	var warnings []string

	if c.Profile.IncomeUSD < 0 {
		warnings = append(warnings, fmt.Sprintf("profile income %.2f USD is negative", c.Profile.IncomeUSD))
	}
	if c.Profile.IncomeUSD == 0 {
		warnings = append(warnings, "profile income is zero; effective rates are undefined")
	}
	if !c.Profile.Possible() {
		warnings = append(warnings, "profile describes a single taxpayer with two incomes; countries that branch on filing status will reject it")
	}

	if len(known) > 0 {
		for _, name := range validation.UnknownCountries(c.Countries, known) {
			warnings = append(warnings, fmt.Sprintf("country %q is not in the catalog and will report no information", name))
		}
	}

	if c.Output.Format != "" {
		if err := validation.ValidateOutputFormat(c.Output.Format); err != nil {
			warnings = append(warnings, fmt.Sprintf("unknown output format %q", c.Output.Format))
		}
	}

	switch c.Rates.Source {
	case constants.RatesSourceFile:
		if _, err := os.Stat(c.Rates.File); errors.Is(err, fs.ErrNotExist) {
			warnings = append(warnings, fmt.Sprintf("rates file %s does not exist", c.Rates.File))
		}
	case constants.RatesSourceHTTP:
		if strings.TrimSpace(c.Rates.URL) == "" {
			warnings = append(warnings, "rates source is http but no url is configured")
		}
	case constants.RatesSourceStatic:
		if len(c.Rates.Static) == 0 {
			warnings = append(warnings, "rates source is static but no rates are configured; every converted country will report no information")
		}
	default:
		warnings = append(warnings, fmt.Sprintf("unknown rates source %q", c.Rates.Source))
	}

	return warnings
}
