package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/iwvelando/tax-atlas/internal/atlas"
	"github.com/iwvelando/tax-atlas/internal/catalog"
	"github.com/iwvelando/tax-atlas/internal/config"
	"github.com/iwvelando/tax-atlas/internal/logging"
	"github.com/iwvelando/tax-atlas/internal/optimizer"
	"github.com/iwvelando/tax-atlas/internal/rates"
	"github.com/iwvelando/tax-atlas/internal/tax"
	"github.com/iwvelando/tax-atlas/pkg/constants"
	"github.com/iwvelando/tax-atlas/pkg/optimization"
	"github.com/iwvelando/tax-atlas/pkg/output"
	"github.com/iwvelando/tax-atlas/pkg/validation"
	"go.uber.org/zap"
)

// loadConfiguration reads configPath, falling back to defaults when the
// default file is absent.
func loadConfiguration(configPath string, explicit bool) (*config.Configuration, error) {
	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) && !explicit {
		return config.Default(), nil
	}
	return config.LoadConfiguration(configPath)
}

func main() {
	// Process command line flags first to get config location
	configLocation := flag.String("config", constants.DefaultConfigFile, "path to configuration file")
	countries := flag.String("country", "", "comma-separated countries to evaluate (default all)")
	income := flag.Float64("income", constants.DefaultIncomeUSD, "gross annual income in USD")
	married := flag.Bool("married", false, "taxpayer is married")
	oneIncome := flag.Bool("one-income", true, "household has a single income")
	outputFormatFlag := flag.String("output-format", "", "type of output override: pretty, csv, json")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	explain := flag.String("explain", "", "print the bracket breakdown for one country")
	targetRate := flag.Float64("target-rate", 0, "find the income at which each country reaches this effective rate (0-1)")
	flag.Parse()

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	conf, err := loadConfiguration(*configLocation, set["config"])
	if err != nil {
		logging.Fatal("failed to load configuration at "+*configLocation, err)
		os.Exit(1)
	}

	// Initialize logging based on config and CLI override
	logger, err := logging.New(conf.Logging, *logLevel)
	if err != nil {
		logging.Fatal("failed to initialize logger", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	// Command line flags take precedence over the configuration file
	if set["income"] {
		conf.Profile.IncomeUSD = *income
	}
	if set["married"] {
		conf.Profile.Married = *married
	}
	if set["one-income"] {
		conf.Profile.OneIncome = *oneIncome
	}
	if set["country"] {
		conf.Countries = splitList(*countries)
	}

	outputFormat := conf.Output.Format
	if *outputFormatFlag != "" {
		outputFormat = strings.ToLower(*outputFormatFlag)
	}
	if outputFormat == "" {
		outputFormat = constants.OutputFormatPretty
	}

	if err := validation.ValidateOutputFormat(outputFormat); err != nil {
		logger.Fatal(err.Error(),
			zap.String("op", "main"),
		)
	}

	c, err := catalog.Load(logger)
	if err != nil {
		logger.Fatal("failed to load country catalog",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}

	// Validate configuration and display any warnings
	for _, warning := range conf.ValidateConfiguration(c.Names()) {
		logger.Warn("Configuration warning: "+warning,
			zap.String("op", "main"),
		)
	}

	if err := validation.ValidateProfile(conf.Profile); err != nil {
		logger.Fatal("invalid taxpayer profile",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}

	provider, err := rates.FromConfig(logger, conf.Rates)
	if err != nil {
		logger.Fatal("failed to configure exchange rates",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}

	ctx, cancel := context.WithTimeout(context.Background(), conf.Rates.Timeout+5*time.Second)
	defer cancel()
	exchangeRates, err := provider.Rates(ctx)
	if err != nil {
		logger.Fatal("failed to load exchange rates",
			zap.String("op", "main"),
			zap.String("source", conf.Rates.Source),
			zap.Error(err),
		)
	}

	if *explain != "" {
		result, err := c.Evaluate(*explain, conf.Profile, exchangeRates)
		if err != nil {
			logger.Fatal("failed to evaluate country",
				zap.String("op", "main"),
				zap.String("country", *explain),
				zap.Error(err),
			)
		}
		explanations, err := c.Explain(*explain, conf.Profile, exchangeRates)
		if err != nil {
			logger.Fatal("failed to explain country",
				zap.String("op", "main"),
				zap.String("country", *explain),
				zap.Error(err),
			)
		}
		if err := output.ExplainFormat(os.Stdout, atlas.Entry{Country: *explain, Result: result}, explanations); err != nil {
			logger.Fatal("failed to write output", zap.String("op", "main"), zap.Error(err))
		}
		return
	}

	if set["target-rate"] {
		solve(logger, c, conf, exchangeRates, *targetRate)
		return
	}

	entries, err := atlas.GetAtlas(logger, c, conf.Countries, conf.Profile, exchangeRates)
	if err != nil {
		logger.Fatal("failed to compute atlas",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}

	// Handle output.
	switch outputFormat {
	case constants.OutputFormatPretty:
		err = output.PrettyFormat(os.Stdout, conf.Profile, entries)
	case constants.OutputFormatCSV:
		err = output.CsvFormat(os.Stdout, entries)
	case constants.OutputFormatJSON:
		err = output.JSONFormat(os.Stdout, conf.Profile, entries)
	}
	if err != nil {
		logger.Fatal("failed to write output",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}
}

func solve(logger *zap.Logger, c *catalog.Catalog, conf *config.Configuration, exchangeRates tax.ExchangeRates, target float64) {
	runner, err := optimizer.NewRunner(logger, c, exchangeRates)
	if err != nil {
		logger.Fatal("failed to initialize optimizer", zap.String("op", "main"), zap.Error(err))
	}

	names := conf.Countries
	if len(names) == 0 {
		names = c.Names()
	}

	summaries := make([]optimization.Summary, 0, len(names))
	for _, name := range names {
		summary, err := runner.Solve(name, conf.Profile, target)
		if errors.Is(err, optimizer.ErrRateUnavailable) {
			logger.Warn("skipping country without an effective rate",
				zap.String("op", "main"),
				zap.String("country", name),
			)
			continue
		}
		if err != nil {
			logger.Fatal("optimizer execution failed",
				zap.String("op", "main"),
				zap.String("country", name),
				zap.Error(err),
			)
		}
		summaries = append(summaries, summary)
	}

	if err := output.SolveFormat(os.Stdout, summaries); err != nil {
		logger.Fatal("failed to write output", zap.String("op", "main"), zap.Error(err))
	}
}

func splitList(value string) []string {
	var names []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names
}
