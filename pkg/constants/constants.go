// Package constants provides shared constants for the tax-atlas application.
package constants

// Profile defaults
const (
	// DefaultIncomeUSD is the income used when no profile income is configured.
	// It matches the income the world map is rendered for.
	DefaultIncomeUSD = 200000.0

	// BaseCurrency is the currency incomes are expressed in.
	BaseCurrency = "USD"
)

// Rendering constants
const (
	// MapDomainMax is the top of the color scale domain for effective rates.
	MapDomainMax = 0.8

	// PercentageMultiplier is used for percentage conversions
	PercentageMultiplier = 100.0

	// DecimalPrecision is the precision for currency rounding (2 decimal places)
	DecimalPrecision = 100
)

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatCSV is the CSV output format
	OutputFormatCSV = "csv"

	// OutputFormatJSON is the JSON output format
	OutputFormatJSON = "json"
)

// Configuration file constants
const (
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "config.yaml"

	// DefaultServerConfigFile is the default server configuration file name
	DefaultServerConfigFile = "server-config.yaml"
)

// Exchange rate source constants
const (
	// RatesSourceFile loads exchange rates from a YAML or JSON file.
	RatesSourceFile = "file"

	// RatesSourceHTTP fetches exchange rates from a remote JSON API.
	RatesSourceHTTP = "http"

	// RatesSourceStatic uses the rates embedded in the configuration.
	RatesSourceStatic = "static"

	// DefaultRatesFile is the default exchange rate file name
	DefaultRatesFile = "rates.yaml"

	// DefaultRatesURL is the default remote exchange rate endpoint.
	DefaultRatesURL = "https://open.er-api.com/v6/latest/USD"

	// DefaultRatesTimeoutSeconds bounds a single remote fetch.
	DefaultRatesTimeoutSeconds = 10

	// DefaultRatesCacheTTLMinutes is how long a fetched table is reused.
	DefaultRatesCacheTTLMinutes = 60
)

// Server configuration defaults
const (
	// DefaultServerAddress is the default HTTP listen address for the API
	DefaultServerAddress = ":8080"

	// DefaultMaxUploadSizeBytes is the default maximum request body size (256 KB)
	DefaultMaxUploadSizeBytes int64 = 256 * 1024

	// DefaultReadTimeoutSeconds bounds reading a whole request.
	DefaultReadTimeoutSeconds = 30

	// DefaultWriteTimeoutSeconds bounds writing a response. Exchange rate
	// fetches happen inside this window.
	DefaultWriteTimeoutSeconds = 60

	// DefaultShutdownTimeoutSeconds is the grace period for in-flight requests.
	DefaultShutdownTimeoutSeconds = 10
)

// Tolerances
const (
	// RateTolerance is the tolerance used when comparing effective rates.
	RateTolerance = 1e-9
)

// Income search bounds
const (
	// SolverMinIncomeUSD is the lowest income the rate solver considers.
	SolverMinIncomeUSD = 1.0

	// SolverMaxIncomeUSD is the highest income the rate solver considers.
	SolverMaxIncomeUSD = 1e9

	// SolverToleranceUSD is the income precision the solver stops at.
	SolverToleranceUSD = 0.01

	// SolverMaxIterations bounds the bisection loop.
	SolverMaxIterations = 200
)
