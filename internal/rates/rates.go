// Package rates supplies the USD-based exchange-rate table the catalog
// converts incomes with.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/iwvelando/tax-atlas/internal/config"
	"github.com/iwvelando/tax-atlas/internal/tax"
	"github.com/iwvelando/tax-atlas/pkg/constants"
	"github.com/iwvelando/tax-atlas/pkg/mathutil"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedBase is returned for a rate table not quoted against USD.
var ErrUnsupportedBase = errors.New("exchange rates must be quoted against USD")

// Provider returns the current exchange-rate table.
type Provider interface {
	Rates(ctx context.Context) (tax.ExchangeRates, error)
}

// Normalize upper-cases the codes, drops unusable entries and sets the USD
// parity entry.
func Normalize(in map[string]float64) tax.ExchangeRates {
	out := make(tax.ExchangeRates, len(in)+1)
	for code, rate := range in {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" || rate <= 0 || !mathutil.IsFinite(rate) {
			continue
		}
		out[code] = rate
	}
	out[constants.BaseCurrency] = 1
	return out
}

func checkBase(base string) error {
	if base == "" || strings.EqualFold(base, constants.BaseCurrency) {
		return nil
	}
	return fmt.Errorf("%w: got %s", ErrUnsupportedBase, base)
}

func clone(in tax.ExchangeRates) tax.ExchangeRates {
	out := make(tax.ExchangeRates, len(in))
	for code, rate := range in {
		out[code] = rate
	}
	return out
}

// StaticProvider serves a fixed table.
type StaticProvider struct {
	rates tax.ExchangeRates
}

// NewStaticProvider returns a provider for the given rates.
func NewStaticProvider(rates map[string]float64) *StaticProvider {
	return &StaticProvider{rates: Normalize(rates)}
}

// Rates returns a copy of the fixed table.
func (p *StaticProvider) Rates(context.Context) (tax.ExchangeRates, error) {
	return clone(p.rates), nil
}

// table is the document layout shared by rate files and the HTTP source.
type table struct {
	Base  string             `yaml:"base" json:"base"`
	Rates map[string]float64 `yaml:"rates" json:"rates"`
}

// FileProvider reads a YAML or JSON rate file on every call.
type FileProvider struct {
	path string
}

// NewFileProvider returns a provider reading path.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// Rates reads and decodes the rate file.
func (p *FileProvider) Rates(context.Context) (tax.ExchangeRates, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rates file %s: %w", p.path, err)
	}
	return Parse(data)
}

// Parse decodes a rate document of the form {base: USD, rates: {EUR: 0.92}}.
// JSON is accepted as a YAML subset.
func Parse(data []byte) (tax.ExchangeRates, error) {
	var doc table
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rates: %w", err)
	}
	if err := checkBase(doc.Base); err != nil {
		return nil, err
	}
	if len(doc.Rates) == 0 {
		return nil, errors.New("rates document has no rates")
	}
	return Normalize(doc.Rates), nil
}

// HTTPProvider fetches rates from a JSON endpoint returning
// {"base": "USD", "rates": {...}} and caches them for a TTL. When a refresh
// fails it serves the last good table.
type HTTPProvider struct {
	url      string
	client   *http.Client
	logger   *zap.Logger
	cacheTTL time.Duration
	now      func() time.Time

	mu        sync.RWMutex
	cached    tax.ExchangeRates
	fetchedAt time.Time
}

// NewHTTPProvider returns a provider for url. A zero timeout or cacheTTL
// falls back to the package defaults.
func NewHTTPProvider(logger *zap.Logger, url string, timeout, cacheTTL time.Duration) *HTTPProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = constants.DefaultRatesTimeoutSeconds * time.Second
	}
	if cacheTTL <= 0 {
		cacheTTL = constants.DefaultRatesCacheTTLMinutes * time.Minute
	}
	return &HTTPProvider{
		url:      url,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// Rates returns the cached table while it is fresh and refetches otherwise.
func (p *HTTPProvider) Rates(ctx context.Context) (tax.ExchangeRates, error) {
	if rates, ok := p.fresh(); ok {
		return rates, nil
	}

	rates, err := p.fetch(ctx)
	if err != nil {
		p.mu.RLock()
		stale := p.cached
		p.mu.RUnlock()
		if stale != nil {
			p.logger.Warn("failed to refresh exchange rates, serving cached table",
				zap.String("op", "rates.HTTPProvider.Rates"),
				zap.String("url", p.url),
				zap.Error(err),
			)
			return clone(stale), nil
		}
		return nil, err
	}

	p.mu.Lock()
	p.cached = rates
	p.fetchedAt = p.now()
	p.mu.Unlock()

	p.logger.Debug("exchange rates refreshed",
		zap.String("op", "rates.HTTPProvider.Rates"),
		zap.Int("currencies", len(rates)),
	)
	return clone(rates), nil
}

func (p *HTTPProvider) fresh() (tax.ExchangeRates, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cached == nil || p.now().Sub(p.fetchedAt) >= p.cacheTTL {
		return nil, false
	}
	return clone(p.cached), true
}

func (p *HTTPProvider) fetch(ctx context.Context) (tax.ExchangeRates, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build rates request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch exchange rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("exchange rate source returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var doc struct {
		table
		BaseCode string `json:"base_code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode exchange rates: %w", err)
	}
	base := doc.Base
	if base == "" {
		base = doc.BaseCode
	}
	if err := checkBase(base); err != nil {
		return nil, err
	}
	if len(doc.Rates) == 0 {
		return nil, errors.New("exchange rate source returned no rates")
	}
	return Normalize(doc.Rates), nil
}

// FromConfig returns the provider selected by cfg.
func FromConfig(logger *zap.Logger, cfg config.RatesConfig) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Source)) {
	case "", constants.RatesSourceFile:
		path := cfg.File
		if path == "" {
			path = constants.DefaultRatesFile
		}
		return NewFileProvider(path), nil
	case constants.RatesSourceHTTP:
		url := cfg.URL
		if url == "" {
			url = constants.DefaultRatesURL
		}
		return NewHTTPProvider(logger, url, cfg.Timeout, cfg.CacheTTL), nil
	case constants.RatesSourceStatic:
		return NewStaticProvider(cfg.Static), nil
	default:
		return nil, fmt.Errorf("unknown rates source %q", cfg.Source)
	}
}
