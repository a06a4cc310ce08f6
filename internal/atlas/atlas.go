// Package atlas evaluates a taxpayer profile across the country catalog and
// summarizes the resulting effective rates.
package atlas

import (
	"fmt"
	"sort"

	"github.com/iwvelando/tax-atlas/internal/catalog"
	"github.com/iwvelando/tax-atlas/internal/tax"
	"github.com/iwvelando/tax-atlas/pkg/constants"
	"github.com/iwvelando/tax-atlas/pkg/mathutil"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Entry holds the result computed for one country.
type Entry struct {
	Country string     `json:"country"`
	Result  tax.Result `json:"result"`
}

// MapValue returns the value used to color the country on a map: the
// effective rate, or 0 when it is undefined or not finite, limited to the
// map domain.
func (e Entry) MapValue() float64 {
	if !e.Result.Finite() {
		return 0
	}
	value, _ := e.Result.Value()
	return mathutil.Max(0, mathutil.Min(value, constants.MapDomainMax))
}

// Summary aggregates the effective rates of a set of entries. Min, Max and
// Mean cover only entries with a finite percentage and are zero when there
// are none.
type Summary struct {
	Count      int     `json:"count"`
	Available  int     `json:"available"`
	Min        float64 `json:"min"`
	MinCountry string  `json:"minCountry,omitempty"`
	Max        float64 `json:"max"`
	MaxCountry string  `json:"maxCountry,omitempty"`
	Mean       float64 `json:"mean"`
}

// GetAtlas evaluates profile for every country in names, or for the whole
// catalog when names is empty. Entries are sorted by country name. An
// impossible profile aborts the run.
func GetAtlas(logger *zap.Logger, c *catalog.Catalog, names []string, profile tax.Profile, rates tax.ExchangeRates) ([]Entry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(names) == 0 {
		names = c.Names()
	} else {
		names = lo.Uniq(names)
		sort.Strings(names)
	}

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		if _, ok := c.Lookup(name); !ok {
			logger.Warn("country is not in the catalog",
				zap.String("op", "atlas.GetAtlas"),
				zap.String("country", name),
			)
		}
		result, err := c.Evaluate(name, profile, rates)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate %s: %w", name, err)
		}
		entries = append(entries, Entry{Country: name, Result: result})
	}

	logger.Debug("atlas computed",
		zap.String("op", "atlas.GetAtlas"),
		zap.Int("countries", len(entries)),
		zap.Float64("incomeUSD", profile.IncomeUSD),
	)
	return entries, nil
}

// Summarize computes the summary statistics for entries.
func Summarize(entries []Entry) Summary {
	summary := Summary{Count: len(entries)}

	finite := lo.Filter(entries, func(e Entry, _ int) bool { return e.Result.Finite() })
	summary.Available = len(finite)
	if len(finite) == 0 {
		return summary
	}

	lowest := lo.MinBy(finite, func(a, b Entry) bool { return *a.Result.Percentage < *b.Result.Percentage })
	highest := lo.MaxBy(finite, func(a, b Entry) bool { return *a.Result.Percentage > *b.Result.Percentage })
	total := lo.SumBy(finite, func(e Entry) float64 { return *e.Result.Percentage })

	summary.Min, summary.MinCountry = *lowest.Result.Percentage, lowest.Country
	summary.Max, summary.MaxCountry = *highest.Result.Percentage, highest.Country
	summary.Mean = total / float64(len(finite))
	return summary
}

// Find returns the entry for country.
func Find(entries []Entry, country string) (Entry, bool) {
	return lo.Find(entries, func(e Entry) bool { return e.Country == country })
}
