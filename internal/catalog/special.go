package catalog

import (
	"math"

	"github.com/iwvelando/tax-atlas/internal/tax"
	"github.com/iwvelando/tax-atlas/pkg/progressive"
	"go.uber.org/zap"
)

// specialRules builds the rules whose formulas are not plain bracket tables.
// Entries declared with kind "special" in countries.yaml must appear here.
var specialRules = map[string]func(*zap.Logger, Country) tax.Rule{
	"Germany": germanyRule,
	"Albania": albaniaRule,
	"Uruguay": uruguayRule,
	"Jordan":  jordanRule,
}

// localized wraps a formula on local income with the currency conversion
// and result construction every special rule shares.
func localized(logger *zap.Logger, country Country, formula func(profile tax.Profile, local float64) float64) tax.Rule {
	return func(profile tax.Profile, rates tax.ExchangeRates) (tax.Result, error) {
		local, missing, ok := tax.Localize(logger, profile, rates, country.Currency)
		if !ok {
			return missing, nil
		}
		return tax.Computed(formula(profile, local), local, country.Currency, country.Source()), nil
	}
}

const (
	germanyAllowanceSingle  = 12096.0
	germanyAllowanceMarried = 2 * germanyAllowanceSingle
)

// Schedules on income after the allowance. The first bracket repeats the
// allowance at 0%.
var (
	germanySingle = progressive.MustSchedule(
		progressive.Bracket{UpTo: germanyAllowanceSingle, Rate: 0},
		progressive.Bracket{UpTo: 68430, Rate: 0.14},
		progressive.Bracket{UpTo: 277825, Rate: 0.42},
		progressive.Bracket{UpTo: progressive.OpenEnded, Rate: 0.45},
	)
	germanyMarried = progressive.MustSchedule(
		progressive.Bracket{UpTo: germanyAllowanceMarried, Rate: 0},
		progressive.Bracket{UpTo: 136858, Rate: 0.14},
		progressive.Bracket{UpTo: 555650, Rate: 0.42},
		progressive.Bracket{UpTo: progressive.OpenEnded, Rate: 0.45},
	)
)

func germanyRule(logger *zap.Logger, country Country) tax.Rule {
	return localized(logger, country, func(profile tax.Profile, local float64) float64 {
		allowance, schedule := germanyAllowanceSingle, germanySingle
		if profile.Married {
			allowance, schedule = germanyAllowanceMarried, germanyMarried
		}
		taxable := math.Max(0, local-allowance)
		return progressive.Evaluate(schedule, taxable)
	})
}

// albaniaTax is piecewise linear with a step at 50,000 ALL.
func albaniaTax(local float64) float64 {
	switch {
	case local <= 50000:
		return 0
	case local <= 60000:
		return (local - 35000) * 0.13
	case local <= 200000:
		return (local - 30000) * 0.13
	default:
		return 22100 + (local-200000)*0.23
	}
}

func albaniaRule(logger *zap.Logger, country Country) tax.Rule {
	return localized(logger, country, func(_ tax.Profile, local float64) float64 {
		return albaniaTax(local)
	})
}

// uruguayMarriedThreshold splits married households between the two
// married schedules.
const uruguayMarriedThreshold = 267216.0

var (
	uruguayMarriedHigh = progressive.MustSchedule(
		progressive.Bracket{UpTo: 1037736, Rate: 0},
		progressive.Bracket{UpTo: 1111860, Rate: 0.15},
		progressive.Bracket{UpTo: 2223720, Rate: 0.24},
		progressive.Bracket{UpTo: 3706200, Rate: 0.25},
		progressive.Bracket{UpTo: 5559300, Rate: 0.27},
		progressive.Bracket{UpTo: 8524260, Rate: 0.31},
		progressive.Bracket{UpTo: progressive.OpenEnded, Rate: 0.36},
	)
	uruguayMarriedLow = progressive.MustSchedule(
		progressive.Bracket{UpTo: 592992, Rate: 0},
		progressive.Bracket{UpTo: 889488, Rate: 0.1},
		progressive.Bracket{UpTo: 1111860, Rate: 0.15},
		progressive.Bracket{UpTo: 2223720, Rate: 0.24},
		progressive.Bracket{UpTo: 3706200, Rate: 0.25},
		progressive.Bracket{UpTo: 5559300, Rate: 0.27},
		progressive.Bracket{UpTo: 8524260, Rate: 0.31},
		progressive.Bracket{UpTo: progressive.OpenEnded, Rate: 0.36},
	)
	uruguaySingle = progressive.MustSchedule(
		progressive.Bracket{UpTo: 518868, Rate: 0},
		progressive.Bracket{UpTo: 741240, Rate: 0.1},
		progressive.Bracket{UpTo: 1111860, Rate: 0.15},
		progressive.Bracket{UpTo: 2223720, Rate: 0.24},
		progressive.Bracket{UpTo: 3706200, Rate: 0.25},
		progressive.Bracket{UpTo: 5559300, Rate: 0.27},
		progressive.Bracket{UpTo: 8524260, Rate: 0.31},
		progressive.Bracket{UpTo: progressive.OpenEnded, Rate: 0.36},
	)
)

func uruguayRule(logger *zap.Logger, country Country) tax.Rule {
	rule := localized(logger, country, func(profile tax.Profile, local float64) float64 {
		switch {
		case profile.Married && local > uruguayMarriedThreshold:
			return progressive.Evaluate(uruguayMarriedHigh, local)
		case profile.Married:
			return progressive.Evaluate(uruguayMarriedLow, local)
		default:
			return progressive.Evaluate(uruguaySingle, local)
		}
	})
	return func(profile tax.Profile, rates tax.ExchangeRates) (tax.Result, error) {
		if !profile.Possible() {
			return tax.Result{}, tax.ErrImpossibleProfile
		}
		return rule(profile, rates)
	}
}

const (
	jordanSurchargeThreshold = 200000.0
	jordanSurchargeRate      = 0.01
)

var jordanSchedule = progressive.MustSchedule(
	progressive.Bracket{UpTo: 5000, Rate: 0.05},
	progressive.Bracket{UpTo: 10000, Rate: 0.1},
	progressive.Bracket{UpTo: 15000, Rate: 0.15},
	progressive.Bracket{UpTo: 20000, Rate: 0.2},
	progressive.Bracket{UpTo: 1000000, Rate: 0.25},
	progressive.Bracket{UpTo: progressive.OpenEnded, Rate: 0.3},
)

// jordanTax adds a 1% surcharge on the whole income once it exceeds
// 200,000 JOD.
func jordanTax(local float64) float64 {
	owed := progressive.Evaluate(jordanSchedule, local)
	if local > jordanSurchargeThreshold {
		owed += progressive.Flat(local, jordanSurchargeRate)
	}
	return owed
}

func jordanRule(logger *zap.Logger, country Country) tax.Rule {
	return localized(logger, country, func(_ tax.Profile, local float64) float64 {
		return jordanTax(local)
	})
}
