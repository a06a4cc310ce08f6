package tax

import (
	"fmt"
	"strings"

	"github.com/iwvelando/tax-atlas/pkg/constants"
	"github.com/iwvelando/tax-atlas/pkg/mathutil"
	"github.com/iwvelando/tax-atlas/pkg/progressive"
	"go.uber.org/zap"
)

// Component is one independently evaluated part of a country's income tax:
// either a bracket schedule or a flat rate on the whole income.
type Component struct {
	Name     string
	Schedule progressive.Schedule
	FlatRate float64
}

// Bracketed returns a component evaluated against schedule.
func Bracketed(name string, schedule progressive.Schedule) Component {
	return Component{Name: name, Schedule: schedule}
}

// FlatRate returns a component taxing the whole income at rate.
func FlatRate(name string, rate float64) Component {
	return Component{Name: name, FlatRate: rate}
}

// Tax returns the component's tax on amount.
func (c Component) Tax(amount float64) float64 {
	if c.Schedule.Len() > 0 {
		return progressive.Evaluate(c.Schedule, amount)
	}
	return progressive.Flat(amount, c.FlatRate)
}

// SumComponents evaluates every component on the same amount and adds the
// results.
func SumComponents(amount float64, components []Component) float64 {
	total := 0.0
	for _, component := range components {
		total += component.Tax(amount)
	}
	return total
}

// Source holds the citation and caveat attached to a country's results.
type Source struct {
	Link   string
	Notice string
}

// NoInformation returns the result for a country without a usable formula.
func NoInformation(notice string) Result {
	return Result{Notice: notice}
}

// NoInformationRule always returns NoInformation(notice).
func NoInformationRule(notice string) Rule {
	return func(Profile, ExchangeRates) (Result, error) {
		return NoInformation(notice), nil
	}
}

// MissingRateNotice is the notice returned when currency has no rate.
func MissingRateNotice(currency string) string {
	return fmt.Sprintf("Exchange rate for %s is not available.", currency)
}

// Localize converts the profile income to currency. An empty currency or
// USD means no conversion. When the rate is unavailable it logs the
// condition and returns the no-information result with ok set to false.
func Localize(logger *zap.Logger, profile Profile, rates ExchangeRates, currency string) (float64, Result, bool) {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" || code == constants.BaseCurrency {
		return profile.IncomeUSD, Result{}, true
	}

	rate, ok := rates.Rate(code)
	if !ok {
		if logger != nil {
			logger.Error("exchange rate not available",
				zap.String("op", "tax.Localize"),
				zap.String("currency", code),
			)
		}
		return 0, NoInformation(MissingRateNotice(code)), false
	}
	return profile.IncomeUSD * rate, Result{}, true
}

// Computed builds the result for a tax amount owed on localIncome.
func Computed(tax, localIncome float64, currency string, source Source) Result {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		code = constants.BaseCurrency
	}
	return Result{
		Percentage:  Percent(mathutil.Ratio(tax, localIncome)),
		Tax:         tax,
		LocalIncome: localIncome,
		Currency:    code,
		Link:        source.Link,
		Notice:      source.Notice,
	}
}

// Progressive returns a rule that converts income to currency and sums the
// components on the local income.
func Progressive(logger *zap.Logger, currency string, source Source, components ...Component) Rule {
	return func(profile Profile, rates ExchangeRates) (Result, error) {
		local, missing, ok := Localize(logger, profile, rates, currency)
		if !ok {
			return missing, nil
		}
		return Computed(SumComponents(local, components), local, currency, source), nil
	}
}

// Zero returns a rule for a country that does not tax personal income.
func Zero(source Source) Rule {
	return func(profile Profile, _ ExchangeRates) (Result, error) {
		return Result{
			Percentage:  Percent(0),
			LocalIncome: profile.IncomeUSD,
			Currency:    constants.BaseCurrency,
			Link:        source.Link,
			Notice:      source.Notice,
		}, nil
	}
}

// Branches selects components by filing status. Married applies to every
// married profile unless the one- or two-income variant is set. Single
// applies to unmarried taxpayers with one income.
type Branches struct {
	Married           []Component
	MarriedOneIncome  []Component
	MarriedTwoIncomes []Component
	Single            []Component
}

// Select returns the components for profile, or ErrImpossibleProfile.
func (b Branches) Select(profile Profile) ([]Component, error) {
	if !profile.Possible() {
		return nil, ErrImpossibleProfile
	}
	if !profile.Married {
		return b.Single, nil
	}
	if profile.OneIncome && len(b.MarriedOneIncome) > 0 {
		return b.MarriedOneIncome, nil
	}
	if !profile.OneIncome && len(b.MarriedTwoIncomes) > 0 {
		return b.MarriedTwoIncomes, nil
	}
	return b.Married, nil
}

// Branching returns a rule that picks its components by filing status.
// The profile is checked before the exchange rate so an impossible profile
// is rejected even when the rate is missing.
func Branching(logger *zap.Logger, currency string, source Source, branches Branches) Rule {
	return func(profile Profile, rates ExchangeRates) (Result, error) {
		components, err := branches.Select(profile)
		if err != nil {
			return Result{}, err
		}
		local, missing, ok := Localize(logger, profile, rates, currency)
		if !ok {
			return missing, nil
		}
		return Computed(SumComponents(local, components), local, currency, source), nil
	}
}

// Capped clamps the percentage produced by rule to ceiling.
func Capped(rule Rule, ceiling float64) Rule {
	return func(profile Profile, rates ExchangeRates) (Result, error) {
		result, err := rule(profile, rates)
		if err != nil {
			return result, err
		}
		if value, ok := result.Value(); ok && value > ceiling {
			result.Percentage = Percent(ceiling)
			result.Tax = ceiling * result.LocalIncome
		}
		return result, nil
	}
}
