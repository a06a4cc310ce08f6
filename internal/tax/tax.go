// Package tax defines the profile, exchange-rate and result types shared by
// every country rule, and the constructors for the rule shapes the catalog
// is built from.
package tax

import (
	"encoding/json"
	"errors"
	"math"
	"strings"

	"github.com/iwvelando/tax-atlas/pkg/mathutil"
)

// ErrImpossibleProfile is returned by rules that branch on filing status
// when the profile describes a single taxpayer with two incomes.
var ErrImpossibleProfile = errors.New("impossible to have 2 incomes for single taxpayer")

// Profile describes the taxpayer a rate is computed for.
type Profile struct {
	IncomeUSD float64 `json:"incomeUSD" yaml:"incomeUSD" mapstructure:"incomeUSD"`
	Married   bool    `json:"married" yaml:"married" mapstructure:"married"`
	OneIncome bool    `json:"oneIncome" yaml:"oneIncome" mapstructure:"oneIncome"`
}

// Possible reports whether the filing attributes can describe a real
// household. A single taxpayer always has exactly one income.
func (p Profile) Possible() bool {
	return p.Married || p.OneIncome
}

// ExchangeRates maps an ISO currency code to units of that currency per USD.
type ExchangeRates map[string]float64

// Rate returns the multiplier for code. A missing, zero, negative or
// non-finite rate is reported as unavailable.
func (r ExchangeRates) Rate(code string) (float64, bool) {
	rate, ok := r[strings.ToUpper(code)]
	if !ok {
		return 0, false
	}
	if rate <= 0 || !mathutil.IsFinite(rate) {
		return 0, false
	}
	return rate, true
}

// Result is the effective tax computed for one country.
type Result struct {
	// Percentage is the effective rate as a fraction. Nil means the rate is
	// not available for this country.
	Percentage  *float64
	Tax         float64
	LocalIncome float64
	Currency    string
	Link        string
	Notice      string
}

// Available reports whether the result carries a percentage.
func (r Result) Available() bool {
	return r.Percentage != nil
}

// Finite reports whether the percentage exists and is a real number. Zero
// income produces a NaN percentage.
func (r Result) Finite() bool {
	return r.Percentage != nil && mathutil.IsFinite(*r.Percentage)
}

// Value returns the percentage, or 0 and false when it is unavailable.
func (r Result) Value() (float64, bool) {
	if r.Percentage == nil {
		return 0, false
	}
	return *r.Percentage, true
}

type resultJSON struct {
	Percentage  *float64 `json:"percentage"`
	NonFinite   bool     `json:"nonFinite,omitempty"`
	Tax         float64  `json:"tax"`
	LocalIncome float64  `json:"localIncome"`
	Currency    string   `json:"currency,omitempty"`
	Link        string   `json:"link,omitempty"`
	Notice      string   `json:"notice,omitempty"`
}

// MarshalJSON encodes an unavailable or non-finite percentage as null.
func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		Percentage:  r.Percentage,
		Tax:         finiteOrZero(r.Tax),
		LocalIncome: finiteOrZero(r.LocalIncome),
		Currency:    r.Currency,
		Link:        r.Link,
		Notice:      r.Notice,
	}
	if r.Percentage != nil && !r.Finite() {
		out.Percentage = nil
		out.NonFinite = true
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the form written by MarshalJSON. A non-finite
// percentage is restored as NaN.
func (r *Result) UnmarshalJSON(data []byte) error {
	var in resultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = Result{
		Percentage:  in.Percentage,
		Tax:         in.Tax,
		LocalIncome: in.LocalIncome,
		Currency:    in.Currency,
		Link:        in.Link,
		Notice:      in.Notice,
	}
	if in.NonFinite {
		nan := math.NaN()
		r.Percentage = &nan
	}
	return nil
}

func finiteOrZero(v float64) float64 {
	if !mathutil.IsFinite(v) {
		return 0
	}
	return v
}

// Percent returns a pointer to v for building results.
func Percent(v float64) *float64 {
	return &v
}

// Rule computes the result for one country. The only error a rule returns
// is an invalid-input rejection such as ErrImpossibleProfile.
type Rule func(profile Profile, rates ExchangeRates) (Result, error)
