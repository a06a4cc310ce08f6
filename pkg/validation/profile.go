package validation

import (
	"errors"
	"fmt"
	"sort"

	"github.com/iwvelando/tax-atlas/internal/tax"
	"github.com/iwvelando/tax-atlas/pkg/mathutil"
	"github.com/samber/lo"
)

// ErrNegativeIncome is returned for a profile whose income is below zero.
var ErrNegativeIncome = errors.New("income must not be negative")

// ErrInvalidIncome is returned for a NaN or infinite income.
var ErrInvalidIncome = errors.New("income must be a finite number")

// ValidateProfile rejects profiles no country can evaluate. A zero income is
// accepted and yields undefined rates.
func ValidateProfile(profile tax.Profile) error {
	if !mathutil.IsFinite(profile.IncomeUSD) {
		return ErrInvalidIncome
	}
	if profile.IncomeUSD < 0 {
		return fmt.Errorf("%w: %.2f", ErrNegativeIncome, profile.IncomeUSD)
	}
	if !profile.Possible() {
		return tax.ErrImpossibleProfile
	}
	return nil
}

// UnknownCountries returns the sorted, de-duplicated names that are not in
// known.
func UnknownCountries(names, known []string) []string {
	index := lo.SliceToMap(known, func(name string) (string, struct{}) { return name, struct{}{} })
	unknown := lo.Uniq(lo.Filter(names, func(name string, _ int) bool {
		_, ok := index[name]
		return !ok
	}))
	sort.Strings(unknown)
	return unknown
}
