// Package optimizer searches for the income at which a country's effective
// rate reaches a target.
package optimizer

import (
	"errors"
	"fmt"

	"github.com/iwvelando/tax-atlas/internal/catalog"
	"github.com/iwvelando/tax-atlas/internal/tax"
	"github.com/iwvelando/tax-atlas/pkg/constants"
	"github.com/iwvelando/tax-atlas/pkg/format"
	"github.com/iwvelando/tax-atlas/pkg/mathutil"
	"github.com/iwvelando/tax-atlas/pkg/optimization"
	"go.uber.org/zap"
)

// ErrInvalidTarget is returned for a target rate outside (0, 1].
var ErrInvalidTarget = errors.New("target rate must be greater than 0 and at most 1")

// ErrRateUnavailable is returned when the country has no effective rate to
// search over.
var ErrRateUnavailable = errors.New("effective rate is not available")

// Runner evaluates countries from a catalog under fixed exchange rates.
type Runner struct {
	logger  *zap.Logger
	catalog *catalog.Catalog
	rates   tax.ExchangeRates
	lower   float64
	upper   float64
}

type evaluation struct {
	income float64
	rate   float64
}

func (e evaluation) feasible(target float64) bool {
	return e.rate >= target-constants.RateTolerance
}

// NewRunner constructs a runner searching the default income bounds.
func NewRunner(logger *zap.Logger, c *catalog.Catalog, rates tax.ExchangeRates) (*Runner, error) {
	if c == nil {
		return nil, fmt.Errorf("catalog cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		logger:  logger,
		catalog: c,
		rates:   rates,
		lower:   constants.SolverMinIncomeUSD,
		upper:   constants.SolverMaxIncomeUSD,
	}, nil
}

// Solve returns the lowest income in USD at which country's effective rate
// reaches target, found by bisection. Effective rates are assumed
// non-decreasing in income. When the target is out of reach the summary is
// returned with Converged false and a note.
func (r *Runner) Solve(country string, profile tax.Profile, target float64) (optimization.Summary, error) {
	if !(target > 0 && target <= 1) {
		return optimization.Summary{}, fmt.Errorf("%w, got %v", ErrInvalidTarget, target)
	}

	summary := optimization.Summary{
		Scope:      "country",
		TargetName: country,
		Field:      "incomeUSD",
		Target:     target,
		Lower:      r.lower,
		Upper:      r.upper,
	}

	lowerEval, err := r.evaluate(country, profile, r.lower)
	if err != nil {
		return optimization.Summary{}, err
	}
	upperEval, err := r.evaluate(country, profile, r.upper)
	if err != nil {
		return optimization.Summary{}, err
	}

	if lowerEval.feasible(target) {
		r.finish(&summary, lowerEval, 0, true)
		summary.Notes = append(summary.Notes, "target is reached at the lower income bound")
		return summary, nil
	}
	if !upperEval.feasible(target) {
		r.finish(&summary, upperEval, 0, false)
		summary.Notes = append(summary.Notes, fmt.Sprintf(
			"unable to reach %s within incomes %s to %s; highest rate is %s",
			format.Percentage(&target),
			format.Amount(r.lower, constants.BaseCurrency),
			format.Amount(r.upper, constants.BaseCurrency),
			format.Percentage(&upperEval.rate),
		))
		return summary, nil
	}

	low, high := lowerEval, upperEval
	iterations := 0
	for iterations < constants.SolverMaxIterations && high.income-low.income > constants.SolverToleranceUSD {
		iterations++
		mid, err := r.evaluate(country, profile, low.income+(high.income-low.income)/2)
		if err != nil {
			return optimization.Summary{}, err
		}
		if mid.feasible(target) {
			high = mid
		} else {
			low = mid
		}
	}

	converged := mathutil.WithinTolerance(high.income, low.income, constants.SolverToleranceUSD)
	if !converged {
		summary.Notes = append(summary.Notes, "iteration limit reached before the income tolerance")
	}
	r.finish(&summary, high, iterations, converged)

	r.logger.Debug("optimizer solved target rate",
		zap.String("op", "optimizer.Solve"),
		zap.String("country", country),
		zap.Float64("target", target),
		zap.Float64("incomeUSD", summary.Value),
		zap.Float64("achieved", summary.Achieved),
		zap.Int("iterations", iterations),
		zap.Bool("converged", converged),
	)
	return summary, nil
}

func (r *Runner) finish(summary *optimization.Summary, eval evaluation, iterations int, converged bool) {
	summary.Value = mathutil.Round(eval.income)
	summary.Achieved = eval.rate
	summary.Iterations = iterations
	summary.Converged = converged
	summary.ValueDisplay = format.Amount(summary.Value, constants.BaseCurrency)
}

func (r *Runner) evaluate(country string, profile tax.Profile, income float64) (evaluation, error) {
	profile.IncomeUSD = income
	result, err := r.catalog.Evaluate(country, profile, r.rates)
	if err != nil {
		return evaluation{}, err
	}
	rate, ok := result.Value()
	if !ok || !result.Finite() {
		return evaluation{}, fmt.Errorf("%w for %s: %s", ErrRateUnavailable, country, result.Notice)
	}
	return evaluation{income: income, rate: rate}, nil
}
