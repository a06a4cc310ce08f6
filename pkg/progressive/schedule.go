// Package progressive implements marginal (bracket) tax schedules and the
// evaluation of a tax amount against them.
package progressive

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrEmptySchedule is returned when a schedule has no brackets.
	ErrEmptySchedule = errors.New("schedule has no brackets")

	// ErrMissingSentinel is returned when the last bracket is not open-ended.
	ErrMissingSentinel = errors.New("last bracket must be open-ended")

	// ErrThresholdOrder is returned when thresholds do not strictly increase.
	ErrThresholdOrder = errors.New("bracket thresholds must strictly increase")

	// ErrInvalidThreshold is returned for a NaN or negative threshold.
	ErrInvalidThreshold = errors.New("invalid bracket threshold")

	// ErrInvalidRate is returned for a rate outside [0, 1].
	ErrInvalidRate = errors.New("invalid bracket rate")
)

// OpenEnded is the threshold of the top bracket of every schedule.
var OpenEnded = math.Inf(1)

// Bracket is one marginal rate applied to income up to UpTo.
type Bracket struct {
	UpTo float64 `yaml:"upTo" json:"upTo"`
	Rate float64 `yaml:"rate" json:"rate"`
}

// Schedule is an ordered, validated list of brackets terminated by an
// open-ended bracket.
type Schedule struct {
	brackets []Bracket
}

// NewSchedule validates the brackets and returns a schedule over a copy of
// them.
func NewSchedule(brackets ...Bracket) (Schedule, error) {
	if len(brackets) == 0 {
		return Schedule{}, ErrEmptySchedule
	}

	previous := math.Inf(-1)
	for i, bracket := range brackets {
		if math.IsNaN(bracket.UpTo) || bracket.UpTo < 0 {
			return Schedule{}, fmt.Errorf("bracket %d: %w: %v", i, ErrInvalidThreshold, bracket.UpTo)
		}
		if math.IsNaN(bracket.Rate) || bracket.Rate < 0 || bracket.Rate > 1 {
			return Schedule{}, fmt.Errorf("bracket %d: %w: %v", i, ErrInvalidRate, bracket.Rate)
		}
		if bracket.UpTo <= previous {
			return Schedule{}, fmt.Errorf("bracket %d: %w: %v after %v", i, ErrThresholdOrder, bracket.UpTo, previous)
		}
		previous = bracket.UpTo
	}

	if !math.IsInf(brackets[len(brackets)-1].UpTo, 1) {
		return Schedule{}, ErrMissingSentinel
	}

	owned := make([]Bracket, len(brackets))
	copy(owned, brackets)
	return Schedule{brackets: owned}, nil
}

// MustSchedule is like NewSchedule but panics on invalid input. It is meant
// for static tables.
func MustSchedule(brackets ...Bracket) Schedule {
	schedule, err := NewSchedule(brackets...)
	if err != nil {
		panic(fmt.Sprintf("progressive: %v", err))
	}
	return schedule
}

// FlatSchedule returns a single open-ended bracket at rate.
func FlatSchedule(rate float64) (Schedule, error) {
	return NewSchedule(Bracket{UpTo: OpenEnded, Rate: rate})
}

// Brackets returns a copy of the schedule's brackets.
func (s Schedule) Brackets() []Bracket {
	out := make([]Bracket, len(s.brackets))
	copy(out, s.brackets)
	return out
}

// Len returns the number of brackets.
func (s Schedule) Len() int {
	return len(s.brackets)
}

// TopRate returns the rate of the open-ended bracket, or 0 for an empty
// schedule.
func (s Schedule) TopRate() float64 {
	if len(s.brackets) == 0 {
		return 0
	}
	return s.brackets[len(s.brackets)-1].Rate
}
