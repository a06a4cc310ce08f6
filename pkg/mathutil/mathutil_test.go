package mathutil

import (
	"math"
	"testing"
)

func TestRound(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected float64
	}{
		{"Round up at midpoint", 1.235, 1.24},
		{"Round down below midpoint", 1.234, 1.23},
		{"No rounding needed", 1.23, 1.23},
		{"Large number", 12345.678, 12345.68},
		{"Negative number round down", -1.234, -1.23},
		{"Zero", 0.0, 0.0},
		{"Very small positive", 0.001, 0.00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Round(tt.input)
			if math.Abs(result-tt.expected) > 0.001 {
				t.Errorf("Round(%v) = %v, expected %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestWithinTolerance(t *testing.T) {
	tests := []struct {
		name      string
		val1      float64
		val2      float64
		tolerance float64
		expected  bool
	}{
		{"Exactly equal", 1.0, 1.0, 0.1, true},
		{"Within tolerance", 1.0, 1.05, 0.1, true},
		{"Outside tolerance", 1.0, 1.15, 0.1, false},
		{"Zero tolerance exact match", 1.0, 1.0, 0.0, true},
		{"Zero tolerance no match", 1.0, 1.001, 0.0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := WithinTolerance(tt.val1, tt.val2, tt.tolerance)
			if result != tt.expected {
				t.Errorf("WithinTolerance(%v, %v, %v) = %v, expected %v",
					tt.val1, tt.val2, tt.tolerance, result, tt.expected)
			}
		})
	}
}

func TestMinMax(t *testing.T) {
	if got := Min(1, 2); got != 1 {
		t.Errorf("Min(1, 2) = %v, expected 1", got)
	}
	if got := Min(-2, -1); got != -2 {
		t.Errorf("Min(-2, -1) = %v, expected -2", got)
	}
	if got := Max(1, 2); got != 2 {
		t.Errorf("Max(1, 2) = %v, expected 2", got)
	}
	if got := Max(0, -1); got != 0 {
		t.Errorf("Max(0, -1) = %v, expected 0", got)
	}
}

func TestRatio(t *testing.T) {
	if got := Ratio(1, 4); got != 0.25 {
		t.Errorf("Ratio(1, 4) = %v, expected 0.25", got)
	}
	if got := Ratio(0, 0); !math.IsNaN(got) {
		t.Errorf("Ratio(0, 0) = %v, expected NaN", got)
	}
	if got := Ratio(1, 0); !math.IsInf(got, 1) {
		t.Errorf("Ratio(1, 0) = %v, expected +Inf", got)
	}
}

func TestIsFinite(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected bool
	}{
		{"Zero", 0, true},
		{"Positive", 0.45, true},
		{"NaN", math.NaN(), false},
		{"Positive infinity", math.Inf(1), false},
		{"Negative infinity", math.Inf(-1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFinite(tt.input); got != tt.expected {
				t.Errorf("IsFinite(%v) = %v, expected %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestToPercent(t *testing.T) {
	if got := ToPercent(0.208875); math.Abs(got-20.8875) > 1e-9 {
		t.Errorf("ToPercent(0.208875) = %v, expected 20.8875", got)
	}
}
