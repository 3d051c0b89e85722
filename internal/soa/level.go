package soa

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatNumber renders v in its shortest decimal form, keeping a trailing ".0" on whole
// numbers so that 0 is written as "0.0". Level keys and violation messages use it.
func FormatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".NI") {
		s += ".0"
	}
	return s
}

// ParseLevel parses a tmaxfrac level key.
func ParseLevel(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: level %q is not a number", ErrInvalidRule, s)
	}
	if err := ValidateLevel(v); err != nil {
		return 0, err
	}
	return v, nil
}

// ValidateLevel checks that v is a finite fraction in [0, 1].
func ValidateLevel(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 1 {
		return fmt.Errorf("%w: level %v outside [0, 1]", ErrInvalidRule, v)
	}
	return nil
}
