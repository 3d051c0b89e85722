package soa

import (
	"fmt"
	"strings"
)

// Kind classifies the physical quantity a parameter limits.
type Kind string

const (
	KindVoltage     Kind = "voltage"
	KindCurrent     Kind = "current"
	KindTemperature Kind = "temperature"
	KindGeneral     Kind = "general"
)

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindVoltage, KindCurrent, KindTemperature, KindGeneral:
		return true
	default:
		return false
	}
}

// ParseKind parses a kind name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: kind %q", ErrInvalidRule, s)
	}
	return k, nil
}

// Severity is the informational priority of a violation. It never changes a decision.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityHigh, SeverityMedium, SeverityLow:
		return true
	default:
		return false
	}
}

// ParseSeverity parses a severity name, case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if !sev.Valid() {
		return "", fmt.Errorf("%w: severity %q", ErrInvalidRule, s)
	}
	return sev, nil
}

// Polarity is the comparison direction of a limit.
// A high limit is violated by larger values, a low limit by smaller ones.
type Polarity string

const (
	PolarityHigh Polarity = "high"
	PolarityLow  Polarity = "low"
)

func (p Polarity) Valid() bool {
	return p == PolarityHigh || p == PolarityLow
}

// ParsePolarity parses a polarity name, case-insensitively.
func ParsePolarity(s string) (Polarity, error) {
	p := Polarity(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: polarity %q", ErrInvalidRule, s)
	}
	return p, nil
}

// Violated reports whether value breaks limit under this polarity.
// A value equal to the limit is compliant.
func (p Polarity) Violated(value, limit float64) bool {
	if p == PolarityLow {
		return value < limit
	}
	return value > limit
}

// LookupMode selects how a limit is resolved for a tmaxfrac level that is not tabulated.
type LookupMode string

const (
	// LookupExact returns the unknown marker for non-tabulated levels.
	LookupExact LookupMode = "exact"
	// LookupNearest returns the value of the closest tabulated level.
	LookupNearest LookupMode = "nearest"
	// LookupInterpolate interpolates linearly between the two bracketing numeric levels.
	LookupInterpolate LookupMode = "interpolate"
)

func (m LookupMode) Valid() bool {
	switch m {
	case LookupExact, LookupNearest, LookupInterpolate:
		return true
	default:
		return false
	}
}

// ParseLookupMode parses a lookup mode; the empty string selects LookupExact.
func ParseLookupMode(s string) (LookupMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return LookupExact, nil
	}
	m := LookupMode(s)
	if !m.Valid() {
		return "", fmt.Errorf("unsupported lookup mode %q", s)
	}
	return m, nil
}
