package compliance

import (
	"fmt"
	"math"
	"sort"

	"github.com/soa-checker/backend/internal/soa"
)

// TmaxfracKey is the mandatory entry of every set of test values.
const TmaxfracKey = "tmaxfrac"

// DeviceSource resolves device rule sets. *rules.Engine implements it.
type DeviceSource interface {
	Device(key string) (*soa.Device, error)
}

// Violation is the structured form of one violation message.
type Violation struct {
	Parameter string       `json:"parameter" yaml:"parameter"`
	Value     float64      `json:"value" yaml:"value"`
	Limit     float64      `json:"limit" yaml:"limit"`
	Unit      string       `json:"unit" yaml:"unit"`
	Severity  soa.Severity `json:"severity" yaml:"severity"`
	Polarity  soa.Polarity `json:"polarity" yaml:"polarity"`
	Tmaxfrac  float64      `json:"tmaxfrac" yaml:"tmaxfrac"`
	Message   string       `json:"message" yaml:"message"`
}

// LimitValue is the limit that applied to one parameter. Interpolated is only set for display
// when the exact limit is unknown and interpolated display is enabled.
type LimitValue struct {
	Value        soa.Limit  `json:"value" yaml:"value"`
	Unit         string     `json:"unit" yaml:"unit"`
	Interpolated *soa.Limit `json:"interpolated,omitempty" yaml:"interpolated,omitempty"`
}

// Result is the outcome of one check.
type Result struct {
	Device           string                `json:"device" yaml:"device"`
	Tmaxfrac         float64               `json:"tmaxfrac" yaml:"tmaxfrac"`
	TestValues       map[string]float64    `json:"testValues" yaml:"testValues"`
	Compliant        bool                  `json:"compliant" yaml:"compliant"`
	Violations       []string              `json:"violations" yaml:"violations"`
	ViolationDetails []Violation           `json:"violationDetails" yaml:"violationDetails"`
	Limits           map[string]LimitValue `json:"limits" yaml:"limits"`
	Skipped          []string              `json:"skipped" yaml:"skipped"`
}

// Checker evaluates test values against the rule sets of a DeviceSource.
// It holds no mutable state and is safe for concurrent use.
type Checker struct {
	devices             DeviceSource
	mode                soa.LookupMode
	interpolatedDisplay bool
}

// Option configures a Checker.
type Option func(*Checker)

// WithLookup sets how limits are resolved for levels that are not tabulated.
func WithLookup(mode soa.LookupMode) Option {
	return func(c *Checker) {
		if mode.Valid() {
			c.mode = mode
		}
	}
}

// WithInterpolatedDisplay adds an interpolated value to limits that resolve as unknown.
func WithInterpolatedDisplay() Option {
	return func(c *Checker) { c.interpolatedDisplay = true }
}

func NewChecker(devices DeviceSource, opts ...Option) *Checker {
	c := &Checker{devices: devices, mode: soa.LookupExact}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Checker) Mode() soa.LookupMode { return c.mode }

// Check evaluates values for the device registered under deviceKey. values must contain
// tmaxfrac; names that the device does not define are ignored.
func (c *Checker) Check(deviceKey string, values map[string]float64) (*Result, error) {
	tmaxfrac, err := requireTmaxfrac(values)
	if err != nil {
		return nil, err
	}
	device, err := c.devices.Device(deviceKey)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Device:           deviceKey,
		Tmaxfrac:         tmaxfrac,
		TestValues:       make(map[string]float64, len(values)),
		Violations:       []string{},
		ViolationDetails: []Violation{},
		Limits:           make(map[string]LimitValue),
		Skipped:          []string{},
	}

	names := make([]string, 0, len(values))
	for name, v := range values {
		if name == TmaxfracKey {
			continue
		}
		res.TestValues[name] = v
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		param, err := device.Parameter(name)
		if err != nil {
			continue
		}
		value := values[name]
		limit := param.LimitAtMode(tmaxfrac, c.mode)

		lv := LimitValue{Value: limit, Unit: param.Unit()}
		if limit.IsUnknown() && c.interpolatedDisplay {
			if interp := param.Interpolate(tmaxfrac); interp.IsNumeric() {
				lv.Interpolated = &interp
			}
		}
		res.Limits[name] = lv

		bound, numeric := limit.Float()
		switch {
		case limit.IsNoLimit():
		case !numeric:
			res.Skipped = append(res.Skipped, name)
		case param.Polarity().Violated(value, bound):
			v := Violation{
				Parameter: name,
				Value:     value,
				Limit:     bound,
				Unit:      param.Unit(),
				Severity:  param.Severity(),
				Polarity:  param.Polarity(),
				Tmaxfrac:  tmaxfrac,
			}
			v.Message = violationMessage(v)
			res.Violations = append(res.Violations, v.Message)
			res.ViolationDetails = append(res.ViolationDetails, v)
		}
	}

	res.Compliant = len(res.Violations) == 0
	return res, nil
}

func requireTmaxfrac(values map[string]float64) (float64, error) {
	t, ok := values[TmaxfracKey]
	if !ok {
		return 0, fmt.Errorf("%s: %w", TmaxfracKey, soa.ErrMissingRequiredField)
	}
	if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 || t > 1 {
		return 0, fmt.Errorf("%s=%v is outside [0, 1]: %w", TmaxfracKey, t, soa.ErrMissingRequiredField)
	}
	return t, nil
}

func violationMessage(v Violation) string {
	verb := "exceeds"
	if v.Polarity == soa.PolarityLow {
		verb = "is below"
	}
	limit := soa.FormatNumber(v.Limit)
	if v.Unit != "" {
		limit += " " + v.Unit
	}
	return fmt.Sprintf("%s: %s %s %s-severity limit of %s at tmaxfrac=%s",
		v.Parameter, soa.FormatNumber(v.Value), verb, v.Severity, limit, soa.FormatNumber(v.Tmaxfrac))
}

func sortedNames(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
