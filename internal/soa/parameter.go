package soa

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ParameterSpec is the construction input for a Parameter.
type ParameterSpec struct {
	Name        string
	Kind        Kind
	Unit        string
	Severity    Severity
	Polarity    Polarity
	Description string
	Values      map[float64]Limit
}

// Parameter is one limit quantity of a device, tabulated per tmaxfrac level.
// It is immutable once built.
type Parameter struct {
	name        string
	kind        Kind
	unit        string
	severity    Severity
	polarity    Polarity
	description string
	values      map[float64]Limit
	levels      []float64 // descending
}

// NewParameter validates spec and copies its values.
func NewParameter(spec ParameterSpec) (*Parameter, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: parameter name is empty", ErrInvalidRule)
	}
	if !spec.Kind.Valid() {
		return nil, fmt.Errorf("%w: parameter %s: kind %q", ErrInvalidRule, name, spec.Kind)
	}
	if !spec.Severity.Valid() {
		return nil, fmt.Errorf("%w: parameter %s: severity %q", ErrInvalidRule, name, spec.Severity)
	}
	if !spec.Polarity.Valid() {
		return nil, fmt.Errorf("%w: parameter %s: polarity %q", ErrInvalidRule, name, spec.Polarity)
	}
	if len(spec.Values) == 0 {
		return nil, fmt.Errorf("%w: parameter %s has no values", ErrInvalidRule, name)
	}

	values := make(map[float64]Limit, len(spec.Values))
	levels := make([]float64, 0, len(spec.Values))
	for level, limit := range spec.Values {
		if err := ValidateLevel(level); err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		if v, ok := limit.Float(); ok && (math.IsNaN(v) || math.IsInf(v, 0)) {
			return nil, fmt.Errorf("%w: parameter %s: limit at %s is not finite", ErrInvalidRule, name, FormatNumber(level))
		}
		values[level] = limit
		levels = append(levels, level)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(levels)))

	return &Parameter{
		name:        name,
		kind:        spec.Kind,
		unit:        spec.Unit,
		severity:    spec.Severity,
		polarity:    spec.Polarity,
		description: spec.Description,
		values:      values,
		levels:      levels,
	}, nil
}

func (p *Parameter) Name() string { return p.name }
func (p *Parameter) Kind() Kind { return p.kind }
func (p *Parameter) Unit() string { return p.unit }
func (p *Parameter) Severity() Severity { return p.severity }
func (p *Parameter) Polarity() Polarity { return p.polarity }
func (p *Parameter) Description() string { return p.description }

// Levels returns the tabulated levels, largest first.
func (p *Parameter) Levels() []float64 {
	out := make([]float64, len(p.levels))
	copy(out, p.levels)
	return out
}

// Values returns a copy of the level to limit table.
func (p *Parameter) Values() map[float64]Limit {
	out := make(map[float64]Limit, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// LimitAt returns the limit tabulated at exactly level, or the unknown marker.
func (p *Parameter) LimitAt(level float64) Limit {
	return p.values[level]
}

// IsNoLimit reports whether the limit at level is the no-limit marker.
func (p *Parameter) IsNoLimit(level float64) bool {
	return p.LimitAt(level).IsNoLimit()
}

// LimitAtMode resolves the limit at level using mode. Tabulated levels always resolve exactly.
func (p *Parameter) LimitAtMode(level float64, mode LookupMode) Limit {
	if l, ok := p.values[level]; ok {
		return l
	}
	switch mode {
	case LookupNearest:
		return p.nearest(level)
	case LookupInterpolate:
		return p.Interpolate(level)
	default:
		return Unknown()
	}
}

// nearest picks the closest tabulated level; on a tie the lower (stricter) level wins.
func (p *Parameter) nearest(level float64) Limit {
	if math.IsNaN(level) || len(p.levels) == 0 {
		return Unknown()
	}
	best := p.levels[0]
	bestDist := math.Abs(best - level)
	for _, l := range p.levels[1:] {
		d := math.Abs(l - level)
		if d <= bestDist {
			best, bestDist = l, d
		}
	}
	return p.values[best]
}

// Interpolate returns a linear interpolation between the two tabulated levels that bracket
// level. The result is unknown when level is outside the tabulated range or when either
// bracketing limit is not numeric.
func (p *Parameter) Interpolate(level float64) Limit {
	if l, ok := p.values[level]; ok {
		return l
	}
	var lo, hi float64
	var haveLo, haveHi bool
	for _, l := range p.levels {
		if l < level && (!haveLo || l > lo) {
			lo, haveLo = l, true
		}
		if l > level && (!haveHi || l < hi) {
			hi, haveHi = l, true
		}
	}
	if !haveLo || !haveHi {
		return Unknown()
	}
	loV, okLo := p.values[lo].Float()
	hiV, okHi := p.values[hi].Float()
	if !okLo || !okHi {
		return Unknown()
	}
	return Numeric(loV + (level-lo)*(hiV-loV)/(hi-lo))
}
