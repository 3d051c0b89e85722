package soa

import (
	"fmt"
	"sort"
)

// DeviceSpec is the construction input for a Device.
type DeviceSpec struct {
	DeviceType     string
	Subcategory    string
	TmaxfracLevels []float64
	Parameters     []*Parameter
	Metadata       map[string]string
}

// Device is the rule set of one device/subcategory pair. It is immutable once built;
// a registry replaces devices wholesale on reload.
type Device struct {
	deviceType  string
	subcategory string
	levels      []float64
	parameters  map[string]*Parameter
	metadata    map[string]string
}

// LimitSummary describes the limit of one parameter at a requested level.
type LimitSummary struct {
	Value    Limit    `json:"value" yaml:"value"`
	Unit     string   `json:"unit" yaml:"unit"`
	Severity Severity `json:"severity" yaml:"severity"`
	Type     Kind     `json:"type" yaml:"type"`
	Polarity Polarity `json:"polarity" yaml:"polarity"`
	NoLimit  bool     `json:"noLimit" yaml:"noLimit"`
}

// NewDevice validates spec. Levels must be unique fractions in [0, 1], parameter names unique,
// and every level a parameter tabulates must be declared on the device.
func NewDevice(spec DeviceSpec) (*Device, error) {
	declared := make(map[float64]struct{}, len(spec.TmaxfracLevels))
	levels := make([]float64, 0, len(spec.TmaxfracLevels))
	for _, l := range spec.TmaxfracLevels {
		if err := ValidateLevel(l); err != nil {
			return nil, err
		}
		if _, dup := declared[l]; dup {
			return nil, fmt.Errorf("%w: level %s declared twice", ErrInvalidRule, FormatNumber(l))
		}
		declared[l] = struct{}{}
		levels = append(levels, l)
	}

	params := make(map[string]*Parameter, len(spec.Parameters))
	for _, p := range spec.Parameters {
		if p == nil {
			return nil, fmt.Errorf("%w: nil parameter", ErrInvalidRule)
		}
		if _, dup := params[p.Name()]; dup {
			return nil, fmt.Errorf("%w: parameter %s defined twice", ErrInvalidRule, p.Name())
		}
		for _, l := range p.levels {
			if _, ok := declared[l]; !ok {
				return nil, fmt.Errorf("%w: parameter %s uses undeclared level %s",
					ErrInvalidRule, p.Name(), FormatNumber(l))
			}
		}
		params[p.Name()] = p
	}

	metadata := make(map[string]string, len(spec.Metadata))
	for k, v := range spec.Metadata {
		metadata[k] = v
	}

	return &Device{
		deviceType:  spec.DeviceType,
		subcategory: spec.Subcategory,
		levels:      levels,
		parameters:  params,
		metadata:    metadata,
	}, nil
}

func (d *Device) DeviceType() string { return d.deviceType }
func (d *Device) Subcategory() string { return d.subcategory }

// Levels returns the declared tmaxfrac levels in declaration order.
func (d *Device) Levels() []float64 {
	out := make([]float64, len(d.levels))
	copy(out, d.levels)
	return out
}

// Metadata returns a copy of the free-form annotations.
func (d *Device) Metadata() map[string]string {
	out := make(map[string]string, len(d.metadata))
	for k, v := range d.metadata {
		out[k] = v
	}
	return out
}

// Parameter returns the named parameter.
func (d *Device) Parameter(name string) (*Parameter, error) {
	p, ok := d.parameters[name]
	if !ok {
		return nil, fmt.Errorf("parameter %s: %w", name, ErrNotFound)
	}
	return p, nil
}

// Parameters returns all parameters sorted by name.
func (d *Device) Parameters() []*Parameter {
	out := make([]*Parameter, 0, len(d.parameters))
	for _, p := range d.parameters {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (d *Device) Len() int { return len(d.parameters) }

// LimitsAt resolves every parameter at level.
func (d *Device) LimitsAt(level float64, mode LookupMode) map[string]LimitSummary {
	out := make(map[string]LimitSummary, len(d.parameters))
	for name, p := range d.parameters {
		limit := p.LimitAtMode(level, mode)
		out[name] = LimitSummary{
			Value:    limit,
			Unit:     p.unit,
			Severity: p.severity,
			Type:     p.kind,
			Polarity: p.polarity,
			NoLimit:  limit.IsNoLimit(),
		}
	}
	return out
}
