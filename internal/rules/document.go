package rules

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/soa-checker/backend/internal/soa"
)

// Document is the wire form of a rule set. JSON, YAML and msgpack share the same field names.
type Document struct {
	SOARules *RuleSet `json:"soa_rules" yaml:"soa_rules"`
}

// RuleSet is the body of a rule document.
type RuleSet struct {
	Version      string               `json:"version,omitempty" yaml:"version,omitempty"`
	Technology   string               `json:"technology,omitempty" yaml:"technology,omitempty"`
	GlobalConfig *GlobalConfig        `json:"global_config,omitempty" yaml:"global_config,omitempty"`
	Devices      map[string]DeviceDoc `json:"devices" yaml:"devices"`
}

// DeviceDoc is the wire form of one device rule set.
type DeviceDoc struct {
	DeviceType     string                  `json:"device_type,omitempty" yaml:"device_type,omitempty"`
	Subcategory    string                  `json:"subcategory,omitempty" yaml:"subcategory,omitempty"`
	TmaxfracLevels []float64               `json:"tmaxfrac_levels" yaml:"tmaxfrac_levels"`
	MultiLevel     *MultiLevelDoc          `json:"multi_level,omitempty" yaml:"multi_level,omitempty"`
	Parameters     map[string]ParameterDoc `json:"parameters" yaml:"parameters"`
	Metadata       map[string]string       `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// MultiLevelDoc is the older device layout that nests the levels. It is read, never written.
type MultiLevelDoc struct {
	Enabled        bool      `json:"enabled" yaml:"enabled"`
	TmaxfracLevels []float64 `json:"tmaxfrac_levels" yaml:"tmaxfrac_levels"`
	Description    string    `json:"description,omitempty" yaml:"description,omitempty"`
}

// ParameterDoc is the wire form of one parameter. Values are keyed by the level written in
// shortest decimal form ("0.1", "0.01", "0.0").
type ParameterDoc struct {
	Name        string               `json:"name,omitempty" yaml:"name,omitempty"`
	Severity    string               `json:"severity,omitempty" yaml:"severity,omitempty"`
	Type        string               `json:"type,omitempty" yaml:"type,omitempty"`
	Polarity    string               `json:"polarity,omitempty" yaml:"polarity,omitempty"`
	Unit        string               `json:"unit" yaml:"unit"`
	Values      LimitTable           `json:"values" yaml:"values"`
	Description string               `json:"description,omitempty" yaml:"description,omitempty"`
}

// InferPolarity guesses the comparison direction from a parameter name. Names mentioning
// high or max are upper limits, names mentioning low or min are lower limits, and anything
// else defaults to an upper limit.
func InferPolarity(name string) soa.Polarity {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "high"), strings.Contains(n, "max"):
		return soa.PolarityHigh
	case strings.Contains(n, "low"), strings.Contains(n, "min"):
		return soa.PolarityLow
	default:
		return soa.PolarityHigh
	}
}

func malformed(path string, err error) error {
	return fmt.Errorf("%w: %s: %w", soa.ErrMalformedDocument, path, err)
}

func missing(path string) error {
	return fmt.Errorf("%w: %s: %w", soa.ErrMalformedDocument, path, soa.ErrMissingRequiredField)
}

// build validates the whole document and converts it into devices. Nothing is returned
// unless every device converts.
func (doc *Document) build() (map[string]*soa.Device, error) {
	if doc == nil || doc.SOARules == nil {
		return nil, missing("soa_rules")
	}
	if doc.SOARules.Devices == nil {
		return nil, missing("soa_rules.devices")
	}

	devices := make(map[string]*soa.Device, len(doc.SOARules.Devices))
	for _, key := range sortedKeys(doc.SOARules.Devices) {
		if strings.TrimSpace(key) == "" {
			return nil, malformed("soa_rules.devices", errors.New("empty device key"))
		}
		d, err := doc.SOARules.Devices[key].toDevice("soa_rules.devices." + key)
		if err != nil {
			return nil, err
		}
		devices[key] = d
	}
	return devices, nil
}

// levels returns tmaxfrac_levels, falling back to multi_level.tmaxfrac_levels. Giving both
// with different contents is an error.
func (dd DeviceDoc) levels(path string) ([]float64, error) {
	var nested []float64
	if dd.MultiLevel != nil {
		nested = dd.MultiLevel.TmaxfracLevels
	}
	switch {
	case dd.TmaxfracLevels != nil && nested != nil && !equalLevels(dd.TmaxfracLevels, nested):
		return nil, malformed(path+".multi_level.tmaxfrac_levels", errors.New("conflicts with tmaxfrac_levels"))
	case dd.TmaxfracLevels != nil:
		return dd.TmaxfracLevels, nil
	case nested != nil:
		return nested, nil
	default:
		return nil, missing(path + ".tmaxfrac_levels")
	}
}

func equalLevels(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (dd DeviceDoc) toDevice(path string) (*soa.Device, error) {
	levels, err := dd.levels(path)
	if err != nil {
		return nil, err
	}
	if dd.Parameters == nil {
		return nil, missing(path + ".parameters")
	}

	params := make([]*soa.Parameter, 0, len(dd.Parameters))
	for _, name := range sortedKeys(dd.Parameters) {
		p, err := dd.Parameters[name].toParameter(name, path+".parameters."+name)
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}

	d, err := soa.NewDevice(soa.DeviceSpec{
		DeviceType:     dd.DeviceType,
		Subcategory:    dd.Subcategory,
		TmaxfracLevels: levels,
		Parameters:     params,
		Metadata:       dd.Metadata,
	})
	if err != nil {
		return nil, malformed(path, err)
	}
	return d, nil
}

func (pd ParameterDoc) toParameter(key, path string) (*soa.Parameter, error) {
	if pd.Name != "" && pd.Name != key {
		return nil, malformed(path+".name", fmt.Errorf("name %q does not match key %q", pd.Name, key))
	}
	if len(pd.Values) == 0 {
		return nil, missing(path + ".values")
	}

	severity := soa.SeverityHigh
	if pd.Severity != "" {
		s, err := soa.ParseSeverity(pd.Severity)
		if err != nil {
			return nil, malformed(path+".severity", err)
		}
		severity = s
	}

	kind := soa.KindGeneral
	if pd.Type != "" {
		k, err := soa.ParseKind(pd.Type)
		if err != nil {
			return nil, malformed(path+".type", err)
		}
		kind = k
	}

	polarity := InferPolarity(key)
	if pd.Polarity != "" {
		p, err := soa.ParsePolarity(pd.Polarity)
		if err != nil {
			return nil, malformed(path+".polarity", err)
		}
		polarity = p
	}

	values := make(map[float64]soa.Limit, len(pd.Values))
	for raw, limit := range pd.Values {
		level, err := soa.ParseLevel(raw)
		if err != nil {
			return nil, malformed(path+".values", err)
		}
		if _, dup := values[level]; dup {
			return nil, malformed(path+".values", fmt.Errorf("level %s given twice", soa.FormatNumber(level)))
		}
		values[level] = limit
	}

	p, err := soa.NewParameter(soa.ParameterSpec{
		Name:        key,
		Kind:        kind,
		Unit:        pd.Unit,
		Severity:    severity,
		Polarity:    polarity,
		Description: pd.Description,
		Values:      values,
	})
	if err != nil {
		return nil, malformed(path, err)
	}
	return p, nil
}

func deviceDoc(d *soa.Device) DeviceDoc {
	dd := DeviceDoc{
		DeviceType:     d.DeviceType(),
		Subcategory:    d.Subcategory(),
		TmaxfracLevels: d.Levels(),
		Parameters:     make(map[string]ParameterDoc, d.Len()),
	}
	if md := d.Metadata(); len(md) > 0 {
		dd.Metadata = md
	}
	for _, p := range d.Parameters() {
		values := make(LimitTable)
		for level, limit := range p.Values() {
			values[soa.FormatNumber(level)] = limit
		}
		dd.Parameters[p.Name()] = ParameterDoc{
			Name:        p.Name(),
			Severity:    string(p.Severity()),
			Type:        string(p.Kind()),
			Polarity:    string(p.Polarity()),
			Unit:        p.Unit(),
			Values:      values,
			Description: p.Description(),
		}
	}
	return dd
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
