package compliance

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/soa-checker/backend/internal/soa"
)

// Scenario is one raw set of named test values, as decoded from JSON, YAML, CSV or XLSX.
type Scenario map[string]interface{}

// ScenarioResult is the outcome of one scenario in a batch.
type ScenarioResult struct {
	Index      int                `json:"index" yaml:"index"`
	Tmaxfrac   *float64           `json:"tmaxfrac,omitempty" yaml:"tmaxfrac,omitempty"`
	TestValues map[string]float64 `json:"testValues" yaml:"testValues"`
	Compliant  bool               `json:"compliant" yaml:"compliant"`
	Violations []string           `json:"violations" yaml:"violations"`
	Error      string             `json:"error,omitempty" yaml:"error,omitempty"`
}

type Summary struct {
	Total   int `json:"total" yaml:"total"`
	Passed  int `json:"passed" yaml:"passed"`
	Failed  int `json:"failed" yaml:"failed"`
	Errored int `json:"errored" yaml:"errored"`
}

// Report is the aggregated outcome of a batch. Results keep the caller's scenario order.
type Report struct {
	ID        string           `json:"id" yaml:"id"`
	Device    string           `json:"device" yaml:"device"`
	CreatedAt time.Time        `json:"createdAt" yaml:"createdAt"`
	Summary   Summary          `json:"summary" yaml:"summary"`
	Results   []ScenarioResult `json:"results" yaml:"results"`
}

// Batch runs many scenarios against one device.
type Batch struct {
	checker *Checker
	now     func() time.Time
}

func NewBatch(checker *Checker) *Batch {
	return &Batch{checker: checker, now: time.Now}
}

// Run checks every scenario. An unknown device fails the whole run before any scenario is
// evaluated; a malformed scenario is recorded as a failed result and the run continues.
func (b *Batch) Run(deviceKey string, scenarios []Scenario) (*Report, error) {
	if _, err := b.checker.devices.Device(deviceKey); err != nil {
		return nil, err
	}

	report := &Report{
		ID:        uuid.New().String(),
		Device:    deviceKey,
		CreatedAt: b.now().UTC(),
		Results:   make([]ScenarioResult, 0, len(scenarios)),
	}

	for i, sc := range scenarios {
		sr := ScenarioResult{Index: i, TestValues: map[string]float64{}, Violations: []string{}}

		res, err := b.runOne(deviceKey, sc)
		if err != nil {
			sr.Error = err.Error()
			if t, ok := sc[TmaxfracKey]; ok {
				if f, cerr := coerceValue(t); cerr == nil {
					sr.Tmaxfrac = &f
				}
			}
			report.Summary.Errored++
			report.Summary.Failed++
		} else {
			t := res.Tmaxfrac
			sr.Tmaxfrac = &t
			sr.TestValues = res.TestValues
			sr.Compliant = res.Compliant
			sr.Violations = res.Violations
			if res.Compliant {
				report.Summary.Passed++
			} else {
				report.Summary.Failed++
			}
		}
		report.Results = append(report.Results, sr)
	}
	report.Summary.Total = len(scenarios)
	return report, nil
}

func (b *Batch) runOne(deviceKey string, sc Scenario) (*Result, error) {
	values, err := CoerceScenario(sc)
	if err != nil {
		return nil, err
	}
	res, err := b.checker.Check(deviceKey, values)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", soa.ErrScenario, err)
	}
	return res, nil
}

// CoerceScenario converts raw scenario values to numbers. Numeric strings are accepted.
func CoerceScenario(sc Scenario) (map[string]float64, error) {
	values := make(map[string]float64, len(sc))
	for name, raw := range sc {
		v, err := coerceValue(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", soa.ErrScenario, name, err)
		}
		values[name] = v
	}
	return values, nil
}

func coerceValue(raw interface{}) (float64, error) {
	var v float64
	switch x := raw.(type) {
	case float64:
		v = x
	case float32:
		v = float64(x)
	case int:
		v = float64(x)
	case int8:
		v = float64(x)
	case int16:
		v = float64(x)
	case int32:
		v = float64(x)
	case int64:
		v = float64(x)
	case uint8:
		v = float64(x)
	case uint16:
		v = float64(x)
	case uint32:
		v = float64(x)
	case uint64:
		v = float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("value %q is not a number", x)
		}
		v = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not a number", x)
		}
		v = f
	case nil:
		return 0, errors.New("value is null")
	default:
		return 0, fmt.Errorf("value of type %T is not a number", raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("value %v is not finite", v)
	}
	return v, nil
}
