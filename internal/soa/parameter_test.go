package soa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestParameter(t *testing.T, name string, polarity Polarity, values map[float64]Limit) *Parameter {
	t.Helper()
	p, err := NewParameter(ParameterSpec{
		Name:     name,
		Kind:     KindVoltage,
		Unit:     "V",
		Severity: SeverityHigh,
		Polarity: polarity,
		Values:   values,
	})
	require.NoError(t, err)
	return p
}

func TestNewParameter_Validation(t *testing.T) {
	valid := ParameterSpec{
		Name:     "vhigh_ds_on",
		Kind:     KindVoltage,
		Unit:     "V",
		Severity: SeverityHigh,
		Polarity: PolarityHigh,
		Values:   map[float64]Limit{0.1: Numeric(1.65)},
	}

	tests := []struct {
		name   string
		mutate func(s *ParameterSpec)
	}{
		{name: "empty name", mutate: func(s *ParameterSpec) { s.Name = " " }},
		{name: "bad kind", mutate: func(s *ParameterSpec) { s.Kind = "pressure" }},
		{name: "bad severity", mutate: func(s *ParameterSpec) { s.Severity = "critical" }},
		{name: "bad polarity", mutate: func(s *ParameterSpec) { s.Polarity = "" }},
		{name: "no values", mutate: func(s *ParameterSpec) { s.Values = nil }},
		{name: "level above one", mutate: func(s *ParameterSpec) { s.Values = map[float64]Limit{1.5: Numeric(1)} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := valid
			tt.mutate(&spec)
			_, err := NewParameter(spec)
			assert.ErrorIs(t, err, ErrInvalidRule)
		})
	}

	p, err := NewParameter(valid)
	require.NoError(t, err)
	assert.Equal(t, "vhigh_ds_on", p.Name())
}

func TestParameter_IsImmutable(t *testing.T) {
	values := map[float64]Limit{0.1: Numeric(1.65)}
	p := newTestParameter(t, "vhigh_ds_on", PolarityHigh, values)

	values[0.1] = Numeric(99)
	assert.Equal(t, Numeric(1.65), p.LimitAt(0.1))

	copied := p.Values()
	copied[0.1] = Numeric(42)
	assert.Equal(t, Numeric(1.65), p.LimitAt(0.1))
}

func TestParameter_LimitAt(t *testing.T) {
	p := newTestParameter(t, "vhigh_ds_on", PolarityHigh, map[float64]Limit{
		0.1:  Numeric(1.65),
		0.01: Numeric(1.71),
		0.0:  Numeric(1.838),
	})

	assert.Equal(t, Numeric(1.65), p.LimitAt(0.1))
	assert.Equal(t, Numeric(1.71), p.LimitAt(0.01))
	assert.Equal(t, Numeric(1.838), p.LimitAt(0.0))
	assert.True(t, p.LimitAt(0.05).IsUnknown(), "non-tabulated level must not be guessed")
	assert.Equal(t, []float64{0.1, 0.01, 0.0}, p.Levels())
}

func TestParameter_IsNoLimitMatchesLimitAt(t *testing.T) {
	p := newTestParameter(t, "test_param", PolarityHigh, map[float64]Limit{
		0.1:  NoLimit(),
		0.01: Numeric(1.5),
		0.0:  Unknown(),
	})

	for _, level := range []float64{0.1, 0.01, 0.0, 0.5, 1} {
		assert.Equal(t, p.LimitAt(level).IsNoLimit(), p.IsNoLimit(level), "level %v", level)
	}
	assert.True(t, p.IsNoLimit(0.1))
	assert.False(t, p.IsNoLimit(0.01))
}

func TestParameter_LimitAtMode(t *testing.T) {
	p := newTestParameter(t, "vhigh_ds_on", PolarityHigh, map[float64]Limit{
		0.1:  Numeric(1.65),
		0.01: Numeric(1.71),
		0.0:  Numeric(1.838),
	})

	t.Run("exact", func(t *testing.T) {
		assert.True(t, p.LimitAtMode(0.05, LookupExact).IsUnknown())
		assert.Equal(t, Numeric(1.71), p.LimitAtMode(0.01, LookupExact))
	})

	t.Run("nearest", func(t *testing.T) {
		assert.Equal(t, Numeric(1.65), p.LimitAtMode(0.08, LookupNearest))
		assert.Equal(t, Numeric(1.71), p.LimitAtMode(0.02, LookupNearest))
		assert.Equal(t, Numeric(1.65), p.LimitAtMode(0.9, LookupNearest))
		// 0.005 is equidistant from 0.01 and 0.0; the stricter level wins.
		assert.Equal(t, Numeric(1.838), p.LimitAtMode(0.005, LookupNearest))
	})

	t.Run("interpolate", func(t *testing.T) {
		got, ok := p.LimitAtMode(0.055, LookupInterpolate).Float()
		require.True(t, ok)
		assert.InDelta(t, 1.68, got, 1e-9)

		assert.True(t, p.LimitAtMode(0.5, LookupInterpolate).IsUnknown(), "outside tabulated range")
	})
}

func TestParameter_InterpolateNeedsNumericBrackets(t *testing.T) {
	p := newTestParameter(t, "ihigh", PolarityHigh, map[float64]Limit{
		0.1: NoLimit(),
		0.0: Numeric(2),
	})
	assert.True(t, p.Interpolate(0.05).IsUnknown())
	assert.Equal(t, NoLimit(), p.Interpolate(0.1))
}

func TestPolarity_Violated(t *testing.T) {
	assert.True(t, PolarityHigh.Violated(2.0, 1.65))
	assert.False(t, PolarityHigh.Violated(1.65, 1.65))
	assert.False(t, PolarityHigh.Violated(1.5, 1.65))

	assert.True(t, PolarityLow.Violated(-1.0, -0.5))
	assert.False(t, PolarityLow.Violated(-0.5, -0.5))
	assert.False(t, PolarityLow.Violated(0, -0.5))
}
