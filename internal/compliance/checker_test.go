package compliance

import (
	"sync"
	"testing"

	"github.com/soa-checker/backend/internal/rules"
	"github.com/soa-checker/backend/internal/soa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mosKey = "mos_transistor_symmetric_on_off"

const testRules = `{
  "soa_rules": {
    "version": "1.0",
    "devices": {
      "mos_transistor_symmetric_on_off": {
        "device_type": "mos_transistor",
        "subcategory": "symmetric_on_off",
        "tmaxfrac_levels": [0.1, 0.01, 0.0],
        "parameters": {
          "vhigh_ds_on": {"severity": "high", "type": "voltage", "unit": "V",
            "values": {"0.1": 1.65, "0.01": 1.71, "0.0": 1.838}},
          "vhigh_ds_off": {"severity": "medium", "type": "voltage", "unit": "V",
            "values": {"0.1": 1.815, "0.01": 1.881, "0.0": "no-limit"}},
          "vlow_gs": {"severity": "low", "type": "voltage", "unit": "V",
            "values": {"0.1": -0.5, "0.01": "unknown", "0.0": -0.7}},
          "tj": {"type": "temperature",
            "values": {"0.1": 125}}
        }
      }
    }
  }
}`

func newTestEngine(t *testing.T) *rules.Engine {
	t.Helper()
	e := rules.New()
	require.NoError(t, e.LoadJSON([]byte(testRules)))
	return e
}

func TestCheck_WithinLimit(t *testing.T) {
	c := NewChecker(newTestEngine(t))

	res, err := c.Check(mosKey, map[string]float64{"tmaxfrac": 0.1, "vhigh_ds_on": 1.5})
	require.NoError(t, err)
	assert.True(t, res.Compliant)
	assert.Empty(t, res.Violations)
	assert.Equal(t, soa.Numeric(1.65), res.Limits["vhigh_ds_on"].Value)
	assert.Equal(t, "V", res.Limits["vhigh_ds_on"].Unit)
	assert.Equal(t, map[string]float64{"vhigh_ds_on": 1.5}, res.TestValues)
}

func TestCheck_ExceedsLimit(t *testing.T) {
	c := NewChecker(newTestEngine(t))

	res, err := c.Check(mosKey, map[string]float64{"tmaxfrac": 0.1, "vhigh_ds_on": 2.0})
	require.NoError(t, err)
	assert.False(t, res.Compliant)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, "vhigh_ds_on: 2.0 exceeds high-severity limit of 1.65 V at tmaxfrac=0.1", res.Violations[0])

	require.Len(t, res.ViolationDetails, 1)
	d := res.ViolationDetails[0]
	assert.Equal(t, "vhigh_ds_on", d.Parameter)
	assert.Equal(t, 2.0, d.Value)
	assert.Equal(t, 1.65, d.Limit)
	assert.Equal(t, 0.1, d.Tmaxfrac)
	assert.Equal(t, res.Violations[0], d.Message)
}

func TestCheck_LevelsAreIndependent(t *testing.T) {
	c := NewChecker(newTestEngine(t))

	res, err := c.Check(mosKey, map[string]float64{"tmaxfrac": 0.0, "vhigh_ds_on": 1.7})
	require.NoError(t, err)
	assert.True(t, res.Compliant)
	assert.Equal(t, soa.Numeric(1.838), res.Limits["vhigh_ds_on"].Value)

	res, err = c.Check(mosKey, map[string]float64{"tmaxfrac": 0.1, "vhigh_ds_on": 1.7})
	require.NoError(t, err)
	assert.False(t, res.Compliant)
}

func TestCheck_NoLimitNeverViolates(t *testing.T) {
	c := NewChecker(newTestEngine(t))

	res, err := c.Check(mosKey, map[string]float64{"tmaxfrac": 0.0, "vhigh_ds_off": 1e9})
	require.NoError(t, err)
	assert.True(t, res.Compliant)
	assert.Empty(t, res.Violations)
	assert.True(t, res.Limits["vhigh_ds_off"].Value.IsNoLimit())
}

func TestCheck_UnknownLimitIsSkipped(t *testing.T) {
	c := NewChecker(newTestEngine(t))

	res, err := c.Check(mosKey, map[string]float64{"tmaxfrac": 0.01, "vlow_gs": -100})
	require.NoError(t, err)
	assert.True(t, res.Compliant)
	assert.Equal(t, []string{"vlow_gs"}, res.Skipped)
	require.Contains(t, res.Limits, "vlow_gs")
	assert.True(t, res.Limits["vlow_gs"].Value.IsUnknown())
}

func TestCheck_LowPolarity(t *testing.T) {
	c := NewChecker(newTestEngine(t))

	res, err := c.Check(mosKey, map[string]float64{"tmaxfrac": 0.0, "vlow_gs": -0.8})
	require.NoError(t, err)
	assert.False(t, res.Compliant)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, "vlow_gs: -0.8 is below low-severity limit of -0.7 V at tmaxfrac=0.0", res.Violations[0])

	res, err = c.Check(mosKey, map[string]float64{"tmaxfrac": 0.0, "vlow_gs": -0.7})
	require.NoError(t, err)
	assert.True(t, res.Compliant, "a value equal to the limit is compliant")
}

func TestCheck_UnitlessMessage(t *testing.T) {
	c := NewChecker(newTestEngine(t))

	res, err := c.Check(mosKey, map[string]float64{"tmaxfrac": 0.1, "tj": 150})
	require.NoError(t, err)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, "tj: 150.0 exceeds high-severity limit of 125.0 at tmaxfrac=0.1", res.Violations[0])
}

func TestCheck_IntersectionOnly(t *testing.T) {
	c := NewChecker(newTestEngine(t))

	res, err := c.Check(mosKey, map[string]float64{"tmaxfrac": 0.1, "ids_max": 999, "vhigh_ds_on": 1.0})
	require.NoError(t, err)
	assert.True(t, res.Compliant)
	assert.NotContains(t, res.Limits, "ids_max")
	assert.NotContains(t, res.Limits, "vhigh_ds_off", "parameters without a test value are not reported")
	assert.Contains(t, res.TestValues, "ids_max")
}

func TestCheck_ViolationsSortedByName(t *testing.T) {
	c := NewChecker(newTestEngine(t))

	res, err := c.Check(mosKey, map[string]float64{
		"tmaxfrac":     0.1,
		"vhigh_ds_on":  5,
		"vhigh_ds_off": 5,
		"tj":           500,
	})
	require.NoError(t, err)
	require.Len(t, res.ViolationDetails, 3)
	assert.Equal(t, "tj", res.ViolationDetails[0].Parameter)
	assert.Equal(t, "vhigh_ds_off", res.ViolationDetails[1].Parameter)
	assert.Equal(t, "vhigh_ds_on", res.ViolationDetails[2].Parameter)
}

func TestCheck_Errors(t *testing.T) {
	c := NewChecker(newTestEngine(t))

	_, err := c.Check(mosKey, map[string]float64{"vhigh_ds_on": 1})
	assert.ErrorIs(t, err, soa.ErrMissingRequiredField)

	_, err = c.Check(mosKey, map[string]float64{"tmaxfrac": 1.5})
	assert.ErrorIs(t, err, soa.ErrMissingRequiredField)

	_, err = c.Check(mosKey, map[string]float64{"tmaxfrac": -0.1})
	assert.ErrorIs(t, err, soa.ErrMissingRequiredField)

	_, err = c.Check("bjt_npn", map[string]float64{"tmaxfrac": 0.1})
	assert.ErrorIs(t, err, soa.ErrUnknownDevice)
}

func TestCheck_UntabulatedLevel(t *testing.T) {
	engine := newTestEngine(t)
	values := map[string]float64{"tmaxfrac": 0.05, "vhigh_ds_on": 1.69}

	t.Run("exact skips", func(t *testing.T) {
		res, err := NewChecker(engine).Check(mosKey, values)
		require.NoError(t, err)
		assert.True(t, res.Compliant)
		assert.Equal(t, []string{"vhigh_ds_on"}, res.Skipped)
		assert.Nil(t, res.Limits["vhigh_ds_on"].Interpolated)
	})

	t.Run("interpolated display does not decide", func(t *testing.T) {
		res, err := NewChecker(engine, WithInterpolatedDisplay()).Check(mosKey, values)
		require.NoError(t, err)
		assert.True(t, res.Compliant)
		require.NotNil(t, res.Limits["vhigh_ds_on"].Interpolated)
		got, ok := res.Limits["vhigh_ds_on"].Interpolated.Float()
		require.True(t, ok)
		assert.InDelta(t, 1.68333, got, 1e-4)
	})

	t.Run("nearest", func(t *testing.T) {
		c := NewChecker(engine, WithLookup(soa.LookupNearest))
		assert.Equal(t, soa.LookupNearest, c.Mode())
		res, err := c.Check(mosKey, values)
		require.NoError(t, err)
		// 0.05 is nearer to 0.01 (1.71) than to 0.1 (1.65).
		assert.True(t, res.Compliant)
		assert.Equal(t, soa.Numeric(1.71), res.Limits["vhigh_ds_on"].Value)
	})

	t.Run("interpolate decides", func(t *testing.T) {
		res, err := NewChecker(engine, WithLookup(soa.LookupInterpolate)).Check(mosKey, values)
		require.NoError(t, err)
		assert.False(t, res.Compliant)
	})
}

func TestCheck_Idempotent(t *testing.T) {
	c := NewChecker(newTestEngine(t))
	values := map[string]float64{"tmaxfrac": 0.01, "vhigh_ds_on": 1.8, "vhigh_ds_off": 1.0}

	first, err := c.Check(mosKey, values)
	require.NoError(t, err)
	second, err := c.Check(mosKey, values)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCheck_MonotonicStrictness(t *testing.T) {
	c := NewChecker(newTestEngine(t))
	value := 1.68

	res, err := c.Check(mosKey, map[string]float64{"tmaxfrac": 0.01, "vhigh_ds_on": value})
	require.NoError(t, err)
	require.True(t, res.Compliant)

	// 0.0 tabulates a looser limit than 0.01, so the value must stay compliant there.
	res, err = c.Check(mosKey, map[string]float64{"tmaxfrac": 0.0, "vhigh_ds_on": value})
	require.NoError(t, err)
	assert.True(t, res.Compliant)
}

func TestCheck_Concurrent(t *testing.T) {
	c := NewChecker(newTestEngine(t))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := c.Check(mosKey, map[string]float64{"tmaxfrac": 0.1, "vhigh_ds_on": float64(i)})
			if assert.NoError(t, err) {
				assert.Equal(t, float64(i) <= 1.65, res.Compliant)
			}
		}(i)
	}
	wg.Wait()
}
