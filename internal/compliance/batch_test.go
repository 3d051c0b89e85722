package compliance

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/soa-checker/backend/internal/soa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatch_Run(t *testing.T) {
	b := NewBatch(NewChecker(newTestEngine(t)))

	scenarios := []Scenario{
		{"tmaxfrac": 0.1, "vhigh_ds_on": 1.5},
		{"tmaxfrac": 0.1, "vhigh_ds_on": 2.0},
		{"tmaxfrac": 0.0, "vhigh_ds_on": 1.7},
		{"tmaxfrac": 0.01, "vhigh_ds_on": 1.8},
		{"tmaxfrac": 0.0, "vhigh_ds_off": 100},
	}

	report, err := b.Run(mosKey, scenarios)
	require.NoError(t, err)

	assert.NotEmpty(t, report.ID)
	assert.Equal(t, mosKey, report.Device)
	assert.Equal(t, Summary{Total: 5, Passed: 3, Failed: 2}, report.Summary)

	require.Len(t, report.Results, 5)
	compliant := make([]bool, 0, 5)
	for i, r := range report.Results {
		assert.Equal(t, i, r.Index)
		compliant = append(compliant, r.Compliant)
	}
	assert.Equal(t, []bool{true, false, true, false, true}, compliant)
	assert.Equal(t, 2.0, report.Results[1].TestValues["vhigh_ds_on"])
	require.NotNil(t, report.Results[3].Tmaxfrac)
	assert.Equal(t, 0.01, *report.Results[3].Tmaxfrac)
}

func TestBatch_MalformedScenarioIsIsolated(t *testing.T) {
	b := NewBatch(NewChecker(newTestEngine(t)))

	scenarios := []Scenario{
		{"tmaxfrac": "0.1", "vhigh_ds_on": "1.5"},
		{"tmaxfrac": 0.1, "vhigh_ds_on": "abc"},
		{"vhigh_ds_on": 1.0},
		{"tmaxfrac": json.Number("0.1"), "vhigh_ds_on": json.Number("1.6")},
	}

	report, err := b.Run(mosKey, scenarios)
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 4, Passed: 2, Failed: 2, Errored: 2}, report.Summary)

	assert.True(t, report.Results[0].Compliant)
	assert.Empty(t, report.Results[0].Error)

	bad := report.Results[1]
	assert.False(t, bad.Compliant)
	assert.Contains(t, bad.Error, "vhigh_ds_on")
	require.NotNil(t, bad.Tmaxfrac)
	assert.Equal(t, 0.1, *bad.Tmaxfrac)

	noT := report.Results[2]
	assert.Contains(t, noT.Error, soa.ErrMissingRequiredField.Error())
	assert.Nil(t, noT.Tmaxfrac)

	assert.True(t, report.Results[3].Compliant)
}

func TestBatch_UnknownDeviceIsFatal(t *testing.T) {
	b := NewBatch(NewChecker(newTestEngine(t)))

	report, err := b.Run("bjt_npn", []Scenario{{"tmaxfrac": 0.1}})
	assert.ErrorIs(t, err, soa.ErrUnknownDevice)
	assert.Nil(t, report)
}

func TestBatch_Empty(t *testing.T) {
	b := NewBatch(NewChecker(newTestEngine(t)))
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	report, err := b.Run(mosKey, nil)
	require.NoError(t, err)
	assert.Equal(t, Summary{}, report.Summary)
	assert.Empty(t, report.Results)
	assert.Equal(t, fixed, report.CreatedAt)
}

func TestCoerceScenario(t *testing.T) {
	values, err := CoerceScenario(Scenario{"a": 1, "b": int64(2), "c": " 3.5 ", "d": float32(0.5)})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"a": 1, "b": 2, "c": 3.5, "d": 0.5}, values)

	for _, raw := range []interface{}{nil, true, "x", "NaN", []int{1}} {
		_, err := CoerceScenario(Scenario{"v": raw})
		assert.ErrorIs(t, err, soa.ErrScenario, "%v", raw)
	}
}
