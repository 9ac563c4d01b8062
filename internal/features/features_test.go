package features

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fs = 200.0

func TestCatalog_KnownValues(t *testing.T) {
	tests := []struct {
		name string
		f    Feature
		x    []float64
		want float64
	}{
		{"mav", MAV{}, []float64{1, -2, 3, -4}, 2.5},
		{"curve length", CurveLength{SampleRate: fs}, []float64{0, 1, 0, 1}, 150},
		{"zero crossing", ZeroCrossing{SampleRate: fs, Threshold: 0.05}, []float64{1, -1, 1, -1}, 150},
		{"zero crossing below threshold", ZeroCrossing{SampleRate: fs, Threshold: 0.05}, []float64{0.01, -0.01, 0.01}, 0},
		{"zero crossing through zero is not strict", ZeroCrossing{SampleRate: fs, Threshold: 0.05}, []float64{1, 0, -1}, 0},
		{"slope sign change", SlopeSignChange{SampleRate: fs, Threshold: 0.05}, []float64{0, 1, 0, 1, 0}, 120},
		{"slope sign change flat", SlopeSignChange{SampleRate: fs, Threshold: 0.05}, []float64{1, 1, 1, 1}, 0},
		{"willison amplitude", WillisonAmplitude{SampleRate: fs, Threshold: 0.05}, []float64{0, 1, 0, 1, 0}, 160},
		{"variance", Variance{}, []float64{1, 2, 3}, 7},
		{"v-order", VOrder{}, []float64{1, 2, 3}, math.Sqrt(7)},
		{"log detect", LogDetect{}, []float64{2, -8}, 4},
		{"log detect with zero", LogDetect{}, []float64{0, 1}, 0},
		{"histogram range", HistogramRange{}, []float64{3, -1, 2}, 4},
		{"ar1 constant", AR1{}, []float64{1, 1, 1, 1}, -0.75},
		{"ar1 alternating", AR1{}, []float64{1, -1, 1, -1}, 0.75},
		{"cepstral1", Cepstral1{}, []float64{1, 1, 1, 1}, 0.75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, tt.f.Compute(tt.x), 1e-9)
		})
	}
}

func TestCatalog_DegenerateWindowsNeverNaN(t *testing.T) {
	windows := map[string][]float64{
		"empty":    {},
		"single":   {0.3},
		"all zero": make([]float64, 16),
	}
	for _, name := range Names() {
		f, err := New(name, DefaultParams())
		require.NoError(t, err)
		for wname, x := range windows {
			got := f.Compute(x)
			assert.False(t, math.IsNaN(got), "%s on %s window is NaN", name, wname)
			assert.False(t, math.IsInf(got, 0), "%s on %s window is Inf", name, wname)
			if wname == "empty" {
				assert.Zero(t, got, "%s on empty window", name)
			}
		}
	}
	assert.Zero(t, Variance{}.Compute([]float64{5}))
	assert.Zero(t, VOrder{}.Compute([]float64{5}))
	assert.Zero(t, AR1{}.Compute(make([]float64, 8)))
	assert.Zero(t, Cepstral1{}.Compute(make([]float64, 8)))
}

func TestCatalog_NonNegativeAndVOrderSquared(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		x := make([]float64, 2+rng.Intn(100))
		for i := range x {
			x[i] = rng.NormFloat64() * 3
		}
		mav := MAV{}.Compute(x)
		v := Variance{}.Compute(x)
		vo := VOrder{}.Compute(x)
		assert.GreaterOrEqual(t, mav, 0.0)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.GreaterOrEqual(t, vo, 0.0)
		assert.InDelta(t, v, vo*vo, 1e-9*math.Max(1, v))
	}
}

func TestNew(t *testing.T) {
	f, err := New("ZeroCrossing", Params{SampleRate: 1000, ZCThreshold: 0.2})
	require.NoError(t, err)
	assert.Equal(t, ZeroCrossing{SampleRate: 1000, Threshold: 0.2}, f)
	assert.Equal(t, "ZeroCrossing", f.Name())

	_, err = New("Wavelet", DefaultParams())
	assert.True(t, errors.Is(err, ErrUnknownFeature))

	_, err = NewSet([]string{"MAV", "nope"}, DefaultParams())
	assert.ErrorIs(t, err, ErrUnknownFeature)
}

func TestNames_MatchFeatureNames(t *testing.T) {
	names := Names()
	assert.Len(t, names, 11)
	for _, name := range names {
		f, err := New(name, DefaultParams())
		require.NoError(t, err)
		assert.Equal(t, name, f.Name())
	}
}
