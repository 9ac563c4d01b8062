package classifier

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/limbcontrol/internal/training"
)

var names = []string{"No Movement", "Elbow Flexion", "Elbow Extension"}

// clusteredStore fills a store with three separated Gaussian clusters. The
// third feature is constant to exercise the ridge term.
func clusteredStore(t *testing.T, perClass int) *training.Store {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	centres := [][]float64{{0.1, 0.1}, {5, 0}, {0, 5}}
	s := training.NewStore(names, 2, nil)
	for id, c := range centres {
		for i := 0; i < perClass; i++ {
			x := []float64{c[0] + rng.NormFloat64()*0.3, c[1] + rng.NormFloat64()*0.3, 1}
			require.NoError(t, s.Add(x, id, "", nil))
		}
	}
	return s
}

func TestClassifier_UntrainedAndNoData(t *testing.T) {
	c := New()
	assert.False(t, c.Trained())

	_, status, ok := c.Predict([]float64{1, 2, 3})
	assert.False(t, ok)
	assert.Equal(t, Untrained, status)

	_, status, ok = c.Predict([]float64{0, 0, 0})
	assert.False(t, ok)
	assert.Equal(t, NoData, status)
}

func TestClassifier_FitAndPredict(t *testing.T) {
	c := New()
	require.NoError(t, c.Fit(clusteredStore(t, 40)))
	require.True(t, c.Trained())
	assert.Equal(t, []int{0, 1, 2}, c.Model().Classes())
	assert.Equal(t, 3, c.Model().Dim())

	tests := []struct {
		x    []float64
		want int
	}{
		{[]float64{0.2, 0, 1}, 0},
		{[]float64{4.8, 0.3, 1}, 1},
		{[]float64{-0.2, 5.1, 1}, 2},
	}
	for _, tt := range tests {
		id, status, ok := c.Predict(tt.x)
		require.True(t, ok)
		assert.Equal(t, Running, status)
		assert.Equal(t, tt.want, id, "x=%v", tt.x)
	}
}

func TestClassifier_NoDataWhenTrained(t *testing.T) {
	c := New()
	require.NoError(t, c.Fit(clusteredStore(t, 10)))
	_, status, ok := c.Predict(make([]float64, 3))
	assert.False(t, ok)
	assert.Equal(t, NoData, status)
}

func TestClassifier_LengthMismatch(t *testing.T) {
	c := New()
	require.NoError(t, c.Fit(clusteredStore(t, 10)))
	_, status, ok := c.Predict([]float64{1, 2})
	assert.False(t, ok)
	assert.Equal(t, Error, status)
}

func TestClassifier_NonFiniteInput(t *testing.T) {
	c := New()
	require.NoError(t, c.Fit(clusteredStore(t, 10)))
	for _, x := range [][]float64{
		{math.NaN(), 5, 1},
		{0.1, math.Inf(1), 1},
		{math.Inf(-1), 0, 0},
	} {
		id, status, ok := c.Predict(x)
		assert.False(t, ok, "x=%v", x)
		assert.Equal(t, Error, status, "x=%v", x)
		assert.Zero(t, id)
	}

	_, err := c.Model().Predict([]float64{math.NaN(), 5, 1})
	assert.ErrorIs(t, err, training.ErrNonFinite)
}

func TestClassifier_FitFailuresLeaveUntrained(t *testing.T) {
	c := New()
	require.NoError(t, c.Fit(clusteredStore(t, 10)))

	empty := training.NewStore(names, 2, nil)
	assert.ErrorIs(t, c.Fit(empty), ErrNoSamples)
	assert.False(t, c.Trained())

	require.NoError(t, c.Fit(clusteredStore(t, 10)))
	one := training.NewStore(names, 2, nil)
	require.NoError(t, one.Add([]float64{1, 2}, 1, "", nil))
	require.NoError(t, one.Add([]float64{1, 3}, 1, "", nil))
	assert.ErrorIs(t, c.Fit(one), ErrTooFewClasses)
	assert.False(t, c.Trained())

	_, status, _ := c.Predict([]float64{1, 2})
	assert.Equal(t, Untrained, status)
}

func TestFit_SingleSamplePerClass(t *testing.T) {
	samples := []training.Sample{
		{Features: []float64{0, 1}, ClassID: 0},
		{Features: []float64{1, 0}, ClassID: 3},
	}
	m, err := Fit(samples)
	require.NoError(t, err)
	id, err := m.Predict([]float64{0.9, 0.1})
	require.NoError(t, err)
	assert.Equal(t, 3, id)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "RUNNING", Running.String())
	assert.Equal(t, "NO DATA", NoData.String())
	assert.Equal(t, "Status(9)", Status(9).String())
	assert.Len(t, StatusNames(), 4)
}
