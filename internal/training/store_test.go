package training

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/limbcontrol/internal/timeutil"
)

var classes = []string{"No Movement", "Elbow Flexion", "Elbow Extension"}

type memPersister struct {
	sets []*Set
	err  error
}

func (m *memPersister) SaveTrainingSet(_ context.Context, set *Set) error {
	if m.err != nil {
		return m.err
	}
	m.sets = append(m.sets, set)
	return nil
}

func (m *memPersister) LoadLatestTrainingSet(context.Context) (*Set, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(m.sets) == 0 {
		return nil, ErrNotFound
	}
	return m.sets[len(m.sets)-1], nil
}

func newTestStore() (*Store, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewStore(classes, 8, clock), clock
}

func TestStore_AddAndTotals(t *testing.T) {
	s, clock := newTestStore()

	require.NoError(t, s.Add([]float64{1, 2}, 1, "", nil))
	clock.Advance(time.Second)
	require.NoError(t, s.Add([]float64{3, 4}, 1, "", []float64{1, 0, 0, 0}))
	require.NoError(t, s.Add([]float64{5, 6}, 2, "Elbow Extension", nil))

	assert.Equal(t, []int{0, 2, 1}, s.Totals())
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 2, s.NumFeatures())

	samples := s.Samples()
	require.Len(t, samples, 3)
	assert.Equal(t, "Elbow Flexion", samples[0].ClassName)
	assert.Equal(t, time.Second, samples[1].Timestamp.Sub(samples[0].Timestamp))
	assert.Equal(t, []float64{1, 0, 0, 0}, samples[1].IMU)
}

func TestStore_AddRejects(t *testing.T) {
	s, _ := newTestStore()
	assert.ErrorIs(t, s.Add([]float64{1}, 3, "", nil), ErrUnknownClass)
	assert.ErrorIs(t, s.Add([]float64{1}, -1, "", nil), ErrUnknownClass)
	assert.ErrorIs(t, s.Add(nil, 0, "", nil), ErrFeatureLength)

	require.NoError(t, s.Add([]float64{1, 2}, 0, "", nil))
	assert.ErrorIs(t, s.Add([]float64{1, 2, 3}, 0, "", nil), ErrFeatureLength)
	assert.ErrorIs(t, s.Add([]float64{math.NaN(), 2}, 1, "", nil), ErrNonFinite)
	assert.ErrorIs(t, s.Add([]float64{1, math.Inf(-1)}, 1, "", nil), ErrNonFinite)
	assert.Equal(t, 1, s.Len())
}

func TestStore_NonFiniteAddKeepsSaveLoadable(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()
	require.NoError(t, s.Add([]float64{1, 2}, 1, "", nil))
	assert.Error(t, s.Add([]float64{math.NaN(), 2}, 1, "", nil))

	p := &memPersister{}
	_, err := s.Save(ctx, p)
	require.NoError(t, err)

	restored, _ := newTestStore()
	require.NoError(t, restored.Load(ctx, p))
	assert.Equal(t, []int{0, 1, 0}, restored.Totals())
}

func TestStore_SamplesAreCopies(t *testing.T) {
	s, _ := newTestStore()
	in := []float64{1, 2}
	require.NoError(t, s.Add(in, 0, "", nil))
	in[0] = 99

	out := s.Samples()
	assert.Equal(t, 1.0, out[0].Features[0])
	out[0].Features[1] = 42
	assert.Equal(t, 2.0, s.Samples()[0].Features[1])
}

func TestStore_ClearRevertsToEmpty(t *testing.T) {
	s, _ := newTestStore()
	require.NoError(t, s.Add([]float64{1, 2}, 1, "", nil))
	require.NoError(t, s.Add([]float64{3, 4}, 2, "", nil))

	assert.Equal(t, 1, s.Clear(1))
	assert.Equal(t, []int{0, 0, 1}, s.Totals())
	assert.Equal(t, 2, s.NumFeatures())

	assert.Equal(t, 1, s.Clear(2))
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.NumFeatures())

	// A cleared store accepts a new width.
	require.NoError(t, s.Add([]float64{1, 2, 3}, 0, "", nil))
	assert.Equal(t, 3, s.NumFeatures())
}

func TestStore_Reset(t *testing.T) {
	s, _ := newTestStore()
	require.NoError(t, s.Add([]float64{1}, 0, "", nil))
	s.Reset()
	assert.Equal(t, []int{0, 0, 0}, s.Totals())
	assert.Empty(t, s.Samples())
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()
	require.NoError(t, s.Add([]float64{1, 2}, 1, "", nil))
	require.NoError(t, s.Add([]float64{3, 4}, 2, "", []float64{0.5}))

	p := &memPersister{}
	id, err := s.Save(ctx, p)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.Len(t, p.sets, 1)
	assert.Equal(t, 8, p.sets[0].NumChannels)

	restored, _ := newTestStore()
	require.NoError(t, restored.Load(ctx, p))
	if diff := cmp.Diff(s.Samples(), restored.Samples()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, s.Totals(), restored.Totals())
}

func TestStore_LoadRejectsMalformed(t *testing.T) {
	ctx := context.Background()
	good := Sample{Features: []float64{1, 2}, ClassID: 1, ClassName: "Elbow Flexion"}
	tests := []struct {
		name    string
		samples []Sample
	}{
		{"class out of range", []Sample{{Features: []float64{1}, ClassID: 9, ClassName: "x"}}},
		{"name mismatch", []Sample{{Features: []float64{1}, ClassID: 1, ClassName: "Hand Open"}}},
		{"ragged", []Sample{good, {Features: []float64{1}, ClassID: 1, ClassName: "Elbow Flexion"}}},
		{"empty vector", []Sample{{ClassID: 1, ClassName: "Elbow Flexion"}}},
		{"nan", []Sample{{Features: []float64{math.NaN()}, ClassID: 1, ClassName: "Elbow Flexion"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore()
			require.NoError(t, s.Add([]float64{7, 7}, 0, "", nil))
			p := &memPersister{sets: []*Set{{ID: "bad", Samples: tt.samples}}}

			err := s.Load(ctx, p)
			assert.ErrorIs(t, err, ErrMalformed)
			assert.Equal(t, 0, s.Len(), "store must be left empty")
		})
	}
}

func TestStore_LoadNotFound(t *testing.T) {
	s, _ := newTestStore()
	require.NoError(t, s.Add([]float64{1}, 0, "", nil))
	err := s.Load(context.Background(), &memPersister{})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, s.Len())
}
