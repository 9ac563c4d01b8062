// Package training holds the labeled feature samples a classifier is fit on,
// and the contract for persisting them as a whole.
package training

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/limbcontrol/internal/monitoring"
	"github.com/banshee-data/limbcontrol/internal/timeutil"
)

var logs = monitoring.NewStreams("training")

// SetLogWriters configures the training log streams.
func SetLogWriters(w monitoring.LogWriters) { logs.SetLogWriters(w) }

var (
	// ErrUnknownClass is returned for a class id outside the catalog.
	ErrUnknownClass = errors.New("class id outside catalog")
	// ErrFeatureLength is returned when a sample's length differs from the
	// samples already held.
	ErrFeatureLength = errors.New("feature vector length mismatch")
	// ErrNotFound is returned by a Persister with nothing saved.
	ErrNotFound = errors.New("no saved training data")
	// ErrMalformed is returned by Load for persisted data that fails validation.
	ErrMalformed = errors.New("malformed training data")
	// ErrNonFinite is returned for a feature vector holding NaN or Inf.
	ErrNonFinite = errors.New("non-finite feature value")
)

// Finite reports whether every value of x is neither NaN nor infinite.
func Finite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Sample is one labeled feature vector. Samples are immutable once added.
type Sample struct {
	Features  []float64
	ClassID   int
	ClassName string
	Timestamp time.Time
	IMU       []float64 // optional
}

func (s Sample) clone() Sample {
	s.Features = append([]float64(nil), s.Features...)
	if s.IMU != nil {
		s.IMU = append([]float64(nil), s.IMU...)
	}
	return s
}

// Set is the persisted form of a store.
type Set struct {
	ID          string
	CreatedAt   time.Time
	Description string
	NumChannels int
	Samples     []Sample
}

// Persister saves and restores whole training sets.
type Persister interface {
	SaveTrainingSet(ctx context.Context, set *Set) error
	// LoadLatestTrainingSet returns ErrNotFound (possibly wrapped) when
	// nothing has been saved.
	LoadLatestTrainingSet(ctx context.Context) (*Set, error)
}

// Store is an insertion-ordered collection of labeled samples over a fixed
// class catalog, where a class id is its index in the catalog.
type Store struct {
	classNames  []string
	numChannels int
	clock       timeutil.Clock

	mu          sync.RWMutex
	samples     []Sample
	numFeatures int
}

// NewStore creates an empty store over classNames. numChannels is recorded
// with saved sets. A nil clock uses the wall clock.
func NewStore(classNames []string, numChannels int, clock timeutil.Clock) *Store {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Store{
		classNames:  append([]string(nil), classNames...),
		numChannels: numChannels,
		clock:       clock,
	}
}

// ClassNames returns the catalog.
func (s *Store) ClassNames() []string {
	return append([]string(nil), s.classNames...)
}

// NumFeatures is the feature vector length of the held samples, 0 when empty.
func (s *Store) NumFeatures() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.numFeatures
}

// Len returns the number of samples.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}

// Add appends a labeled sample. An empty className takes the catalog name.
func (s *Store) Add(features []float64, classID int, className string, imu []float64) error {
	if classID < 0 || classID >= len(s.classNames) {
		return fmt.Errorf("%w: %d", ErrUnknownClass, classID)
	}
	if len(features) == 0 {
		return fmt.Errorf("%w: empty vector", ErrFeatureLength)
	}
	if !Finite(features) {
		return fmt.Errorf("%w: class %d", ErrNonFinite, classID)
	}
	if className == "" {
		className = s.classNames[classID]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.numFeatures != 0 && len(features) != s.numFeatures {
		return fmt.Errorf("%w: got %d, store holds %d", ErrFeatureLength, len(features), s.numFeatures)
	}
	sample := Sample{
		Features:  features,
		ClassID:   classID,
		ClassName: className,
		Timestamp: s.clock.Now(),
		IMU:       imu,
	}.clone()
	s.samples = append(s.samples, sample)
	s.numFeatures = len(features)
	return nil
}

// Clear removes every sample of classID. When the store becomes empty it
// returns to its initial state and accepts any feature length again.
func (s *Store) Clear(classID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.samples[:0]
	removed := 0
	for _, smp := range s.samples {
		if smp.ClassID == classID {
			removed++
			continue
		}
		kept = append(kept, smp)
	}
	// Drop references held past the new length.
	for i := len(kept); i < len(s.samples); i++ {
		s.samples[i] = Sample{}
	}
	s.samples = kept
	if len(s.samples) == 0 {
		s.samples = nil
		s.numFeatures = 0
	}
	return removed
}

// Reset removes every sample.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = nil
	s.numFeatures = 0
}

// Totals returns the sample count per catalog class.
func (s *Store) Totals() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int, len(s.classNames))
	for _, smp := range s.samples {
		out[smp.ClassID]++
	}
	return out
}

// Samples returns a deep copy of the samples in insertion order.
func (s *Store) Samples() []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Sample, len(s.samples))
	for i, smp := range s.samples {
		out[i] = smp.clone()
	}
	return out
}

// Save persists the whole store as a new set and returns its id.
func (s *Store) Save(ctx context.Context, p Persister) (string, error) {
	now := s.clock.Now()
	set := &Set{
		ID:          uuid.NewString(),
		CreatedAt:   now,
		Description: now.Format("2006-01-02_15-04-05") + " EMG training data",
		NumChannels: s.numChannels,
		Samples:     s.Samples(),
	}
	if err := p.SaveTrainingSet(ctx, set); err != nil {
		return "", fmt.Errorf("save training set: %w", err)
	}
	logs.Opsf("saved training set %s (%d samples)", set.ID, len(set.Samples))
	return set.ID, nil
}

// Load replaces the store contents with the latest persisted set. On any
// error the store is left empty.
func (s *Store) Load(ctx context.Context, p Persister) error {
	s.Reset()
	set, err := p.LoadLatestTrainingSet(ctx)
	if err != nil {
		return fmt.Errorf("load training set: %w", err)
	}
	if err := s.validate(set); err != nil {
		logs.Opsf("rejecting training set %s: %v", set.ID, err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = make([]Sample, len(set.Samples))
	for i, smp := range set.Samples {
		s.samples[i] = smp.clone()
	}
	if len(s.samples) > 0 {
		s.numFeatures = len(s.samples[0].Features)
	}
	logs.Diagf("loaded training set %s (%d samples, %d features)", set.ID, len(s.samples), s.numFeatures)
	return nil
}

func (s *Store) validate(set *Set) error {
	if set == nil {
		return fmt.Errorf("%w: nil set", ErrMalformed)
	}
	width := -1
	for i, smp := range set.Samples {
		if smp.ClassID < 0 || smp.ClassID >= len(s.classNames) {
			return fmt.Errorf("%w: sample %d class id %d outside catalog", ErrMalformed, i, smp.ClassID)
		}
		if smp.ClassName != s.classNames[smp.ClassID] {
			return fmt.Errorf("%w: sample %d class %q does not match catalog %q",
				ErrMalformed, i, smp.ClassName, s.classNames[smp.ClassID])
		}
		if len(smp.Features) == 0 || (width >= 0 && len(smp.Features) != width) {
			return fmt.Errorf("%w: sample %d has %d features", ErrMalformed, i, len(smp.Features))
		}
		width = len(smp.Features)
		if !Finite(smp.Features) {
			return fmt.Errorf("%w: sample %d has non-finite feature", ErrMalformed, i)
		}
	}
	return nil
}
