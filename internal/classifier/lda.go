// Package classifier fits a linear discriminant analysis model over the
// training store and maps feature vectors to class ids.
package classifier

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/limbcontrol/internal/monitoring"
	"github.com/banshee-data/limbcontrol/internal/training"
)

var logs = monitoring.NewStreams("classifier")

// SetLogWriters configures the classifier log streams.
func SetLogWriters(w monitoring.LogWriters) { logs.SetLogWriters(w) }

var (
	// ErrNoSamples is returned by Fit on an empty store.
	ErrNoSamples = errors.New("no training samples")
	// ErrTooFewClasses is returned by Fit when fewer than two classes have data.
	ErrTooFewClasses = errors.New("need samples from at least two classes")
	// ErrSingular is returned when the pooled covariance cannot be inverted.
	ErrSingular = errors.New("pooled covariance is singular")
)

// Status describes the outcome of a Predict call.
type Status int

const (
	// NoData means the feature vector was all zero.
	NoData Status = iota
	// Untrained means there is no fitted model.
	Untrained
	// Error means the model rejected the input.
	Error
	// Running means a class was predicted.
	Running
)

var statusNames = [...]string{"NO DATA", "UNTRAINED", "ERROR", "RUNNING"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// StatusNames lists every status string, for metrics labels.
func StatusNames() []string {
	return append([]string(nil), statusNames[:]...)
}

// ridge is added to the pooled covariance diagonal, relative to its mean
// variance, so constant features do not make it singular.
const ridge = 1e-6

// Model is an immutable fitted LDA model. Discriminant scores are
// coef_k·x + intercept_k; the class with the highest score wins.
type Model struct {
	classes   []int      // class id per discriminant column
	coef      *mat.Dense // d x K
	intercept *mat.VecDense
	dim       int
}

// Classes returns the class ids the model can emit.
func (m *Model) Classes() []int { return append([]int(nil), m.classes...) }

// Dim returns the expected feature vector length.
func (m *Model) Dim() int { return m.dim }

// Fit trains an LDA model on samples using the pooled within-class covariance
// and class priors from sample counts.
func Fit(samples []training.Sample) (*Model, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	d := len(samples[0].Features)
	byClass := make(map[int][]int)
	for i, s := range samples {
		if len(s.Features) != d {
			return nil, fmt.Errorf("%w: sample %d has %d features, want %d",
				training.ErrFeatureLength, i, len(s.Features), d)
		}
		byClass[s.ClassID] = append(byClass[s.ClassID], i)
	}
	if len(byClass) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewClasses, len(byClass))
	}
	classes := make([]int, 0, len(byClass))
	for id := range byClass {
		classes = append(classes, id)
	}
	sort.Ints(classes)

	n, k := len(samples), len(classes)
	means := mat.NewDense(d, k, nil)
	scatter := mat.NewSymDense(d, nil)
	centered := mat.NewVecDense(d, nil)
	for col, id := range classes {
		idx := byClass[id]
		mu := make([]float64, d)
		for _, i := range idx {
			for j, v := range samples[i].Features {
				mu[j] += v
			}
		}
		for j := range mu {
			mu[j] /= float64(len(idx))
		}
		means.SetCol(col, mu)
		for _, i := range idx {
			for j, v := range samples[i].Features {
				centered.SetVec(j, v-mu[j])
			}
			scatter.SymRankOne(scatter, 1, centered)
		}
	}

	dof := float64(n - k)
	if dof <= 0 {
		dof = float64(n)
	}
	cov := mat.NewSymDense(d, nil)
	cov.ScaleSym(1/dof, scatter)
	var trace float64
	for j := 0; j < d; j++ {
		trace += cov.At(j, j)
	}
	lambda := ridge*trace/float64(d) + 1e-12
	for j := 0; j < d; j++ {
		cov.SetSym(j, j, cov.At(j, j)+lambda)
	}

	coef := mat.NewDense(d, k, nil)
	var chol mat.Cholesky
	if ok := chol.Factorize(cov); ok {
		if err := chol.SolveTo(coef, means); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSingular, err)
		}
	} else if err := coef.Solve(cov, means); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	intercept := mat.NewVecDense(k, nil)
	for col, id := range classes {
		prior := float64(len(byClass[id])) / float64(n)
		quad := mat.Dot(means.ColView(col), coef.ColView(col))
		intercept.SetVec(col, -0.5*quad+math.Log(prior))
	}

	logs.Diagf("fit LDA: %d samples, %d classes, %d features, ridge %.3g", n, k, d, lambda)
	return &Model{classes: classes, coef: coef, intercept: intercept, dim: d}, nil
}

// Predict returns the highest scoring class for x.
func (m *Model) Predict(x []float64) (int, error) {
	if len(x) != m.dim {
		return 0, fmt.Errorf("%w: got %d features, model expects %d", training.ErrFeatureLength, len(x), m.dim)
	}
	if !training.Finite(x) {
		return 0, training.ErrNonFinite
	}
	scores := mat.NewVecDense(len(m.classes), nil)
	scores.MulVec(m.coef.T(), mat.NewVecDense(len(x), append([]float64(nil), x...)))
	scores.AddVec(scores, m.intercept)

	best := 0
	for i := 1; i < scores.Len(); i++ {
		if scores.AtVec(i) > scores.AtVec(best) {
			best = i
		}
	}
	return m.classes[best], nil
}

// Classifier owns the current model and swaps it wholesale on each Fit.
type Classifier struct {
	mu    sync.RWMutex
	model *Model
}

// New returns an untrained classifier.
func New() *Classifier { return &Classifier{} }

// Fit retrains from the store. On failure the classifier becomes untrained,
// so stale decisions never outlive the data they were fit on.
func (c *Classifier) Fit(store *training.Store) error {
	model, err := Fit(store.Samples())
	c.mu.Lock()
	c.model = model
	c.mu.Unlock()
	if err != nil {
		logs.Opsf("classifier untrained: %v", err)
		return err
	}
	return nil
}

// Trained reports whether a model is present.
func (c *Classifier) Trained() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model != nil
}

// Model returns the current model, nil when untrained.
func (c *Classifier) Model() *Model {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

// Predict classifies x. ok is false whenever status is not Running.
func (c *Classifier) Predict(x []float64) (id int, status Status, ok bool) {
	if allZero(x) {
		return 0, NoData, false
	}
	m := c.Model()
	if m == nil {
		return 0, Untrained, false
	}
	id, err := m.Predict(x)
	if err != nil {
		logs.Opsf("predict: %v", err)
		return 0, Error, false
	}
	return id, Running, true
}

func allZero(x []float64) bool {
	for _, v := range x {
		if v != 0 {
			return false
		}
	}
	return true
}
