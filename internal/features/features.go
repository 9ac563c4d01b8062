// Package features implements the per-channel EMG time-domain feature catalog
// and the extractor that assembles a feature vector from one or more windows.
//
// Every feature is a pure function of one channel's samples and the
// parameters fixed at construction. None of them return NaN: degenerate
// windows (empty, single-sample, all-zero) fall back to 0.
package features

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrUnknownFeature is returned by New for a name outside the catalog.
var ErrUnknownFeature = errors.New("unknown feature")

// Feature maps one channel's samples to a scalar.
type Feature interface {
	Name() string
	Compute(x []float64) float64
}

// Params are the shared parameters used when constructing features by name.
type Params struct {
	SampleRate    float64 // Hz
	ZCThreshold   float64
	SSCThreshold  float64
	WAMPThreshold float64
}

// DefaultParams mirror the configuration defaults.
func DefaultParams() Params {
	return Params{SampleRate: 200, ZCThreshold: 0.05, SSCThreshold: 0.05, WAMPThreshold: 0.05}
}

var catalog = map[string]func(p Params) Feature{
	"MAV":               func(Params) Feature { return MAV{} },
	"CurveLength":       func(p Params) Feature { return CurveLength{SampleRate: p.SampleRate} },
	"ZeroCrossing":      func(p Params) Feature { return ZeroCrossing{SampleRate: p.SampleRate, Threshold: p.ZCThreshold} },
	"SlopeSignChange":   func(p Params) Feature { return SlopeSignChange{SampleRate: p.SampleRate, Threshold: p.SSCThreshold} },
	"WillisonAmplitude": func(p Params) Feature { return WillisonAmplitude{SampleRate: p.SampleRate, Threshold: p.WAMPThreshold} },
	"Variance":          func(Params) Feature { return Variance{} },
	"VOrder":            func(Params) Feature { return VOrder{} },
	"LogDetect":         func(Params) Feature { return LogDetect{} },
	"HistogramRange":    func(Params) Feature { return HistogramRange{} },
	"AR1":               func(Params) Feature { return AR1{} },
	"Cepstral1":         func(Params) Feature { return Cepstral1{} },
}

// Names lists the catalog in sorted order.
func Names() []string {
	out := make([]string, 0, len(catalog))
	for name := range catalog {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// New builds the named feature with p.
func New(name string, p Params) (Feature, error) {
	ctor, ok := catalog[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFeature, name)
	}
	return ctor(p), nil
}

// NewSet builds features by name, preserving order.
func NewSet(names []string, p Params) ([]Feature, error) {
	out := make([]Feature, 0, len(names))
	for _, name := range names {
		f, err := New(name, p)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// rate converts a count over n samples into a per-second rate.
func rate(count int, fs float64, n int) float64 {
	return float64(count) * fs / float64(n)
}

// MAV is the mean absolute value.
type MAV struct{}

func (MAV) Name() string { return "MAV" }

func (MAV) Compute(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return floats.Norm(x, 1) / float64(len(x))
}

// CurveLength is the summed absolute first difference scaled by fs/n.
type CurveLength struct {
	SampleRate float64
}

func (CurveLength) Name() string { return "CurveLength" }

func (f CurveLength) Compute(x []float64) float64 {
	n := len(x)
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i+1 < n; i++ {
		sum += math.Abs(x[i+1] - x[i])
	}
	return sum * f.SampleRate / float64(n)
}

// ZeroCrossing counts strict sign changes whose step exceeds Threshold.
type ZeroCrossing struct {
	SampleRate float64
	Threshold  float64
}

func (ZeroCrossing) Name() string { return "ZeroCrossing" }

func (f ZeroCrossing) Compute(x []float64) float64 {
	n := len(x)
	if n == 0 {
		return 0
	}
	count := 0
	for i := 0; i+1 < n; i++ {
		a, b := x[i], x[i+1]
		crossed := (a > 0 && b < 0) || (a < 0 && b > 0)
		if crossed && math.Abs(a-b) > f.Threshold {
			count++
		}
	}
	return rate(count, f.SampleRate, n)
}

// SlopeSignChange counts strict local extrema where either neighbouring step
// exceeds Threshold.
type SlopeSignChange struct {
	SampleRate float64
	Threshold  float64
}

func (SlopeSignChange) Name() string { return "SlopeSignChange" }

func (f SlopeSignChange) Compute(x []float64) float64 {
	n := len(x)
	if n == 0 {
		return 0
	}
	count := 0
	for i := 1; i+1 < n; i++ {
		prev, cur, next := x[i-1], x[i], x[i+1]
		extremum := (cur > prev && cur > next) || (cur < prev && cur < next)
		if extremum && (math.Abs(cur-next) > f.Threshold || math.Abs(cur-prev) > f.Threshold) {
			count++
		}
	}
	return rate(count, f.SampleRate, n)
}

// WillisonAmplitude counts adjacent steps larger than Threshold.
type WillisonAmplitude struct {
	SampleRate float64
	Threshold  float64
}

func (WillisonAmplitude) Name() string { return "WillisonAmplitude" }

func (f WillisonAmplitude) Compute(x []float64) float64 {
	n := len(x)
	if n == 0 {
		return 0
	}
	count := 0
	for i := 0; i+1 < n; i++ {
		if math.Abs(x[i]-x[i+1]) > f.Threshold {
			count++
		}
	}
	return rate(count, f.SampleRate, n)
}

// Variance is the zero-mean signal power Σx²/(n-1).
type Variance struct{}

func (Variance) Name() string { return "Variance" }

func (Variance) Compute(x []float64) float64 {
	n := len(x)
	if n < 2 {
		return 0
	}
	return floats.Dot(x, x) / float64(n-1)
}

// VOrder is the square root of Variance.
type VOrder struct{}

func (VOrder) Name() string { return "VOrder" }

func (VOrder) Compute(x []float64) float64 {
	return math.Sqrt(Variance{}.Compute(x))
}

// LogDetect is exp(mean(log|x|)), the geometric mean of |x|.
type LogDetect struct{}

func (LogDetect) Name() string { return "LogDetect" }

func (LogDetect) Compute(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	logs := make([]float64, len(x))
	for i, v := range x {
		if v == 0 {
			return 0
		}
		logs[i] = math.Log(math.Abs(v))
	}
	return math.Exp(stat.Mean(logs, nil))
}

// HistogramRange is max(x) - min(x).
type HistogramRange struct{}

func (HistogramRange) Name() string { return "HistogramRange" }

func (HistogramRange) Compute(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return floats.Max(x) - floats.Min(x)
}

// AR1 is the order-1 Yule-Walker coefficient a1 = -r1/r0 over the biased
// autocorrelation, for the model x[t] + a1*x[t-1] = e[t].
type AR1 struct{}

func (AR1) Name() string { return "AR1" }

func (AR1) Compute(x []float64) float64 {
	return ar1(x)
}

// Cepstral1 is the first cepstral coefficient, -a1 for an order-1 model.
type Cepstral1 struct{}

func (Cepstral1) Name() string { return "Cepstral1" }

func (Cepstral1) Compute(x []float64) float64 {
	if a := ar1(x); a != 0 {
		return -a
	}
	return 0
}

func ar1(x []float64) float64 {
	n := len(x)
	if n < 2 {
		return 0
	}
	// The 1/n normalization cancels in the ratio.
	r0 := floats.Dot(x, x)
	if r0 == 0 {
		return 0
	}
	r1 := floats.Dot(x[1:], x[:n-1])
	return -r1 / r0
}
