package features

import (
	"fmt"

	"github.com/banshee-data/limbcontrol/internal/signal"
)

// Extractor computes the feature vector for one or more signal sources. The
// attached features are fixed at construction. Output is ordered by source,
// then channel, then feature.
type Extractor struct {
	features []Feature
	shifts   map[int]int
}

// NewExtractor attaches fs in order.
func NewExtractor(fs ...Feature) *Extractor {
	return &Extractor{features: append([]Feature(nil), fs...), shifts: make(map[int]int)}
}

// Features returns the attached features in attachment order.
func (e *Extractor) Features() []Feature {
	return append([]Feature(nil), e.features...)
}

// Names returns the attached feature names in attachment order.
func (e *Extractor) Names() []string {
	out := make([]string, len(e.features))
	for i, f := range e.features {
		out[i] = f.Name()
	}
	return out
}

// SetOrientation sets the circular channel shift applied to source index src
// before its features are computed. Channel c of the raw window becomes
// channel (c+shift) mod C.
func (e *Extractor) SetOrientation(src, shift int) {
	if shift == 0 {
		delete(e.shifts, src)
		return
	}
	e.shifts[src] = shift
}

// VectorLen returns the feature vector length for the given channel counts.
func (e *Extractor) VectorLen(channels ...int) int {
	total := 0
	for _, c := range channels {
		total += c
	}
	return total * len(e.features)
}

// Extract computes every attached feature for every channel of w, channel
// major. src selects the orientation shift.
func (e *Extractor) Extract(src int, w signal.Window) []float64 {
	return e.appendWindow(nil, src, w)
}

// Vector concatenates Extract over windows in source order.
func (e *Extractor) Vector(windows ...signal.Window) []float64 {
	channels := make([]int, len(windows))
	for i, w := range windows {
		channels[i] = w.Channels()
	}
	out := make([]float64, 0, e.VectorLen(channels...))
	for i, w := range windows {
		out = e.appendWindow(out, i, w)
	}
	return out
}

func (e *Extractor) appendWindow(out []float64, src int, w signal.Window) []float64 {
	c := w.Channels()
	if c == 0 {
		return out
	}
	shift := e.shifts[src] % c
	if shift < 0 {
		shift += c
	}
	var col []float64
	for ch := 0; ch < c; ch++ {
		// Output channel ch holds raw channel ch-shift.
		raw := (ch - shift + c) % c
		col = w.Channel(raw, col)
		for _, f := range e.features {
			out = append(out, f.Compute(col))
		}
	}
	return out
}

func (e *Extractor) String() string {
	return fmt.Sprintf("Extractor%v", e.Names())
}
