package sink

import (
	"sync"
)

// Recorder keeps every command in memory. It backs dry runs and tests.
type Recorder struct {
	mu     sync.Mutex
	frames [][]float64
	limit  int
	// Err, when set, is returned by SendJointAngles after recording.
	Err    error
	closed bool
}

// NewRecorder keeps at most limit frames, dropping the oldest; 0 is unbounded.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

func (r *Recorder) SendJointAngles(values []float64) error {
	full, err := Expand(values)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, full)
	if r.limit > 0 && len(r.frames) > r.limit {
		r.frames = r.frames[len(r.frames)-r.limit:]
	}
	return r.Err
}

// Frames returns a copy of the recorded commands, oldest first.
func (r *Recorder) Frames() [][]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]float64, len(r.frames))
	for i, f := range r.frames {
		out[i] = append([]float64(nil), f...)
	}
	return out
}

// Last returns the most recent command.
func (r *Recorder) Last() ([]float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return nil, false
	}
	return append([]float64(nil), r.frames[len(r.frames)-1]...), true
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
