// Package signal defines the EMG sample window, the signal source contract and
// the transport adapters that fill a source's rolling buffer.
package signal

// Window is N samples by C channels in chronological order (oldest first).
// Samples[i][c] is channel c of sample i. A Window returned from a source is
// an owned copy.
type Window struct {
	Samples [][]float64
}

// NewWindow allocates a zeroed window of n samples by c channels.
func NewWindow(n, c int) Window {
	rows := make([][]float64, n)
	flat := make([]float64, n*c)
	for i := range rows {
		rows[i] = flat[i*c : (i+1)*c : (i+1)*c]
	}
	return Window{Samples: rows}
}

// Len returns the number of samples.
func (w Window) Len() int { return len(w.Samples) }

// Channels returns the channel count, 0 for an empty window.
func (w Window) Channels() int {
	if len(w.Samples) == 0 {
		return 0
	}
	return len(w.Samples[0])
}

// Channel copies the samples of channel c into dst (reallocating when too
// small) and returns it.
func (w Window) Channel(c int, dst []float64) []float64 {
	if cap(dst) < len(w.Samples) {
		dst = make([]float64, len(w.Samples))
	}
	dst = dst[:len(w.Samples)]
	for i, row := range w.Samples {
		dst[i] = row[c]
	}
	return dst
}

// Clone returns a deep copy.
func (w Window) Clone() Window {
	out := NewWindow(w.Len(), w.Channels())
	for i, row := range w.Samples {
		copy(out.Samples[i], row)
	}
	return out
}

// IMU is the optional inertial sample attached to a source.
type IMU struct {
	Quat  [4]float64 // w, x, y, z
	Accel [3]float64 // g
	Gyro  [3]float64 // deg/s
}

// Vector flattens the IMU into quat, accel, gyro order.
func (m IMU) Vector() []float64 {
	out := make([]float64, 0, 10)
	out = append(out, m.Quat[:]...)
	out = append(out, m.Accel[:]...)
	out = append(out, m.Gyro[:]...)
	return out
}
