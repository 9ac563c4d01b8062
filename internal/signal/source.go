package signal

import (
	"context"
	"sync"

	"github.com/banshee-data/limbcontrol/internal/monitoring"
)

var logs = monitoring.NewStreams("signal")

// SetLogWriters configures the signal package log streams.
func SetLogWriters(w monitoring.LogWriters) { logs.SetLogWriters(w) }

// Source is a producer of EMG windows. Connect starts the reader goroutine,
// which owns the rolling buffer until Close. Snapshot never blocks on I/O.
type Source interface {
	Connect(ctx context.Context) error
	Snapshot() Window
	IMU() (IMU, bool)
	ChannelCount() int
	Close() error
}

// RollingBuffer keeps the most recent N samples of a C channel stream.
// Writers and readers may be on different goroutines.
type RollingBuffer struct {
	mu       sync.RWMutex
	data     Window
	next     int
	count    int
	imu      IMU
	hasIMU   bool
	received uint64
}

// NewRollingBuffer allocates a zeroed buffer of n samples by c channels.
func NewRollingBuffer(n, c int) *RollingBuffer {
	if n < 1 {
		n = 1
	}
	return &RollingBuffer{data: NewWindow(n, c)}
}

// Capacity returns N.
func (b *RollingBuffer) Capacity() int { return b.data.Len() }

// Channels returns C.
func (b *RollingBuffer) Channels() int { return b.data.Channels() }

// Push appends one sample, overwriting the oldest once full. Samples with the
// wrong channel count are dropped and reported false.
func (b *RollingBuffer) Push(sample []float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(sample) != b.data.Channels() {
		return false
	}
	copy(b.data.Samples[b.next], sample)
	b.next = (b.next + 1) % b.data.Len()
	if b.count < b.data.Len() {
		b.count++
	}
	b.received++
	return true
}

// Snapshot returns an owned copy in chronological order. Slots never written
// read as zero and sit at the oldest end.
func (b *RollingBuffer) Snapshot() Window {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := b.data.Len()
	out := NewWindow(n, b.data.Channels())
	for i := 0; i < n; i++ {
		copy(out.Samples[i], b.data.Samples[(b.next+i)%n])
	}
	return out
}

// Filled reports how many slots have been written, capped at N.
func (b *RollingBuffer) Filled() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Received is the total number of samples accepted.
func (b *RollingBuffer) Received() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.received
}

func (b *RollingBuffer) SetIMU(m IMU) {
	b.mu.Lock()
	b.imu, b.hasIMU = m, true
	b.mu.Unlock()
}

func (b *RollingBuffer) IMU() (IMU, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.imu, b.hasIMU
}

// Reset zeroes the samples and forgets the IMU.
func (b *RollingBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, row := range b.data.Samples {
		for i := range row {
			row[i] = 0
		}
	}
	b.next, b.count = 0, 0
	b.imu, b.hasIMU = IMU{}, false
}
