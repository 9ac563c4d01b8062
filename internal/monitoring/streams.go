package monitoring

import (
	"io"
	"log"
	"sync"
)

// LogWriters holds the io.Writers for each logging stream.
type LogWriters struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer
}

// Streams is the ops/diag/trace logger trio owned by one package.
//
//   - ops: actionable warnings, errors, lifecycle events
//   - diag: training and tuning diagnostics
//   - trace: per-tick and per-packet telemetry
//
// A stream whose writer is nil is disabled.
type Streams struct {
	prefix string

	mu    sync.RWMutex
	ops   *log.Logger
	diag  *log.Logger
	trace *log.Logger
}

var (
	registryMu sync.Mutex
	registry   []*Streams
)

// NewStreams creates a disabled stream set tagged "[name] " and registers it
// so SetLogWriters can configure every package at once.
func NewStreams(name string) *Streams {
	s := &Streams{prefix: "[" + name + "] "}
	registryMu.Lock()
	registry = append(registry, s)
	registryMu.Unlock()
	return s
}

// SetLogWriters configures all registered stream sets.
func SetLogWriters(w LogWriters) {
	registryMu.Lock()
	all := append([]*Streams(nil), registry...)
	registryMu.Unlock()
	for _, s := range all {
		s.SetLogWriters(w)
	}
}

// SetLogWriters configures all three logging streams at once.
// Pass nil for any writer to disable that stream.
func (s *Streams) SetLogWriters(w LogWriters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = newLogger(s.prefix, w.Ops)
	s.diag = newLogger(s.prefix, w.Diag)
	s.trace = newLogger(s.prefix, w.Trace)
}

func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

// Opsf logs to the ops stream.
func (s *Streams) Opsf(format string, args ...interface{}) {
	s.mu.RLock()
	l := s.ops
	s.mu.RUnlock()
	if l != nil {
		l.Printf(format, args...)
	}
}

// Diagf logs to the diag stream.
func (s *Streams) Diagf(format string, args ...interface{}) {
	s.mu.RLock()
	l := s.diag
	s.mu.RUnlock()
	if l != nil {
		l.Printf(format, args...)
	}
}

// Tracef logs to the trace stream.
func (s *Streams) Tracef(format string, args ...interface{}) {
	s.mu.RLock()
	l := s.trace
	s.mu.RUnlock()
	if l != nil {
		l.Printf(format, args...)
	}
}
