package signal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/limbcontrol/internal/serialmux"
)

// SerialSourceConfig configures a SerialSource.
type SerialSourceConfig struct {
	Path     string
	Options  serialmux.PortOptions
	Channels int
	Samples  int
	// Scale multiplies every parsed value; 1 when zero.
	Scale float64
	// SampleRate is sent to the board on connect when positive.
	SampleRate int
	// Open defaults to serialmux.OpenRealPort.
	Open serialmux.PortOpener
}

// SerialSource reads ASCII EMG samples, one comma separated line per sample,
// from an acquisition board through a serialmux.
type SerialSource struct {
	cfg SerialSourceConfig
	buf *RollingBuffer

	mu     sync.Mutex
	mux    *serialmux.SerialMux[serialmux.SerialPorter]
	cancel context.CancelFunc
	done   chan struct{}

	malformed atomic.Uint64
}

func NewSerialSource(cfg SerialSourceConfig) *SerialSource {
	if cfg.Open == nil {
		cfg.Open = serialmux.OpenRealPort
	}
	if cfg.Scale == 0 {
		cfg.Scale = 1
	}
	return &SerialSource{cfg: cfg, buf: NewRollingBuffer(cfg.Samples, cfg.Channels)}
}

// Mux exposes the multiplexer for admin routes; nil before Connect.
func (s *SerialSource) Mux() serialmux.SerialMuxInterface {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mux == nil {
		return nil
	}
	return s.mux
}

// Connect opens the port, configures the board and starts reading.
func (s *SerialSource) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mux != nil {
		return errors.New("serial source already connected")
	}
	port, err := s.cfg.Open(s.cfg.Path, s.cfg.Options)
	if err != nil {
		return fmt.Errorf("open serial port %s: %w", s.cfg.Path, err)
	}
	mux := serialmux.NewSerialMux(port)
	_, lines := mux.Subscribe()

	ctx, cancel := context.WithCancel(ctx)
	s.mux, s.cancel, s.done = mux, cancel, make(chan struct{})

	go func() {
		if err := mux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logs.Opsf("serial monitor %s stopped: %v", s.cfg.Path, err)
		}
	}()
	go s.consume(lines, s.done)

	if err := mux.Initialise(serialmux.BoardSettings{SampleRate: s.cfg.SampleRate, Channels: s.cfg.Channels}); err != nil {
		logs.Opsf("Warning: %v", err)
	}
	logs.Opsf("serial source reading %s (%d channels)", s.cfg.Path, s.cfg.Channels)
	return nil
}

func (s *SerialSource) consume(lines <-chan string, done chan struct{}) {
	defer close(done)
	sample := make([]float64, 0, s.cfg.Channels)
	for line := range lines {
		switch serialmux.ClassifyLine(line) {
		case serialmux.LineSample:
			var err error
			sample, err = serialmux.ParseSample(line, sample)
			if err != nil || !s.push(sample) {
				s.malformed.Add(1)
				logs.Tracef("malformed sample line %q: %v", line, err)
			}
		case serialmux.LineStatus:
			logs.Diagf("board: %s", line)
		case serialmux.LineUnknown:
			s.malformed.Add(1)
		}
	}
}

func (s *SerialSource) push(sample []float64) bool {
	for i := range sample {
		sample[i] *= s.cfg.Scale
	}
	return s.buf.Push(sample)
}

func (s *SerialSource) Snapshot() Window  { return s.buf.Snapshot() }
func (s *SerialSource) IMU() (IMU, bool)  { return s.buf.IMU() }
func (s *SerialSource) ChannelCount() int { return s.cfg.Channels }

// Malformed counts lines that could not be used as samples.
func (s *SerialSource) Malformed() uint64 { return s.malformed.Load() }

// Close stops streaming and closes the port.
func (s *SerialSource) Close() error {
	s.mu.Lock()
	mux, cancel, done := s.mux, s.cancel, s.done
	s.mux = nil
	s.mu.Unlock()
	if mux == nil {
		return nil
	}
	_ = mux.SendCommand("STOP")
	cancel()
	err := mux.Close()
	<-done
	return err
}
