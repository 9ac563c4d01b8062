package signal

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/banshee-data/limbcontrol/internal/timeutil"
)

// SimConfig configures a SimulatedSource.
type SimConfig struct {
	Channels   int
	Samples    int
	SampleRate float64 // Hz
	// Period is the generator wakeup interval; 10ms when zero.
	Period time.Duration
	// Noise is the standard deviation of the additive Gaussian noise.
	Noise float64
	// Amplitude scales a fully active channel.
	Amplitude float64
	Seed      uint64
	Clock     timeutil.Clock
}

// SimulatedSource synthesises EMG-like data: each channel carries a band
// limited carrier scaled by its activity level plus Gaussian noise. It is
// used for development without an armband.
type SimulatedSource struct {
	cfg SimConfig
	buf *RollingBuffer

	actMu    sync.RWMutex
	activity []float64
	rng      *rand.Rand

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	emitted uint64
	last    time.Time
}

func NewSimulatedSource(cfg SimConfig) *SimulatedSource {
	if cfg.Channels <= 0 {
		cfg.Channels = MyoChannels
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 200
	}
	if cfg.Period <= 0 {
		cfg.Period = 10 * time.Millisecond
	}
	if cfg.Amplitude == 0 {
		cfg.Amplitude = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &SimulatedSource{
		cfg:      cfg,
		buf:      NewRollingBuffer(cfg.Samples, cfg.Channels),
		activity: make([]float64, cfg.Channels),
		rng:      rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}
}

// SetActivity sets per-channel activation in [0,1]. Missing channels are set
// to zero and out of range values are clamped.
func (s *SimulatedSource) SetActivity(levels []float64) {
	s.actMu.Lock()
	defer s.actMu.Unlock()
	for c := range s.activity {
		v := 0.0
		if c < len(levels) {
			v = math.Max(0, math.Min(1, levels[c]))
		}
		s.activity[c] = v
	}
}

// PatternFor returns a repeatable activation pattern for a motion class id,
// so simulated sessions produce separable classes. Class 0 is rest.
func PatternFor(classID, channels int) []float64 {
	out := make([]float64, channels)
	if classID <= 0 || channels == 0 {
		return out
	}
	r := rand.New(rand.NewPCG(uint64(classID), uint64(channels)))
	for c := range out {
		out[c] = 0.2 + 0.8*r.Float64()
	}
	return out
}

func (s *SimulatedSource) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("simulated source already connected")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel, s.done = cancel, make(chan struct{})
	s.last = s.cfg.Clock.Now()
	ticker := s.cfg.Clock.NewTicker(s.cfg.Period)
	go s.run(ctx, ticker, s.done)
	logs.Opsf("simulated source: %d channels at %.0f Hz", s.cfg.Channels, s.cfg.SampleRate)
	return nil
}

func (s *SimulatedSource) run(ctx context.Context, ticker timeutil.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			s.generate(now)
		}
	}
}

// generate emits every sample due between the previous call and now.
func (s *SimulatedSource) generate(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	elapsed := now.Sub(s.last).Seconds()
	n := int(elapsed * s.cfg.SampleRate)
	if n <= 0 {
		return
	}
	s.last = s.last.Add(time.Duration(float64(n) / s.cfg.SampleRate * float64(time.Second)))

	s.actMu.RLock()
	defer s.actMu.RUnlock()
	sample := make([]float64, s.cfg.Channels)
	for i := 0; i < n; i++ {
		t := float64(s.emitted) / s.cfg.SampleRate
		for c := range sample {
			carrier := math.Sin(2*math.Pi*(40+7*float64(c))*t + float64(c))
			sample[c] = s.cfg.Amplitude*s.activity[c]*carrier + s.cfg.Noise*s.rng.NormFloat64()
		}
		s.buf.Push(sample)
		s.emitted++
	}
}

func (s *SimulatedSource) Snapshot() Window  { return s.buf.Snapshot() }
func (s *SimulatedSource) IMU() (IMU, bool)  { return IMU{}, false }
func (s *SimulatedSource) ChannelCount() int { return s.cfg.Channels }

// Emitted is the total number of generated samples.
func (s *SimulatedSource) Emitted() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emitted
}

func (s *SimulatedSource) Close() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}
