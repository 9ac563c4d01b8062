package signal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// ReplayConfig configures a ReplaySource.
type ReplayConfig struct {
	Path string
	// Port keeps only UDP datagrams to or from this port; 0 keeps all.
	Port    int
	Samples int
	Scale   float64
	// SpeedMultiplier scales capture timing (2.0 replays twice as fast).
	SpeedMultiplier float64
	// Loop restarts from the first packet at end of file.
	Loop bool
}

// ReplaySource feeds a recorded capture of Myo UDP traffic through the same
// decoder as UDPSource, paced by the capture timestamps.
type ReplaySource struct {
	cfg    ReplayConfig
	buf    *RollingBuffer
	feeder myoFeeder

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
	packets int
}

func NewReplaySource(cfg ReplayConfig) *ReplaySource {
	if cfg.Scale == 0 {
		cfg.Scale = DefaultMyoScale
	}
	if cfg.SpeedMultiplier <= 0 {
		cfg.SpeedMultiplier = 1.0
	}
	buf := NewRollingBuffer(cfg.Samples, MyoChannels)
	return &ReplaySource{
		cfg:    cfg,
		buf:    buf,
		feeder: myoFeeder{buf: buf, scale: cfg.Scale, name: "replay " + cfg.Path},
	}
}

// Connect validates the capture header and starts replay in the background.
func (r *ReplaySource) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return errors.New("replay source already connected")
	}
	f, err := os.Open(r.cfg.Path)
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", r.cfg.Path, err)
	}
	if _, err := pcapgo.NewReader(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to read PCAP header %s: %w", r.cfg.Path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel, r.done = cancel, make(chan struct{})
	logs.Opsf("PCAP replay %s: port filter %d (speed: %.1fx, loop: %v)", r.cfg.Path, r.cfg.Port, r.cfg.SpeedMultiplier, r.cfg.Loop)
	go r.run(ctx, f, r.done)
	return nil
}

func (r *ReplaySource) run(ctx context.Context, f *os.File, done chan struct{}) {
	defer close(done)
	defer f.Close()
	for {
		err := r.replayOnce(ctx, f)
		if err != nil || !r.cfg.Loop {
			r.mu.Lock()
			r.err = err
			r.mu.Unlock()
			if err != nil && !errors.Is(err, context.Canceled) {
				logs.Opsf("PCAP replay stopped: %v", err)
			}
			return
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			r.mu.Lock()
			r.err = err
			r.mu.Unlock()
			return
		}
	}
}

func (r *ReplaySource) replayOnce(ctx context.Context, f io.Reader) error {
	reader, err := pcapgo.NewReader(f)
	if err != nil {
		return err
	}
	source := gopacket.NewPacketSource(reader, reader.LinkType())
	source.NoCopy = true

	var last time.Time
	count := 0
	for {
		packet, err := source.NextPacket()
		if err == io.EOF {
			logs.Diagf("PCAP replay pass complete: %d packets", count)
			return nil
		}
		if err != nil {
			// Truncated trailing records are common in live captures.
			if errors.Is(err, io.ErrUnexpectedEOF) {
				logs.Opsf("PCAP replay: truncated record after %d packets", count)
				return nil
			}
			return fmt.Errorf("read packet %d: %w", count+1, err)
		}

		ts := packet.Metadata().Timestamp
		if !last.IsZero() {
			delay := time.Duration(float64(ts.Sub(last)) / r.cfg.SpeedMultiplier)
			if delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				case <-timer.C:
				}
			}
		}
		last = ts
		if err := ctx.Err(); err != nil {
			return err
		}

		udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || len(udp.Payload) == 0 {
			continue
		}
		if r.cfg.Port != 0 && int(udp.DstPort) != r.cfg.Port && int(udp.SrcPort) != r.cfg.Port {
			continue
		}
		count++
		r.mu.Lock()
		r.packets++
		r.mu.Unlock()
		if err := r.feeder.handle(udp.Payload); err != nil {
			logs.Tracef("PCAP packet %d: %v", count, err)
		}
	}
}

// Done is closed when replay finishes or is stopped.
func (r *ReplaySource) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Err reports why replay stopped; nil at a clean end of file.
func (r *ReplaySource) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Packets is the number of matching UDP datagrams replayed.
func (r *ReplaySource) Packets() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.packets
}

func (r *ReplaySource) Snapshot() Window  { return r.buf.Snapshot() }
func (r *ReplaySource) IMU() (IMU, bool)  { return r.buf.IMU() }
func (r *ReplaySource) ChannelCount() int { return MyoChannels }

func (r *ReplaySource) Close() error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}
