package signal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// DefaultMyoScale converts raw int8 Myo counts to the feature input range.
const DefaultMyoScale = 0.01

// DefaultMyoAddress is where MyoUdp.exe streams the first armband.
const DefaultMyoAddress = "127.0.0.1:10001"

// UDPSocket is the subset of *net.UDPConn used by UDPSource.
type UDPSocket interface {
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)
	SetReadBuffer(bytes int) error
	SetReadDeadline(t time.Time) error
	Close() error
	LocalAddr() net.Addr
}

// UDPSocketFactory creates sockets; tests substitute a mock.
type UDPSocketFactory interface {
	ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error)
}

// RealUDPSocketFactory implements UDPSocketFactory using net.ListenUDP.
type RealUDPSocketFactory struct{}

func (RealUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// UDPSourceConfig configures a UDPSource.
type UDPSourceConfig struct {
	Address string // host:port, e.g. "127.0.0.1:10001"
	RcvBuf  int
	Samples int     // window length N
	Scale   float64 // EMG count scale, DefaultMyoScale when zero
	Factory UDPSocketFactory
	// ReadTimeout bounds each read so cancellation is observed.
	ReadTimeout time.Duration
}

// UDPSource receives Myo armband datagrams (MyoUdp.exe or the BLE bridge)
// into a rolling buffer.
type UDPSource struct {
	cfg    UDPSourceConfig
	buf    *RollingBuffer
	feeder myoFeeder

	mu     sync.Mutex
	sock   UDPSocket
	cancel context.CancelFunc
	done   chan struct{}
}

// NewUDPSource applies defaults to cfg and allocates the window.
func NewUDPSource(cfg UDPSourceConfig) *UDPSource {
	if cfg.Factory == nil {
		cfg.Factory = RealUDPSocketFactory{}
	}
	if cfg.Scale == 0 {
		cfg.Scale = DefaultMyoScale
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 100 * time.Millisecond
	}
	buf := NewRollingBuffer(cfg.Samples, MyoChannels)
	return &UDPSource{
		cfg:    cfg,
		buf:    buf,
		feeder: myoFeeder{buf: buf, scale: cfg.Scale, name: "udp " + cfg.Address},
	}
}

// Connect binds the socket and starts the reader goroutine.
func (s *UDPSource) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sock != nil {
		return errors.New("udp source already connected")
	}
	addr, err := net.ResolveUDPAddr("udp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	sock, err := s.cfg.Factory.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	if s.cfg.RcvBuf > 0 {
		if err := sock.SetReadBuffer(s.cfg.RcvBuf); err != nil {
			logs.Opsf("Warning: failed to set UDP receive buffer size to %d: %v", s.cfg.RcvBuf, err)
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	s.sock, s.cancel, s.done = sock, cancel, make(chan struct{})
	logs.Opsf("UDP source listening on %s", sock.LocalAddr())
	go s.run(ctx, sock, s.done)
	return nil
}

func (s *UDPSource) run(ctx context.Context, sock UDPSocket, done chan struct{}) {
	defer close(done)
	packet := make([]byte, 2048)
	for {
		select {
		case <-ctx.Done():
			logs.Diagf("UDP source %s stopping", s.cfg.Address)
			return
		default:
		}
		_ = sock.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		n, addr, err := sock.ReadFromUDP(packet)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			logs.Opsf("UDP read error: %v", err)
			continue
		}
		if err := s.feeder.handle(packet[:n]); err != nil {
			logs.Tracef("dropping packet from %v: %v", addr, err)
		}
	}
}

func (s *UDPSource) Snapshot() Window  { return s.buf.Snapshot() }
func (s *UDPSource) IMU() (IMU, bool)  { return s.buf.IMU() }
func (s *UDPSource) ChannelCount() int { return MyoChannels }

// Battery returns the last reported battery level, -1 when unknown.
func (s *UDPSource) Battery() int { return s.feeder.battery() }

// Close stops the reader and releases the socket. Safe to call repeatedly.
func (s *UDPSource) Close() error {
	s.mu.Lock()
	sock, cancel, done := s.sock, s.cancel, s.done
	s.sock, s.cancel = nil, nil
	s.mu.Unlock()
	if sock == nil {
		return nil
	}
	cancel()
	err := sock.Close()
	<-done
	return err
}

// myoFeeder pushes decoded Myo packets into a rolling buffer.
type myoFeeder struct {
	buf   *RollingBuffer
	scale float64
	name  string

	mu   sync.Mutex
	batt int
	seen bool
}

func (f *myoFeeder) handle(data []byte) error {
	p, err := DecodeMyo(data)
	if err != nil {
		return err
	}
	for _, s := range p.Samples(f.scale) {
		f.buf.Push(s)
	}
	if p.HasIMU {
		f.buf.SetIMU(p.IMU)
	}
	if p.HasBatt {
		f.mu.Lock()
		f.batt, f.seen = p.Battery, true
		f.mu.Unlock()
		logs.Diagf("%s battery %d%%", f.name, p.Battery)
	}
	return nil
}

func (f *myoFeeder) battery() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.seen {
		return -1
	}
	return f.batt
}
