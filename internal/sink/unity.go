package sink

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/limbcontrol/internal/monitoring"
)

// DefaultUnityAddress is where the vMPL Unity environment listens.
const DefaultUnityAddress = "127.0.0.1:25000"

// UnityConfig configures a UnityUDP sink.
type UnityConfig struct {
	Address     string
	QueueSize   int           // 64 when zero
	LogInterval time.Duration // drop summary interval, 10s when zero
	Metrics     *monitoring.Metrics
}

// UnityUDP streams 27 float32 joint angles per datagram to the virtual limb.
// SendJointAngles never blocks the control loop: commands are queued and a
// full queue drops the command.
type UnityUDP struct {
	conn    *net.UDPConn
	address string
	queue   chan []byte
	cfg     UnityConfig

	mu      sync.Mutex
	dropped int
	sent    int
	closed  bool
	done    chan struct{}
}

// NewUnityUDP dials the destination; call Start to begin sending.
func NewUnityUDP(cfg UnityConfig) (*UnityUDP, error) {
	if cfg.Address == "" {
		cfg.Address = DefaultUnityAddress
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.LogInterval <= 0 {
		cfg.LogInterval = 10 * time.Second
	}
	addr, err := net.ResolveUDPAddr("udp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve unity address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create unity connection: %w", err)
	}
	return &UnityUDP{
		conn:    conn,
		address: cfg.Address,
		queue:   make(chan []byte, cfg.QueueSize),
		cfg:     cfg,
		done:    make(chan struct{}),
	}, nil
}

// Start runs the writer goroutine until ctx is done or Close.
func (u *UnityUDP) Start(ctx context.Context) {
	go func() {
		defer close(u.done)
		writeErrors := 0
		var lastError error
		ticker := time.NewTicker(u.cfg.LogInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case packet, ok := <-u.queue:
				if !ok {
					return
				}
				if _, err := u.conn.Write(packet); err != nil {
					writeErrors++
					lastError = err
					u.cfg.Metrics.SinkError()
					continue
				}
				u.mu.Lock()
				u.sent++
				u.mu.Unlock()
			case <-ticker.C:
				u.mu.Lock()
				dropped := u.dropped
				u.dropped = 0
				u.mu.Unlock()
				if dropped > 0 || writeErrors > 0 {
					logs.Opsf("unity %s: dropped %d queued commands, %d write errors (latest: %v)", u.address, dropped, writeErrors, lastError)
					writeErrors, lastError = 0, nil
				}
			}
		}
	}()
	logs.Opsf("sending joint commands to unity at %s", u.address)
}

// SendJointAngles queues a 7 or 27 value command.
func (u *UnityUDP) SendJointAngles(values []float64) error {
	packet, err := EncodeFloat32(values)
	if err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return net.ErrClosed
	}
	select {
	case u.queue <- packet:
	default:
		u.dropped++
		u.cfg.Metrics.PacketsDropped("unity_sink", 1)
	}
	return nil
}

// Sent is the number of datagrams written.
func (u *UnityUDP) Sent() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.sent
}

// Close stops the writer and closes the socket. Queued commands that have
// not been written are discarded.
func (u *UnityUDP) Close() error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return nil
	}
	u.closed = true
	close(u.queue)
	u.mu.Unlock()
	logs.Opsf("closing unity sink %s", u.address)
	return u.conn.Close()
}
