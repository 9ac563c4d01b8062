package serialmux

import (
	"bytes"
	"errors"
	"sync"
)

var errPortClosed = errors.New("serial port closed")

// TestablePort is an in-memory SerialPorter. Reads block until data is added
// or the port is closed; writes are captured.
type TestablePort struct {
	mu     sync.Mutex
	cond   *sync.Cond
	read   bytes.Buffer
	write  bytes.Buffer
	closed bool

	// WriteError is returned by the next Write when set.
	WriteError error
	// CloseError is returned by Close when set.
	CloseError error
}

func NewTestablePort() *TestablePort {
	p := &TestablePort{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *TestablePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.closed && p.read.Len() == 0 {
		p.cond.Wait()
	}
	if p.read.Len() == 0 {
		return 0, errPortClosed
	}
	return p.read.Read(b)
}

func (p *TestablePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errPortClosed
	}
	if err := p.WriteError; err != nil {
		p.WriteError = nil
		return 0, err
	}
	return p.write.Write(b)
}

func (p *TestablePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
	return p.CloseError
}

// Feed makes data available to readers.
func (p *TestablePort) Feed(data string) {
	p.mu.Lock()
	p.read.WriteString(data)
	p.mu.Unlock()
	p.cond.Broadcast()
}

// Written returns everything written so far.
func (p *TestablePort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.write.String()
}
