package serialmux

import (
	"context"
	"net/http"
	"sync"

	"github.com/banshee-data/limbcontrol/internal/httputil"
)

// DisabledSerialMux satisfies SerialMuxInterface when EMG comes from UDP,
// replay or simulation. Subscribers get a channel that never carries a line
// and is closed on Unsubscribe or Close.
type DisabledSerialMux struct {
	Reason string

	mu     sync.Mutex
	subs   map[string]chan string
	closed bool
}

// NewDisabledSerialMux returns a stub whose debug route reports reason.
func NewDisabledSerialMux(reason string) *DisabledSerialMux {
	if reason == "" {
		reason = "no serial EMG source configured"
	}
	return &DisabledSerialMux{Reason: reason, subs: map[string]chan string{}}
}

func (d *DisabledSerialMux) Subscribe() (string, chan string) {
	id, ch := randomID(), make(chan string)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		close(ch)
	} else {
		d.subs[id] = ch
	}
	return id, ch
}

func (d *DisabledSerialMux) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drop(id)
}

func (d *DisabledSerialMux) drop(id string) {
	if ch, ok := d.subs[id]; ok {
		delete(d.subs, id)
		close(ch)
	}
}

func (d *DisabledSerialMux) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for id := range d.subs {
		d.drop(id)
	}
	return nil
}

func (*DisabledSerialMux) SendCommand(string) error          { return nil }
func (*DisabledSerialMux) Initialise(BoardSettings) error    { return nil }
func (*DisabledSerialMux) Monitor(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/serial-disabled", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSONOK(w, map[string]any{"enabled": false, "reason": d.Reason})
	})
}
