package trainer

import (
	"context"
	"reflect"
	"time"

	"github.com/banshee-data/limbcontrol/internal/timeutil"
)

// Broadcaster is satisfied by Hub.
type Broadcaster interface {
	Broadcast(kind string, v any) error
}

// Publisher pushes a status snapshot to a Broadcaster at a bounded rate.
type Publisher struct {
	Clock  timeutil.Clock
	RateHz float64
	// Status returns the value to publish; it is called once per period.
	Status func() any
	Out    Broadcaster
	// OnlyChanges skips snapshots equal to the previous one, except for a
	// keepalive every KeepAlive (default 1s).
	OnlyChanges bool
	KeepAlive   time.Duration
}

// Run publishes until ctx is done.
func (p *Publisher) Run(ctx context.Context) error {
	clock := p.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	rate := p.RateHz
	if rate <= 0 {
		rate = 10
	}
	keepAlive := p.KeepAlive
	if keepAlive <= 0 {
		keepAlive = time.Second
	}
	ticker := clock.NewTicker(time.Duration(float64(time.Second) / rate))
	defer ticker.Stop()

	var last any
	var lastSent time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C():
			v := p.Status()
			if p.OnlyChanges && last != nil && reflect.DeepEqual(v, last) && now.Sub(lastSent) < keepAlive {
				continue
			}
			if err := p.Out.Broadcast("status", v); err != nil {
				logs.Opsf("status publish failed: %v", err)
				continue
			}
			last, lastSent = v, now
		}
	}
}
