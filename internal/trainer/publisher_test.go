package trainer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/limbcontrol/internal/timeutil"
)

type captured struct {
	kind string
	v    any
}

type fakeBroadcaster struct {
	mu   sync.Mutex
	msgs []captured
}

func (f *fakeBroadcaster) Broadcast(kind string, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, captured{kind, v})
	return nil
}

func (f *fakeBroadcaster) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func runPublisher(t *testing.T, p *Publisher) (cancel func(), done <-chan error) {
	t.Helper()
	ctx, cancelFn := context.WithCancel(context.Background())
	ch := make(chan error, 1)
	go func() { ch <- p.Run(ctx) }()
	return cancelFn, ch
}

func TestPublisherRate(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	out := &fakeBroadcaster{}
	n := 0
	p := &Publisher{Clock: clock, RateHz: 20, Out: out, Status: func() any { n++; return n }}

	cancel, done := runPublisher(t, p)
	tickers := clock.WaitForTickers(1)
	assert.Equal(t, 50*time.Millisecond, tickers[0].Interval())

	for i := 1; i <= 3; i++ {
		tickers[0].Trigger(start.Add(time.Duration(i) * 50 * time.Millisecond))
	}
	require.Eventually(t, func() bool { return out.count() == 3 }, time.Second, time.Millisecond)
	cancel()
	assert.True(t, errors.Is(<-done, context.Canceled))
	assert.Equal(t, "status", out.msgs[0].kind)
}

func TestPublisherDefaultRate(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	p := &Publisher{Clock: clock, Out: &fakeBroadcaster{}, Status: func() any { return nil }}
	cancel, done := runPublisher(t, p)
	tickers := clock.WaitForTickers(1)
	assert.Equal(t, 100*time.Millisecond, tickers[0].Interval())
	cancel()
	<-done
}

func TestPublisherOnlyChanges(t *testing.T) {
	start := time.Unix(1000, 0)
	clock := timeutil.NewMockClock(start)
	out := &fakeBroadcaster{}
	var mu sync.Mutex
	value := "a"
	p := &Publisher{
		Clock:       clock,
		RateHz:      10,
		Out:         out,
		OnlyChanges: true,
		KeepAlive:   time.Second,
		Status: func() any {
			mu.Lock()
			defer mu.Unlock()
			return value
		},
	}
	cancel, done := runPublisher(t, p)
	defer func() { cancel(); <-done }()
	tk := clock.WaitForTickers(1)[0]

	tk.Trigger(start.Add(100 * time.Millisecond))
	tk.Trigger(start.Add(200 * time.Millisecond))
	tk.Trigger(start.Add(300 * time.Millisecond))
	require.Eventually(t, func() bool { return out.count() == 1 }, time.Second, time.Millisecond)

	mu.Lock()
	value = "b"
	mu.Unlock()
	tk.Trigger(start.Add(400 * time.Millisecond))
	require.Eventually(t, func() bool { return out.count() == 2 }, time.Second, time.Millisecond)

	// Unchanged but past the keepalive.
	tk.Trigger(start.Add(1500 * time.Millisecond))
	require.Eventually(t, func() bool { return out.count() == 3 }, time.Second, time.Millisecond)
}
