package scenario

import (
	"context"
	"errors"

	"github.com/banshee-data/limbcontrol/internal/command"
)

// Run ticks the pipeline every dt and executes submitted commands between
// ticks until ctx is done.
func (s *Scenario) Run(ctx context.Context) error {
	interval := s.cfg.GetTickInterval()
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()
	logs.Opsf("control loop running: dt=%v, %d source(s), %d features",
		interval, len(s.sources), len(s.extractor.Features()))

	for {
		select {
		case <-ctx.Done():
			logs.Opsf("control loop stopped after %d ticks", s.ticks)
			return ctx.Err()
		case cmd := <-s.commands:
			_ = s.HandleCommand(ctx, cmd)
		case <-ticker.C():
			s.UpdateTick()
		}
	}
}

// Submit queues cmd for the loop goroutine. It returns false when the queue
// is full and the command was dropped.
func (s *Scenario) Submit(cmd command.Command) bool {
	select {
	case s.commands <- cmd:
		return true
	default:
		logs.Opsf("command queue full, dropping %s", cmd)
		s.metrics.PacketsDropped("command_queue", 1)
		return false
	}
}

// SubmitString parses a trainer message and queues it. Unrecognized
// messages are ignored.
func (s *Scenario) SubmitString(msg string) {
	cmd, ok := command.Parse(msg)
	if !ok {
		logs.Diagf("ignoring trainer message %q", msg)
		return
	}
	s.Submit(cmd)
}

// Close closes every source and the sink.
func (s *Scenario) Close() error {
	var errs []error
	for _, src := range s.sources {
		errs = append(errs, src.Close())
	}
	if s.sink != nil {
		errs = append(errs, s.sink.Close())
	}
	return errors.Join(errs...)
}
