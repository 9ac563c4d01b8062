package scenario

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/banshee-data/limbcontrol/internal/classifier"
	"github.com/banshee-data/limbcontrol/internal/command"
	"github.com/banshee-data/limbcontrol/internal/training"
)

// ErrUnknownClass is returned when a Cls command names a class outside the
// training catalog.
var ErrUnknownClass = errors.New("scenario: unknown class")

const (
	speedUpFactor   = 1.2
	speedDownFactor = 0.8
)

// HandleCommand executes one trainer command. It must run on the loop
// goroutine. Errors are informational; the scenario stays usable.
func (s *Scenario) HandleCommand(ctx context.Context, cmd command.Command) error {
	s.metrics.Command(cmd.Kind.String())
	err := s.handle(ctx, cmd)
	s.publishStatus()
	if s.statusChanged != nil {
		s.statusChanged()
	}
	if err != nil {
		logs.Opsf("command %s: %v", cmd, err)
	}
	return err
}

func (s *Scenario) handle(ctx context.Context, cmd command.Command) error {
	switch cmd.Kind {
	case command.SelectClass:
		id := slices.Index(s.store.ClassNames(), cmd.Class)
		if id < 0 {
			return fmt.Errorf("%w: %q", ErrUnknownClass, cmd.Class)
		}
		s.trainingID = id
		s.addData = false
		logs.Diagf("training class %q (id %d)", cmd.Class, id)
	case command.Add:
		s.addData = true
	case command.Stop:
		s.addData = false
		s.fit()
	case command.ClearClass:
		n := s.store.Clear(s.trainingID)
		logs.Diagf("cleared %d samples of %q", n, s.motions.Name(s.trainingID))
		s.fit()
	case command.ClearAll:
		s.store.Reset()
		s.fit()
	case command.Train:
		return s.fit()
	case command.Save:
		return s.save(ctx)
	case command.Backup:
		return s.backup(ctx)
	case command.Pause:
		s.pauseAll = !s.pauseAll
	case command.PauseHand:
		s.pauseHand = !s.pauseHand
	case command.PauseAllOn:
		s.pauseAll = true
	case command.PauseAllOff:
		s.pauseAll = false
	case command.PauseHandOn:
		s.pauseHand = true
	case command.PauseHandOff:
		s.pauseHand = false
	case command.SpeedUp:
		s.gain = s.scaleGain(s.gain, speedUpFactor)
	case command.SpeedDown:
		s.gain = s.scaleGain(s.gain, speedDownFactor)
	case command.HandSpeedUp:
		s.handGain = s.scaleGain(s.handGain, speedUpFactor)
	case command.HandSpeedDown:
		s.handGain = s.scaleGain(s.handGain, speedDownFactor)
	case command.PrecisionModeOn:
		s.precision = true
	case command.PrecisionModeOff:
		s.precision = false
	default:
		logs.Diagf("ignoring command %s", cmd)
	}
	return nil
}

func (s *Scenario) scaleGain(g, factor float64) float64 {
	return max(g*factor, s.cfg.GetGainFloor())
}

// fit retrains the classifier from the store. An empty store leaves the
// classifier untrained, which is an expected state rather than a failure.
func (s *Scenario) fit() error {
	n := s.store.Len()
	s.metrics.SetTrainingSamples(n)
	if err := s.classifier.Fit(s.store); err != nil {
		s.lastStatus = classifier.Untrained.String()
		if n == 0 {
			return nil
		}
		return err
	}
	// Pause statuses stay until the next tick; only the training state changed.
	if s.lastStatus == classifier.Untrained.String() {
		s.lastStatus = classifier.Running.String()
	}
	logs.Diagf("classifier fit on %d samples", n)
	return nil
}

func (s *Scenario) backup(ctx context.Context) error {
	if s.backuper == nil {
		return ErrNoBackuper
	}
	path, err := s.backuper.Backup(ctx)
	if err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	logs.Opsf("training data backed up to %s", path)
	return nil
}

// save backs up the persisted data, then writes the current store. A failed
// backup does not block the save.
func (s *Scenario) save(ctx context.Context) error {
	if s.persister == nil {
		return ErrNoPersister
	}
	if s.backuper != nil {
		if err := s.backup(ctx); err != nil {
			logs.Opsf("continuing save without backup: %v", err)
		}
	}
	_, err := s.store.Save(ctx, s.persister)
	return err
}

// LoadTraining restores the latest persisted training set and fits the
// classifier. A missing set leaves the store empty and is not an error.
func (s *Scenario) LoadTraining(ctx context.Context) error {
	if s.persister == nil {
		return ErrNoPersister
	}
	err := s.store.Load(ctx, s.persister)
	defer s.publishStatus()
	if err != nil {
		s.fit()
		if errors.Is(err, training.ErrNotFound) {
			logs.Opsf("no saved training data")
			return nil
		}
		return err
	}
	return s.fit()
}
