package scenario

import (
	"runtime/debug"
	"strings"

	"github.com/banshee-data/limbcontrol/internal/classifier"
	"github.com/banshee-data/limbcontrol/internal/signal"
)

// NoDecision is the decision name reported when a tick produced no class.
const NoDecision = "None"

// TickResult summarises one UpdateTick. Raw and Decision are -1 when the
// classifier produced no class.
type TickResult struct {
	Status   string
	Raw      int
	Decision int
	Moved    bool
}

// UpdateTick runs one pass of the pipeline. It never panics; a recovered
// panic is logged and the tick is skipped.
func (s *Scenario) UpdateTick() (res TickResult) {
	start := s.clock.Now()
	res = TickResult{Raw: -1, Decision: -1}
	defer func() {
		if r := recover(); r != nil {
			logs.Opsf("tick %d panicked: %v\n%s", s.ticks, r, debug.Stack())
			s.metrics.TickSkipped("panic")
			res = TickResult{Status: classifier.Error.String(), Raw: -1, Decision: -1}
			s.lastStatus = res.Status
		}
		s.ticks++
		s.metrics.ObserveTick(s.clock.Since(start))
		s.publishStatus()
	}()

	windows := make([]signal.Window, len(s.sources))
	var imu []float64
	for i, src := range s.sources {
		windows[i] = src.Snapshot()
		if imu == nil {
			if m, ok := src.IMU(); ok {
				imu = m.Vector()
			}
		}
	}
	f := s.extractor.Vector(windows...)

	if s.addData {
		name := s.motions.Name(s.trainingID)
		if err := s.store.Add(f, s.trainingID, name, imu); err != nil {
			logs.Opsf("stopped adding %q samples: %v", name, err)
			s.addData = false
		} else {
			s.metrics.SetTrainingSamples(s.store.Len())
		}
	}

	raw, st, ok := s.classifier.Predict(f)
	res.Status = st.String()
	s.lastStatus = res.Status
	s.metrics.SetClassifierStatus(res.Status, classifier.StatusNames())
	if !ok {
		s.lastDecision = NoDecision
		s.metrics.TickSkipped(strings.ToLower(strings.ReplaceAll(res.Status, " ", "_")))
		return res
	}
	res.Raw = raw

	id := s.smoother.Push(raw)
	res.Decision = id
	s.lastDecision = s.motions.Name(id)
	s.metrics.Decision(s.lastDecision)
	info := s.motions.Lookup(id)

	s.plant.NewStep()
	if s.pauseAll {
		res.Status = StatusPaused
		s.lastStatus = res.Status
		return res
	}
	if s.pauseHand {
		res.Status = StatusHandPaused
		s.lastStatus = res.Status
	}

	armGain, handGain := s.gain, s.handGain
	if s.precision {
		armGain *= s.cfg.GetPrecisionGain()
		handGain *= s.cfg.GetPrecisionGain()
	}
	switch {
	case info.IsGrasp && !s.pauseHand:
		// The grasp shape may only change near the open position.
		if info.GraspID != "" && s.plant.GraspPosition() < s.cfg.GetGraspSwitchThreshold() {
			s.plant.SetGraspID(info.GraspID)
		}
		s.plant.SetGraspVelocity(float64(info.Direction) * handGain)
	case !info.IsGrasp && info.HasJoint:
		s.plant.SetJointVelocity(info.Joint, float64(info.Direction)*armGain)
	}
	s.plant.Update()
	res.Moved = true

	if s.sink != nil {
		s.send()
	}
	return res
}

func (s *Scenario) send() {
	err := s.sink.SendJointAngles(s.plant.Positions())
	switch {
	case err != nil:
		s.metrics.SinkError()
		if !s.sinkFailing {
			logs.Opsf("sink: %v", err)
		}
		s.sinkFailing = true
	case s.sinkFailing:
		logs.Opsf("sink recovered")
		s.sinkFailing = false
	}
}
