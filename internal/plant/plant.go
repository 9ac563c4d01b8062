// Package plant integrates joint and coordinated-motion velocities into a
// limb pose, applying ROC interpolation and joint limits.
//
// One tick is NewStep, any number of velocity setters, then Update. The plant
// never fails on velocity input; it only clamps its outputs.
package plant

import (
	"math"
	"sync"

	"github.com/banshee-data/limbcontrol/internal/limb"
	"github.com/banshee-data/limbcontrol/internal/roc"
)

// State is a copy of the plant's pose and commands.
type State struct {
	Position [limb.NumJoints]float64 // radians
	Velocity [limb.NumJoints]float64 // radians/second
	Lower    [limb.NumJoints]float64
	Upper    [limb.NumJoints]float64

	RocID       string
	RocPosition float64
	RocVelocity float64

	GraspID       string
	GraspPosition float64
	GraspVelocity float64
}

// Plant is the kinematic integrator. Update and the setters belong to the
// control loop goroutine; Snapshot may be called from any goroutine.
type Plant struct {
	dt    float64
	table *roc.Table

	mu      sync.RWMutex
	s       State
	scratch []float64
}

// New creates a plant at rest with all joints at zero, clipped to limits.
// A nil table disables ROC motion.
func New(dt float64, lower, upper [limb.NumJoints]float64, table *roc.Table) *Plant {
	p := &Plant{dt: dt, table: table}
	p.s.Lower = lower
	p.s.Upper = upper
	p.clip()
	return p
}

// Dt returns the integration step in seconds.
func (p *Plant) Dt() float64 { return p.dt }

// Table returns the ROC table, possibly nil.
func (p *Plant) Table() *roc.Table { return p.table }

// NewStep zeroes every velocity ahead of this tick's setters.
func (p *Plant) NewStep() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.s.Velocity = [limb.NumJoints]float64{}
	p.s.RocVelocity = 0
	p.s.GraspVelocity = 0
}

// SetJointVelocity sets one joint's velocity. Invalid joints are ignored.
func (p *Plant) SetJointVelocity(j limb.Joint, v float64) {
	if !j.Valid() {
		return
	}
	p.mu.Lock()
	p.s.Velocity[j] = v
	p.mu.Unlock()
}

// SetJointVelocities sets the same velocity on several joints.
func (p *Plant) SetJointVelocities(joints []limb.Joint, v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, j := range joints {
		if j.Valid() {
			p.s.Velocity[j] = v
		}
	}
}

// SetRocVelocity sets the arm ROC progress rate.
func (p *Plant) SetRocVelocity(v float64) {
	p.mu.Lock()
	p.s.RocVelocity = v
	p.mu.Unlock()
}

// SetGraspVelocity sets the grasp progress rate.
func (p *Plant) SetGraspVelocity(v float64) {
	p.mu.Lock()
	p.s.GraspVelocity = v
	p.mu.Unlock()
}

// SetRocID selects the arm ROC element by name.
func (p *Plant) SetRocID(id string) {
	p.mu.Lock()
	p.s.RocID = id
	p.mu.Unlock()
}

// SetGraspID selects the grasp ROC element by name.
func (p *Plant) SetGraspID(id string) {
	p.mu.Lock()
	p.s.GraspID = id
	p.mu.Unlock()
}

// GraspPosition returns the current grasp progress.
func (p *Plant) GraspPosition() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.s.GraspPosition
}

// Update advances one step of dt.
func (p *Plant) Update() {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := &p.s

	s.RocPosition = clamp01(s.RocPosition + s.RocVelocity*p.dt)
	s.GraspPosition = clamp01(s.GraspPosition + s.GraspVelocity*p.dt)

	rocElem, rocOK := p.table.Lookup(s.RocID)
	graspElem, graspOK := p.table.Lookup(s.GraspID)

	var governed [limb.NumJoints]bool
	if rocOK {
		for _, j := range rocElem.Joints {
			governed[j] = true
		}
	}
	if graspOK {
		for _, j := range graspElem.Joints {
			governed[j] = true
		}
	}
	for j := range s.Position {
		if !governed[j] {
			s.Position[j] += s.Velocity[j] * p.dt
		}
	}

	if rocOK {
		p.apply(rocElem, s.RocPosition)
	}
	if graspOK {
		p.apply(graspElem, s.GraspPosition)
	}
	p.clip()
}

func (p *Plant) apply(e *roc.Element, progress float64) {
	p.scratch = e.Values(progress, p.scratch)
	for i, j := range e.Joints {
		p.s.Position[j] = p.scratch[i]
	}
}

func (p *Plant) clip() {
	for j := range p.s.Position {
		if math.IsNaN(p.s.Position[j]) {
			p.s.Position[j] = p.s.Lower[j]
		}
		p.s.Position[j] = math.Min(math.Max(p.s.Position[j], p.s.Lower[j]), p.s.Upper[j])
	}
}

// Positions returns the joint angles in limb.Joint order.
func (p *Plant) Positions() []float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]float64, limb.NumJoints)
	copy(out, p.s.Position[:])
	return out
}

// Snapshot returns a consistent copy of the whole state.
func (p *Plant) Snapshot() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.s
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(math.Max(v, 0), 1)
}
