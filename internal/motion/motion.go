// Package motion maps classifier class names onto arm joint or grasp commands.
package motion

import (
	"fmt"

	"github.com/banshee-data/limbcontrol/internal/limb"
	"github.com/banshee-data/limbcontrol/internal/monitoring"
)

var logs = monitoring.NewStreams("motion")

// SetLogWriters configures the motion log streams.
func SetLogWriters(w monitoring.LogWriters) { logs.SetLogWriters(w) }

// Class is the closed set of motion classes the limb understands.
type Class int

const (
	Unknown Class = iota - 1
	NoMovement
	ShoulderFlexion
	ShoulderExtension
	ShoulderAdduction
	ShoulderAbduction
	HumeralInternalRotation
	HumeralExternalRotation
	ElbowFlexion
	ElbowExtension
	WristRotateIn
	WristRotateOut
	WristAdduction
	WristAbduction
	WristFlexIn
	WristExtendOut
	HandOpen
	SphericalGrasp
	TipGrasp
	ThreeFingerPinchGrasp
	LateralGrasp
	CylindricalGrasp
	PointGrasp
	numClasses
)

// Info describes how a class drives the plant.
type Info struct {
	IsGrasp   bool
	Joint     limb.Joint
	HasJoint  bool
	Direction int    // -1, 0 or +1
	GraspID   string // empty when the class does not select a grasp
}

type entry struct {
	name string
	info Info
}

func arm(name string, j limb.Joint, dir int) entry {
	return entry{name, Info{Joint: j, HasJoint: true, Direction: dir}}
}

func grasp(name string) entry {
	return entry{name, Info{IsGrasp: true, Direction: +1, GraspID: name}}
}

var table = [numClasses]entry{
	NoMovement:              {"No Movement", Info{}},
	ShoulderFlexion:         arm("Shoulder Flexion", limb.ShoulderFE, +1),
	ShoulderExtension:       arm("Shoulder Extension", limb.ShoulderFE, -1),
	ShoulderAdduction:       arm("Shoulder Adduction", limb.ShoulderAbAd, +1),
	ShoulderAbduction:       arm("Shoulder Abduction", limb.ShoulderAbAd, -1),
	HumeralInternalRotation: arm("Humeral Internal Rotation", limb.HumeralRot, +1),
	HumeralExternalRotation: arm("Humeral External Rotation", limb.HumeralRot, -1),
	ElbowFlexion:            arm("Elbow Flexion", limb.Elbow, +1),
	ElbowExtension:          arm("Elbow Extension", limb.Elbow, -1),
	WristRotateIn:           arm("Wrist Rotate In", limb.WristRot, +1),
	WristRotateOut:          arm("Wrist Rotate Out", limb.WristRot, -1),
	WristAdduction:          arm("Wrist Adduction", limb.WristAbAd, +1),
	WristAbduction:          arm("Wrist Abduction", limb.WristAbAd, -1),
	WristFlexIn:             arm("Wrist Flex In", limb.WristFE, +1),
	WristExtendOut:          arm("Wrist Extend Out", limb.WristFE, -1),
	HandOpen:                {"Hand Open", Info{IsGrasp: true, Direction: -1}},
	SphericalGrasp:          grasp("Spherical Grasp"),
	TipGrasp:                grasp("Tip Grasp"),
	ThreeFingerPinchGrasp:   grasp("Three Finger Pinch Grasp"),
	LateralGrasp:            grasp("Lateral Grasp"),
	CylindricalGrasp:        grasp("Cylindrical Grasp"),
	PointGrasp:              grasp("Point Grasp"),
}

var byName = func() map[string]Class {
	m := make(map[string]Class, len(table))
	for i, e := range table {
		m[e.name] = Class(i)
	}
	return m
}()

func (c Class) String() string {
	if c < 0 || c >= numClasses {
		return fmt.Sprintf("Class(%d)", int(c))
	}
	return table[c].name
}

// Info returns the motion for c. Unknown classes map to no motion.
func (c Class) Info() Info {
	if c < 0 || c >= numClasses {
		return Info{}
	}
	return table[c].info
}

// ParseClass resolves an exact class name.
func ParseClass(name string) (Class, bool) {
	c, ok := byName[name]
	if !ok {
		return Unknown, false
	}
	return c, true
}

// Classes lists every known class in enumeration order.
func Classes() []Class {
	out := make([]Class, numClasses)
	for i := range out {
		out[i] = Class(i)
	}
	return out
}

// Map resolves classifier class ids, which index a training catalog, to
// motion info. It is built once from the catalog.
type Map struct {
	names   []string
	classes []Class
}

// NewMap parses each catalog name. Unmatched names log a warning and map to
// no motion.
func NewMap(catalog []string) *Map {
	m := &Map{names: append([]string(nil), catalog...), classes: make([]Class, len(catalog))}
	for i, name := range catalog {
		c, ok := ParseClass(name)
		if !ok {
			logs.Opsf("unmatched class name %q (id %d): no motion", name, i)
		}
		m.classes[i] = c
	}
	return m
}

// Name returns the catalog name for id, empty when out of range.
func (m *Map) Name(id int) string {
	if id < 0 || id >= len(m.names) {
		return ""
	}
	return m.names[id]
}

// Class returns the parsed class for id.
func (m *Map) Class(id int) Class {
	if id < 0 || id >= len(m.classes) {
		return Unknown
	}
	return m.classes[id]
}

// Lookup returns the motion info for class id.
func (m *Map) Lookup(id int) Info {
	return m.Class(id).Info()
}

// ID returns the catalog id for c, or -1 when c is not in the catalog.
func (m *Map) ID(c Class) int {
	for i, mc := range m.classes {
		if mc == c {
			return i
		}
	}
	return -1
}
