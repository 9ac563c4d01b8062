package plant

import (
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/limbcontrol/internal/limb"
	"github.com/banshee-data/limbcontrol/internal/roc"
)

func defaultLimits() (lower, upper [limb.NumJoints]float64) {
	for j := range upper {
		upper[j] = limb.DegToRad(30)
	}
	return lower, upper
}

func testTable(t *testing.T) *roc.Table {
	t.Helper()
	tbl, err := roc.Parse(strings.NewReader(`<rocTables>
  <table><name>Spherical Grasp</name><id>1</id><joints>9,10</joints>
    <waypoint index="0"><angles>0,0</angles></waypoint>
    <waypoint index="1"><angles>0.4,0.2</angles></waypoint>
  </table>
  <table><name>Reach</name><id>2</id><joints>1,4</joints>
    <waypoint index="0"><angles>0,0</angles></waypoint>
    <waypoint index="1"><angles>0.5,0.3</angles></waypoint>
  </table>
</rocTables>`))
	require.NoError(t, err)
	return tbl
}

func TestPlant_ElbowIntegratesThenClamps(t *testing.T) {
	lower, upper := defaultLimits()
	p := New(0.02, lower, upper, nil)

	p.NewStep()
	p.SetJointVelocity(limb.Elbow, 1)
	p.Update()
	assert.InDelta(t, 0.02, p.Positions()[limb.Elbow], 1e-12)

	for i := 0; i < 100; i++ {
		p.NewStep()
		p.SetJointVelocity(limb.Elbow, 1)
		p.Update()
	}
	assert.InDelta(t, 30*math.Pi/180, p.Positions()[limb.Elbow], 1e-12)
}

func TestPlant_NewStepZeroesVelocities(t *testing.T) {
	lower, upper := defaultLimits()
	p := New(0.02, lower, upper, nil)
	p.SetJointVelocity(limb.Elbow, 1)
	p.SetRocVelocity(1)
	p.SetGraspVelocity(1)

	p.NewStep()
	s := p.Snapshot()
	assert.Equal(t, [limb.NumJoints]float64{}, s.Velocity)
	assert.Zero(t, s.RocVelocity)
	assert.Zero(t, s.GraspVelocity)

	p.Update()
	assert.Equal(t, [limb.NumJoints]float64{}, p.Snapshot().Position)
}

func TestPlant_GraspInterpolation(t *testing.T) {
	var lower, upper [limb.NumJoints]float64
	for j := range upper {
		upper[j] = 2
	}
	p := New(0.25, lower, upper, testTable(t))
	p.SetGraspID("Spherical Grasp")

	p.NewStep()
	p.SetGraspVelocity(1)
	// Ungoverned velocity on a governed joint has no effect.
	p.SetJointVelocity(limb.IndexMCP, 5)
	p.SetJointVelocity(limb.Elbow, 1)
	p.Update()

	s := p.Snapshot()
	assert.InDelta(t, 0.25, s.GraspPosition, 1e-12)
	assert.InDelta(t, 0.1, s.Position[limb.IndexMCP], 1e-12)
	assert.InDelta(t, 0.05, s.Position[limb.IndexPIP], 1e-12)
	assert.InDelta(t, 0.25, s.Position[limb.Elbow], 1e-12)

	for i := 0; i < 10; i++ {
		p.NewStep()
		p.SetGraspVelocity(1)
		p.Update()
	}
	s = p.Snapshot()
	assert.Equal(t, 1.0, s.GraspPosition)
	assert.InDelta(t, 0.4, s.Position[limb.IndexMCP], 1e-12)

	p.NewStep()
	p.SetGraspVelocity(-10)
	p.Update()
	assert.Equal(t, 0.0, p.GraspPosition())
	assert.Equal(t, 0.0, p.Positions()[limb.IndexMCP])
}

func TestPlant_RocAndGraspIndependent(t *testing.T) {
	var lower, upper [limb.NumJoints]float64
	for j := range upper {
		upper[j] = 2
	}
	p := New(0.5, lower, upper, testTable(t))
	p.SetRocID("Reach")
	p.SetGraspID("Spherical Grasp")

	p.NewStep()
	p.SetRocVelocity(1)
	p.Update()

	s := p.Snapshot()
	assert.InDelta(t, 0.5, s.RocPosition, 1e-12)
	assert.Zero(t, s.GraspPosition)
	assert.InDelta(t, 0.25, s.Position[limb.ShoulderFE], 1e-12)
	assert.InDelta(t, 0.15, s.Position[limb.Elbow], 1e-12)
	assert.Zero(t, s.Position[limb.IndexMCP])
}

func TestPlant_UnknownIDsIgnored(t *testing.T) {
	lower, upper := defaultLimits()
	p := New(0.02, lower, upper, testTable(t))
	p.SetGraspID("Juggle")
	p.SetRocID("Nowhere")

	p.NewStep()
	p.SetGraspVelocity(1)
	p.SetJointVelocity(limb.IndexMCP, 1)
	assert.NotPanics(t, p.Update)

	s := p.Snapshot()
	assert.InDelta(t, 0.02, s.GraspPosition, 1e-12)
	// Unknown grasp does not govern the finger, so its velocity applies.
	assert.InDelta(t, 0.02, s.Position[limb.IndexMCP], 1e-12)
}

func TestPlant_LimitsAlwaysHold(t *testing.T) {
	lower, upper := defaultLimits()
	lower[limb.WristRot] = -1
	upper[limb.WristRot] = 1
	p := New(0.02, lower, upper, testTable(t))
	rng := rand.New(rand.NewSource(3))
	grasps := []string{"", "Spherical Grasp", "Reach", "missing"}

	for tick := 0; tick < 500; tick++ {
		p.NewStep()
		for j := 0; j < limb.NumJoints; j++ {
			p.SetJointVelocity(limb.Joint(j), rng.NormFloat64()*50)
		}
		p.SetRocVelocity(rng.NormFloat64() * 20)
		p.SetGraspVelocity(rng.NormFloat64() * 20)
		p.SetGraspID(grasps[rng.Intn(len(grasps))])
		p.SetRocID(grasps[rng.Intn(len(grasps))])
		if tick == 250 {
			p.SetJointVelocity(limb.Elbow, math.NaN())
			p.SetJointVelocity(limb.WristFE, math.Inf(1))
		}
		p.Update()

		s := p.Snapshot()
		for j := 0; j < limb.NumJoints; j++ {
			require.GreaterOrEqual(t, s.Position[j], s.Lower[j], "tick %d joint %s", tick, limb.Joint(j))
			require.LessOrEqual(t, s.Position[j], s.Upper[j], "tick %d joint %s", tick, limb.Joint(j))
		}
		require.True(t, s.RocPosition >= 0 && s.RocPosition <= 1)
		require.True(t, s.GraspPosition >= 0 && s.GraspPosition <= 1)
	}
}

func TestPlant_SetJointVelocities(t *testing.T) {
	lower, upper := defaultLimits()
	p := New(0.02, lower, upper, nil)
	p.SetJointVelocities([]limb.Joint{limb.Elbow, limb.WristAbAd, limb.Joint(99)}, 2.5)
	s := p.Snapshot()
	assert.Equal(t, 2.5, s.Velocity[limb.Elbow])
	assert.Equal(t, 2.5, s.Velocity[limb.WristAbAd])
	assert.Zero(t, s.Velocity[limb.WristFE])

	p.SetJointVelocity(limb.Joint(-1), 1)
	assert.Equal(t, 0.02, p.Dt())
	assert.Nil(t, p.Table())
}

func TestPlant_InitialPoseClippedToLimits(t *testing.T) {
	var lower, upper [limb.NumJoints]float64
	for j := range lower {
		lower[j] = 0.1
		upper[j] = 0.2
	}
	p := New(0.02, lower, upper, nil)
	for _, v := range p.Positions() {
		assert.Equal(t, 0.1, v)
	}
}
