package motion

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/limbcontrol/internal/limb"
	"github.com/banshee-data/limbcontrol/internal/monitoring"
)

func TestParseClass_RoundTrip(t *testing.T) {
	for _, c := range Classes() {
		got, ok := ParseClass(c.String())
		assert.True(t, ok, c.String())
		assert.Equal(t, c, got)
	}
	_, ok := ParseClass("elbow flexion")
	assert.False(t, ok, "names are exact")
}

func TestClass_Info(t *testing.T) {
	tests := []struct {
		class Class
		want  Info
	}{
		{NoMovement, Info{}},
		{ElbowFlexion, Info{Joint: limb.Elbow, HasJoint: true, Direction: +1}},
		{ElbowExtension, Info{Joint: limb.Elbow, HasJoint: true, Direction: -1}},
		{WristRotateOut, Info{Joint: limb.WristRot, HasJoint: true, Direction: -1}},
		{HandOpen, Info{IsGrasp: true, Direction: -1}},
		{SphericalGrasp, Info{IsGrasp: true, Direction: +1, GraspID: "Spherical Grasp"}},
		{Unknown, Info{}},
	}
	for _, tt := range tests {
		t.Run(tt.class.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.class.Info())
		})
	}
}

func TestMap_LookupAndUnmatched(t *testing.T) {
	var ops bytes.Buffer
	SetLogWriters(monitoring.LogWriters{Ops: &ops})
	t.Cleanup(func() { SetLogWriters(monitoring.LogWriters{}) })

	m := NewMap([]string{"No Movement", "Elbow Flexion", "Juggle", "Tip Grasp"})

	assert.Equal(t, Info{Joint: limb.Elbow, HasJoint: true, Direction: 1}, m.Lookup(1))
	assert.Equal(t, Info{}, m.Lookup(2))
	assert.Equal(t, Unknown, m.Class(2))
	assert.Equal(t, "Juggle", m.Name(2))
	assert.Contains(t, ops.String(), `unmatched class name "Juggle"`)

	assert.Equal(t, "Tip Grasp", m.Lookup(3).GraspID)
	assert.Equal(t, Info{}, m.Lookup(99))
	assert.Equal(t, "", m.Name(-1))

	assert.Equal(t, 0, m.ID(NoMovement))
	assert.Equal(t, -1, m.ID(HandOpen))
}
