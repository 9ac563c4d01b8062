// Package limb defines the fixed joint enumeration shared by every stage of
// the control pipeline and by the output sinks. Angles exchanged between
// packages are always ordered by Joint and expressed in radians.
package limb

import (
	"fmt"
	"math"
	"strings"
)

// Joint identifies one actuated degree of freedom of the limb.
type Joint int

const (
	ShoulderFE Joint = iota
	ShoulderAbAd
	HumeralRot
	Elbow
	WristRot
	WristAbAd
	WristFE
	IndexAbAd
	IndexMCP
	IndexPIP
	IndexDIP
	MiddleAbAd
	MiddleMCP
	MiddlePIP
	MiddleDIP
	RingAbAd
	RingMCP
	RingPIP
	RingDIP
	LittleAbAd
	LittleMCP
	LittlePIP
	LittleDIP
	ThumbCMCAbAd
	ThumbCMCFE
	ThumbMCP
	ThumbDIP
)

// NumJoints is the length of every joint-indexed vector.
const NumJoints = 27

// NumArmJoints covers the shoulder, elbow and wrist joints (ShoulderFE..WristFE).
const NumArmJoints = 7

var jointNames = [NumJoints]string{
	"SHOULDER_FE",
	"SHOULDER_AB_AD",
	"HUMERAL_ROT",
	"ELBOW",
	"WRIST_ROT",
	"WRIST_AB_AD",
	"WRIST_FE",
	"INDEX_AB_AD",
	"INDEX_MCP",
	"INDEX_PIP",
	"INDEX_DIP",
	"MIDDLE_AB_AD",
	"MIDDLE_MCP",
	"MIDDLE_PIP",
	"MIDDLE_DIP",
	"RING_AB_AD",
	"RING_MCP",
	"RING_PIP",
	"RING_DIP",
	"LITTLE_AB_AD",
	"LITTLE_MCP",
	"LITTLE_PIP",
	"LITTLE_DIP",
	"THUMB_CMC_AB_AD",
	"THUMB_CMC_FE",
	"THUMB_MCP",
	"THUMB_DIP",
}

// Valid reports whether j is inside the joint enumeration.
func (j Joint) Valid() bool {
	return j >= 0 && int(j) < NumJoints
}

func (j Joint) String() string {
	if !j.Valid() {
		return fmt.Sprintf("Joint(%d)", int(j))
	}
	return jointNames[j]
}

// ParseJoint resolves a joint name such as "ELBOW" or "elbow".
func ParseJoint(name string) (Joint, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for i, n := range jointNames {
		if n == upper {
			return Joint(i), nil
		}
	}
	return 0, fmt.Errorf("unknown joint %q", name)
}

// All returns every joint in enumeration order.
func All() []Joint {
	out := make([]Joint, NumJoints)
	for i := range out {
		out[i] = Joint(i)
	}
	return out
}

// DegToRad converts degrees to radians.
func DegToRad(deg float64) float64 { return deg * math.Pi / 180 }

// RadToDeg converts radians to degrees.
func RadToDeg(rad float64) float64 { return rad * 180 / math.Pi }
