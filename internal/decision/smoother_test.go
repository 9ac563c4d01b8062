package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSmoother_ConsecutiveIdentical(t *testing.T) {
	s := NewSmoother(25, 0)
	var got int
	for i := 0; i < 25; i++ {
		got = s.Push(4)
	}
	assert.Equal(t, 4, got)
	assert.Equal(t, 25, s.Len())
}

func TestSmoother_RestOverridesMajority(t *testing.T) {
	s := NewSmoother(25, 0)
	for i := 0; i < 25; i++ {
		s.Push(3)
	}
	assert.Equal(t, 0, s.Push(0), "rest id must win on the tick it arrives")
	// The next non-rest tick votes again.
	assert.Equal(t, 3, s.Push(3))
}

func TestSmoother_MajorityOverWindow(t *testing.T) {
	s := NewSmoother(5, 0)
	for _, id := range []int{1, 2, 2, 1, 2} {
		s.Push(id)
	}
	assert.Equal(t, 2, s.Majority())

	// Oldest entries fall out of the ring.
	s.Push(1)
	s.Push(1)
	assert.Equal(t, 1, s.Majority()) // ring now 2,1,2,1,1
}

func TestSmoother_TieGoesToFirstSeen(t *testing.T) {
	s := NewSmoother(4, 0)
	s.Push(5)
	s.Push(6)
	assert.Equal(t, 5, s.Majority())
	s.Push(6)
	s.Push(5)
	assert.Equal(t, 5, s.Majority())

	// After wrapping, the oldest surviving entry decides.
	s.Push(6) // ring: 6,6,5,6 -> 6 wins outright
	assert.Equal(t, 6, s.Majority())
}

func TestSmoother_PartialFill(t *testing.T) {
	s := NewSmoother(25, 0)
	assert.Equal(t, 0, s.Majority(), "empty ring reports rest")
	assert.Equal(t, 7, s.Push(7))
	assert.Equal(t, 1, s.Len())
}

func TestSmoother_ResetAndCapacity(t *testing.T) {
	s := NewSmoother(0, 0)
	assert.Equal(t, 1, s.Capacity())
	s.Push(2)
	s.Reset()
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.Majority())
}
