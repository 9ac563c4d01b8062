// Package decision smooths raw per-tick classifier outputs with a majority
// vote over the most recent decisions.
package decision

// Smoother is a fixed-capacity ring of raw class ids. The smoothed decision
// is the most frequent id in the ring, ties going to the id whose oldest
// occurrence is earliest. A raw id equal to the rest class bypasses the vote.
type Smoother struct {
	buf    []int
	next   int
	filled int
	restID int
}

// NewSmoother creates a smoother of capacity size (minimum 1). restID is the
// "No Movement" class id that overrides the vote.
func NewSmoother(size, restID int) *Smoother {
	if size < 1 {
		size = 1
	}
	return &Smoother{buf: make([]int, size), restID: restID}
}

// Capacity returns the ring size.
func (s *Smoother) Capacity() int { return len(s.buf) }

// Len returns how many ids are held.
func (s *Smoother) Len() int { return s.filled }

// Push records raw and returns the smoothed decision.
func (s *Smoother) Push(raw int) int {
	s.buf[s.next] = raw
	s.next = (s.next + 1) % len(s.buf)
	if s.filled < len(s.buf) {
		s.filled++
	}
	if raw == s.restID {
		return raw
	}
	return s.Majority()
}

// Majority returns the current vote winner, or the rest id when empty.
func (s *Smoother) Majority() int {
	if s.filled == 0 {
		return s.restID
	}
	start := (s.next - s.filled + len(s.buf)) % len(s.buf)
	counts := make(map[int]int, s.filled)
	order := make([]int, 0, s.filled)
	for i := 0; i < s.filled; i++ {
		id := s.buf[(start+i)%len(s.buf)]
		if counts[id] == 0 {
			order = append(order, id)
		}
		counts[id]++
	}
	best := order[0]
	for _, id := range order[1:] {
		if counts[id] > counts[best] {
			best = id
		}
	}
	return best
}

// Reset empties the ring.
func (s *Smoother) Reset() {
	s.next = 0
	s.filled = 0
}
