// Package roc loads Reduced Order Control tables: named coordinated motions
// that move a group of joints along a single progress value in [0, 1].
package roc

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/banshee-data/limbcontrol/internal/limb"
)

// ErrInvalid wraps every table validation failure.
var ErrInvalid = errors.New("invalid roc table")

// Element is one coordinated motion. Angles[w][j] is the angle in radians of
// Joints[j] at Waypoints[w]. Elements are immutable after load.
type Element struct {
	Name      string
	ID        int
	Joints    []limb.Joint
	Waypoints []float64 // strictly ascending
	Angles    [][]float64
}

// Values interpolates every joint of e at progress p. p is clamped to the
// waypoint domain first, so the result never extrapolates. dst is reused
// when large enough.
func (e *Element) Values(p float64, dst []float64) []float64 {
	nj := len(e.Joints)
	if cap(dst) < nj {
		dst = make([]float64, nj)
	}
	dst = dst[:nj]

	w := e.Waypoints
	last := len(w) - 1
	switch {
	case math.IsNaN(p) || p <= w[0]:
		copy(dst, e.Angles[0])
		return dst
	case p >= w[last]:
		copy(dst, e.Angles[last])
		return dst
	}
	// First waypoint strictly greater than p; p lies in [w[hi-1], w[hi]).
	hi := sort.Search(len(w), func(i int) bool { return w[i] > p })
	lo := hi - 1
	frac := (p - w[lo]) / (w[hi] - w[lo])
	for j := range dst {
		a, b := e.Angles[lo][j], e.Angles[hi][j]
		dst[j] = a + frac*(b-a)
	}
	return dst
}

func (e *Element) validate() error {
	if e.Name == "" {
		return fmt.Errorf("%w: table %d has no name", ErrInvalid, e.ID)
	}
	if len(e.Joints) == 0 {
		return fmt.Errorf("%w: %q has no joints", ErrInvalid, e.Name)
	}
	seen := make(map[limb.Joint]bool, len(e.Joints))
	for _, j := range e.Joints {
		if !j.Valid() {
			return fmt.Errorf("%w: %q joint index %d out of range", ErrInvalid, e.Name, int(j)+1)
		}
		if seen[j] {
			return fmt.Errorf("%w: %q lists %s twice", ErrInvalid, e.Name, j)
		}
		seen[j] = true
	}
	if len(e.Waypoints) == 0 {
		return fmt.Errorf("%w: %q has no waypoints", ErrInvalid, e.Name)
	}
	for i, w := range e.Waypoints {
		if math.IsNaN(w) || w < 0 || w > 1 {
			return fmt.Errorf("%w: %q waypoint %d is %g, want [0, 1]", ErrInvalid, e.Name, i, w)
		}
		if i > 0 && w <= e.Waypoints[i-1] {
			return fmt.Errorf("%w: %q waypoints not strictly ascending at %d", ErrInvalid, e.Name, i)
		}
	}
	if len(e.Angles) != len(e.Waypoints) {
		return fmt.Errorf("%w: %q has %d angle rows for %d waypoints",
			ErrInvalid, e.Name, len(e.Angles), len(e.Waypoints))
	}
	for i, row := range e.Angles {
		if len(row) != len(e.Joints) {
			return fmt.Errorf("%w: %q waypoint %d has %d angles for %d joints",
				ErrInvalid, e.Name, i, len(row), len(e.Joints))
		}
		for _, a := range row {
			if math.IsNaN(a) || math.IsInf(a, 0) {
				return fmt.Errorf("%w: %q waypoint %d has non-finite angle", ErrInvalid, e.Name, i)
			}
		}
	}
	return nil
}

// Table is a set of elements addressable by name or numeric id.
type Table struct {
	byName map[string]*Element
}

// NewTable builds a table from elements, validating each one.
func NewTable(elems ...*Element) (*Table, error) {
	t := &Table{byName: make(map[string]*Element, len(elems))}
	for _, e := range elems {
		if err := e.validate(); err != nil {
			return nil, err
		}
		if _, dup := t.byName[e.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalid, e.Name)
		}
		t.byName[e.Name] = e
	}
	return t, nil
}

// Lookup returns the element called name.
func (t *Table) Lookup(name string) (*Element, bool) {
	if t == nil {
		return nil, false
	}
	e, ok := t.byName[name]
	return e, ok
}

// ByID returns the element with numeric id.
func (t *Table) ByID(id int) (*Element, bool) {
	if t == nil {
		return nil, false
	}
	for _, e := range t.byName {
		if e.ID == id {
			return e, true
		}
	}
	return nil, false
}

// Names returns element names sorted.
func (t *Table) Names() []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.byName))
	for name := range t.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len returns the element count.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.byName)
}

type xmlRoot struct {
	Tables []xmlTable `xml:"table"`
}

type xmlTable struct {
	Name      string        `xml:"name"`
	ID        int           `xml:"id"`
	Joints    string        `xml:"joints"`
	Waypoints []xmlWaypoint `xml:"waypoint"`
}

type xmlWaypoint struct {
	Index  float64 `xml:"index,attr"`
	Angles string  `xml:"angles"`
}

// Parse reads an XML ROC file. Joint ids in the file are 1-based. Waypoints
// may appear in any order and are sorted on load.
func Parse(r io.Reader) (*Table, error) {
	var root xmlRoot
	if err := xml.NewDecoder(r).Decode(&root); err != nil {
		return nil, fmt.Errorf("decode roc xml: %w", err)
	}
	elems := make([]*Element, 0, len(root.Tables))
	for _, xt := range root.Tables {
		e := &Element{Name: strings.TrimSpace(xt.Name), ID: xt.ID}
		ids, err := parseFloats(xt.Joints)
		if err != nil {
			return nil, fmt.Errorf("%w: %q joints: %v", ErrInvalid, e.Name, err)
		}
		for _, id := range ids {
			e.Joints = append(e.Joints, limb.Joint(int(id)-1))
		}
		wps := append([]xmlWaypoint(nil), xt.Waypoints...)
		sort.SliceStable(wps, func(i, j int) bool { return wps[i].Index < wps[j].Index })
		for _, wp := range wps {
			angles, err := parseFloats(wp.Angles)
			if err != nil {
				return nil, fmt.Errorf("%w: %q waypoint %g: %v", ErrInvalid, e.Name, wp.Index, err)
			}
			e.Waypoints = append(e.Waypoints, wp.Index)
			e.Angles = append(e.Angles, angles)
		}
		elems = append(elems, e)
	}
	return NewTable(elems...)
}

// Load parses the ROC file at path.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roc file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

func parseFloats(s string) ([]float64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
