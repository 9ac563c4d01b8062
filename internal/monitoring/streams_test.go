package monitoring

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStreams_RoutesByLevel(t *testing.T) {
	s := NewStreams("unit")
	var ops, diag, trace bytes.Buffer
	s.SetLogWriters(LogWriters{Ops: &ops, Diag: &diag, Trace: &trace})

	s.Opsf("ops %d", 1)
	s.Diagf("diag %d", 2)
	s.Tracef("trace %d", 3)

	assert.Contains(t, ops.String(), "[unit] ")
	assert.Contains(t, ops.String(), "ops 1")
	assert.NotContains(t, ops.String(), "diag")
	assert.Contains(t, diag.String(), "diag 2")
	assert.Contains(t, trace.String(), "trace 3")
}

func TestStreams_NilWriterDisables(t *testing.T) {
	s := NewStreams("quiet")
	var ops bytes.Buffer
	s.SetLogWriters(LogWriters{Ops: &ops})

	s.Diagf("dropped")
	s.Tracef("dropped")
	s.Opsf("kept")

	assert.Equal(t, 1, strings.Count(ops.String(), "\n"))
}

func TestStreams_ZeroValueIsSilent(t *testing.T) {
	s := NewStreams("zero")
	// Never configured: must not panic.
	s.Opsf("x")
	s.Diagf("x")
	s.Tracef("x")
}

func TestSetLogWriters_ConfiguresAllRegistered(t *testing.T) {
	a := NewStreams("a")
	b := NewStreams("b")
	var buf bytes.Buffer
	SetLogWriters(LogWriters{Ops: &buf})
	t.Cleanup(func() { SetLogWriters(LogWriters{}) })

	a.Opsf("from a")
	b.Opsf("from b")

	out := buf.String()
	assert.Contains(t, out, "[a] ")
	assert.Contains(t, out, "[b] ")
}
