// Package sink delivers joint angle commands to the limb or its simulator.
package sink

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/limbcontrol/internal/limb"
	"github.com/banshee-data/limbcontrol/internal/monitoring"
)

var logs = monitoring.NewStreams("sink")

// SetLogWriters configures the sink package log streams.
func SetLogWriters(w monitoring.LogWriters) { logs.SetLogWriters(w) }

// ErrInvalidLength is returned for commands that are neither arm-only nor
// full limb.
var ErrInvalidLength = errors.New("invalid joint command length")

// Sink receives one joint command per control tick. Values are radians
// ordered by limb.Joint.
type Sink interface {
	SendJointAngles(values []float64) error
	Close() error
}

// Expand pads an arm-only command (limb.NumArmJoints values) with zeroed hand
// joints. Full commands are copied.
func Expand(values []float64) ([]float64, error) {
	switch len(values) {
	case limb.NumJoints, limb.NumArmJoints:
		out := make([]float64, limb.NumJoints)
		copy(out, values)
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidLength, len(values))
	}
}

// EncodeFloat32 packs a command as little-endian float32 values, padding
// arm-only commands to the full joint count.
func EncodeFloat32(values []float64) ([]byte, error) {
	full, err := Expand(values)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 4*limb.NumJoints)
	for i, v := range full {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(float32(v)))
	}
	return out, nil
}

// DecodeFloat32 is the inverse of EncodeFloat32.
func DecodeFloat32(b []byte) ([]float64, error) {
	if len(b) != 4*limb.NumJoints {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidLength, len(b))
	}
	out := make([]float64, limb.NumJoints)
	for i := range out {
		out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:])))
	}
	return out, nil
}

// Multi sends every command to each sink in order. All sinks are tried; the
// first error is returned.
type Multi []Sink

func (m Multi) SendJointAngles(values []float64) error {
	var first error
	for _, s := range m {
		if err := s.SendJointAngles(values); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
