package signal

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Myo armband constants.
const (
	MyoChannels = 8

	myoOrientationScale   = 16384.0
	myoAccelerometerScale = 2048.0
	myoGyroscopeScale     = 16.0
)

// Myo UDP payload sizes.
const (
	MyoPacketFull    = 48 // MyoUdp.exe: 8 int8 EMG, 4 float32 quaternion, 3 float32 accel, 3 float32 gyro
	MyoPacketEMG     = 16 // two consecutive 8-channel int8 EMG samples
	MyoPacketIMU     = 20 // 10 int16: quaternion, accel, gyro in raw device units
	MyoPacketBattery = 1
)

// MyoPacket is one decoded armband datagram. EMG holds zero, one or two raw
// samples (oldest first) in device counts.
type MyoPacket struct {
	EMG     [][MyoChannels]int8
	IMU     IMU
	HasIMU  bool
	Battery int
	HasBatt bool
}

// DecodeMyo parses a little-endian Myo UDP payload.
func DecodeMyo(data []byte) (MyoPacket, error) {
	var p MyoPacket
	switch len(data) {
	case MyoPacketFull:
		p.EMG = [][MyoChannels]int8{readEMG(data[:8])}
		off := 8
		for i := range p.IMU.Quat {
			p.IMU.Quat[i] = readFloat32(data[off:])
			off += 4
		}
		for i := range p.IMU.Accel {
			p.IMU.Accel[i] = readFloat32(data[off:])
			off += 4
		}
		for i := range p.IMU.Gyro {
			p.IMU.Gyro[i] = readFloat32(data[off:])
			off += 4
		}
		p.HasIMU = true
	case MyoPacketEMG:
		p.EMG = [][MyoChannels]int8{readEMG(data[:8]), readEMG(data[8:16])}
	case MyoPacketIMU:
		var raw [10]float64
		for i := range raw {
			raw[i] = float64(int16(binary.LittleEndian.Uint16(data[2*i:])))
		}
		for i := range p.IMU.Quat {
			p.IMU.Quat[i] = raw[i] / myoOrientationScale
		}
		for i := range p.IMU.Accel {
			p.IMU.Accel[i] = raw[4+i] / myoAccelerometerScale
		}
		for i := range p.IMU.Gyro {
			p.IMU.Gyro[i] = raw[7+i] / myoGyroscopeScale
		}
		p.HasIMU = true
	case MyoPacketBattery:
		p.Battery, p.HasBatt = int(data[0]), true
	default:
		return p, fmt.Errorf("unexpected myo packet size %d", len(data))
	}
	return p, nil
}

// Samples converts the EMG counts to scaled float samples.
func (p MyoPacket) Samples(scale float64) [][]float64 {
	out := make([][]float64, len(p.EMG))
	for i, s := range p.EMG {
		row := make([]float64, MyoChannels)
		for c, v := range s {
			row[c] = float64(v) * scale
		}
		out[i] = row
	}
	return out
}

func readEMG(b []byte) [MyoChannels]int8 {
	var s [MyoChannels]int8
	for i := range s {
		s[i] = int8(b[i])
	}
	return s
}

func readFloat32(b []byte) float64 {
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
}
