package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/banshee-data/limbcontrol/internal/config"
	"github.com/banshee-data/limbcontrol/internal/monitoring"
	"github.com/banshee-data/limbcontrol/internal/serialmux"
	"github.com/banshee-data/limbcontrol/internal/signal"
	"github.com/banshee-data/limbcontrol/internal/sink"
)

const (
	sourceUDP    = "udp"
	sourceSerial = "serial"
	sourceSim    = "sim"
	sourceReplay = "replay"
)

type sourceOptions struct {
	Kind        string
	UDP         string
	Serial      string
	Baud        int
	Channels    int
	Replay      string
	ReplaySpeed float64
	ReplayLoop  bool
}

// listPorts is swapped in tests.
var listPorts = serialmux.ListPorts

// pickSerialPort returns the only attached serial device.
func pickSerialPort() (string, error) {
	ports, err := listPorts()
	if err != nil {
		return "", fmt.Errorf("list serial ports: %w", err)
	}
	switch len(ports) {
	case 0:
		return "", fmt.Errorf("serial source requires a device path and none are attached")
	case 1:
		log.Printf("Using serial port %s", ports[0])
		return ports[0], nil
	}
	return "", fmt.Errorf("serial source requires a device path, choose one of %s", strings.Join(ports, ", "))
}

// buildSource constructs, but does not connect, the configured source.
func buildSource(o sourceOptions, cfg *config.ControlConfig) (signal.Source, error) {
	samples := cfg.GetWindowSamples()
	switch strings.ToLower(o.Kind) {
	case sourceUDP:
		if o.UDP == "" {
			return nil, fmt.Errorf("udp source requires an address")
		}
		return signal.NewUDPSource(signal.UDPSourceConfig{
			Address: o.UDP,
			RcvBuf:  1 << 20,
			Samples: samples,
		}), nil
	case sourceSerial:
		if o.Channels <= 0 {
			return nil, fmt.Errorf("serial source requires a positive channel count, got %d", o.Channels)
		}
		path := o.Serial
		if path == "" {
			var err error
			if path, err = pickSerialPort(); err != nil {
				return nil, err
			}
		}
		opts, err := serialmux.PortOptions{BaudRate: o.Baud}.Normalise()
		if err != nil {
			return nil, err
		}
		return signal.NewSerialSource(signal.SerialSourceConfig{
			Path:       path,
			Options:    opts,
			Channels:   o.Channels,
			Samples:    samples,
			SampleRate: int(cfg.GetSampleRate()),
		}), nil
	case sourceSim:
		return signal.NewSimulatedSource(signal.SimConfig{
			Channels:   o.Channels,
			Samples:    samples,
			SampleRate: cfg.GetSampleRate(),
			Noise:      0.02,
			Amplitude:  1,
		}), nil
	case sourceReplay:
		if o.Replay == "" {
			return nil, fmt.Errorf("replay source requires a pcap file")
		}
		return signal.NewReplaySource(signal.ReplayConfig{
			Path:            o.Replay,
			Samples:         samples,
			SpeedMultiplier: o.ReplaySpeed,
			Loop:            o.ReplayLoop,
		}), nil
	}
	return nil, fmt.Errorf("unknown source %q (want udp, serial, sim or replay)", o.Kind)
}

// buildSink opens one Unity UDP sink per comma-separated address, or an
// in-memory recorder for "none".
func buildSink(addrs string, metrics *monitoring.Metrics) (sink.Sink, error) {
	if addrs == "" || strings.EqualFold(addrs, "none") {
		return sink.NewRecorder(1), nil
	}
	var out sink.Multi
	for _, addr := range strings.Split(addrs, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		u, err := sink.NewUnityUDP(sink.UnityConfig{Address: addr, Metrics: metrics})
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("sink %s: %w", addr, err)
		}
		out = append(out, u)
	}
	switch len(out) {
	case 0:
		return nil, fmt.Errorf("no sink address in %q", addrs)
	case 1:
		return out[0], nil
	}
	return out, nil
}

// startSinks starts the send goroutine of every Unity sink inside s.
func startSinks(ctx context.Context, s sink.Sink) {
	switch v := s.(type) {
	case *sink.UnityUDP:
		v.Start(ctx)
	case sink.Multi:
		for _, inner := range v {
			startSinks(ctx, inner)
		}
	}
}
