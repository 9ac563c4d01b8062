package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/limbcontrol/internal/config"
	"github.com/banshee-data/limbcontrol/internal/db"
	"github.com/banshee-data/limbcontrol/internal/limb"
	"github.com/banshee-data/limbcontrol/internal/plant"
	"github.com/banshee-data/limbcontrol/internal/serialmux"
	"github.com/banshee-data/limbcontrol/internal/signal"
	"github.com/banshee-data/limbcontrol/internal/sink"
)

func TestBuildSource(t *testing.T) {
	cfg := config.EmptyControlConfig()
	tests := []struct {
		name    string
		opts    sourceOptions
		want    any
		wantErr bool
	}{
		{"udp", sourceOptions{Kind: "udp", UDP: signal.DefaultMyoAddress}, &signal.UDPSource{}, false},
		{"udp upper case", sourceOptions{Kind: "UDP", UDP: signal.DefaultMyoAddress}, &signal.UDPSource{}, false},
		{"udp without address", sourceOptions{Kind: "udp"}, nil, true},
		{"serial", sourceOptions{Kind: "serial", Serial: "/dev/null", Channels: 4}, &signal.SerialSource{}, false},
		{"serial without channels", sourceOptions{Kind: "serial", Serial: "/dev/null"}, nil, true},
		{"serial default baud", sourceOptions{Kind: "serial", Serial: "/dev/null", Channels: 4, Baud: -1}, &signal.SerialSource{}, false},
		{"sim", sourceOptions{Kind: "sim", Channels: 8}, &signal.SimulatedSource{}, false},
		{"replay", sourceOptions{Kind: "replay", Replay: "capture.pcap"}, &signal.ReplaySource{}, false},
		{"replay without file", sourceOptions{Kind: "replay"}, nil, true},
		{"unknown", sourceOptions{Kind: "bluetooth"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := buildSource(tt.opts, cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, src)
		})
	}
}

func TestBuildSource_SerialDiscovery(t *testing.T) {
	orig := listPorts
	t.Cleanup(func() { listPorts = orig })
	cfg := config.EmptyControlConfig()
	opts := sourceOptions{Kind: "serial", Channels: 4}

	listPorts = func() ([]string, error) { return nil, nil }
	_, err := buildSource(opts, cfg)
	assert.ErrorContains(t, err, "none are attached")

	listPorts = func() ([]string, error) { return []string{"/dev/ttyACM0", "/dev/ttyUSB0"}, nil }
	_, err = buildSource(opts, cfg)
	assert.ErrorContains(t, err, "/dev/ttyACM0, /dev/ttyUSB0")

	listPorts = func() ([]string, error) { return []string{"/dev/ttyACM0"}, nil }
	src, err := buildSource(opts, cfg)
	require.NoError(t, err)
	assert.IsType(t, &signal.SerialSource{}, src)
}

func TestBuildSource_ChannelCounts(t *testing.T) {
	cfg := config.EmptyControlConfig()
	src, err := buildSource(sourceOptions{Kind: "sim", Channels: 4}, cfg)
	require.NoError(t, err)
	assert.Equal(t, 4, src.ChannelCount())
	assert.Equal(t, cfg.GetWindowSamples(), src.Snapshot().Len())

	src, err = buildSource(sourceOptions{Kind: "udp", UDP: signal.DefaultMyoAddress}, cfg)
	require.NoError(t, err)
	assert.Equal(t, signal.MyoChannels, src.ChannelCount())
}

func TestBuildSink(t *testing.T) {
	s, err := buildSink("none", nil)
	require.NoError(t, err)
	assert.IsType(t, &sink.Recorder{}, s)

	s, err = buildSink("", nil)
	require.NoError(t, err)
	assert.IsType(t, &sink.Recorder{}, s)

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()
	s, err = buildSink(pc.LocalAddr().String(), nil)
	require.NoError(t, err)
	assert.IsType(t, &sink.UnityUDP{}, s)
	require.NoError(t, s.Close())

	pc2, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc2.Close()
	s, err = buildSink(pc.LocalAddr().String()+", "+pc2.LocalAddr().String(), nil)
	require.NoError(t, err)
	require.IsType(t, sink.Multi{}, s)
	assert.Len(t, s.(sink.Multi), 2)

	ctx, cancel := context.WithCancel(context.Background())
	startSinks(ctx, s)
	require.NoError(t, s.SendJointAngles(make([]float64, limb.NumJoints)))
	buf := make([]byte, 256)
	require.NoError(t, pc2.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := pc2.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, 4*limb.NumJoints, n)
	cancel()
	require.NoError(t, s.Close())

	_, err = buildSink(" , ", nil)
	assert.Error(t, err)
}

func testRoutes(t *testing.T) routes {
	t.Helper()
	database, err := db.NewDB(filepath.Join(t.TempDir(), "limb.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	lower, upper := config.EmptyControlConfig().GetJointLimits()
	p := plant.New(0.02, lower, upper, nil)
	p.NewStep()
	p.SetJointVelocity(limb.Elbow, 1)
	p.Update()

	return routes{
		Trainer:  http.NotFoundHandler(),
		Status:   func() any { return map[string]string{"strStatus": "RUNNING"} },
		Pose:     func() any { return poseOf(p.Snapshot()) },
		Database: database,
		Serial:   serialmux.NewDisabledSerialMux(""),
	}
}

func get(t *testing.T, mux http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "127.0.0.1:40000"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestNewMux(t *testing.T) {
	mux, err := newMux(testRoutes(t))
	require.NoError(t, err)

	rec := get(t, mux, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])

	rec = get(t, mux, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"strStatus":"RUNNING"}`, rec.Body.String())

	rec = get(t, mux, "/api/pose")
	require.Equal(t, http.StatusOK, rec.Code)
	var p pose
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	require.Len(t, p.Joints, limb.NumJoints)
	assert.Equal(t, "ELBOW", p.Joints[limb.Elbow].Joint)
	assert.InDelta(t, limb.RadToDeg(0.02), p.Joints[limb.Elbow].Degrees, 1e-9)

	rec = get(t, mux, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, mux, "/debug/serial-disabled")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, mux, "/debug/training-sets")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestServeHealth(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	hs := health.NewServer()
	hs.SetServingStatus(healthService, healthpb.HealthCheckResponse_SERVING)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveHealth(ctx, lis, hs) }()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	callCtx, callCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer callCancel()
	resp, err := healthpb.NewHealthClient(conn).Check(callCtx, &healthpb.HealthCheckRequest{Service: healthService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("health server did not stop")
	}
}
