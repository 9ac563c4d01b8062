package sink

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/limbcontrol/internal/limb"
	"github.com/banshee-data/limbcontrol/internal/monitoring"
)

func listenUnity(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestUnityUDP_SendsPackets(t *testing.T) {
	server := listenUnity(t)
	u, err := NewUnityUDP(UnityConfig{Address: server.LocalAddr().String()})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	u.Start(ctx)

	arm := []float64{0, 0, 0, 1.5, 0, 0, 0}
	require.NoError(t, u.SendJointAngles(arm))

	buf := make([]byte, 512)
	require.NoError(t, server.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := server.ReadFromUDP(buf)
	require.NoError(t, err)
	got, err := DecodeFloat32(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, 1.5, got[limb.Elbow])
	assert.Len(t, got, limb.NumJoints)

	require.Eventually(t, func() bool { return u.Sent() == 1 }, time.Second, time.Millisecond)
	assert.ErrorIs(t, u.SendJointAngles([]float64{1}), ErrInvalidLength)

	require.NoError(t, u.Close())
	require.NoError(t, u.Close())
	assert.ErrorIs(t, u.SendJointAngles(arm), net.ErrClosed)
}

func TestUnityUDP_DropsWhenQueueFull(t *testing.T) {
	server := listenUnity(t)
	reg := prometheus.NewRegistry()
	m := monitoring.NewMetrics(reg)
	u, err := NewUnityUDP(UnityConfig{Address: server.LocalAddr().String(), QueueSize: 2, Metrics: m})
	require.NoError(t, err)
	defer u.Close()

	// Not started: nothing drains the queue.
	cmd := make([]float64, limb.NumJoints)
	for i := 0; i < 5; i++ {
		require.NoError(t, u.SendJointAngles(cmd))
	}
	assert.Equal(t, 3, u.dropped)
	expected := `
# HELP limb_transport_packets_dropped_total Packets dropped because a queue was full, by component
# TYPE limb_transport_packets_dropped_total counter
limb_transport_packets_dropped_total{component="unity_sink"} 3
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "limb_transport_packets_dropped_total"))
}

func TestNewUnityUDP_BadAddress(t *testing.T) {
	_, err := NewUnityUDP(UnityConfig{Address: "::not-an-address::"})
	assert.Error(t, err)
}
