package bridge

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mavcot/cot"
	"github.com/c360/mavcot/mavlink/mavlinktest"
)

func TestController_EndToEndOverUDP(t *testing.T) {
	if testing.Short() {
		t.Skip("uses real sockets")
	}

	cotRx, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer cotRx.Close()

	inbound, err := mavlinktest.FreePort()
	require.NoError(t, err)

	vehicle, err := mavlinktest.NewSender(inbound)
	require.NoError(t, err)
	defer vehicle.Close()
	vehicle.HeartbeatEvery(100 * time.Millisecond)

	c, err := NewController(Deps{HandshakeTimeout: 3 * time.Second})
	require.NoError(t, err)

	cfg := SessionConfig{
		InboundPort:        inbound,
		AircraftIdentifier: "E2E_UAV",
		DestinationIP:      "127.0.0.1",
		DestinationPort:    cotRx.LocalAddr().(*net.UDPAddr).Port,
		// The flag only raises the TTL; a unicast receiver still gets the datagram.
		UseMulticast: true,
	}
	require.Equal(t, ResultStarted, c.Start(cfg))

	vehicle.Attitude()
	vehicle.Position(377749000, -1224194000, 100000, 9000)

	buf := make([]byte, 4096)
	require.NoError(t, cotRx.SetReadDeadline(time.Now().Add(3*time.Second)))
	n, _, err := cotRx.ReadFromUDP(buf)
	require.NoError(t, err)

	ev, err := cot.Parse(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, "E2E_UAV", ev.UID)
	assert.Equal(t, "37.774900", ev.Point.Lat)
	assert.Equal(t, "-122.419400", ev.Point.Lon)
	assert.Equal(t, "100.0", ev.Point.Hae)
	assert.Equal(t, "90.0", ev.Detail.Track.Course)

	start := time.Now()
	assert.Equal(t, ResultStopped, c.Stop())
	assert.LessOrEqual(t, time.Since(start), 1500*time.Millisecond)

	st := c.GetStatus()
	assert.False(t, st.Running)
	assert.Equal(t, int64(1), st.MessageCount, "attitude and heartbeats are not counted")
	assert.Equal(t, int64(1), st.CotSentCount)
	require.NotNil(t, st.Transmit)
	assert.Equal(t, int64(1), st.Transmit.Sent)
	assert.Zero(t, st.Transmit.Failures)
	assert.False(t, st.Transmit.LastActivity.IsZero())
}

func TestController_HandshakeTimeoutOverUDP(t *testing.T) {
	if testing.Short() {
		t.Skip("uses real sockets")
	}

	inbound, err := mavlinktest.FreePort()
	require.NoError(t, err)

	c, err := NewController(Deps{HandshakeTimeout: 200 * time.Millisecond})
	require.NoError(t, err)

	cfg := unicastConfig()
	cfg.InboundPort = inbound
	assert.Equal(t, ResultConnectFailed, c.Start(cfg))
	assert.Equal(t, Idle, c.State())
}
