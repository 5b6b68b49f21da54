package bridge

import (
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mavcot/cot"
	"github.com/c360/mavcot/errors"
	"github.com/c360/mavcot/health"
	"github.com/c360/mavcot/mavlink"
	"github.com/c360/mavcot/metric"
	"github.com/c360/mavcot/position"
	"github.com/c360/mavcot/telemetry"
	"github.com/c360/mavcot/transmit"
)

func texts(entries []telemetry.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Text
	}
	return out
}

func matching(entries []telemetry.Entry, substr string) []string {
	var out []string
	for _, e := range entries {
		if strings.Contains(e.Text, substr) {
			out = append(out, e.Text)
		}
	}
	return out
}

func startController(t *testing.T, f *fixture, mutate ...func(*Deps)) *Controller {
	t.Helper()
	deps := f.deps()
	for _, m := range mutate {
		m(&deps)
	}
	c, err := NewController(deps)
	require.NoError(t, err)
	require.Equal(t, ResultStarted, c.Start(unicastConfig()))
	t.Cleanup(func() { c.Stop() })
	return c
}

func TestController_Lifecycle(t *testing.T) {
	f := newFixture()
	c, err := NewController(f.deps())
	require.NoError(t, err)

	assert.Equal(t, Idle, c.State())
	assert.Equal(t, ResultNotRunning, c.Stop())

	require.Equal(t, ResultStarted, c.Start(unicastConfig()))
	assert.Equal(t, Running, c.State())
	assert.NotEmpty(t, c.SessionID())
	assert.True(t, c.GetStatus().Running)

	assert.Equal(t, ResultAlreadyRunning, c.Start(unicastConfig()))

	assert.Equal(t, ResultStopped, c.Stop())
	assert.Equal(t, Idle, c.State())
	assert.Empty(t, c.SessionID())
	assert.False(t, c.GetStatus().Running)
	assert.True(t, f.src.closed.Load())
	assert.True(t, f.tx.closed.Load())

	assert.Equal(t, ResultNotRunning, c.Stop())

	log := texts(c.GetLog())
	assert.Contains(t, log, "MAVLink Port: 14550")
	assert.Contains(t, log, "Aircraft Name: FRIENDLY_UAV")
	assert.Contains(t, log, "Using Multicast: false")
	assert.Contains(t, log, "MAVLink connection established and heartbeat received")
	assert.Contains(t, log, "CoT socket setup complete - Unicast")
	assert.Contains(t, log, "Starting MAVLink processing, sending CoT to 127.0.0.1:6969")
	assert.Contains(t, log, ResultStopped)
}

func TestController_StartFailures(t *testing.T) {
	tests := []struct {
		name      string
		cfg       SessionConfig
		srcErr    error
		txErr     error
		want      string
		diag      string
		txAttempt bool
		srcClosed bool
	}{
		{
			name: "invalid config",
			cfg:  SessionConfig{InboundPort: 0, AircraftIdentifier: "x", DestinationIP: "127.0.0.1", DestinationPort: 1},
			want: ResultInvalidConfig,
			diag: "Invalid session configuration",
		},
		{
			name:   "handshake timeout",
			cfg:    unicastConfig(),
			srcErr: errors.WrapFatal(errors.ErrHandshakeTimeout, "Conn", "Open", "await heartbeat"),
			want:   ResultConnectFailed,
			diag:   "Error connecting to MAVLink",
		},
		{
			name:      "socket setup",
			cfg:       unicastConfig(),
			txErr:     fmt.Errorf("permission denied"),
			want:      ResultSocketFailed,
			diag:      "Error setting up CoT socket",
			txAttempt: true,
			srcClosed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.srcErr, f.txErr = tt.srcErr, tt.txErr

			mon := health.NewMonitor()
			deps := f.deps()
			deps.Monitor = mon
			c, err := NewController(deps)
			require.NoError(t, err)

			assert.Equal(t, tt.want, c.Start(tt.cfg))
			assert.Equal(t, Idle, c.State())
			assert.Equal(t, tt.txAttempt, f.txOpened.Load())
			assert.Equal(t, tt.srcClosed, f.src.closed.Load())
			assert.Len(t, matching(c.GetLog(), tt.diag), 1)
			assert.False(t, c.GetStatus().Running)

			st, ok := mon.Get("session")
			require.True(t, ok)
			assert.True(t, st.IsUnhealthy())

			// A failed start leaves the controller usable.
			f.srcErr, f.txErr = nil, nil
			assert.Equal(t, ResultStarted, c.Start(unicastConfig()))
			assert.Equal(t, ResultStopped, c.Stop())
		})
	}
}

func TestController_EndToEndValues(t *testing.T) {
	f := newFixture()
	c := startController(t, f)

	f.src.msgs <- positionMsg(377749000, -1224194000, 100000, 9000)
	require.Eventually(t, func() bool { return len(f.tx.Sent()) == 1 }, 2*time.Second, 10*time.Millisecond)

	ev, err := cot.Parse(f.tx.Sent()[0])
	require.NoError(t, err)
	assert.Equal(t, "37.774900", ev.Point.Lat)
	assert.Equal(t, "-122.419400", ev.Point.Lon)
	assert.Equal(t, "100.0", ev.Point.Hae)
	assert.Equal(t, "90.0", ev.Detail.Track.Course)
	assert.Equal(t, "FRIENDLY_UAV", ev.UID)

	require.Eventually(t, func() bool { return c.GetStatus().CotSentCount == 1 }, time.Second, 10*time.Millisecond)
	st := c.GetStatus()
	assert.Equal(t, int64(1), st.MessageCount)
	require.NotNil(t, st.Latest)
	assert.InDelta(t, 37.7749, st.Latest.Lat, 1e-9)
	assert.NotEmpty(t, st.LatestClock)

	sent := matching(c.GetLog(), "Sent CoT #1")
	require.Len(t, sent, 1)
	assert.Equal(t, "Sent CoT #1 - Lat: 37.774900, Lon: -122.419400, Alt: 100.0m, Heading: 90.0° (Rate: 0.0 Hz)", sent[0])
}

func TestController_ValidationFailuresAreIsolated(t *testing.T) {
	missingHeading := positionMsg(1, 1, 1, 1)
	delete(missingHeading.Fields, position.FieldHdg)

	tests := []struct {
		name   string
		msg    position.RawMessage
		diag   string
		reason string
	}{
		{"missing heading", missingHeading, "Missing required fields: [hdg]", "missing_fields"},
		{"latitude 91", positionMsg(910000000, 0, 0, 0), "Invalid data received: Lat=91,", "out_of_range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			reg := metric.NewMetricsRegistry()
			c := startController(t, f, func(d *Deps) { d.Metrics = reg.Pipeline })
			c.GetLog()

			f.src.msgs <- tt.msg
			f.src.msgs <- positionMsg(900000000, 0, 0, 0) // lat 90 is accepted

			require.Eventually(t, func() bool { return len(f.tx.Sent()) == 1 }, 2*time.Second, 10*time.Millisecond)
			require.Eventually(t, func() bool { return c.GetStatus().MessageCount == 2 }, time.Second, 10*time.Millisecond)

			assert.Equal(t, int64(1), c.GetStatus().CotSentCount)

			log := c.GetLog()
			assert.Len(t, matching(log, tt.diag), 1)
			assert.Len(t, matching(log, "Sent CoT #1"), 1)

			p := reg.Pipeline
			assert.Equal(t, 2.0, testutil.ToFloat64(p.FramesReceived))
			assert.Equal(t, 1.0, testutil.ToFloat64(p.ReportsAccepted))
			assert.Equal(t, 1.0, testutil.ToFloat64(p.ValidationFailures.WithLabelValues(tt.reason)))
			assert.Equal(t, 1.0, testutil.ToFloat64(p.CotSent))
		})
	}
}

func TestController_TransmissionFailureContinues(t *testing.T) {
	f := newFixture()
	f.tx.failN = 1
	c := startController(t, f)

	f.src.msgs <- positionMsg(10, 10, 10, 10)
	f.src.msgs <- positionMsg(20, 20, 20, 20)

	require.Eventually(t, func() bool { return len(f.tx.Sent()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return c.GetStatus().MessageCount == 2 }, time.Second, 10*time.Millisecond)

	assert.Equal(t, int64(1), c.GetStatus().CotSentCount)
	log := c.GetLog()
	assert.Len(t, matching(log, "Error sending CoT message"), 1)
	assert.Len(t, matching(log, "Sent CoT #1 "), 1)
	assert.Equal(t, Running, c.State())
}

func TestController_ReceiveFaultDoesNotStopSession(t *testing.T) {
	f := newFixture()
	c := startController(t, f)

	f.src.errs <- errors.ErrConnectionLost
	require.Eventually(t, func() bool {
		return len(matching(c.GetLog(), "Error processing MAVLink message")) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, Running, c.State())

	start := time.Now()
	assert.Equal(t, ResultStopped, c.Stop())
	assert.Less(t, time.Since(start), time.Second, "stop interrupts the pause")
}

func TestController_RateInDiagnostics(t *testing.T) {
	f := newFixture()
	c := startController(t, f)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m1 := positionMsg(1, 1, 1, 1)
	m1.Received = base
	m2 := positionMsg(2, 2, 2, 2)
	m2.Received = base.Add(500 * time.Millisecond)

	f.src.msgs <- m1
	f.src.msgs <- m2
	require.Eventually(t, func() bool { return len(f.tx.Sent()) == 2 }, 2*time.Second, 10*time.Millisecond)

	log := c.GetLog()
	require.Len(t, matching(log, "Sent CoT #2"), 1)
	assert.Contains(t, matching(log, "Sent CoT #1")[0], "(Rate: 0.0 Hz)")
	assert.Contains(t, matching(log, "Sent CoT #2")[0], "(Rate: 2.0 Hz)")
}

func TestController_StopWithinReceiveTimeout(t *testing.T) {
	f := newFixture()
	deps := f.deps()
	deps.ReceiveTimeout = time.Second
	c, err := NewController(deps)
	require.NoError(t, err)
	require.Equal(t, ResultStarted, c.Start(unicastConfig()))

	// Let the worker block in a receive.
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	assert.Equal(t, ResultStopped, c.Stop())
	assert.LessOrEqual(t, time.Since(start), 1200*time.Millisecond)

	before := c.GetStatus()
	assert.False(t, before.Running)

	f.src.msgs <- positionMsg(1, 1, 1, 1)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, before.MessageCount, c.GetStatus().MessageCount)
	assert.Empty(t, f.tx.Sent())
}

func TestController_CountersPersistAcrossSessions(t *testing.T) {
	f := newFixture()
	c, err := NewController(f.deps())
	require.NoError(t, err)

	require.Equal(t, ResultStarted, c.Start(unicastConfig()))
	f.src.msgs <- positionMsg(1, 1, 1, 1)
	require.Eventually(t, func() bool { return c.GetStatus().CotSentCount == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, ResultStopped, c.Stop())

	require.Equal(t, ResultStarted, c.Start(unicastConfig()))
	defer c.Stop()
	st := c.GetStatus()
	assert.True(t, st.Running)
	assert.Equal(t, int64(1), st.CotSentCount)
}

func TestController_Mirror(t *testing.T) {
	f := newFixture()
	mirror := &recordingMirror{}
	startController(t, f, func(d *Deps) { d.Mirror = mirror })

	f.src.msgs <- positionMsg(1, 1, 1, 1)
	require.Eventually(t, func() bool { return mirror.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "starting", Starting.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "stopping", Stopping.String())
	assert.Equal(t, "unknown", State(9).String())
}

func TestController_MulticastFlagWithUnicastDestination(t *testing.T) {
	f := newFixture()
	var opened transmit.Config
	c, err := NewController(f.deps())
	require.NoError(t, err)
	c.openTransmitter = func(cfg transmit.Config, _ *slog.Logger) (Sender, error) {
		opened = cfg
		return f.tx, nil
	}

	cfg := unicastConfig()
	cfg.UseMulticast = true
	require.Equal(t, ResultStarted, c.Start(cfg))
	defer c.Stop()

	assert.True(t, opened.Multicast)
	assert.Equal(t, "127.0.0.1:6969", opened.Addr())
	assert.Contains(t, texts(c.GetLog()), "CoT socket setup complete - Multicast")
}

func TestController_StartWhileStarting(t *testing.T) {
	f := newFixture()
	entered := make(chan struct{})
	release := make(chan struct{})

	c, err := NewController(f.deps())
	require.NoError(t, err)
	c.openSource = func(mavlink.Config, *slog.Logger) (mavlink.Source, error) {
		close(entered)
		<-release
		return f.src, nil
	}

	first := make(chan string, 1)
	go func() { first <- c.Start(unicastConfig()) }()
	<-entered

	assert.Equal(t, Starting, c.State())
	assert.Equal(t, ResultAlreadyRunning, c.Start(unicastConfig()))
	// Stop only acts on a Running session; the pending Start still completes.
	assert.Equal(t, ResultNotRunning, c.Stop())

	close(release)
	assert.Equal(t, ResultStarted, <-first)
	assert.Equal(t, Running, c.State())
	assert.Equal(t, ResultStopped, c.Stop())
}

func TestController_CorruptFrameDoesNotPause(t *testing.T) {
	f := newFixture()
	c := startController(t, f, func(d *Deps) { d.ReceiveTimeout = 2 * time.Second })

	f.src.errs <- errors.WrapInvalid(errors.ErrInvalidData, "Conn", "Next", "decode frame")
	require.Eventually(t, func() bool {
		return len(matching(c.GetLog(), "Error processing MAVLink message")) == 1
	}, time.Second, 10*time.Millisecond)

	f.src.msgs <- positionMsg(1, 1, 1, 1)
	require.Eventually(t, func() bool { return len(f.tx.Sent()) == 1 }, time.Second, 10*time.Millisecond,
		"an undecodable frame is skipped without the receive-fault pause")
}

func TestController_StatusCarriesRate(t *testing.T) {
	f := newFixture()
	c := startController(t, f)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m1 := positionMsg(1, 1, 1, 1)
	m1.Received = base
	m2 := positionMsg(2, 2, 2, 2)
	m2.Received = base.Add(250 * time.Millisecond)
	f.src.msgs <- m1
	f.src.msgs <- m2

	require.Eventually(t, func() bool { return c.GetStatus().CotSentCount == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.InDelta(t, 4.0, c.GetStatus().RateHz, 1e-9)
	assert.Nil(t, c.GetStatus().Transmit, "fake sender keeps no counters")

	require.Equal(t, ResultStopped, c.Stop())
	require.Equal(t, ResultStarted, c.Start(unicastConfig()))
	assert.Zero(t, c.GetStatus().RateHz, "rates reset per session")
}
