// Package bridge runs the MAVLink to CoT conversion session: the controller
// state machine and the single pipeline worker it owns.
package bridge

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c360/mavcot/cot"
	"github.com/c360/mavcot/health"
	"github.com/c360/mavcot/mavlink"
	"github.com/c360/mavcot/metric"
	"github.com/c360/mavcot/position"
	"github.com/c360/mavcot/rate"
	"github.com/c360/mavcot/telemetry"
	"github.com/c360/mavcot/transmit"
)

// Result strings returned by Start and Stop.
const (
	ResultStarted        = "Conversion started successfully"
	ResultAlreadyRunning = "Already running"
	ResultInvalidConfig  = "Invalid session configuration"
	ResultConnectFailed  = "Failed to connect to MAVLink"
	ResultSocketFailed   = "Failed to setup CoT socket"
	ResultStopped        = "Conversion stopped"
	ResultNotRunning     = "Not running"
)

// State of the controller. Idle is both initial and terminal.
type State int32

const (
	Idle State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Sender is the outbound half of a session. *transmit.Transmitter implements it.
type Sender interface {
	Send(data []byte) error
	Close() error
}

// senderStats is implemented by *transmit.Transmitter.
type senderStats interface {
	Sent() int64
	Failures() int64
	LastActivity() time.Time
}

// CotSink receives a copy of every CoT document after a successful send.
// It must not block.
type CotSink interface {
	MirrorCoT(data []byte)
}

// Deps wires a Controller. Only Bus is commonly supplied; the rest default.
type Deps struct {
	Logger  *slog.Logger
	Bus     *telemetry.Bus
	Metrics *metric.Pipeline
	Monitor *health.Monitor
	Mirror  CotSink

	OpenSource      func(mavlink.Config, *slog.Logger) (mavlink.Source, error)
	OpenTransmitter func(transmit.Config, *slog.Logger) (Sender, error)

	HandshakeTimeout time.Duration
	ReceiveTimeout   time.Duration
	Clock            func() time.Time
}

// Controller allows at most one running session.
type Controller struct {
	logger  *slog.Logger
	bus     *telemetry.Bus
	metrics *metric.Pipeline
	monitor *health.Monitor
	mirror  CotSink

	openSource      func(mavlink.Config, *slog.Logger) (mavlink.Source, error)
	openTransmitter func(transmit.Config, *slog.Logger) (Sender, error)

	handshakeTimeout time.Duration
	receiveTimeout   time.Duration
	now              func() time.Time

	// Reset by Start; Observe is called only by the worker.
	rates *rate.Tracker

	state atomic.Int32

	mu   sync.Mutex
	sess *session

	// Written only by the worker while Running, and by Start/Stop otherwise.
	msgCount  int64
	sentCount int64
	latest    *position.Report
}

// NewController builds a controller in the Idle state.
func NewController(deps Deps) (*Controller, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	bus := deps.Bus
	if bus == nil {
		var err error
		if bus, err = telemetry.NewBus(telemetry.DefaultCapacity, telemetry.Deps{Logger: logger}); err != nil {
			return nil, err
		}
	}

	c := &Controller{
		logger:           logger.With("component", "bridge"),
		bus:              bus,
		metrics:          deps.Metrics,
		monitor:          deps.Monitor,
		mirror:           deps.Mirror,
		openSource:       deps.OpenSource,
		openTransmitter:  deps.OpenTransmitter,
		handshakeTimeout: deps.HandshakeTimeout,
		receiveTimeout:   deps.ReceiveTimeout,
		now:              deps.Clock,
		rates:            rate.NewTracker(),
	}

	if c.openSource == nil {
		c.openSource = func(cfg mavlink.Config, l *slog.Logger) (mavlink.Source, error) {
			conn, err := mavlink.Open(cfg, l)
			if err != nil {
				return nil, err
			}
			return conn, nil
		}
	}
	if c.openTransmitter == nil {
		c.openTransmitter = func(cfg transmit.Config, l *slog.Logger) (Sender, error) {
			tx, err := transmit.Open(cfg, l)
			if err != nil {
				return nil, err
			}
			return tx, nil
		}
	}
	if c.handshakeTimeout <= 0 {
		c.handshakeTimeout = mavlink.DefaultHandshakeTimeout
	}
	if c.receiveTimeout <= 0 {
		c.receiveTimeout = mavlink.DefaultReceiveTimeout
	}
	if c.now == nil {
		c.now = time.Now
	}

	c.setHealth(health.NewHealthy("session", "idle"))
	return c, nil
}

// State returns the current state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Start opens the inbound listener and outbound socket, then launches the
// worker. It returns one of the Result strings.
func (c *Controller) Start(cfg SessionConfig) string {
	if !c.state.CompareAndSwap(int32(Idle), int32(Starting)) {
		return ResultAlreadyRunning
	}

	if err := cfg.Validate(); err != nil {
		c.bus.Publish(fmt.Sprintf("%s: %v", ResultInvalidConfig, err))
		c.failStart(err)
		return ResultInvalidConfig
	}

	id := uuid.NewString()
	logger := c.logger.With("session", id)

	c.bus.Publish("Starting conversion with settings:")
	c.bus.Publish(fmt.Sprintf("MAVLink Port: %d", cfg.InboundPort))
	c.bus.Publish(fmt.Sprintf("Aircraft Name: %s", cfg.AircraftIdentifier))
	c.bus.Publish(fmt.Sprintf("CoT IP: %s", cfg.DestinationIP))
	c.bus.Publish(fmt.Sprintf("CoT Port: %d", cfg.DestinationPort))
	c.bus.Publish(fmt.Sprintf("Using Multicast: %t", cfg.UseMulticast))

	src, err := c.openSource(mavlink.Config{
		Port:             cfg.InboundPort,
		HandshakeTimeout: c.handshakeTimeout,
		SystemID:         mavlink.GroundStationID,
	}, logger)
	if err != nil {
		logger.Error("MAVLink connection failed", "port", cfg.InboundPort, "error", err)
		c.bus.Publish(fmt.Sprintf("Error connecting to MAVLink: %v", err))
		c.failStart(err)
		return ResultConnectFailed
	}
	c.bus.Publish("MAVLink connection established and heartbeat received")
	if hb, ok := src.(interface{ HeartbeatSource() string }); ok {
		logger.Info("Heartbeat received", "source", hb.HeartbeatSource())
	}

	txCfg := transmit.Config{IP: cfg.DestinationIP, Port: cfg.DestinationPort, Multicast: cfg.UseMulticast}
	tx, err := c.openTransmitter(txCfg, logger)
	if err != nil {
		_ = src.Close()
		logger.Error("CoT socket setup failed", "destination", txCfg.Addr(), "error", err)
		c.bus.Publish(fmt.Sprintf("Error setting up CoT socket: %v", err))
		c.failStart(err)
		return ResultSocketFailed
	}
	c.bus.Publish(fmt.Sprintf("CoT socket setup complete - %s", txCfg.Mode()))

	s := &session{
		id:     id,
		cfg:    cfg,
		logger: logger,
		src:    src,
		tx:     tx,
		enc:    cot.NewEncoder(cfg.AircraftIdentifier),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	s.running.Store(true)
	c.rates.Reset()

	c.mu.Lock()
	c.sess = s
	c.mu.Unlock()

	c.publishStatus(s, true)
	if c.metrics != nil {
		c.metrics.SetRunning(true)
	}
	c.setHealth(health.NewHealthy("session", "running"))
	c.state.Store(int32(Running))

	logger.Info("Conversion started",
		"inbound_port", cfg.InboundPort,
		"destination", txCfg.Addr(),
		"mode", txCfg.Mode())

	go c.run(s)
	return ResultStarted
}

func (c *Controller) failStart(err error) {
	c.setHealth(health.FromError("session", err))
	c.state.Store(int32(Idle))
}

// Stop signals the worker, waits for it to exit, then releases both sockets.
// Worst-case latency is one receive timeout.
func (c *Controller) Stop() string {
	if !c.state.CompareAndSwap(int32(Running), int32(Stopping)) {
		return ResultNotRunning
	}

	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()

	s.running.Store(false)
	close(s.stop)
	<-s.done

	if err := s.src.Close(); err != nil {
		s.logger.Warn("Closing MAVLink listener failed", "error", err)
	}
	if err := s.tx.Close(); err != nil {
		s.logger.Warn("Closing CoT socket failed", "error", err)
	}

	c.mu.Lock()
	c.sess = nil
	c.mu.Unlock()

	c.publishStatus(s, false)
	if c.metrics != nil {
		c.metrics.SetRunning(false)
	}
	c.setHealth(health.NewHealthy("session", "idle"))
	c.bus.Publish(ResultStopped)
	s.logger.Info("Conversion stopped", "messages", c.msgCount, "cot_sent", c.sentCount)

	c.state.Store(int32(Idle))
	return ResultStopped
}

// GetStatus returns the latest status snapshot without blocking the worker.
func (c *Controller) GetStatus() telemetry.Status {
	return c.bus.Status()
}

// GetLog drains the diagnostic buffer, oldest first.
func (c *Controller) GetLog() []telemetry.Entry {
	return c.bus.Drain()
}

// SessionID returns the id of the running session, or "".
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return ""
	}
	return c.sess.id
}

func (c *Controller) publishStatus(s *session, running bool) {
	st := telemetry.Status{
		MessageCount: c.msgCount,
		CotSentCount: c.sentCount,
		Latest:       c.latest,
		RateHz:       c.rates.Rate(mavlink.PositionType),
		Running:      running,
	}
	if tx, ok := s.tx.(senderStats); ok {
		st.Transmit = &telemetry.TransmitStats{
			Sent:         tx.Sent(),
			Failures:     tx.Failures(),
			LastActivity: tx.LastActivity(),
		}
	}
	c.bus.UpdateStatus(st)
}

func (c *Controller) setHealth(st health.Status) {
	if c.monitor != nil {
		c.monitor.Update("session", st)
	}
}
