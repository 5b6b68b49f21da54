// Package mavlink owns the inbound MAVLink UDP listener: bind, heartbeat
// handshake, and a bounded receive that forwards only position reports.
package mavlink

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v2"
	"github.com/bluenviron/gomavlib/v2/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v2/pkg/message"

	"github.com/c360/mavcot/errors"
	"github.com/c360/mavcot/position"
)

// PositionType is the only message type forwarded downstream.
const PositionType = "GLOBAL_POSITION_INT"

// Defaults for Config.
const (
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultReceiveTimeout   = time.Second
	// GroundStationID is the system id this node uses on the link.
	GroundStationID = 255
)

// Config controls the inbound listener.
type Config struct {
	Port             int
	HandshakeTimeout time.Duration
	SystemID         byte
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.SystemID == 0 {
		c.SystemID = GroundStationID
	}
	return c
}

// Source is a bounded message source. Conn implements it.
type Source interface {
	Next(timeout time.Duration) (position.RawMessage, error)
	Close() error
}

// Conn is an open, handshaken MAVLink listener.
type Conn struct {
	node      *gomavlib.Node
	events    chan gomavlib.Event
	logger    *slog.Logger
	heartbeat string
	closeOnce sync.Once
	now       func() time.Time
}

// Open binds 0.0.0.0:Port and blocks until the first HEARTBEAT arrives or the
// handshake timeout passes. Failures wrap ErrBindFailed or ErrHandshakeTimeout.
func Open(cfg Config, logger *slog.Logger) (*Conn, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mavlink", "port", cfg.Port)

	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints: []gomavlib.EndpointConf{
			gomavlib.EndpointUDPServer{Address: fmt.Sprintf("0.0.0.0:%d", cfg.Port)},
		},
		Dialect:     common.Dialect,
		OutVersion:  gomavlib.V2,
		OutSystemID: cfg.SystemID,
	})
	if err != nil {
		return nil, errors.WrapFatal(fmt.Errorf("%w: %v", errors.ErrBindFailed, err), "Conn", "Open", "bind udp listener")
	}

	c := &Conn{
		node:   node,
		events: node.Events(),
		logger: logger,
		now:    time.Now,
	}

	src, err := c.awaitHeartbeat(cfg.HandshakeTimeout)
	if err != nil {
		node.Close()
		return nil, err
	}
	c.heartbeat = src
	logger.Info("MAVLink heartbeat received", "source", src)
	return c, nil
}

func (c *Conn) awaitHeartbeat(timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case evt, ok := <-c.events:
			if !ok {
				return "", errors.WrapFatal(errors.ErrConnectionLost, "Conn", "Open", "await heartbeat")
			}
			frm, isFrame := evt.(*gomavlib.EventFrame)
			if !isFrame {
				continue
			}
			if _, isHB := frm.Message().(*common.MessageHeartbeat); isHB {
				return source(frm), nil
			}
		case <-timer.C:
			return "", errors.WrapFatal(
				fmt.Errorf("%w: no heartbeat within %s", errors.ErrHandshakeTimeout, timeout),
				"Conn", "Open", "await heartbeat")
		}
	}
}

// HeartbeatSource identifies the system that completed the handshake.
func (c *Conn) HeartbeatSource() string {
	return c.heartbeat
}

// Next waits up to timeout for the next position report. Every other message
// type is discarded without trace. A quiet link yields ErrReceiveTimeout and a
// corrupt frame an invalid-class ErrInvalidData.
func (c *Conn) Next(timeout time.Duration) (position.RawMessage, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case evt, ok := <-c.events:
			if !ok {
				return position.RawMessage{}, errors.WrapFatal(errors.ErrConnectionLost, "Conn", "Next", "receive")
			}
			switch e := evt.(type) {
			case *gomavlib.EventParseError:
				return position.RawMessage{}, errors.WrapInvalid(
					fmt.Errorf("%w: %v", errors.ErrInvalidData, e.Error), "Conn", "Next", "decode frame")
			case *gomavlib.EventFrame:
				if raw, allowed := Filter(e.Message()); allowed {
					raw.Source = source(e)
					raw.Received = c.now()
					return raw, nil
				}
			}
		case <-timer.C:
			return position.RawMessage{}, errors.ErrReceiveTimeout
		}
	}
}

// Close releases the listener. Safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.node.Close()
		c.logger.Debug("MAVLink listener closed")
	})
	return nil
}

// Filter is the allow-list: it converts GLOBAL_POSITION_INT and rejects
// everything else.
func Filter(msg message.Message) (position.RawMessage, bool) {
	gp, ok := msg.(*common.MessageGlobalPositionInt)
	if !ok {
		return position.RawMessage{}, false
	}
	return position.RawMessage{
		Type: PositionType,
		Fields: map[string]int64{
			position.FieldLat: int64(gp.Lat),
			position.FieldLon: int64(gp.Lon),
			position.FieldAlt: int64(gp.Alt),
			position.FieldHdg: int64(gp.Hdg),
		},
	}, true
}

func source(frm *gomavlib.EventFrame) string {
	return fmt.Sprintf("sys=%d comp=%d", frm.SystemID(), frm.ComponentID())
}
