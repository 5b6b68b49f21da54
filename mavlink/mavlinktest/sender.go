// Package mavlinktest provides a loopback MAVLink source for tests.
package mavlinktest

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v2"
	"github.com/bluenviron/gomavlib/v2/pkg/dialects/common"
)

// Sender is a MAVLink vehicle that writes to 127.0.0.1:port.
type Sender struct {
	node *gomavlib.Node

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewSender creates a vehicle node with automatic heartbeats disabled.
func NewSender(port int) (*Sender, error) {
	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints: []gomavlib.EndpointConf{
			gomavlib.EndpointUDPClient{Address: fmt.Sprintf("127.0.0.1:%d", port)},
		},
		Dialect:          common.Dialect,
		OutVersion:       gomavlib.V2,
		OutSystemID:      1,
		HeartbeatDisable: true,
	})
	if err != nil {
		return nil, err
	}
	return &Sender{node: node, stop: make(chan struct{})}, nil
}

// Heartbeat sends one HEARTBEAT.
func (s *Sender) Heartbeat() {
	s.node.WriteMessageAll(&common.MessageHeartbeat{
		Type:           2, // quadrotor
		Autopilot:      3, // ardupilotmega
		MavlinkVersion: 3,
	})
}

// HeartbeatEvery sends heartbeats until Close, for listeners that bind later.
func (s *Sender) HeartbeatEvery(interval time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			s.Heartbeat()
			select {
			case <-s.stop:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Position sends one GLOBAL_POSITION_INT with raw wire values.
func (s *Sender) Position(lat, lon, alt int32, hdg uint16) {
	s.node.WriteMessageAll(&common.MessageGlobalPositionInt{
		TimeBootMs:  uint32(time.Now().UnixMilli()),
		Lat:         lat,
		Lon:         lon,
		Alt:         alt,
		RelativeAlt: alt,
		Hdg:         hdg,
	})
}

// Attitude sends a message type the bridge must ignore.
func (s *Sender) Attitude() {
	s.node.WriteMessageAll(&common.MessageAttitude{Roll: 0.1, Pitch: 0.2, Yaw: 0.3})
}

// Close stops background heartbeats and the node.
func (s *Sender) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
		s.node.Close()
	})
}

// FreePort returns a UDP port that was free a moment ago.
func FreePort() (int, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).Port, nil
}
