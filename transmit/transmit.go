// Package transmit sends CoT documents as single UDP datagrams to a unicast
// or multicast destination.
package transmit

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/c360/mavcot/errors"
)

// MulticastTTL bounds how far multicast CoT propagates.
const MulticastTTL = 32

// Config describes the destination.
type Config struct {
	IP        string
	Port      int
	Multicast bool
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.IP, strconv.Itoa(c.Port))
}

// Mode returns "Multicast" or "Unicast".
func (c Config) Mode() string {
	if c.Multicast {
		return "Multicast"
	}
	return "Unicast"
}

// Transmitter owns the outbound socket for one session.
type Transmitter struct {
	cfg    Config
	logger *slog.Logger

	mu   sync.Mutex
	conn *net.UDPConn
	dest *net.UDPAddr

	sent         atomic.Int64
	failures     atomic.Int64
	lastActivity atomic.Value // time.Time
}

// Open creates the outbound socket. With Multicast set the TTL is MulticastTTL,
// whatever the destination.
func Open(cfg Config, logger *slog.Logger) (*Transmitter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dest, err := net.ResolveUDPAddr("udp4", cfg.Addr())
	if err != nil {
		return nil, errors.WrapInvalid(err, "Transmitter", "Open", "resolve destination")
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		return nil, errors.WrapFatal(err, "Transmitter", "Open", "create socket")
	}

	if cfg.Multicast {
		if err := ipv4.NewPacketConn(conn).SetMulticastTTL(MulticastTTL); err != nil {
			_ = conn.Close()
			return nil, errors.WrapFatal(err, "Transmitter", "Open", "set multicast TTL")
		}
	}

	t := &Transmitter{
		cfg:    cfg,
		logger: logger.With("component", "transmitter", "destination", cfg.Addr(), "mode", cfg.Mode()),
		conn:   conn,
		dest:   dest,
	}
	t.lastActivity.Store(time.Time{})
	return t, nil
}

// Send writes data as one datagram. There is no retry.
func (t *Transmitter) Send(data []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		t.failures.Add(1)
		return errors.WrapTransient(fmt.Errorf("%w: socket closed", errors.ErrTransmission),
			"Transmitter", "Send", "write datagram")
	}

	n, err := conn.WriteToUDP(data, t.dest)
	if err == nil && n != len(data) {
		err = fmt.Errorf("short write %d of %d bytes", n, len(data))
	}
	if err != nil {
		t.failures.Add(1)
		return errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrTransmission, err),
			"Transmitter", "Send", "write datagram")
	}

	t.sent.Add(1)
	t.lastActivity.Store(time.Now())
	return nil
}

// Config returns the destination configuration.
func (t *Transmitter) Config() Config {
	return t.cfg
}

// Sent returns the number of successful sends.
func (t *Transmitter) Sent() int64 { return t.sent.Load() }

// Failures returns the number of failed sends.
func (t *Transmitter) Failures() int64 { return t.failures.Load() }

// LastActivity returns the time of the last successful send.
func (t *Transmitter) LastActivity() time.Time {
	return t.lastActivity.Load().(time.Time)
}

// Close releases the socket. Safe to call more than once.
func (t *Transmitter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	if err != nil {
		return errors.WrapTransient(err, "Transmitter", "Close", "close socket")
	}
	t.logger.Debug("CoT socket closed", "sent", t.sent.Load(), "failures", t.failures.Load())
	return nil
}
