package bridge

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/mavcot/errors"
	"github.com/c360/mavcot/mavlink"
	"github.com/c360/mavcot/position"
	"github.com/c360/mavcot/transmit"
)

type fakeSource struct {
	msgs   chan position.RawMessage
	errs   chan error
	closed atomic.Bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		msgs: make(chan position.RawMessage, 16),
		errs: make(chan error, 1),
	}
}

func (f *fakeSource) Next(timeout time.Duration) (position.RawMessage, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case m := <-f.msgs:
		return m, nil
	case err := <-f.errs:
		return position.RawMessage{}, err
	case <-t.C:
		return position.RawMessage{}, errors.ErrReceiveTimeout
	}
}

func (f *fakeSource) Close() error {
	f.closed.Store(true)
	return nil
}

type fakeSender struct {
	mu     sync.Mutex
	sent   [][]byte
	failN  int // fail this many sends first
	closed atomic.Bool
}

func (f *fakeSender) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failN > 0 {
		f.failN--
		return errors.WrapTransient(errors.ErrTransmission, "fakeSender", "Send", "write datagram")
	}
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

func (f *fakeSender) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *fakeSender) Sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.sent...)
}

type recordingMirror struct {
	mu   sync.Mutex
	docs [][]byte
}

func (m *recordingMirror) MirrorCoT(data []byte) {
	m.mu.Lock()
	m.docs = append(m.docs, data)
	m.mu.Unlock()
}

func (m *recordingMirror) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

// fixture wires a controller to fakes.
type fixture struct {
	src *fakeSource
	tx  *fakeSender

	srcErr error
	txErr  error

	txOpened atomic.Bool
}

func (f *fixture) deps() Deps {
	return Deps{
		OpenSource: func(mavlink.Config, *slog.Logger) (mavlink.Source, error) {
			if f.srcErr != nil {
				return nil, f.srcErr
			}
			return f.src, nil
		},
		OpenTransmitter: func(transmit.Config, *slog.Logger) (Sender, error) {
			f.txOpened.Store(true)
			if f.txErr != nil {
				return nil, f.txErr
			}
			return f.tx, nil
		},
		ReceiveTimeout: 100 * time.Millisecond,
	}
}

func newFixture() *fixture {
	return &fixture{src: newFakeSource(), tx: &fakeSender{}}
}

func unicastConfig() SessionConfig {
	return SessionConfig{
		InboundPort:        14550,
		AircraftIdentifier: "FRIENDLY_UAV",
		DestinationIP:      "127.0.0.1",
		DestinationPort:    6969,
	}
}

func positionMsg(lat, lon, alt, hdg int64) position.RawMessage {
	return position.RawMessage{
		Type: mavlink.PositionType,
		Fields: map[string]int64{
			position.FieldLat: lat,
			position.FieldLon: lon,
			position.FieldAlt: alt,
			position.FieldHdg: hdg,
		},
	}
}
