package bridge

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/c360/mavcot/cot"
	"github.com/c360/mavcot/errors"
	"github.com/c360/mavcot/mavlink"
	"github.com/c360/mavcot/position"
)

// session is the context handed to the worker. It is never shared between sessions.
type session struct {
	id     string
	cfg    SessionConfig
	logger *slog.Logger

	src mavlink.Source
	tx  Sender
	enc *cot.Encoder

	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}
}

// run is the pipeline loop. The running flag is checked after every receive,
// timed out or not, so Stop never waits longer than one receive timeout.
func (c *Controller) run(s *session) {
	defer close(s.done)

	c.bus.Publish(fmt.Sprintf("Starting MAVLink processing, sending CoT to %s:%d",
		s.cfg.DestinationIP, s.cfg.DestinationPort))

	for s.running.Load() {
		raw, err := s.src.Next(c.receiveTimeout)
		if err != nil {
			if stderrors.Is(err, errors.ErrReceiveTimeout) {
				continue
			}
			c.bus.Publish(fmt.Sprintf("Error processing MAVLink message: %v", err))
			// A bad frame costs only itself; socket faults pause the loop.
			if errors.IsInvalid(err) {
				s.logger.Debug("Dropped undecodable MAVLink frame", "error", err)
				continue
			}
			s.logger.Warn("MAVLink receive failed", "error", err, "class", errors.Classify(err))
			c.backoff(s)
			continue
		}
		c.process(s, raw)
	}
}

// backoff pauses after a receive fault without delaying Stop.
func (c *Controller) backoff(s *session) {
	t := time.NewTimer(c.receiveTimeout)
	defer t.Stop()
	select {
	case <-s.stop:
	case <-t.C:
	}
}

// process runs one message through validate, rate, encode and send.
// Every failure drops the message and leaves the loop running.
func (c *Controller) process(s *session, raw position.RawMessage) {
	c.msgCount++
	if c.metrics != nil {
		c.metrics.RecordFrame()
	}
	defer c.publishStatus(s, true)

	now := raw.Received
	if now.IsZero() {
		now = c.now()
	}

	report, err := position.Validate(raw, now)
	if err != nil {
		if ve, ok := errors.AsValidation(err); ok && c.metrics != nil {
			c.metrics.RecordValidationFailure(ve.Kind.String())
		}
		c.bus.Publish(err.Error())
		return
	}
	if c.metrics != nil {
		c.metrics.RecordAccepted()
	}

	hz := c.rates.Observe(raw.Type, now)
	if c.metrics != nil {
		c.metrics.SetRate(raw.Type, hz)
	}
	c.latest = &report

	data, err := s.enc.Encode(report, now)
	if err != nil {
		if errors.IsFatal(err) {
			s.logger.Error("CoT encoding failed on validated report", "error", err)
		} else {
			s.logger.Warn("CoT encoding failed", "error", err)
		}
		c.bus.Publish(fmt.Sprintf("Error encoding CoT message: %v", err))
		return
	}

	if err := s.tx.Send(data); err != nil {
		if c.metrics != nil {
			c.metrics.RecordTransmissionError()
		}
		if !errors.IsTransient(err) {
			s.logger.Warn("CoT send failed", "error", err, "class", errors.Classify(err))
		}
		c.bus.Publish(fmt.Sprintf("Error sending CoT message: %v", err))
		return
	}

	c.sentCount++
	if c.metrics != nil {
		c.metrics.RecordSent()
	}
	if c.mirror != nil {
		c.mirror.MirrorCoT(data)
	}

	c.bus.Publish(fmt.Sprintf("Sent CoT #%d - Lat: %.6f, Lon: %.6f, Alt: %.1fm, Heading: %.1f° (Rate: %.1f Hz)",
		c.sentCount, report.Lat, report.Lon, report.Alt, report.Heading, hz))
}
