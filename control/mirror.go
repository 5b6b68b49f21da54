package control

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Publisher sends one message. *natsclient.Client implements it.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Mirror republishes every sent CoT document on a subject. Failures are
// counted and logged at debug level at most every five seconds, never
// returned to the pipeline.
type Mirror struct {
	pub     Publisher
	subject string
	logger  *slog.Logger

	published atomic.Int64
	failed    atomic.Int64
	failLog   rate.Sometimes
}

// NewMirror creates a mirror publishing to subject.
func NewMirror(pub Publisher, subject string, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{
		pub:     pub,
		subject: subject,
		logger:  logger.With("component", "cot_mirror", "subject", subject),
		failLog: rate.Sometimes{Interval: 5 * time.Second},
	}
}

// MirrorCoT implements bridge.CotSink.
func (m *Mirror) MirrorCoT(data []byte) {
	if err := m.pub.Publish(context.Background(), m.subject, data); err != nil {
		failed := m.failed.Add(1)
		m.failLog.Do(func() {
			m.logger.Debug("CoT mirror publish failed", "error", err, "failed_total", failed)
		})
		return
	}
	m.published.Add(1)
}

// Published returns the number of documents mirrored.
func (m *Mirror) Published() int64 { return m.published.Load() }

// Failed returns the number of failed publishes.
func (m *Mirror) Failed() int64 { return m.failed.Load() }
