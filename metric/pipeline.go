package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline holds the counters and gauges for one bridge process.
// Counters accumulate across sessions.
type Pipeline struct {
	FramesReceived     prometheus.Counter
	ReportsAccepted    prometheus.Counter
	ValidationFailures *prometheus.CounterVec
	CotSent            prometheus.Counter
	TransmissionErrors prometheus.Counter
	MessageRate        *prometheus.GaugeVec
	SessionRunning     prometheus.Gauge
	SideServiceUp      *prometheus.GaugeVec
}

// NewPipeline creates the pipeline metrics, unregistered.
func NewPipeline() *Pipeline {
	return &Pipeline{
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "frames_received_total",
			Help:      "MAVLink frames that passed the message filter",
		}),
		ReportsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "reports_accepted_total",
			Help:      "Position reports that passed validation",
		}),
		ValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "validation_failures_total",
			Help:      "Position reports rejected by validation",
		}, []string{"reason"}),
		CotSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cot_sent_total",
			Help:      "CoT datagrams sent successfully",
		}),
		TransmissionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "transmission_errors_total",
			Help:      "CoT datagrams that failed to send",
		}),
		MessageRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "message_rate_hz",
			Help:      "Instantaneous inbound message rate per MAVLink message type",
		}, []string{"type"}),
		SessionRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "session_running",
			Help:      "1 while a conversion session is running",
		}),
		SideServiceUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "side_service_up",
			Help:      "Connection state of optional side services (nats, redis)",
		}, []string{"service"}),
	}
}

func (p *Pipeline) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		p.FramesReceived,
		p.ReportsAccepted,
		p.ValidationFailures,
		p.CotSent,
		p.TransmissionErrors,
		p.MessageRate,
		p.SessionRunning,
		p.SideServiceUp,
	}
}

// RecordFrame counts a frame that passed the filter
func (p *Pipeline) RecordFrame() {
	p.FramesReceived.Inc()
}

// RecordAccepted counts a validated report
func (p *Pipeline) RecordAccepted() {
	p.ReportsAccepted.Inc()
}

// RecordValidationFailure counts a rejected report by reason
func (p *Pipeline) RecordValidationFailure(reason string) {
	p.ValidationFailures.WithLabelValues(reason).Inc()
}

// RecordSent counts a successful CoT send
func (p *Pipeline) RecordSent() {
	p.CotSent.Inc()
}

// RecordTransmissionError counts a failed CoT send
func (p *Pipeline) RecordTransmissionError() {
	p.TransmissionErrors.Inc()
}

// SetRate records the current rate for a message type
func (p *Pipeline) SetRate(messageType string, hz float64) {
	p.MessageRate.WithLabelValues(messageType).Set(hz)
}

// SetRunning updates the session gauge
func (p *Pipeline) SetRunning(running bool) {
	p.SessionRunning.Set(boolToFloat(running))
}

// SetSideService records whether an optional side service is connected
func (p *Pipeline) SetSideService(service string, up bool) {
	p.SideServiceUp.WithLabelValues(service).Set(boolToFloat(up))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
