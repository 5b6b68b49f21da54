// Package health tracks the health of the bridge session and its side services.
package health

import (
	"regexp"
	"time"
)

// Status is the health of one component, or of the process when it carries
// SubStatuses.
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
}

func (s Status) IsHealthy() bool   { return s.Status == StateHealthy }
func (s Status) IsDegraded() bool  { return s.Status == StateDegraded }
func (s Status) IsUnhealthy() bool { return s.Status == StateUnhealthy }

// WithSubStatus returns a copy with sub appended. The receiver's slice is not shared.
func (s Status) WithSubStatus(sub Status) Status {
	subs := make([]Status, 0, len(s.SubStatuses)+1)
	s.SubStatuses = append(append(subs, s.SubStatuses...), sub)
	return s
}

type redaction struct {
	pattern *regexp.Regexp
	with    string
}

// Applied in order. URLs go before paths and IPs go before ports.
var redactions = []redaction{
	{regexp.MustCompile(`(?i)\b(?:https?|nats|redis|wss?|udp)://\S+`), "[URL]"},
	{regexp.MustCompile(`(?i)(password|token|key|secret|credential)\S*?\s*[:=]\s*[^,\s}]+`), "[REDACTED]"},
	{regexp.MustCompile(`/[\w/.-]+`), "[PATH]"},
	{regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}\b`), "[IP]"},
	{regexp.MustCompile(`:\d{2,5}\b`), "[PORT]"},
}

// redact strips hosts, paths and credentials from an error text before it
// leaves the process on /health.
func redact(msg string) string {
	for _, r := range redactions {
		msg = r.pattern.ReplaceAllString(msg, r.with)
	}
	return msg
}

// FromError builds an unhealthy status from err. nil is healthy.
func FromError(component string, err error) Status {
	if err == nil {
		return NewHealthy(component, "ok")
	}
	return NewUnhealthy(component, redact(err.Error()))
}
