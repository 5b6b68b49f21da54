// Package control exposes the bridge's four control operations over NATS
// request/reply and mirrors sent CoT documents onto a NATS subject.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/c360/mavcot/bridge"
	"github.com/c360/mavcot/errors"
	"github.com/c360/mavcot/natsclient"
	"github.com/c360/mavcot/telemetry"
)

// Operation subjects are appended to the adapter prefix.
const (
	OpStart  = "start"
	OpStop   = "stop"
	OpStatus = "status"
	OpLog    = "log"
)

// Controller is the control surface of *bridge.Controller.
type Controller interface {
	Start(cfg bridge.SessionConfig) string
	Stop() string
	GetStatus() telemetry.Status
	GetLog() []telemetry.Entry
}

// Server registers request handlers. *natsclient.Client implements it.
type Server interface {
	Handle(ctx context.Context, subject string, handler natsclient.Handler) error
}

// Reply is the JSON body answered on start and stop.
type Reply struct {
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

// Adapter answers control requests for one controller.
type Adapter struct {
	ctrl     Controller
	prefix   string
	defaults bridge.SessionConfig
	logger   *slog.Logger
}

// NewAdapter creates an adapter serving <prefix>.start, .stop, .status and
// .log. Start requests are decoded over defaults, so fields may be omitted.
func NewAdapter(ctrl Controller, prefix string, defaults bridge.SessionConfig, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		ctrl:     ctrl,
		prefix:   prefix,
		defaults: defaults,
		logger:   logger.With("component", "control", "prefix", prefix),
	}
}

// Subject returns the full subject for op.
func (a *Adapter) Subject(op string) string {
	return a.prefix + "." + op
}

// Register installs all four handlers on srv.
func (a *Adapter) Register(ctx context.Context, srv Server) error {
	handlers := map[string]natsclient.Handler{
		OpStart:  a.handleStart,
		OpStop:   a.handleStop,
		OpStatus: a.handleStatus,
		OpLog:    a.handleLog,
	}
	for _, op := range []string{OpStart, OpStop, OpStatus, OpLog} {
		if err := srv.Handle(ctx, a.Subject(op), handlers[op]); err != nil {
			return errors.Wrap(err, "Adapter", "Register", "handle "+a.Subject(op))
		}
	}
	a.logger.Info("Control subjects registered", "subjects", a.Subject("*"))
	return nil
}

func (a *Adapter) handleStart(_ context.Context, data []byte) []byte {
	cfg := a.defaults
	if len(data) > 0 {
		if err := json.Unmarshal(data, &cfg); err != nil {
			a.logger.Warn("Rejected start request", "error", err)
			return encode(Reply{
				Result: bridge.ResultInvalidConfig,
				Error:  fmt.Sprintf("decode session config: %v", err),
			})
		}
	}

	result := a.ctrl.Start(cfg)
	a.logger.Info("Start requested", "result", result)
	return encode(Reply{Result: result})
}

func (a *Adapter) handleStop(context.Context, []byte) []byte {
	result := a.ctrl.Stop()
	a.logger.Info("Stop requested", "result", result)
	return encode(Reply{Result: result})
}

func (a *Adapter) handleStatus(context.Context, []byte) []byte {
	return encode(a.ctrl.GetStatus())
}

func (a *Adapter) handleLog(context.Context, []byte) []byte {
	entries := a.ctrl.GetLog()
	if entries == nil {
		entries = []telemetry.Entry{}
	}
	return encode(entries)
}

func encode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// Only reachable with unsupported values such as NaN.
		data, _ = json.Marshal(Reply{Error: err.Error()})
	}
	return data
}
