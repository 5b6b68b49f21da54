package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/c360/mavcot/errors"
)

// Validate fills empty optional fields with defaults, then rejects anything
// the bridge cannot run with.
func (c *Config) Validate() error {
	def := Default()

	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = def.Metrics.Port
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = def.Metrics.Path
	}
	if c.NATS.ControlSubject == "" {
		c.NATS.ControlSubject = def.NATS.ControlSubject
	}
	if c.NATS.CotSubject == "" {
		c.NATS.CotSubject = def.NATS.CotSubject
	}
	if c.Redis.Key == "" {
		c.Redis.Key = def.Redis.Key
	}
	if c.Redis.TTL.Duration == 0 {
		c.Redis.TTL = def.Redis.TTL
	}

	var problems []string

	if err := c.Session.Bridge().Validate(); err != nil {
		problems = append(problems, err.Error())
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q must be debug, info, warn or error", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q must be json or text", c.Logging.Format))
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		problems = append(problems, fmt.Sprintf("metrics.port %d out of range", c.Metrics.Port))
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		problems = append(problems, fmt.Sprintf("metrics.path %q must start with /", c.Metrics.Path))
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		problems = append(problems, "nats.url is required when nats is enabled")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		problems = append(problems, "redis.addr is required when redis is enabled")
	}
	if c.Redis.TTL.Duration < time.Second {
		problems = append(problems, fmt.Sprintf("redis.ttl %s must be at least 1s", c.Redis.TTL.Duration))
	}

	if len(problems) > 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; ")),
			"Config", "Validate", "validate configuration")
	}
	return nil
}
